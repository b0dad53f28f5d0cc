package logx

import (
	"context"

	"pkt.systems/pslog"
	"pkt.systems/querydesk/schema"
)

type contextKey int

const (
	userKey contextKey = iota
	requestKey
)

// Ctx returns the logger bound to the provided context.
func Ctx(ctx context.Context) pslog.Logger {
	return pslog.Ctx(ctx)
}

// WithUser annotates the logger with the user id if present.
func WithUser(ctx context.Context, userID schema.UserID) pslog.Logger {
	log := pslog.Ctx(ctx)
	if userID != "" {
		if current, ok := ctx.Value(userKey).(schema.UserID); ok && current == userID {
			return log
		}
		log = log.With("user", userID)
	}
	return log
}

// WithRequest annotates the logger with user and request identifiers.
func WithRequest(ctx context.Context, userID schema.UserID, requestID schema.RequestID) pslog.Logger {
	log := WithUser(ctx, userID)
	if requestID != "" {
		if current, ok := ctx.Value(requestKey).(schema.RequestID); ok && current == requestID {
			return log
		}
		log = log.With("request_id", requestID)
	}
	return log
}

// WithAction annotates the logger with the action kind when known.
func WithAction(log pslog.Logger, kind schema.ActionKind) pslog.Logger {
	if kind != "" {
		log = log.With("action", kind)
	}
	return log
}

// ContextWithUser stores the user marker on the context for log de-duplication.
func ContextWithUser(ctx context.Context, userID schema.UserID) context.Context {
	if ctx == nil || userID == "" {
		return ctx
	}
	return context.WithValue(ctx, userKey, userID)
}

// ContextWithRequest stores the request marker on the context for log de-duplication.
func ContextWithRequest(ctx context.Context, requestID schema.RequestID) context.Context {
	if ctx == nil || requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestKey, requestID)
}

// RequestID returns the request marker stored on the context, if any.
func RequestID(ctx context.Context) schema.RequestID {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(requestKey).(schema.RequestID)
	return id
}

// ContextWithUserLogger attaches the logger and user marker to the context.
func ContextWithUserLogger(ctx context.Context, log pslog.Logger, userID schema.UserID) context.Context {
	ctx = pslog.ContextWithLogger(ctx, log)
	return ContextWithUser(ctx, userID)
}

// ContextWithRequestLogger attaches the logger and user/request markers to the context.
func ContextWithRequestLogger(ctx context.Context, log pslog.Logger, userID schema.UserID, requestID schema.RequestID) context.Context {
	ctx = pslog.ContextWithLogger(ctx, log)
	return ContextWithRequest(ContextWithUser(ctx, userID), requestID)
}
