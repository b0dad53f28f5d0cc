package core

import (
	"context"
	"fmt"

	"pkt.systems/pslog"
	"pkt.systems/querydesk/schema"
)

// HandlerFunc runs one backend action. Backend failures are reported inside
// the returned RawResult, not as Go errors.
type HandlerFunc func(ctx context.Context, query string) schema.RawResult

// Dispatcher routes an action kind to its handler.
type Dispatcher struct {
	handlers map[schema.ActionKind]HandlerFunc
}

// NewDispatcher validates that handlers covers exactly the closed set of
// action kinds.
func NewDispatcher(handlers map[schema.ActionKind]HandlerFunc) (*Dispatcher, error) {
	for kind := range handlers {
		if !kind.Valid() {
			return nil, fmt.Errorf("dispatcher: %w: %s", schema.ErrUnknownAction, kind)
		}
	}
	table := make(map[schema.ActionKind]HandlerFunc, len(handlers))
	for _, kind := range schema.ActionKinds() {
		h := handlers[kind]
		if h == nil {
			return nil, fmt.Errorf("dispatcher: %w: %s", schema.ErrMissingHandler, kind)
		}
		table[kind] = h
	}
	return &Dispatcher{handlers: table}, nil
}

// Dispatch runs the handler for kind. An unknown kind, a handler panic or a
// result of the wrong variant is returned as an error.
func (d *Dispatcher) Dispatch(ctx context.Context, kind schema.ActionKind, query string) (raw schema.RawResult, err error) {
	h, ok := d.handlers[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", schema.ErrUnknownAction, kind)
	}
	defer func() {
		if r := recover(); r != nil {
			pslog.Ctx(ctx).Error("action handler panic", "action", kind, "panic", r)
			raw = nil
			err = fmt.Errorf("action %s failed: %v", kind, r)
		}
	}()
	raw = h(ctx, query)
	if raw == nil {
		return nil, fmt.Errorf("action %s returned no result", kind)
	}
	if raw.Kind() != kind {
		return nil, fmt.Errorf("action %s returned a %s result", kind, raw.Kind())
	}
	return raw, nil
}
