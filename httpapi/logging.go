package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"pkt.systems/pslog"
	"pkt.systems/querydesk/core"
	"pkt.systems/querydesk/internal/logx"
	"pkt.systems/querydesk/schema"
)

const requestIDHeader = "X-Request-Id"

type sessionLookupFunc func(*http.Request) (userID schema.UserID, sessionID string)

// withRequestID accepts a caller supplied request id or mints one, echoes it
// in the response and binds it to the request logger.
func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := schema.RequestID(strings.TrimSpace(r.Header.Get(requestIDHeader)))
		if id == "" || len(id) > 128 {
			id = core.NewRequestID()
		}
		w.Header().Set(requestIDHeader, string(id))
		log := pslog.Ctx(r.Context()).With("request_id", id)
		ctx := logx.ContextWithRequest(pslog.ContextWithLogger(r.Context(), log), id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func withRequestLogging(lookup sessionLookupFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			var userID schema.UserID
			var sessionID string
			if lookup != nil {
				userID, sessionID = lookup(r)
			}
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			path := r.URL.Path
			if r.URL.RawQuery != "" {
				path = path + "?" + r.URL.RawQuery
			}
			logger := pslog.Ctx(r.Context()).With("remote", clientIP(r))
			if userID != "" {
				logger = logger.With("user", userID)
			}
			if sessionID != "" {
				logger = logger.With("http_session", sessionID)
			}
			logger.Info("http request", "method", r.Method, "path", path, "status", status, "bytes", ww.BytesWritten(), "duration_ms", time.Since(start).Milliseconds())
			logger.Debug("http request details", "ua", r.UserAgent())
		})
	}
}

func clientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}
	return r.RemoteAddr
}
