package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"pkt.systems/pslog"
	"pkt.systems/querydesk/core"
	"pkt.systems/querydesk/internal/logx"
	"pkt.systems/querydesk/internal/pdp"
	"pkt.systems/querydesk/schema"
)

// Authenticator verifies username, password, and totp.
type Authenticator interface {
	Authenticate(username, password, totp string) error
}

// Deps holds the collaborators served over HTTP. Admin may be nil, in which
// case the policy administration routes answer 503.
type Deps struct {
	Pipeline core.Pipeline
	Users    core.UserDirectory
	Auth     Authenticator
	Admin    pdp.Admin
	Hub      *Hub
	// Logger receives session lifecycle events. Nil disables them.
	Logger pslog.Logger
}

// Server serves the HTTP API.
type Server struct {
	cfg      Config
	deps     Deps
	sessions *sessionStore
	basePath string
}

// NewServer constructs an HTTP server.
func NewServer(cfg Config, deps Deps) (*Server, error) {
	if deps.Pipeline == nil || deps.Users == nil || deps.Auth == nil {
		return nil, errors.New("httpapi: pipeline, users and auth are required")
	}
	if deps.Hub == nil {
		deps.Hub = NewHubWithLogger(0, deps.Logger)
	}
	if strings.TrimSpace(cfg.SessionCookie) == "" {
		cfg.SessionCookie = "querydesk_session"
	}
	if strings.TrimSpace(cfg.Tenant) == "" {
		cfg.Tenant = "default"
	}
	ttl := time.Duration(cfg.SessionTTLHours) * time.Hour
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Server{
		cfg:      cfg,
		deps:     deps,
		sessions: newSessionStore(ttl, cfg.SessionsPath, deps.Logger),
		basePath: normalizeBasePath(cfg.BasePath),
	}, nil
}

// SetBaseContext sets the parent context for session lifetimes.
func (s *Server) SetBaseContext(ctx context.Context) {
	if s == nil || ctx == nil {
		return
	}
	s.sessions.setBaseContext(ctx)
}

// Handler returns an http.Handler for the server.
func (s *Server) Handler() http.Handler {
	api := chi.NewRouter()
	api.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Post("/login", s.handleLogin)
		r.Post("/logout", s.handleLogout)
		r.Post("/agent", s.handleAgent)
		r.Get("/permit/users", s.requireSession(s.handlePermitUsers))
		r.Post("/roles/{action}", s.requireSession(s.handleRoles))
		r.Get("/stream", s.requireSession(s.handleStream))
	})

	root := chi.NewRouter()
	root.Use(
		middleware.Recoverer,
		withRequestID,
		withRequestLogging(s.lookupSession),
		cors.Handler(cors.Options{
			AllowedOrigins:   s.cfg.AllowedOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Last-Event-ID", requestIDHeader},
			ExposedHeaders:   []string{requestIDHeader},
			AllowCredentials: true,
			MaxAge:           300,
		}),
	)
	if s.basePath == "" {
		root.Mount("/", api)
		return root
	}
	root.Mount(s.basePath, api)
	return root
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "version": s.cfg.Version})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	log := logx.Ctx(r.Context()).With("remote", clientIP(r))
	var payload struct {
		Username string `json:"username"`
		Password string `json:"password"`
		TOTP     string `json:"totp"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		log.Warn("http login decode failed", "err", err)
		writeError(w, http.StatusBadRequest, err)
		return
	}
	log = log.With("user", payload.Username)
	if err := s.deps.Auth.Authenticate(payload.Username, payload.Password, payload.TOTP); err != nil {
		log.Warn("http login failed", "err", err)
		writeJSON(w, http.StatusUnauthorized, map[string]any{"success": false, "error": "Invalid username or password"})
		return
	}
	user, ok := s.deps.Users.Lookup(schema.UserID(payload.Username))
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"success": false, "error": "Invalid username or password"})
		return
	}
	token, sess := s.sessions.create(user.Username)
	http.SetCookie(w, &http.Cookie{
		Name:     s.cfg.SessionCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Expires:  sess.expiresAt,
	})
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "token": token, "user": user.Public()})
	log.Info("http login ok")
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	log := logx.Ctx(r.Context()).With("remote", clientIP(r))
	if token := s.sessionToken(r); token != "" {
		if entry, ok := s.sessions.get(token); ok {
			log = log.With("user", entry.userID, "http_session", entry.id)
		}
		s.sessions.delete(token)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     s.cfg.SessionCookie,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	log.Info("http logout")
}

func (s *Server) handleAgent(w http.ResponseWriter, r *http.Request) {
	log := logx.Ctx(r.Context()).With("remote", clientIP(r))
	var payload struct {
		Username *string `json:"username"`
		Query    *string `json:"query"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.Username == nil || payload.Query == nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Missing query or username in request"})
		return
	}
	userID := schema.UserID(*payload.Username)
	if _, ok := s.deps.Users.Lookup(userID); !ok {
		log.Warn("http agent unknown user", "user", userID)
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "Invalid username"})
		return
	}
	result := s.deps.Pipeline.Process(r.Context(), userID, *payload.Query)
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handlePermitUsers(w http.ResponseWriter, r *http.Request, _ schema.UserID) {
	if s.deps.Admin == nil {
		writeError(w, http.StatusServiceUnavailable, fmt.Errorf("policy administration %w", schema.ErrNotConfigured))
		return
	}
	users, err := s.deps.Admin.ListUsers(r.Context())
	if err != nil {
		logx.Ctx(r.Context()).Warn("http permit users failed", "err", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (s *Server) handleRoles(w http.ResponseWriter, r *http.Request, userID schema.UserID) {
	action := chi.URLParam(r, "action")
	if action != "add" && action != "remove" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Invalid action"})
		return
	}
	var payload struct {
		UserID string `json:"userId"`
		Role   string `json:"role"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || strings.TrimSpace(payload.UserID) == "" || strings.TrimSpace(payload.Role) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "User ID and role are required"})
		return
	}
	if s.deps.Admin == nil {
		writeError(w, http.StatusServiceUnavailable, fmt.Errorf("policy administration %w", schema.ErrNotConfigured))
		return
	}
	log := logx.Ctx(r.Context()).With("subject", payload.UserID, "role", payload.Role, "tenant", s.cfg.Tenant)
	var err error
	if action == "add" {
		err = s.deps.Admin.AssignRole(r.Context(), payload.UserID, payload.Role, s.cfg.Tenant)
	} else {
		err = s.deps.Admin.UnassignRole(r.Context(), payload.UserID, payload.Role, s.cfg.Tenant)
	}
	if err != nil {
		log.Warn("http role update failed", "action", action, "err", err)
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": fmt.Sprintf("Failed to %s role", action)})
		return
	}
	log.Info("http role updated", "action", action, "by", userID)
	past := "added"
	if action == "remove" {
		past = "removed"
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": fmt.Sprintf("Role %s successfully", past)})
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request, userID schema.UserID) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, errors.New("stream unsupported"))
		return
	}
	log := logx.WithUser(r.Context(), userID)
	sessCtx := sessionContext(r.Context())

	ch, unsubscribe := s.deps.Hub.Subscribe(userID)
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, ": connected\n\n")

	lastID := parseUint(r.Header.Get("Last-Event-ID"))
	sent := lastID
	replayCount := 0
	if lastID > 0 {
		for _, event := range s.deps.Hub.Replay(userID, lastID) {
			_ = writeSSEvent(w, event)
			sent = event.Seq
			replayCount++
		}
	}
	flusher.Flush()

	log.Info("http stream opened", "last_id", lastID, "replay", replayCount)
	for {
		select {
		case <-r.Context().Done():
			log.Info("http stream closed")
			return
		case <-sessCtx.Done():
			log.Info("http stream closed", "reason", "session ended")
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			if event.Seq <= sent {
				continue
			}
			_ = writeSSEvent(w, event)
			sent = event.Seq
			flusher.Flush()
		}
	}
}

func (s *Server) requireSession(next func(http.ResponseWriter, *http.Request, schema.UserID)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logx.Ctx(r.Context()).With("remote", clientIP(r))
		token := s.sessionToken(r)
		if token == "" {
			log.Warn("http session missing")
			writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "No authorization token provided"})
			return
		}
		entry, ok := s.sessions.get(token)
		if !ok {
			log.Warn("http session invalid")
			writeError(w, http.StatusUnauthorized, errors.New("invalid session"))
			return
		}
		log = log.With("user", entry.userID, "http_session", entry.id)
		ctx := logx.ContextWithUserLogger(r.Context(), log, entry.userID)
		ctx = context.WithValue(ctx, sessionContextKey{}, entry)
		next(w, r.WithContext(ctx), entry.userID)
	}
}

type sessionContextKey struct{}

// sessionContext returns the session lifetime context stored by
// requireSession, or a context that never ends when there is none.
func sessionContext(ctx context.Context) context.Context {
	if sess, ok := ctx.Value(sessionContextKey{}).(session); ok && sess.ctx != nil {
		return sess.ctx
	}
	return context.Background()
}

// sessionToken reads the bearer token first, then the session cookie.
func (s *Server) sessionToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		if token, ok := strings.CutPrefix(header, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	cookie, err := r.Cookie(s.cfg.SessionCookie)
	if err != nil {
		return ""
	}
	return cookie.Value
}

func (s *Server) lookupSession(r *http.Request) (schema.UserID, string) {
	if s == nil || r == nil {
		return "", ""
	}
	token := s.sessionToken(r)
	if token == "" {
		return "", ""
	}
	entry, ok := s.sessions.get(token)
	if !ok {
		return "", ""
	}
	return entry.userID, entry.id
}

func decodeJSON(body io.Reader, target any) error {
	decoder := json.NewDecoder(body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(target)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	data, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{"error": err.Error()})
}

func writeSSEvent(w http.ResponseWriter, event StreamEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if event.Seq > 0 {
		_, _ = fmt.Fprintf(w, "id: %d\n", event.Seq)
	}
	_, _ = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, data)
	return nil
}

func parseUint(value string) uint64 {
	if value == "" {
		return 0
	}
	parsed, err := strconv.ParseUint(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return 0
	}
	return parsed
}
