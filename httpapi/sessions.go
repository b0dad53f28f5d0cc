package httpapi

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"os"
	"strings"
	"sync"
	"time"

	"pkt.systems/pslog"
	"pkt.systems/querydesk/internal/persist"
	"pkt.systems/querydesk/schema"
)

// session is a logged in user. ctx is cancelled on logout or expiry so
// streams bound to the session end with it.
type session struct {
	id        string
	userID    schema.UserID
	expiresAt time.Time
	ctx       context.Context
	cancel    context.CancelFunc
}

// sessionStore maps bearer tokens to sessions. Tokens are only held as
// SHA-256 digests, in memory and on disk.
type sessionStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	baseCtx context.Context
	byHash  map[string]session
	path    string
	log     pslog.Logger
}

func newSessionStore(ttl time.Duration, path string, logger pslog.Logger) *sessionStore {
	if logger == nil {
		logger = pslog.NoopLogger()
	}
	store := &sessionStore{
		ttl:     ttl,
		baseCtx: context.Background(),
		byHash:  make(map[string]session),
		path:    strings.TrimSpace(path),
		log:     logger,
	}
	if store.path != "" {
		if err := store.load(); err != nil {
			store.log.Warn("session store load failed", "path", store.path, "err", err)
		}
	}
	return store
}

func tokenDigest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func (s *sessionStore) create(userID schema.UserID) (string, session) {
	token := randomToken(32)
	entry := s.bind(userID, time.Now().Add(s.ttl), randomToken(12))
	s.mu.Lock()
	s.byHash[tokenDigest(token)] = entry
	s.mu.Unlock()
	s.persist()
	s.sessionLogger(entry).Info("session created", "expires", entry.expiresAt.Format(time.RFC3339))
	return token, entry
}

// get returns the live session for token, evicting it when expired.
func (s *sessionStore) get(token string) (session, bool) {
	if token == "" {
		return session{}, false
	}
	key := tokenDigest(token)
	s.mu.Lock()
	entry, ok := s.byHash[key]
	expired := ok && time.Now().After(entry.expiresAt)
	if expired {
		delete(s.byHash, key)
	}
	s.mu.Unlock()
	switch {
	case !ok:
		return session{}, false
	case expired:
		entry.cancel()
		s.sessionLogger(entry).Info("session expired")
		s.persist()
		return session{}, false
	}
	return entry, true
}

func (s *sessionStore) delete(token string) {
	key := tokenDigest(token)
	s.mu.Lock()
	entry, ok := s.byHash[key]
	delete(s.byHash, key)
	s.mu.Unlock()
	if !ok {
		return
	}
	entry.cancel()
	s.sessionLogger(entry).Info("session deleted")
	s.persist()
}

// setBaseContext rebinds every session to ctx, typically the server lifetime.
func (s *sessionStore) setBaseContext(ctx context.Context) {
	if ctx == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.baseCtx = ctx
	for key, entry := range s.byHash {
		entry.cancel()
		entry.ctx, entry.cancel = context.WithCancel(ctx)
		s.byHash[key] = entry
	}
}

// bind builds a session whose context derives from the current base context.
func (s *sessionStore) bind(userID schema.UserID, expiresAt time.Time, id string) session {
	s.mu.Lock()
	parent := s.baseCtx
	s.mu.Unlock()
	ctx, cancel := context.WithCancel(parent)
	return session{id: id, userID: userID, expiresAt: expiresAt, ctx: ctx, cancel: cancel}
}

func (s *sessionStore) sessionLogger(entry session) pslog.Logger {
	return s.log.With("user", entry.userID, "http_session", entry.id)
}

func randomToken(size int) string {
	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(buf)
}

type sessionRecord struct {
	TokenSHA256 string    `json:"token_sha256"`
	SessionID   string    `json:"session_id"`
	UserID      string    `json:"user_id"`
	ExpiresAt   time.Time `json:"expires_at"`
}

type sessionFile struct {
	Version  int             `json:"version"`
	Sessions []sessionRecord `json:"sessions"`
}

const sessionFileVersion = 2

func (s *sessionStore) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	var file sessionFile
	if err := json.Unmarshal(data, &file); err != nil {
		return err
	}
	now := time.Now()
	entries := make(map[string]session)
	if file.Version == sessionFileVersion {
		for _, record := range file.Sessions {
			if len(record.TokenSHA256) != sha256.Size*2 || strings.TrimSpace(record.UserID) == "" || now.After(record.ExpiresAt) {
				continue
			}
			id := record.SessionID
			if id == "" {
				id = randomToken(12)
			}
			entries[record.TokenSHA256] = s.bind(schema.UserID(record.UserID), record.ExpiresAt, id)
		}
	}
	s.mu.Lock()
	s.byHash = entries
	s.mu.Unlock()
	if file.Version != sessionFileVersion || len(file.Sessions) != len(entries) {
		s.persist()
	}
	s.log.Info("session store loaded", "sessions", len(entries))
	return nil
}

func (s *sessionStore) persist() {
	if s.path == "" {
		return
	}
	data, err := json.MarshalIndent(sessionFile{Version: sessionFileVersion, Sessions: s.snapshot()}, "", "  ")
	if err == nil {
		err = persist.WriteAtomic(s.path, data)
	}
	if err != nil {
		s.log.Warn("session store save failed", "path", s.path, "err", err)
	}
}

func (s *sessionStore) snapshot() []sessionRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	records := make([]sessionRecord, 0, len(s.byHash))
	for key, entry := range s.byHash {
		records = append(records, sessionRecord{
			TokenSHA256: key,
			SessionID:   entry.id,
			UserID:      string(entry.userID),
			ExpiresAt:   entry.expiresAt,
		})
	}
	return records
}
