// Package persist keeps small JSON state files on disk with atomic writes.
package persist

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"pkt.systems/pslog"
)

// RoleAssignment binds a policy subject to a role within a tenant.
type RoleAssignment struct {
	Subject string `json:"subject"`
	Role    string `json:"role"`
	Tenant  string `json:"tenant,omitempty"`
}

// RoleSnapshot captures every role assignment for persistence.
type RoleSnapshot struct {
	Assignments []RoleAssignment `json:"assignments"`
}

// Sort orders assignments by subject, role and tenant.
func (s *RoleSnapshot) Sort() {
	slices.SortFunc(s.Assignments, func(a, b RoleAssignment) int {
		if c := strings.Compare(a.Subject, b.Subject); c != 0 {
			return c
		}
		if c := strings.Compare(a.Role, b.Role); c != 0 {
			return c
		}
		return strings.Compare(a.Tenant, b.Tenant)
	})
}

// Store persists role snapshots to a single file.
type Store struct {
	path string
	log  pslog.Logger
}

// NewStore constructs a store writing to path.
func NewStore(path string) (*Store, error) {
	return NewStoreWithLogger(path, nil)
}

// NewStoreWithLogger constructs a store with logging.
func NewStoreWithLogger(path string, logger pslog.Logger) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("state path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}
	if logger != nil {
		logger = logger.With("state_path", path)
	}
	return &Store{path: path, log: logger}, nil
}

// Load reads the snapshot. ok is false when no snapshot has been saved yet.
func (s *Store) Load() (RoleSnapshot, bool, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.debug("roles load miss")
			return RoleSnapshot{}, false, nil
		}
		s.warn("roles load failed", err)
		return RoleSnapshot{}, false, err
	}
	var snapshot RoleSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		s.warn("roles load failed", err)
		return RoleSnapshot{}, false, err
	}
	s.debug("roles load ok", "assignments", len(snapshot.Assignments))
	return snapshot, true, nil
}

// Save writes the snapshot atomically.
func (s *Store) Save(snapshot RoleSnapshot) error {
	snapshot.Sort()
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		s.warn("roles save failed", err)
		return err
	}
	if err := WriteAtomic(s.path, data); err != nil {
		s.warn("roles save failed", err)
		return err
	}
	if s.log != nil {
		s.log.Trace("roles save ok", "assignments", len(snapshot.Assignments))
	}
	return nil
}

// WriteAtomic replaces path with data (mode 0600) through a synced temporary
// file in the same directory. Missing parent directories are created 0700.
func WriteAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "state-*.json")
	if err != nil {
		return err
	}
	cleanup := func() { _ = os.Remove(tmp.Name()) }
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		cleanup()
		return err
	}
	return nil
}

func (s *Store) debug(msg string, kv ...any) {
	if s.log != nil {
		s.log.Debug(msg, kv...)
	}
}

func (s *Store) warn(msg string, err error) {
	if s.log != nil {
		s.log.Warn(msg, "err", err)
	}
}
