package pdp

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"

	"github.com/google/mangle/analysis"
	"github.com/google/mangle/ast"
	_ "github.com/google/mangle/builtin"
	mengine "github.com/google/mangle/engine"
	"github.com/google/mangle/factstore"
	"github.com/google/mangle/parse"

	"pkt.systems/pslog"
	"pkt.systems/querydesk/internal/persist"
	"pkt.systems/querydesk/schema"
)

const basePolicy = `
Decl has_role(Subject, Role).
Decl grants(Role, Action, Resource).
Decl permit(Subject, Action, Resource).

permit(Subject, Action, Resource) :- has_role(Subject, Role), grants(Role, Action, Resource).
`

// Grant allows a role to perform an operation on a resource.
type Grant struct {
	Role     string
	Action   string
	Resource string
}

// MangleConfig configures the embedded engine.
type MangleConfig struct {
	// Rules is appended to the base program. It may add permit clauses.
	Rules  string
	Grants []Grant
	// Seed is used when the store holds no snapshot yet.
	Seed   []persist.RoleAssignment
	Store  *persist.Store
	Tenant string
	Logger pslog.Logger
}

// Mangle evaluates role grants with a Datalog program.
type Mangle struct {
	mu       sync.RWMutex
	info     *analysis.ProgramInfo
	syms     map[string]ast.PredicateSym
	grants   []Grant
	tenant   string
	subjects map[string]string
	roles    []persist.RoleAssignment
	facts    factstore.FactStoreWithRemove
	store    *persist.Store
	log      pslog.Logger
}

// NewMangle parses the program, loads role assignments and evaluates once.
func NewMangle(cfg MangleConfig) (*Mangle, error) {
	program := basePolicy
	if strings.TrimSpace(cfg.Rules) != "" {
		program += "\n" + cfg.Rules
	}
	unit, err := parse.Unit(strings.NewReader(program))
	if err != nil {
		return nil, fmt.Errorf("policy program: parse: %w", err)
	}
	info, err := analysis.AnalyzeOneUnit(unit, nil)
	if err != nil {
		return nil, fmt.Errorf("policy program: analyze: %w", err)
	}
	syms := make(map[string]ast.PredicateSym, len(info.Decls))
	for sym := range info.Decls {
		syms[sym.Symbol] = sym
	}
	for _, name := range []string{"has_role", "grants", "permit"} {
		if _, ok := syms[name]; !ok {
			return nil, fmt.Errorf("policy program: predicate %s is not declared", name)
		}
	}
	tenant := cfg.Tenant
	if tenant == "" {
		tenant = "default"
	}
	m := &Mangle{
		info:     info,
		syms:     syms,
		grants:   slices.Clone(cfg.Grants),
		tenant:   tenant,
		subjects: make(map[string]string),
		store:    cfg.Store,
		log:      cfg.Logger,
	}
	roles := cfg.Seed
	if cfg.Store != nil {
		snapshot, ok, err := cfg.Store.Load()
		if err != nil {
			return nil, fmt.Errorf("policy roles: %w", err)
		}
		if ok {
			roles = snapshot.Assignments
		}
	}
	for _, ra := range roles {
		if ra.Tenant == "" {
			ra.Tenant = tenant
		}
		m.roles = append(m.roles, ra)
		if _, ok := m.subjects[ra.Subject]; !ok {
			m.subjects[ra.Subject] = ""
		}
	}
	facts, err := m.evaluate(m.roles)
	if err != nil {
		return nil, err
	}
	m.facts = facts
	return m, nil
}

// LoadRules reads an optional rules file. An empty path yields no rules.
func LoadRules(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("policy rules: %w", err)
	}
	return string(data), nil
}

// SyncUser records the subject. Role assignments are untouched.
func (m *Mangle) SyncUser(_ context.Context, subject schema.PolicySubject) error {
	if strings.TrimSpace(subject.Key) == "" {
		return fmt.Errorf("sync user: %w", schema.ErrInvalidUser)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subjects[subject.Key] = subject.Email
	return nil
}

// Check reports whether permit(subject, operation, resource) is derived.
func (m *Mangle) Check(ctx context.Context, subject, operation, resource string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	want := []string{subject, operation, resource}
	found := false
	errStop := errors.New("stop")
	err := m.facts.GetFacts(ast.NewQuery(m.syms["permit"]), func(atom ast.Atom) error {
		if len(atom.Args) != len(want) {
			return nil
		}
		for i, arg := range atom.Args {
			c, ok := arg.(ast.Constant)
			if !ok || c.Symbol != want[i] {
				return nil
			}
		}
		found = true
		return errStop
	})
	if err != nil && !errors.Is(err, errStop) {
		return false, fmt.Errorf("policy query: %w", err)
	}
	return found, nil
}

// ListUsers returns every known subject with its roles, sorted by key.
func (m *Mangle) ListUsers(context.Context) ([]User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	users := make([]User, 0, len(m.subjects))
	for key, email := range m.subjects {
		u := User{Key: key, Email: email, Roles: []Role{}}
		for _, ra := range m.roles {
			if ra.Subject == key {
				u.Roles = append(u.Roles, Role{Role: ra.Role, Tenant: ra.Tenant})
			}
		}
		users = append(users, u)
	}
	slices.SortFunc(users, func(a, b User) int { return strings.Compare(a.Key, b.Key) })
	return users, nil
}

// AssignRole grants role to subject and persists the change.
func (m *Mangle) AssignRole(ctx context.Context, subject, role, tenant string) error {
	if strings.TrimSpace(subject) == "" || strings.TrimSpace(role) == "" {
		return fmt.Errorf("assign role: %w", schema.ErrInvalidRequest)
	}
	if tenant == "" {
		tenant = m.tenant
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	ra := persist.RoleAssignment{Subject: subject, Role: role, Tenant: tenant}
	if slices.Contains(m.roles, ra) {
		return nil
	}
	next := append(slices.Clone(m.roles), ra)
	if err := m.commitLocked(ctx, next); err != nil {
		return err
	}
	if _, ok := m.subjects[subject]; !ok {
		m.subjects[subject] = ""
	}
	return nil
}

// UnassignRole revokes role from subject and persists the change.
func (m *Mangle) UnassignRole(ctx context.Context, subject, role, tenant string) error {
	if strings.TrimSpace(subject) == "" || strings.TrimSpace(role) == "" {
		return fmt.Errorf("unassign role: %w", schema.ErrInvalidRequest)
	}
	if tenant == "" {
		tenant = m.tenant
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	ra := persist.RoleAssignment{Subject: subject, Role: role, Tenant: tenant}
	idx := slices.Index(m.roles, ra)
	if idx < 0 {
		return nil
	}
	next := slices.Delete(slices.Clone(m.roles), idx, idx+1)
	return m.commitLocked(ctx, next)
}

// commitLocked evaluates next, persists it and only then swaps it in. A
// failure at either step leaves memory and disk on the previous assignments.
func (m *Mangle) commitLocked(ctx context.Context, next []persist.RoleAssignment) error {
	facts, err := m.evaluate(next)
	if err != nil {
		return err
	}
	if m.store != nil {
		if err := m.store.Save(persist.RoleSnapshot{Assignments: slices.Clone(next)}); err != nil {
			return fmt.Errorf("policy roles: %w", err)
		}
	}
	m.roles = next
	m.facts = facts
	pslog.Ctx(ctx).Info("policy roles updated", "assignments", len(next))
	return nil
}

// evaluate derives the fact store for roles without touching m's state.
func (m *Mangle) evaluate(roles []persist.RoleAssignment) (factstore.FactStoreWithRemove, error) {
	store := factstore.NewSimpleInMemoryStore()
	for _, ra := range roles {
		if ra.Tenant != m.tenant {
			continue
		}
		store.Add(m.atom("has_role", ra.Subject, ra.Role))
	}
	for _, g := range m.grants {
		store.Add(m.atom("grants", g.Role, g.Action, g.Resource))
	}
	stats, err := mengine.EvalProgramWithStats(m.info, store)
	if err != nil {
		return nil, fmt.Errorf("policy evaluate: %w", err)
	}
	if m.log != nil {
		m.log.Debug("policy evaluated", "roles", len(roles), "grants", len(m.grants), "stats", fmt.Sprintf("%+v", stats))
	}
	return store, nil
}

func (m *Mangle) atom(pred string, args ...string) ast.Atom {
	terms := make([]ast.BaseTerm, len(args))
	for i, arg := range args {
		terms[i] = ast.String(arg)
	}
	return ast.Atom{Predicate: m.syms[pred], Args: terms}
}
