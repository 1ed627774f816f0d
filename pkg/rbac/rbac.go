package rbac

import (
	"fmt"
	"strings"
	"sync"
)

// Permission is a named grant in resource.action form (e.g. "agent.execute")
type Permission struct {
	Name        string
	Description string
	System      bool
}

// Role groups permissions and may inherit from other roles
type Role struct {
	Name        string
	Permissions map[string]bool
	Inherits    []string
	System      bool
}

// Engine owns the role/permission graph. The effective permission set of
// a role is the fixed point of the inherits-from relation, memoised per
// role and invalidated on any graph mutation.
type Engine struct {
	mu          sync.RWMutex
	permissions map[string]*Permission
	roles       map[string]*Role
	closure     map[string]map[string]bool // memoised effective sets
}

// NewEngine creates an empty permission engine.
func NewEngine() *Engine {
	return &Engine{
		permissions: make(map[string]*Permission),
		roles:       make(map[string]*Role),
		closure:     make(map[string]map[string]bool),
	}
}

// CreatePermission registers a permission name.
func (e *Engine) CreatePermission(name, description string, system bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.permissions[name]; ok {
		return fmt.Errorf("permission already exists: %s", name)
	}
	e.permissions[name] = &Permission{Name: name, Description: description, System: system}
	return nil
}

// DeletePermission removes a permission. System permissions are immutable.
func (e *Engine) DeletePermission(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	perm, ok := e.permissions[name]
	if !ok {
		return fmt.Errorf("permission not found: %s", name)
	}
	if perm.System {
		return fmt.Errorf("cannot delete system permission: %s", name)
	}
	delete(e.permissions, name)
	return nil
}

// CreateRole registers a role. The engine refuses parent lists that would
// introduce an inheritance cycle.
func (e *Engine) CreateRole(name string, permissions []string, inherits []string, system bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.roles[name]; ok {
		return fmt.Errorf("role already exists: %s", name)
	}
	for _, parent := range inherits {
		if _, ok := e.roles[parent]; !ok {
			return fmt.Errorf("unknown parent role: %s", parent)
		}
	}
	if e.wouldCycleLocked(name, inherits) {
		return fmt.Errorf("role %s would introduce an inheritance cycle", name)
	}

	permSet := make(map[string]bool, len(permissions))
	for _, p := range permissions {
		permSet[p] = true
	}
	e.roles[name] = &Role{
		Name:        name,
		Permissions: permSet,
		Inherits:    inherits,
		System:      system,
	}
	e.closure = make(map[string]map[string]bool)
	return nil
}

// DeleteRole removes a role. System roles and roles referenced as a
// parent cannot be deleted.
func (e *Engine) DeleteRole(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	role, ok := e.roles[name]
	if !ok {
		return fmt.Errorf("role not found: %s", name)
	}
	if role.System {
		return fmt.Errorf("cannot delete system role: %s", name)
	}
	for _, other := range e.roles {
		for _, parent := range other.Inherits {
			if parent == name {
				return fmt.Errorf("role %s is inherited by %s", name, other.Name)
			}
		}
	}
	delete(e.roles, name)
	e.closure = make(map[string]map[string]bool)
	return nil
}

// GrantPermission adds a permission to a role. System roles are immutable.
func (e *Engine) GrantPermission(roleName, permission string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	role, ok := e.roles[roleName]
	if !ok {
		return fmt.Errorf("role not found: %s", roleName)
	}
	if role.System {
		return fmt.Errorf("cannot modify system role: %s", roleName)
	}
	role.Permissions[permission] = true
	e.closure = make(map[string]map[string]bool)
	return nil
}

// EffectivePermissions returns the closure of a role's permission set over
// its inheritance graph.
func (e *Engine) EffectivePermissions(roleName string) (map[string]bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.roles[roleName]; !ok {
		return nil, fmt.Errorf("role not found: %s", roleName)
	}
	set := e.closureLocked(roleName)
	out := make(map[string]bool, len(set))
	for p := range set {
		out[p] = true
	}
	return out, nil
}

// Check reports whether the subject holds the required permission through
// any of its roles or direct grants. Wildcards of the form "prefix:*" are
// honoured in both roles and direct permissions.
func (e *Engine) Check(roles []string, direct []string, required string) bool {
	for _, p := range direct {
		if Match(p, required) {
			return true
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for _, roleName := range roles {
		if _, ok := e.roles[roleName]; !ok {
			continue
		}
		for p := range e.closureLocked(roleName) {
			if Match(p, required) {
				return true
			}
		}
	}
	return false
}

// closureLocked computes (or returns the memoised) effective permission
// set via DFS. The visited set breaks accidental cycles that predate the
// create-time check. Caller holds e.mu.
func (e *Engine) closureLocked(roleName string) map[string]bool {
	if cached, ok := e.closure[roleName]; ok {
		return cached
	}

	result := make(map[string]bool)
	visited := make(map[string]bool)

	var walk func(name string)
	walk = func(name string) {
		if visited[name] {
			return
		}
		visited[name] = true
		role, ok := e.roles[name]
		if !ok {
			return
		}
		for p := range role.Permissions {
			result[p] = true
		}
		for _, parent := range role.Inherits {
			walk(parent)
		}
	}
	walk(roleName)

	e.closure[roleName] = result
	return result
}

// wouldCycleLocked reports whether adding a role with the given parents
// would create a cycle. Caller holds e.mu.
func (e *Engine) wouldCycleLocked(name string, parents []string) bool {
	var reaches func(from, target string, visited map[string]bool) bool
	reaches = func(from, target string, visited map[string]bool) bool {
		if from == target {
			return true
		}
		if visited[from] {
			return false
		}
		visited[from] = true
		role, ok := e.roles[from]
		if !ok {
			return false
		}
		for _, parent := range role.Inherits {
			if reaches(parent, target, visited) {
				return true
			}
		}
		return false
	}

	for _, parent := range parents {
		if reaches(parent, name, make(map[string]bool)) {
			return true
		}
	}
	return false
}

// Match reports whether a granted permission satisfies a required one.
// A grant ending in ":*" matches any permission sharing its prefix.
func Match(granted, required string) bool {
	if granted == required {
		return true
	}
	if strings.HasSuffix(granted, ":*") {
		prefix := strings.TrimSuffix(granted, "*")
		return strings.HasPrefix(required, prefix)
	}
	return false
}
