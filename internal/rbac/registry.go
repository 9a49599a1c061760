package rbac

import (
	"log/slog"
	"strings"
	"sync"
)

// Permission is a capability a principal may hold
type Permission string

const (
	PermissionRead    Permission = "READ"
	PermissionWrite   Permission = "WRITE"
	PermissionDelete  Permission = "DELETE"
	PermissionExecute Permission = "EXECUTE"
	PermissionAdmin   Permission = "ADMIN"
)

// Principal is a service account with a role, a permission set, and
// per-resource-type scope patterns. Immutable after registration; an
// administrative re-registration replaces the entry wholesale.
type Principal struct {
	ID             string                `json:"id" yaml:"id"`
	Role           string                `json:"role" yaml:"role"`
	Permissions    []Permission          `json:"permissions" yaml:"permissions"`
	ResourceScopes map[string][]string   `json:"resource_scopes,omitempty" yaml:"resource_scopes,omitempty"`
}

// actionPermissions maps request actions to the permission they require.
// Unknown actions are denied.
var actionPermissions = map[string]Permission{
	"read":    PermissionRead,
	"list":    PermissionRead,
	"get":     PermissionRead,
	"create":  PermissionWrite,
	"modify":  PermissionWrite,
	"write":   PermissionWrite,
	"delete":  PermissionDelete,
	"execute": PermissionExecute,
}

// resourcePermissions maps resource types to an additional permission the
// principal must hold on top of the action's permission.
var resourcePermissions = map[string]Permission{
	"production_model": PermissionWrite,
	"file_system":      PermissionWrite,
	"deployment":       PermissionExecute,
}

// Registry is the in-memory principal table with scope-aware permission
// checks. All methods are safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	principals map[string]*Principal
	logger     *slog.Logger
}

// NewRegistry creates an empty permission registry
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		principals: make(map[string]*Principal),
		logger:     logger,
	}
}

// Register adds or replaces a principal
func (r *Registry) Register(p *Principal) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.principals[p.ID] = p
	r.logger.Info("Principal registered", "principal_id", p.ID, "role", p.Role,
		"permissions", p.Permissions)
}

// Get returns the principal with the given ID
func (r *Registry) Get(principalID string) (*Principal, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.principals[principalID]
	return p, ok
}

// List returns all registered principals
func (r *Registry) List() []*Principal {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Principal, 0, len(r.principals))
	for _, p := range r.principals {
		out = append(out, p)
	}
	return out
}

// CheckPermission resolves whether a principal may perform an action on a
// resource. Resolution order: principal lookup, action permission, resource
// type permission, scope match. Any failed step denies. ADMIN implicitly
// satisfies every permission requirement but not scope.
func (r *Registry) CheckPermission(principalID, resourceType, resourceID, action string) bool {
	r.mu.RLock()
	p, ok := r.principals[principalID]
	r.mu.RUnlock()

	if !ok {
		r.logger.Warn("Permission check for unknown principal", "principal_id", principalID)
		return false
	}

	required, ok := actionPermissions[strings.ToLower(action)]
	if !ok {
		r.logger.Warn("Permission check for unknown action", "principal_id", principalID, "action", action)
		return false
	}

	if !r.holds(p, required) {
		return false
	}

	if resourceRequired, ok := resourcePermissions[resourceType]; ok {
		if !r.holds(p, resourceRequired) {
			return false
		}
	}

	return r.inScope(p, resourceType, resourceID)
}

// holds reports whether the principal has the permission or ADMIN
func (r *Registry) holds(p *Principal, required Permission) bool {
	for _, perm := range p.Permissions {
		if perm == required || perm == PermissionAdmin {
			return true
		}
	}
	return false
}

// inScope checks the principal's resource scope patterns against a resource.
// A wildcard "*" scope entry for all resources allows everything; otherwise
// the resource type must have an entry containing "*", the exact resource ID,
// or a "prefix/*" pattern whose prefix matches the resource ID.
func (r *Registry) inScope(p *Principal, resourceType, resourceID string) bool {
	if len(p.ResourceScopes) == 0 {
		return false
	}

	if patterns, ok := p.ResourceScopes["*"]; ok {
		for _, pattern := range patterns {
			if pattern == "*" {
				return true
			}
		}
	}

	patterns, ok := p.ResourceScopes[resourceType]
	if !ok {
		return false
	}

	for _, pattern := range patterns {
		if pattern == "*" || pattern == resourceID {
			return true
		}
		if strings.HasSuffix(pattern, "/*") {
			prefix := strings.TrimSuffix(pattern, "*")
			if strings.HasPrefix(resourceID, prefix) {
				return true
			}
		}
	}
	return false
}
