// Package authz resolves actor identities to roles and barangay scope.
// Role assignments are casbin grouping policies scoped by barangay domain.
package authz

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	"go.uber.org/zap"

	"github.com/garyjia/barangay-lifecycle/internal/application/port"
	"github.com/garyjia/barangay-lifecycle/internal/domain/workflow"
)

// anyDomain is the casbin domain of assignments that are not tied to one barangay
const anyDomain = "*"

const rbacModel = `
[request_definition]
r = sub, dom, act

[policy_definition]
p = sub, dom, act

[role_definition]
g = _, _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub, r.dom) && (p.dom == "*" || p.dom == r.dom) && r.act == p.act
`

// Authorizer implements port.AuthorizationContext over a staff directory
type Authorizer struct {
	mu                  sync.RWMutex
	enforcer            *casbin.Enforcer
	barangays           map[string]string
	residentSelfService bool
	logger              *zap.Logger
}

// NewAuthorizer builds an enforcer from the directory
func NewAuthorizer(dir *Directory, logger *zap.Logger) (*Authorizer, error) {
	a := &Authorizer{logger: logger}
	if err := a.Load(dir); err != nil {
		return nil, err
	}
	return a, nil
}

// Load replaces all assignments with the directory's contents
func (a *Authorizer) Load(dir *Directory) error {
	if err := dir.Validate(); err != nil {
		return err
	}

	m, err := model.NewModelFromString(rbacModel)
	if err != nil {
		return fmt.Errorf("authz: failed to parse model: %w", err)
	}
	enforcer, err := casbin.NewEnforcer(m)
	if err != nil {
		return fmt.Errorf("authz: failed to initialize enforcer: %w", err)
	}

	for _, role := range workflow.AllRoles() {
		if _, err := enforcer.AddPolicy(string(role), anyDomain, action(role)); err != nil {
			return fmt.Errorf("authz: failed to add policy for %s: %w", role, err)
		}
	}

	barangays := make(map[string]string, len(dir.Members))
	for _, member := range dir.Members {
		identity := strings.TrimSpace(member.Identity)
		barangay := strings.TrimSpace(member.Barangay)
		barangays[identity] = barangay

		for _, role := range member.Roles {
			if _, err := enforcer.AddGroupingPolicy(identity, string(role), domainFor(role, barangay)); err != nil {
				return fmt.Errorf("authz: failed to assign %s to %s: %w", role, identity, err)
			}
		}
	}

	a.mu.Lock()
	a.enforcer = enforcer
	a.barangays = barangays
	a.residentSelfService = dir.ResidentSelfService
	a.mu.Unlock()

	a.logger.Info("Staff directory loaded",
		zap.Int("members", len(dir.Members)),
		zap.Bool("resident_self_service", dir.ResidentSelfService))
	return nil
}

// HasRole reports whether identity may act as role
func (a *Authorizer) HasRole(_ context.Context, identity string, role workflow.Role) (bool, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	barangay, listed := a.barangays[identity]
	if !listed {
		return role == workflow.RoleResident && a.residentSelfService, nil
	}

	ok, err := a.enforcer.Enforce(identity, domainFor(role, barangay), action(role))
	if err != nil {
		return false, fmt.Errorf("authz: enforce failed: %w", err)
	}
	return ok, nil
}

// BarangayScopeOf returns the barangay assigned to identity
func (a *Authorizer) BarangayScopeOf(_ context.Context, identity string) (string, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	barangay, listed := a.barangays[identity]
	if !listed {
		return "", fmt.Errorf("%w: %s is not in the staff directory", workflow.ErrUnauthorized, identity)
	}
	return barangay, nil
}

func action(role workflow.Role) string {
	return "act:" + string(role)
}

func domainFor(role workflow.Role, barangay string) string {
	if role == workflow.RoleSuperAdmin || barangay == "" {
		return anyDomain
	}
	return barangay
}

// Verify interface compliance
var _ port.AuthorizationContext = (*Authorizer)(nil)
