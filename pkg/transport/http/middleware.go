package httptransport

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-logr/logr"
	"github.com/porthorian/cityauthz/pkg/authz"
	cerrors "github.com/porthorian/cityauthz/pkg/errors"
	"github.com/porthorian/cityauthz/pkg/identity"
)

// Decider is the decision surface the transport needs. *cityauthz.Client satisfies it.
type Decider interface {
	authz.Authorizer
	Permissions(role authz.Role) authz.PermissionSet
	CanAccessBuildingFor(ctx context.Context, role authz.Role, subject string, buildingID string) (bool, error)
}

type PrincipalResolver interface {
	Resolve(r *http.Request) (identity.Principal, error)
}

type MiddlewareConfig struct {
	UnauthenticatedStatusCode int
	ForbiddenStatusCode       int
}

func DefaultConfig() MiddlewareConfig {
	return MiddlewareConfig{
		UnauthenticatedStatusCode: http.StatusUnauthorized,
		ForbiddenStatusCode:       http.StatusForbidden,
	}
}

type Middleware struct {
	decider  Decider
	resolver PrincipalResolver
	logger   logr.Logger
	config   MiddlewareConfig
}

func NewMiddleware(decider Decider, resolver PrincipalResolver, logger logr.Logger, config MiddlewareConfig) *Middleware {
	defaults := DefaultConfig()
	if config.UnauthenticatedStatusCode == 0 {
		config.UnauthenticatedStatusCode = defaults.UnauthenticatedStatusCode
	}
	if config.ForbiddenStatusCode == 0 {
		config.ForbiddenStatusCode = defaults.ForbiddenStatusCode
	}
	if logger.GetSink() == nil {
		logger = logr.Discard()
	}

	return &Middleware{
		decider:  decider,
		resolver: resolver,
		logger:   logger,
		config:   config,
	}
}

// Authenticate places the resolved principal on the request context.
// The Require* middlewares resolve on their own when it is missing.
func (m *Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, ok := m.principal(w, r)
		if !ok {
			return
		}
		next.ServeHTTP(w, r.WithContext(identity.WithPrincipal(r.Context(), principal)))
	})
}

func (m *Middleware) RequirePermission(perm authz.Permission) func(http.Handler) http.Handler {
	return m.RequireAnyPermission(perm)
}

// RequireAnyPermission passes when the role holds at least one of perms.
// An empty perms list never passes.
func (m *Middleware) RequireAnyPermission(perms ...authz.Permission) func(http.Handler) http.Handler {
	return m.requirePermissions(authz.NewPermissionSet(perms...), authz.HasAnyPermissions)
}

// RequireAllPermissions passes only when the role holds every one of perms.
// An empty list or an unknown permission never passes.
func (m *Middleware) RequireAllPermissions(perms ...authz.Permission) func(http.Handler) http.Handler {
	satisfied := authz.HasAllPermissions
	if len(perms) == 0 || !allValid(perms) {
		satisfied = func(authz.PermissionSet, authz.PermissionSet) bool { return false }
	}
	return m.requirePermissions(authz.NewPermissionSet(perms...), satisfied)
}

func allValid(perms []authz.Permission) bool {
	for _, perm := range perms {
		if !perm.Valid() {
			return false
		}
	}
	return true
}

func (m *Middleware) requirePermissions(required authz.PermissionSet, satisfied func(current authz.PermissionSet, required authz.PermissionSet) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := m.principal(w, r)
			if !ok {
				return
			}

			if satisfied(m.decider.Permissions(principal.Role), required) {
				next.ServeHTTP(w, r.WithContext(identity.WithPrincipal(r.Context(), principal)))
				return
			}

			m.logger.V(1).Info("permission check failed", "subject", principal.Subject, "role", principal.Role.String(), "required", required.Strings())
			writeError(w, m.config.ForbiddenStatusCode, cerrors.CodePermissionDenied, "permission denied")
		})
	}
}

// RequireBuilding guards a route scoped to the building id returned by buildingID.
func (m *Middleware) RequireBuilding(buildingID func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := m.principal(w, r)
			if !ok {
				return
			}

			id := buildingID(r)
			allowed, err := m.decider.CanAccessBuildingFor(r.Context(), principal.Role, principal.Subject, id)
			if err != nil {
				m.logger.Error(err, "building access check failed", "subject", principal.Subject, "building", id)
				writeError(w, failureStatus(err), cerrors.CodeOf(err), "building assignments unavailable")
				return
			}
			if !allowed {
				m.logger.V(1).Info("building check failed", "subject", principal.Subject, "role", principal.Role.String(), "building", id)
				writeError(w, m.config.ForbiddenStatusCode, cerrors.CodeBuildingDenied, "building access denied")
				return
			}

			next.ServeHTTP(w, r.WithContext(identity.WithPrincipal(r.Context(), principal)))
		})
	}
}

func (m *Middleware) principal(w http.ResponseWriter, r *http.Request) (identity.Principal, bool) {
	if principal, ok := identity.PrincipalFromContext(r.Context()); ok {
		return principal, true
	}

	principal, err := m.resolver.Resolve(r)
	if err != nil {
		if !errors.Is(err, identity.ErrNoPrincipal) {
			m.logger.V(1).Info("principal resolution failed", "error", err.Error())
		}
		writeError(w, m.config.UnauthenticatedStatusCode, cerrors.CodeUnauthenticated, "missing or invalid principal")
		return identity.Principal{}, false
	}
	return principal, true
}
