// Package identity extracts an already-authenticated principal from a request.
// Nothing here verifies credentials; resolvers trust what an upstream gateway set.
package identity

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/porthorian/cityauthz/pkg/authz"
)

type Principal struct {
	Subject string
	Role    authz.Role
}

// Resolver reports ok=false when the request carries nothing it understands.
type Resolver interface {
	Name() string
	Resolve(r *http.Request) (Principal, bool, error)
}

// Registry tries resolvers in registration order and returns the first match.
type Registry struct {
	resolvers []Resolver
	names     map[string]struct{}
}

var (
	ErrNilResolver   = errors.New("identity: resolver is nil")
	ErrEmptyName     = errors.New("identity: resolver name is empty")
	ErrDuplicateName = errors.New("identity: resolver already exists")
	ErrNoPrincipal   = errors.New("identity: no principal on request")
	ErrInvalidRole   = errors.New("identity: invalid role")
)

const (
	defaultRoleHeader = "X-City-Role"
	defaultSubjHeader = "X-City-Subject"
)

func NewRegistry(resolvers ...Resolver) (*Registry, error) {
	r := &Registry{
		names: map[string]struct{}{},
	}

	for _, resolver := range resolvers {
		if err := r.Register(resolver); err != nil {
			return nil, err
		}
	}

	return r, nil
}

func (r *Registry) Register(resolver Resolver) error {
	if resolver == nil {
		return ErrNilResolver
	}

	name := resolver.Name()
	if name == "" {
		return ErrEmptyName
	}

	if _, exists := r.names[name]; exists {
		return ErrDuplicateName
	}

	r.names[name] = struct{}{}
	r.resolvers = append(r.resolvers, resolver)
	return nil
}

func (r *Registry) Resolve(req *http.Request) (Principal, error) {
	for _, resolver := range r.resolvers {
		principal, ok, err := resolver.Resolve(req)
		if err != nil {
			return Principal{}, err
		}
		if ok {
			return principal, nil
		}
	}
	return Principal{}, ErrNoPrincipal
}

// HeaderResolver reads the role and subject an upstream proxy injected.
type HeaderResolver struct {
	RoleHeader    string
	SubjectHeader string
}

func NewHeaderResolver() HeaderResolver {
	return HeaderResolver{RoleHeader: defaultRoleHeader, SubjectHeader: defaultSubjHeader}
}

func (h HeaderResolver) Name() string {
	return "header"
}

func (h HeaderResolver) Resolve(r *http.Request) (Principal, bool, error) {
	raw := strings.TrimSpace(r.Header.Get(h.roleHeader()))
	if raw == "" {
		return Principal{}, false, nil
	}

	role, err := authz.ParseRole(raw)
	if err != nil {
		return Principal{}, false, errors.Join(ErrInvalidRole, err)
	}

	return Principal{
		Subject: strings.TrimSpace(r.Header.Get(h.subjectHeader())),
		Role:    role,
	}, true, nil
}

func (h HeaderResolver) roleHeader() string {
	if h.RoleHeader == "" {
		return defaultRoleHeader
	}
	return h.RoleHeader
}

func (h HeaderResolver) subjectHeader() string {
	if h.SubjectHeader == "" {
		return defaultSubjHeader
	}
	return h.SubjectHeader
}

type principalKey struct{}

func WithPrincipal(ctx context.Context, principal Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, principal)
}

func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	principal, ok := ctx.Value(principalKey{}).(Principal)
	return principal, ok
}
