package grpctransport

import (
	"context"
	"strings"

	"github.com/go-logr/logr"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/porthorian/cityauthz/pkg/authz"
	cerrors "github.com/porthorian/cityauthz/pkg/errors"
	"github.com/porthorian/cityauthz/pkg/identity"
)

const (
	RoleMetadataKey     = "x-city-role"
	SubjectMetadataKey  = "x-city-subject"
	BuildingMetadataKey = "x-city-building"
)

type Decider interface {
	HasPermission(role authz.Role, perm authz.Permission) bool
	CanAccessBuildingFor(ctx context.Context, role authz.Role, subject string, buildingID string) (bool, error)
}

// MethodPolicy is satisfied when the principal holds any of Permissions and,
// if Building is set, may access the building named in the request metadata.
// An empty Permissions list adds no permission requirement: the method then
// needs only a valid principal plus, with Building set, building access.
type MethodPolicy struct {
	Permissions []authz.Permission
	Building    bool
}

// Config maps full method names ("/pkg.Service/Method") to policies.
// Methods in neither Methods nor PublicMethods are denied.
type Config struct {
	Methods       map[string]MethodPolicy
	PublicMethods []string
	Logger        logr.Logger
}

type guard struct {
	decider Decider
	methods map[string]MethodPolicy
	public  map[string]struct{}
	logger  logr.Logger
}

func newGuard(decider Decider, config Config) *guard {
	logger := config.Logger
	if logger.GetSink() == nil {
		logger = logr.Discard()
	}

	g := &guard{
		decider: decider,
		methods: make(map[string]MethodPolicy, len(config.Methods)),
		public:  make(map[string]struct{}, len(config.PublicMethods)),
		logger:  logger,
	}
	for method, policy := range config.Methods {
		policy.Permissions = append([]authz.Permission(nil), policy.Permissions...)
		g.methods[method] = policy
	}
	for _, method := range config.PublicMethods {
		g.public[method] = struct{}{}
	}
	return g
}

func UnaryInterceptor(decider Decider, config Config) grpc.UnaryServerInterceptor {
	g := newGuard(decider, config)
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		ctx, err := g.authorize(ctx, info.FullMethod)
		if err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

func StreamInterceptor(decider Decider, config Config) grpc.StreamServerInterceptor {
	g := newGuard(decider, config)
	return func(srv any, stream grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		ctx, err := g.authorize(stream.Context(), info.FullMethod)
		if err != nil {
			return err
		}
		return handler(srv, &principalStream{ServerStream: stream, ctx: ctx})
	}
}

func (g *guard) authorize(ctx context.Context, method string) (context.Context, error) {
	if _, ok := g.public[method]; ok {
		return ctx, nil
	}

	policy, ok := g.methods[method]
	if !ok {
		g.logger.V(1).Info("method has no policy", "method", method)
		return ctx, status.Error(codes.PermissionDenied, "method is not authorized")
	}

	principal, err := principalFromMetadata(ctx)
	if err != nil {
		return ctx, err
	}

	if len(policy.Permissions) > 0 && !g.hasAny(principal.Role, policy.Permissions) {
		g.logger.V(1).Info("permission denied", "method", method, "role", principal.Role.String(), "subject", principal.Subject)
		return ctx, status.Error(codes.PermissionDenied, "permission denied")
	}

	if policy.Building {
		buildingID := firstValue(ctx, BuildingMetadataKey)
		if buildingID == "" {
			return ctx, status.Error(codes.InvalidArgument, "missing building id")
		}

		allowed, err := g.decider.CanAccessBuildingFor(ctx, principal.Role, principal.Subject, buildingID)
		if err != nil {
			g.logger.Error(err, "building access check failed", "method", method, "building", buildingID)
			return ctx, status.Error(failureCode(err), "building assignments unavailable")
		}
		if !allowed {
			g.logger.V(1).Info("building denied", "method", method, "role", principal.Role.String(), "building", buildingID)
			return ctx, status.Error(codes.PermissionDenied, "building access denied")
		}
	}

	return identity.WithPrincipal(ctx, principal), nil
}

func (g *guard) hasAny(role authz.Role, perms []authz.Permission) bool {
	for _, perm := range perms {
		if g.decider.HasPermission(role, perm) {
			return true
		}
	}
	return false
}

func failureCode(err error) codes.Code {
	if cerrors.IsInternalCode(err) {
		return codes.Unavailable
	}
	return codes.Internal
}

func principalFromMetadata(ctx context.Context) (identity.Principal, error) {
	raw := firstValue(ctx, RoleMetadataKey)
	if raw == "" {
		return identity.Principal{}, status.Error(codes.Unauthenticated, "missing role metadata")
	}

	role, err := authz.ParseRole(raw)
	if err != nil {
		return identity.Principal{}, status.Error(codes.Unauthenticated, "invalid role metadata")
	}

	return identity.Principal{
		Subject: firstValue(ctx, SubjectMetadataKey),
		Role:    role,
	}, nil
}

func firstValue(ctx context.Context, key string) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	values := md.Get(key)
	if len(values) == 0 {
		return ""
	}
	return strings.TrimSpace(values[0])
}

type principalStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *principalStream) Context() context.Context {
	return s.ctx
}
