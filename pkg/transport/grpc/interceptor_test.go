package grpctransport

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/porthorian/cityauthz/pkg/authz"
	cerrors "github.com/porthorian/cityauthz/pkg/errors"
	"github.com/porthorian/cityauthz/pkg/identity"
)

const (
	methodSetpoint = "/city.sensors.v1.Sensors/SetSetpoint"
	methodBudgets  = "/city.finance.v1.Finance/ListBudgets"
	methodBuilding = "/city.buildings.v1.Buildings/Get"
	methodProfile  = "/city.accounts.v1.Accounts/Profile"
	methodHealth   = "/grpc.health.v1.Health/Check"
	methodUnknown  = "/city.misc.v1.Misc/Anything"
)

type fakeDecider struct {
	engine      *authz.Engine
	assignments map[string][]string
	err         error
}

func (f *fakeDecider) HasPermission(role authz.Role, perm authz.Permission) bool {
	return f.engine.HasPermission(role, perm)
}

func (f *fakeDecider) CanAccessBuildingFor(_ context.Context, role authz.Role, subject string, buildingID string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.engine.CanAccessBuilding(role, buildingID, f.assignments[subject]...), nil
}

func testConfig() Config {
	return Config{
		Methods: map[string]MethodPolicy{
			methodSetpoint: {Permissions: []authz.Permission{authz.PermissionControlSensors}, Building: true},
			methodBudgets:  {Permissions: []authz.Permission{authz.PermissionManageBudgets, authz.PermissionViewCosts}},
			methodBuilding: {Building: true},
			methodProfile:  {},
		},
		PublicMethods: []string{methodHealth},
	}
}

func incoming(pairs ...string) context.Context {
	return metadata.NewIncomingContext(context.Background(), metadata.Pairs(pairs...))
}

func TestUnaryInterceptor(t *testing.T) {
	decider := &fakeDecider{
		engine:      authz.NewEngine(nil),
		assignments: map[string][]string{"bm-1": {"school-1"}},
	}
	interceptor := UnaryInterceptor(decider, testConfig())

	var seen identity.Principal
	handler := func(ctx context.Context, req any) (any, error) {
		seen, _ = identity.PrincipalFromContext(ctx)
		return "ok", nil
	}

	call := func(ctx context.Context, method string) error {
		_, err := interceptor(ctx, nil, &grpc.UnaryServerInfo{FullMethod: method}, handler)
		return err
	}

	cases := []struct {
		name   string
		ctx    context.Context
		method string
		code   codes.Code
	}{
		{name: "public method", ctx: context.Background(), method: methodHealth, code: codes.OK},
		{name: "unlisted method", ctx: incoming(RoleMetadataKey, "admin"), method: methodUnknown, code: codes.PermissionDenied},
		{name: "missing role", ctx: context.Background(), method: methodBudgets, code: codes.Unauthenticated},
		{name: "invalid role", ctx: incoming(RoleMetadataKey, "root"), method: methodBudgets, code: codes.Unauthenticated},
		{name: "any permission", ctx: incoming(RoleMetadataKey, "building_manager"), method: methodBudgets, code: codes.OK},
		{name: "no permission", ctx: incoming(RoleMetadataKey, "user"), method: methodBudgets, code: codes.PermissionDenied},
		{name: "missing building", ctx: incoming(RoleMetadataKey, "admin"), method: methodSetpoint, code: codes.InvalidArgument},
		{name: "assigned building", ctx: incoming(RoleMetadataKey, "building_manager", SubjectMetadataKey, "bm-1", BuildingMetadataKey, "school-1"), method: methodSetpoint, code: codes.OK},
		{name: "unassigned building", ctx: incoming(RoleMetadataKey, "building_manager", SubjectMetadataKey, "bm-1", BuildingMetadataKey, "school-9"), method: methodSetpoint, code: codes.PermissionDenied},
		{name: "admin any building", ctx: incoming(RoleMetadataKey, "admin", BuildingMetadataKey, "school-9"), method: methodSetpoint, code: codes.OK},
		{name: "building only assigned", ctx: incoming(RoleMetadataKey, "user", SubjectMetadataKey, "bm-1", BuildingMetadataKey, "school-1"), method: methodBuilding, code: codes.OK},
		{name: "building only unassigned", ctx: incoming(RoleMetadataKey, "user", SubjectMetadataKey, "bm-1", BuildingMetadataKey, "school-9"), method: methodBuilding, code: codes.PermissionDenied},
		{name: "building only citizen town hall", ctx: incoming(RoleMetadataKey, "citizen", BuildingMetadataKey, authz.CitizenBuildingRathausHechingen), method: methodBuilding, code: codes.OK},
		{name: "building only missing building", ctx: incoming(RoleMetadataKey, "citizen"), method: methodBuilding, code: codes.InvalidArgument},
		{name: "building only missing role", ctx: incoming(BuildingMetadataKey, "school-1"), method: methodBuilding, code: codes.Unauthenticated},
		{name: "empty policy principal", ctx: incoming(RoleMetadataKey, "citizen"), method: methodProfile, code: codes.OK},
		{name: "empty policy no principal", ctx: context.Background(), method: methodProfile, code: codes.Unauthenticated},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.code, status.Code(call(tc.ctx, tc.method)))
		})
	}

	require.NoError(t, call(incoming(RoleMetadataKey, "building_manager", SubjectMetadataKey, "bm-1", BuildingMetadataKey, "school-1"), methodSetpoint))
	assert.Equal(t, authz.RoleBuildingManager, seen.Role)
	assert.Equal(t, "bm-1", seen.Subject)

	decider.err = cerrors.Wrap(cerrors.CodeStorageUnavailable, "failed to load building assignments", errors.New("store down"))
	err := call(incoming(RoleMetadataKey, "building_manager", SubjectMetadataKey, "bm-1", BuildingMetadataKey, "school-1"), methodSetpoint)
	assert.Equal(t, codes.Unavailable, status.Code(err))

	decider.err = errors.New("decoder bug")
	err = call(incoming(RoleMetadataKey, "building_manager", SubjectMetadataKey, "bm-1", BuildingMetadataKey, "school-1"), methodSetpoint)
	assert.Equal(t, codes.Internal, status.Code(err))
}

type fakeStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (f *fakeStream) Context() context.Context {
	return f.ctx
}

func TestStreamInterceptor(t *testing.T) {
	decider := &fakeDecider{engine: authz.NewEngine(nil)}
	interceptor := StreamInterceptor(decider, testConfig())

	var seen identity.Principal
	handler := func(srv any, stream grpc.ServerStream) error {
		seen, _ = identity.PrincipalFromContext(stream.Context())
		return nil
	}

	err := interceptor(nil, &fakeStream{ctx: incoming(RoleMetadataKey, "mayor")}, &grpc.StreamServerInfo{FullMethod: methodBudgets}, handler)
	require.NoError(t, err)
	assert.Equal(t, authz.RoleMayor, seen.Role)

	err = interceptor(nil, &fakeStream{ctx: incoming(RoleMetadataKey, "citizen")}, &grpc.StreamServerInfo{FullMethod: methodBudgets}, handler)
	assert.Equal(t, codes.PermissionDenied, status.Code(err))
}
