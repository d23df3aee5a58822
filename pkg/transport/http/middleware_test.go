package httptransport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/porthorian/cityauthz/pkg/authz"
	cerrors "github.com/porthorian/cityauthz/pkg/errors"
	"github.com/porthorian/cityauthz/pkg/identity"
)

type fakeDecider struct {
	*authz.Engine
	assignments map[string][]string
	err         error
}

func newFakeDecider() *fakeDecider {
	return &fakeDecider{
		Engine:      authz.NewEngine(nil),
		assignments: map[string][]string{},
	}
}

func (f *fakeDecider) CanAccessBuildingFor(_ context.Context, role authz.Role, subject string, buildingID string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.CanAccessBuilding(role, buildingID, f.assignments[subject]...), nil
}

func newHeaderRegistry(t *testing.T) *identity.Registry {
	t.Helper()

	registry, err := identity.NewRegistry(identity.NewHeaderResolver())
	require.NoError(t, err)
	return registry
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}

func request(role string, subject string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if role != "" {
		req.Header.Set("X-City-Role", role)
	}
	if subject != "" {
		req.Header.Set("X-City-Subject", subject)
	}
	return req
}

func TestRequirePermission(t *testing.T) {
	m := NewMiddleware(newFakeDecider(), newHeaderRegistry(t), logr.Discard(), MiddlewareConfig{})
	h := m.RequirePermission(authz.PermissionControlSensors)(okHandler())

	cases := []struct {
		name   string
		role   string
		status int
	}{
		{name: "admin", role: "admin", status: http.StatusNoContent},
		{name: "building manager", role: "building_manager", status: http.StatusNoContent},
		{name: "mayor", role: "mayor", status: http.StatusForbidden},
		{name: "citizen", role: "citizen", status: http.StatusForbidden},
		{name: "missing role", role: "", status: http.StatusUnauthorized},
		{name: "unknown role", role: "superuser", status: http.StatusUnauthorized},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, request(tc.role, "subject-1"))
			assert.Equal(t, tc.status, rec.Code)
		})
	}
}

func TestRequireAnyPermission(t *testing.T) {
	m := NewMiddleware(newFakeDecider(), newHeaderRegistry(t), logr.Discard(), MiddlewareConfig{})
	h := m.RequireAnyPermission(authz.PermissionManageUsers, authz.PermissionViewPublicData)(okHandler())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, request("citizen", ""))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	h = m.RequireAnyPermission()(okHandler())
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, request("admin", ""))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRequireAllPermissions(t *testing.T) {
	m := NewMiddleware(newFakeDecider(), newHeaderRegistry(t), logr.Discard(), MiddlewareConfig{})

	cases := []struct {
		name   string
		perms  []authz.Permission
		role   string
		status int
	}{
		{name: "admin holds both", perms: []authz.Permission{authz.PermissionManageUsers, authz.PermissionControlSensors}, role: "admin", status: http.StatusNoContent},
		{name: "manager holds both", perms: []authz.Permission{authz.PermissionControlSensors, authz.PermissionViewAssignedBuildings}, role: "building_manager", status: http.StatusNoContent},
		{name: "manager lacks one", perms: []authz.Permission{authz.PermissionControlSensors, authz.PermissionManageUsers}, role: "building_manager", status: http.StatusForbidden},
		{name: "citizen lacks both", perms: []authz.Permission{authz.PermissionManageUsers, authz.PermissionControlSensors}, role: "citizen", status: http.StatusForbidden},
		{name: "empty list", perms: nil, role: "admin", status: http.StatusForbidden},
		{name: "unknown permission", perms: []authz.Permission{authz.PermissionViewPublicData, authz.Permission(200)}, role: "admin", status: http.StatusForbidden},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			m.RequireAllPermissions(tc.perms...)(okHandler()).ServeHTTP(rec, request(tc.role, ""))
			assert.Equal(t, tc.status, rec.Code)
		})
	}
}

func TestRequireBuilding(t *testing.T) {
	decider := newFakeDecider()
	decider.assignments["bm-1"] = []string{"school-1"}

	m := NewMiddleware(decider, newHeaderRegistry(t), logr.Discard(), MiddlewareConfig{})
	h := m.RequireBuilding(func(r *http.Request) string { return r.URL.Query().Get("building") })(okHandler())

	serve := func(role string, subject string, building string) int {
		req := request(role, subject)
		req.URL.RawQuery = "building=" + building
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusNoContent, serve("building_manager", "bm-1", "school-1"))
	assert.Equal(t, http.StatusForbidden, serve("building_manager", "bm-1", "school-2"))
	assert.Equal(t, http.StatusForbidden, serve("building_manager", "bm-2", "school-1"))
	assert.Equal(t, http.StatusNoContent, serve("citizen", "", authz.CitizenBuildingRathausHechingen))
	assert.Equal(t, http.StatusForbidden, serve("citizen", "", "school-1"))
	assert.Equal(t, http.StatusNoContent, serve("mayor", "", "anything"))

	decider.err = cerrors.Wrap(cerrors.CodeStorageUnavailable, "failed to load building assignments", errors.New("store down"))
	assert.Equal(t, http.StatusServiceUnavailable, serve("building_manager", "bm-1", "school-1"))

	decider.err = errors.New("decoder bug")
	assert.Equal(t, http.StatusInternalServerError, serve("building_manager", "bm-1", "school-1"))
}

func TestMiddlewareUsesPrincipalFromContext(t *testing.T) {
	m := NewMiddleware(newFakeDecider(), newHeaderRegistry(t), logr.Discard(), MiddlewareConfig{ForbiddenStatusCode: http.StatusNotFound})
	h := m.RequirePermission(authz.PermissionManageBudgets)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(identity.WithPrincipal(req.Context(), identity.Principal{Role: authz.RoleUser}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
