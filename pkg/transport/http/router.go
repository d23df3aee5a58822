package httptransport

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/go-logr/logr"
	"github.com/go-playground/validator/v10"

	"github.com/porthorian/cityauthz/pkg/authz"
	cerrors "github.com/porthorian/cityauthz/pkg/errors"
	"github.com/porthorian/cityauthz/pkg/identity"
)

type RouterConfig struct {
	RateLimit      int
	RateWindow     time.Duration
	AllowedOrigins []string
	Middleware     MiddlewareConfig
}

type navigationResponse struct {
	Role  string                 `json:"role"`
	Items []authz.NavigationItem `json:"items"`
}

type permissionsResponse struct {
	Role        string   `json:"role"`
	Permissions []string `json:"permissions"`
}

type permissionResponse struct {
	Role       string `json:"role"`
	Permission string `json:"permission"`
	Allowed    bool   `json:"allowed"`
}

type buildingResponse struct {
	Role     string `json:"role"`
	Building string `json:"building"`
	Allowed  bool   `json:"allowed"`
}

type decisionRequest struct {
	Role       string   `json:"role" validate:"required"`
	Permission string   `json:"permission" validate:"required_without=Building"`
	Building   string   `json:"building" validate:"required_without=Permission"`
	Assigned   []string `json:"assigned" validate:"omitempty,dive,required"`
}

type decisionResponse struct {
	Role              string `json:"role"`
	PermissionAllowed *bool  `json:"permission_allowed,omitempty"`
	BuildingAllowed   *bool  `json:"building_allowed,omitempty"`
}

type handler struct {
	decider  Decider
	logger   logr.Logger
	validate *validator.Validate
}

// NewRouter exposes the decision surface as JSON. Principal-scoped routes read
// the caller from resolver; /v1/decisions evaluates whatever role the body names.
func NewRouter(decider Decider, resolver PrincipalResolver, logger logr.Logger, config RouterConfig) http.Handler {
	if logger.GetSink() == nil {
		logger = logr.Discard()
	}
	if config.RateLimit <= 0 {
		config.RateLimit = 600
	}
	if config.RateWindow <= 0 {
		config.RateWindow = time.Minute
	}
	if len(config.AllowedOrigins) == 0 {
		config.AllowedOrigins = []string{"*"}
	}

	h := &handler{decider: decider, logger: logger, validate: validator.New()}
	gate := NewMiddleware(decider, resolver, logger, config.Middleware)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: config.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "X-City-Role", "X-City-Subject"},
		MaxAge:         300,
	}))
	r.Use(httprate.LimitByIP(config.RateLimit, config.RateWindow))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Post("/decisions", h.decide)

		r.Group(func(r chi.Router) {
			r.Use(gate.Authenticate)
			r.Get("/navigation", h.navigation)
			r.Get("/permissions", h.permissions)
			r.Get("/permissions/{permission}", h.permission)
			r.Get("/buildings/{buildingID}/access", h.buildingAccess)
		})
	})

	return r
}

func (h *handler) navigation(w http.ResponseWriter, r *http.Request) {
	principal, _ := identity.PrincipalFromContext(r.Context())
	writeJSON(w, http.StatusOK, navigationResponse{
		Role:  principal.Role.String(),
		Items: h.decider.VisibleNavigation(principal.Role),
	})
}

func (h *handler) permissions(w http.ResponseWriter, r *http.Request) {
	principal, _ := identity.PrincipalFromContext(r.Context())
	writeJSON(w, http.StatusOK, permissionsResponse{
		Role:        principal.Role.String(),
		Permissions: h.decider.Permissions(principal.Role).Strings(),
	})
}

func (h *handler) permission(w http.ResponseWriter, r *http.Request) {
	principal, _ := identity.PrincipalFromContext(r.Context())

	perm, err := authz.ParsePermission(chi.URLParam(r, "permission"))
	if err != nil {
		writeError(w, http.StatusBadRequest, cerrors.CodeOf(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, permissionResponse{
		Role:       principal.Role.String(),
		Permission: perm.String(),
		Allowed:    h.decider.HasPermission(principal.Role, perm),
	})
}

func (h *handler) buildingAccess(w http.ResponseWriter, r *http.Request) {
	principal, _ := identity.PrincipalFromContext(r.Context())
	buildingID := chi.URLParam(r, "buildingID")

	allowed, err := h.decider.CanAccessBuildingFor(r.Context(), principal.Role, principal.Subject, buildingID)
	if err != nil {
		h.logger.Error(err, "building access lookup failed", "subject", principal.Subject, "building", buildingID)
		writeError(w, failureStatus(err), cerrors.CodeOf(err), "building assignments unavailable")
		return
	}

	writeJSON(w, http.StatusOK, buildingResponse{
		Role:     principal.Role.String(),
		Building: buildingID,
		Allowed:  allowed,
	})
}

func (h *handler) decide(w http.ResponseWriter, r *http.Request) {
	var body decisionRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, cerrors.CodeInvalidInput, "malformed JSON body")
		return
	}

	if err := h.validate.Struct(body); err != nil {
		var validationErrs validator.ValidationErrors
		message := "invalid decision request"
		if errors.As(err, &validationErrs) && len(validationErrs) > 0 {
			message = "invalid field " + validationErrs[0].Field()
		}
		writeError(w, http.StatusBadRequest, cerrors.CodeInvalidInput, message)
		return
	}

	role, err := authz.ParseRole(body.Role)
	if err != nil {
		writeError(w, http.StatusBadRequest, cerrors.CodeOf(err), err.Error())
		return
	}

	response := decisionResponse{Role: role.String()}
	if body.Permission != "" {
		perm, err := authz.ParsePermission(body.Permission)
		if err != nil {
			writeError(w, http.StatusBadRequest, cerrors.CodeOf(err), err.Error())
			return
		}
		allowed := h.decider.HasPermission(role, perm)
		response.PermissionAllowed = &allowed
	}
	if body.Building != "" {
		allowed := h.decider.CanAccessBuilding(role, body.Building, body.Assigned...)
		response.BuildingAllowed = &allowed
	}

	writeJSON(w, http.StatusOK, response)
}
