package cityauthz

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"
	"github.com/porthorian/cityauthz/pkg/authz"
	ccache "github.com/porthorian/cityauthz/pkg/cache"
	cerrors "github.com/porthorian/cityauthz/pkg/errors"
	"github.com/porthorian/cityauthz/pkg/storage"
)

type Config struct {
	Catalog            *authz.Catalog
	AssignmentStore    storage.AssignmentStore
	AssignmentCache    ccache.AssignmentCache
	AssignmentCacheTTL time.Duration
	Logger             logr.Logger
	Runtime            RuntimeConfig
}

// Client pairs the stateless engine with the collaborators that gather
// per-principal context (the assignment store and its cache).
type Client struct {
	engine        *authz.Engine
	store         storage.AssignmentStore
	cache         ccache.AssignmentCache
	cacheTTL      time.Duration
	logger        logr.Logger
	closeResource func() error

	// generations counts SetAssignments calls per subject (*atomic.Uint64) so a
	// read that raced a replacement never caches the list it replaced.
	generations sync.Map
}

var _ authz.Authorizer = (*Client)(nil)

func New(config Config) (*Client, error) {
	catalog := config.Catalog
	if catalog == nil {
		var err error
		catalog, err = authz.NewCatalog(authz.DefaultCatalogConfig())
		if err != nil {
			return nil, err
		}
	}

	closeResource, resolvedConfig, err := config.initialize(context.Background())
	if err != nil {
		return nil, err
	}

	return &Client{
		engine:        authz.NewEngine(catalog),
		store:         resolvedConfig.AssignmentStore,
		cache:         resolvedConfig.AssignmentCache,
		cacheTTL:      resolvedConfig.AssignmentCacheTTL,
		logger:        resolvedConfig.Logger,
		closeResource: closeResource,
	}, nil
}

func (c *Client) Engine() *authz.Engine {
	return c.engine
}

func (c *Client) Catalog() *authz.Catalog {
	return c.engine.Catalog()
}

func (c *Client) Permissions(role authz.Role) authz.PermissionSet {
	return c.engine.Permissions(role)
}

func (c *Client) HasPermission(role authz.Role, perm authz.Permission) bool {
	allowed := c.engine.HasPermission(role, perm)
	if !allowed {
		c.logger.V(2).Info("permission denied", "role", role.String(), "permission", perm.String())
	}
	return allowed
}

func (c *Client) CanAccessBuilding(role authz.Role, buildingID string, assigned ...string) bool {
	allowed := c.engine.CanAccessBuilding(role, buildingID, assigned...)
	if !allowed {
		c.logger.V(2).Info("building access denied", "role", role.String(), "building", buildingID, "assigned", len(assigned))
	}
	return allowed
}

func (c *Client) AccessibleBuildings(role authz.Role, candidates []string, assigned ...string) []string {
	return c.engine.AccessibleBuildings(role, candidates, assigned...)
}

func (c *Client) VisibleNavigation(role authz.Role) []authz.NavigationItem {
	return c.engine.VisibleNavigation(role)
}

// Assignments returns the subject's assigned buildings, reading through the cache.
// Without a configured store the list is empty, which denies every dynamic check.
func (c *Client) Assignments(ctx context.Context, subject string) ([]string, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" || c.store == nil {
		return []string{}, nil
	}

	if c.cache != nil {
		ids, ok, err := c.cache.GetAssignments(ctx, subject)
		if err != nil {
			c.logger.Error(err, "assignment cache read failed", "subject", subject)
		} else if ok {
			return ids, nil
		}
	}

	generation := c.generation(subject)
	observed := generation.Load()

	records, err := c.store.ListAssignmentsBySubject(ctx, subject)
	if err != nil {
		return []string{}, cerrors.Wrap(cerrors.CodeStorageUnavailable, "failed to load building assignments", err)
	}
	ids := storage.BuildingIDs(records)

	if c.cache != nil && generation.Load() == observed {
		if err := c.cache.SetAssignments(ctx, subject, ids, c.cacheTTL); err != nil {
			c.logger.Error(err, "assignment cache write failed", "subject", subject)
		}
		// A replacement that landed between the check and the write above.
		if generation.Load() != observed {
			if err := c.cache.DeleteAssignments(ctx, subject); err != nil {
				c.logger.Error(err, "assignment cache invalidation failed", "subject", subject)
			}
		}
	}
	return ids, nil
}

func (c *Client) generation(subject string) *atomic.Uint64 {
	value, _ := c.generations.LoadOrStore(subject, new(atomic.Uint64))
	return value.(*atomic.Uint64)
}

// CanAccessBuildingFor gathers assignments for dynamic-assignment roles before
// asking the engine. A store failure denies and is returned alongside false.
func (c *Client) CanAccessBuildingFor(ctx context.Context, role authz.Role, subject string, buildingID string) (bool, error) {
	rule := c.engine.Catalog().BuildingRule(role)
	if rule == nil || rule.Kind() != authz.BuildingRuleDynamicAssignment {
		return c.CanAccessBuilding(role, buildingID), nil
	}

	assigned, err := c.Assignments(ctx, subject)
	if err != nil {
		c.logger.Error(err, "denying building access without assignments", "role", role.String(), "subject", subject, "building", buildingID)
		return false, err
	}
	return c.CanAccessBuilding(role, buildingID, assigned...), nil
}

// SetAssignments replaces the subject's assignments and drops any cached copy.
func (c *Client) SetAssignments(ctx context.Context, subject string, buildingIDs []string) error {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return cerrors.New(cerrors.CodeInvalidInput, "subject is required")
	}
	if c.store == nil {
		return cerrors.Wrap(cerrors.CodeStorageUnavailable, "failed to store building assignments", cerrors.ErrMissingStore)
	}

	if err := c.store.ReplaceAssignments(ctx, subject, buildingIDs); err != nil {
		return cerrors.Wrap(cerrors.CodeStorageUnavailable, "failed to store building assignments", err)
	}
	// Bumped after the store write: reads that start later see the new rows.
	c.generation(subject).Add(1)

	if c.cache != nil {
		if err := c.cache.DeleteAssignments(ctx, subject); err != nil {
			return cerrors.Wrap(cerrors.CodeCacheUnavailable, "failed to invalidate cached assignments", err)
		}
	}
	return nil
}

func (c *Client) Close() error {
	if c == nil || c.closeResource == nil {
		return nil
	}

	err := c.closeResource()
	if err != nil {
		return cerrors.Wrap(cerrors.CodeUnknown, "failed to close client resources", err)
	}
	c.closeResource = nil
	c.store = nil
	c.cache = nil
	return nil
}
