package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/porthorian/cityauthz/pkg/cache"
)

var (
	ErrInvalidTTL = errors.New("redis cache: ttl must be greater than zero")
	ErrEmptyKey   = errors.New("redis cache: subject is required")
	ErrNilClient  = errors.New("redis cache: client is nil")
)

const defaultNamespace = "cityauthz"

type Config struct {
	Address     string
	Username    string
	Password    string
	Database    int
	Namespace   string
	DialTimeout time.Duration
}

type Adapter struct {
	client    goredis.UniversalClient
	namespace string
	owned     bool
}

var _ cache.AssignmentCache = (*Adapter)(nil)

func NewAdapter(config Config) *Adapter {
	client := goredis.NewClient(&goredis.Options{
		Addr:        config.Address,
		Username:    config.Username,
		Password:    config.Password,
		DB:          config.Database,
		DialTimeout: config.DialTimeout,
	})

	adapter := NewAdapterWithClient(client, config.Namespace)
	adapter.owned = true
	return adapter
}

// NewAdapterWithClient wraps a caller-owned client; Close leaves it open.
func NewAdapterWithClient(client goredis.UniversalClient, namespace string) *Adapter {
	namespace = strings.TrimSpace(namespace)
	if namespace == "" {
		namespace = defaultNamespace
	}
	return &Adapter{client: client, namespace: namespace}
}

func (a *Adapter) Ping(ctx context.Context) error {
	if a == nil || a.client == nil {
		return ErrNilClient
	}
	if err := a.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis cache: ping: %w", err)
	}
	return nil
}

func (a *Adapter) SetAssignments(ctx context.Context, subject string, buildingIDs []string, ttl time.Duration) error {
	if a == nil || a.client == nil {
		return ErrNilClient
	}
	if subject == "" {
		return ErrEmptyKey
	}
	if ttl <= 0 {
		return ErrInvalidTTL
	}
	if buildingIDs == nil {
		buildingIDs = []string{}
	}

	raw, err := json.Marshal(buildingIDs)
	if err != nil {
		return err
	}
	return a.client.Set(ctx, a.key(subject), raw, ttl).Err()
}

func (a *Adapter) GetAssignments(ctx context.Context, subject string) ([]string, bool, error) {
	if a == nil || a.client == nil {
		return nil, false, ErrNilClient
	}

	raw, err := a.client.Get(ctx, a.key(subject)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var ids []string
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil, false, fmt.Errorf("redis cache: decode assignments for %q: %w", subject, err)
	}
	return ids, true, nil
}

func (a *Adapter) DeleteAssignments(ctx context.Context, subject string) error {
	if a == nil || a.client == nil {
		return ErrNilClient
	}
	return a.client.Del(ctx, a.key(subject)).Err()
}

func (a *Adapter) Close() error {
	if a == nil || a.client == nil || !a.owned {
		return nil
	}
	return a.client.Close()
}

func (a *Adapter) key(subject string) string {
	return a.namespace + ":assignments:" + subject
}
