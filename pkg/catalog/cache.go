package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/menta2k/photo-annotator/pkg/types"
)

// Cache stores the last fetched product list
type Cache interface {
	// Get returns nil, nil on a miss
	Get(ctx context.Context, key string) ([]types.ProductRef, error)
	Set(ctx context.Context, key string, products []types.ProductRef) error
}

// RedisCache keeps product lists in redis as JSON with a TTL
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// RedisOptions holds the redis connection settings
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// NewRedisCache connects a cache to redis
func NewRedisCache(opts RedisOptions) *RedisCache {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	return &RedisCache{client: client, ttl: opts.TTL}
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]types.ProductRef, error) {
	data, err := c.client.Get(ctx, "products:"+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var products []types.ProductRef
	if err := json.Unmarshal(data, &products); err != nil {
		return nil, err
	}
	return products, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, products []types.ProductRef) error {
	data, err := json.Marshal(products)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, "products:"+key, data, c.ttl).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

// CachedClient serves the product list from a cache and refills it from
// the remote catalog on a miss. Cache failures only cost a remote fetch.
type CachedClient struct {
	fetcher Fetcher
	cache   Cache
	key     string
	logger  *zap.Logger
}

// NewCachedClient wraps fetcher with cache under key
func NewCachedClient(fetcher Fetcher, cache Cache, key string, logger *zap.Logger) *CachedClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedClient{fetcher: fetcher, cache: cache, key: key, logger: logger}
}

func (c *CachedClient) Fetch(ctx context.Context) ([]types.ProductRef, error) {
	cached, err := c.cache.Get(ctx, c.key)
	if err != nil {
		c.logger.Warn("failed to get cached products", zap.Error(err))
	}
	if cached != nil {
		c.logger.Debug("products cache hit", zap.String("key", c.key))
		return cached, nil
	}

	products, err := c.fetcher.Fetch(ctx)
	if err != nil {
		return nil, err
	}

	if err := c.cache.Set(ctx, c.key, products); err != nil {
		c.logger.Warn("failed to cache products", zap.Error(err))
	}
	return products, nil
}
