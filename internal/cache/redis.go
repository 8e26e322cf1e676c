package cache

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"strconv"
	"time"

	crerr "github.com/cockroachdb/errors"
	"github.com/fortuna/touchline/internal/fetch"
	"github.com/redis/go-redis/v9"
)

const pageKeyPrefix = "touchline:page:"

// RedisCache stores fetched pages so repeated scrapes of the same URL, for
// example a re-run backfill, do not hit the site again.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates a new Redis cache connection
func NewRedisCache(redisURL string) (*RedisCache, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, crerr.Wrap(err, "parse redis url")
	}

	client := redis.NewClient(opt)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, crerr.Wrap(err, "ping redis")
	}

	return &RedisCache{
		client: client,
	}, nil
}

// Close closes the Redis connection
func (rc *RedisCache) Close() error {
	return rc.client.Close()
}

// Client returns the underlying Redis client
func (rc *RedisCache) Client() *redis.Client {
	return rc.client
}

// HealthCheck pings Redis to verify connection
func (rc *RedisCache) HealthCheck(ctx context.Context) error {
	return rc.client.Ping(ctx).Err()
}

// PageKey is the Redis key a URL's page is stored under.
func PageKey(url string) string {
	sum := sha1.Sum([]byte(url))
	return pageKeyPrefix + hex.EncodeToString(sum[:])
}

// GetPage returns the cached page for url. A missing key is a miss, not an
// error.
func (rc *RedisCache) GetPage(ctx context.Context, url string) (fetch.RawPage, bool, error) {
	fields, err := rc.client.HGetAll(ctx, PageKey(url)).Result()
	if err != nil {
		return fetch.RawPage{}, false, crerr.Wrap(err, "read cached page")
	}
	if len(fields) == 0 || fields["content"] == "" {
		return fetch.RawPage{}, false, nil
	}

	status, _ := strconv.Atoi(fields["status"])
	fetchedAt, _ := time.Parse(time.RFC3339Nano, fields["fetched_at"])
	return fetch.RawPage{
		URL:         url,
		Content:     []byte(fields["content"]),
		ContentType: fields["content_type"],
		Status:      status,
		FetchedAt:   fetchedAt,
	}, true, nil
}

// SetPage stores page under its URL for ttl.
func (rc *RedisCache) SetPage(ctx context.Context, page fetch.RawPage, ttl time.Duration) error {
	key := PageKey(page.URL)
	_, err := rc.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key,
			"url", page.URL,
			"content", page.Content,
			"content_type", page.ContentType,
			"status", page.Status,
			"fetched_at", page.FetchedAt.UTC().Format(time.RFC3339Nano),
		)
		pipe.Expire(ctx, key, ttl)
		return nil
	})
	if err != nil {
		return crerr.Wrap(err, "write cached page")
	}
	return nil
}

// Invalidate drops the cached pages for the given URLs.
func (rc *RedisCache) Invalidate(ctx context.Context, urls ...string) error {
	if len(urls) == 0 {
		return nil
	}
	keys := make([]string, len(urls))
	for i, u := range urls {
		keys[i] = PageKey(u)
	}
	return rc.client.Del(ctx, keys...).Err()
}
