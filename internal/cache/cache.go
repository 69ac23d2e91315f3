// Package cache is an optional Redis-backed memory of which artifacts
// have already been produced for a given video+format pair, letting
// repeat downloads short-circuit the engine entirely. The server is
// fully functional without Redis; an unreachable instance simply
// disables the cache.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/volo-project/volo/pkg/logger"
)

var log = logger.Get("Cache")

const opTimeout = time.Second * 2

type (
	Config struct {
		RedisAddr     string `yaml:"redis_addr" env:"REDIS_ADDR"`
		RedisPassword string `yaml:"redis_password" env:"REDIS_PASSWORD"`
		RedisDB       int    `yaml:"redis_db" env:"REDIS_DB" env-default:"0"`
		TTLHours      int    `yaml:"ttl_hours" env:"CACHE_TTL_HOURS" env-default:"24"`
	}

	// ArtifactEntry records where a finished download for one
	// video+format pair landed, plus the title used for the
	// user-facing filename.
	ArtifactEntry struct {
		Filename    string `json:"filename"`
		DownloadURL string `json:"download_url"`
		Title       string `json:"title"`
	}

	Cache struct {
		client *redis.Client
		ttl    time.Duration
	}
)

// New connects to Redis if an address is configured, degrading to a
// disabled (nil-client) cache when it is absent or unreachable.
func New(config Config) *Cache {
	cache := &Cache{ttl: time.Duration(config.TTLHours) * time.Hour}
	if config.RedisAddr == "" {
		log.Infof("No Redis address configured, artifact cache disabled\n")
		return cache
	}

	client := redis.NewClient(&redis.Options{
		Addr:     config.RedisAddr,
		Password: config.RedisPassword,
		DB:       config.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Warnf("Redis at %s unreachable (%s), artifact cache disabled\n", config.RedisAddr, err.Error())
		return cache
	}

	log.Emit(logger.SUCCESS, "Artifact cache connected to Redis at %s\n", config.RedisAddr)
	cache.client = client
	return cache
}

func (cache *Cache) Enabled() bool {
	return cache.client != nil
}

// GetArtifact looks up the cached artifact entry for the video+format
// pair. Misses, decode failures and Redis errors all report !ok.
func (cache *Cache) GetArtifact(ctx context.Context, videoID string, formatID string) (*ArtifactEntry, bool) {
	if cache.client == nil {
		return nil, false
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	raw, err := cache.client.Get(ctx, artifactKey(videoID, formatID)).Result()
	if err != nil {
		return nil, false
	}

	var entry ArtifactEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		log.Warnf("Discarding malformed cache entry for %s/%s: %s\n", videoID, formatID, err.Error())
		return nil, false
	}

	return &entry, true
}

// PutArtifact stores the entry under the video+format pair. Failures
// are logged and swallowed; the cache is an optimisation, never a
// correctness dependency.
func (cache *Cache) PutArtifact(ctx context.Context, videoID string, formatID string, entry ArtifactEntry) {
	if cache.client == nil {
		return
	}

	raw, err := json.Marshal(entry)
	if err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	if err := cache.client.Set(ctx, artifactKey(videoID, formatID), raw, cache.ttl).Err(); err != nil {
		log.Warnf("Failed to cache artifact for %s/%s: %s\n", videoID, formatID, err.Error())
	}
}

// DeleteArtifact evicts a stale entry (e.g. the file vanished from disk).
func (cache *Cache) DeleteArtifact(ctx context.Context, videoID string, formatID string) {
	if cache.client == nil {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	if err := cache.client.Del(ctx, artifactKey(videoID, formatID)).Err(); err != nil {
		log.Warnf("Failed to evict cache entry for %s/%s: %s\n", videoID, formatID, err.Error())
	}
}

func artifactKey(videoID string, formatID string) string {
	return fmt.Sprintf("volo:artifact:%s:%s", videoID, formatID)
}
