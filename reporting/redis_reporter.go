package reporting

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/FrenchMajesty/turbo-retry/utils/logger"
	"github.com/redis/go-redis/v9"
)

// DefaultMaxEntries caps the stored report list
const DefaultMaxEntries = 1000

// RedisConfig holds the connection and list settings of a RedisReporter
type RedisConfig struct {
	URL        string `yaml:"url"`
	Password   string `yaml:"password"`
	Key        string `yaml:"key"`
	MaxEntries int64  `yaml:"max_entries"`
	Source     string `yaml:"source"`
}

// ListStore is the subset of redis commands the reporter needs.
// *redis.Client satisfies it.
type ListStore interface {
	LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	LTrim(ctx context.Context, key string, start, stop int64) *redis.StatusCmd
	LRange(ctx context.Context, key string, start, stop int64) *redis.StringSliceCmd
}

// NewRedisClient connects to redis and verifies the connection
func NewRedisClient(cfg RedisConfig) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return rdb, nil
}

// RedisReporter keeps the most recent reports in a capped redis list,
// newest first
type RedisReporter struct {
	store      ListStore
	key        string
	maxEntries int64
	source     string
	logger     logger.Logger
}

var _ Reporter = (*RedisReporter)(nil)

// NewRedisReporter creates a reporter writing to store
func NewRedisReporter(store ListStore, cfg RedisConfig, l logger.Logger) *RedisReporter {
	if cfg.Key == "" {
		cfg.Key = "turbo_retry:errors"
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = DefaultMaxEntries
	}
	if l == nil {
		l = logger.NewNoopLogger()
	}

	return &RedisReporter{
		store:      store,
		key:        cfg.Key,
		maxEntries: cfg.MaxEntries,
		source:     cfg.Source,
		logger:     l,
	}
}

func (r *RedisReporter) Report(ctx context.Context, err error, context string) {
	report := NewReport(err, context, r.source)
	if storeErr := r.Store(ctx, report); storeErr != nil {
		r.logger.Printf("Failed to store error report %s: %v", report.ID, storeErr)
	}
}

// Store pushes report onto the list and trims it to the configured size
func (r *RedisReporter) Store(ctx context.Context, report Report) error {
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	if err := r.store.LPush(ctx, r.key, data).Err(); err != nil {
		return fmt.Errorf("lpush failed: %w", err)
	}
	if err := r.store.LTrim(ctx, r.key, 0, r.maxEntries-1).Err(); err != nil {
		return fmt.Errorf("ltrim failed: %w", err)
	}
	return nil
}

// Recent returns up to n stored reports, newest first
func (r *RedisReporter) Recent(ctx context.Context, n int64) ([]Report, error) {
	if n <= 0 || n > r.maxEntries {
		n = r.maxEntries
	}

	values, err := r.store.LRange(ctx, r.key, 0, n-1).Result()
	if err != nil {
		return nil, fmt.Errorf("lrange failed: %w", err)
	}

	reports := make([]Report, 0, len(values))
	for _, v := range values {
		var report Report
		if err := json.Unmarshal([]byte(v), &report); err != nil {
			r.logger.Printf("Skipping malformed error report: %v", err)
			continue
		}
		reports = append(reports, report)
	}
	return reports, nil
}
