package websocket

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const DefaultProgressTTL = 24 * time.Hour

type ProgressRedisRepo struct {
	client *redis.Client // Redis client instance
	ttl    time.Duration // expiry of a run hash
}

// constructor for ProgressRedisRepo, opts usually come from redis.ParseURL
func NewProgressRedisRepo(opts *redis.Options, ttl time.Duration) (*ProgressRedisRepo, error) {
	rdb := redis.NewClient(withTimeouts(opts))

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewProgressRedisRepoWithClient(rdb, ttl), nil
}

// withTimeouts fills the timeouts the URL left unset
func withTimeouts(opts *redis.Options) *redis.Options {
	o := *opts
	if o.DialTimeout == 0 {
		o.DialTimeout = 5 * time.Second
	}
	if o.ReadTimeout == 0 {
		o.ReadTimeout = 3 * time.Second
	}
	if o.WriteTimeout == 0 {
		o.WriteTimeout = 3 * time.Second
	}
	return &o
}

// NewProgressRedisRepoWithClient wraps an existing client; a nil client runs in no-op mode
func NewProgressRedisRepoWithClient(rdb *redis.Client, ttl time.Duration) *ProgressRedisRepo {
	if ttl <= 0 {
		ttl = DefaultProgressTTL
	}
	return &ProgressRedisRepo{client: rdb, ttl: ttl}
}

func progressKey(runID string) string {
	return fmt.Sprintf("process:run:%s", runID)
}

// SaveProgress overwrites the run hash and refreshes its TTL
func (r *ProgressRedisRepo) SaveProgress(ctx context.Context, data *RunProgress) error {
	if r == nil || r.client == nil {
		// No-op for testing/mock mode - return success
		return nil
	}
	key := progressKey(data.RunID)

	fields := map[string]any{
		"run_id":      data.RunID,
		"sent":        data.Sent,
		"total":       data.Total,
		"last_update": data.LastUpdate,
		"state":       string(data.State),
		"error":       data.Error,
		"updated_at":  data.UpdatedAt.Format(time.RFC3339Nano),
	}

	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, r.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save progress to redis: %w", err)
	}
	return nil
}

// GetProgress returns nil, nil when the run is unknown or expired
func (r *ProgressRedisRepo) GetProgress(ctx context.Context, runID string) (*RunProgress, error) {
	if r == nil || r.client == nil {
		// No-op for testing/mock mode - return not found
		return nil, nil
	}

	fields, err := r.client.HGetAll(ctx, progressKey(runID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get progress from redis: %w", err)
	}
	if len(fields) == 0 {
		return nil, nil // Not found
	}
	return progressFromFields(runID, fields), nil
}

func progressFromFields(runID string, fields map[string]string) *RunProgress {
	data := &RunProgress{
		RunID:      runID,
		LastUpdate: fields["last_update"],
		State:      RunState(fields["state"]),
		Error:      fields["error"],
	}
	data.Sent, _ = strconv.Atoi(fields["sent"])
	data.Total, _ = strconv.Atoi(fields["total"])
	if ts, ok := fields["updated_at"]; ok {
		data.UpdatedAt, _ = time.Parse(time.RFC3339Nano, ts)
	}
	return data
}

// Ping checks the Redis connection
func (r *ProgressRedisRepo) Ping(ctx context.Context) error {
	if r == nil || r.client == nil {
		return nil
	}
	return r.client.Ping(ctx).Err()
}

func (r *ProgressRedisRepo) Close() error {
	if r == nil || r.client == nil {
		// No-op for testing/mock mode
		return nil
	}
	return r.client.Close()
}
