package websocket

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProgressRedisRepo_MockMode(t *testing.T) {
	repo := NewProgressRedisRepoWithClient(nil, 0)
	ctx := context.Background()

	assert.Equal(t, DefaultProgressTTL, repo.ttl)
	assert.NoError(t, repo.SaveProgress(ctx, &RunProgress{RunID: "r1", State: StateDone}))
	got, err := repo.GetProgress(ctx, "r1")
	assert.NoError(t, err)
	assert.Nil(t, got)
	assert.NoError(t, repo.Ping(ctx))
	assert.NoError(t, repo.Close())
}

func TestProgressFromFields(t *testing.T) {
	updated := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	got := progressFromFields("r1", map[string]string{
		"run_id":      "r1",
		"sent":        "2",
		"total":       "3",
		"last_update": "complete gate 2",
		"state":       "failed",
		"error":       "peer gone",
		"updated_at":  updated.Format(time.RFC3339Nano),
	})

	require.NotNil(t, got)
	assert.Equal(t, &RunProgress{
		RunID:      "r1",
		Sent:       2,
		Total:      3,
		LastUpdate: "complete gate 2",
		State:      StateFailed,
		Error:      "peer gone",
		UpdatedAt:  updated,
	}, got)
	assert.Equal(t, "process:run:r1", progressKey("r1"))
}

func TestProcessRunConversion(t *testing.T) {
	in := &RunProgress{RunID: "r1", Sent: 1, Total: 3, LastUpdate: "complete gate 1", State: StatePending}
	row := toProcessRun(in)
	assert.Equal(t, "pending", row.State)
	assert.Equal(t, "process_runs", row.TableName())
	assert.Equal(t, in, fromProcessRun(row))
}

func TestWithTimeouts(t *testing.T) {
	opts, err := redis.ParseURL("rediss://:secret@cache:6380/2?read_timeout=1s")
	require.NoError(t, err)

	got := withTimeouts(opts)
	assert.Equal(t, "cache:6380", got.Addr)
	assert.Equal(t, "secret", got.Password)
	assert.Equal(t, 2, got.DB)
	assert.NotNil(t, got.TLSConfig)
	assert.Equal(t, time.Second, got.ReadTimeout)
	assert.Equal(t, 5*time.Second, got.DialTimeout)
	assert.Equal(t, 3*time.Second, got.WriteTimeout)
	assert.Zero(t, opts.DialTimeout, "caller options untouched")
}

func TestNewProgressRedisRepo_Unreachable(t *testing.T) {
	_, err := NewProgressRedisRepo(&redis.Options{Addr: "127.0.0.1:1"}, time.Minute)
	assert.ErrorContains(t, err, "failed to connect to Redis")
}
