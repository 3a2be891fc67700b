package redis

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// lockTTL caps how long a run can hold the lock. A crashed run frees
// its date after this, and the next manual trigger can proceed.
const lockTTL = 1 * time.Hour

// RunLock is an advisory guard against two reminder runs for the same
// date overlapping (scheduled trigger racing a manual one). It is an
// optimization only: the ledger's unique constraint keeps overlapping
// runs correct, the lock just keeps them from doing redundant work.
type RunLock struct {
	client *Client
	logger *zap.Logger
}

// NewRunLock creates a run lock backed by the given client.
func NewRunLock(client *Client, logger *zap.Logger) *RunLock {
	return &RunLock{client: client, logger: logger}
}

func lockKey(day time.Time) string {
	return fmt.Sprintf("renewd:runlock:%s", day.Format("2006-01-02"))
}

// Acquire attempts to take the run lock for the given day using SET NX.
// Returns true if this process now holds the lock.
func (l *RunLock) Acquire(ctx context.Context, day time.Time) (bool, error) {
	key := lockKey(day)

	ok, err := l.client.rdb.SetNX(ctx, key, "running", lockTTL).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx failed: %w", err)
	}

	if ok {
		l.logger.Debug("run lock acquired", zap.String("key", key))
	}

	return ok, nil
}

// Release frees the run lock for the given day. Called when the run
// completes so a later manual trigger for the same day is not blocked
// (it will produce only skip outcomes via the ledger).
func (l *RunLock) Release(ctx context.Context, day time.Time) error {
	key := lockKey(day)

	if err := l.client.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del failed: %w", err)
	}

	l.logger.Debug("run lock released", zap.String("key", key))
	return nil
}
