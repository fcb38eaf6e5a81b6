// Package quota tracks the provider's rolling 24-hour send cap per channel.
// Accepted sends are recorded into hour buckets; the remaining allowance sums
// the trailing 24 buckets on every dispatch decision. The count is shared
// mutable state across every campaign on the channel, so it is never cached.
package quota

import (
	"context"
	"fmt"
	"time"
)

// Counter is the bucket store. The production implementation is Redis; tests
// use the in-memory one.
type Counter interface {
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
	GetMany(ctx context.Context, keys []string) ([]int64, error)
}

type Tracker struct {
	counter Counter
	now     func() time.Time
}

func NewTracker(counter Counter) *Tracker {
	return &Tracker{counter: counter, now: time.Now}
}

// NewTrackerWithClock exists for tests that need to move time.
func NewTrackerWithClock(counter Counter, now func() time.Time) *Tracker {
	return &Tracker{counter: counter, now: now}
}

func bucketKey(channelID int, t time.Time) string {
	return fmt.Sprintf("quota:%d:%s", channelID, t.UTC().Format("2006010215"))
}

// Record counts one provider-accepted send against the current hour bucket.
// Buckets expire an hour after they leave the trailing window.
func (t *Tracker) Record(ctx context.Context, channelID int) error {
	_, err := t.counter.Incr(ctx, bucketKey(channelID, t.now()), 25*time.Hour)
	return err
}

// SentInWindow returns the number of accepted sends in the trailing 24 hours.
func (t *Tracker) SentInWindow(ctx context.Context, channelID int) (int, error) {
	now := t.now()
	keys := make([]string, 0, 25)
	for i := 0; i <= 24; i++ {
		keys = append(keys, bucketKey(channelID, now.Add(-time.Duration(i)*time.Hour)))
	}
	counts, err := t.counter.GetMany(ctx, keys)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, c := range counts {
		total += c
	}
	return int(total), nil
}

// Remaining computes the channel's current allowance. A nil limit means the
// channel is unlimited and the second return is false.
func (t *Tracker) Remaining(ctx context.Context, channelID int, limit *int) (int, bool, error) {
	if limit == nil {
		return 0, false, nil
	}
	sent, err := t.SentInWindow(ctx, channelID)
	if err != nil {
		return 0, true, err
	}
	remaining := *limit - sent
	if remaining < 0 {
		remaining = 0
	}
	return remaining, true, nil
}
