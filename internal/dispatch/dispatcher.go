package dispatch

import (
	"context"
	"time"

	"github.com/angelmondragon/receipts-backend/pkg/logger"
	"github.com/angelmondragon/receipts-backend/pkg/redis"
)

// dedupScope namespaces the enqueue-suppression keys in Redis.
const dedupScope = "dispatch"

// Dispatcher hands claimed events to the worker queue. A Redis SETNX
// fast-path suppresses bursts of duplicate deliveries before they reach the
// database; the unique job index is the durable guarantee underneath.
type Dispatcher struct {
	repo     Repository
	dedup    redis.DedupStore
	dedupTTL time.Duration
	logg     *logger.Logger
}

// NewDispatcher builds a dispatcher. dedup may be nil; enqueues then rely on
// the database unique index alone.
func NewDispatcher(repo Repository, dedup redis.DedupStore, dedupTTL time.Duration, logg *logger.Logger) *Dispatcher {
	return &Dispatcher{repo: repo, dedup: dedup, dedupTTL: dedupTTL, logg: logg}
}

// Enqueue schedules a pipeline run for the event. Safe to call repeatedly;
// only the first call per event id creates a job, and a resend of an event
// whose job was retained as failed re-arms it.
func (d *Dispatcher) Enqueue(ctx context.Context, eventID string) error {
	var key string
	if d.dedup != nil {
		key = d.dedup.DedupKey(dedupScope, eventID)
		fresh, err := d.dedup.SetNX(ctx, key, "1", d.dedupTTL)
		if err != nil {
			d.logg.Warn(ctx, "dedup fast-path unavailable, falling back to unique index")
		} else if !fresh && d.liveJobExists(ctx, eventID) {
			return nil
		}
	}

	created, err := d.repo.Enqueue(ctx, eventID)
	if err != nil {
		// release the fast-path key so a later delivery can retry the insert
		if key != "" {
			if delErr := d.dedup.Del(ctx, key); delErr != nil {
				d.logg.Warn(ctx, "releasing dedup key failed")
			}
		}
		return err
	}
	if created {
		d.logg.Info(d.logg.WithEventID(ctx, eventID), "receipt job enqueued")
	}
	return nil
}

// liveJobExists reports whether a runnable job row already holds the event
// id. A residual dedup key over a failed or deleted row must not suppress a
// legitimate re-enqueue, so only a live row short-circuits.
func (d *Dispatcher) liveJobExists(ctx context.Context, eventID string) bool {
	job, err := d.repo.FindByEventID(ctx, eventID)
	if err != nil {
		return false
	}
	return !job.Failed
}
