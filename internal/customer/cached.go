package customer

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/nathanyu/mini-ledger/internal/telemetry"
)

// NameCache is the cache side of CachedDirectory. *RedisCache satisfies it.
type NameCache interface {
	Get(ctx context.Context, id int64) (string, bool, error)
	Set(ctx context.Context, id int64, name string) error
}

// CachedDirectory implements cache-aside over another Directory:
// - Read: cache first, fall back to the origin on a miss or cache error
// - Fill: names found at the origin are written back (best effort)
// Unknown ids are never cached, so a newly registered customer is visible at once.
type CachedDirectory struct {
	cache  NameCache
	origin Directory
	logger *slog.Logger
}

func NewCachedDirectory(cache NameCache, origin Directory, logger *slog.Logger) *CachedDirectory {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedDirectory{cache: cache, origin: origin, logger: logger}
}

func (d *CachedDirectory) Exists(ctx context.Context, id int64) (bool, error) {
	_, err := d.DisplayName(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (d *CachedDirectory) DisplayName(ctx context.Context, id int64) (string, error) {
	// 1. Try the cache first
	name, ok, err := d.cache.Get(ctx, id)
	switch {
	case err != nil:
		telemetry.CustomerCacheRequests.WithLabelValues("error").Inc()
		d.logger.WarnContext(ctx, "customer cache read failed, falling back to origin",
			"customer_id", id,
			"error", err,
		)
	case ok:
		telemetry.CustomerCacheRequests.WithLabelValues("hit").Inc()
		return name, nil
	default:
		telemetry.CustomerCacheRequests.WithLabelValues("miss").Inc()
	}

	// 2. Fall back to the origin
	name, err = d.origin.DisplayName(ctx, id)
	if err != nil {
		return "", err
	}

	// 3. Fill the cache (best effort, the origin is the source of truth)
	fillCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
	defer cancel()
	if err := d.cache.Set(fillCtx, id, name); err != nil {
		d.logger.WarnContext(ctx, "failed to fill customer cache",
			"customer_id", id,
			"error", err,
		)
	}

	return name, nil
}
