package transport

import (
	"context"
	"time"

	"github.com/throttled/throttled/v2"
	"github.com/throttled/throttled/v2/store/memstore"
)

// rateLimiter throttles POST traffic per session using GCRA, which
// spreads the per-minute quota evenly instead of admitting bursts at
// window edges.
type rateLimiter struct {
	limiter *throttled.GCRARateLimiterCtx
}

func newRateLimiter(cfg *RateLimitConfig) (*rateLimiter, error) {
	store, err := memstore.NewCtx(65536)
	if err != nil {
		return nil, err
	}

	rpm := cfg.RequestsPerMinute
	if rpm <= 0 {
		rpm = 60
	}
	quota := throttled.RateQuota{
		MaxRate:  throttled.PerMin(rpm),
		MaxBurst: cfg.Burst,
	}
	limiter, err := throttled.NewGCRARateLimiterCtx(store, quota)
	if err != nil {
		return nil, err
	}
	return &rateLimiter{limiter: limiter}, nil
}

// allow reports whether one request under key may proceed, and the
// wait before retrying when it may not.
func (r *rateLimiter) allow(ctx context.Context, key string) (bool, time.Duration, error) {
	limited, result, err := r.limiter.RateLimitCtx(ctx, key, 1)
	if err != nil {
		return false, 0, err
	}
	return !limited, result.RetryAfter, nil
}
