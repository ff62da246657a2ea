package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"

	"comms-orchestrator/internal/comms"
	"comms-orchestrator/pkg/utils"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// Limiter decides whether one more message may go out on a channel now.
type Limiter interface {
	Allow(ctx context.Context, ch comms.Channel) (bool, error)
}

// Limits are messages per second per channel. Missing or non-positive
// entries mean unlimited.
type Limits map[comms.Channel]float64

// LocalLimiter is an in-process token bucket per channel.
type LocalLimiter struct {
	mu       sync.Mutex
	limiters map[comms.Channel]*rate.Limiter

	Now func() time.Time
}

func NewLocalLimiter(limits Limits) *LocalLimiter {
	l := &LocalLimiter{limiters: map[comms.Channel]*rate.Limiter{}, Now: time.Now}
	for ch, perSecond := range limits {
		if perSecond <= 0 {
			continue
		}
		burst := int(math.Ceil(perSecond))
		l.limiters[ch] = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
	return l
}

func (l *LocalLimiter) Allow(ctx context.Context, ch comms.Channel) (bool, error) {
	l.mu.Lock()
	lim, ok := l.limiters[ch]
	l.mu.Unlock()
	if !ok {
		return true, nil
	}
	return lim.AllowN(l.Now(), 1), nil
}

// RedisLimiter is a fixed-window counter shared by every process pointing at
// the same Redis.
type RedisLimiter struct {
	rdb    redis.Scripter
	limits Limits
	prefix string
}

func NewRedisLimiter(rdb redis.Scripter, limits Limits) *RedisLimiter {
	return &RedisLimiter{rdb: rdb, limits: limits, prefix: "comms:ratelimit:"}
}

func (l *RedisLimiter) Allow(ctx context.Context, ch comms.Channel) (bool, error) {
	perSecond := l.limits[ch]
	if perSecond <= 0 {
		return true, nil
	}
	limit, window := windowFor(perSecond)
	return utils.AllowFixedWindow(ctx, l.rdb, l.prefix+string(ch), limit, window)
}

// windowFor turns a per-second rate into an integer count per window.
// Rates below one per second widen the window instead.
func windowFor(perSecond float64) (int, time.Duration) {
	if perSecond >= 1 {
		return int(perSecond), time.Second
	}
	return 1, time.Duration(float64(time.Second) / perSecond)
}
