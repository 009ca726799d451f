package fetch

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// HostLimiter paces requests per host with a token bucket per hostname
type HostLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
	log      *logrus.Entry
}

// NewHostLimiter creates a HostLimiter allowing perSecond requests per host with the given burst
func NewHostLimiter(perSecond float64, burst int, log *logrus.Logger) *HostLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &HostLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Limit(perSecond),
		burst:    burst,
		log:      log.WithField("component", "host_limiter"),
	}
}

func (h *HostLimiter) limiterFor(host string) *rate.Limiter {
	h.mu.Lock()
	defer h.mu.Unlock()
	l, ok := h.limiters[host]
	if !ok {
		l = rate.NewLimiter(h.limit, h.burst)
		h.limiters[host] = l
	}
	return l
}

// Wait blocks until host may be requested again or ctx ends. A nil limiter never waits.
func (h *HostLimiter) Wait(ctx context.Context, host string) error {
	if h == nil {
		return nil
	}
	l := h.limiterFor(host)
	if l.Tokens() < 1 {
		h.log.WithField("host", host).Debug("Host rate limit applying wait")
	}
	return l.Wait(ctx)
}
