package server

import (
	"net"
	"net/http"
	"sync"

	"golang.org/x/time/rate"
)

// rateLimiter combines a global limit with per-client limits keyed by
// remote address.
type rateLimiter struct {
	global  *rate.Limiter
	clients map[string]*rate.Limiter
	mu      sync.RWMutex

	perSecond float64
	burst     int
}

func newRateLimiter(perSecond float64, burst int) *rateLimiter {
	return &rateLimiter{
		global:    rate.NewLimiter(rate.Limit(perSecond), burst),
		clients:   make(map[string]*rate.Limiter),
		perSecond: perSecond,
		burst:     burst,
	}
}

func (rl *rateLimiter) allow(clientID string) bool {
	if !rl.global.Allow() {
		return false
	}
	return rl.clientLimiter(clientID).Allow()
}

func (rl *rateLimiter) clientLimiter(clientID string) *rate.Limiter {
	rl.mu.RLock()
	limiter, ok := rl.clients[clientID]
	rl.mu.RUnlock()
	if ok {
		return limiter
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if limiter, ok := rl.clients[clientID]; ok {
		return limiter
	}
	limiter = rate.NewLimiter(rate.Limit(rl.perSecond), rl.burst)
	rl.clients[clientID] = limiter
	return limiter
}

// clientID extracts the caller's address without the ephemeral port so all
// connections from one host share a limiter.
func clientID(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
