package http

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// loginLimiter throttles login attempts per client address using token
// buckets. Stale clients are dropped by a background sweep.
type loginLimiter struct {
	mu           sync.Mutex
	clients      map[string]*clientLimiter
	limit        rate.Limit
	burst        int
	stopCleanup  chan struct{}
	shutdownOnce sync.Once
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newLoginLimiter(perMinute, burst int) *loginLimiter {
	ll := &loginLimiter{
		clients:     make(map[string]*clientLimiter),
		limit:       rate.Limit(float64(perMinute) / 60.0),
		burst:       burst,
		stopCleanup: make(chan struct{}),
	}
	go ll.startCleanup()
	return ll
}

func (ll *loginLimiter) allow(clientIP string) bool {
	ll.mu.Lock()
	defer ll.mu.Unlock()

	client, exists := ll.clients[clientIP]
	if !exists {
		client = &clientLimiter{limiter: rate.NewLimiter(ll.limit, ll.burst)}
		ll.clients[clientIP] = client
	}
	client.lastSeen = time.Now()
	return client.limiter.Allow()
}

func (ll *loginLimiter) startCleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ll.cleanupStaleEntries()
		case <-ll.stopCleanup:
			return
		}
	}
}

// cleanupStaleEntries removes client entries idle for over 10 minutes
func (ll *loginLimiter) cleanupStaleEntries() {
	ll.mu.Lock()
	defer ll.mu.Unlock()

	cutoff := time.Now().Add(-10 * time.Minute)
	for ip, client := range ll.clients {
		if client.lastSeen.Before(cutoff) {
			delete(ll.clients, ip)
		}
	}
}

func (ll *loginLimiter) stop() {
	ll.shutdownOnce.Do(func() {
		close(ll.stopCleanup)
	})
}
