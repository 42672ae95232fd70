package gateway

import (
	"net"
	"sync"
	"time"
)

const (
	authRateWindow   = 5 * time.Minute
	authRateMaxFails = 10
	authRateMaxIPs   = 10000
)

// authRateLimiter counts failed auth attempts per remote host.
type authRateLimiter struct {
	mu       sync.Mutex
	failures map[string][]time.Time
	now      func() time.Time
}

func newAuthRateLimiter() *authRateLimiter {
	return &authRateLimiter{failures: make(map[string][]time.Time), now: time.Now}
}

func hostOf(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil || host == "" {
		return remoteAddr
	}
	return host
}

// recent drops expired failures for host and returns what remains.
// Callers hold mu.
func (l *authRateLimiter) recent(host string, cutoff time.Time) []time.Time {
	times := l.failures[host]
	kept := times[:0]
	for _, t := range times {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	if len(kept) == 0 {
		delete(l.failures, host)
		return nil
	}
	l.failures[host] = kept
	return kept
}

func (l *authRateLimiter) allow(remoteAddr string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.recent(hostOf(remoteAddr), l.now().Add(-authRateWindow))) < authRateMaxFails
}

func (l *authRateLimiter) recordFailure(remoteAddr string) {
	host := hostOf(remoteAddr)
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, tracked := l.failures[host]; !tracked && len(l.failures) >= authRateMaxIPs {
		cutoff := now.Add(-authRateWindow)
		for h := range l.failures {
			l.recent(h, cutoff)
		}
		if len(l.failures) >= authRateMaxIPs {
			l.evictOldest()
		}
	}
	l.failures[host] = append(l.failures[host], now)
}

func (l *authRateLimiter) evictOldest() {
	var oldest string
	var oldestAt time.Time
	for h, times := range l.failures {
		if oldest == "" || times[0].Before(oldestAt) {
			oldest, oldestAt = h, times[0]
		}
	}
	delete(l.failures, oldest)
}
