package auth

import (
	"sync"
	"time"
)

const (
	maxConsecutiveFailures = 5
	baseCooldown           = 30 * time.Second
	maxCooldown            = 15 * time.Minute
)

// rateLimiter tracks consecutive failed unlocks per username. After five
// failures every further attempt fails fast for an exponentially growing
// cooldown, capped at fifteen minutes. A successful unlock resets the
// counter.
type rateLimiter struct {
	mu      sync.Mutex
	entries map[string]*limiterEntry
	now     func() time.Time
}

type limiterEntry struct {
	failures      int
	cooldownUntil time.Time
}

func newRateLimiter(now func() time.Time) *rateLimiter {
	return &rateLimiter{
		entries: make(map[string]*limiterEntry),
		now:     now,
	}
}

// check returns the remaining cooldown if the user is currently locked out.
func (r *rateLimiter) check(username string) (time.Duration, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[username]
	if !ok {
		return 0, false
	}
	if remaining := entry.cooldownUntil.Sub(r.now()); remaining > 0 {
		return remaining, true
	}
	return 0, false
}

// recordFailure counts a failed unlock and arms the cooldown once the
// threshold is crossed. The cooldown doubles with every failure past the
// threshold.
func (r *rateLimiter) recordFailure(username string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[username]
	if !ok {
		entry = &limiterEntry{}
		r.entries[username] = entry
	}

	entry.failures++
	if entry.failures >= maxConsecutiveFailures {
		cooldown := baseCooldown << (entry.failures - maxConsecutiveFailures)
		if cooldown > maxCooldown || cooldown <= 0 {
			cooldown = maxCooldown
		}
		entry.cooldownUntil = r.now().Add(cooldown)
	}
}

// recordSuccess clears the failure counter.
func (r *rateLimiter) recordSuccess(username string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, username)
}
