package auth

import (
	"strings"
	"sync"
	"time"

	"github.com/mrlokans/lending/internal/config"
	"github.com/mrlokans/lending/internal/liberr"
)

// ErrLoginThrottled is returned while a client address is locked out of an
// account after repeated failed logins.
var ErrLoginThrottled = liberr.Throttled("too_many_attempts", "too many failed login attempts")

const (
	defaultLoginAttempts = 5
	defaultLoginWindow   = 15 * time.Minute
	defaultLoginLockout  = 30 * time.Minute
	throttleSweepEvery   = 5 * time.Minute
)

type throttleKey struct {
	ip       string
	username string
}

type failureWindow struct {
	failures    int
	opened      time.Time
	lockedUntil time.Time
}

func (w *failureWindow) locked(now time.Time) bool {
	return now.Before(w.lockedUntil)
}

// LoginThrottle counts failed logins per client address and username. Once
// the failures inside one window reach the limit, further logins for that
// pair are refused until the lockout ends. It complements the per-account
// lock kept by Service, which applies regardless of address.
type LoginThrottle struct {
	mu       sync.Mutex
	windows  map[throttleKey]*failureWindow
	limit    int
	window   time.Duration
	lockout  time.Duration
	now      func() time.Time
	stop     chan struct{}
	stopOnce sync.Once
}

// NewLoginThrottle builds a throttle from the auth settings and starts the
// goroutine that drops stale windows. Call Stop to end it.
func NewLoginThrottle(cfg config.Auth) *LoginThrottle {
	lt := &LoginThrottle{
		windows: make(map[throttleKey]*failureWindow),
		limit:   cfg.MaxLoginAttempts,
		window:  cfg.LoginWindow,
		lockout: cfg.LockoutDuration,
		now:     time.Now,
		stop:    make(chan struct{}),
	}
	if lt.limit <= 0 {
		lt.limit = defaultLoginAttempts
	}
	if lt.window <= 0 {
		lt.window = defaultLoginWindow
	}
	if lt.lockout <= 0 {
		lt.lockout = defaultLoginLockout
	}

	go lt.sweepLoop(throttleSweepEvery)
	return lt
}

func keyFor(ip, username string) throttleKey {
	return throttleKey{ip: ip, username: strings.ToLower(strings.TrimSpace(username))}
}

// Check returns ErrLoginThrottled and the remaining lockout when the pair is
// locked out.
func (lt *LoginThrottle) Check(ip, username string) (time.Duration, error) {
	now := lt.now()

	lt.mu.Lock()
	defer lt.mu.Unlock()

	w, ok := lt.windows[keyFor(ip, username)]
	if !ok || !w.locked(now) {
		return 0, nil
	}
	remaining := w.lockedUntil.Sub(now)
	return remaining, ErrLoginThrottled.
		WithMessage("too many failed login attempts, retry in %s", remaining.Round(time.Second)).
		WithDetails(map[string]any{"retry_after_seconds": int(remaining.Seconds())})
}

// Fail records a failed login and reports whether it started a lockout.
func (lt *LoginThrottle) Fail(ip, username string) bool {
	now := lt.now()
	key := keyFor(ip, username)

	lt.mu.Lock()
	defer lt.mu.Unlock()

	w, ok := lt.windows[key]
	if !ok || now.Sub(w.opened) > lt.window {
		w = &failureWindow{opened: now}
		lt.windows[key] = w
	}
	w.failures++
	if w.failures < lt.limit {
		return false
	}
	w.lockedUntil = now.Add(lt.lockout)
	return true
}

// Succeed forgets the failures of the pair.
func (lt *LoginThrottle) Succeed(ip, username string) {
	lt.mu.Lock()
	delete(lt.windows, keyFor(ip, username))
	lt.mu.Unlock()
}

// Stop ends the sweep goroutine. It is safe to call more than once.
func (lt *LoginThrottle) Stop() {
	lt.stopOnce.Do(func() { close(lt.stop) })
}

func (lt *LoginThrottle) sweepLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			lt.sweep()
		case <-lt.stop:
			return
		}
	}
}

// sweep drops windows that are past both their counting period and lockout.
func (lt *LoginThrottle) sweep() {
	now := lt.now()

	lt.mu.Lock()
	defer lt.mu.Unlock()

	for key, w := range lt.windows {
		if now.Sub(w.opened) > lt.window && !w.locked(now) {
			delete(lt.windows, key)
		}
	}
}
