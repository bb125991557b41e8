package auth

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vibevault/vibevault/pkg/crypto"
	"github.com/vibevault/vibevault/pkg/log"
	"github.com/vibevault/vibevault/pkg/metrics"
	"github.com/vibevault/vibevault/pkg/store"
	"github.com/vibevault/vibevault/pkg/types"
)

// DefaultIdleTimeout is how long a session survives without activity.
const DefaultIdleTimeout = 10 * time.Minute

const sweepInterval = 30 * time.Second

type session struct {
	username      string
	key           []byte
	activeProfile int64
	lastActivity  time.Time
}

// Manager owns registration, unlock and the in-memory session table. The
// derived encryption key lives only inside the session entry; callers
// borrow it through WithKey and never hold a reference across calls.
type Manager struct {
	store       *store.Store
	idleTimeout time.Duration
	now         func() time.Time

	mu       sync.Mutex
	sessions map[string]*session

	limiter *rateLimiter
	logger  zerolog.Logger

	stopOnce sync.Once
	stopCh   chan struct{}
}

// Options tune the manager; zero values select defaults.
type Options struct {
	IdleTimeout time.Duration
	Now         func() time.Time // test hook
}

// NewManager creates a session manager over the given store.
func NewManager(st *store.Store, opts Options) *Manager {
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = DefaultIdleTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Manager{
		store:       st,
		idleTimeout: opts.IdleTimeout,
		now:         opts.Now,
		sessions:    make(map[string]*session),
		limiter:     newRateLimiter(opts.Now),
		logger:      log.WithComponent("auth"),
		stopCh:      make(chan struct{}),
	}
}

// Register creates the device's user: fresh independent salts, Argon2id PHC
// hash for authentication. The master password itself is never stored.
func (m *Manager) Register(username, password string) error {
	if username == "" {
		return &types.ValidationError{Field: "username", Reason: "username cannot be empty"}
	}
	if password == "" {
		return &types.ValidationError{Field: "password", Reason: "password cannot be empty"}
	}

	authSalt, err := crypto.RandomBytes(crypto.AuthSaltLen)
	if err != nil {
		return err
	}
	encryptionSalt, err := crypto.RandomBytes(crypto.EncryptionSaltLen)
	if err != nil {
		return err
	}

	hash, err := crypto.HashPassword(password, authSalt)
	if err != nil {
		return err
	}

	err = m.store.Register(&types.User{
		Username:       username,
		PasswordHash:   hash,
		AuthSalt:       authSalt,
		EncryptionSalt: encryptionSalt,
	})
	if err != nil {
		return err
	}

	m.logger.Info().Str("username", username).Msg("user registered")
	return nil
}

// Unlock verifies the master password and opens a session, returning the
// opaque token that keys it. The encryption key is derived here and held
// only in memory.
func (m *Manager) Unlock(username, password string) (string, error) {
	if remaining, limited := m.limiter.check(username); limited {
		metrics.UnlockAttempts.WithLabelValues("rate_limited").Inc()
		return "", &types.TooManyAttemptsError{RetryAfter: remaining}
	}

	user, err := m.store.GetUser(username)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			m.limiter.recordFailure(username)
			metrics.UnlockAttempts.WithLabelValues("failed").Inc()
			return "", types.ErrInvalidCredentials
		}
		return "", err
	}

	ok, err := crypto.VerifyPassword(password, user.PasswordHash)
	if err != nil {
		return "", err
	}
	if !ok {
		m.limiter.recordFailure(username)
		metrics.UnlockAttempts.WithLabelValues("failed").Inc()
		m.logger.Warn().Str("username", username).Msg("failed unlock attempt")
		return "", types.ErrInvalidCredentials
	}
	m.limiter.recordSuccess(username)

	key, err := crypto.DeriveKey(password, user.EncryptionSalt)
	if err != nil {
		return "", err
	}

	profile, err := m.store.EnsureDefaultProfile()
	if err != nil {
		crypto.Zeroize(key)
		return "", err
	}

	token, err := crypto.NewSessionToken()
	if err != nil {
		crypto.Zeroize(key)
		return "", err
	}

	m.mu.Lock()
	m.sessions[token] = &session{
		username:      username,
		key:           key,
		activeProfile: profile.ID,
		lastActivity:  m.now(),
	}
	m.mu.Unlock()

	metrics.UnlockAttempts.WithLabelValues("success").Inc()
	metrics.SessionsActive.Inc()
	m.logger.Info().Str("username", username).Msg("vault unlocked")
	return token, nil
}

// Lock destroys a session eagerly and zeroizes its key. Locking an unknown
// token is a no-op.
func (m *Manager) Lock(token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.destroyLocked(token)
}

// TouchActivity extends the session's idle window.
func (m *Manager) TouchActivity(token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, err := m.validLocked(token)
	if err != nil {
		return err
	}
	sess.lastActivity = m.now()
	return nil
}

// WithKey borrows the session's encryption key for the duration of fn. The
// callback receives a transient copy that is zeroized before WithKey
// returns; fn must not retain it. Every borrow counts as activity.
func (m *Manager) WithKey(token string, fn func(key []byte) error) error {
	m.mu.Lock()
	sess, err := m.validLocked(token)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	sess.lastActivity = m.now()
	keyCopy := make([]byte, len(sess.key))
	copy(keyCopy, sess.key)
	m.mu.Unlock()

	defer crypto.Zeroize(keyCopy)
	return fn(keyCopy)
}

// ActiveProfile returns the profile the session operates on.
func (m *Manager) ActiveProfile(token string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, err := m.validLocked(token)
	if err != nil {
		return 0, err
	}
	return sess.activeProfile, nil
}

// SetActiveProfile switches the session's profile after verifying it exists.
func (m *Manager) SetActiveProfile(token string, profileID int64) error {
	if _, err := m.store.GetProfile(profileID); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	sess, err := m.validLocked(token)
	if err != nil {
		return err
	}
	sess.activeProfile = profileID
	sess.lastActivity = m.now()
	return nil
}

// Username returns the account name behind a session token.
func (m *Manager) Username(token string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, err := m.validLocked(token)
	if err != nil {
		return "", err
	}
	return sess.username, nil
}

// StartSweeper runs the inactivity sweeper until ctx is cancelled or Stop
// is called.
func (m *Manager) StartSweeper(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				m.sweep()
			case <-ctx.Done():
				return
			case <-m.stopCh:
				return
			}
		}
	}()
}

// Stop terminates the sweeper and destroys all sessions.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })

	m.mu.Lock()
	defer m.mu.Unlock()
	for token := range m.sessions {
		m.destroyLocked(token)
	}
}

func (m *Manager) sweep() {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-m.idleTimeout)
	for token, sess := range m.sessions {
		if sess.lastActivity.Before(cutoff) {
			m.logger.Info().Str("username", sess.username).Msg("session expired by inactivity")
			m.destroyLocked(token)
		}
	}
}

// validLocked returns the live session for token, expiring it lazily if the
// idle window has passed. Callers hold m.mu.
func (m *Manager) validLocked(token string) (*session, error) {
	sess, ok := m.sessions[token]
	if !ok {
		return nil, types.ErrSessionExpired
	}
	if m.now().Sub(sess.lastActivity) > m.idleTimeout {
		m.destroyLocked(token)
		return nil, types.ErrSessionExpired
	}
	return sess, nil
}

func (m *Manager) destroyLocked(token string) {
	sess, ok := m.sessions[token]
	if !ok {
		return
	}
	crypto.Zeroize(sess.key)
	delete(m.sessions, token)
	metrics.SessionsActive.Dec()
}
