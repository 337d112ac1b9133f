// Package credentials owns the Thyrocare session lifecycle: deciding when an
// API key can be reused versus refreshed, performing the login through the
// shared queue and breaker, and guarding against duplicate concurrent logins.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/healthorbit/thyrocare-bridge/internal/queue"
	"github.com/healthorbit/thyrocare-bridge/internal/session"
	"github.com/healthorbit/thyrocare-bridge/internal/upstream"
	"go.uber.org/zap"
)

const (
	// DefaultLookahead refreshes keys that would expire mid-flight.
	DefaultLookahead = time.Hour
	// DefaultSessionTTL is the nominal session validity window.
	DefaultSessionTTL = 24 * time.Hour
)

// SessionStore is the slice of session.Store the manager needs.
type SessionStore interface {
	GetActive(ctx context.Context, principal string) (*session.Session, error)
	Supersede(ctx context.Context, prev *session.Session, next session.Session) error
}

// LoginClient performs the raw upstream login call.
type LoginClient interface {
	Login(ctx context.Context) (*upstream.LoginResponse, error)
}

// Enqueuer schedules the login on the shared request queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, op queue.Operation, opts queue.Options) (any, error)
}

// Config tunes a Manager.
type Config struct {
	// Principal identifies whose credential this manager owns (e.g. the DSA
	// admin account name).
	Principal string
	// Lookahead refreshes keys expiring within this window. Defaults to 1h.
	Lookahead time.Duration
	// Timezone is the fixed zone whose midnight invalidates keys. Defaults
	// to IST via LoadTimezone.
	Timezone *time.Location
	// SessionTTL is the nominal session validity. Defaults to 24h.
	SessionTTL time.Duration
}

// LoadTimezone resolves the upstream's key-rotation timezone. Thyrocare
// rotates keys at Indian midnight; hosts without tzdata get a fixed IST zone.
func LoadTimezone() *time.Location {
	loc, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		return time.FixedZone("IST", 5*3600+1800)
	}
	return loc
}

// refreshCall is one in-flight refresh; late arrivals wait on done instead of
// triggering a duplicate upstream login.
type refreshCall struct {
	done chan struct{}
	sess *session.Session
	err  error
}

// Manager decides credential reuse vs refresh and performs refreshes.
type Manager struct {
	store   SessionStore
	login   LoginClient
	q       Enqueuer
	cfg     Config
	logger  *zap.SugaredLogger
	nowFunc func() time.Time

	mu       sync.Mutex
	inflight *refreshCall
}

// NewManager wires a Manager.
func NewManager(store SessionStore, login LoginClient, q Enqueuer, cfg Config, logger *zap.SugaredLogger) *Manager {
	if cfg.Lookahead <= 0 {
		cfg.Lookahead = DefaultLookahead
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = DefaultSessionTTL
	}
	if cfg.Timezone == nil {
		cfg.Timezone = LoadTimezone()
	}
	return &Manager{
		store:   store,
		login:   login,
		q:       q,
		cfg:     cfg,
		logger:  logger,
		nowFunc: time.Now,
	}
}

// GetOrRefreshAPIKey returns a usable API key, reusing the active session
// when it is still trustworthy and refreshing otherwise.
func (m *Manager) GetOrRefreshAPIKey(ctx context.Context) (string, error) {
	sess, err := m.store.GetActive(ctx, m.cfg.Principal)
	if err != nil {
		return "", fmt.Errorf("load active session: %w", err)
	}

	if reason := m.refreshReason(sess, m.nowFunc()); reason != "" {
		m.logger.Infow("refreshing upstream credential", "principal", m.cfg.Principal, "reason", reason)
		fresh, err := m.RefreshAPIKeys(ctx)
		if err != nil {
			return "", err
		}
		return fresh.APIKey, nil
	}
	return sess.APIKey, nil
}

// ForceRefresh always acquires a new credential and returns its API key.
func (m *Manager) ForceRefresh(ctx context.Context) (string, error) {
	sess, err := m.RefreshAPIKeys(ctx)
	if err != nil {
		return "", err
	}
	return sess.APIKey, nil
}

// RefreshAPIKeys performs the upstream login (high priority, through the
// shared queue and breaker), persists the new session and deactivates the
// previous one. Concurrent callers coalesce onto a single in-flight login.
func (m *Manager) RefreshAPIKeys(ctx context.Context) (*session.Session, error) {
	m.mu.Lock()
	if call := m.inflight; call != nil {
		m.mu.Unlock()
		select {
		case <-call.done:
			return call.sess, call.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	call := &refreshCall{done: make(chan struct{})}
	m.inflight = call
	m.mu.Unlock()

	call.sess, call.err = m.doRefresh(ctx)
	close(call.done)

	m.mu.Lock()
	m.inflight = nil
	m.mu.Unlock()

	return call.sess, call.err
}

func (m *Manager) doRefresh(ctx context.Context) (*session.Session, error) {
	result, err := m.q.Enqueue(ctx, func() (any, error) {
		return m.login.Login(ctx)
	}, queue.Options{
		Priority: queue.PriorityHigh,
		Metadata: map[string]string{"op": "thyrocare-login", "principal": m.cfg.Principal},
	})
	if err != nil {
		return nil, fmt.Errorf("upstream login: %w", err)
	}
	resp, ok := result.(*upstream.LoginResponse)
	if !ok {
		return nil, fmt.Errorf("upstream login returned unexpected type %T", result)
	}

	now := m.nowFunc().UTC()
	next := session.Session{
		Principal:        m.cfg.Principal,
		CreatedAt:        now,
		SessionID:        uuid.NewString(),
		APIKey:           resp.APIKey,
		AccessToken:      resp.AccessToken,
		RespID:           resp.RespID,
		IPAddress:        resp.IPAddress,
		APIKeyExpiresAt:  nextMidnight(now, m.cfg.Timezone),
		SessionExpiresAt: now.Add(m.cfg.SessionTTL),
	}

	prev, err := m.store.GetActive(ctx, m.cfg.Principal)
	if err != nil {
		return nil, fmt.Errorf("load session to supersede: %w", err)
	}
	if err := m.store.Supersede(ctx, prev, next); err != nil {
		// Another instance won the refresh race; use its session rather than
		// fighting over who deactivates whom.
		if errors.Is(err, session.ErrSessionConflict) {
			winner, getErr := m.store.GetActive(ctx, m.cfg.Principal)
			if getErr == nil && winner != nil {
				m.logger.Infow("adopting concurrently refreshed session",
					"principal", m.cfg.Principal, "session_id", winner.SessionID)
				return winner, nil
			}
		}
		return nil, fmt.Errorf("persist session: %w", err)
	}

	m.logger.Infow("upstream session refreshed",
		"principal", m.cfg.Principal,
		"session_id", next.SessionID,
		"api_key_expires_at", next.APIKeyExpiresAt)
	return &next, nil
}

// refreshReason returns a non-empty human-readable reason when the session
// cannot be reused.
func (m *Manager) refreshReason(sess *session.Session, now time.Time) string {
	switch {
	case sess == nil:
		return "no active session"
	case calendarExpired(sess.CreatedAt, now, m.cfg.Timezone):
		// upstream keys die at local midnight regardless of their nominal
		// expiry
		return "calendar day rollover"
	case !now.Before(sess.APIKeyExpiresAt):
		return "api key expired"
	case sess.APIKeyExpiresAt.Sub(now) <= m.cfg.Lookahead:
		return "api key expiring within lookahead"
	default:
		return ""
	}
}

// calendarExpired reports whether createdAt and now fall on different
// calendar dates in loc.
func calendarExpired(createdAt, now time.Time, loc *time.Location) bool {
	cy, cm, cd := createdAt.In(loc).Date()
	ny, nm, nd := now.In(loc).Date()
	return cy != ny || cm != nm || cd != nd
}

// nextMidnight is the first midnight in loc after now.
func nextMidnight(now time.Time, loc *time.Location) time.Time {
	l := now.In(loc)
	return time.Date(l.Year(), l.Month(), l.Day()+1, 0, 0, 0, 0, loc)
}
