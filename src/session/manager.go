package session

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/eliwifthehat/cex-eqcrypto-sub000/src/cache"
	"github.com/eliwifthehat/cex-eqcrypto-sub000/src/logging"
	"github.com/google/uuid"
	"github.com/gorilla/securecookie"
	"github.com/rs/zerolog"
)

var (
	// ErrNoSession indicates the request carries no valid session
	ErrNoSession = errors.New("no session")

	// ErrStoreUnavailable indicates the session could not be persisted
	ErrStoreUnavailable = errors.New("session store unavailable")
)

// Session is the server-side state behind a session cookie
type Session struct {
	ID        string            `json:"id"`
	UserID    uuid.UUID         `json:"user_id"`
	Email     string            `json:"email"`
	CreatedAt time.Time         `json:"created_at"`
	ExpiresAt time.Time         `json:"expires_at"`
	Values    map[string]string `json:"values,omitempty"`
}

// Manager issues session cookies and persists session state in the cache
type Manager struct {
	cfg    Config
	codec  *securecookie.SecureCookie
	store  *cache.Manager
	now    func() time.Time
	logger zerolog.Logger
}

// NewManager creates a session manager. secret signs the cookie; encryptionKey, if
// empty, is derived from secret.
func NewManager(cfg Config, secret, encryptionKey string, store *cache.Manager) *Manager {
	hashKey := sha256.Sum256([]byte("session-hash:" + secret))
	var blockKey []byte
	switch len(encryptionKey) {
	case 16, 24, 32:
		blockKey = []byte(encryptionKey)
	default:
		sum := sha256.Sum256([]byte("session-block:" + secret + encryptionKey))
		blockKey = sum[:]
	}

	codec := securecookie.New(hashKey[:], blockKey)
	codec.SetSerializer(securecookie.JSONEncoder{})
	codec.MaxAge(int(cfg.TTL.Seconds()))

	return &Manager{
		cfg:    cfg,
		codec:  codec,
		store:  store,
		now:    time.Now,
		logger: logging.NewLogger("session"),
	}
}

// Config returns the active policy
func (m *Manager) Config() Config {
	return m.cfg
}

// Start creates a session for the user and sets the cookie
func (m *Manager) Start(ctx context.Context, w http.ResponseWriter, userID uuid.UUID, email string) (*Session, error) {
	now := m.now()
	sess := &Session{
		ID:        newSessionID(),
		UserID:    userID,
		Email:     email,
		CreatedAt: now,
		ExpiresAt: now.Add(m.cfg.TTL),
	}
	if err := m.save(ctx, sess); err != nil {
		return nil, err
	}
	if err := m.writeCookie(w, sess.ID, m.cfg.TTL); err != nil {
		return nil, err
	}
	return sess, nil
}

// Load resolves the session behind the request cookie
func (m *Manager) Load(ctx context.Context, r *http.Request) (*Session, error) {
	ck, err := r.Cookie(m.cfg.CookieName)
	if err != nil || ck.Value == "" {
		return nil, ErrNoSession
	}

	var id string
	if err := m.codec.Decode(m.cfg.CookieName, ck.Value, &id); err != nil {
		m.logger.Debug().Err(err).Msg("Rejected session cookie")
		return nil, ErrNoSession
	}

	var sess Session
	if !m.store.GetJSON(ctx, cache.CategorySession, id, &sess) {
		return nil, ErrNoSession
	}
	if !m.now().Before(sess.ExpiresAt) {
		m.store.Delete(ctx, cache.CategorySession, id)
		return nil, ErrNoSession
	}
	return &sess, nil
}

// Touch extends a rolling session once less than half of its lifetime remains
func (m *Manager) Touch(ctx context.Context, w http.ResponseWriter, sess *Session) {
	if !m.cfg.Rolling {
		return
	}
	now := m.now()
	if sess.ExpiresAt.Sub(now) > m.cfg.TTL/2 {
		return
	}
	sess.ExpiresAt = now.Add(m.cfg.TTL)
	if err := m.save(ctx, sess); err != nil {
		m.logger.Warn().Err(err).Str("user_id", sess.UserID.String()).Msg("Failed to extend session")
		return
	}
	if err := m.writeCookie(w, sess.ID, m.cfg.TTL); err != nil {
		m.logger.Warn().Err(err).Msg("Failed to refresh session cookie")
	}
}

// Destroy removes the session and expires the cookie
func (m *Manager) Destroy(ctx context.Context, w http.ResponseWriter, sess *Session) {
	if sess != nil {
		m.store.Delete(ctx, cache.CategorySession, sess.ID)
	}
	http.SetCookie(w, m.cookie("", -1))
}

func (m *Manager) save(ctx context.Context, sess *Session) error {
	ttl := sess.ExpiresAt.Sub(m.now())
	if !m.store.SetJSON(ctx, cache.CategorySession, sess.ID, sess, ttl) {
		return ErrStoreUnavailable
	}
	return nil
}

func (m *Manager) writeCookie(w http.ResponseWriter, id string, ttl time.Duration) error {
	encoded, err := m.codec.Encode(m.cfg.CookieName, id)
	if err != nil {
		return fmt.Errorf("failed to encode session cookie: %w", err)
	}
	http.SetCookie(w, m.cookie(encoded, int(ttl.Seconds())))
	return nil
}

func (m *Manager) cookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     m.cfg.CookieName,
		Value:    value,
		Path:     m.cfg.Path,
		Domain:   m.cfg.Domain,
		MaxAge:   maxAge,
		Secure:   m.cfg.Secure,
		HttpOnly: m.cfg.HTTPOnly,
		SameSite: m.cfg.SameSite,
	}
}

func newSessionID() string {
	return base64.RawURLEncoding.EncodeToString(securecookie.GenerateRandomKey(32))
}
