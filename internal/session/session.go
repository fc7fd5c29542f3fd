package session

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/golang-jwt/jwt/v5"
)

const (
	defaultSessionTTL    = 30 * 24 * time.Hour
	defaultSessionIssuer = "mhcn"
	maxDisplayNameRunes  = 32
)

var (
	ErrMissingSigningSecret = errors.New("session: signing secret required")
	ErrMissingCookieName    = errors.New("session: cookie name required")
	ErrInvalidDisplayName   = errors.New("session: invalid display name")
	ErrMissingToken         = errors.New("session: token required")
	ErrInvalidToken         = errors.New("session: invalid token")
	ErrExpiredToken         = errors.New("session: token expired")
)

// Session is the per-browser identity carried between requests. It is chosen by the user and
// never verified.
type Session struct {
	DisplayName string
	IssuedAt    time.Time
	ExpiresAt   time.Time
}

// Claims is the JWT payload stored in the session cookie.
type Claims struct {
	DisplayName string `json:"display_name"`
	jwt.RegisteredClaims
}

// ManagerConfig describes how session cookies are signed and named.
type ManagerConfig struct {
	SigningSecret []byte
	CookieName    string
	TTL           time.Duration
	Clock         func() time.Time
}

// Manager issues and validates HS256 session cookies.
type Manager struct {
	signingSecret []byte
	cookieName    string
	ttl           time.Duration
	clock         func() time.Time
}

// NewManager constructs a Manager with the provided configuration.
func NewManager(cfg ManagerConfig) (*Manager, error) {
	if len(cfg.SigningSecret) == 0 {
		return nil, ErrMissingSigningSecret
	}
	cookieName := strings.TrimSpace(cfg.CookieName)
	if cookieName == "" {
		return nil, ErrMissingCookieName
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Manager{
		signingSecret: append([]byte(nil), cfg.SigningSecret...),
		cookieName:    cookieName,
		ttl:           ttl,
		clock:         clock,
	}, nil
}

// CookieName returns the cookie name configured for session lookups.
func (m *Manager) CookieName() string {
	return m.cookieName
}

// TTL returns the lifetime of issued sessions.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// NormalizeDisplayName trims and validates a user supplied name.
func NormalizeDisplayName(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidDisplayName)
	}
	if utf8.RuneCountInString(trimmed) > maxDisplayNameRunes {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidDisplayName, maxDisplayNameRunes)
	}
	return trimmed, nil
}

// Issue signs a session for displayName and returns the token with the session it encodes.
func (m *Manager) Issue(displayName string) (string, Session, error) {
	name, err := NormalizeDisplayName(displayName)
	if err != nil {
		return "", Session{}, err
	}
	now := m.clock().UTC().Truncate(time.Second)
	expiresAt := now.Add(m.ttl)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		DisplayName: name,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    defaultSessionIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	})
	signed, err := token.SignedString(m.signingSecret)
	if err != nil {
		return "", Session{}, err
	}
	return signed, Session{DisplayName: name, IssuedAt: now, ExpiresAt: expiresAt}, nil
}

// Validate parses a token string and returns the session it carries.
func (m *Manager) Validate(tokenString string) (Session, error) {
	token := strings.TrimSpace(tokenString)
	if token == "" {
		return Session{}, ErrMissingToken
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(
		token,
		claims,
		func(t *jwt.Token) (interface{}, error) {
			if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
				return nil, fmt.Errorf("%w: unexpected signing algorithm %s", ErrInvalidToken, t.Method.Alg())
			}
			return m.signingSecret, nil
		},
		jwt.WithTimeFunc(m.clock),
		jwt.WithIssuer(defaultSessionIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Session{}, ErrExpiredToken
		}
		return Session{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if parsed == nil || !parsed.Valid {
		return Session{}, ErrInvalidToken
	}
	name, err := NormalizeDisplayName(claims.DisplayName)
	if err != nil {
		return Session{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	session := Session{DisplayName: name}
	if claims.IssuedAt != nil {
		session.IssuedAt = claims.IssuedAt.Time.UTC()
	}
	if claims.ExpiresAt != nil {
		session.ExpiresAt = claims.ExpiresAt.Time.UTC()
	}
	return session, nil
}

// ValidateRequest extracts the configured cookie from the request and validates it.
func (m *Manager) ValidateRequest(r *http.Request) (Session, error) {
	if r == nil {
		return Session{}, ErrMissingToken
	}
	cookie, err := r.Cookie(m.cookieName)
	if err != nil || cookie == nil {
		return Session{}, ErrMissingToken
	}
	return m.Validate(cookie.Value)
}
