// Package auth issues and validates the JWT pairs behind the HTTP API.
//
// Access tokens are short-lived and carry the role and home path so most
// requests authorize without touching the identity store; refresh tokens are
// long-lived and only good for minting a new pair. The two types are tagged
// inside the claims and never interchangeable.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/stratafs/stratafs/pkg/identity"
	"github.com/stratafs/stratafs/pkg/vfs"
)

// Standard token errors.
var (
	// ErrInvalidToken indicates a token that is malformed, expired or signed
	// with the wrong key.
	//
	// Protocol Mapping:
	//   - HTTP: 401 Unauthorized
	ErrInvalidToken = errors.New("invalid token")

	// ErrWrongTokenType indicates a refresh token presented as an access
	// token or the reverse.
	//
	// Protocol Mapping:
	//   - HTTP: 401 Unauthorized
	ErrWrongTokenType = errors.New("wrong token type")
)

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

// Claims is the JWT payload. Subject holds the user id.
type Claims struct {
	jwt.RegisteredClaims
	Username  string   `json:"username"`
	Role      vfs.Role `json:"role"`
	HomePath  string   `json:"home_path,omitempty"`
	TokenType string   `json:"token_type"`
}

// TokenPair is the login and refresh response payload.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

// Manager signs and validates tokens with a single HMAC-SHA256 key.
type Manager struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// Config configures the token manager.
type Config struct {
	// Secret is the HMAC signing key. Must not be empty.
	Secret string

	// Issuer is embedded in every token's iss claim.
	Issuer string

	// AccessTTL bounds access token lifetime. Default 15 minutes.
	AccessTTL time.Duration

	// RefreshTTL bounds refresh token lifetime. Default 7 days.
	RefreshTTL time.Duration
}

// NewManager creates a token manager.
func NewManager(config Config) (*Manager, error) {
	if config.Secret == "" {
		return nil, fmt.Errorf("token secret must not be empty")
	}
	if config.AccessTTL <= 0 {
		config.AccessTTL = 15 * time.Minute
	}
	if config.RefreshTTL <= 0 {
		config.RefreshTTL = 7 * 24 * time.Hour
	}
	return &Manager{
		secret:     []byte(config.Secret),
		issuer:     config.Issuer,
		accessTTL:  config.AccessTTL,
		refreshTTL: config.RefreshTTL,
		now:        time.Now,
	}, nil
}

// IssuePair mints a fresh access and refresh token for the user.
func (m *Manager) IssuePair(user *identity.User) (*TokenPair, error) {
	access, err := m.sign(user, tokenTypeAccess, m.accessTTL)
	if err != nil {
		return nil, err
	}
	refresh, err := m.sign(user, tokenTypeRefresh, m.refreshTTL)
	if err != nil {
		return nil, err
	}
	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int64(m.accessTTL.Seconds()),
	}, nil
}

// ParseAccess validates an access token and returns its claims.
func (m *Manager) ParseAccess(token string) (*Claims, error) {
	return m.parse(token, tokenTypeAccess)
}

// ParseRefresh validates a refresh token and returns its claims.
func (m *Manager) ParseRefresh(token string) (*Claims, error) {
	return m.parse(token, tokenTypeRefresh)
}

func (m *Manager) sign(user *identity.User, tokenType string, ttl time.Duration) (string, error) {
	now := m.now().UTC()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Username:  user.Username,
		Role:      user.Role,
		HomePath:  user.HomePath,
		TokenType: tokenType,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", tokenType, err)
	}
	return signed, nil
}

func (m *Manager) parse(token, wantType string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return m.secret, nil
	}, jwt.WithTimeFunc(func() time.Time { return m.now() }))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if claims.TokenType != wantType {
		return nil, fmt.Errorf("%s token used as %s: %w", claims.TokenType, wantType, ErrWrongTokenType)
	}
	return claims, nil
}
