package auth

import (
	"errors"
	"time"

	"github.com/dkeye/Chat/internal/domain"
	"github.com/golang-jwt/jwt/v5"
)

const (
	accessToken  = "access"
	refreshToken = "refresh"
)

type JWTConfig struct {
	Secret        string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
}

type Claims struct {
	UserID    string `json:"user_id"`
	Username  string `json:"username"`
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

func (c *Claims) Identity() domain.Identity {
	return domain.Identity{ID: domain.UserID(c.UserID), Username: c.Username}
}

// JWTManager signs and verifies HS256 tokens. Refresh tokens use their own
// secret when one is configured.
type JWTManager struct {
	cfg JWTConfig
}

func NewJWTManager(cfg JWTConfig) *JWTManager {
	if cfg.RefreshSecret == "" {
		cfg.RefreshSecret = cfg.Secret
	}
	return &JWTManager{cfg: cfg}
}

func (m *JWTManager) GenerateAccessToken(id domain.Identity) (string, error) {
	return m.generate(id, accessToken, m.cfg.AccessTTL, m.cfg.Secret)
}

func (m *JWTManager) GenerateRefreshToken(id domain.Identity) (string, error) {
	return m.generate(id, refreshToken, m.cfg.RefreshTTL, m.cfg.RefreshSecret)
}

func (m *JWTManager) generate(id domain.Identity, tokenType string, ttl time.Duration, secret string) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID:    string(id.ID),
		Username:  id.Username,
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.cfg.Issuer,
			Subject:   string(id.ID),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func (m *JWTManager) ValidateAccessToken(token string) (*Claims, error) {
	return m.validate(token, accessToken, m.cfg.Secret)
}

func (m *JWTManager) ValidateRefreshToken(token string) (*Claims, error) {
	return m.validate(token, refreshToken, m.cfg.RefreshSecret)
}

func (m *JWTManager) validate(tokenString, tokenType, secret string) (*Claims, error) {
	if tokenString == "" {
		return nil, domain.ErrTokenMissing
	}
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, domain.ErrTokenInvalid
		}
		return []byte(secret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, domain.ErrTokenExpired
		}
		return nil, domain.ErrTokenInvalid
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.TokenType != tokenType || claims.UserID == "" {
		return nil, domain.ErrTokenInvalid
	}
	return claims, nil
}

// AccessTTL is the access token lifetime in seconds.
func (m *JWTManager) AccessTTL() int64 {
	return int64(m.cfg.AccessTTL.Seconds())
}
