package auth

import (
	"context"
	"testing"
	"time"

	"github.com/dkeye/Chat/internal/domain"
	"github.com/dkeye/Chat/internal/storage"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

var testJWT = JWTConfig{
	Secret:        "test-secret",
	RefreshSecret: "test-refresh-secret",
	AccessTTL:     15 * time.Minute,
	RefreshTTL:    24 * time.Hour,
	Issuer:        "chat-test",
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	store, err := storage.Open(storage.Options{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return NewService(store, NewJWTManager(testJWT), NewPasswordHasher(bcrypt.MinCost))
}

func TestJWTManager(t *testing.T) {
	id := domain.Identity{ID: "u-1", Username: "alice"}

	t.Run("access token round trips to the identity", func(t *testing.T) {
		req := require.New(t)
		m := NewJWTManager(testJWT)
		tok, err := m.GenerateAccessToken(id)
		req.NoError(err)
		claims, err := m.ValidateAccessToken(tok)
		req.NoError(err)
		req.Equal(id, claims.Identity())
		req.Equal("chat-test", claims.Issuer)
	})

	t.Run("token types are not interchangeable", func(t *testing.T) {
		req := require.New(t)
		m := NewJWTManager(testJWT)
		refresh, err := m.GenerateRefreshToken(id)
		req.NoError(err)
		_, err = m.ValidateAccessToken(refresh)
		req.ErrorIs(err, domain.ErrTokenInvalid)

		access, err := m.GenerateAccessToken(id)
		req.NoError(err)
		_, err = m.ValidateRefreshToken(access)
		req.ErrorIs(err, domain.ErrTokenInvalid)
	})

	t.Run("expired token", func(t *testing.T) {
		cfg := testJWT
		cfg.AccessTTL = -time.Minute
		m := NewJWTManager(cfg)
		tok, err := m.GenerateAccessToken(id)
		require.NoError(t, err)
		_, err = m.ValidateAccessToken(tok)
		require.ErrorIs(t, err, domain.ErrTokenExpired)
		require.Equal(t, domain.KindAuthentication, domain.KindOf(err))
	})

	t.Run("garbage and missing tokens", func(t *testing.T) {
		req := require.New(t)
		m := NewJWTManager(testJWT)
		_, err := m.ValidateAccessToken("not-a-jwt")
		req.ErrorIs(err, domain.ErrTokenInvalid)
		_, err = m.ValidateAccessToken("")
		req.ErrorIs(err, domain.ErrTokenMissing)

		other := NewJWTManager(JWTConfig{Secret: "other", AccessTTL: time.Minute})
		tok, err := other.GenerateAccessToken(id)
		req.NoError(err)
		_, err = m.ValidateAccessToken(tok)
		req.ErrorIs(err, domain.ErrTokenInvalid)
	})
}

func TestPasswordHasher(t *testing.T) {
	req := require.New(t)
	h := NewPasswordHasher(bcrypt.MinCost)
	hash, err := h.Hash("s3cret!pw")
	req.NoError(err)
	req.NotEqual("s3cret!pw", hash)
	req.True(h.Verify("s3cret!pw", hash))
	req.False(h.Verify("wrong", hash))
}

func TestService(t *testing.T) {
	ctx := context.Background()
	valid := RegisterInput{Username: "alice", Email: "alice@example.com", Password: "passw0rd!"}

	t.Run("register login refresh and validate", func(t *testing.T) {
		req := require.New(t)
		s := newTestService(t)
		u, err := s.Register(ctx, valid)
		req.NoError(err)
		req.NotEqual(valid.Password, u.PasswordHash)

		tokens, err := s.Login(ctx, "alice@example.com", "passw0rd!")
		req.NoError(err)
		req.Equal(u.ID, tokens.User.ID)
		req.False(tokens.User.LastLogin.IsZero())
		req.Equal(int64(900), tokens.ExpiresIn)

		ident, err := s.ValidateToken(ctx, tokens.AccessToken)
		req.NoError(err)
		req.Equal(u.Identity(), ident)

		access, err := s.Refresh(ctx, tokens.RefreshToken)
		req.NoError(err)
		ident, err = s.ValidateToken(ctx, access)
		req.NoError(err)
		req.Equal(u.ID, ident.ID)

		me, err := s.Me(ctx, u.ID)
		req.NoError(err)
		req.False(me.LastLogin.IsZero())
	})

	t.Run("bad credentials look the same", func(t *testing.T) {
		req := require.New(t)
		s := newTestService(t)
		_, err := s.Register(ctx, valid)
		req.NoError(err)

		_, err = s.Login(ctx, "alice@example.com", "wrong")
		req.ErrorIs(err, domain.ErrInvalidCredentials)
		_, err = s.Login(ctx, "nobody@example.com", "passw0rd!")
		req.ErrorIs(err, domain.ErrInvalidCredentials)
	})

	t.Run("duplicate registration conflicts", func(t *testing.T) {
		req := require.New(t)
		s := newTestService(t)
		_, err := s.Register(ctx, valid)
		req.NoError(err)
		_, err = s.Register(ctx, valid)
		req.ErrorIs(err, domain.ErrUserExists)
	})

	t.Run("registration input is validated", func(t *testing.T) {
		s := newTestService(t)
		cases := map[string]RegisterInput{
			"short username":       {Username: "al", Email: valid.Email, Password: valid.Password},
			"non alphanumeric":     {Username: "al ice", Email: valid.Email, Password: valid.Password},
			"bad email":            {Username: valid.Username, Email: "alice", Password: valid.Password},
			"short password":       {Username: valid.Username, Email: valid.Email, Password: "a1!"},
			"password w/o digit":   {Username: valid.Username, Email: valid.Email, Password: "password!"},
			"password w/o special": {Username: valid.Username, Email: valid.Email, Password: "passw0rdd"},
		}
		for name, in := range cases {
			t.Run(name, func(t *testing.T) {
				_, err := s.Register(ctx, in)
				require.ErrorIs(t, err, domain.ErrValidation)
			})
		}
	})

	t.Run("refresh for a deleted or unknown user is rejected", func(t *testing.T) {
		req := require.New(t)
		s := newTestService(t)
		tok, err := s.jwt.GenerateRefreshToken(domain.Identity{ID: "ghost", Username: "ghost"})
		req.NoError(err)
		_, err = s.Refresh(ctx, tok)
		req.ErrorIs(err, domain.ErrTokenInvalid)
	})

	t.Run("access token for an unknown user is rejected", func(t *testing.T) {
		req := require.New(t)
		s := newTestService(t)
		tok, err := s.jwt.GenerateAccessToken(domain.Identity{ID: "ghost", Username: "ghost"})
		req.NoError(err)
		_, err = s.ValidateToken(ctx, tok)
		req.ErrorIs(err, domain.ErrTokenInvalid)
		req.ErrorIs(err, domain.ErrAuthentication)
	})
}
