package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dkeye/Chat/internal/domain"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
)

// UserStore is the slice of the persistence layer the auth service needs.
type UserStore interface {
	CreateUser(ctx context.Context, u domain.User) (domain.User, error)
	GetUserByID(ctx context.Context, id domain.UserID) (domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (domain.User, error)
	UpdateLastLogin(ctx context.Context, id domain.UserID, at time.Time) error
}

type RegisterInput struct {
	Username string `json:"username" validate:"required,alphanum,min=3,max=36"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72,password"`
}

type Tokens struct {
	AccessToken  string  `json:"accessToken"`
	RefreshToken string  `json:"refreshToken"`
	ExpiresIn    int64   `json:"expiresIn"`
	User         Profile `json:"user"`
}

// Profile is the public view of a user.
type Profile struct {
	ID        domain.UserID `json:"id"`
	Username  string        `json:"username"`
	Email     string        `json:"email"`
	CreatedAt time.Time     `json:"createdAt"`
	LastLogin time.Time     `json:"lastLogin,omitempty"`
}

func ProfileOf(u domain.User) Profile {
	return Profile{ID: u.ID, Username: u.Username, Email: u.Email, CreatedAt: u.CreatedAt, LastLogin: u.LastLogin}
}

const passwordSpecials = "!@#$%^&*"

// Service registers users, exchanges credentials for tokens and resolves
// bearer tokens to identities.
type Service struct {
	users    UserStore
	jwt      *JWTManager
	hasher   *PasswordHasher
	validate *validator.Validate
}

func NewService(users UserStore, jwt *JWTManager, hasher *PasswordHasher) *Service {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("password", func(fl validator.FieldLevel) bool {
		p := fl.Field().String()
		return strings.ContainsAny(p, "0123456789") && strings.ContainsAny(p, passwordSpecials)
	})
	return &Service{users: users, jwt: jwt, hasher: hasher, validate: v}
}

func (s *Service) Register(ctx context.Context, in RegisterInput) (domain.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	if err := s.validate.Struct(in); err != nil {
		return domain.User{}, validationError(err)
	}
	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}
	u, err := s.users.CreateUser(ctx, domain.User{Username: in.Username, Email: in.Email, PasswordHash: hash})
	if err != nil {
		return domain.User{}, err
	}
	log.Info().Str("module", "auth").Str("user", string(u.ID)).Msg("user registered")
	return u, nil
}

// Login checks credentials and issues a token pair. Unknown email and wrong
// password are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, email, password string) (Tokens, error) {
	u, err := s.users.GetUserByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return Tokens{}, domain.ErrInvalidCredentials
		}
		return Tokens{}, err
	}
	if !s.hasher.Verify(password, u.PasswordHash) {
		log.Warn().Str("module", "auth").Str("user", string(u.ID)).Msg("bad password")
		return Tokens{}, domain.ErrInvalidCredentials
	}
	now := time.Now().UTC()
	if err := s.users.UpdateLastLogin(ctx, u.ID, now); err != nil {
		return Tokens{}, err
	}
	u.LastLogin = now

	access, err := s.jwt.GenerateAccessToken(u.Identity())
	if err != nil {
		return Tokens{}, fmt.Errorf("sign access token: %w", err)
	}
	refresh, err := s.jwt.GenerateRefreshToken(u.Identity())
	if err != nil {
		return Tokens{}, fmt.Errorf("sign refresh token: %w", err)
	}
	log.Info().Str("module", "auth").Str("user", string(u.ID)).Msg("user logged in")
	return Tokens{AccessToken: access, RefreshToken: refresh, ExpiresIn: s.jwt.AccessTTL(), User: ProfileOf(u)}, nil
}

// Refresh exchanges a refresh token for a new access token.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (string, error) {
	claims, err := s.jwt.ValidateRefreshToken(refreshToken)
	if err != nil {
		return "", err
	}
	u, err := s.users.GetUserByID(ctx, domain.UserID(claims.UserID))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return "", domain.ErrTokenInvalid
		}
		return "", err
	}
	return s.jwt.GenerateAccessToken(u.Identity())
}

// ValidateToken resolves an access token to the identity it was issued for.
// The user must still exist.
func (s *Service) ValidateToken(ctx context.Context, token string) (domain.Identity, error) {
	claims, err := s.jwt.ValidateAccessToken(token)
	if err != nil {
		return domain.Identity{}, err
	}
	u, err := s.users.GetUserByID(ctx, domain.UserID(claims.UserID))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Identity{}, fmt.Errorf("%w: user not found", domain.ErrTokenInvalid)
		}
		return domain.Identity{}, err
	}
	return u.Identity(), nil
}

func (s *Service) Me(ctx context.Context, id domain.UserID) (domain.User, error) {
	return s.users.GetUserByID(ctx, id)
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	fe := verrs[0]
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return fmt.Errorf("%w: %s is required", domain.ErrValidation, field)
	case "email":
		return fmt.Errorf("%w: invalid email", domain.ErrValidation)
	case "alphanum":
		return fmt.Errorf("%w: %s must be alphanumeric", domain.ErrValidation, field)
	case "min":
		return fmt.Errorf("%w: %s must be at least %s characters", domain.ErrValidation, field, fe.Param())
	case "max":
		return fmt.Errorf("%w: %s must be at most %s characters", domain.ErrValidation, field, fe.Param())
	case "password":
		return fmt.Errorf("%w: password needs a digit and one of %s", domain.ErrValidation, passwordSpecials)
	default:
		return fmt.Errorf("%w: invalid %s", domain.ErrValidation, field)
	}
}
