package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/chatpro016-oss/task-dashboard/internal/config"
)

const tokenTTL = 30 * 24 * time.Hour

// ErrInvalidCredentials is returned when the email/password pair does not
// match. Unknown emails and wrong passwords are deliberately
// indistinguishable.
var ErrInvalidCredentials = errors.New("invalid email or password")

// Store is the persistence surface the service needs; satisfied by *Repository.
type Store interface {
	Create(ctx context.Context, email, passwordHash string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, string, error)
	GetByID(ctx context.Context, id string) (*User, error)
}

// Service contains the business logic for email/password authentication.
type Service struct {
	repo Store
	cfg  *config.Config
}

// NewService creates a new auth Service.
func NewService(repo Store, cfg *config.Config) *Service {
	return &Service{repo: repo, cfg: cfg}
}

// SignUp registers a new account and issues a JWT for it.
func (s *Service) SignUp(ctx context.Context, email, password string) (string, *User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", nil, fmt.Errorf("hash password: %w", err)
	}

	u, err := s.repo.Create(ctx, email, string(hash))
	if err != nil {
		return "", nil, err
	}

	token, err := s.issueToken(u)
	if err != nil {
		return "", nil, fmt.Errorf("issue token: %w", err)
	}
	return token, u, nil
}

// SignIn verifies the credentials and issues a JWT on success.
func (s *Service) SignIn(ctx context.Context, email, password string) (string, *User, error) {
	u, hash, err := s.repo.GetByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		return "", nil, ErrInvalidCredentials
	}
	if err != nil {
		return "", nil, err
	}

	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return "", nil, ErrInvalidCredentials
	}

	token, err := s.issueToken(u)
	if err != nil {
		return "", nil, fmt.Errorf("issue token: %w", err)
	}
	return token, u, nil
}

// Me returns the account for the given user id.
func (s *Service) Me(ctx context.Context, id string) (*User, error) {
	return s.repo.GetByID(ctx, id)
}

// IsNotFound returns true when the error indicates a missing user.
func (s *Service) IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// issueToken creates a signed JWT for the given user.
func (s *Service) issueToken(u *User) (string, error) {
	claims := jwt.MapClaims{
		"sub":   u.ID,
		"email": u.Email,
		"iat":   time.Now().Unix(),
		"exp":   time.Now().Add(tokenTTL).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.cfg.JWTSecret))
}
