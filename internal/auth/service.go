package auth

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/casnet/casnet-backend/internal/shared"
)

// Service wraps authentication business rules.
type Service struct {
	repo   Repository
	tokens *TokenManager
}

// NewService constructs a new Service.
func NewService(repo Repository, tokens *TokenManager) *Service {
	return &Service{repo: repo, tokens: tokens}
}

// Authenticate validates name/password credentials.
func (s *Service) Authenticate(ctx context.Context, name, password string) (*User, error) {
	user, err := s.repo.FindByName(ctx, name)
	if err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	return user, nil
}

// Login authenticates and issues an access token.
func (s *Service) Login(ctx context.Context, name, password string) (Token, error) {
	user, err := s.Authenticate(ctx, name, password)
	if err != nil {
		return Token{}, err
	}
	return s.tokens.Issue(user)
}

// Resolve turns a bearer token into the acting user. It returns
// ErrInvalidToken for bad tokens and shared.ErrNotFound when the subject no
// longer exists.
func (s *Service) Resolve(ctx context.Context, raw string) (shared.User, error) {
	claims, err := s.tokens.Verify(raw)
	if err != nil {
		return shared.User{}, err
	}
	user, err := s.repo.FindByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return shared.User{}, err
		}
		return shared.User{}, fmt.Errorf("auth: resolve user: %w", err)
	}
	return shared.User{ID: user.ID, Name: user.Name}, nil
}
