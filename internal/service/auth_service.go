package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go-auth-api/internal/model"
	"go-auth-api/pkg/apierror"
)

// UserStore is the persistence contract the auth flows need. Username
// uniqueness is the store's responsibility: Create must fail with
// model.ErrUserAlreadyExists even under concurrent registration.
type UserStore interface {
	Create(ctx context.Context, username string, passwordHash string) (model.User, error)
	FindByUsername(ctx context.Context, username string) (model.User, error)
}

type AuthService struct {
	store  UserStore
	hasher *PasswordHasher
	tokens *TokenManager
}

func NewAuthService(store UserStore, hasher *PasswordHasher, tokens *TokenManager) *AuthService {
	return &AuthService{store: store, hasher: hasher, tokens: tokens}
}

func (s *AuthService) Register(ctx context.Context, username string, password string) error {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return apierror.BadRequest("username and password are required", "")
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	if _, err := s.store.Create(ctx, username, hash); err != nil {
		if errors.Is(err, model.ErrUserAlreadyExists) {
			return apierror.Conflict("User already exists.", username)
		}
		return fmt.Errorf("create user: %w", err)
	}

	return nil
}

// Login responds identically for an unknown username and a wrong password so
// the endpoint cannot be used to enumerate accounts.
func (s *AuthService) Login(ctx context.Context, username string, password string) (string, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return "", apierror.BadRequest("username and password are required", "")
	}

	user, err := s.store.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, model.ErrUserNotFound) {
			return "", apierror.Unauthorized("Invalid credentials.")
		}
		return "", fmt.Errorf("find user: %w", err)
	}

	if !s.hasher.Verify(password, user.PasswordHash) {
		return "", apierror.Unauthorized("Invalid credentials.")
	}

	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		return "", fmt.Errorf("issue token: %w", err)
	}

	return token, nil
}

func (s *AuthService) ValidateToken(tokenString string) (int64, error) {
	return s.tokens.Validate(tokenString)
}
