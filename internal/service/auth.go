package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
	"messenger/internal/config"
	"messenger/internal/domain"
	"messenger/internal/repository"
	apperrors "messenger/pkg/errors"
	"messenger/pkg/jwt"
	"messenger/pkg/logger"
)

type AuthService interface {
	Register(ctx context.Context, username, email, password string) (*AuthResponse, error)
	Login(ctx context.Context, email, password string) (*AuthResponse, error)
	Logout(ctx context.Context, userID string) error
	// VerifyToken возвращает id пользователя из bearer токена
	VerifyToken(ctx context.Context, token string) (string, error)
}

type AuthResponse struct {
	Token string          `json:"token"`
	User  domain.UserView `json:"user"`
}

type authService struct {
	userRepo repository.UserRepository
	blobs    BlobResolver
	jwtCfg   config.JWTConfig
	log      logger.Logger
}

func NewAuthService(userRepo repository.UserRepository, blobs BlobResolver, jwtCfg config.JWTConfig, log logger.Logger) AuthService {
	return &authService{
		userRepo: userRepo,
		blobs:    blobs,
		jwtCfg:   jwtCfg,
		log:      log,
	}
}

func (s *authService) Register(ctx context.Context, username, email, password string) (*AuthResponse, error) {
	// Валидация входных данных
	username = strings.TrimSpace(username)
	email = strings.ToLower(strings.TrimSpace(email))

	if username == "" {
		return nil, fmt.Errorf("%w: username is required", apperrors.ErrValidation)
	}
	if len(username) > 50 {
		return nil, fmt.Errorf("%w: username is too long (max 50 characters)", apperrors.ErrValidation)
	}
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: invalid email format", apperrors.ErrValidation)
	}
	if len(password) < 6 {
		return nil, fmt.Errorf("%w: password must be at least 6 characters", apperrors.ErrValidation)
	}

	// Хеширование пароля
	passwordHash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		s.log.Error("Failed to hash password", "error", err)
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &domain.User{
		Username:     username,
		Email:        email,
		PasswordHash: string(passwordHash),
		DisplayName:  username,
		Online:       true,
		LastSeen:     time.Now().UTC(),
	}

	created, err := s.userRepo.CreateUnique(ctx, user)
	if err != nil {
		s.log.Error("Failed to create user", "error", err, "email", email)
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	if !created {
		return nil, apperrors.ErrUserAlreadyExists
	}

	s.log.Info("User registered", "user_id", user.ID, "username", user.Username)
	return s.issue(user)
}

func (s *authService) Login(ctx context.Context, email, password string) (*AuthResponse, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, fmt.Errorf("%w: email and password are required", apperrors.ErrValidation)
	}

	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	// Не раскрываем, существует ли пользователь
	if user == nil {
		return nil, apperrors.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, apperrors.ErrInvalidCredentials
	}

	updated, err := s.userRepo.Update(ctx, user.ID, func(u *domain.User) error {
		u.Online = true
		u.LastSeen = time.Now().UTC()
		return nil
	})
	if err != nil {
		s.log.Warn("Failed to update online flag", "user_id", user.ID, "error", err)
	} else if updated != nil {
		user = updated
	}

	return s.issue(user)
}

func (s *authService) Logout(ctx context.Context, userID string) error {
	user, err := s.userRepo.Update(ctx, userID, func(u *domain.User) error {
		u.Online = false
		u.LastSeen = time.Now().UTC()
		return nil
	})
	if err != nil {
		return err
	}
	if user == nil {
		return apperrors.ErrUserNotFound
	}
	return nil
}

func (s *authService) VerifyToken(ctx context.Context, token string) (string, error) {
	claims, err := jwt.ParseAccessToken(token, s.jwtCfg.Secret)
	if err != nil {
		if errors.Is(err, jwt.ErrExpiredToken) {
			return "", apperrors.ErrTokenExpired
		}
		return "", apperrors.ErrInvalidToken
	}

	user, err := s.userRepo.GetByID(ctx, claims.UserID)
	if err != nil {
		return "", err
	}
	if user == nil {
		return "", apperrors.ErrInvalidToken
	}
	return user.ID, nil
}

func (s *authService) issue(user *domain.User) (*AuthResponse, error) {
	token, err := jwt.GenerateAccessToken(user.ID, s.jwtCfg.Secret, s.jwtCfg.Issuer, s.jwtCfg.TTL)
	if err != nil {
		s.log.Error("Failed to generate access token", "error", err)
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}
	return &AuthResponse{Token: token, User: userView(user, s.blobs)}, nil
}
