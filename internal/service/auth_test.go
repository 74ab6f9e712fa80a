package service

import (
	"context"
	"errors"
	"testing"

	apperrors "messenger/pkg/errors"
)

func TestRegisterLoginVerify(t *testing.T) {
	env := setupServices(t, nil)
	ctx := context.Background()

	reg, err := env.services.Auth.Register(ctx, "alice", "Alice@Example.com", "secret1")
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if reg.Token == "" || reg.User.Email != "alice@example.com" {
		t.Errorf("Unexpected register response: %+v", reg)
	}

	if _, err := env.services.Auth.Register(ctx, "alice2", "alice@example.com", "secret1"); !errors.Is(err, apperrors.ErrUserAlreadyExists) {
		t.Errorf("Expected ErrUserAlreadyExists, got %v", err)
	}

	login, err := env.services.Auth.Login(ctx, "ALICE@example.com", "secret1")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	id, err := env.services.Auth.VerifyToken(ctx, login.Token)
	if err != nil || id != reg.User.ID {
		t.Errorf("VerifyToken: id=%s err=%v", id, err)
	}

	if _, err := env.services.Auth.Login(ctx, "alice@example.com", "wrong-pass"); !errors.Is(err, apperrors.ErrInvalidCredentials) {
		t.Errorf("Expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := env.services.Auth.Login(ctx, "nobody@example.com", "secret1"); !errors.Is(err, apperrors.ErrInvalidCredentials) {
		t.Errorf("Expected ErrInvalidCredentials for unknown email, got %v", err)
	}
	if _, err := env.services.Auth.VerifyToken(ctx, "garbage"); !errors.Is(err, apperrors.ErrInvalidToken) {
		t.Errorf("Expected ErrInvalidToken, got %v", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	env := setupServices(t, nil)

	tests := []struct {
		name, username, email, password string
	}{
		{"empty username", "", "a@b.c", "secret1"},
		{"bad email", "bob", "bob", "secret1"},
		{"short password", "bob", "bob@example.com", "123"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.services.Auth.Register(context.Background(), tt.username, tt.email, tt.password)
			if !errors.Is(err, apperrors.ErrValidation) {
				t.Errorf("Expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestLogoutClearsOnline(t *testing.T) {
	env := setupServices(t, nil)
	ctx := context.Background()

	reg, err := env.services.Auth.Register(ctx, "alice", "alice@example.com", "secret1")
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := env.services.Auth.Logout(ctx, reg.User.ID); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}
	u, _ := env.repos.User.GetByID(ctx, reg.User.ID)
	if u.Online {
		t.Errorf("Expected user to be offline")
	}
	if err := env.services.Auth.Logout(ctx, "missing"); !errors.Is(err, apperrors.ErrUserNotFound) {
		t.Errorf("Expected ErrUserNotFound, got %v", err)
	}
}
