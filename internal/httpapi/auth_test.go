package httpapi

import (
	"testing"
	"time"

	"lumapos/backend/internal/domain"
	"lumapos/backend/internal/store/memory"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestLoginAndParseToken(t *testing.T) {
	auth := NewAuthManager(testSecret, time.Hour, memory.NewSeeded())

	resp, err := auth.Login(domain.LoginRequest{Username: "admin", Password: "admin123"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if resp.Role != "admin" || resp.AccessToken == "" {
		t.Fatalf("unexpected login response: %+v", resp)
	}

	actor, err := auth.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if actor.Username != "admin" || actor.Role != "admin" {
		t.Fatalf("unexpected actor: %+v", actor)
	}
}

func TestLoginNormalizesUsername(t *testing.T) {
	auth := NewAuthManager(testSecret, time.Hour, memory.NewSeeded())
	if _, err := auth.Login(domain.LoginRequest{Username: "  Cashier ", Password: "cashier123"}); err != nil {
		t.Fatalf("login with unnormalized username failed: %v", err)
	}
}

func TestLoginRejectsBadPassword(t *testing.T) {
	auth := NewAuthManager(testSecret, time.Hour, memory.NewSeeded())
	if _, err := auth.Login(domain.LoginRequest{Username: "admin", Password: "wrong"}); err == nil {
		t.Fatalf("expected login to fail with wrong password")
	}
	if _, err := auth.Login(domain.LoginRequest{Username: "ghost", Password: "admin123"}); err == nil {
		t.Fatalf("expected login to fail for unknown user")
	}
}

func TestParseTokenRejectsForeignSecret(t *testing.T) {
	issuer := NewAuthManager(testSecret, time.Hour, memory.NewSeeded())
	verifier := NewAuthManager("another-secret-that-is-32-chars!", time.Hour, memory.NewSeeded())

	resp, err := issuer.Login(domain.LoginRequest{Username: "admin", Password: "admin123"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if _, err := verifier.ParseToken(resp.AccessToken); err == nil {
		t.Fatalf("expected token signed with a different secret to be rejected")
	}
}

func TestParseTokenRejectsExpired(t *testing.T) {
	auth := NewAuthManager(testSecret, time.Hour, memory.NewSeeded())
	token, err := auth.sign("admin", "admin", time.Now().UTC().Add(-time.Minute))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := auth.ParseToken(token); err == nil {
		t.Fatalf("expected expired token to be rejected")
	}
}

func TestPasswordHashRoundTrip(t *testing.T) {
	hash, err := hashPassword("cashier123")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !isPasswordHash(hash) {
		t.Fatalf("expected bcrypt hash, got %s", hash)
	}
	if !verifyPassword(hash, "cashier123") {
		t.Fatalf("expected password to verify")
	}
	if verifyPassword(hash, "other") {
		t.Fatalf("expected wrong password to fail")
	}
	if verifyPassword("plaintext", "plaintext") {
		t.Fatalf("plain-text stored values must never verify")
	}
}
