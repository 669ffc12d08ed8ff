package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/angelmondragon/wdir-license-backend/pkg/config"
)

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{
		Secret:          "secret",
		Issuer:          "wdir-license",
		SessionTTLHours: 168,
	}
}

func TestMintAndParseAdminToken(t *testing.T) {
	cfg := testJWTConfig()
	now := time.Now().UTC()

	token, minted, err := MintAdminToken(cfg, now, " Ops@WDIRApp.com ", "sess-1")
	if err != nil {
		t.Fatalf("mint admin token: %v", err)
	}
	if minted.ID != "sess-1" {
		t.Fatalf("expected jti sess-1, got %s", minted.ID)
	}

	claims, err := ParseAdminToken(cfg, token)
	if err != nil {
		t.Fatalf("parse admin token: %v", err)
	}
	if claims.Email != "ops@wdirapp.com" {
		t.Fatalf("expected normalized email, got %s", claims.Email)
	}
	if claims.Issuer != cfg.Issuer {
		t.Fatalf("expected issuer %s, got %s", cfg.Issuer, claims.Issuer)
	}

	exp := now.Add(7 * 24 * time.Hour)
	diff := claims.ExpiresAt.Sub(exp)
	if diff < 0 {
		diff = -diff
	}
	if diff >= time.Second {
		t.Fatalf("expected exp roughly %v, got %v", exp, claims.ExpiresAt.UTC())
	}
}

func TestMintAdminTokenGeneratesJTI(t *testing.T) {
	_, claims, err := MintAdminToken(testJWTConfig(), time.Now(), "ops@wdirapp.com", "")
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if claims.ID == "" {
		t.Fatal("expected generated jti")
	}
}

func TestParseAdminTokenInvalidSignature(t *testing.T) {
	cfg := testJWTConfig()
	token, _, err := MintAdminToken(cfg, time.Now(), "ops@wdirapp.com", "")
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	other := cfg
	other.Secret = "different"
	if _, err := ParseAdminToken(other, token); err == nil {
		t.Fatal("expected signature error")
	}

	tampered := token + "x"
	if _, err := ParseAdminToken(cfg, tampered); err == nil {
		t.Fatal("expected error for tampered token")
	}
}

func TestParseAdminTokenExpired(t *testing.T) {
	cfg := testJWTConfig()
	token, _, err := MintAdminToken(cfg, time.Now().Add(-8*24*time.Hour), "ops@wdirapp.com", "")
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	_, err = ParseAdminToken(cfg, token)
	if err == nil || !strings.Contains(err.Error(), "expired") {
		t.Fatalf("expected expiry error, got %v", err)
	}
}

func TestMintAdminTokenValidatesConfig(t *testing.T) {
	now := time.Now()
	if _, _, err := MintAdminToken(config.JWTConfig{Issuer: "x", SessionTTLHours: 1}, now, "a@b.co", ""); err == nil {
		t.Fatal("expected missing secret error")
	}
	if _, _, err := MintAdminToken(config.JWTConfig{Secret: "s", SessionTTLHours: 1}, now, "a@b.co", ""); err == nil {
		t.Fatal("expected missing issuer error")
	}
	if _, _, err := MintAdminToken(config.JWTConfig{Secret: "s", Issuer: "x"}, now, "a@b.co", ""); err == nil {
		t.Fatal("expected ttl error")
	}
	if _, _, err := MintAdminToken(testJWTConfig(), now, "  ", ""); err == nil {
		t.Fatal("expected missing email error")
	}
}
