package auth

import (
	"testing"
	"time"
)

func TestPasswordRoundTrip(t *testing.T) {
	hash, err := HashPassword("correct horse")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if !VerifyPassword(hash, "correct horse") {
		t.Error("Expected password to verify")
	}
	if VerifyPassword(hash, "wrong horse") {
		t.Error("Expected wrong password to fail")
	}
	if VerifyPassword("not-a-hash", "correct horse") {
		t.Error("Expected malformed hash to fail")
	}
}

func TestOpaqueTokenHash(t *testing.T) {
	raw, hash, err := NewOpaqueToken()
	if err != nil {
		t.Fatalf("NewOpaqueToken: %v", err)
	}
	if raw == hash {
		t.Error("Expected the persisted hash to differ from the raw token")
	}
	if HashToken(raw) != hash {
		t.Error("Expected HashToken to reproduce the hash")
	}
}

func TestIssuer(t *testing.T) {
	issuer, err := NewIssuer("s3cret", time.Hour)
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}

	token, err := issuer.Generate("user-1", "qa")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	claims, err := issuer.Parse(token)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if claims.Subject != "user-1" || claims.Role != "qa" {
		t.Errorf("Unexpected claims: %+v", claims)
	}

	other, _ := NewIssuer("another", time.Hour)
	if _, err := other.Parse(token); err != ErrInvalidToken {
		t.Errorf("Expected ErrInvalidToken for a foreign signature, got %v", err)
	}
	if _, err := issuer.Parse("garbage"); err != ErrInvalidToken {
		t.Errorf("Expected ErrInvalidToken for garbage, got %v", err)
	}
}

func TestIssuerRejectsEmptySecret(t *testing.T) {
	if _, err := NewIssuer("  ", time.Hour); err == nil {
		t.Error("Expected an error for an empty secret")
	}
}
