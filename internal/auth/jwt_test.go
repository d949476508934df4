package auth

import (
	"testing"
	"time"
)

func TestClientTokenRoundTrip(t *testing.T) {
	a := NewJWTAuthenticator("s3cret", "paygate-clients", "paygate")

	token, err := a.GenerateClientToken(42, time.Hour)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	parsed, err := a.ValidateToken(token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	id, err := ClientID(parsed)
	if err != nil {
		t.Fatalf("client id: %v", err)
	}
	if id != 42 {
		t.Fatalf("client id = %d, want 42", id)
	}
}

func TestValidateTokenRejects(t *testing.T) {
	issuer := NewJWTAuthenticator("s3cret", "paygate-clients", "paygate")
	token, err := issuer.GenerateClientToken(42, time.Hour)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	tests := []struct {
		name string
		a    *JWTAuthenticator
	}{
		{"wrong secret", NewJWTAuthenticator("other", "paygate-clients", "paygate")},
		{"wrong audience", NewJWTAuthenticator("s3cret", "admins", "paygate")},
		{"wrong issuer", NewJWTAuthenticator("s3cret", "paygate-clients", "someone")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.a.ValidateToken(token); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestValidateTokenExpired(t *testing.T) {
	a := NewJWTAuthenticator("s3cret", "aud", "iss")
	a.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }

	token, err := a.GenerateClientToken(7, time.Hour)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := a.ValidateToken(token); err == nil {
		t.Fatal("expired token accepted")
	}
}
