package auth

import (
	"errors"
	"testing"
)

func TestStaticToken(t *testing.T) {
	if err := (StaticToken{}).Validate("x"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("empty token must reject, got %v", err)
	}
	v := StaticToken{Token: "metrics"}
	if err := v.Validate("metrics"); err != nil {
		t.Fatalf("expected match: %v", err)
	}
	if err := v.Validate("metric"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestHashPasswordIsSaltedByUsername(t *testing.T) {
	a, err := HashPassword("admin", "secret")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	b, _ := HashPassword("admin", "secret")
	c, _ := HashPassword("root", "secret")
	if a != b {
		t.Fatalf("hash not deterministic")
	}
	if a == c {
		t.Fatalf("different users share a hash")
	}
	if len(a) != 2*scryptKeyLen {
		t.Fatalf("unexpected hash length %d", len(a))
	}
}

func TestChallengeResponse(t *testing.T) {
	hash, _ := HashPassword("admin", "secret")
	resp, err := Response(hash, "aabbccdd")
	if err != nil {
		t.Fatalf("response: %v", err)
	}
	cr := ChallengeResponse{PasswordHash: hash, Token: "aabbccdd"}
	if err := cr.Validate(resp); err != nil {
		t.Fatalf("valid response rejected: %v", err)
	}
	flipped := "0"
	if resp[0] == '0' {
		flipped = "f"
	}
	if err := cr.Validate(flipped + resp[1:]); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	other := ChallengeResponse{PasswordHash: hash, Token: "00000001"}
	if err := other.Validate(resp); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("response must be bound to its token")
	}
}

func TestResponseRejectsBadHash(t *testing.T) {
	if _, err := Response("not-hex", "t"); !errors.Is(err, ErrInvalidHash) {
		t.Fatalf("expected ErrInvalidHash, got %v", err)
	}
	if err := (ChallengeResponse{Token: "t"}).Validate("x"); !errors.Is(err, ErrInvalidHash) {
		t.Fatalf("expected ErrInvalidHash for empty hash, got %v", err)
	}
}
