package auth

import (
	"encoding/base64"
	"testing"
)

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := HashPassword("admin123")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !VerifyPassword(hash, "admin123") {
		t.Fatal("expected correct password to verify")
	}
	if VerifyPassword(hash, "admin124") {
		t.Fatal("expected wrong password to fail")
	}
	if VerifyPassword(hash, "") {
		t.Fatal("expected empty password to fail")
	}
}

func TestHashFormat(t *testing.T) {
	hash, err := HashPassword("view123")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	decoded, err := base64.StdEncoding.DecodeString(hash)
	if err != nil {
		t.Fatalf("stored hash is not base64: %v", err)
	}
	// 16-byte salt followed by a 32-byte derived key.
	if len(decoded) != 48 {
		t.Fatalf("expected 48 decoded bytes, got %d", len(decoded))
	}
}

func TestHashesAreSalted(t *testing.T) {
	a, err := HashPassword("same")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	b, err := HashPassword("same")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if a == b {
		t.Fatal("two hashes of the same password should differ by salt")
	}
	if !VerifyPassword(a, "same") || !VerifyPassword(b, "same") {
		t.Fatal("both salted hashes should verify")
	}
}

func TestVerifyPasswordMalformedStored(t *testing.T) {
	cases := []string{
		"",
		"not base64!!",
		base64.StdEncoding.EncodeToString([]byte("too short")),
	}
	for _, stored := range cases {
		if VerifyPassword(stored, "whatever") {
			t.Fatalf("malformed stored hash %q should not verify", stored)
		}
	}
}
