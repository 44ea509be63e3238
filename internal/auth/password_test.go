package auth

import (
	"strings"
	"testing"
)

func TestHashPassword(t *testing.T) {
	hash, err := HashPassword("correct horse battery staple")
	if err != nil {
		t.Fatalf("hashing: %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$") {
		t.Errorf("expected PHC argon2id format, got %q", hash)
	}

	ok, err := VerifyPassword("correct horse battery staple", hash)
	if err != nil {
		t.Fatalf("verifying: %v", err)
	}
	if !ok {
		t.Error("expected correct password to verify")
	}

	ok, err = VerifyPassword("wrong password", hash)
	if err != nil {
		t.Fatalf("verifying wrong password: %v", err)
	}
	if ok {
		t.Error("expected wrong password to fail verification")
	}
}

func TestHashPassword_UniqueSalts(t *testing.T) {
	h1, err := HashPassword("same password")
	if err != nil {
		t.Fatalf("hashing: %v", err)
	}
	h2, err := HashPassword("same password")
	if err != nil {
		t.Fatalf("hashing: %v", err)
	}
	if h1 == h2 {
		t.Error("expected distinct salts to produce distinct hashes")
	}
}

func TestVerifyPassword_MalformedHash(t *testing.T) {
	for _, encoded := range []string{"", "not-a-hash", "$argon2id$v=19$garbage"} {
		if _, err := VerifyPassword("password", encoded); err == nil {
			t.Errorf("VerifyPassword(%q): expected error for malformed hash", encoded)
		}
	}
}
