package security

import (
	"errors"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestBcrypt_HashAndCompare(t *testing.T) {
	b := Bcrypt{Cost: bcrypt.MinCost}

	hash, err := b.Hash("correct horse")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	if hash == "correct horse" {
		t.Fatalf("hash must not equal the plain password")
	}

	if err := b.Compare(hash, "correct horse"); err != nil {
		t.Fatalf("Compare error: %v", err)
	}

	if err := b.Compare(hash, "wrong horse"); !errors.Is(err, ErrPasswordMismatch) {
		t.Fatalf("expected ErrPasswordMismatch, got %v", err)
	}

	if err := b.Compare("not-a-hash", "x"); err == nil || errors.Is(err, ErrPasswordMismatch) {
		t.Fatalf("expected malformed hash error, got %v", err)
	}
}
