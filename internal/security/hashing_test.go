package security

import (
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestHasher_HashAndCompare(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)
	hash, err := h.Hash([]byte("abc123"))
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if hash == "abc123" {
		t.Fatal("hash equals plaintext")
	}
	if err := h.Compare(hash, []byte("abc123")); err != nil {
		t.Errorf("Compare matching password: %v", err)
	}
	if err := h.Compare(hash, []byte("abc124")); err == nil {
		t.Error("Compare wrong password: want error, got nil")
	}
}

func TestNewHasher_ClampsCost(t *testing.T) {
	if got := NewHasher(0).Cost; got != bcrypt.DefaultCost {
		t.Errorf("NewHasher(0).Cost = %d, want %d", got, bcrypt.DefaultCost)
	}
	if got := NewHasher(1).Cost; got != bcrypt.MinCost {
		t.Errorf("NewHasher(1).Cost = %d, want %d", got, bcrypt.MinCost)
	}
	if got := NewHasher(99).Cost; got != bcrypt.MaxCost {
		t.Errorf("NewHasher(99).Cost = %d, want %d", got, bcrypt.MaxCost)
	}
}
