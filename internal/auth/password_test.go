package auth

import (
	"strings"
	"testing"
)

// Tests use a low bcrypt cost; the default cost makes each hash take
// hundreds of milliseconds.
func newTestPasswordService() *PasswordService {
	return NewPasswordServiceForTest(4)
}

func TestHashAndVerify(t *testing.T) {
	ps := newTestPasswordService()

	hash, err := ps.Hash("correct horse battery staple")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	if hash == "correct horse battery staple" {
		t.Fatal("Hash() returned the plaintext")
	}

	if err := ps.Verify(hash, "correct horse battery staple"); err != nil {
		t.Errorf("Verify() with correct password: %v", err)
	}
	if err := ps.Verify(hash, "wrong password"); err == nil {
		t.Error("Verify() should fail for a wrong password")
	}
}

func TestHash_SamePasswordDifferentHashes(t *testing.T) {
	ps := newTestPasswordService()

	h1, _ := ps.Hash("secret-password")
	h2, _ := ps.Hash("secret-password")

	// bcrypt embeds a random salt, so identical inputs must not collide.
	if h1 == h2 {
		t.Error("two hashes of the same password are identical")
	}
}

func TestHash_TooLong(t *testing.T) {
	ps := newTestPasswordService()

	if _, err := ps.Hash(strings.Repeat("a", 73)); err == nil {
		t.Fatal("Hash() should reject passwords longer than 72 bytes")
	}
}

func TestVerify_MalformedHash(t *testing.T) {
	ps := newTestPasswordService()

	if err := ps.Verify("not-a-bcrypt-hash", "anything"); err == nil {
		t.Fatal("Verify() should fail for a malformed hash")
	}
}
