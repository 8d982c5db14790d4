package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/lanh/skywatch/internal/apperror"
	"github.com/lanh/skywatch/internal/model"
)

// fakeClock returns a Verifier whose notion of "now" is controlled by the
// test through the returned pointer.
func fakeClock(t *testing.T, ttl time.Duration) (*Verifier, *time.Time) {
	t.Helper()
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	v := NewVerifierWithClock(ttl, func() time.Time { return now })
	return v, &now
}

func TestIssueToken(t *testing.T) {
	v, _ := fakeClock(t, 24*time.Hour)
	user := &model.User{}

	token, err := v.IssueToken(user)
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	if token == "" {
		t.Fatal("IssueToken() returned empty token")
	}
	if user.VerificationToken != token {
		t.Error("IssueToken() did not store the token on the user")
	}
	if user.VerificationSentAt == nil {
		t.Fatal("IssueToken() did not record the issue time")
	}

	// Reissuing replaces the old token.
	second, err := v.IssueToken(user)
	if err != nil {
		t.Fatalf("IssueToken() second call error = %v", err)
	}
	if second == token {
		t.Error("reissued token should differ from the first")
	}
	if user.VerificationToken != second {
		t.Error("reissue did not overwrite the stored token")
	}
}

func TestIsExpired(t *testing.T) {
	v, now := fakeClock(t, time.Hour)
	user := &model.User{}

	if !v.IsExpired(user) {
		t.Error("user with no issue time should count as expired")
	}

	if _, err := v.IssueToken(user); err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	if v.IsExpired(user) {
		t.Error("freshly issued token should not be expired")
	}

	*now = now.Add(59 * time.Minute)
	if v.IsExpired(user) {
		t.Error("token should still be valid inside the TTL")
	}

	*now = now.Add(2 * time.Minute)
	if !v.IsExpired(user) {
		t.Error("token should be expired past the TTL")
	}
}

func TestCanResend(t *testing.T) {
	v, now := fakeClock(t, 24*time.Hour)
	cooldown := 5 * time.Minute
	user := &model.User{}

	if !v.CanResend(user, cooldown) {
		t.Error("user with no prior token should be allowed a send")
	}

	if _, err := v.IssueToken(user); err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	if v.CanResend(user, cooldown) {
		t.Error("resend immediately after issuance should be blocked")
	}

	*now = now.Add(5 * time.Minute)
	if !v.CanResend(user, cooldown) {
		t.Error("resend should be allowed once the cooldown has elapsed")
	}
}

func TestConsume(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		v, _ := fakeClock(t, 24*time.Hour)
		user := &model.User{}
		token, _ := v.IssueToken(user)

		if err := v.Consume(user, token); err != nil {
			t.Fatalf("Consume() error = %v", err)
		}
		if !user.EmailVerified || !user.Active {
			t.Error("Consume() should mark the user verified and active")
		}
		if user.VerificationToken != "" || user.VerificationSentAt != nil {
			t.Error("Consume() should clear the token state")
		}

		// Single use: the same token is rejected afterwards.
		if err := v.Consume(user, token); !errors.Is(err, apperror.ErrNoToken) {
			t.Errorf("second Consume() error = %v, want ErrNoToken", err)
		}
	})

	t.Run("no token stored", func(t *testing.T) {
		v, _ := fakeClock(t, 24*time.Hour)
		user := &model.User{}

		if err := v.Consume(user, "whatever"); !errors.Is(err, apperror.ErrNoToken) {
			t.Errorf("Consume() error = %v, want ErrNoToken", err)
		}
	})

	t.Run("expired", func(t *testing.T) {
		v, now := fakeClock(t, time.Hour)
		user := &model.User{}
		token, _ := v.IssueToken(user)

		*now = now.Add(2 * time.Hour)
		if err := v.Consume(user, token); !errors.Is(err, apperror.ErrTokenExpired) {
			t.Errorf("Consume() error = %v, want ErrTokenExpired", err)
		}
		if user.EmailVerified {
			t.Error("expired consume must not verify the user")
		}
	})

	t.Run("mismatch", func(t *testing.T) {
		v, _ := fakeClock(t, 24*time.Hour)
		user := &model.User{}
		if _, err := v.IssueToken(user); err != nil {
			t.Fatalf("IssueToken() error = %v", err)
		}

		if err := v.Consume(user, "wrong-token"); !errors.Is(err, apperror.ErrTokenMismatch) {
			t.Errorf("Consume() error = %v, want ErrTokenMismatch", err)
		}
		if user.EmailVerified {
			t.Error("mismatched consume must not verify the user")
		}
		if user.VerificationToken == "" {
			t.Error("mismatched consume must not clear the stored token")
		}
	})
}
