package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/lanh/skywatch/internal/apperror"
	"github.com/lanh/skywatch/internal/model"
)

// tokenBytes is the entropy of a verification token before encoding.
const tokenBytes = 32

// Verifier implements the email verification token lifecycle:
//
//	no token → token issued → verified (consumed) | expired
//
// A token is single-use: Consume clears it on success, and a re-issue
// overwrites (invalidates) any previous one. Verifier only mutates the
// in-memory User; callers persist the result.
//
// The clock is injected so expiry can be tested without sleeping.
type Verifier struct {
	ttl time.Duration
	now func() time.Time
}

// NewVerifier creates a Verifier whose tokens expire after ttl.
func NewVerifier(ttl time.Duration) *Verifier {
	return &Verifier{ttl: ttl, now: time.Now}
}

// NewVerifierWithClock creates a Verifier with a fake clock, for tests.
func NewVerifierWithClock(ttl time.Duration, now func() time.Time) *Verifier {
	return &Verifier{ttl: ttl, now: now}
}

// IssueToken generates a fresh verification token for the user and records
// the issue time. Any previously issued token is overwritten and therefore
// no longer consumable.
func (v *Verifier) IssueToken(user *model.User) (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("auth: generating verification token: %w", err)
	}

	token := base64.RawURLEncoding.EncodeToString(buf)
	issued := v.now().UTC()

	user.VerificationToken = token
	user.VerificationSentAt = &issued

	return token, nil
}

// IsExpired reports whether the user's verification token is past its TTL.
// A user with no recorded issue time counts as expired.
func (v *Verifier) IsExpired(user *model.User) bool {
	if user.VerificationSentAt == nil {
		return true
	}
	return v.now().After(user.VerificationSentAt.Add(v.ttl))
}

// CanResend reports whether enough time has passed since the last issuance
// to send a new token. Used by the account service to rate-limit resends.
func (v *Verifier) CanResend(user *model.User, cooldown time.Duration) bool {
	if user.VerificationSentAt == nil {
		return true
	}
	return !v.now().Before(user.VerificationSentAt.Add(cooldown))
}

// Consume validates the supplied token against the user's stored one and,
// on success, marks the account verified and active and clears the token
// so it can never be accepted again.
//
// Failure modes, in check order: ErrNoToken when nothing is stored,
// ErrTokenExpired when past TTL, ErrTokenMismatch when the strings differ.
// The comparison is constant-time.
func (v *Verifier) Consume(user *model.User, supplied string) error {
	if user.VerificationToken == "" {
		return apperror.ErrNoToken
	}
	if v.IsExpired(user) {
		return apperror.ErrTokenExpired
	}
	if subtle.ConstantTimeCompare([]byte(user.VerificationToken), []byte(supplied)) != 1 {
		return apperror.ErrTokenMismatch
	}

	user.EmailVerified = true
	user.Active = true
	user.VerificationToken = ""
	user.VerificationSentAt = nil

	return nil
}
