// Package model defines the data structures used throughout the application.
package model

import "time"

// User represents a registered account.
//
// Identity is local: a unique username plus a unique email. Password
// authentication uses a bcrypt hash (never the plaintext), and new accounts
// start inactive until the email verification flow completes.
//
// The verification token fields model a single-use credential:
// VerificationToken holds the opaque random string while one is outstanding,
// VerificationSentAt records when it was issued. Both are cleared together
// on successful consumption, so "verified user with a live token" is not a
// reachable state.
type User struct {
	ID           string `json:"id"          db:"id"`
	Username     string `json:"username"    db:"username"`
	Email        string `json:"email"       db:"email"`
	PasswordHash string `json:"-"           db:"password_hash"` // never serialized
	FirstName    string `json:"firstName"   db:"first_name"`
	LastName     string `json:"lastName"    db:"last_name"`
	PhoneNumber  string `json:"phoneNumber" db:"phone_number"` // digits only, may be empty

	EmailVerified      bool       `json:"emailVerified" db:"email_verified"`
	Active             bool       `json:"active"        db:"active"`
	VerificationToken  string     `json:"-"             db:"verification_token"`
	VerificationSentAt *time.Time `json:"-"             db:"verification_sent_at"`

	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}
