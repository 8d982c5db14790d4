package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/lanh/skywatch/internal/apperror"
	"github.com/lanh/skywatch/internal/model"
	"github.com/lanh/skywatch/internal/repository"
)

// UserDB is the user sub-repository, obtained via DB.Users.
type UserDB struct {
	conn *sql.DB
}

var _ repository.UserRepository = (*UserDB)(nil)

const userColumns = `id, username, email, password_hash, first_name, last_name,
	phone_number, email_verified, active, verification_token, verification_sent_at,
	created_at, updated_at`

// Create inserts a new user row, generating the ID and timestamps.
// A username or email collision surfaces as apperror.ErrConflict with the
// offending field, so the race between pre-check and insert still produces
// a field-level validation response rather than a 500.
func (db *UserDB) Create(ctx context.Context, user *model.User) error {
	now := time.Now().UTC()
	user.ID = xid.New().String()
	user.CreatedAt = now
	user.UpdatedAt = now

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO users (id, username, email, password_hash, first_name, last_name,
			phone_number, email_verified, active, verification_token, verification_sent_at,
			created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID,
		user.Username,
		user.Email,
		user.PasswordHash,
		user.FirstName,
		user.LastName,
		user.PhoneNumber,
		user.EmailVerified,
		user.Active,
		user.VerificationToken,
		nullableTime(user.VerificationSentAt),
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if field, ok := uniqueViolationField(err); ok {
			return &apperror.AppError{
				Err:     apperror.ErrConflict,
				Message: field + " is already taken",
				Field:   field,
			}
		}
		return fmt.Errorf("sqlite: inserting user %q: %w", user.Username, err)
	}

	return nil
}

// GetByID retrieves a user by internal ID.
func (db *UserDB) GetByID(ctx context.Context, id string) (*model.User, error) {
	return db.getUser(ctx, `WHERE id = ?`, id)
}

// GetByUsername retrieves a user by username.
func (db *UserDB) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	return db.getUser(ctx, `WHERE username = ?`, username)
}

// GetByEmail retrieves a user by email.
func (db *UserDB) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return db.getUser(ctx, `WHERE email = ?`, email)
}

// GetByVerificationToken finds the unverified holder of the given token.
// A consumed or reissued token no longer matches any row, which is what
// makes the token single-use at the storage level too.
func (db *UserDB) GetByVerificationToken(ctx context.Context, token string) (*model.User, error) {
	if token == "" {
		return nil, apperror.NotFound("user", "verification token")
	}
	return db.getUser(ctx, `WHERE verification_token = ? AND email_verified = 0`, token)
}

// Update persists all mutable user fields.
func (db *UserDB) Update(ctx context.Context, user *model.User) error {
	user.UpdatedAt = time.Now().UTC()

	res, err := db.conn.ExecContext(ctx,
		`UPDATE users SET email = ?, password_hash = ?, first_name = ?, last_name = ?,
			phone_number = ?, email_verified = ?, active = ?, verification_token = ?,
			verification_sent_at = ?, updated_at = ?
		 WHERE id = ?`,
		user.Email,
		user.PasswordHash,
		user.FirstName,
		user.LastName,
		user.PhoneNumber,
		user.EmailVerified,
		user.Active,
		user.VerificationToken,
		nullableTime(user.VerificationSentAt),
		user.UpdatedAt,
		user.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating user %s: %w", user.ID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: updating user %s: %w", user.ID, err)
	}
	if affected == 0 {
		return apperror.NotFound("user", user.ID)
	}

	return nil
}

// Delete removes a user row. The compensating action for a failed
// verification email after registration.
func (db *UserDB) Delete(ctx context.Context, id string) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting user %s: %w", id, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: deleting user %s: %w", id, err)
	}
	if affected == 0 {
		return apperror.NotFound("user", id)
	}

	return nil
}

func (db *UserDB) getUser(ctx context.Context, where string, arg any) (*model.User, error) {
	var (
		u      model.User
		sentAt sql.NullTime
	)

	err := db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users `+where, arg,
	).Scan(
		&u.ID,
		&u.Username,
		&u.Email,
		&u.PasswordHash,
		&u.FirstName,
		&u.LastName,
		&u.PhoneNumber,
		&u.EmailVerified,
		&u.Active,
		&u.VerificationToken,
		&sentAt,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", fmt.Sprint(arg))
		}
		return nil, fmt.Errorf("sqlite: getting user: %w", err)
	}

	if sentAt.Valid {
		t := sentAt.Time.UTC()
		u.VerificationSentAt = &t
	}

	return &u, nil
}

// nullableTime maps a *time.Time to a driver-friendly value, NULL for nil.
func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

// uniqueViolationField inspects a driver error for a UNIQUE constraint
// failure and reports which user field collided. modernc.org/sqlite
// exposes the failing column in the error text (e.g. "UNIQUE constraint
// failed: users.email").
func uniqueViolationField(err error) (string, bool) {
	msg := err.Error()
	if !strings.Contains(msg, "UNIQUE constraint failed") {
		return "", false
	}
	switch {
	case strings.Contains(msg, "users.username"):
		return "username", true
	case strings.Contains(msg, "users.email"):
		return "email", true
	}
	return "", true
}
