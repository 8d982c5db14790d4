package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/lanh/skywatch/internal/apperror"
	"github.com/lanh/skywatch/internal/auth"
	"github.com/lanh/skywatch/internal/mail"
	"github.com/lanh/skywatch/internal/model"
	"github.com/lanh/skywatch/internal/repository"
)

const (
	MaxUsernameLength = 150
	MinPasswordLength = 8
	MinPhoneDigits    = 10
)

// ErrEmailUnverified is returned by Login for accounts that registered but
// never completed email verification. Handlers map it to 403 with a
// verification-required flag so the client can offer a resend.
var ErrEmailUnverified = apperror.Forbidden("please verify your email before logging in")

// invalidTokenMessage is the single user-facing message for every
// verification token failure. Expired, mismatched, and absent tokens are
// deliberately indistinguishable to the caller.
const invalidTokenMessage = "verification link is invalid or expired"

// RegisterInput carries the validated registration fields. The handler has
// already checked shape (required fields, email format, password length and
// confirmation); the service enforces the business rules on top.
type RegisterInput struct {
	Username    string
	Email       string
	Password    string
	FirstName   string
	LastName    string
	PhoneNumber string
}

// RegisterResult reports the outcome of a registration.
// Token is only set when verification is disabled and the account is
// usable immediately.
type RegisterResult struct {
	User                 *model.User
	VerificationRequired bool
	Token                string
}

// AuthResult bundles a user with an issued session token.
type AuthResult struct {
	User  *model.User
	Token string
}

// AccountService owns registration, login, and the email verification
// lifecycle.
type AccountService struct {
	users     repository.UserRepository
	passwords *auth.PasswordService
	tokens    *auth.TokenService
	verifier  *auth.Verifier
	mailer    mail.Sender
	logger    *slog.Logger

	requireVerification bool
	resendCooldown      time.Duration
}

func NewAccountService(
	users repository.UserRepository,
	passwords *auth.PasswordService,
	tokens *auth.TokenService,
	verifier *auth.Verifier,
	mailer mail.Sender,
	requireVerification bool,
	resendCooldown time.Duration,
	logger *slog.Logger,
) *AccountService {
	return &AccountService{
		users:               users,
		passwords:           passwords,
		tokens:              tokens,
		verifier:            verifier,
		mailer:              mailer,
		requireVerification: requireVerification,
		resendCooldown:      resendCooldown,
		logger:              logger,
	}
}

// Register creates a new account.
//
// With verification enabled the user starts inactive and unverified, gets
// a single-use token, and is mailed the verification link. A failed send
// rolls the registration back — the just-created row is deleted and the
// caller sees a server error, so no unreachable half-registered account is
// left behind.
func (s *AccountService) Register(ctx context.Context, in RegisterInput) (*RegisterResult, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))

	if len(in.Username) > MaxUsernameLength {
		return nil, apperror.ValidationFailed("username",
			fmt.Sprintf("username must be %d characters or less", MaxUsernameLength))
	}

	phone, err := normalizePhone(in.PhoneNumber)
	if err != nil {
		return nil, err
	}

	// Uniqueness pre-checks give clean field errors; the UNIQUE
	// constraints in the store still catch the insert race.
	if _, err := s.users.GetByUsername(ctx, in.Username); err == nil {
		return nil, apperror.ValidationFailed("username", "username is already taken")
	} else if !errors.Is(err, apperror.ErrNotFound) {
		return nil, fmt.Errorf("service/account: checking username: %w", err)
	}
	if _, err := s.users.GetByEmail(ctx, in.Email); err == nil {
		return nil, apperror.ValidationFailed("email", "email is already in use")
	} else if !errors.Is(err, apperror.ErrNotFound) {
		return nil, fmt.Errorf("service/account: checking email: %w", err)
	}

	hash, err := s.passwords.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("service/account: hashing password: %w", err)
	}

	user := &model.User{
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: hash,
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		PhoneNumber:  phone,
		Active:       !s.requireVerification,
	}

	if s.requireVerification {
		if _, err := s.verifier.IssueToken(user); err != nil {
			return nil, fmt.Errorf("service/account: %w", err)
		}
	} else {
		user.EmailVerified = true
	}

	if err := s.users.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("service/account: creating user: %w", err)
	}

	if !s.requireVerification {
		token, err := s.tokens.Generate(user.ID)
		if err != nil {
			return nil, fmt.Errorf("service/account: generating session token: %w", err)
		}
		s.logger.Info("user registered", slog.String("userID", user.ID), slog.String("username", user.Username))
		return &RegisterResult{User: user, Token: token}, nil
	}

	if err := s.mailer.SendVerification(user.Email, user.Username, user.VerificationToken); err != nil {
		// Compensating delete: a user who can never verify is worse than
		// asking them to register again.
		if delErr := s.users.Delete(ctx, user.ID); delErr != nil {
			s.logger.Error("rollback of unverifiable user failed",
				slog.String("userID", user.ID),
				slog.String("error", delErr.Error()),
			)
		}
		return nil, fmt.Errorf("service/account: sending verification email: %w", err)
	}

	s.logger.Info("user registered, verification pending",
		slog.String("userID", user.ID),
		slog.String("username", user.Username),
	)

	return &RegisterResult{User: user, VerificationRequired: true}, nil
}

// Login authenticates a username/password pair and issues a session token.
//
// Unknown usernames and wrong passwords produce the same Unauthorized
// error. Unverified accounts get ErrEmailUnverified, disabled accounts a
// plain Forbidden.
func (s *AccountService) Login(ctx context.Context, username, password string) (*AuthResult, error) {
	user, err := s.users.GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.Unauthorized("invalid username or password")
		}
		return nil, fmt.Errorf("service/account: looking up user: %w", err)
	}

	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		return nil, apperror.Unauthorized("invalid username or password")
	}

	if s.requireVerification && !user.EmailVerified {
		return nil, ErrEmailUnverified
	}
	if !user.Active {
		return nil, apperror.Forbidden("account is disabled")
	}

	token, err := s.tokens.Generate(user.ID)
	if err != nil {
		return nil, fmt.Errorf("service/account: generating session token: %w", err)
	}

	s.logger.Info("user logged in", slog.String("userID", user.ID), slog.String("username", user.Username))

	return &AuthResult{User: user, Token: token}, nil
}

// VerifyEmail consumes a verification token: the matching account becomes
// verified and active, the token is cleared, and a session is issued so
// the user lands logged in.
//
// Every failure mode (unknown, expired, mismatched, already used) comes
// back as the same validation error.
func (s *AccountService) VerifyEmail(ctx context.Context, token string) (*AuthResult, error) {
	user, err := s.users.GetByVerificationToken(ctx, strings.TrimSpace(token))
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.ValidationFailed("token", invalidTokenMessage)
		}
		return nil, fmt.Errorf("service/account: looking up verification token: %w", err)
	}

	if err := s.verifier.Consume(user, token); err != nil {
		if errors.Is(err, apperror.ErrTokenExpired) ||
			errors.Is(err, apperror.ErrTokenMismatch) ||
			errors.Is(err, apperror.ErrNoToken) {
			return nil, apperror.ValidationFailed("token", invalidTokenMessage)
		}
		return nil, fmt.Errorf("service/account: consuming token: %w", err)
	}

	if err := s.users.Update(ctx, user); err != nil {
		return nil, fmt.Errorf("service/account: persisting verified user: %w", err)
	}

	// Welcome mail is a courtesy; verification already succeeded.
	if err := s.mailer.SendWelcome(user.Email, user.Username); err != nil {
		s.logger.Warn("welcome email failed", slog.String("userID", user.ID), slog.String("error", err.Error()))
	}

	sessionToken, err := s.tokens.Generate(user.ID)
	if err != nil {
		return nil, fmt.Errorf("service/account: generating session token: %w", err)
	}

	s.logger.Info("email verified", slog.String("userID", user.ID), slog.String("username", user.Username))

	return &AuthResult{User: user, Token: sessionToken}, nil
}

// ResendVerification issues a fresh token for an unverified account and
// mails it, subject to the cooldown since the previous issuance. The old
// token stops working the moment the new one is stored.
func (s *AccountService) ResendVerification(ctx context.Context, email string) error {
	user, err := s.users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return apperror.ValidationFailed("email", "no unverified account with this email")
		}
		return fmt.Errorf("service/account: looking up email: %w", err)
	}

	if user.EmailVerified {
		return apperror.ValidationFailed("email", "no unverified account with this email")
	}

	if !s.verifier.CanResend(user, s.resendCooldown) {
		return apperror.ValidationFailed("email", "please wait a few minutes before requesting another verification email")
	}

	if _, err := s.verifier.IssueToken(user); err != nil {
		return fmt.Errorf("service/account: %w", err)
	}
	if err := s.users.Update(ctx, user); err != nil {
		return fmt.Errorf("service/account: persisting reissued token: %w", err)
	}

	if err := s.mailer.SendVerification(user.Email, user.Username, user.VerificationToken); err != nil {
		return fmt.Errorf("service/account: resending verification email: %w", err)
	}

	return nil
}

// GetUserByID returns the user for the given internal ID. Used by the
// check-auth handler after the middleware validated the session token.
func (s *AccountService) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	if id == "" {
		return nil, apperror.Unauthorized("not authenticated")
	}
	return s.users.GetByID(ctx, id)
}

// normalizePhone strips everything but digits and enforces a minimum
// length. Empty input is allowed — the field is optional.
func normalizePhone(raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", nil
	}

	var digits strings.Builder
	for _, r := range raw {
		if unicode.IsDigit(r) {
			digits.WriteRune(r)
		}
	}

	if digits.Len() < MinPhoneDigits {
		return "", apperror.ValidationFailed("phone_number",
			fmt.Sprintf("phone number must have at least %d digits", MinPhoneDigits))
	}

	return digits.String(), nil
}
