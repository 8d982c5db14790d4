package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/lanh/skywatch/internal/apperror"
	"github.com/lanh/skywatch/internal/auth"
	"github.com/lanh/skywatch/internal/service"
)

// validate checks request shapes declaratively via struct tags. Cross-field
// and data-dependent rules (uniqueness, phone normalization) stay in the
// service layer.
var validate = newValidator()

// newValidator builds a validator that reports fields by their JSON names,
// so error responses match the wire format rather than Go struct names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// AccountHandler serves registration, login, and email verification.
type AccountHandler struct {
	accounts *service.AccountService
	logger   *slog.Logger
}

func NewAccountHandler(accounts *service.AccountService, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{accounts: accounts, logger: logger}
}

type registerRequest struct {
	Username        string `json:"username"         validate:"required,max=150"`
	Email           string `json:"email"            validate:"required,email"`
	Password        string `json:"password"         validate:"required,min=8"`
	PasswordConfirm string `json:"password_confirm" validate:"required,eqfield=Password"`
	FirstName       string `json:"first_name"       validate:"max=30"`
	LastName        string `json:"last_name"        validate:"max=30"`
	PhoneNumber     string `json:"phone_number"     validate:"max=20"`
}

// HandleRegister creates a new account.
//
// HTTP: POST /api/auth/register
// 200: {"user_id": ..., "verification_required": true}
// 400: field-level validation errors
// 500: verification email could not be sent (registration rolled back)
func (h *AccountHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	if err := validate.Struct(req); err != nil {
		writeError(w, validationError(err))
		return
	}

	result, err := h.accounts.Register(r.Context(), service.RegisterInput{
		Username:    req.Username,
		Email:       req.Email,
		Password:    req.Password,
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		PhoneNumber: req.PhoneNumber,
	})
	if err != nil {
		h.logger.Error("registration failed",
			slog.String("username", req.Username),
			slog.String("error", err.Error()),
		)
		writeError(w, err)
		return
	}

	resp := map[string]interface{}{
		"user_id":               result.User.ID,
		"username":              result.User.Username,
		"verification_required": result.VerificationRequired,
	}
	if result.VerificationRequired {
		resp["email"] = result.User.Email
	} else {
		resp["token"] = result.Token
	}

	writeJSON(w, http.StatusOK, resp)
}

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// HandleLogin authenticates and issues a session token, delivered both in
// the JSON body (API clients) and as an HttpOnly cookie (browsers).
//
// HTTP: POST /api/auth/login
// 401: bad credentials. 403: unverified or disabled account.
func (h *AccountHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, validationError(err))
		return
	}

	result, err := h.accounts.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrEmailUnverified) {
			writeJSON(w, http.StatusForbidden, map[string]interface{}{
				"error":                 "forbidden",
				"message":               "please verify your email before logging in",
				"verification_required": true,
			})
			return
		}
		writeError(w, err)
		return
	}

	setSessionCookie(w, result.Token)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"user_id":        result.User.ID,
		"username":       result.User.Username,
		"email_verified": result.User.EmailVerified,
		"token":          result.Token,
	})
}

// HandleLogout clears the session cookie. The JWT itself stays valid until
// expiry, but without the cookie the browser can no longer present it.
//
// HTTP: POST /api/auth/logout
func (h *AccountHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// HandleCheckAuth reports whether the caller holds a valid session.
//
// HTTP: GET /api/auth/check
func (h *AccountHandler) HandleCheckAuth(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusOK, map[string]interface{}{"authenticated": false})
		return
	}

	user, err := h.accounts.GetUserByID(r.Context(), userID)
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"authenticated": false})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"authenticated": true,
		"user_id":       user.ID,
		"username":      user.Username,
	})
}

// HandleVerifyEmail consumes a verification token and activates the
// account. Accepts the token as ?token= (the emailed link) or in a JSON
// body (API clients).
//
// HTTP: GET|POST /api/auth/verify-email
// 400: invalid or expired token (all failure modes look identical).
func (h *AccountHandler) HandleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" && r.Method == http.MethodPost {
		var req struct {
			Token string `json:"token"`
		}
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, err)
			return
		}
		token = req.Token
	}

	result, err := h.accounts.VerifyEmail(r.Context(), token)
	if err != nil {
		writeError(w, err)
		return
	}

	setSessionCookie(w, result.Token)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":  fmt.Sprintf("account %s is now active", result.User.Username),
		"user_id":  result.User.ID,
		"username": result.User.Username,
		"token":    result.Token,
	})
}

// HandleResendVerification reissues the verification token, rate-limited
// by the service's cooldown.
//
// HTTP: POST /api/auth/resend-verification  {"email": "..."}
func (h *AccountHandler) HandleResendVerification(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email" validate:"required,email"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, validationError(err))
		return
	}

	if err := h.accounts.ResendVerification(r.Context(), req.Email); err != nil {
		h.logger.Error("resend verification failed",
			slog.String("email", req.Email),
			slog.String("error", err.Error()),
		)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "verification email sent"})
}

// decodeJSON decodes a JSON request body, mapping malformed input to a
// validation error.
func decodeJSON(r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperror.ValidationFailed("body", "invalid JSON body")
	}
	return nil
}

// validationError converts validator.ValidationErrors into the standard
// field-level error shape, reporting the first failing field.
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		field := strings.ToLower(fe.Field())

		var msg string
		switch fe.Tag() {
		case "required":
			msg = field + " is required"
		case "email":
			msg = "invalid email address"
		case "min":
			msg = fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
		case "max":
			msg = fmt.Sprintf("%s must be %s characters or less", field, fe.Param())
		case "eqfield":
			msg = "passwords do not match"
		default:
			msg = field + " is invalid"
		}

		return apperror.ValidationFailed(field, msg)
	}

	return apperror.ValidationFailed("", "invalid request")
}

// setSessionCookie stores the session JWT in an HttpOnly cookie.
// HttpOnly keeps it out of reach of injected scripts; SameSite=Lax stops
// it riding along on cross-site POSTs.
func setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int((24 * time.Hour).Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
