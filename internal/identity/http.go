// Copyright (c) 2026 Parley. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package identity

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/taibuivan/parley/internal/platform/apperr"
	"github.com/taibuivan/parley/internal/platform/constants"
	"github.com/taibuivan/parley/internal/platform/ctxutil"
	"github.com/taibuivan/parley/internal/platform/middleware"
	requestutil "github.com/taibuivan/parley/internal/platform/request"
	"github.com/taibuivan/parley/internal/platform/respond"
	"github.com/taibuivan/parley/internal/platform/sec"
	"github.com/taibuivan/parley/internal/platform/validate"
)

// # Definitions & Constructors

// Handler implements the identity HTTP endpoints.
//
// # Scope
//
// This handler is the network face of the federated-identity front door:
// login and second factor, registration, email verification, password
// resets, token refresh and logout. It owns cookie emission; everything
// behind it is transport-agnostic.
type Handler struct {
	identityService *Service

	// production toggles the Secure flag on authentication cookies.
	production bool
}

// NewHandler constructs a new [Handler] with its service dependency.
func NewHandler(service *Service, production bool) *Handler {
	return &Handler{identityService: service, production: production}
}

// Routes returns a [chi.Router] configured with the identity routes.
//
// # Endpoints
//   - POST /login                  : Authenticates credentials.
//   - POST /2fa                    : Completes a second-factor challenge.
//   - POST /logout                 : Ends the current session. Always 200.
//   - POST /register               : Creates a local account.
//   - GET|POST /verify-email       : Confirms email ownership.
//   - POST /request-password-reset : Starts a password reset.
//   - POST /reset-password         : Completes a password reset.
//   - POST /refresh                : Rotates the refresh token.
//   - GET /me                      : Returns the canonical identity.
func (handler *Handler) Routes() chi.Router {
	router := chi.NewRouter()

	// Public endpoints. Logout is deliberately public: it succeeds with or
	// without a valid session so clients can always clear their state.
	router.Post("/login", handler.login)
	router.Post("/2fa", handler.completeTwoFactor)
	router.Post("/logout", handler.logout)
	router.Post("/register", handler.register)
	router.Get("/verify-email", handler.verifyEmail)
	router.Post("/verify-email", handler.verifyEmail)
	router.Post("/request-password-reset", handler.requestPasswordReset)
	router.Post("/reset-password", handler.resetPassword)
	router.Post("/refresh", handler.refresh)

	// Protected endpoints
	router.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth)
		r.Get("/me", handler.me)
	})

	return router
}

// # Request Payloads

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type twoFactorRequest struct {
	TempToken string `json:"temp_token"`
	Code      string `json:"code"`
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Username string `json:"username"`
}

type verifyEmailRequest struct {
	UserID string `json:"user_id"`
	Token  string `json:"token"`
}

type requestResetRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	UserID      string `json:"user_id"`
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

// # Cookie Handling

// setAuthCookies installs the refresh-token cookie and the provider tag. In
// federated reuse mode a signed identity-id cookie rides along so the
// discriminator can be cross-checked on later requests.
//
// Every cookie expires with the session itself, so a rotation on refresh
// never stretches the cookie lifetime past the session's absolute expiry.
func (handler *Handler) setAuthCookies(writer http.ResponseWriter, result *LoginResult) {
	expires := result.SessionExpiresAt

	http.SetCookie(writer, &http.Cookie{
		Name:     constants.RefreshTokenCookieName,
		Value:    result.RefreshToken,
		Path:     constants.AuthCookiePath,
		Expires:  expires,
		Secure:   handler.production,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})

	http.SetCookie(writer, &http.Cookie{
		Name:     constants.ProviderCookieName,
		Value:    string(result.Provider),
		Path:     constants.AuthCookiePath,
		Expires:  expires,
		Secure:   handler.production,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})

	if result.Provider == sec.ProviderFederated && result.Identity != nil {
		signed := sec.SignValue(result.Identity.ID, handler.identityService.codec.LocalSecret())
		http.SetCookie(writer, &http.Cookie{
			Name:     constants.FederatedRefCookieName,
			Value:    signed,
			Path:     constants.AuthCookiePath,
			Expires:  expires,
			Secure:   handler.production,
			HttpOnly: true,
			SameSite: http.SameSiteStrictMode,
		})
	}
}

// clearAuthCookies expires every authentication cookie.
func (handler *Handler) clearAuthCookies(writer http.ResponseWriter) {
	for _, name := range []string{
		constants.RefreshTokenCookieName,
		constants.ProviderCookieName,
		constants.FederatedRefCookieName,
	} {
		http.SetCookie(writer, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     constants.AuthCookiePath,
			MaxAge:   -1,
			Secure:   handler.production,
			HttpOnly: true,
			SameSite: http.SameSiteStrictMode,
		})
	}
}

// loginPayload shapes the success body shared by login, 2fa and refresh.
func loginPayload(result *LoginResult) map[string]any {
	return map[string]any{
		FieldAccessToken: result.AccessToken,
		"token_type":     "Bearer",
		"expires_in":     int64(AccessTokenTTL / time.Second),
		"user":           result.Identity,
	}
}

// # Endpoints

/*
Login authenticates an email/password pair and establishes a session.

POST /auth/login

Description: Verifies credentials against the configured authority, sets the
refresh-token and provider cookies, and returns a bearer access token. When
the account has a second factor enabled, no tokens are issued; the response
carries a temp token for POST /auth/2fa instead.

Request:
  - Body: loginRequest (Email, Password)

Response:
  - 200: Access token and identity, or a two-factor challenge
  - 401: INVALID_CREDENTIALS: Generic rejection, never discloses which field
  - 403: EMAIL_NOT_VERIFIED or a locked account
*/
func (handler *Handler) login(writer http.ResponseWriter, request *http.Request) {
	var input loginRequest

	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	validator := &validate.Validator{}
	validator.Required(FieldEmail, input.Email).
		Email(FieldEmail, input.Email).
		Required(FieldPassword, input.Password)

	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	result, err := handler.identityService.Login(request.Context(), input.Email, input.Password)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	if result.TwoFactorRequired {
		respond.OK(writer, map[string]any{
			"two_factor_required": true,
			FieldTempToken:        result.TempToken,
		})
		return
	}

	handler.setAuthCookies(writer, result)
	respond.OK(writer, loginPayload(result))
}

/*
CompleteTwoFactor finishes a login parked behind a second factor.

POST /auth/2fa

Request:
  - Body: twoFactorRequest (TempToken, Code)

Response:
  - 200: Access token and identity
  - 401: INVALID_CREDENTIALS or TOKEN_EXPIRED
*/
func (handler *Handler) completeTwoFactor(writer http.ResponseWriter, request *http.Request) {
	var input twoFactorRequest

	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	validator := &validate.Validator{}
	validator.Required(FieldTempToken, input.TempToken).
		Required(FieldCode, input.Code)

	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	result, err := handler.identityService.CompleteTwoFactor(request.Context(), input.TempToken, input.Code)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	handler.setAuthCookies(writer, result)
	respond.OK(writer, loginPayload(result))
}

/*
Logout terminates the current session.

POST /auth/logout

Description: Revokes the session behind the refresh-token cookie when one is
present and clears every authentication cookie. Responds 200 unconditionally;
an unknown or already-revoked token is not an error.

Response:
  - 200: Generic confirmation
*/
func (handler *Handler) logout(writer http.ResponseWriter, request *http.Request) {
	if cookie, err := request.Cookie(constants.RefreshTokenCookieName); err == nil && cookie.Value != "" {
		if err := handler.identityService.Logout(request.Context(), cookie.Value); err != nil {
			// Best effort: the client still gets its cookies cleared and a
			// 200; the session row stays for the sweep to reclaim.
			ctxutil.GetLogger(request.Context()).ErrorContext(request.Context(),
				"logout revocation failed", "error", err)
		}
	}

	handler.clearAuthCookies(writer)
	respond.OK(writer, map[string]any{FieldMessage: "Logged out"})
}

/*
Register creates a new local account.

POST /auth/register

Description: Rejects blocked email domains. A duplicate email returns the
same generic 200 a fresh registration does, after a masking delay.

Request:
  - Body: registerRequest (Email, Password, Name, Username)

Response:
  - 200: Generic confirmation, identical for new and duplicate emails
  - 400: VALIDATION_ERROR
  - 403: FORBIDDEN: Blocked email domain
*/
func (handler *Handler) register(writer http.ResponseWriter, request *http.Request) {
	var input registerRequest

	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	validator := &validate.Validator{}
	validator.Required(FieldEmail, input.Email).
		Email(FieldEmail, input.Email).
		Required(FieldPassword, input.Password).
		MinLen(FieldPassword, input.Password, 8).
		Required(FieldName, input.Name).
		MaxLen(FieldName, input.Name, 100)

	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	if _, err := handler.identityService.Register(request.Context(), RegisterInput{
		Email:    input.Email,
		Password: input.Password,
		Name:     input.Name,
		Username: input.Username,
	}); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]any{
		FieldMessage: "If the email address is new to us, a verification email has been sent",
	})
}

/*
VerifyEmail confirms email ownership through a one-time token.

GET|POST /auth/verify-email

Description: The GET form serves mailed links (?uid=...&token=...), the POST
form serves API clients. Tokens are single-use; an already-verified account
short-circuits to success.

Response:
  - 200: Generic confirmation
  - 400: TOKEN_EXPIRED: Bad, spent or expired token
  - 404: NOT_FOUND: Unknown identity
*/
func (handler *Handler) verifyEmail(writer http.ResponseWriter, request *http.Request) {
	var input verifyEmailRequest

	if request.Method == http.MethodGet {
		input.UserID = request.URL.Query().Get("uid")
		input.Token = request.URL.Query().Get("token")
	} else if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	validator := &validate.Validator{}
	validator.Required(FieldUserID, input.UserID).
		UUID(FieldUserID, input.UserID).
		Required(FieldToken, input.Token)

	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.identityService.VerifyEmail(request.Context(), input.UserID, input.Token); err != nil {
		if apperr.IsCode(err, apperr.CodeTokenExpired) {
			// A mailed link is a bad request here, not a failed authentication.
			respond.Error(writer, request, &apperr.AppError{
				Code:       apperr.CodeTokenExpired,
				Message:    "Verification token is invalid or expired",
				HTTPStatus: http.StatusBadRequest,
			})
			return
		}
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]any{FieldMessage: "Email address verified"})
}

/*
RequestPasswordReset starts a password reset flow.

POST /auth/request-password-reset

Description: Always answers with the same generic sentence whether or not
the account exists. When mail delivery is disabled the response carries the
reset link directly.

Request:
  - Body: requestResetRequest (Email)

Response:
  - 200: Generic confirmation
*/
func (handler *Handler) requestPasswordReset(writer http.ResponseWriter, request *http.Request) {
	var input requestResetRequest

	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	validator := &validate.Validator{}
	validator.Required(FieldEmail, input.Email).
		Email(FieldEmail, input.Email)

	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	directive, _ := handler.identityService.RequestPasswordReset(request.Context(), input.Email)

	payload := map[string]any{
		FieldMessage: "If an account exists for that address, reset instructions have been sent",
	}
	if directive != nil && directive.Link != "" {
		payload["reset_link"] = directive.Link
	}

	respond.OK(writer, payload)
}

/*
ResetPassword completes a password reset.

POST /auth/reset-password

Description: With a user id the token is checked locally; without one, in
delegated mode, it is forwarded to the remote authority. Success revokes
every session the identity holds.

Request:
  - Body: resetPasswordRequest (UserID optional, Token, NewPassword)

Response:
  - 200: Generic confirmation
  - 400: VALIDATION_ERROR
  - 401: TOKEN_EXPIRED: Bad, spent or expired token
*/
func (handler *Handler) resetPassword(writer http.ResponseWriter, request *http.Request) {
	var input resetPasswordRequest

	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	validator := &validate.Validator{}
	validator.Required(FieldToken, input.Token).
		Required(FieldPassword, input.NewPassword).
		MinLen(FieldPassword, input.NewPassword, 8)
	if input.UserID != "" {
		validator.UUID(FieldUserID, input.UserID)
	}

	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.identityService.ResetPassword(request.Context(), ResetInput{
		IdentityID:  input.UserID,
		Token:       input.Token,
		NewPassword: input.NewPassword,
	}); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]any{FieldMessage: "Password has been reset"})
}

/*
Refresh rotates the refresh token and issues a new access token.

POST /auth/refresh

Description: Reads the refresh-token cookie, rotates the session in place
(same session id, same absolute expiry) and reissues both tokens.

Response:
  - 200: New access token credentials
  - 401: UNAUTHORIZED: Missing, invalid or expired refresh token
*/
func (handler *Handler) refresh(writer http.ResponseWriter, request *http.Request) {
	cookie, err := request.Cookie(constants.RefreshTokenCookieName)
	if err != nil || cookie.Value == "" {
		respond.Error(writer, request, apperr.Unauthorized("Missing refresh token in cookies"))
		return
	}

	result, err := handler.identityService.Refresh(request.Context(), cookie.Value)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	handler.setAuthCookies(writer, result)
	respond.OK(writer, loginPayload(result))
}

/*
Me returns the canonical identity behind the presented bearer token.

GET /auth/me

Description: Rehydrates the token claims into the stored identity record, so
federated principals see their canonical Parley profile, not the remote one.

Response:
  - 200: Identity
  - 401: UNAUTHORIZED: Missing or invalid bearer token
  - 404: NOT_FOUND: Verified token for a subject with no local record
*/
func (handler *Handler) me(writer http.ResponseWriter, request *http.Request) {
	claims, err := requestutil.RequiredPrincipal(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	identity, err := handler.identityService.Resolve(request.Context(), claims)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, identity)
}
