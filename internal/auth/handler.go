package auth

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/briefops/identity-api/internal/httputil"
	"github.com/briefops/identity-api/internal/logging"
	"github.com/briefops/identity-api/internal/user"
)

// Handler contains HTTP handlers for the identity endpoints
type Handler struct {
	service      *Service
	sessions     *SessionManager
	logger       *logging.Logger
	isProduction bool
}

func NewHandler(service *Service, sessions *SessionManager, logger *logging.Logger, isProduction bool) *Handler {
	return &Handler{
		service:      service,
		sessions:     sessions,
		logger:       logger,
		isProduction: isProduction,
	}
}

// RegisterRequest represents the registration request body
type RegisterRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// LoginRequest represents the login request body
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// UpdateProfileRequest represents the profile patch body. Absent fields are
// left unchanged.
type UpdateProfileRequest struct {
	Email     *string `json:"email"`
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
}

// UserResponse wraps the safe user projection
type UserResponse struct {
	User user.Public `json:"user"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// Register handles local account registration
// @Summary      Register a new user
// @Description  Create a local account with email and password and issue a session.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request body RegisterRequest true "Registration credentials"
// @Success      201 {object} UserResponse
// @Failure      400 {object} ErrorResponse "Invalid email or password"
// @Failure      409 {object} ErrorResponse "Email already in use"
// @Failure      500 {object} ErrorResponse "Internal server error"
// @Router       /auth/register [post]
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid registration request body", "error", err.Error())
		respondError(w, "invalid request body", httputil.CodeInvalidRequestBody, http.StatusBadRequest)
		return
	}

	newUser, err := h.service.Register(r.Context(), req.Email, req.Password, req.FirstName, req.LastName)
	if err != nil {
		if errors.Is(err, user.ErrEmailTaken) {
			logger.Warn("registration failed: email already in use")
			respondError(w, "email already in use", httputil.CodeEmailTaken, http.StatusConflict)
			return
		}
		if code, ok := validationCode(err); ok {
			logger.Warn("registration failed: validation error", "error", err.Error())
			respondError(w, err.Error(), code, http.StatusBadRequest)
			return
		}
		logger.Error("registration failed: internal error", "error", err.Error())
		respondError(w, "failed to register user", httputil.CodeInternalError, http.StatusInternalServerError)
		return
	}

	logger.Info("user registered successfully", "user_id", newUser.ID)

	h.respondWithSession(w, r, newUser, http.StatusCreated)
}

// Login handles local credential login
// @Summary      User login
// @Description  Verify an email/password pair and issue a session. Failures are deliberately undifferentiated.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request body LoginRequest true "Login credentials"
// @Success      200 {object} UserResponse
// @Failure      400 {object} ErrorResponse "Invalid request body"
// @Failure      401 {object} ErrorResponse "Invalid credentials"
// @Failure      500 {object} ErrorResponse "Internal server error"
// @Router       /auth/login [post]
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid login request body", "error", err.Error())
		respondError(w, "invalid request body", httputil.CodeInvalidRequestBody, http.StatusBadRequest)
		return
	}

	existing, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			logger.Warn("login failed: invalid credentials")
			respondError(w, "invalid credentials", httputil.CodeInvalidCredentials, http.StatusUnauthorized)
			return
		}
		logger.Error("login failed: internal error", "error", err.Error())
		respondError(w, "failed to login", httputil.CodeInternalError, http.StatusInternalServerError)
		return
	}

	logger.Info("user logged in successfully", "user_id", existing.ID)

	h.respondWithSession(w, r, existing, http.StatusOK)
}

// FederatedSignIn reconciles a trusted federated assertion and issues a session
// @Summary      Federated sign-in
// @Description  Reconcile a verified identity-provider assertion into a user record and issue a session. The upstream exchange must have validated the assertion already.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request body FederatedClaims true "Verified provider claims"
// @Success      200 {object} UserResponse
// @Failure      400 {object} ErrorResponse "Missing subject id"
// @Failure      409 {object} ErrorResponse "Email owned by another account"
// @Failure      500 {object} ErrorResponse "Internal server error"
// @Router       /auth/federated [post]
func (h *Handler) FederatedSignIn(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	var claims FederatedClaims
	if err := json.NewDecoder(r.Body).Decode(&claims); err != nil {
		logger.Warn("invalid federated sign-in body", "error", err.Error())
		respondError(w, "invalid request body", httputil.CodeInvalidRequestBody, http.StatusBadRequest)
		return
	}

	resolved, err := h.service.UpsertFederated(r.Context(), claims)
	if err != nil {
		if errors.Is(err, ErrSubjectRequired) {
			logger.Warn("federated sign-in failed: missing subject id")
			respondError(w, err.Error(), httputil.CodeSubjectRequired, http.StatusBadRequest)
			return
		}
		if errors.Is(err, user.ErrEmailTaken) {
			logger.Warn("federated sign-in failed: email owned by another account")
			respondError(w, "email already in use", httputil.CodeEmailTaken, http.StatusConflict)
			return
		}
		logger.Error("federated sign-in failed: internal error", "error", err.Error())
		respondError(w, "failed to sign in", httputil.CodeInternalError, http.StatusInternalServerError)
		return
	}

	logger.Info("federated sign-in reconciled", "user_id", resolved.ID)

	h.respondWithSession(w, r, resolved, http.StatusOK)
}

// Logout handles user logout
// @Summary      User logout
// @Description  Revoke the current session and clear the session cookie. Idempotent.
// @Tags         auth
// @Produce      json
// @Success      200 {object} map[string]string
// @Router       /auth/logout [post]
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	// Best effort: revoke whatever session the request carries. A missing
	// or invalid token still logs out cleanly.
	if token, err := GetSessionTokenFromCookie(r); err == nil && token != "" {
		if err := h.sessions.Revoke(r.Context(), token); err != nil {
			logger.Warn("failed to revoke session", "error", err.Error())
		}
	}

	ClearSessionCookie(w)

	logger.Info("user logged out")

	respondJSON(w, map[string]string{"message": "logged out"}, http.StatusOK)
}

// CurrentUser returns the authenticated user's record
// @Summary      Get current user
// @Description  Return the safe fields of the user behind the current session.
// @Tags         users
// @Produce      json
// @Security     BearerAuth
// @Success      200 {object} UserResponse
// @Failure      401 {object} ErrorResponse "Unauthenticated"
// @Failure      404 {object} ErrorResponse "Subject no longer exists"
// @Router       /users/me [get]
func (h *Handler) CurrentUser(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	claims, ok := GetClaimsFromContext(r.Context())
	if !ok {
		respondError(w, "missing authentication", httputil.CodeMissingAuth, http.StatusUnauthorized)
		return
	}

	current, err := h.service.GetUser(r.Context(), claims.UserID)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			logger.Warn("session subject no longer exists", "user_id", claims.UserID)
			respondError(w, "user not found", httputil.CodeUserNotFound, http.StatusNotFound)
			return
		}
		logger.Error("failed to load current user", "error", err.Error())
		respondError(w, "failed to load user", httputil.CodeInternalError, http.StatusInternalServerError)
		return
	}

	respondJSON(w, UserResponse{User: current.Public()}, http.StatusOK)
}

// UpdateCurrentUser applies profile edits to the authenticated user
// @Summary      Update current user
// @Description  Patch the email or display name of the user behind the current session.
// @Tags         users
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body UpdateProfileRequest true "Fields to update"
// @Success      200 {object} UserResponse
// @Failure      400 {object} ErrorResponse "Invalid email or empty update"
// @Failure      401 {object} ErrorResponse "Unauthenticated"
// @Failure      404 {object} ErrorResponse "Subject no longer exists"
// @Failure      409 {object} ErrorResponse "Email already in use"
// @Router       /users/me [patch]
func (h *Handler) UpdateCurrentUser(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	claims, ok := GetClaimsFromContext(r.Context())
	if !ok {
		respondError(w, "missing authentication", httputil.CodeMissingAuth, http.StatusUnauthorized)
		return
	}

	var req UpdateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid profile update body", "error", err.Error())
		respondError(w, "invalid request body", httputil.CodeInvalidRequestBody, http.StatusBadRequest)
		return
	}

	updated, err := h.service.UpdateProfile(r.Context(), claims.UserID, ProfileUpdate{
		Email:     req.Email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		if errors.Is(err, ErrNothingToUpdate) {
			logger.Warn("profile update rejected: empty diff")
			respondError(w, err.Error(), httputil.CodeNothingToUpdate, http.StatusBadRequest)
			return
		}
		if code, ok := validationCode(err); ok {
			logger.Warn("profile update rejected: validation error", "error", err.Error())
			respondError(w, err.Error(), code, http.StatusBadRequest)
			return
		}
		if errors.Is(err, user.ErrEmailTaken) {
			logger.Warn("profile update rejected: email already in use")
			respondError(w, "email already in use", httputil.CodeEmailTaken, http.StatusConflict)
			return
		}
		if errors.Is(err, user.ErrNotFound) {
			logger.Warn("profile update failed: user not found", "user_id", claims.UserID)
			respondError(w, "user not found", httputil.CodeUserNotFound, http.StatusNotFound)
			return
		}
		logger.Error("profile update failed: internal error", "error", err.Error())
		respondError(w, "failed to update profile", httputil.CodeInternalError, http.StatusInternalServerError)
		return
	}

	logger.Info("profile updated", "user_id", updated.ID)

	respondJSON(w, UserResponse{User: updated.Public()}, http.StatusOK)
}

// respondWithSession issues a session for the resolved user, sets the cookie
// and writes the safe projection.
func (h *Handler) respondWithSession(w http.ResponseWriter, r *http.Request, u *user.User, status int) {
	logger := logging.GetLoggerFromContext(r.Context())

	token, err := h.sessions.Issue(r.Context(), u)
	if err != nil {
		logger.Error("failed to issue session", "error", err.Error())
		respondError(w, "failed to issue session", httputil.CodeInternalError, http.StatusInternalServerError)
		return
	}

	SetSessionCookie(w, token, h.isProduction, h.sessions.TTL())
	respondJSON(w, UserResponse{User: u.Public()}, status)
}

// validationCode maps a service validation error to its machine-readable code.
func validationCode(err error) (string, bool) {
	switch {
	case errors.Is(err, ErrEmailRequired):
		return httputil.CodeEmailRequired, true
	case errors.Is(err, ErrInvalidEmailFormat):
		return httputil.CodeInvalidEmailFormat, true
	case errors.Is(err, ErrPasswordRequired):
		return httputil.CodePasswordRequired, true
	case errors.Is(err, ErrPasswordTooShort):
		return httputil.CodePasswordTooShort, true
	default:
		return "", false
	}
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, data any, statusCode int) {
	httputil.RespondJSON(w, data, statusCode)
}

// respondError sends an error response with a machine-readable code
func respondError(w http.ResponseWriter, message string, code string, statusCode int) {
	httputil.RespondErrorWithCode(w, message, code, statusCode)
}
