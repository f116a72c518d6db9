package auth

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/schoolgate/schoolgate/internal/version"
	"go.uber.org/zap"
)

// handleLogin authenticates a user and returns a token pair.
//
//	@Summary		Login
//	@Description	Authenticate with username and password to receive a JWT token pair.
//	@Tags			auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		LoginRequest	true	"Login credentials"
//	@Success		200		{object}	TokenPair
//	@Failure		400		{object}	map[string]any
//	@Failure		401		{object}	map[string]any
//	@Failure		500		{object}	map[string]any
//	@Router			/auth/login [post]
func (m *Module) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAuthError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Username == "" || req.Password == "" {
		writeAuthError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	pair, err := m.service.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidCredentials), errors.Is(err, ErrUserDisabled):
			writeAuthError(w, http.StatusUnauthorized, "invalid username or password")
		case errors.Is(err, ErrAccountLocked):
			writeAuthError(w, http.StatusUnauthorized, "account temporarily locked, try again later")
		default:
			m.logger.Error("login error", zap.Error(err))
			writeAuthError(w, http.StatusInternalServerError, "authentication failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, pair)
}

// handleRefresh validates a refresh token and returns a new token pair.
//
//	@Summary		Refresh tokens
//	@Description	Exchange a valid refresh token for a new token pair (token rotation).
//	@Tags			auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		RefreshRequest	true	"Refresh token"
//	@Success		200		{object}	TokenPair
//	@Failure		400		{object}	map[string]any
//	@Failure		401		{object}	map[string]any
//	@Failure		500		{object}	map[string]any
//	@Router			/auth/refresh [post]
func (m *Module) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAuthError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.RefreshToken == "" {
		writeAuthError(w, http.StatusBadRequest, "refreshToken is required")
		return
	}

	pair, err := m.service.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		if errors.Is(err, ErrInvalidToken) || errors.Is(err, ErrUserDisabled) {
			writeAuthError(w, http.StatusUnauthorized, "invalid or expired refresh token")
			return
		}
		m.logger.Error("refresh error", zap.Error(err))
		writeAuthError(w, http.StatusInternalServerError, "token refresh failed")
		return
	}

	writeJSON(w, http.StatusOK, pair)
}

// handleLogout revokes a refresh token.
//
//	@Summary		Logout
//	@Description	Revoke a refresh token to end a session.
//	@Tags			auth
//	@Accept			json
//	@Param			request	body	LogoutRequest	true	"Refresh token to revoke"
//	@Success		204		"No Content"
//	@Failure		400		{object}	map[string]any
//	@Failure		500		{object}	map[string]any
//	@Router			/auth/logout [post]
func (m *Module) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAuthError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.RefreshToken == "" {
		writeAuthError(w, http.StatusBadRequest, "refreshToken is required")
		return
	}

	if err := m.service.Logout(r.Context(), req.RefreshToken); err != nil {
		m.logger.Error("logout error", zap.Error(err))
		writeAuthError(w, http.StatusInternalServerError, "logout failed")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleSetup creates the initial admin account.
//
//	@Summary		Initial setup
//	@Description	Create the first admin account. Only works when no users exist.
//	@Tags			auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		SetupRequest	true	"Admin account details"
//	@Success		201		{object}	User
//	@Failure		400		{object}	map[string]any
//	@Failure		409		{object}	map[string]any
//	@Router			/auth/setup [post]
func (m *Module) handleSetup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAuthError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Username == "" || req.Email == "" || req.Password == "" {
		writeAuthError(w, http.StatusBadRequest, "username, email, and password are required")
		return
	}

	user, err := m.service.Setup(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, ErrSetupComplete) {
			writeAuthError(w, http.StatusConflict, "setup already completed")
			return
		}
		writeAuthError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, user)
}

// handleSetupStatus reports whether initial setup is required.
//
//	@Summary		Check setup status
//	@Description	Returns whether initial admin setup is needed and the server version.
//	@Tags			auth
//	@Produce		json
//	@Success		200	{object}	SetupStatusResponse
//	@Router			/auth/setup/status [get]
func (m *Module) handleSetupStatus(w http.ResponseWriter, r *http.Request) {
	needed, err := m.service.NeedsSetup(r.Context())
	if err != nil {
		m.logger.Error("setup status check failed", zap.Error(err))
		writeAuthError(w, http.StatusInternalServerError, "failed to check setup status")
		return
	}
	writeJSON(w, http.StatusOK, SetupStatusResponse{
		SetupRequired: needed,
		Version:       version.Short(),
	})
}

// handleCreateUser provisions an operator or system account.
//
//	@Summary		Create user
//	@Description	Create an operator or system account. Requires admin role.
//	@Tags			users
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			request	body		CreateUserRequest	true	"Account details"
//	@Success		201		{object}	User
//	@Failure		400		{object}	map[string]any
//	@Failure		403		{object}	map[string]any
//	@Router			/auth/users [post]
func (m *Module) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
		Role     string `json:"role"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAuthError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Username == "" || req.Email == "" || req.Password == "" {
		writeAuthError(w, http.StatusBadRequest, "username, email, and password are required")
		return
	}

	user, err := m.service.CreateUser(r.Context(), req.Username, req.Email, req.Password, Role(req.Role))
	if err != nil {
		writeAuthError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

// handleListUsers returns all users.
//
//	@Summary		List users
//	@Description	Returns all user accounts. Requires admin role.
//	@Tags			users
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200	{array}		User
//	@Failure		401	{object}	map[string]any
//	@Failure		403	{object}	map[string]any
//	@Router			/auth/users [get]
func (m *Module) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := m.service.ListUsers(r.Context())
	if err != nil {
		m.logger.Error("list users error", zap.Error(err))
		writeAuthError(w, http.StatusInternalServerError, "failed to list users")
		return
	}
	writeJSON(w, http.StatusOK, users)
}

// handleGetUser returns a user by ID.
//
//	@Summary		Get user
//	@Tags			users
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id	path		string	true	"User ID"
//	@Success		200	{object}	User
//	@Failure		404	{object}	map[string]any
//	@Router			/auth/users/{id} [get]
func (m *Module) handleGetUser(w http.ResponseWriter, r *http.Request) {
	user, err := m.service.GetUser(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			writeAuthError(w, http.StatusNotFound, "user not found")
			return
		}
		m.logger.Error("get user error", zap.Error(err))
		writeAuthError(w, http.StatusInternalServerError, "failed to get user")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// handleUpdateUser updates a user's email, role, and disabled status.
//
//	@Summary		Update user
//	@Tags			users
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id		path		string				true	"User ID"
//	@Param			request	body		UpdateUserRequest	true	"Updated user fields"
//	@Success		200		{object}	User
//	@Failure		400		{object}	map[string]any
//	@Failure		404		{object}	map[string]any
//	@Router			/auth/users/{id} [put]
func (m *Module) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Role     string `json:"role"`
		Disabled bool   `json:"disabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAuthError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	role := Role(req.Role)
	if !ValidRoles[role] {
		writeAuthError(w, http.StatusBadRequest, "invalid role: must be admin, system, or viewer")
		return
	}

	user, err := m.service.UpdateUser(r.Context(), r.PathValue("id"), req.Email, role, req.Disabled)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			writeAuthError(w, http.StatusNotFound, "user not found")
			return
		}
		m.logger.Error("update user error", zap.Error(err))
		writeAuthError(w, http.StatusInternalServerError, "failed to update user")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// handleDeleteUser removes a user by ID.
//
//	@Summary		Delete user
//	@Tags			users
//	@Security		BearerAuth
//	@Param			id	path	string	true	"User ID"
//	@Success		204	"No Content"
//	@Failure		404	{object}	map[string]any
//	@Router			/auth/users/{id} [delete]
func (m *Module) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	if err := m.service.DeleteUser(r.Context(), r.PathValue("id")); err != nil {
		if errors.Is(err, ErrUserNotFound) {
			writeAuthError(w, http.StatusNotFound, "user not found")
			return
		}
		m.logger.Error("delete user error", zap.Error(err))
		writeAuthError(w, http.StatusInternalServerError, "failed to delete user")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleMe returns the authenticated caller's claims.
//
//	@Summary	Current identity
//	@Tags		auth
//	@Produce	json
//	@Security	BearerAuth
//	@Success	200	{object}	map[string]any
//	@Failure	401	{object}	map[string]any
//	@Router		/auth/me [get]
func (m *Module) handleMe(w http.ResponseWriter, r *http.Request) {
	claims := UserFromContext(r.Context())
	if claims == nil {
		writeAuthError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"userId":   claims.UserID,
		"username": claims.Username,
		"role":     claims.Role,
	})
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeAuthError writes an RFC 7807 problem response.
func writeAuthError(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"type":   "https://schoolgate.io/problems/auth-error",
		"title":  http.StatusText(status),
		"status": status,
		"detail": detail,
	})
}
