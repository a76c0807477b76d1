package http

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/aussiebroadwan/dealerdesk/internal/devissuer/domain"
	"github.com/aussiebroadwan/dealerdesk/internal/devissuer/service"
	"github.com/aussiebroadwan/dealerdesk/pkg/httpx"
	"github.com/aussiebroadwan/dealerdesk/pkg/sessionsdk"
	"github.com/aussiebroadwan/dealerdesk/pkg/slogx"
)

// AuthHandler serves the /auth endpoints the session client calls.
type AuthHandler struct {
	AuthService *service.AuthService
	Metrics     *Metrics
}

// HandleLogin serves POST /auth/login.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req sessionsdk.Credentials
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		h.reject(w, "login", http.StatusBadRequest, "Invalid request body")
		return
	}

	pair, u, err := h.AuthService.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			h.reject(w, "login", http.StatusUnauthorized, "Invalid username or password")
			return
		}
		h.fail(w, r, "login", err)
		return
	}

	h.Metrics.issued.WithLabelValues(grantLogin).Inc()
	httpx.WriteJSON(w, http.StatusOK, tokenResponse(pair, &u))
}

// HandleRegister serves POST /auth/register.
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req sessionsdk.Registration
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		h.reject(w, "register", http.StatusBadRequest, "Invalid request body")
		return
	}

	pair, u, err := h.AuthService.Register(r.Context(), service.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
		FullName: req.FullName,
		Role:     req.Role,
	})
	if err != nil {
		var verr *service.ValidationError
		switch {
		case errors.As(err, &verr):
			h.reject(w, "register", http.StatusBadRequest, verr.Message)
		case errors.Is(err, service.ErrUserExists):
			h.reject(w, "register", http.StatusConflict, "Username or email already exists")
		case errors.Is(err, service.ErrRoleNotAllowed):
			h.reject(w, "register", http.StatusForbidden, "Role cannot be self-assigned")
		default:
			h.fail(w, r, "register", err)
		}
		return
	}

	h.Metrics.issued.WithLabelValues(grantRegister).Inc()
	httpx.WriteJSON(w, http.StatusCreated, tokenResponse(pair, &u))
}

// HandleRefresh serves POST /auth/refresh.
func (h *AuthHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	var req sessionsdk.RefreshRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		h.reject(w, "refresh", http.StatusBadRequest, "Invalid request body")
		return
	}

	pair, err := h.AuthService.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		if errors.Is(err, service.ErrInvalidRefresh) {
			h.reject(w, "refresh", http.StatusUnauthorized, "Invalid or expired refresh token")
			return
		}
		h.fail(w, r, "refresh", err)
		return
	}

	h.Metrics.issued.WithLabelValues(grantRefresh).Inc()
	httpx.WriteJSON(w, http.StatusOK, tokenResponse(pair, nil))
}

// HandleLogout serves POST /auth/logout. Unknown tokens still get a 204.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	var req sessionsdk.LogoutRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		h.reject(w, "logout", http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.AuthService.Logout(r.Context(), req.RefreshToken); err != nil {
		h.fail(w, r, "logout", err)
		return
	}

	httpx.NoCache(w)
	w.WriteHeader(http.StatusNoContent)
}

// HandleChangePassword serves POST /auth/change-password.
func (h *AuthHandler) HandleChangePassword(w http.ResponseWriter, r *http.Request) {
	claims, ok := httpx.ClaimsFromContext(r.Context())
	if !ok {
		h.reject(w, "change-password", http.StatusUnauthorized, "missing bearer token")
		return
	}

	var req sessionsdk.ChangePasswordRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		h.reject(w, "change-password", http.StatusBadRequest, "Invalid request body")
		return
	}

	err := h.AuthService.ChangePassword(r.Context(), claims.Subject, req.CurrentPassword, req.NewPassword)
	if err != nil {
		var verr *service.ValidationError
		switch {
		case errors.As(err, &verr):
			h.reject(w, "change-password", http.StatusBadRequest, verr.Message)
		case errors.Is(err, service.ErrInvalidCredentials):
			h.reject(w, "change-password", http.StatusBadRequest, "Current password is incorrect")
		case errors.Is(err, service.ErrUserNotFound):
			h.reject(w, "change-password", http.StatusNotFound, "User not found")
		default:
			h.fail(w, r, "change-password", err)
		}
		return
	}

	httpx.WriteJSON(w, http.StatusOK, sessionsdk.MessageResponse{Message: "Password updated"})
}

// HandleForgotPassword serves POST /auth/forgot-password. The answer is the
// same whether or not the address belongs to an account.
func (h *AuthHandler) HandleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req sessionsdk.ForgotPasswordRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		h.reject(w, "forgot-password", http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.AuthService.ForgotPassword(r.Context(), req.Email); err != nil {
		var verr *service.ValidationError
		if errors.As(err, &verr) {
			h.reject(w, "forgot-password", http.StatusBadRequest, verr.Message)
			return
		}
		h.fail(w, r, "forgot-password", err)
		return
	}

	httpx.WriteJSON(w, http.StatusAccepted, sessionsdk.MessageResponse{
		Message: "If the account exists, a reset link has been sent",
	})
}

// HandleResetPassword serves POST /auth/reset-password.
func (h *AuthHandler) HandleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req sessionsdk.ResetPasswordRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		h.reject(w, "reset-password", http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.AuthService.ResetPassword(r.Context(), req.Token, req.NewPassword); err != nil {
		var verr *service.ValidationError
		switch {
		case errors.As(err, &verr):
			h.reject(w, "reset-password", http.StatusBadRequest, verr.Message)
		case errors.Is(err, service.ErrInvalidReset):
			h.reject(w, "reset-password", http.StatusBadRequest, "Invalid or expired reset token")
		default:
			h.fail(w, r, "reset-password", err)
		}
		return
	}

	httpx.WriteJSON(w, http.StatusOK, sessionsdk.MessageResponse{Message: "Password has been reset"})
}

func (h *AuthHandler) reject(w http.ResponseWriter, endpoint string, code int, msg string) {
	h.Metrics.rejected.WithLabelValues(endpoint, strconv.Itoa(code)).Inc()
	httpx.WriteError(w, code, msg)
}

func (h *AuthHandler) fail(w http.ResponseWriter, r *http.Request, endpoint string, err error) {
	slogx.FromContext(r.Context()).Error("auth request failed",
		slog.String("endpoint", endpoint),
		slog.Any("error", err),
	)
	h.reject(w, endpoint, http.StatusInternalServerError, "Internal server error")
}

func tokenResponse(pair domain.TokenPair, u *domain.User) sessionsdk.TokenResponse {
	resp := sessionsdk.TokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	}
	if u != nil {
		resp.User = &sessionsdk.User{
			ID:          u.ID,
			Username:    u.Username,
			Role:        u.Role,
			Permissions: u.Permissions,
		}
	}
	return resp
}
