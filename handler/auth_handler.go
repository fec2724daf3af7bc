// file: handler/auth_handler.go

package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/sirupsen/logrus"
	"github.com/themidix/GlucoCheckWebAPIv4/common"
	"github.com/themidix/GlucoCheckWebAPIv4/logger"
	"github.com/themidix/GlucoCheckWebAPIv4/model"
	"github.com/themidix/GlucoCheckWebAPIv4/service"
)

type AuthHandler struct {
	service *service.AuthService
}

func NewAuthHandler(service *service.AuthService) *AuthHandler {
	return &AuthHandler{service: service}
}

// Register godoc
// @Summary      Register a new user
// @Description  Creates a user account after checking the email format and password policy.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        user body model.RegisterRequest true "User registration details"
// @Success      201  {object}  model.RegisterResponse
// @Failure      400  {object}  common.AppError "Missing fields, invalid email, weak password or email already in use"
// @Failure      429  {object}  common.AppError "Too many requests"
// @Failure      500  {object}  common.AppError "Internal server error"
// @Router       /register [post]
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) *common.AppError {
	var req model.RegisterRequest
	if err := common.ValidateAndDecode(r, &req); err != nil {
		return err
	}

	userID, err := h.service.Register(r.Context(), service.RegisterInput{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Password:  req.Password,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrMissingFields), errors.Is(err, service.ErrInvalidEmail),
			errors.Is(err, service.ErrWeakPassword), errors.Is(err, service.ErrEmailTaken):
			return common.NewAppError(http.StatusBadRequest, err.Error(), nil)
		default:
			return common.NewAppError(http.StatusInternalServerError, "Could not register user", err)
		}
	}

	common.WriteJSON(w, http.StatusCreated, model.RegisterResponse{
		Message: "User registered successfully",
		UserID:  userID,
	})
	return nil
}

// Login godoc
// @Summary      Log in a user
// @Description  Authenticates a user and returns an access and a refresh token.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        credentials body model.LoginRequest true "User login credentials"
// @Success      200  {object}  model.LoginResponse
// @Failure      400  {object}  common.AppError "Missing fields or invalid email"
// @Failure      401  {object}  common.AppError "Invalid email or password"
// @Failure      429  {object}  common.AppError "Too many requests"
// @Router       /login [post]
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) *common.AppError {
	var req model.LoginRequest
	if err := common.ValidateAndDecode(r, &req); err != nil {
		return err
	}

	res, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrMissingFields), errors.Is(err, service.ErrInvalidEmail):
			return common.NewAppError(http.StatusBadRequest, err.Error(), nil)
		case errors.Is(err, service.ErrInvalidCredentials):
			return common.NewAppError(http.StatusUnauthorized, err.Error(), nil)
		default:
			return common.NewAppError(http.StatusInternalServerError, "Could not log in", err)
		}
	}

	common.WriteJSON(w, http.StatusOK, model.LoginResponse{
		Message:   "Login successful",
		TokenPair: res.TokenPair,
		User:      res.User,
	})
	return nil
}

// Logout godoc
// @Summary      Log out
// @Description  Revokes the presented access token. A refresh token in the body is revoked as well.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body body model.LogoutRequest false "Optional refresh token to revoke"
// @Success      200  {object}  model.MessageResponse
// @Failure      401  {object}  common.AppError "Token revoked or expired"
// @Failure      403  {object}  common.AppError "Missing or invalid token"
// @Failure      404  {object}  common.AppError "User not found"
// @Router       /logout [post]
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) *common.AppError {
	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		return common.NewAppError(http.StatusForbidden, "Token is missing", nil)
	}

	var req model.LogoutRequest
	if r.Body != nil {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			return common.NewAppError(http.StatusBadRequest, "Invalid request body", err)
		}
	}

	if err := h.service.Logout(r.Context(), identity, req.RefreshToken); err != nil {
		return common.NewAppError(http.StatusInternalServerError, "Could not log out", err)
	}

	common.WriteJSON(w, http.StatusOK, model.MessageResponse{Message: "Logged out successfully"})
	return nil
}

// Refresh godoc
// @Summary      Refresh the access token
// @Description  Exchanges a refresh token for a new access token. The refresh token itself is not rotated.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body body model.RefreshRequest true "Refresh token"
// @Success      200  {object}  model.RefreshResponse
// @Failure      400  {object}  common.AppError "Refresh token is missing"
// @Failure      401  {object}  common.AppError "Refresh token revoked or expired"
// @Failure      403  {object}  common.AppError "Invalid refresh token"
// @Failure      404  {object}  common.AppError "User not found"
// @Router       /refresh [post]
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) *common.AppError {
	var req model.RefreshRequest
	if err := common.ValidateAndDecode(r, &req); err != nil {
		return err
	}

	accessToken, err := h.service.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrMissingFields):
			return common.NewAppError(http.StatusBadRequest, "Refresh token is missing", nil)
		case errors.Is(err, service.ErrTokenRevoked):
			return common.NewAppError(http.StatusUnauthorized, "Refresh token has been revoked", nil)
		case errors.Is(err, service.ErrTokenExpired):
			return common.NewAppError(http.StatusUnauthorized, "Refresh token has expired", nil)
		case errors.Is(err, service.ErrTokenInvalid):
			return common.NewAppError(http.StatusForbidden, "Invalid refresh token", err)
		case errors.Is(err, service.ErrUserNotFound):
			return common.NewAppError(http.StatusNotFound, "User not found", nil)
		default:
			return common.NewAppError(http.StatusInternalServerError, "Could not refresh token", err)
		}
	}

	common.WriteJSON(w, http.StatusOK, model.RefreshResponse{AccessToken: accessToken})
	return nil
}

// ForgotPassword godoc
// @Summary      Request a password reset
// @Description  Mails a password reset link to the user.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body body model.ForgotPasswordRequest true "Account email"
// @Success      200  {object}  model.MessageResponse
// @Failure      400  {object}  common.AppError "Email is missing"
// @Failure      404  {object}  common.AppError "User not found"
// @Failure      500  {object}  common.AppError "Mail could not be sent"
// @Router       /forgot-password [post]
func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) *common.AppError {
	var req model.ForgotPasswordRequest
	if err := common.ValidateAndDecode(r, &req); err != nil {
		return err
	}

	if err := h.service.ForgotPassword(r.Context(), req.Email); err != nil {
		switch {
		case errors.Is(err, service.ErrMissingFields):
			return common.NewAppError(http.StatusBadRequest, err.Error(), nil)
		case errors.Is(err, service.ErrUserNotFound):
			return common.NewAppError(http.StatusNotFound, "User not found", nil)
		default:
			return common.NewAppError(http.StatusInternalServerError, "Could not send password reset email", err)
		}
	}

	common.WriteJSON(w, http.StatusOK, model.MessageResponse{Message: "Password reset link sent to your email"})
	return nil
}

// ResetPassword godoc
// @Summary      Reset a password with a mailed token
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        token path string true "Reset token from the mailed link"
// @Param        body body model.ResetPasswordRequest true "New password"
// @Success      200  {object}  model.MessageResponse
// @Failure      400  {object}  common.AppError "Missing or weak password, expired or invalid token"
// @Failure      404  {object}  common.AppError "User not found"
// @Router       /reset-password/{token} [post]
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) *common.AppError {
	var req model.ResetPasswordRequest
	if err := common.ValidateAndDecode(r, &req); err != nil {
		return err
	}

	err := h.service.ResetPassword(r.Context(), r.PathValue("token"), req.Password)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrMissingFields), errors.Is(err, service.ErrWeakPassword):
			return common.NewAppError(http.StatusBadRequest, err.Error(), nil)
		case errors.Is(err, service.ErrTokenExpired):
			return common.NewAppError(http.StatusBadRequest, "Reset token has expired", nil)
		case errors.Is(err, service.ErrTokenInvalid):
			return common.NewAppError(http.StatusBadRequest, "Invalid reset token", err)
		case errors.Is(err, service.ErrUserNotFound):
			return common.NewAppError(http.StatusNotFound, "User not found", nil)
		default:
			return common.NewAppError(http.StatusInternalServerError, "Could not reset password", err)
		}
	}

	common.WriteJSON(w, http.StatusOK, model.MessageResponse{Message: "Password has been reset successfully"})
	return nil
}

// ResetPasswordFromProfile godoc
// @Summary      Change the password of the logged-in user
// @Tags         profile
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body body model.ChangePasswordRequest true "Current and new password"
// @Success      200  {object}  model.MessageResponse
// @Failure      400  {object}  common.AppError "Missing fields or weak password"
// @Failure      401  {object}  common.AppError "Current password is incorrect"
// @Failure      403  {object}  common.AppError "Missing or invalid token"
// @Failure      404  {object}  common.AppError "User not found"
// @Router       /profile/reset-password [post]
func (h *AuthHandler) ResetPasswordFromProfile(w http.ResponseWriter, r *http.Request) *common.AppError {
	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		return common.NewAppError(http.StatusForbidden, "Token is missing", nil)
	}

	var req model.ChangePasswordRequest
	if err := common.ValidateAndDecode(r, &req); err != nil {
		return err
	}

	err := h.service.ChangePassword(r.Context(), identity.User, req.CurrentPassword, req.NewPassword)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrMissingFields), errors.Is(err, service.ErrWeakPassword):
			return common.NewAppError(http.StatusBadRequest, err.Error(), nil)
		case errors.Is(err, service.ErrIncorrectPassword):
			return common.NewAppError(http.StatusUnauthorized, err.Error(), nil)
		case errors.Is(err, service.ErrUserNotFound):
			return common.NewAppError(http.StatusNotFound, "User not found", nil)
		default:
			return common.NewAppError(http.StatusInternalServerError, "Could not change password", err)
		}
	}

	common.WriteJSON(w, http.StatusOK, model.MessageResponse{Message: "Password updated successfully"})
	return nil
}

// Profile godoc
// @Summary      Show the logged-in user
// @Tags         profile
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  model.PublicUser
// @Failure      401  {object}  common.AppError "Token revoked or expired"
// @Failure      403  {object}  common.AppError "Missing or invalid token"
// @Failure      404  {object}  common.AppError "User not found"
// @Router       /profile [get]
func (h *AuthHandler) Profile(w http.ResponseWriter, r *http.Request) *common.AppError {
	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		return common.NewAppError(http.StatusForbidden, "Token is missing", nil)
	}

	logger.Log.WithFields(logrus.Fields{"user_id": identity.User.ID}).Debug("Profile requested")
	common.WriteJSON(w, http.StatusOK, identity.User.Public())
	return nil
}
