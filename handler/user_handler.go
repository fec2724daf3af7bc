// file: handler/user_handler.go

package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/sirupsen/logrus"
	"github.com/themidix/GlucoCheckWebAPIv4/common"
	"github.com/themidix/GlucoCheckWebAPIv4/logger"
	"github.com/themidix/GlucoCheckWebAPIv4/model"
	"github.com/themidix/GlucoCheckWebAPIv4/service"
)

type UserHandler struct {
	service *service.UserService
}

func NewUserHandler(service *service.UserService) *UserHandler {
	return &UserHandler{service: service}
}

// ListUsers godoc
// @Summary      List all users (Admin only)
// @Tags         admin
// @Produce      json
// @Security     BearerAuth
// @Success      200  {array}   model.User
// @Failure      401  {object}  common.AppError "Token revoked or expired"
// @Failure      403  {object}  common.AppError "Admin privileges required"
// @Failure      500  {object}  common.AppError "Internal server error"
// @Router       /admin/users [get]
func (h *UserHandler) ListUsers(w http.ResponseWriter, r *http.Request) *common.AppError {
	users, err := h.service.ListUsers(r.Context())
	if err != nil {
		return common.NewAppError(http.StatusInternalServerError, "Could not retrieve users", err)
	}

	common.WriteJSON(w, http.StatusOK, users)
	return nil
}

// UpdateUserRole godoc
// @Summary      Update a user's role (Admin only)
// @Tags         admin
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id   path int true "User ID"
// @Param        role body model.UpdateUserRoleRequest true "New role"
// @Success      200  {object}  model.MessageResponse
// @Failure      400  {object}  common.AppError "Invalid user id or role"
// @Failure      401  {object}  common.AppError "Token revoked or expired"
// @Failure      403  {object}  common.AppError "Admin privileges required"
// @Failure      404  {object}  common.AppError "User not found"
// @Router       /admin/users/{id}/role [patch]
func (h *UserHandler) UpdateUserRole(w http.ResponseWriter, r *http.Request) *common.AppError {
	userID, err := strconv.Atoi(r.PathValue("id"))
	if err != nil || userID <= 0 {
		return common.NewAppError(http.StatusBadRequest, "Invalid user ID", err)
	}

	var req model.UpdateUserRoleRequest
	if appErr := common.ValidateAndDecode(r, &req); appErr != nil {
		return appErr
	}

	if err := h.service.UpdateUserRole(r.Context(), userID, req.Role); err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidRole):
			return common.NewAppError(http.StatusBadRequest, err.Error(), nil)
		case errors.Is(err, service.ErrUserNotFound):
			return common.NewAppError(http.StatusNotFound, "User not found", nil)
		default:
			return common.NewAppError(http.StatusInternalServerError, "Could not update user role", err)
		}
	}

	logger.Log.WithFields(logrus.Fields{
		"admin_id": r.Context().Value(UserIDKey),
		"user_id":  userID,
		"role":     req.Role,
	}).Info("User role updated")

	common.WriteJSON(w, http.StatusOK, model.MessageResponse{Message: "User role updated successfully"})
	return nil
}
