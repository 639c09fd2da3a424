package user

import (
	"errors"

	"agora-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// Handlers holds dependencies for user endpoints.
type Handlers struct {
	Service *Service
}

// CreateUser POST /api/v1/users/create-user
func (h *Handlers) CreateUser(c *fiber.Ctx) error {
	var in CreateUserInput
	if err := c.BodyParser(&in); err != nil {
		return response.Error(c, "Invalid request body", 400, nil)
	}

	u, err := h.Service.CreateUser(c.Context(), in)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidEmail), errors.Is(err, ErrInvalidPassword),
			errors.Is(err, ErrMissingFullname), errors.Is(err, ErrInvalidFullname),
			errors.Is(err, ErrInvalidRole):
			return response.Error(c, err.Error(), 400, nil)
		case errors.Is(err, ErrEmailRegistered):
			return response.Error(c, err.Error(), 409, nil)
		default:
			return response.Error(c, "Internal Server Error", 500, nil)
		}
	}
	return response.SuccessCreated(c, "User created successfully", fiber.Map{
		"user": fiber.Map{
			"user_id":  u.UserID.String(),
			"fullname": u.Fullname,
			"email":    u.Email,
			"role":     u.Role,
		},
	}, nil)
}

type updateRoleRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

// UpdateRole PATCH /api/v1/users/update-role
func (h *Handlers) UpdateRole(c *fiber.Ctx) error {
	var req updateRoleRequest
	if err := c.BodyParser(&req); err != nil {
		return response.Error(c, "Invalid request body", 400, nil)
	}
	targetID, err := uuid.Parse(req.UserID)
	if err != nil {
		return response.Error(c, "Invalid user ID format (must be a valid UUID)", 400, nil)
	}

	u, err := h.Service.UpdateRole(c.Context(), targetID, req.Role)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidRole):
			return response.Error(c, err.Error(), 400, nil)
		case errors.Is(err, ErrUserNotFound):
			return response.Error(c, err.Error(), 404, nil)
		default:
			return response.Error(c, "Internal Server Error", 500, nil)
		}
	}
	return response.Success(c, "Role updated successfully", fiber.Map{
		"user": fiber.Map{
			"user_id": u.UserID.String(),
			"role":    u.Role,
		},
	}, nil)
}
