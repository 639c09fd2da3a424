package middleware

import (
	"agora-backend/internal/constants"
	"agora-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
)

// AuthorizePermission gates a route on the session user's role. A permission
// missing from the role map is a deployment mistake and fails loudly with a
// 500 rather than quietly allowing or denying.
func AuthorizePermission(permission string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		user := GetUser(c)
		if user == nil {
			return response.Unauthorized(c, "Unauthorized")
		}
		role := sessionRole(user)
		if role == "" {
			return response.Error(c, "Authorization error", fiber.StatusInternalServerError, nil)
		}
		if _, ok := constants.PermissionRoles[permission]; !ok {
			return response.Error(c, "Permission configuration error", fiber.StatusInternalServerError, nil)
		}
		if !constants.AllowedRole(permission, role) {
			return response.Forbidden(c, "User is Forbidden from performing this action")
		}
		return c.Next()
	}
}

func sessionRole(user interface{}) string {
	m, ok := user.(map[string]interface{})
	if !ok {
		return ""
	}
	r, _ := m["role"].(string)
	return r
}
