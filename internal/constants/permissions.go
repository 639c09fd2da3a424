package constants

// Roles, least to most privileged.
const (
	Viewer = "viewer"
	Trader = "trader"
	Admin  = "admin"
)

// ValidRoles is the set of allowed DB values for user role.
var ValidRoles = []string{Viewer, Trader, Admin}

// IsValidRole returns true if role is one of the allowed values.
func IsValidRole(role string) bool {
	for _, r := range ValidRoles {
		if r == role {
			return true
		}
	}
	return false
}

const (
	ViewBoards  = "view_boards"
	CreateBoard = "create_board"
	EditBoard   = "edit_board"
	Trade       = "trade"
	ManageUsers = "manage_users"
)
