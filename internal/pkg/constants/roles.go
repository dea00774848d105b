package constants

const (
	Agent      = "agent"
	Supervisor = "supervisor"
	Admin      = "admin"
)

// ValidRoles is the set of roles the auth collaborator may hand us.
var ValidRoles = []string{Agent, Supervisor, Admin}

// IsValidRole returns true if role is one of the allowed values.
func IsValidRole(role string) bool {
	for _, r := range ValidRoles {
		if r == role {
			return true
		}
	}
	return false
}

// IsPrivileged is true for roles that may override another actor's hold.
func IsPrivileged(role string) bool {
	return role == Supervisor || role == Admin
}
