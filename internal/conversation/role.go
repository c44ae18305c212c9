package conversation

import "fmt"

// Role is the closed set of transcript speakers.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// InvalidRoleError is returned when a turn carries a role outside the enum.
type InvalidRoleError struct {
	Value string
}

func (e *InvalidRoleError) Error() string {
	return fmt.Sprintf("invalid role %q (want system, user or assistant)", e.Value)
}

// Valid reports whether r is one of the three known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

// ParseRole converts a stored role name.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", &InvalidRoleError{Value: s}
	}
	return r, nil
}

// RoleFromSender maps message-store senders onto roles: "bot" is the
// assistant and "user" the clinician.
func RoleFromSender(sender string) (Role, error) {
	switch sender {
	case "bot":
		return RoleAssistant, nil
	case "user":
		return RoleUser, nil
	}
	return "", &InvalidRoleError{Value: sender}
}

// Sender is the inverse of RoleFromSender. System turns (greetings) are
// stored as bot messages.
func (r Role) Sender() string {
	if r == RoleUser {
		return "user"
	}
	return "bot"
}
