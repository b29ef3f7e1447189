package models

// Roles recognised by the dispatch core. The role decides which notifications
// a live connection receives and which operations a principal may call.
const (
	RoleDispatcher = "dispatcher"
	RoleInspector  = "inspector"
	RoleClient     = "client"
	RoleAdmin      = "admin"
)

// User represents any account known to the system.
// It maps to the `users` table in SQLite.
type User struct {
	ID       int64  `db:"id" json:"id"`
	Username string `db:"username" json:"username"`
	Role     string `db:"role" json:"role"`
	FullName string `db:"full_name" json:"full_name"`
	Phone    string `db:"phone" json:"phone"`
}

// IsInspector reports whether the user can hold an InspectorLocation.
func (u *User) IsInspector() bool {
	return u != nil && u.Role == RoleInspector
}
