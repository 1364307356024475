package model

// UsersColumns is the fixed header order for the Users table.
var UsersColumns = []string{"Username", "DisplayName", "PasswordHash", "Role"}

const (
	RoleClerk = "clerk"
	RoleAdmin = "admin"
)

// User is one sign-in identity. PasswordHash is a bcrypt hash.
type User struct {
	Username     string `json:"username"`
	DisplayName  string `json:"display_name"`
	PasswordHash string `json:"-"`
	Role         string `json:"role"`
}

// IsAdmin reports whether the user may maintain reference masters.
func (u *User) IsAdmin() bool { return u.Role == RoleAdmin }
