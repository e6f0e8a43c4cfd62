// internal/membership/domain.go
package membership

// Role is the authorization level of an account.
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// User represents a library account.
type User struct {
	ID                 string `json:"id"`
	Username           string `json:"username"`
	PasswordHash       string `json:"passwordHash"`
	Email              string `json:"email"`
	Role               Role   `json:"role"`
	Protected          bool   `json:"protected"`
	MustChangePassword bool   `json:"mustChangePassword"`
}

func (u User) RecordID() string { return u.ID }

func (u User) IsAdmin() bool { return u.Role == RoleAdmin }
