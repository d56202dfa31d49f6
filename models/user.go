package models

import "time"

type Role string

const (
	RoleStudent   Role = "student"
	RoleFaculty   Role = "faculty"
	RoleStaff     Role = "staff"
	RoleCounselor Role = "counselor"
	RoleAdmin     Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleFaculty, RoleStaff, RoleCounselor, RoleAdmin:
		return true
	}
	return false
}

// User is the slice of the campus user record this service reads. Accounts
// are created and verified elsewhere.
type User struct {
	ID        string    `json:"id" gorm:"primaryKey;size:36"`
	FirstName string    `json:"first_name" gorm:"size:80"`
	LastName  string    `json:"last_name" gorm:"size:80"`
	Email     string    `json:"email" gorm:"uniqueIndex;size:255"`
	Role      Role      `json:"role" gorm:"size:20;not null;index:idx_users_role_active,priority:1"`
	IsActive  bool      `json:"is_active" gorm:"not null;index:idx_users_role_active,priority:2"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (u *User) FullName() string {
	switch {
	case u.FirstName == "" && u.LastName == "":
		return u.Email
	case u.LastName == "":
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}
