package domain

import "time"

// Gender of a user, as recorded at sign-up.
type Gender string

const (
	GenderMale   Gender = "Male"
	GenderFemale Gender = "Female"
	GenderOther  Gender = "Other"
)

// UserRole is the platform-wide role resolved by the auth guard.
type UserRole string

const (
	UserRoleUser  UserRole = "user"
	UserRoleAdmin UserRole = "admin"
)

// User represents a commuter registered with the platform.
type User struct {
	ID        string
	Name      string
	Email     string
	Gender    Gender
	Role      UserRole
	CreatedAt time.Time
}
