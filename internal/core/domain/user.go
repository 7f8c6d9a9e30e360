package domain

import "time"

// UserStatus is the soft-delete state of a user.
type UserStatus string

const (
	UserActive   UserStatus = "active"
	UserInactive UserStatus = "inactive"
)

// User is a person who brings recyclables and accumulates points.
// Points are only ever changed by the ledger.
type User struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Phone     string     `json:"phone"`
	Points    int64      `json:"points"`
	Status    UserStatus `json:"status"`
	Version   int64      `json:"-"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// IsActive reports whether the user may be looked up and credited.
func (u *User) IsActive() bool {
	return u.Status == UserActive
}
