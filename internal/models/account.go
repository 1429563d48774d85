package models

import "time"

const (
	RoleMember     = "member"
	RoleAdmin      = "admin"
	RoleMatchmaker = "matchmaker"

	AccountActive   = "active"
	AccountInactive = "inactive"
)

// Account is the visibility-relevant slice of a user account.
type Account struct {
	UserID    string    `json:"user_id" bson:"user_id"`
	Role      string    `json:"role" bson:"role"`
	Status    string    `json:"status" bson:"status"`
	Suspended bool      `json:"suspended" bson:"suspended"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
}

// Visible reports whether the account may appear in anyone's candidate pool.
func (a *Account) Visible() bool {
	return a != nil && a.Role == RoleMember && a.Status == AccountActive && !a.Suspended
}
