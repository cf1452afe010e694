package domain

import "time"

// UserRole distinguishes the contact book owner from the partner account
type UserRole string

const (
	RoleOwner   UserRole = "owner"
	RolePartner UserRole = "partner"
)

// User is a Telegram account allowed to manage the contact book
type User struct {
	ID         int64
	TelegramID int64
	Name       string
	Role       UserRole
	CreatedAt  time.Time
}

func (u *User) IsOwner() bool {
	return u.Role == RoleOwner
}
