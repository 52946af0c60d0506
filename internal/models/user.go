package models

import "time"

// User is an identity owned by the wider platform; this service only reads it.
type User struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Email     string    `db:"email" json:"email"`
	Role      string    `db:"role" json:"role"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Role is the viewer-relative position on a chat or transfer.
type Role string

const (
	RoleNone     Role = ""
	RoleSender   Role = "sender"
	RoleReceiver Role = "receiver"
)

// MarshalJSON renders RoleNone as null.
func (r Role) MarshalJSON() ([]byte, error) {
	if r == RoleNone {
		return []byte("null"), nil
	}
	return []byte(`"` + string(r) + `"`), nil
}
