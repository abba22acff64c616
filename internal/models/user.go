package models

// User is the public profile owned by the user subsystem.
type User struct {
	ID          string `db:"id" json:"id"`
	Username    string `db:"username" json:"username"`
	DisplayName string `db:"display_name" json:"display_name"`
	Avatar      string `db:"avatar" json:"avatar,omitempty"`
}
