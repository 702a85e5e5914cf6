package models

// Identity is an authenticated user as seen by the chat core.
type Identity struct {
	ID       int    `db:"id" json:"id"`
	Username string `db:"username" json:"username"`
	Avatar   string `db:"avatar" json:"avatar,omitempty"`
}
