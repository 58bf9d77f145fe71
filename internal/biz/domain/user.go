package domain

import "fmt"

// UserProfile represents a workspace user profile
type UserProfile struct {
	UserID      string
	DisplayName string
	Roles       []string
	IsBot       bool
}

// IsAdmin reports whether the user carries an administrative role
func (u *UserProfile) IsAdmin() bool {
	for _, r := range u.Roles {
		if r == "admin" || r == "owner" {
			return true
		}
	}
	return false
}

// FormatMention formats the @ mention syntax for outbound messages
func (u *UserProfile) FormatMention() string {
	return fmt.Sprintf("<at user_id=%q>@%s</at>", u.UserID, u.DisplayName)
}
