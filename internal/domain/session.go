package domain

import "time"

// Session is the current account identity. A nil *Session means logged out.
type Session struct {
	ID        string
	AccountID string
	StartedAt time.Time
}

// SameAccount reports whether a and b are both present and belong to one account.
func SameAccount(a, b *Session) bool {
	return a != nil && b != nil && a.AccountID == b.AccountID
}
