package models

import "time"

// RefreshToken represents a persisted refresh token session. Records are
// only ever mutated to flip the revoked flag; rotation and revocation both
// end in the same absorbing state.
type RefreshToken struct {
	ID         string     `db:"id" json:"id"`
	UserID     string     `db:"user_id" json:"user_id"`
	Token      string     `db:"token" json:"-"`
	ExpiresAt  time.Time  `db:"expires_at" json:"expires_at"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	Revoked    bool       `db:"revoked" json:"revoked"`
	RevokedAt  *time.Time `db:"revoked_at" json:"revoked_at,omitempty"`
	IssuedBy   string     `db:"issued_by" json:"issued_by,omitempty"`
	DeviceInfo string     `db:"device_info" json:"device_info,omitempty"`
}

// Valid reports whether the token can still be redeemed at the given time.
// Expiry is derived here rather than stored.
func (t *RefreshToken) Valid(now time.Time) bool {
	return !t.Revoked && t.ExpiresAt.After(now)
}
