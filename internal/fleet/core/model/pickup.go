package model

import "time"

// PickupOtp is one delivery of a one-time pickup code. Re-sending an existing
// code creates another row with the same Code and ExpiresAt, so rows double as
// the send log the resend limit is counted from.
type PickupOtp struct {
	ID         string
	OrderCode  string
	TripCode   string
	Code       string
	Email      string
	CreatedAt  time.Time
	ExpiresAt  time.Time
	Verified   bool
	VerifiedAt *time.Time
}

// Expired reports whether the code is past its expiry at now.
func (p *PickupOtp) Expired(now time.Time) bool {
	return !now.Before(p.ExpiresAt)
}
