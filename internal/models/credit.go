package models

import (
	"time"

	"github.com/google/uuid"
)

// Credit is one purchased session package instance. Consumption is
// two-phase: a credit is bound to a session at booking time and its
// counter is only incremented when the session first completes.
type Credit struct {
	ID       uuid.UUID `db:"id"`
	BuyerID  uuid.UUID `db:"buyer_id"`
	SellerID uuid.UUID `db:"seller_id"`

	// PaymentRef is the payment provider's id for the purchase,
	// unique so webhook replays cannot mint duplicate credits.
	PaymentRef string `db:"payment_ref"`

	TotalSessions int `db:"total_sessions"`
	UsedSessions  int `db:"used_sessions"`

	ExpiresAt *time.Time `db:"expires_at"`
	CreatedAt time.Time  `db:"created_at"`
}

// Consumable reports whether the credit can still back a new session.
func (c *Credit) Consumable(now time.Time) bool {
	if c.UsedSessions >= c.TotalSessions {
		return false
	}
	if c.ExpiresAt != nil && !now.Before(*c.ExpiresAt) {
		return false
	}
	return true
}
