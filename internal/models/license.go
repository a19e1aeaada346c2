package models

import "time"

const (
	StatusActive   = "active"
	StatusPastDue  = "past_due"
	StatusCanceled = "canceled"

	// StatusInvalid is never stored; it is the query-time answer for a
	// key the store does not know.
	StatusInvalid = "invalid"
)

// License is the durable entitlement record for one paying customer.
// The JSON tags match the on-disk licenses.json format, which keys
// records by license key, so Key itself is not part of the value.
type License struct {
	Key                  string    `json:"-"`
	Email                string    `json:"email"`
	Status               string    `json:"status"`
	StripeCustomerID     string    `json:"stripe_customer"`
	StripeSubscriptionID string    `json:"stripe_subscription"`
	CreatedAt            time.Time `json:"created"`
	UpdatedAt            time.Time `json:"updated"`
}
