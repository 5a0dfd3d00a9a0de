package subscription

import "time"

// Subscription is a recurring billing commitment tracked for one user
type Subscription struct {
	ID               string     `json:"id" gorm:"primaryKey"`       // shortuuid assigned at creation
	UserID           string     `json:"userId" gorm:"index"`        // owning user, immutable after creation
	Name             string     `json:"name" gorm:"index"`          // e.g. "Netflix", 2-100 characters
	Price            float64    `json:"price"`                      // non-negative, in Currency units
	Currency         Currency   `json:"currency"`                   // defaults to USD
	Frequency        Frequency  `json:"frequency"`                  // governs the renewal interval
	PendingFrequency *Frequency `json:"pendingFrequency,omitempty"` // applied at the next renewal rollover
	Category         Category   `json:"category"`
	PaymentMethod    string     `json:"paymentMethod"`              // opaque description, e.g. "Visa ending 4242"
	Status           Status     `json:"status" gorm:"index"`
	StartDate        time.Time  `json:"startDate"`                  // beginning of the current billing period
	RenewalDate      time.Time  `json:"renewalDate"`                // strictly after StartDate at all times
	CreatedAt        time.Time  `json:"createdAt"`                  // maintained by gorm
	UpdatedAt        time.Time  `json:"updatedAt"`                  // maintained by gorm
}

// expiredAt reports whether the subscription should be considered expired at
// the given instant. A pure function of (Status, RenewalDate, now) so the
// expiry transition stays testable without a database.
func (s *Subscription) expiredAt(now time.Time) bool {
	return s.Status == StatusActive && s.RenewalDate.Before(now)
}
