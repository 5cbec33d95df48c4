package offer

import "time"

type Status string

const (
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
	StatusRejected Status = "rejected"
)

// Offer represents a seller's priced response to a service request. It mirrors
// the offers table and is always scoped to an existing request.
type Offer struct {
	ID        string
	RequestID string
	SellerID  string
	Price     float64
	Comment   string
	Status    Status
	CreatedAt time.Time
}
