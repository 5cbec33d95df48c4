package request

import "time"

type Status string

const (
	StatusOpen   Status = "open"
	StatusClosed Status = "closed"
)

// Request represents a buyer's posted need for a service. It mirrors the
// service_requests table.
type Request struct {
	ID          string
	OwnerID     string
	Title       string
	Description string
	Category    string
	Budget      string
	Deadline    time.Time
	Location    string
	Status      Status
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
