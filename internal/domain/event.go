package domain

import "time"

// Event kinds published on the in-process bus.
const (
	EventUserCreated = "user.created"
)

// Event carries a lifecycle notification about a user account.
type Event struct {
	Kind string
	User User
	At   time.Time
}
