package event

import (
	"time"
)

// UserAction is the tag the auth service attaches to user events.
type UserAction string

const (
	UserRegistered UserAction = "REGISTERED"
	UserLoggedIn   UserAction = "LOGGED_IN"
	UserUpdated    UserAction = "UPDATED"
	UserDeleted    UserAction = "DELETED"
	UserEnabled    UserAction = "ENABLED"
	UserDisabled   UserAction = "DISABLED"
)

// UserEvent covers the full user lifecycle from the auth service.
// UPDATED events carry only the changed fields; absent fields are nil so the
// dimension update can COALESCE them instead of nulling stored values.
type UserEvent struct {
	ID            string
	Source        string
	CorrelationID string
	Action        UserAction
	UserID        int64
	Username      *string
	Email         *string
	Role          *string
	Region        *string
	Organization  *string
	PhoneNumber   *string
	Enabled       *bool
	Timestamp     time.Time

	// Raw JSON as received, persisted verbatim into the activity fact.
	Raw []byte
}

func (u *UserEvent) EventID() string {
	return u.ID
}

func (u *UserEvent) Category() Category {
	return CategoryUser
}

func (u *UserEvent) OccurredAt() time.Time {
	return u.Timestamp
}
