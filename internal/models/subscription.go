package models

// Subscription lifecycle statuses
const (
	StatusActive  = "active"
	StatusExpired = "expired"
)

// Reminder kinds, in firing precedence order
const (
	ReminderExpired  = "expired"
	ReminderDayOf    = "0d"
	ReminderOneDay   = "1d"
	ReminderThreeDay = "3d"
)

// SubscriptionRecord is one user's persisted subscription state
type SubscriptionRecord struct {
	UserID          int64
	PlanCode        string
	ExpiresAt       string
	Status          string
	Reminded3d      bool
	Reminded1d      bool
	Reminded0d      bool
	RemindedExpired bool
}

// Reminder is one due notification produced by a scheduler cycle
type Reminder struct {
	UserID int64
	Lang   string
	Kind   string
}

// UserKey is a user's persisted credential record
type UserKey struct {
	UserID   int64
	VlessURI string
	SubURL   string
	ClientID string
	Email    string
	SubID    string
}
