package events

import "time"

// EventType enumerates store-change notifications.
type EventType string

const (
	EventSessionChanged       EventType = "session_changed"
	EventTicketsChanged       EventType = "tickets_changed"
	EventCurrentTicketChanged EventType = "current_ticket_changed"
	EventCommentAdded         EventType = "comment_added"
)

// Event announces that a store's state moved. Subscribers re-read a
// snapshot from the store; the event itself carries no state (pull
// model), only the type and the store's generation at publish time so
// late consumers can detect they already saw a newer state.
type Event struct {
	Type       EventType `json:"type"`
	Generation uint64    `json:"generation"`
	Timestamp  time.Time `json:"timestamp"`
}
