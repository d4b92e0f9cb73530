package models

// Notification is the presentation-ready payload the notification bridge
// hands to the presenter: a resolved title/body pair plus the event that
// produced it.
type Notification struct {
	Title string        `json:"title"`
	Body  string        `json:"body"`
	Event GeofenceEvent `json:"event"`
}
