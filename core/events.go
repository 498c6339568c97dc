package core

import "time"

// Event is a message pushed to one user's live channel.
type Event struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
	At      time.Time   `json:"at"`
}

func NewEvent(typ string, payload interface{}) Event {
	return Event{Type: typ, Payload: payload, At: NowFunc().UTC()}
}

// Publisher is anything able to push events to a user.
type Publisher interface {
	Publish(userID string, ev Event)
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(string, Event) {}
