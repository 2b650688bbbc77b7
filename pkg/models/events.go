package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// EventTypeUserCreated is the only event type carried on the wire.
const EventTypeUserCreated = "UserCreated"

var (
	// ErrMalformedEvent marks a payload that cannot be decoded into a
	// UserCreatedEvent. Such messages are poison and are never retried
	// into success.
	ErrMalformedEvent = errors.New("malformed event")

	// ErrInvalidEvent marks a well-formed event whose user snapshot is
	// missing or empty.
	ErrInvalidEvent = errors.New("invalid event")
)

// EventUser is the user snapshot embedded in an event. It is copied by value
// at publish time.
type EventUser struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// UserCreatedEvent is published once a user has been persisted.
type UserCreatedEvent struct {
	EventID   string    `json:"eventId"`
	EventType string    `json:"eventType"`
	Timestamp time.Time `json:"timestamp"`
	User      EventUser `json:"user"`
}

// NewUserCreatedEvent builds the event for u. The event id is supplied by the
// caller so that retries of the same publish can be correlated.
func NewUserCreatedEvent(eventID string, u User, at time.Time) UserCreatedEvent {
	return UserCreatedEvent{
		EventID:   eventID,
		EventType: EventTypeUserCreated,
		Timestamp: at.UTC(),
		User: EventUser{
			ID:    u.ID,
			Name:  u.Name,
			Email: u.Email,
		},
	}
}

// EncodeEvent serializes e into its wire format.
func EncodeEvent(e UserCreatedEvent) ([]byte, error) {
	return json.Marshal(e)
}

// wireEvent mirrors UserCreatedEvent with pointer fields so that absent keys
// can be told apart from empty ones.
type wireEvent struct {
	EventID   *string         `json:"eventId"`
	EventType *string         `json:"eventType"`
	Timestamp *string         `json:"timestamp"`
	User      json.RawMessage `json:"user"`
}

// Producers may omit the zone; such timestamps are read as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.9999999",
	"2006-01-02T15:04:05",
}

func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// DecodeEvent parses a wire payload. Errors wrap ErrMalformedEvent when the
// payload is not a usable event at all, and ErrInvalidEvent when the event is
// well-formed but carries no user.
func DecodeEvent(body []byte) (UserCreatedEvent, error) {
	var w wireEvent
	dec := json.NewDecoder(bytes.NewReader(body))
	if err := dec.Decode(&w); err != nil {
		return UserCreatedEvent{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if dec.More() {
		return UserCreatedEvent{}, fmt.Errorf("%w: trailing data after event", ErrMalformedEvent)
	}

	switch {
	case w.EventID == nil || *w.EventID == "":
		return UserCreatedEvent{}, fmt.Errorf("%w: missing eventId", ErrMalformedEvent)
	case w.EventType == nil || *w.EventType == "":
		return UserCreatedEvent{}, fmt.Errorf("%w: missing eventType", ErrMalformedEvent)
	case *w.EventType != EventTypeUserCreated:
		return UserCreatedEvent{}, fmt.Errorf("%w: unsupported eventType %q", ErrMalformedEvent, *w.EventType)
	case w.Timestamp == nil || *w.Timestamp == "":
		return UserCreatedEvent{}, fmt.Errorf("%w: missing timestamp", ErrMalformedEvent)
	}

	ts, err := parseTimestamp(*w.Timestamp)
	if err != nil {
		return UserCreatedEvent{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	event := UserCreatedEvent{
		EventID:   *w.EventID,
		EventType: *w.EventType,
		Timestamp: ts,
	}

	if len(w.User) == 0 || bytes.Equal(w.User, []byte("null")) {
		return event, fmt.Errorf("%w: event %s has no user", ErrInvalidEvent, event.EventID)
	}
	if err := json.Unmarshal(w.User, &event.User); err != nil {
		return UserCreatedEvent{}, fmt.Errorf("%w: user: %v", ErrMalformedEvent, err)
	}
	if event.User == (EventUser{}) {
		return event, fmt.Errorf("%w: event %s has an empty user", ErrInvalidEvent, event.EventID)
	}
	if event.User.ID == "" {
		return event, fmt.Errorf("%w: event %s user has no id", ErrInvalidEvent, event.EventID)
	}

	return event, nil
}
