package domain

import (
	"time"

	"github.com/google/uuid"
)

// EventKind names a change announced on an owner's channel.
type EventKind string

const (
	EventAdded   EventKind = "bookmark_added"
	EventDeleted EventKind = "bookmark_deleted"
)

// Event is the fan-out message. Payload is the full row: the stored row for
// an add, the pre-deletion row for a delete.
type Event struct {
	Kind EventKind `json:"event"`
	// Seq is a per-owner sequence stamped by the publisher. 0 means unsequenced.
	Seq     int64    `json:"seq,omitempty"`
	Payload Bookmark `json:"payload"`
}

// Added builds the event announcing b.
func Added(b Bookmark) Event { return Event{Kind: EventAdded, Payload: b.WithDefaults()} }

// Deleted builds the event retracting b.
func Deleted(b Bookmark) Event { return Event{Kind: EventDeleted, Payload: b.WithDefaults()} }

// Envelope is an event that could not be delivered, kept for replay.
type Envelope struct {
	OwnerID   uuid.UUID `json:"owner_id"`
	Event     Event     `json:"event"`
	Attempts  int       `json:"attempts"`
	LastError string    `json:"last_error,omitempty"`
	FailedAt  time.Time `json:"failed_at"`
}
