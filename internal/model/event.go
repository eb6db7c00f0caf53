package model

import "time"

// EventKind identifies the kind of change carried by an Event.
type EventKind string

const (
	EventCreated EventKind = "created"
	EventUpdated EventKind = "updated"
	EventRead    EventKind = "read"
	EventDeleted EventKind = "deleted"
	EventReadAll EventKind = "read_all"
)

// Event is a single change to the notification set, delivered by the push
// channel or synthesized from an incremental fetch.
type Event struct {
	Kind EventKind

	// Record is set for created and updated events.
	Record *Notification

	// ID is set for read and deleted events. For created/updated events it
	// mirrors Record.ID.
	ID string

	SourceVersion int64

	// At is the server-side timestamp of a read or read_all, when known.
	At *time.Time
}

// TargetID returns the notification ID the event applies to, or "" for
// read_all.
func (e Event) TargetID() string {
	if e.Record != nil {
		return e.Record.ID
	}
	return e.ID
}

// ConnectionStatus is the state of the realtime channel.
type ConnectionStatus string

const (
	StatusDisconnected ConnectionStatus = "disconnected"
	StatusConnecting   ConnectionStatus = "connecting"
	StatusConnected    ConnectionStatus = "connected"
	StatusReconnecting ConnectionStatus = "reconnecting"
)
