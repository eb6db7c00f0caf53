package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// NotificationType classifies a notification for display and filtering.
type NotificationType string

const (
	TypeInfo    NotificationType = "info"
	TypeSuccess NotificationType = "success"
	TypeWarning NotificationType = "warning"
	TypeError   NotificationType = "error"
	TypeSystem  NotificationType = "system"
)

// NotificationTypes lists every known type in display order.
var NotificationTypes = []NotificationType{
	TypeInfo, TypeSuccess, TypeWarning, TypeError, TypeSystem,
}

// Valid reports whether t is one of the known notification types.
func (t NotificationType) Valid() bool {
	switch t {
	case TypeInfo, TypeSuccess, TypeWarning, TypeError, TypeSystem:
		return true
	}
	return false
}

// Priority ranks how urgently a notification should be surfaced.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Priorities lists every known priority from least to most urgent.
var Priorities = []Priority{
	PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent,
}

// Valid reports whether p is one of the known priorities.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// Notification is a single alert surfaced to the user. The server assigns
// SourceVersion; a larger value always carries newer information.
type Notification struct {
	// ID is the stable, opaque identifier of the notification.
	ID string `json:"id"`

	// Title is the short headline shown in lists and badges.
	Title string `json:"title"`

	// Message is the human-readable body text.
	Message string `json:"message"`

	// Type classifies the notification (info, success, warning, error, system).
	Type NotificationType `json:"type"`

	// Category is an optional free-text classifier.
	Category string `json:"category,omitempty"`

	// Priority defaults to medium when the server omits it.
	Priority Priority `json:"priority"`

	// CreatedAt is when the notification was generated. It never changes.
	CreatedAt time.Time `json:"createdAt"`

	// Read indicates whether the user has seen this notification.
	Read bool `json:"read"`

	// ReadAt is set iff Read is true.
	ReadAt *time.Time `json:"readAt,omitempty"`

	// Link is an optional URI to navigate to when the notification is opened.
	Link string `json:"link,omitempty"`

	// SourceVersion orders writes to the same notification across the
	// push channel and REST fetches.
	SourceVersion int64 `json:"sourceVersion"`
}

// ErrInvalidNotification is returned by Validate for records that cannot be
// admitted into the store.
var ErrInvalidNotification = errors.New("invalid notification")

// Validate checks the fields every admitted record must carry.
func (n Notification) Validate() error {
	var problems []string
	if strings.TrimSpace(n.ID) == "" {
		problems = append(problems, "missing id")
	}
	if !n.Type.Valid() {
		problems = append(problems, fmt.Sprintf("unknown type %q", n.Type))
	}
	if n.Priority != "" && !n.Priority.Valid() {
		problems = append(problems, fmt.Sprintf("unknown priority %q", n.Priority))
	}
	if n.CreatedAt.IsZero() {
		problems = append(problems, "missing createdAt")
	}
	if n.SourceVersion < 0 {
		problems = append(problems, "negative sourceVersion")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidNotification, strings.Join(problems, ", "))
	}
	return nil
}

// Normalize returns a copy with the read invariants enforced: an unread
// record has no ReadAt, a read record has a ReadAt no earlier than CreatedAt.
func (n Notification) Normalize() Notification {
	if n.Priority == "" {
		n.Priority = PriorityMedium
	}
	if !n.Read {
		n.ReadAt = nil
		return n
	}
	at := n.CreatedAt
	if n.ReadAt != nil && n.ReadAt.After(at) {
		at = *n.ReadAt
	}
	n.ReadAt = &at
	return n
}

// Clone returns a deep copy so callers can't alias the ReadAt pointer.
func (n Notification) Clone() Notification {
	if n.ReadAt != nil {
		at := *n.ReadAt
		n.ReadAt = &at
	}
	return n
}

// Tombstone marks a removed notification so stale events for the same ID
// cannot resurrect it until ExpiresAt.
type Tombstone struct {
	ID            string    `json:"id"`
	SourceVersion int64     `json:"sourceVersion"`
	ExpiresAt     time.Time `json:"expiresAt"`
}

// Expired reports whether the tombstone no longer blocks events at now.
func (t Tombstone) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// BatchResult is the per-item outcome of a batched remote mutation.
type BatchResult struct {
	ID     string        `json:"id"`
	OK     bool          `json:"ok"`
	Error  string        `json:"error,omitempty"`
	Record *Notification `json:"record,omitempty"`
}

// Deletion reports a server-side removal in an incremental page.
type Deletion struct {
	ID            string `json:"id"`
	SourceVersion int64  `json:"sourceVersion"`
}

// Page is one page of a notification listing.
type Page struct {
	Items      []Notification `json:"items"`
	Deleted    []Deletion     `json:"deleted,omitempty"`
	NextCursor string         `json:"nextCursor"`
	HasMore    bool           `json:"hasMore"`
	Watermark  int64          `json:"watermark"`
}
