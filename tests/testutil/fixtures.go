package testutil

import (
	"time"

	"github.com/nhle/ideaboard/internal/model"
)

// T0 is the reference time fixtures are created relative to.
var T0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// Notification returns an unread info record created minute minutes after T0.
func Notification(id string, minute int, version int64) model.Notification {
	return model.Notification{
		ID:            id,
		Title:         "title " + id,
		Message:       "message " + id,
		Type:          model.TypeInfo,
		Priority:      model.PriorityMedium,
		CreatedAt:     T0.Add(time.Duration(minute) * time.Minute),
		SourceVersion: version,
	}
}

// Created wraps n in a created event carrying its version.
func Created(n model.Notification) model.Event {
	return model.Event{Kind: model.EventCreated, Record: &n, ID: n.ID, SourceVersion: n.SourceVersion}
}

// IDs returns the ids of records in order.
func IDs(records []model.Notification) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.ID
	}
	return out
}
