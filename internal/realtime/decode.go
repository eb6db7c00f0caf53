package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nhle/ideaboard/internal/model"
)

// ErrMalformed is returned by Decode for payloads that are not a valid push
// message. Such payloads are dropped.
var ErrMalformed = errors.New("malformed push payload")

// Message is the wire shape of one push message.
type Message struct {
	Type          model.EventKind     `json:"type"`
	Record        *model.Notification `json:"record,omitempty"`
	ID            string              `json:"id,omitempty"`
	SourceVersion int64               `json:"sourceVersion"`
	ReadAt        *time.Time          `json:"readAt,omitempty"`
}

// Decode converts a raw push payload into a validated event.
func Decode(data []byte) (model.Event, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return model.Event{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return msg.Event()
}

// Event validates msg and converts it into a store event.
func (msg Message) Event() (model.Event, error) {
	if msg.SourceVersion < 0 {
		return model.Event{}, fmt.Errorf("%w: negative sourceVersion", ErrMalformed)
	}

	ev := model.Event{Kind: msg.Type, ID: msg.ID, SourceVersion: msg.SourceVersion, At: msg.ReadAt}

	switch msg.Type {
	case model.EventCreated, model.EventUpdated:
		if msg.Record == nil {
			return model.Event{}, fmt.Errorf("%w: %s without record", ErrMalformed, msg.Type)
		}
		rec := msg.Record.Clone()
		switch {
		case rec.SourceVersion == 0:
			rec.SourceVersion = msg.SourceVersion
		case msg.SourceVersion == 0:
			ev.SourceVersion = rec.SourceVersion
		case rec.SourceVersion != msg.SourceVersion:
			return model.Event{}, fmt.Errorf("%w: record version %d does not match message version %d",
				ErrMalformed, rec.SourceVersion, msg.SourceVersion)
		}
		if err := rec.Validate(); err != nil {
			return model.Event{}, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		if msg.ID != "" && msg.ID != rec.ID {
			return model.Event{}, fmt.Errorf("%w: id %q does not match record %q", ErrMalformed, msg.ID, rec.ID)
		}
		ev.Record = &rec
		ev.ID = rec.ID

	case model.EventRead, model.EventDeleted:
		if msg.ID == "" {
			return model.Event{}, fmt.Errorf("%w: %s without id", ErrMalformed, msg.Type)
		}

	case model.EventReadAll:
		ev.ID = ""

	default:
		return model.Event{}, fmt.Errorf("%w: unknown type %q", ErrMalformed, msg.Type)
	}

	return ev, nil
}

// Encode renders ev as a push payload.
func Encode(ev model.Event) ([]byte, error) {
	msg := Message{
		Type:          ev.Kind,
		Record:        ev.Record,
		SourceVersion: ev.SourceVersion,
		ReadAt:        ev.At,
	}
	if ev.Record == nil {
		msg.ID = ev.ID
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encoding %s event: %w", ev.Kind, err)
	}
	return data, nil
}
