package model

import (
	"encoding/json"
	"time"
)

// EventType is the kind of row change carried by a push notification.
type EventType string

const (
	EventInsert EventType = "insert"
	EventUpdate EventType = "update"
	EventDelete EventType = "delete"
)

// Change is one row change delivered on the notification channel.
type Change struct {
	Table     string          `json:"table"`
	EventType EventType       `json:"event_type"`
	New       json.RawMessage `json:"new,omitempty"`
	Old       json.RawMessage `json:"old,omitempty"`
	CommitAt  time.Time       `json:"commit_at"`
}

// Row returns the payload describing the affected row: the new image for
// inserts and updates, the old image for deletes.
func (c Change) Row() json.RawMessage {
	if c.EventType == EventDelete || len(c.New) == 0 {
		return c.Old
	}
	return c.New
}

// Owner extracts user_id from the affected row. It is empty when the row
// image omits the column, as delete images without full replica identity
// do.
func (c Change) Owner() string {
	var probe struct {
		UserID string `json:"user_id"`
	}
	if err := json.Unmarshal(c.Row(), &probe); err != nil {
		return ""
	}
	return probe.UserID
}
