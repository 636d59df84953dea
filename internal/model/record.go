package model

import "time"

// Meta carries the bookkeeping columns every synchronized row has.
type Meta struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// Tombstoned reports whether the row carries a soft-delete marker.
func (m Meta) Tombstoned() bool { return m.DeletedAt != nil }

// RowID returns the primary key.
func (m Meta) RowID() string { return m.ID }

// Owner returns the user_id column.
func (m Meta) Owner() string { return m.UserID }

// Changed returns the later of created_at and updated_at.
func (m Meta) Changed() time.Time {
	if m.UpdatedAt.After(m.CreatedAt) {
		return m.UpdatedAt
	}
	return m.CreatedAt
}

// Record is implemented by every entity stored in the cache.
type Record interface {
	Tombstoned() bool
	Changed() time.Time
	RowID() string
	Owner() string
}

// Touch stamps m for a local write at now. A fresh row also gets created_at.
func (m *Meta) Touch(now time.Time) {
	now = now.UTC()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now
}

// Base returns the embedded bookkeeping columns for in-place edits.
func (m *Meta) Base() *Meta { return m }
