package cache

import (
	"encoding/json"

	"github.com/theirongolddev/finsync/internal/model"
)

// Collection is an insertion-ordered map from primary key to record.
// Replacing an existing key keeps its position.
type Collection[T model.Record] struct {
	keyOf func(T) string
	order []string
	items map[string]T
}

// NewCollection returns an empty collection keyed by keyOf.
func NewCollection[T model.Record](keyOf func(T) string) *Collection[T] {
	return &Collection[T]{keyOf: keyOf, items: make(map[string]T)}
}

// Key returns the merge key of rec.
func (c *Collection[T]) Key(rec T) string { return c.keyOf(rec) }

// Len returns the number of records.
func (c *Collection[T]) Len() int { return len(c.order) }

// Get returns the record stored under key.
func (c *Collection[T]) Get(key string) (T, bool) {
	rec, ok := c.items[key]
	return rec, ok
}

// Upsert stores rec, replacing any record with the same key. It reports
// whether the key was new.
func (c *Collection[T]) Upsert(rec T) bool {
	key := c.keyOf(rec)
	_, exists := c.items[key]
	if !exists {
		c.order = append(c.order, key)
	}
	c.items[key] = rec
	return !exists
}

// Remove deletes the record stored under key.
func (c *Collection[T]) Remove(key string) bool {
	if _, ok := c.items[key]; !ok {
		return false
	}
	delete(c.items, key)
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	return true
}

// RemoveTombstoned strips every soft-deleted record and returns how many
// were removed.
func (c *Collection[T]) RemoveTombstoned() int {
	n := 0
	kept := c.order[:0]
	for _, k := range c.order {
		if c.items[k].Tombstoned() {
			delete(c.items, k)
			n++
			continue
		}
		kept = append(kept, k)
	}
	c.order = kept
	return n
}

// Reset empties the collection.
func (c *Collection[T]) Reset() {
	c.order = nil
	c.items = make(map[string]T)
}

// Values returns the records in insertion order.
func (c *Collection[T]) Values() []T {
	out := make([]T, 0, len(c.order))
	for _, k := range c.order {
		out = append(out, c.items[k])
	}
	return out
}

// MarshalJSON encodes the collection as an ordered array.
func (c *Collection[T]) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.Values())
}

// UnmarshalJSON replaces the contents with an encoded array.
func (c *Collection[T]) UnmarshalJSON(b []byte) error {
	var recs []T
	if err := json.Unmarshal(b, &recs); err != nil {
		return err
	}
	c.Reset()
	for _, r := range recs {
		c.Upsert(r)
	}
	c.RemoveTombstoned()
	return nil
}
