package cache

import (
	"github.com/theirongolddev/finsync/internal/model"
)

// MergeStats describes the effect of one write on a collection.
type MergeStats struct {
	Upserted int
	Inserted int
	Removed  int
}

func collectionFor[T model.Record](c *Cache, kind model.Kind) (*Collection[T], error) {
	t, ok := c.tables[kind]
	if !ok {
		return nil, ErrKindMismatch
	}
	coll, ok := t.(*Collection[T])
	if !ok {
		return nil, ErrKindMismatch
	}
	return coll, nil
}

// Merge upserts a partial delta into kind's collection and strips any
// record that is now tombstoned. Records absent from recs are untouched.
func Merge[T model.Record](c *Cache, kind model.Kind, recs []T) (MergeStats, error) {
	return write(c, kind, func(coll *Collection[T]) MergeStats {
		var st MergeStats
		for _, r := range recs {
			if coll.Upsert(r) {
				st.Inserted++
			}
			st.Upserted++
		}
		st.Removed = coll.RemoveTombstoned()
		return st
	})
}

// Replace swaps kind's collection for recs minus tombstoned records.
// When keep is non-nil, only existing records matching keep are replaced;
// the others stay in place. This lets a filtered full fetch rewrite its
// own slice of a shared collection.
func Replace[T model.Record](c *Cache, kind model.Kind, recs []T, keep func(T) bool) (MergeStats, error) {
	return write(c, kind, func(coll *Collection[T]) MergeStats {
		var st MergeStats
		if keep == nil {
			st.Removed = coll.Len()
			coll.Reset()
		} else {
			for _, r := range coll.Values() {
				if keep(r) {
					coll.Remove(coll.Key(r))
					st.Removed++
				}
			}
		}
		for _, r := range recs {
			coll.Upsert(r)
			st.Upserted++
		}
		dropped := coll.RemoveTombstoned()
		st.Upserted -= dropped
		st.Inserted = st.Upserted
		return st
	})
}

// Put stores one record, or removes it when it is tombstoned. It is the
// write path for optimistic local mutations and direct patches.
func Put[T model.Record](c *Cache, kind model.Kind, rec T) (MergeStats, error) {
	return write(c, kind, func(coll *Collection[T]) MergeStats {
		if rec.Tombstoned() {
			if coll.Remove(coll.Key(rec)) {
				return MergeStats{Removed: 1}
			}
			return MergeStats{}
		}
		st := MergeStats{Upserted: 1}
		if coll.Upsert(rec) {
			st.Inserted = 1
		}
		return st
	})
}

// PutIfNewer behaves like Put but ignores rec when the cached record with
// the same key changed later than rec did.
func PutIfNewer[T model.Record](c *Cache, kind model.Kind, rec T) (MergeStats, error) {
	return write(c, kind, func(coll *Collection[T]) MergeStats {
		if cur, ok := coll.Get(coll.Key(rec)); ok && cur.Changed().After(rec.Changed()) {
			return MergeStats{}
		}
		if rec.Tombstoned() {
			if coll.Remove(coll.Key(rec)) {
				return MergeStats{Removed: 1}
			}
			return MergeStats{}
		}
		st := MergeStats{Upserted: 1}
		if coll.Upsert(rec) {
			st.Inserted = 1
		}
		return st
	})
}

// Delete removes the record stored under key.
func Delete[T model.Record](c *Cache, kind model.Kind, key string) (bool, error) {
	var removed bool
	_, err := write(c, kind, func(coll *Collection[T]) MergeStats {
		removed = coll.Remove(key)
		if removed {
			return MergeStats{Removed: 1}
		}
		return MergeStats{}
	})
	return removed, err
}

// Lookup returns the record stored under key.
func Lookup[T model.Record](c *Cache, kind model.Kind, key string) (T, bool, error) {
	var zero T
	c.mu.RLock()
	defer c.mu.RUnlock()
	coll, err := collectionFor[T](c, kind)
	if err != nil {
		return zero, false, err
	}
	rec, ok := coll.Get(key)
	return rec, ok, nil
}

// Find returns the first record in insertion order that match accepts.
func Find[T model.Record](c *Cache, kind model.Kind, match func(T) bool) (T, bool, error) {
	var zero T
	c.mu.RLock()
	defer c.mu.RUnlock()
	coll, err := collectionFor[T](c, kind)
	if err != nil {
		return zero, false, err
	}
	for _, key := range coll.order {
		if rec := coll.items[key]; match(rec) {
			return rec, true, nil
		}
	}
	return zero, false, nil
}

func write[T model.Record](c *Cache, kind model.Kind, fn func(*Collection[T]) MergeStats) (MergeStats, error) {
	c.mu.Lock()
	coll, err := collectionFor[T](c, kind)
	if err != nil {
		c.mu.Unlock()
		return MergeStats{}, err
	}
	st := fn(coll)
	changed := st.Upserted > 0 || st.Removed > 0
	if changed {
		c.bumpLocked()
	}
	v := c.version
	c.mu.Unlock()

	if changed {
		c.notify(v)
	}
	return st, nil
}
