// Package delay runs keyed, cancellable delayed tasks. Each key holds at
// most one pending task; scheduling again supersedes the pending one.
package delay

import (
	"sync"
	"time"
)

type task struct {
	gen   uint64
	timer *time.Timer
	due   time.Time
}

// Queue is a set of per-key delayed tasks.
type Queue struct {
	mu      sync.Mutex
	gen     uint64
	tasks   map[string]*task
	stopped bool
	wg      sync.WaitGroup
}

// NewQueue returns an empty queue.
func NewQueue() *Queue {
	return &Queue{tasks: make(map[string]*task)}
}

// Schedule runs fn after d on its own goroutine, cancelling any task
// already pending under key. A zero or negative d runs fn immediately.
func (q *Queue) Schedule(key string, d time.Duration, fn func()) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.stopped {
		return
	}
	if old, ok := q.tasks[key]; ok {
		old.timer.Stop()
	}

	q.gen++
	gen := q.gen
	if d < 0 {
		d = 0
	}
	t := &task{gen: gen, due: time.Now().Add(d)}
	t.timer = time.AfterFunc(d, func() { q.fire(key, gen, fn) })
	q.tasks[key] = t
}

func (q *Queue) fire(key string, gen uint64, fn func()) {
	q.mu.Lock()
	cur, ok := q.tasks[key]
	if !ok || cur.gen != gen || q.stopped {
		// Superseded or cancelled after the timer already fired.
		q.mu.Unlock()
		return
	}
	delete(q.tasks, key)
	q.wg.Add(1)
	q.mu.Unlock()

	defer q.wg.Done()
	fn()
}

// Cancel drops the task pending under key and reports whether one existed.
func (q *Queue) Cancel(key string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	t, ok := q.tasks[key]
	if !ok {
		return false
	}
	t.timer.Stop()
	delete(q.tasks, key)
	return true
}

// Pending returns when the task under key is due.
func (q *Queue) Pending(key string) (time.Time, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	t, ok := q.tasks[key]
	if !ok {
		return time.Time{}, false
	}
	return t.due, true
}

// Keys returns every key with a pending task.
func (q *Queue) Keys() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	keys := make([]string, 0, len(q.tasks))
	for k := range q.tasks {
		keys = append(keys, k)
	}
	return keys
}

// Stop cancels every pending task and waits for running ones to return.
// Later calls to Schedule are ignored.
func (q *Queue) Stop() {
	q.mu.Lock()
	q.stopped = true
	for k, t := range q.tasks {
		t.timer.Stop()
		delete(q.tasks, k)
	}
	q.mu.Unlock()
	q.wg.Wait()
}
