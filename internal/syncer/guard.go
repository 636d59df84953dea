package syncer

import (
	"sync"
	"time"

	"github.com/theirongolddev/finsync/internal/model"
)

// DefaultGuardWindow is how long fetches for a kind are held back after a
// local write to it.
const DefaultGuardWindow = 2 * time.Second

// Guard tracks the latest local write per kind. A fetch issued shortly
// after a write may read a replica that has not seen it yet.
type Guard struct {
	window time.Duration
	now    func() time.Time

	mu      sync.Mutex
	markers map[model.Kind]time.Time
}

// NewGuard returns a guard with the given window. A non-positive window
// uses DefaultGuardWindow.
func NewGuard(window time.Duration) *Guard {
	if window <= 0 {
		window = DefaultGuardWindow
	}
	return &Guard{window: window, now: time.Now, markers: make(map[model.Kind]time.Time)}
}

// Window returns the guard duration.
func (g *Guard) Window() time.Duration { return g.window }

// MarkMutated records a local write to kind now. Only the latest marker
// is kept.
func (g *Guard) MarkMutated(kind model.Kind) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.markers[kind] = g.now()
}

// WithinGuard reports whether kind was written less than one window ago.
func (g *Guard) WithinGuard(kind model.Kind) bool {
	return g.Remaining(kind) > 0
}

// Remaining returns how long kind stays guarded, or zero.
func (g *Guard) Remaining(kind model.Kind) time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	at, ok := g.markers[kind]
	if !ok {
		return 0
	}
	left := g.window - g.now().Sub(at)
	if left <= 0 {
		delete(g.markers, kind)
		return 0
	}
	return left
}
