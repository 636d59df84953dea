// Package refresh decides what to resync when the client returns to the
// foreground.
package refresh

import (
	"log/slog"
	"sync"
	"time"

	"github.com/theirongolddev/finsync/internal/model"
)

// DefaultThreshold is the inactivity after which every kind is refreshed.
const DefaultThreshold = 30 * time.Second

// PriorityKinds are refreshed on every return to the foreground.
var PriorityKinds = []model.Kind{model.KindLedgerEntries, model.KindAccounts}

// Requester schedules background syncs.
type Requester interface {
	Request(kind model.Kind, d time.Duration)
}

// Scheduler tracks foreground/background transitions.
type Scheduler struct {
	req       Requester
	threshold time.Duration
	log       *slog.Logger
	now       func() time.Time

	mu            sync.Mutex
	inactiveSince time.Time
}

// New returns a scheduler. A non-positive threshold uses DefaultThreshold.
func New(req Requester, threshold time.Duration, log *slog.Logger) *Scheduler {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{req: req, threshold: threshold, log: log, now: time.Now}
}

// Threshold returns the full-refresh inactivity threshold.
func (s *Scheduler) Threshold() time.Duration { return s.threshold }

// Inactive reports whether the client is currently in the background.
func (s *Scheduler) Inactive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.inactiveSince.IsZero()
}

// BecameInactive records the start of a background period. Repeated
// calls keep the earliest time.
func (s *Scheduler) BecameInactive() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inactiveSince.IsZero() {
		s.inactiveSince = s.now()
	}
}

// BecameActive requests the syncs planned for the elapsed background
// period and returns them. A call without a preceding BecameInactive
// plans nothing.
func (s *Scheduler) BecameActive() []model.Kind {
	s.mu.Lock()
	since := s.inactiveSince
	s.inactiveSince = time.Time{}
	s.mu.Unlock()

	if since.IsZero() {
		return nil
	}
	away := s.now().Sub(since)
	plan := Plan(away, s.threshold)
	s.log.Debug("foreground refresh", "away", away.Round(time.Millisecond), "kinds", len(plan))
	for _, kind := range plan {
		s.req.Request(kind, 0)
	}
	return plan
}

// Plan returns the kinds to refresh after being inactive for d: the
// priority tier always, and every other kind once d exceeds threshold.
func Plan(d, threshold time.Duration) []model.Kind {
	plan := append([]model.Kind(nil), PriorityKinds...)
	if d <= threshold {
		return plan
	}
	for _, kind := range model.AllKinds() {
		if !isPriority(kind) {
			plan = append(plan, kind)
		}
	}
	return plan
}

func isPriority(kind model.Kind) bool {
	for _, p := range PriorityKinds {
		if p == kind {
			return true
		}
	}
	return false
}
