// internal/pipeline/guard.go
package pipeline

import (
	"sync"
	"time"
)

// Outcome is how a guarded run ended
type Outcome string

const (
	OutcomeSuccess   Outcome = "success"
	OutcomeFailed    Outcome = "failed"
	OutcomeNoReports Outcome = "no_reports"
)

// Status is a point-in-time view of the guard
type Status struct {
	Running     bool       `json:"running"`
	LastRun     *time.Time `json:"last_run,omitempty"`
	LastOutcome Outcome    `json:"last_outcome,omitempty"`
}

// Guard is the single collection token. At most one holder exists at a time;
// acquiring never blocks or queues.
type Guard struct {
	mu          sync.Mutex
	running     bool
	lastRun     time.Time
	lastOutcome Outcome

	now func() time.Time
}

func NewGuard() *Guard {
	return &Guard{now: time.Now}
}

// TryAcquire takes the token if it is free. ok is false when a run is
// already in progress. release must be called exactly once; later calls are
// ignored.
func (g *Guard) TryAcquire() (release func(Outcome), ok bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.running {
		return nil, false
	}
	g.running = true

	var once sync.Once
	return func(o Outcome) {
		once.Do(func() {
			g.mu.Lock()
			defer g.mu.Unlock()
			g.running = false
			g.lastRun = g.now().UTC()
			g.lastOutcome = o
		})
	}, true
}

// Running reports whether the token is held
func (g *Guard) Running() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.running
}

func (g *Guard) Status() Status {
	g.mu.Lock()
	defer g.mu.Unlock()
	s := Status{Running: g.running, LastOutcome: g.lastOutcome}
	if !g.lastRun.IsZero() {
		t := g.lastRun
		s.LastRun = &t
	}
	return s
}
