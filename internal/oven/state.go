package oven

import (
	"time"

	"github.com/sweeney/kiln-controller/internal/zone"
)

// EventType names a run lifecycle event.
type EventType string

const (
	RunStarted EventType = "RUN_STARTED"
	RunEnded   EventType = "RUN_ENDED"
)

// Event is a run lifecycle change.
type Event struct {
	Type    EventType
	Time    time.Time
	Profile string
	RunID   string
	// Reason is set on RunEnded.
	Reason string
}

// RunState is the published view of the oven.
type RunState struct {
	State       State
	Runtime     time.Duration
	TotalTime   time.Duration
	Temperature float64
	Target      float64
	// Heat is the global on-time for the current step.
	Heat    time.Duration
	Profile string
	RunID   string
	Faults  int
	Tuning  bool
	Zones   []zone.Stats

	KWhRate      float64
	CurrencyType string
}

// State returns a snapshot of the run state.
func (o *Oven) State() RunState {
	snap := o.registry.Snapshot()
	o.mu.Lock()
	defer o.mu.Unlock()
	rs := RunState{
		State:       o.state,
		Runtime:     o.runtime,
		Temperature: zone.Average(snap),
		Target:      o.target,
		Heat:        time.Duration(o.duty * float64(o.cfg.TimeStep)),
		RunID:       o.runID,
		Faults:      o.faults,
		Tuning:      o.tuning,
		Zones:       snap,

		KWhRate:      o.cfg.KWhRate,
		CurrencyType: o.cfg.CurrencyType,
	}
	if o.profile != nil {
		rs.Profile = o.profile.Name()
		rs.TotalTime = o.profile.Duration()
	}
	return rs
}
