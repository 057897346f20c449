// Package oven runs the firing state machine: it follows a profile,
// drives the global PID controller, splits its duty across zones and
// shuts everything off on schedule end or on a safety violation.
package oven

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/sweeney/kiln-controller/internal/gpio"
	"github.com/sweeney/kiln-controller/internal/metrics"
	"github.com/sweeney/kiln-controller/internal/pid"
	"github.com/sweeney/kiln-controller/internal/profile"
	"github.com/sweeney/kiln-controller/internal/runlog"
	"github.com/sweeney/kiln-controller/internal/zone"
)

// State is the oven's textual state.
type State string

const (
	Idle    State = "IDLE"
	Running State = "RUNNING"
)

// Reasons passed to Reset and carried by RunEnded events.
const (
	ReasonAbort         = "abort"
	ReasonScheduleEnded = "schedule_ended"
	ReasonEmergency     = "emergency_temperature"
	ReasonBadReadings   = "bad_readings"
	ReasonFaults        = "fault_threshold"
	ReasonRestart       = "restart"
	ReasonShutdown      = "shutdown"
)

// ErrRefused wraps every reason RunProfile declines to start.
var ErrRefused = errors.New("oven: refusing to start profile")

// RunIDFormat is the time layout of the run identifier prefix.
const RunIDFormat = "2006-01-02_15-04-05"

// Config holds the control parameters.
type Config struct {
	TimeStep             time.Duration
	EmergencyShutoffTemp float64
	ZoneMaxLag           float64
	// FaultThreshold is the number of faulted cycles tolerated per run.
	FaultThreshold int
	// MaxBadPercent is the sampler bad-reading share that ends a run.
	MaxBadPercent   float64
	CatchUp         bool
	CatchUpMaxError float64
	PID             pid.Config
	Verbose         bool
	// KWhRate and CurrencyType are passed through to the run state for
	// firing cost estimates.
	KWhRate      float64
	CurrencyType string
}

// Deps are the collaborators of an Oven.
type Deps struct {
	Zones    []zone.Zone
	Registry *zone.Registry
	// SafetySwitch is energized while a run is active. Nil means the kiln
	// has no contactor.
	SafetySwitch gpio.Output
	RunLog       runlog.Sink
	// OnEvent is called outside the oven lock for every run start and end.
	OnEvent func(Event)
	Now     func() time.Time
}

// Oven is the firing state machine. Its methods are safe for concurrent
// use; Step is normally driven by Run.
type Oven struct {
	cfg      Config
	zones    []zone.Zone
	registry *zone.Registry
	safety   gpio.Output
	runlog   runlog.Sink
	onEvent  func(Event)
	now      func() time.Time

	mu      sync.Mutex
	state   State
	profile *profile.Profile
	start   time.Time
	startAt time.Duration
	runtime time.Duration
	target  float64
	duty    float64
	faults  int
	tuning  bool
	runID   string
	pid     *pid.Controller
	pending []Event

	// Run-log writes are queued under mu and performed after it is
	// released, by one drainer at a time, in queue order.
	logOps  []func(runlog.Sink) error
	logBusy bool
}

// New creates an idle oven.
func New(cfg Config, d Deps) *Oven {
	if cfg.FaultThreshold <= 0 {
		cfg.FaultThreshold = 10
	}
	if cfg.MaxBadPercent <= 0 {
		cfg.MaxBadPercent = 30
	}
	o := &Oven{
		cfg:      cfg,
		zones:    d.Zones,
		registry: d.Registry,
		safety:   d.SafetySwitch,
		runlog:   d.RunLog,
		onEvent:  d.OnEvent,
		now:      d.Now,
		state:    Idle,
	}
	if o.safety == nil {
		log.Printf("oven: WARNING no safety switch configured, heaters are not interlocked")
		o.safety = gpio.NullOutput{}
	}
	if o.runlog == nil {
		o.runlog = runlog.Discard{}
	}
	if o.now == nil {
		o.now = time.Now
	}
	o.pid = pid.New(cfg.PID, o.now())
	return o
}

// RunProfile starts p, startAtMinutes into the schedule. Any running
// firing is reset first. It returns an error wrapping ErrRefused, and
// leaves the oven idle, when a zone is faulted or already at the
// emergency temperature.
func (o *Oven) RunProfile(p *profile.Profile, startAtMinutes float64) error {
	o.mu.Lock()
	defer o.flush()
	defer o.mu.Unlock()

	if o.state == Running {
		o.resetLocked(ReasonRestart)
	}
	for _, z := range o.zones {
		if z.Faulted() {
			log.Printf("oven: refusing to start profile %s: zone %s faulted", p.Name(), z.Name())
			return fmt.Errorf("%w: zone %s faulted", ErrRefused, z.Name())
		}
		if t := z.Temperature(); t >= o.cfg.EmergencyShutoffTemp {
			log.Printf("oven: refusing to start profile %s: zone %s at %.1f, emergency is %.1f", p.Name(), z.Name(), t, o.cfg.EmergencyShutoffTemp)
			return fmt.Errorf("%w: zone %s over emergency temperature", ErrRefused, z.Name())
		}
	}

	now := o.now()
	o.profile = p
	o.start = now
	o.startAt = time.Duration(startAtMinutes * float64(time.Minute))
	o.runtime = o.startAt
	o.target = p.TargetTemperature(o.runtime)
	o.faults = 0
	o.pid = pid.New(o.cfg.PID, now)
	o.runID = now.Format(RunIDFormat) + "_" + p.Name()
	o.state = Running

	names := make([]string, len(o.zones))
	for i, z := range o.zones {
		names[i] = z.Name()
	}
	runID := o.runID
	o.queueLog(func(s runlog.Sink) error { return s.Begin(runID, names) })
	if err := o.safety.Set(true); err != nil {
		log.Printf("oven: energize safety switch: %v", err)
	}
	metrics.Running.Set(1)
	log.Printf("oven: running schedule %s (start at %v, duration %v)", p.Name(), o.startAt, p.Duration())
	o.emit(Event{Type: RunStarted, Time: now, Profile: p.Name(), RunID: o.runID})
	return nil
}

// Abort ends the current run.
func (o *Oven) Abort() {
	o.Reset(ReasonAbort)
}

// Reset returns to IDLE: safety switch and every zone output off, PID
// re-initialized. It is safe to call while idle.
func (o *Oven) Reset(reason string) {
	o.mu.Lock()
	o.resetLocked(reason)
	o.mu.Unlock()
	o.flush()
}

func (o *Oven) resetLocked(reason string) {
	wasRunning := o.state == Running
	runID := o.runID
	name := ""
	if o.profile != nil {
		name = o.profile.Name()
	}

	if err := o.safety.Set(false); err != nil {
		log.Printf("oven: de-energize safety switch: %v", err)
	}
	for _, z := range o.zones {
		z.Reset()
	}
	now := o.now()
	o.state = Idle
	o.profile = nil
	o.start = time.Time{}
	o.startAt = 0
	o.runtime = 0
	o.target = 0
	o.duty = 0
	o.faults = 0
	o.tuning = false
	o.runID = ""
	o.pid = pid.New(o.cfg.PID, now)
	metrics.Running.Set(0)

	if !wasRunning {
		return
	}
	o.queueLog(func(s runlog.Sink) error { return s.End() })
	metrics.Resets.WithLabelValues(reason).Inc()
	log.Printf("oven: reset (%s)", reason)
	o.emit(Event{Type: RunEnded, Time: now, Profile: name, RunID: runID, Reason: reason})
}

// Run steps the oven once per time step until ctx is canceled, then
// resets it.
func (o *Oven) Run(ctx context.Context) {
	t := time.NewTicker(o.cfg.TimeStep)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			o.Reset(ReasonShutdown)
			return
		case <-t.C:
			o.Step(o.now())
		}
	}
}

// Step runs one control cycle at now. It does nothing while idle.
func (o *Oven) Step(now time.Time) {
	o.mu.Lock()
	defer o.flush()
	defer o.mu.Unlock()

	if o.state != Running {
		return
	}
	metrics.Cycles.Inc()

	snap := o.registry.Snapshot()
	avg := zone.Average(snap)

	o.catchUp(avg)
	o.updateRuntime(now)
	o.target = o.profile.TargetTemperature(o.runtime)

	o.duty = o.pid.Compute(o.target, avg, now)
	o.heatZones(snap)
	o.logCycle(avg)

	if reason := o.checkSafety(); reason != "" {
		o.resetLocked(reason)
		return
	}
	if o.runtime > o.profile.Duration() {
		log.Printf("oven: schedule ended, shutting down")
		o.resetLocked(ReasonScheduleEnded)
		return
	}
	o.appendRow(now, avg)
}

// catchUp delays the schedule by one step while the kiln lags a rising
// segment or leads a falling or flat one.
func (o *Oven) catchUp(avg float64) {
	if !o.cfg.CatchUp || o.runtime > o.profile.Duration() {
		return
	}
	rising, err := o.profile.IsRampingUp(o.runtime)
	if err != nil {
		return
	}
	switch {
	case rising && o.target-avg > o.cfg.CatchUpMaxError:
		log.Printf("oven: kiln must catch up, too cold, shifting schedule")
	case !rising && avg-o.target > o.cfg.CatchUpMaxError:
		log.Printf("oven: kiln must catch up, too hot, shifting schedule")
	default:
		return
	}
	o.start = o.start.Add(o.cfg.TimeStep)
	metrics.CatchUpShifts.Inc()
}

func (o *Oven) updateRuntime(now time.Time) {
	elapsed := now.Sub(o.start)
	if elapsed < 0 {
		elapsed = 0
	}
	o.runtime = o.startAt + elapsed
}

func (o *Oven) heatZones(snap []zone.Stats) {
	avg := zone.HeatedAverage(snap)
	spread := zone.HeatedRange(snap)
	step := float64(o.cfg.TimeStep)
	for _, z := range o.zones {
		if !z.Heated() {
			continue
		}
		d := zoneDuty(o.duty, z.Temperature(), o.target, avg, spread, o.cfg.ZoneMaxLag, z.PowerAdjust())
		z.HeatFor(time.Duration(d * step))
	}
}

// checkSafety returns the reset reason for this cycle, or "".
func (o *Oven) checkSafety() string {
	faulted := false
	for _, z := range o.zones {
		if t := z.Temperature(); t >= o.cfg.EmergencyShutoffTemp {
			log.Printf("oven: emergency!!! zone %s at %.1f, temperature too high, shutting down", z.Name(), t)
			return ReasonEmergency
		}
		if p := z.BadPercent(); p > o.cfg.MaxBadPercent {
			log.Printf("oven: emergency!!! zone %s has %.0f%% bad readings, shutting down", z.Name(), p)
			return ReasonBadReadings
		}
		if z.Faulted() {
			faulted = true
		}
	}
	if faulted {
		o.faults++
		log.Printf("oven: thermocouple fault (%d of %d tolerated)", o.faults, o.cfg.FaultThreshold)
		if o.faults > o.cfg.FaultThreshold {
			log.Printf("oven: emergency!!! too many thermocouple faults, shutting down")
			return ReasonFaults
		}
	}
	return ""
}

func (o *Oven) logCycle(avg float64) {
	step := o.cfg.TimeStep.Seconds()
	total := o.profile.Duration()
	log.Printf("oven: temp=%.2f target=%.2f pid=%.3f heat_on=%.2f heat_off=%.2f run_time=%d total_time=%d time_left=%d",
		avg, o.target, o.duty, step*o.duty, step*(1-o.duty),
		int(o.runtime.Seconds()), int(total.Seconds()), int((total - o.runtime).Seconds()))
	metrics.TargetTemperature.Set(o.target)
	metrics.AverageTemperature.Set(avg)
	metrics.PIDOutput.Set(o.duty)
	if o.cfg.Verbose {
		for _, z := range o.zones {
			log.Printf("oven: %s", z.Stats())
		}
	}
}

func (o *Oven) appendRow(now time.Time, avg float64) {
	row := runlog.Row{Time: now, Target: o.target, Average: avg, PID: o.duty}
	for _, z := range o.zones {
		s := z.Stats()
		row.Zones = append(row.Zones, runlog.ZoneRow{
			Name:        s.Name,
			Temperature: s.Temperature,
			Delta:       s.Delta,
			HeatPct:     s.HeatPct,
		})
	}
	o.queueLog(func(s runlog.Sink) error { return s.Append(row) })
}

// EnableTuning puts every zone in tuning mode.
func (o *Oven) EnableTuning() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.tuning = true
	for _, z := range o.zones {
		z.EnableTuning()
	}
}

// ForceOn turns every heater on while tuning.
func (o *Oven) ForceOn() {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, z := range o.zones {
		z.ForceOn()
	}
}

// ForceOff leaves tuning mode and turns every heater off.
func (o *Oven) ForceOff() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.tuning = false
	for _, z := range o.zones {
		z.ForceOff()
	}
}

func (o *Oven) emit(e Event) {
	if o.onEvent != nil {
		o.pending = append(o.pending, e)
	}
}

func (o *Oven) queueLog(op func(runlog.Sink) error) {
	o.logOps = append(o.logOps, op)
}

// flush delivers queued events, then run-log writes. Must be called
// without o.mu held.
func (o *Oven) flush() {
	o.mu.Lock()
	pending := o.pending
	o.pending = nil
	o.mu.Unlock()
	for _, e := range pending {
		o.onEvent(e)
	}
	o.drainLog()
}

// drainLog performs queued run-log writes. If another caller is already
// draining it returns at once; that caller picks up the new writes.
func (o *Oven) drainLog() {
	o.mu.Lock()
	if o.logBusy {
		o.mu.Unlock()
		return
	}
	o.logBusy = true
	for len(o.logOps) > 0 {
		ops := o.logOps
		o.logOps = nil
		o.mu.Unlock()
		for _, op := range ops {
			if err := op(o.runlog); err != nil {
				log.Printf("oven: run log: %v", err)
			}
		}
		o.mu.Lock()
	}
	o.logBusy = false
	o.mu.Unlock()
}
