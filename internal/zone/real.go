package zone

import (
	"context"
	"time"

	"github.com/sweeney/kiln-controller/internal/gpio"
)

// tuningCheck is how often a tuning zone re-asserts its heater.
const tuningCheck = time.Second

// RealZone pairs a sensor with a heater output and runs a
// time-proportioning loop: on for the assigned duration, off for the
// remainder of the step.
type RealZone struct {
	base
	sensor Sensor

	// wait sleeps for d or until ctx ends; it reports false on cancel.
	wait func(ctx context.Context, d time.Duration) bool
}

// RealConfig configures a RealZone.
type RealConfig struct {
	Name        string
	Index       int
	TimeStep    time.Duration
	PowerAdjust float64
	Sensor      Sensor
	// Heater is nil for sensor-only zones.
	Heater   gpio.Output
	Registry *Registry
}

// NewReal creates a RealZone and publishes its first snapshot.
func NewReal(cfg RealConfig) *RealZone {
	z := &RealZone{
		base:   newBase(cfg.Name, cfg.Index, cfg.TimeStep, cfg.PowerAdjust, cfg.Registry, cfg.Heater),
		sensor: cfg.Sensor,
		wait:   sleepCtx,
	}
	z.Publish()
	return z
}

func (z *RealZone) Temperature() float64 { return z.sensor.Temperature() }
func (z *RealZone) Faulted() bool        { return z.sensor.Faulted() }
func (z *RealZone) BadPercent() float64  { return z.sensor.BadPercent() }
func (z *RealZone) Delta() float64       { return z.delta(z.Temperature()) }

func (z *RealZone) Stats() Stats {
	return z.stats(z.Temperature(), z.Faulted(), z.BadPercent())
}

// Publish writes the zone's snapshot into the registry.
func (z *RealZone) Publish() {
	z.publish(z.Stats())
}

// Run executes duty cycles until ctx is canceled, then turns the heater
// off. The snapshot is published at the top of every cycle.
func (z *RealZone) Run(ctx context.Context) {
	defer func() {
		if z.heated {
			z.setOutput(false)
		}
	}()
	for {
		z.Publish()
		if !z.cycle(ctx) {
			return
		}
	}
}

// cycle runs one step and reports false once ctx is canceled.
func (z *RealZone) cycle(ctx context.Context) bool {
	if !z.heated {
		return z.wait(ctx, z.timeStep)
	}
	if z.Tuning() {
		z.setOutput(true)
		return z.wait(ctx, tuningCheck)
	}
	heat := z.assigned()
	if heat > 0 {
		z.setOutput(true)
		if !z.wait(ctx, heat) {
			return false
		}
	}
	z.setOutput(false)
	return z.wait(ctx, z.timeStep-heat)
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
