// Package zone models independently heated and sensed regions of the kiln.
//
// A RealZone owns a heater output and a sensor and runs its own
// time-proportioning loop. A SimulatedZone replaces both with a thermal
// model advanced synchronously by HeatFor.
package zone

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/sweeney/kiln-controller/internal/gpio"
	"github.com/sweeney/kiln-controller/internal/metrics"
)

// Zone is the capability the oven drives.
type Zone interface {
	Name() string
	Heated() bool
	PowerAdjust() float64

	Temperature() float64
	Faulted() bool
	BadPercent() float64
	// Delta is the difference from the heated-zone average, read from
	// the registry.
	Delta() float64

	// HeatFor assigns the heater on-time for the current step.
	HeatFor(d time.Duration)
	// Reset forces the output off and leaves tuning mode.
	Reset()

	EnableTuning()
	ForceOn()
	ForceOff()
	Tuning() bool

	// Stats builds the zone's current snapshot.
	Stats() Stats
}

// Sensor is the published side of a sampler.
type Sensor interface {
	Temperature() float64
	Faulted() bool
	BadPercent() float64
}

// base holds what real and simulated zones share.
type base struct {
	name        string
	index       int
	timeStep    time.Duration
	powerAdjust float64
	registry    *Registry
	output      gpio.Output
	heated      bool

	mu     sync.Mutex
	heat   time.Duration
	tuning bool
}

func newBase(name string, index int, timeStep time.Duration, powerAdjust float64, reg *Registry, out gpio.Output) base {
	if powerAdjust == 0 {
		powerAdjust = 1
	}
	heated := out != nil
	if out == nil {
		out = gpio.NullOutput{}
	}
	return base{
		name:        name,
		index:       index,
		timeStep:    timeStep,
		powerAdjust: powerAdjust,
		registry:    reg,
		output:      out,
		heated:      heated,
	}
}

func (b *base) Name() string         { return b.name }
func (b *base) Heated() bool         { return b.heated }
func (b *base) PowerAdjust() float64 { return b.powerAdjust }

// HeatFor records d, clamped to [0, time step]. Zones without a heater
// ignore it.
func (b *base) HeatFor(d time.Duration) {
	if !b.heated {
		return
	}
	if d < 0 {
		d = 0
	}
	if d > b.timeStep {
		d = b.timeStep
	}
	b.mu.Lock()
	b.heat = d
	b.mu.Unlock()
	metrics.ZoneDuty.WithLabelValues(b.name).Set(float64(d) / float64(b.timeStep))
}

func (b *base) assigned() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.heat
}

func (b *base) Reset() {
	b.mu.Lock()
	b.tuning = false
	b.heat = 0
	b.mu.Unlock()
	if !b.heated {
		return
	}
	b.setOutput(false)
	metrics.ZoneDuty.WithLabelValues(b.name).Set(0)
}

func (b *base) EnableTuning() {
	b.mu.Lock()
	b.tuning = true
	b.mu.Unlock()
}

func (b *base) Tuning() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tuning
}

// ForceOn energizes the heater immediately, but only in tuning mode.
func (b *base) ForceOn() {
	if b.Tuning() && b.heated {
		b.setOutput(true)
	}
}

// ForceOff leaves tuning mode and turns the heater off.
func (b *base) ForceOff() {
	b.Reset()
}

func (b *base) setOutput(on bool) {
	if err := b.output.Set(on); err != nil {
		log.Printf("zone %s: set heater output: %v", b.name, err)
	}
}

func (b *base) delta(temp float64) float64 {
	if !b.heated {
		return 0
	}
	return temp - HeatedAverage(b.registry.Snapshot())
}

func (b *base) stats(temp float64, faulted bool, badPct float64) Stats {
	heat := b.assigned()
	s := Stats{
		Name:        b.name,
		Heated:      b.heated,
		Temperature: temp,
		Delta:       b.delta(temp),
		Heat:        heat,
		HeatPct:     float64(heat) / float64(b.timeStep) * 100,
		Faulted:     faulted,
		BadPercent:  badPct,
		Tuning:      b.Tuning(),
	}
	return s
}

func (b *base) publish(s Stats) {
	b.registry.Publish(b.index, s)
	metrics.ZoneTemperature.WithLabelValues(b.name).Set(s.Temperature)
	f := 0.0
	if s.Faulted {
		f = 1
	}
	metrics.ZoneFaulted.WithLabelValues(b.name).Set(f)
}

func (s Stats) String() string {
	return fmt.Sprintf("%s: %.1f° (%.1f) <%.1f%%>", s.Name, s.Temperature, s.Delta, s.HeatPct)
}
