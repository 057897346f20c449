package zone

import (
	"math/rand"
	"sync"
	"time"

	"github.com/sweeney/kiln-controller/internal/gpio"
)

// ThermalModel holds the lumped parameters of a simulated zone.
type ThermalModel struct {
	// TEnv is the ambient temperature.
	TEnv float64 `yaml:"t_env"`
	// CHeat and COven are heat capacities of the element and the load.
	CHeat float64 `yaml:"c_heat"`
	COven float64 `yaml:"c_oven"`
	// PHeat is the element power in watts.
	PHeat float64 `yaml:"p_heat"`
	// RONoCool is the thermal resistance from oven to environment.
	RONoCool float64 `yaml:"r_o_nocool"`
	// RHONoAir is the thermal resistance from element to oven.
	RHONoAir float64 `yaml:"r_ho_noair"`
	// Divergence scales a random per-step loss that grows with zone
	// index, so simulated zones drift apart.
	Divergence float64 `yaml:"divergence"`
}

// DefaultThermalModel is a small electric kiln.
var DefaultThermalModel = ThermalModel{
	TEnv:     25,
	CHeat:    100,
	COven:    5000,
	PHeat:    5450,
	RONoCool: 1.0,
	RHONoAir: 0.1,
}

// SimulatedZone advances a two-body thermal model each time it is
// assigned heat. The heater output, if any, only mirrors the assignment.
type SimulatedZone struct {
	base
	model ThermalModel

	simMu  sync.Mutex
	t      float64
	tH     float64
	random func() float64
}

// SimConfig configures a SimulatedZone.
type SimConfig struct {
	Name        string
	Index       int
	TimeStep    time.Duration
	PowerAdjust float64
	Model       ThermalModel
	// Heated is false for sensor-only zones.
	Heated   bool
	Registry *Registry
	// Rand is the divergence source; nil uses math/rand.
	Rand func() float64
}

// NewSimulated creates a SimulatedZone at ambient and publishes its first
// snapshot.
func NewSimulated(cfg SimConfig) *SimulatedZone {
	var out gpio.Output
	if cfg.Heated {
		out = gpio.NullOutput{}
	}
	r := cfg.Rand
	if r == nil {
		r = rand.Float64
	}
	z := &SimulatedZone{
		base:   newBase(cfg.Name, cfg.Index, cfg.TimeStep, cfg.PowerAdjust, cfg.Registry, out),
		model:  cfg.Model,
		t:      cfg.Model.TEnv,
		tH:     cfg.Model.TEnv,
		random: r,
	}
	z.publish(z.Stats())
	return z
}

// HeatFor advances the model by one time step with the heater on for d,
// then publishes. In tuning mode the heater is on for the whole step.
func (z *SimulatedZone) HeatFor(d time.Duration) {
	z.base.HeatFor(d)
	heat := z.assigned()
	if z.Tuning() && z.heated {
		heat = z.timeStep
	}
	z.advance(heat)
	z.publish(z.Stats())
}

func (z *SimulatedZone) advance(heat time.Duration) {
	m := z.model
	step := z.timeStep.Seconds()

	z.simMu.Lock()
	defer z.simMu.Unlock()

	if z.heated {
		q := m.PHeat * heat.Seconds()
		z.tH += q / m.CHeat
	}
	pHO := (z.tH - z.t) / m.RHONoAir
	z.t += pHO * step / m.COven
	z.tH -= pHO * step / m.CHeat

	pEnv := (z.t - m.TEnv) / m.RONoCool
	z.t -= pEnv * step / m.COven

	if m.Divergence > 0 {
		z.t -= z.random() * m.Divergence * float64(z.index)
	}
}

func (z *SimulatedZone) Temperature() float64 {
	z.simMu.Lock()
	defer z.simMu.Unlock()
	return z.t
}

// SetTemperature places both bodies at c.
func (z *SimulatedZone) SetTemperature(c float64) {
	z.simMu.Lock()
	z.t, z.tH = c, c
	z.simMu.Unlock()
	z.publish(z.Stats())
}

func (z *SimulatedZone) Faulted() bool       { return false }
func (z *SimulatedZone) BadPercent() float64 { return 0 }
func (z *SimulatedZone) Delta() float64      { return z.delta(z.Temperature()) }

func (z *SimulatedZone) Stats() Stats {
	return z.stats(z.Temperature(), false, 0)
}
