// Package pid implements the kiln's PID control law.
//
// The output is a heater duty in [0,1]. Internally the controller works in
// a ±100 window so that proportional control is not squeezed into a narrow
// band around the setpoint; the clamped result is then scaled down.
//
// Not safe for concurrent use. One controller serves the whole kiln.
package pid

import (
	"log"
	"math"
	"time"
)

// window is the half-width of the raw output range.
const window = 100.0

// Config holds the tuning. Ki is inverted: the integral term accumulates
// error*dt/Ki, so a smaller Ki means more integral action. Ki <= 0 disables
// the integral term.
type Config struct {
	Kp float64 `yaml:"kp"`
	Ki float64 `yaml:"ki"`
	Kd float64 `yaml:"kd"`
	// StopIntegralWindup freezes the integral while |Kp*error| is outside
	// the output window.
	StopIntegralWindup bool `yaml:"stop_integral_windup"`
}

// Terms are the unclamped components of the last evaluation.
type Terms struct {
	Error  float64
	P      float64
	I      float64
	D      float64
	Output float64
}

// Controller is a PID controller with inverted-Ki integral and anti-windup.
type Controller struct {
	cfg Config

	iterm   float64
	lastErr float64
	lastAt  time.Time
	last    Terms
}

// New creates a controller whose first derivative interval starts at now.
func New(cfg Config, now time.Time) *Controller {
	return &Controller{cfg: cfg, lastAt: now}
}

// Compute evaluates the control law and returns the duty in [0,1].
// Zero (or negative) elapsed time contributes no derivative and no
// integral.
func (c *Controller) Compute(setpoint, measured float64, now time.Time) float64 {
	dt := now.Sub(c.lastAt).Seconds()
	if dt < 0 {
		dt = 0
	}
	err := setpoint - measured

	if c.cfg.Ki > 0 {
		if !c.cfg.StopIntegralWindup || math.Abs(c.cfg.Kp*err) < window {
			c.iterm += err * dt / c.cfg.Ki
		}
	}

	var deriv float64
	if dt > 0 {
		deriv = (err - c.lastErr) / dt
	}

	out := c.cfg.Kp*err + c.iterm + c.cfg.Kd*deriv
	c.last = Terms{Error: err, P: c.cfg.Kp * err, I: c.iterm, D: c.cfg.Kd * deriv, Output: out}
	c.lastErr = err
	c.lastAt = now

	if out > 0 {
		log.Printf("pid: actuals pid=%0.2f p=%0.2f i=%0.2f d=%0.2f", out, c.last.P, c.last.I, c.last.D)
	}

	// No active cooling.
	duty := math.Max(-window, math.Min(window, out))
	if duty < 0 {
		duty = 0
	}
	return duty / window
}

// Last returns the terms of the most recent Compute.
func (c *Controller) Last() Terms {
	return c.last
}
