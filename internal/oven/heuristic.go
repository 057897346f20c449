package oven

// Balancing multipliers, empirically tuned.
const (
	minLagDuty   = 0.15
	leadFactor   = 0.8
	overFactor   = 0.9
	aboveFactor  = 0.95
	behindFactor = 2.5
)

// zoneDuty adjusts the global duty for one zone from its lead over the
// target, its deviation from the heated-zone average and the spread of
// heated-zone temperatures. The result is in [0,1].
func zoneDuty(duty, temp, target, avg, spread, maxLag, powerAdjust float64) float64 {
	var d float64
	switch {
	case duty <= 0:
		if avg-temp > maxLag {
			d = minLagDuty
		}
	case temp-target > maxLag:
		d = duty * leadFactor
	case temp > target && spread > 2*maxLag:
		d = duty * overFactor
	case temp > avg && spread > maxLag:
		d = duty * aboveFactor
	case avg-temp > maxLag:
		d = duty * behindFactor
	default:
		d = duty * powerAdjust
	}
	return clamp(d, 0, 1)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
