package zone

import (
	"sync/atomic"
	"time"
)

// Stats is the read-only projection a zone publishes once per cycle.
type Stats struct {
	Name        string
	Heated      bool
	Temperature float64
	Delta       float64
	Heat        time.Duration
	HeatPct     float64
	Faulted     bool
	BadPercent  float64
	Tuning      bool
}

// Registry is the cross-zone snapshot table. Each slot has one writer, the
// zone that owns it; any goroutine may read. Publishing replaces the whole
// snapshot, so readers never observe a partially updated one.
type Registry struct {
	slots []atomic.Pointer[Stats]
}

// NewRegistry returns a registry with n empty slots.
func NewRegistry(n int) *Registry {
	return &Registry{slots: make([]atomic.Pointer[Stats], n)}
}

// Len is the number of slots.
func (r *Registry) Len() int { return len(r.slots) }

// Publish stores s in slot i.
func (r *Registry) Publish(i int, s Stats) {
	r.slots[i].Store(&s)
}

// Get returns slot i and whether it has been published.
func (r *Registry) Get(i int) (Stats, bool) {
	p := r.slots[i].Load()
	if p == nil {
		return Stats{}, false
	}
	return *p, true
}

// Snapshot copies every published slot, in slot order.
func (r *Registry) Snapshot() []Stats {
	out := make([]Stats, 0, len(r.slots))
	for i := range r.slots {
		if p := r.slots[i].Load(); p != nil {
			out = append(out, *p)
		}
	}
	return out
}

// HeatedAverage is the mean temperature of zones with a heater, or 0 if
// there are none.
func HeatedAverage(stats []Stats) float64 {
	var sum float64
	n := 0
	for _, s := range stats {
		if s.Heated {
			sum += s.Temperature
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// HeatedRange is max-min over zones with a heater.
func HeatedRange(stats []Stats) float64 {
	first := true
	var lo, hi float64
	for _, s := range stats {
		if !s.Heated {
			continue
		}
		if first {
			lo, hi = s.Temperature, s.Temperature
			first = false
			continue
		}
		if s.Temperature < lo {
			lo = s.Temperature
		}
		if s.Temperature > hi {
			hi = s.Temperature
		}
	}
	return hi - lo
}

// Average is the kiln temperature used for control: the mean over heated
// zones, or over all zones when none is heated.
func Average(stats []Stats) float64 {
	for _, s := range stats {
		if s.Heated {
			return HeatedAverage(stats)
		}
	}
	if len(stats) == 0 {
		return 0
	}
	var sum float64
	for _, s := range stats {
		sum += s.Temperature
	}
	return sum / float64(len(stats))
}
