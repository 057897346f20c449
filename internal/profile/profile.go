// Package profile holds firing schedules: piecewise-linear
// time/temperature curves.
package profile

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// ErrScheduleEnded is returned for queries past the schedule's duration.
var ErrScheduleEnded = errors.New("profile: time is past the end of the schedule")

// Point is one schedule vertex.
type Point struct {
	Time        time.Duration
	Temperature float64
}

// Profile is an immutable schedule. Points are sorted by time.
type Profile struct {
	name   string
	points []Point
}

// New sorts the points by time and validates them: at least two points,
// no negative times, no repeated times.
func New(name string, points []Point) (*Profile, error) {
	if name == "" {
		return nil, errors.New("profile: name is required")
	}
	if len(points) < 2 {
		return nil, fmt.Errorf("profile %q: at least two points are required, got %d", name, len(points))
	}
	pts := append([]Point(nil), points...)
	sort.SliceStable(pts, func(i, j int) bool { return pts[i].Time < pts[j].Time })
	for i, p := range pts {
		if p.Time < 0 {
			return nil, fmt.Errorf("profile %q: negative time %v", name, p.Time)
		}
		if i > 0 && p.Time == pts[i-1].Time {
			return nil, fmt.Errorf("profile %q: duplicate time %v", name, p.Time)
		}
	}
	return &Profile{name: name, points: pts}, nil
}

// Name is the schedule name.
func (p *Profile) Name() string { return p.name }

// Points returns a copy of the sorted points.
func (p *Profile) Points() []Point { return append([]Point(nil), p.points...) }

// Duration is the time of the last point.
func (p *Profile) Duration() time.Duration {
	return p.points[len(p.points)-1].Time
}

// TargetTemperature interpolates the schedule at t. Past the duration it
// returns 0; callers that treat 0 as a real target must compare t with
// Duration themselves. Before the first point it holds the first
// temperature.
func (p *Profile) TargetTemperature(t time.Duration) float64 {
	if t > p.Duration() {
		return 0
	}
	if t <= p.points[0].Time {
		return p.points[0].Temperature
	}
	a, b := p.segment(t)
	if t == b.Time {
		return b.Temperature
	}
	frac := float64(t-a.Time) / float64(b.Time-a.Time)
	return a.Temperature + (b.Temperature-a.Temperature)*frac
}

// IsRampingUp reports whether the segment containing t rises. It fails
// with ErrScheduleEnded past the duration.
func (p *Profile) IsRampingUp(t time.Duration) (bool, error) {
	if t > p.Duration() {
		return false, ErrScheduleEnded
	}
	a, b := p.segment(t)
	return b.Temperature > a.Temperature, nil
}

// segment returns the points bracketing t, t <= Duration.
func (p *Profile) segment(t time.Duration) (Point, Point) {
	for i := 1; i < len(p.points); i++ {
		if t < p.points[i].Time {
			return p.points[i-1], p.points[i]
		}
	}
	n := len(p.points)
	return p.points[n-2], p.points[n-1]
}
