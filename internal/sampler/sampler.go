// Package sampler polls one thermocouple on its own schedule and publishes
// a moving-average temperature plus a rolling bad-reading percentage.
//
// Consumers only read the published values (Temperature, Faulted,
// BadPercent); raw wire values never leave this package.
package sampler

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/sweeney/kiln-controller/internal/metrics"
	"github.com/sweeney/kiln-controller/internal/thermocouple"
)

// ErrReadTimeout is reported in place of a reading when the device does not
// answer within Config.ReadTimeout. It counts as a bad reading.
var ErrReadTimeout = errors.New("sampler: read timed out")

// Source produces one reading per call. *thermocouple.Driver satisfies it.
type Source interface {
	Read() (thermocouple.Reading, error)
}

// Scale is the unit published temperatures are expressed in.
type Scale string

const (
	Celsius    Scale = "c"
	Fahrenheit Scale = "f"
)

// Config configures a Sampler.
type Config struct {
	Name     string
	TimeStep time.Duration
	// Samples is both the moving-average window size and the number of
	// polls per time step.
	Samples int
	Offset  float64
	Scale   Scale
	// ReadTimeout bounds a single device read; zero disables the guard.
	ReadTimeout time.Duration
	Verbose     bool
}

type result struct {
	r   thermocouple.Reading
	err error
}

// Sampler is one sensor's polling loop.
type Sampler struct {
	cfg Config
	src Source

	mu          sync.RWMutex
	temperature float64
	faulted     bool
	faults      thermocouple.FaultSet
	badPercent  float64

	// Owned by the polling goroutine.
	window   []float64
	badCount int
	okCount  int
	badStamp time.Time
	inflight chan result

	afterFn func(time.Duration) <-chan time.Time
}

// New creates a Sampler. Samples < 1 is treated as 1.
func New(src Source, cfg Config) *Sampler {
	if cfg.Samples < 1 {
		cfg.Samples = 1
	}
	if cfg.Scale == "" {
		cfg.Scale = Celsius
	}
	return &Sampler{
		cfg:     cfg,
		src:     src,
		window:  make([]float64, 0, cfg.Samples+1),
		afterFn: time.After,
	}
}

// Interval is the polling period: one time step split across the window.
func (s *Sampler) Interval() time.Duration {
	return s.cfg.TimeStep / time.Duration(s.cfg.Samples)
}

// Run polls until ctx is canceled.
func (s *Sampler) Run(ctx context.Context) {
	t := time.NewTicker(s.Interval())
	defer t.Stop()
	for {
		s.Poll(time.Now())
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

// Poll reads the device once and folds the result in.
func (s *Sampler) Poll(now time.Time) {
	r, err := s.read()
	s.Observe(now, r, err)
}

// Observe folds one reading (or read error) into the sampler state.
func (s *Sampler) Observe(now time.Time, r thermocouple.Reading, err error) {
	if s.badStamp.IsZero() {
		s.badStamp = now
	}
	var pct float64
	recomputed := false
	if now.Sub(s.badStamp) >= 2*s.cfg.TimeStep {
		if total := s.badCount + s.okCount; total > 0 {
			pct = float64(s.badCount) / float64(total) * 100
		}
		recomputed = true
		s.badCount = 0
		s.okCount = 0
		s.badStamp = now
	}

	bad := err != nil || r.Faults.Faulted()
	if bad {
		s.badCount++
		if err != nil {
			log.Printf("sampler %s: read error: %v", s.cfg.Name, err)
			metrics.SensorReads.WithLabelValues(s.cfg.Name, "error").Inc()
		} else {
			log.Printf("sampler %s: problem reading temp, faults: %s", s.cfg.Name, r.Faults)
			metrics.SensorReads.WithLabelValues(s.cfg.Name, "fault").Inc()
		}
	} else {
		s.window = append(s.window, r.Temperature)
		if len(s.window) > s.cfg.Samples {
			s.window = s.window[1:]
		}
		s.okCount++
		metrics.SensorReads.WithLabelValues(s.cfg.Name, "ok").Inc()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if recomputed {
		s.badPercent = pct
		metrics.SensorBadPercent.WithLabelValues(s.cfg.Name).Set(pct)
	}
	s.faulted = bad
	if err == nil {
		s.faults = r.Faults
	}
	if len(s.window) > 0 {
		s.temperature = s.convert(mean(s.window)) + s.cfg.Offset
	}
	if s.cfg.Verbose {
		log.Printf("sampler %s: temp=%.1f", s.cfg.Name, s.temperature)
	}
}

// Temperature is the published moving-average temperature.
func (s *Sampler) Temperature() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.temperature
}

// Faulted reports whether the latest reading was bad.
func (s *Sampler) Faulted() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.faulted
}

// Faults is the fault set of the latest completed device read.
func (s *Sampler) Faults() thermocouple.FaultSet {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.faults
}

// BadPercent is the share of bad readings over the last completed window.
func (s *Sampler) BadPercent() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.badPercent
}

// read calls the source with a timeout. A read that outlives its timeout
// keeps its goroutine; no new read is issued until it returns.
func (s *Sampler) read() (thermocouple.Reading, error) {
	if s.cfg.ReadTimeout <= 0 {
		return s.src.Read()
	}
	if s.inflight != nil {
		select {
		case <-s.inflight:
			s.inflight = nil
		default:
			return thermocouple.Reading{}, ErrReadTimeout
		}
	}
	ch := make(chan result, 1)
	go func() {
		r, err := s.src.Read()
		ch <- result{r: r, err: err}
	}()
	select {
	case res := <-ch:
		return res.r, res.err
	case <-s.afterFn(s.cfg.ReadTimeout):
		s.inflight = ch
		return thermocouple.Reading{}, ErrReadTimeout
	}
}

func (s *Sampler) convert(c float64) float64 {
	if s.cfg.Scale == Fahrenheit {
		return c*9/5 + 32
	}
	return c
}

func mean(v []float64) float64 {
	var sum float64
	for _, x := range v {
		sum += x
	}
	return sum / float64(len(v))
}
