// Package status keeps the kiln daemon's view of itself: the latest oven
// run state, broker connection, network and effective configuration. The
// run loop refreshes it each cycle; the STARTUP, HEARTBEAT and SHUTDOWN
// messages are rendered from its snapshots.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/kiln-controller/internal/oven"
	"github.com/sweeney/kiln-controller/internal/zone"
)

// NetworkInfo is the host's network state as written by pi-helper.
// Kept here rather than in internal/mqtt so status has no transport import.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config is the subset of the kiln configuration reported in status
// messages.
type Config struct {
	TimeStepMs  int64
	HeartbeatMs int64
	Broker      string
	MetricsAddr string
	TempScale   string
	Simulate    bool
	// Zones lists zone names in control order.
	Zones []string
}

// Snapshot is a copy of the tracked state taken at Now.
type Snapshot struct {
	Oven          oven.RunState
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Network       *NetworkInfo
	Config        Config
}

// Uptime is the time the daemon has been up at the snapshot.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds the latest kiln state. Writers are the run loop and the
// heartbeat; readers are the status publishers.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
	now  func() time.Time
}

// NewTracker starts tracking a daemon that came up at startTime. The oven
// is reported IDLE until the first Update.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
			Oven:      oven.RunState{State: oven.Idle},
		},
		now: time.Now,
	}
}

// Update records the oven's latest run state. The zone list is copied,
// so snapshots never share it with the caller.
func (t *Tracker) Update(rs oven.RunState) {
	rs.Zones = append([]zone.Stats(nil), rs.Zones...)
	t.mu.Lock()
	t.snap.Oven = rs
	t.mu.Unlock()
}

// SetMQTTConnected records whether the broker connection is up.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork records the latest pi-helper network report.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot copies the tracked state, stamped with the current time.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = t.now()
	return s
}
