package status

import (
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sweeney/kiln-controller/internal/oven"
	"github.com/sweeney/kiln-controller/internal/zone"
)

func running() oven.RunState {
	return oven.RunState{
		State:       oven.Running,
		Runtime:     90 * time.Second,
		TotalTime:   time.Hour,
		Temperature: 101.234,
		Target:      100,
		Heat:        1500 * time.Millisecond,
		Profile:     "cone6",
		RunID:       "2026-01-01_00-00-00_cone6",
		Faults:      2,
		Zones: []zone.Stats{
			{Name: "Top", Heated: true, Temperature: 99.456, Delta: -1.789, HeatPct: 75},
			{Name: "E", Temperature: 40},
		},
		KWhRate:      0.26,
		CurrencyType: "EUR",
	}
}

func TestNewTracker(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := Config{TimeStepMs: 2000, Broker: "tcp://localhost:1883", Zones: []string{"Top"}}
	tr := NewTracker(start, cfg)

	snap := tr.Snapshot()
	if !snap.StartTime.Equal(start) {
		t.Errorf("StartTime: got %v, want %v", snap.StartTime, start)
	}
	if snap.Config.TimeStepMs != 2000 {
		t.Errorf("Config.TimeStepMs: got %d, want 2000", snap.Config.TimeStepMs)
	}
	if snap.Oven.State != oven.Idle {
		t.Errorf("Oven.State: got %q, want IDLE", snap.Oven.State)
	}
	if snap.MQTTConnected {
		t.Error("expected MQTTConnected=false initially")
	}
}

func TestUpdateAndSnapshot(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	tr.Update(running())

	snap := tr.Snapshot()
	if snap.Oven.State != oven.Running {
		t.Errorf("State: got %q, want RUNNING", snap.Oven.State)
	}
	if snap.Oven.Profile != "cone6" {
		t.Errorf("Profile: got %q", snap.Oven.Profile)
	}
	if len(snap.Oven.Zones) != 2 {
		t.Errorf("Zones: got %d, want 2", len(snap.Oven.Zones))
	}
}

func TestUpdateCopiesZones(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	rs := running()
	tr.Update(rs)
	rs.Zones[0].Temperature = 999

	if got := tr.Snapshot().Oven.Zones[0].Temperature; got != 99.456 {
		t.Errorf("snapshot zone changed with caller's slice: got %v", got)
	}
}

func TestSetMQTTConnected(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})

	tr.SetMQTTConnected(true)
	if !tr.Snapshot().MQTTConnected {
		t.Error("expected MQTTConnected=true")
	}

	tr.SetMQTTConnected(false)
	if tr.Snapshot().MQTTConnected {
		t.Error("expected MQTTConnected=false")
	}
}

func TestSnapshotUptime(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tr := NewTracker(start, Config{})
	tr.now = func() time.Time { return start.Add(90 * time.Minute) }

	if got := tr.Snapshot().Uptime(); got != 90*time.Minute {
		t.Errorf("Uptime: got %v, want 1h30m", got)
	}
}

func TestConcurrentAccess(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				tr.Update(running())
				tr.SetMQTTConnected(j%2 == 0)
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = FormatJSON(tr.Snapshot())
			}
		}()
	}
	wg.Wait()
}

func TestFormatRunState(t *testing.T) {
	var got RunJSON
	if err := json.Unmarshal(FormatRunState(running()), &got); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if got.State != "RUNNING" || got.Runtime != 90 || got.TotalTime != 3600 {
		t.Errorf("unexpected run: %+v", got)
	}
	if got.Heat != 1.5 || got.Temperature != 101.23 {
		t.Errorf("heat=%v temperature=%v", got.Heat, got.Temperature)
	}
	if got.Profile == nil || *got.Profile != "cone6" {
		t.Errorf("profile: got %v", got.Profile)
	}
	if len(got.Zones) != 2 || got.Zones[0].Delta != -1.79 || got.Zones[1].Heated {
		t.Errorf("zones: %+v", got.Zones)
	}
	if got.KWhRate != 0.26 || got.CurrencyType != "EUR" {
		t.Errorf("cost: rate=%v currency=%q", got.KWhRate, got.CurrencyType)
	}
}

func TestFormatRunStateIdleProfileIsNull(t *testing.T) {
	payload := string(FormatRunState(oven.RunState{}))
	if !strings.Contains(payload, `"profile":null`) {
		t.Errorf("expected null profile, got %s", payload)
	}
	if !strings.Contains(payload, `"state":"IDLE"`) {
		t.Errorf("expected IDLE state, got %s", payload)
	}
	if !strings.Contains(payload, `"zones":[]`) {
		t.Errorf("expected empty zone list, got %s", payload)
	}
}

func TestFormatStatusEvent(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tr := NewTracker(start, Config{Broker: "tcp://b:1883", TempScale: "c"})
	tr.now = func() time.Time { return start.Add(time.Minute) }
	tr.Update(running())
	tr.SetNetwork(&NetworkInfo{Type: "wifi", IP: "10.0.0.2", Status: "up"})

	var parsed StatusJSON
	if err := json.Unmarshal(FormatStatusEvent(tr.Snapshot(), "SHUTDOWN", "SIGTERM"), &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	s := parsed.Status
	if s.Event != "SHUTDOWN" || s.Reason != "SIGTERM" {
		t.Errorf("event=%q reason=%q", s.Event, s.Reason)
	}
	if s.UptimeSeconds != 60 {
		t.Errorf("uptime=%d want 60", s.UptimeSeconds)
	}
	if s.Timestamp != "2026-01-01T00:01:00Z" {
		t.Errorf("timestamp=%s", s.Timestamp)
	}
	if s.Oven.RunID != "2026-01-01_00-00-00_cone6" {
		t.Errorf("run_id=%s", s.Oven.RunID)
	}
	if s.Network == nil || s.Network.IP != "10.0.0.2" {
		t.Errorf("network=%+v", s.Network)
	}
}

func TestFormatJSONOmitsEventAndNetwork(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	var parsed map[string]map[string]interface{}
	if err := json.Unmarshal(FormatJSON(tr.Snapshot()), &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	for _, k := range []string{"event", "reason", "network"} {
		if _, ok := parsed["status"][k]; ok {
			t.Errorf("unexpected %q field", k)
		}
	}
}
