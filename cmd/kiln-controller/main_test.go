package main

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/sweeney/kiln-controller/internal/config"
	"github.com/sweeney/kiln-controller/internal/mqtt"
	"github.com/sweeney/kiln-controller/internal/oven"
	"github.com/sweeney/kiln-controller/internal/profile"
	"github.com/sweeney/kiln-controller/internal/runlog"
	"github.com/sweeney/kiln-controller/internal/status"
	"github.com/sweeney/kiln-controller/internal/zone"
)

// TestEnvVarNames verifies the env var constants match what pi-helper writes
// to /run/pi-helper.env.
func TestEnvVarNames(t *testing.T) {
	want := map[string]string{
		"NETWORK_TYPE":        envNetworkType,
		"NETWORK_IP":          envNetworkIP,
		"NETWORK_STATUS":      envNetworkStatus,
		"NETWORK_GATEWAY":     envNetworkGateway,
		"NETWORK_WIFI_STATUS": envNetworkWifiStatus,
		"NETWORK_WIFI_SSID":   envNetworkWifiSSID,
	}
	for canonical, got := range want {
		if got != canonical {
			t.Errorf("env var constant: got %q, want %q", got, canonical)
		}
	}
}

func TestReadNetworkInfo(t *testing.T) {
	t.Setenv(envNetworkType, "wifi")
	t.Setenv(envNetworkIP, "192.168.1.100")
	t.Setenv(envNetworkStatus, "connected")
	t.Setenv(envNetworkGateway, "192.168.1.1")
	t.Setenv(envNetworkWifiStatus, "connected")
	t.Setenv(envNetworkWifiSSID, "Studio")

	info := readNetworkInfo()
	if info == nil {
		t.Fatal("expected non-nil NetworkInfo")
	}
	want := status.NetworkInfo{
		Type:       "wifi",
		IP:         "192.168.1.100",
		Status:     "connected",
		Gateway:    "192.168.1.1",
		WifiStatus: "connected",
		SSID:       "Studio",
	}
	if *info != want {
		t.Errorf("got %+v, want %+v", *info, want)
	}
}

func TestReadNetworkInfoUnset(t *testing.T) {
	t.Setenv(envNetworkStatus, "")
	if info := readNetworkInfo(); info != nil {
		t.Errorf("expected nil when NETWORK_STATUS is unset, got %+v", info)
	}
}

// --- runLoop tests ---

// fakeClock returns a function that yields start, start+step, start+2*step, ...
// on successive calls. Only called from runLoop's goroutine.
func fakeClock(start time.Time, step time.Duration) func() time.Time {
	n := 0
	return func() time.Time {
		t := start.Add(time.Duration(n) * step)
		n++
		return t
	}
}

type fixedState struct{ rs oven.RunState }

func (f fixedState) State() oven.RunState { return f.rs }

var t0 = time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)

func newTracker() *status.Tracker {
	return status.NewTracker(t0, status.Config{
		TimeStepMs: 2000,
		Broker:     "tcp://localhost:1883",
		TempScale:  "c",
		Zones:      []string{"top", "bottom"},
	})
}

type loopInput struct {
	events []oven.Event
	ticks  int
	signal os.Signal
}

// drive runs runLoop, feeding events then ticks through unbuffered channels
// so each is fully handled before the signal arrives.
func drive(t *testing.T, src stateSource, pub *mqtt.FakePublisher, tracker *status.Tracker, heartbeat time.Duration, clock func() time.Time, in loopInput) error {
	t.Helper()
	tick := make(chan time.Time)
	events := make(chan oven.Event)
	sig := make(chan os.Signal, 1)

	errCh := make(chan error, 1)
	go func() {
		errCh <- runLoop(src, pub, pub, tracker, heartbeat, clock, tick, events, sig)
	}()

	for _, e := range in.events {
		events <- e
	}
	for i := 0; i < in.ticks; i++ {
		tick <- time.Time{}
	}
	sig <- in.signal
	return <-errCh
}

func TestRunLoopShutdownPublishesStatus(t *testing.T) {
	pub := mqtt.NewFakePublisher()
	pub.Connected = true
	src := fixedState{oven.RunState{State: oven.Idle, Temperature: 21.5}}

	err := drive(t, src, pub, newTracker(), 0, fakeClock(t0, time.Second), loopInput{signal: syscall.SIGTERM})
	if err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	if len(pub.SystemEvents) != 1 {
		t.Fatalf("expected 1 system event, got %d", len(pub.SystemEvents))
	}
	ev := pub.SystemEvents[0]
	if ev.Event != "SHUTDOWN" || ev.Reason != "SIGTERM" || !ev.Retained {
		t.Errorf("unexpected shutdown event: %+v", ev)
	}

	var got status.StatusJSON
	if err := json.Unmarshal(pub.SystemPayloads[0], &got); err != nil {
		t.Fatalf("shutdown payload: %v", err)
	}
	if got.Status.Event != "SHUTDOWN" || got.Status.Reason != "SIGTERM" {
		t.Errorf("payload event/reason: %+v", got.Status)
	}
	if !got.Status.MQTT.Connected {
		t.Error("expected mqtt.connected true in shutdown payload")
	}
	if got.Status.Oven.Temperature != 21.5 {
		t.Errorf("oven temperature: got %v, want 21.5", got.Status.Oven.Temperature)
	}
}

func TestRunLoopSignalNames(t *testing.T) {
	for _, tc := range []struct {
		sig  os.Signal
		want string
	}{
		{syscall.SIGINT, "SIGINT"},
		{syscall.SIGTERM, "SIGTERM"},
		{syscall.SIGHUP, "UNKNOWN"},
	} {
		pub := mqtt.NewFakePublisher()
		_ = drive(t, fixedState{}, pub, newTracker(), 0, fakeClock(t0, time.Second), loopInput{signal: tc.sig})
		if got := pub.SystemEvents[0].Reason; got != tc.want {
			t.Errorf("%v: reason got %q, want %q", tc.sig, got, tc.want)
		}
	}
}

func TestRunLoopForwardsRunEvents(t *testing.T) {
	pub := mqtt.NewFakePublisher()
	events := []oven.Event{
		{Type: oven.RunStarted, Time: t0, Profile: "cone6", RunID: "2026-03-01_06-00-00"},
		{Type: oven.RunEnded, Time: t0.Add(time.Hour), Profile: "cone6", RunID: "2026-03-01_06-00-00", Reason: oven.ReasonScheduleEnded},
	}

	err := drive(t, fixedState{}, pub, newTracker(), 0, fakeClock(t0, time.Second), loopInput{events: events, signal: syscall.SIGINT})
	if err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	if len(pub.Events) != 2 {
		t.Fatalf("expected 2 run events, got %d", len(pub.Events))
	}
	if pub.Events[0].Type != oven.RunStarted || pub.Events[1].Reason != oven.ReasonScheduleEnded {
		t.Errorf("unexpected events: %+v", pub.Events)
	}
}

func TestRunLoopPublishErrorsDoNotStopLoop(t *testing.T) {
	pub := mqtt.NewFakePublisher()
	pub.PublishError = errors.New("broker down")
	events := []oven.Event{{Type: oven.RunStarted, Time: t0}}

	err := drive(t, fixedState{}, pub, newTracker(), 0, fakeClock(t0, time.Second), loopInput{events: events, ticks: 3, signal: syscall.SIGTERM})
	if err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}
	if len(pub.SystemEvents) != 1 {
		t.Errorf("expected shutdown to still be published, got %d system events", len(pub.SystemEvents))
	}
}

func TestRunLoopPublishesStateEveryTick(t *testing.T) {
	pub := mqtt.NewFakePublisher()
	src := fixedState{oven.RunState{
		State:       oven.Running,
		Runtime:     90 * time.Second,
		TotalTime:   10 * time.Minute,
		Temperature: 512.345,
		Target:      520,
		Profile:     "bisque",
		Zones: []zone.Stats{
			{Name: "top", Heated: true, Temperature: 515},
			{Name: "bottom", Heated: true, Temperature: 509.69},
		},
	}}

	err := drive(t, src, pub, newTracker(), 0, fakeClock(t0, time.Second), loopInput{ticks: 3, signal: syscall.SIGTERM})
	if err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}
	if len(pub.States) != 3 {
		t.Fatalf("expected 3 state payloads, got %d", len(pub.States))
	}

	var got status.RunJSON
	if err := json.Unmarshal(pub.States[2], &got); err != nil {
		t.Fatalf("state payload: %v", err)
	}
	if got.State != "RUNNING" {
		t.Errorf("state: got %q", got.State)
	}
	if got.Profile == nil || *got.Profile != "bisque" {
		t.Errorf("profile: got %v", got.Profile)
	}
	if got.Temperature != 512.35 {
		t.Errorf("temperature: got %v, want 512.35", got.Temperature)
	}
	if got.Runtime != 90 {
		t.Errorf("runtime: got %v, want 90", got.Runtime)
	}
	if len(got.Zones) != 2 || got.Zones[1].Temperature != 509.69 {
		t.Errorf("zones: got %+v", got.Zones)
	}
}

func TestRunLoopHeartbeat(t *testing.T) {
	pub := mqtt.NewFakePublisher()
	// Clock advances one minute per call: start, ticks 1..4, shutdown.
	clock := fakeClock(t0, time.Minute)

	err := drive(t, fixedState{}, pub, newTracker(), 2*time.Minute, clock, loopInput{ticks: 4, signal: syscall.SIGTERM})
	if err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	var heartbeats int
	for i, ev := range pub.SystemEvents {
		if ev.Event != "HEARTBEAT" {
			continue
		}
		heartbeats++
		var got status.StatusJSON
		if err := json.Unmarshal(pub.SystemPayloads[i], &got); err != nil {
			t.Fatalf("heartbeat payload: %v", err)
		}
		if got.Status.Event != "HEARTBEAT" {
			t.Errorf("heartbeat payload event: %q", got.Status.Event)
		}
	}
	if heartbeats != 2 {
		t.Errorf("expected 2 heartbeats, got %d", heartbeats)
	}
	if last := pub.SystemEvents[len(pub.SystemEvents)-1]; last.Event != "SHUTDOWN" {
		t.Errorf("expected SHUTDOWN last, got %q", last.Event)
	}
}

func TestRunLoopHeartbeatDisabled(t *testing.T) {
	pub := mqtt.NewFakePublisher()
	err := drive(t, fixedState{}, pub, newTracker(), 0, fakeClock(t0, time.Hour), loopInput{ticks: 5, signal: syscall.SIGTERM})
	if err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}
	if len(pub.SystemEvents) != 1 {
		t.Errorf("expected only SHUTDOWN, got %d system events", len(pub.SystemEvents))
	}
}

// --- wiring tests ---

func simulatedConfig(t *testing.T) config.Config {
	t.Helper()
	cfg, err := config.Parse([]byte(`
time_step: 2s
simulate:
  enable: true
zones:
  - name: top
    heat_pin: 23
  - name: bottom
    heat_pin: 24
  - name: peephole
`))
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	return cfg
}

func TestBuildZonesSimulated(t *testing.T) {
	cfg := simulatedConfig(t)
	reg := zone.NewRegistry(len(cfg.Zones))

	zones, samplers, err := buildZones(cfg, nil, reg, false)
	if err != nil {
		t.Fatalf("buildZones: %v", err)
	}
	if len(samplers) != 0 {
		t.Errorf("simulated zones need no samplers, got %d", len(samplers))
	}
	if len(zones) != 3 {
		t.Fatalf("expected 3 zones, got %d", len(zones))
	}
	for i, want := range []bool{true, true, false} {
		if zones[i].Heated() != want {
			t.Errorf("zone %s heated: got %v, want %v", zones[i].Name(), zones[i].Heated(), want)
		}
	}
	if s, ok := reg.Get(0); !ok || s.Name != "top" {
		t.Errorf("registry slot 0: got %+v, %v", s, ok)
	}
}

func TestBuildRunLog(t *testing.T) {
	cfg := simulatedConfig(t)
	sink, closeFn, err := buildRunLog(cfg)
	if err != nil {
		t.Fatalf("buildRunLog: %v", err)
	}
	closeFn()
	if _, ok := sink.(runlog.Discard); !ok {
		t.Errorf("expected Discard with no sinks configured, got %T", sink)
	}

	cfg.RunLog.Dir = t.TempDir()
	sink, closeFn, err = buildRunLog(cfg)
	if err != nil {
		t.Fatalf("buildRunLog: %v", err)
	}
	if _, ok := sink.(*runlog.Async); !ok {
		t.Fatalf("expected an async CSV sink, got %T", sink)
	}
	if err := sink.Begin("run1", []string{"top"}); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := sink.End(); err != nil {
		t.Fatalf("End: %v", err)
	}
	closeFn()
	if _, err := os.Stat(filepath.Join(cfg.RunLog.Dir, "run1.csv")); err != nil {
		t.Errorf("expected run log file: %v", err)
	}
}

// TestSimulatedFiringThroughRunLoop fires a short profile on simulated zones
// and checks the run events and state reach the publisher.
func TestSimulatedFiringThroughRunLoop(t *testing.T) {
	cfg := simulatedConfig(t)
	reg := zone.NewRegistry(len(cfg.Zones))
	zones, _, err := buildZones(cfg, nil, reg, false)
	if err != nil {
		t.Fatalf("buildZones: %v", err)
	}

	now := t0
	var fired []oven.Event
	kiln := oven.New(oven.Config{
		TimeStep:             cfg.TimeStep,
		EmergencyShutoffTemp: cfg.EmergencyShutoffTemp,
		ZoneMaxLag:           cfg.ZoneMaxLag,
		FaultThreshold:       cfg.FaultThreshold,
		MaxBadPercent:        cfg.MaxBadPercent,
		PID:                  cfg.PID,
	}, oven.Deps{
		Zones:    zones,
		Registry: reg,
		OnEvent:  func(e oven.Event) { fired = append(fired, e) },
		Now:      func() time.Time { return now },
	})

	p, err := profile.New("test", []profile.Point{{Time: 0, Temperature: 25}, {Time: 20 * time.Second, Temperature: 60}})
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	if err := kiln.RunProfile(p, 0); err != nil {
		t.Fatalf("RunProfile: %v", err)
	}
	for i := 0; i < 12 && kiln.State().State == oven.Running; i++ {
		now = now.Add(cfg.TimeStep)
		kiln.Step(now)
	}
	if kiln.State().State != oven.Idle {
		t.Fatalf("expected IDLE after the schedule, got %s", kiln.State().State)
	}

	pub := mqtt.NewFakePublisher()
	err = drive(t, kiln, pub, newTracker(), 0, fakeClock(t0, time.Second), loopInput{events: fired, ticks: 1, signal: syscall.SIGTERM})
	if err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}
	if len(pub.Events) != 2 {
		t.Fatalf("expected start and end events, got %+v", pub.Events)
	}
	if pub.Events[1].Reason != oven.ReasonScheduleEnded {
		t.Errorf("end reason: got %q", pub.Events[1].Reason)
	}

	var got status.RunJSON
	if err := json.Unmarshal(pub.States[0], &got); err != nil {
		t.Fatalf("state payload: %v", err)
	}
	if got.State != "IDLE" || got.Profile != nil {
		t.Errorf("idle state payload: %+v", got)
	}
	if len(got.Zones) != 3 {
		t.Errorf("expected 3 zones in state, got %d", len(got.Zones))
	}
}
