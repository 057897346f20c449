package status

import (
	"encoding/json"
	"math"
	"time"

	"github.com/sweeney/kiln-controller/internal/oven"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Oven          RunJSON      `json:"oven"`
	Network       *NetworkJSON `json:"network,omitempty"`
	Config        ConfigJSON   `json:"config"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// RunJSON is the published run state. Times are in seconds.
type RunJSON struct {
	State       string     `json:"state"`
	Runtime     float64    `json:"runtime"`
	TotalTime   float64    `json:"totaltime"`
	Temperature float64    `json:"temperature"`
	Target      float64    `json:"target"`
	Heat        float64    `json:"heat"`
	Profile     *string    `json:"profile"`
	RunID       string     `json:"run_id,omitempty"`
	Faults      int        `json:"faults"`
	Tuning      bool       `json:"tuning"`
	Zones       []ZoneJSON `json:"zones"`

	KWhRate      float64 `json:"kwh_rate"`
	CurrencyType string  `json:"currency_type"`
}

// ZoneJSON is one zone's snapshot.
type ZoneJSON struct {
	Name        string  `json:"name"`
	Heated      bool    `json:"heated"`
	Temperature float64 `json:"temperature"`
	Delta       float64 `json:"delta"`
	HeatPct     float64 `json:"heat_pct"`
	Faulted     bool    `json:"faulted"`
	BadPercent  float64 `json:"bad_percent"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	TimeStepMs  int64    `json:"time_step_ms"`
	HeartbeatMs int64    `json:"heartbeat_ms"`
	Broker      string   `json:"broker"`
	MetricsAddr string   `json:"metrics_addr,omitempty"`
	TempScale   string   `json:"temp_scale"`
	Simulate    bool     `json:"simulate"`
	Zones       []string `json:"zones"`
}

func round(v float64) float64 {
	return math.Round(v*100) / 100
}

// BuildRun converts a run state to its JSON form.
func BuildRun(rs oven.RunState) RunJSON {
	r := RunJSON{
		State:       string(rs.State),
		Runtime:     round(rs.Runtime.Seconds()),
		TotalTime:   round(rs.TotalTime.Seconds()),
		Temperature: round(rs.Temperature),
		Target:      round(rs.Target),
		Heat:        round(rs.Heat.Seconds()),
		RunID:       rs.RunID,
		Faults:      rs.Faults,
		Tuning:      rs.Tuning,
		Zones:       make([]ZoneJSON, 0, len(rs.Zones)),

		KWhRate:      rs.KWhRate,
		CurrencyType: rs.CurrencyType,
	}
	if r.State == "" {
		r.State = string(oven.Idle)
	}
	if rs.Profile != "" {
		name := rs.Profile
		r.Profile = &name
	}
	for _, z := range rs.Zones {
		r.Zones = append(r.Zones, ZoneJSON{
			Name:        z.Name,
			Heated:      z.Heated,
			Temperature: round(z.Temperature),
			Delta:       round(z.Delta),
			HeatPct:     round(z.HeatPct),
			Faulted:     z.Faulted,
			BadPercent:  round(z.BadPercent),
		})
	}
	return r
}

// FormatRunState returns the JSON run state published on every cycle.
func FormatRunState(rs oven.RunState) []byte {
	data, _ := json.Marshal(BuildRun(rs))
	return data
}

func buildInner(snap Snapshot) StatusInner {
	zones := snap.Config.Zones
	if zones == nil {
		zones = []string{}
	}
	return StatusInner{
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Oven:          BuildRun(snap.Oven),
		Config: ConfigJSON{
			TimeStepMs:  snap.Config.TimeStepMs,
			HeartbeatMs: snap.Config.HeartbeatMs,
			Broker:      snap.Config.Broker,
			MetricsAddr: snap.Config.MetricsAddr,
			TempScale:   snap.Config.TempScale,
			Simulate:    snap.Config.Simulate,
			Zones:       zones,
		},
	}
}

func buildNetwork(snap Snapshot, inner *StatusInner) {
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
}

// FormatJSON returns the indented JSON status (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)
	buildNetwork(snap, &inner)

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	buildNetwork(snap, &inner)

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
