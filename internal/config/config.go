// Package config loads the kiln controller's YAML configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sweeney/kiln-controller/internal/pid"
	"github.com/sweeney/kiln-controller/internal/thermocouple"
	"github.com/sweeney/kiln-controller/internal/zone"
)

type Config struct {
	TimeStep             time.Duration      `yaml:"time_step"`
	TempScale            string             `yaml:"temp_scale"`
	EmergencyShutoffTemp float64            `yaml:"emergency_shutoff_temp"`
	ZoneMaxLag           float64            `yaml:"zone_max_lag"`
	FaultThreshold       int                `yaml:"fault_threshold"`
	MaxBadPercent        float64            `yaml:"max_bad_percent"`
	KWhRate              float64            `yaml:"kwh_rate"`
	CurrencyType         string             `yaml:"currency_type"`
	CatchUp              CatchUpConfig      `yaml:"catch_up"`
	PID                  pid.Config         `yaml:"pid"`
	GPIO                 GPIOConfig         `yaml:"gpio"`
	SafetySwitch         SafetySwitchConfig `yaml:"safety_switch"`
	Thermocouple         ThermocoupleConfig `yaml:"thermocouple"`
	Sensors              []SensorConfig     `yaml:"sensors"`
	Zones                []ZoneConfig       `yaml:"zones"`
	Simulate             SimulateConfig     `yaml:"simulate"`
	ProfilesDir          string             `yaml:"profiles_dir"`
	RunLog               RunLogConfig       `yaml:"runlog"`
	MQTT                 MQTTConfig         `yaml:"mqtt"`
	Metrics              MetricsConfig      `yaml:"metrics"`
}

type CatchUpConfig struct {
	Enable   bool    `yaml:"enable"`
	MaxError float64 `yaml:"max_error"`
}

type GPIOConfig struct {
	Chip string `yaml:"chip"`
}

// SafetySwitchConfig is the contactor output. A nil Pin means none.
type SafetySwitchConfig struct {
	Pin        *int  `yaml:"pin"`
	ActiveHigh *bool `yaml:"active_high"`
}

// IsActiveHigh defaults to true.
func (s SafetySwitchConfig) IsActiveHigh() bool {
	return s.ActiveHigh == nil || *s.ActiveHigh
}

type ThermocoupleConfig struct {
	Continuous  bool          `yaml:"continuous"`
	AC50Hz      bool          `yaml:"ac_freq_50hz"`
	Averaging   int           `yaml:"averaging"`
	Type        string        `yaml:"type"`
	ReadTimeout time.Duration `yaml:"read_timeout"`
	// Fault thresholds; nil leaves the chip default.
	TCLow  *float64 `yaml:"tc_low"`
	TCHigh *float64 `yaml:"tc_high"`
	CJLow  *float64 `yaml:"cj_low"`
	CJHigh *float64 `yaml:"cj_high"`
}

// SensorConfig is one MAX31856 on a spidev bus.
type SensorConfig struct {
	Bus string `yaml:"bus"`
	// CSPin is a GPIO line used as chip select; nil uses the bus's
	// hardware chip select.
	CSPin  *int    `yaml:"cs_pin"`
	Offset float64 `yaml:"offset"`
	// Type overrides thermocouple.type for this sensor.
	Type string `yaml:"type"`
}

type ZoneConfig struct {
	Name string `yaml:"name"`
	// HeatPin is nil for sensor-only zones.
	HeatPin        *int    `yaml:"heat_pin"`
	ActiveHigh     *bool   `yaml:"active_high"`
	Sensor         int     `yaml:"sensor"`
	PowerAdjust    float64 `yaml:"power_adjust"`
	AverageSamples int     `yaml:"average_samples"`
}

// IsActiveHigh defaults to true.
func (z ZoneConfig) IsActiveHigh() bool {
	return z.ActiveHigh == nil || *z.ActiveHigh
}

type SimulateConfig struct {
	Enable            bool `yaml:"enable"`
	zone.ThermalModel `yaml:",inline"`
}

type RunLogConfig struct {
	Dir   string      `yaml:"dir"`
	Redis RedisConfig `yaml:"redis"`
}

type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

type MQTTConfig struct {
	Broker      string        `yaml:"broker"`
	ClientID    string        `yaml:"client_id"`
	TopicPrefix string        `yaml:"topic_prefix"`
	Heartbeat   time.Duration `yaml:"heartbeat"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// DefaultPID is the tuning of a four-zone kiln.
var DefaultPID = pid.Config{
	Kp:                 9.570142772019617,
	Ki:                 19.217244222600907,
	Kd:                 440.01547623017103,
	StopIntegralWindup: true,
}

// Load reads path, applies defaults and validates the result.
func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	return Parse(b)
}

// Parse is Load without the file.
func Parse(b []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.TimeStep <= 0 {
		c.TimeStep = 2 * time.Second
	}
	if c.TempScale == "" {
		c.TempScale = "c"
	}
	if c.EmergencyShutoffTemp == 0 {
		c.EmergencyShutoffTemp = 1300
		if c.TempScale == "f" {
			c.EmergencyShutoffTemp = 2372
		}
	}
	if c.ZoneMaxLag <= 0 {
		c.ZoneMaxLag = 5
	}
	if c.FaultThreshold <= 0 {
		c.FaultThreshold = 10
	}
	if c.MaxBadPercent <= 0 {
		c.MaxBadPercent = 30
	}
	if c.KWhRate == 0 {
		c.KWhRate = 0.112085
	}
	if c.CurrencyType == "" {
		c.CurrencyType = "$"
	}
	if c.CatchUp.MaxError <= 0 {
		c.CatchUp.MaxError = 10
	}
	if c.PID == (pid.Config{}) {
		c.PID = DefaultPID
	}
	if c.GPIO.Chip == "" {
		c.GPIO.Chip = "gpiochip0"
	}
	if c.Thermocouple.Type == "" {
		c.Thermocouple.Type = "K"
	}
	if c.Thermocouple.ReadTimeout <= 0 {
		c.Thermocouple.ReadTimeout = time.Second
	}
	for i := range c.Zones {
		z := &c.Zones[i]
		if z.PowerAdjust == 0 {
			z.PowerAdjust = 1
		}
		if z.AverageSamples <= 0 {
			z.AverageSamples = 10
		}
	}

	d := zone.DefaultThermalModel
	m := &c.Simulate.ThermalModel
	if m.TEnv == 0 {
		m.TEnv = d.TEnv
	}
	if m.CHeat <= 0 {
		m.CHeat = d.CHeat
	}
	if m.COven <= 0 {
		m.COven = d.COven
	}
	if m.PHeat <= 0 {
		m.PHeat = d.PHeat
	}
	if m.RONoCool <= 0 {
		m.RONoCool = d.RONoCool
	}
	if m.RHONoAir <= 0 {
		m.RHONoAir = d.RHONoAir
	}

	if c.ProfilesDir == "" {
		c.ProfilesDir = "profiles"
	}
	if c.RunLog.Redis.TTL <= 0 {
		c.RunLog.Redis.TTL = 7 * 24 * time.Hour
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "kiln-controller"
	}
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = "kiln"
	}
	if c.MQTT.Heartbeat <= 0 {
		c.MQTT.Heartbeat = 15 * time.Minute
	}
}

func (c *Config) validate() error {
	if c.TempScale != "c" && c.TempScale != "f" {
		return fmt.Errorf("temp_scale must be c or f, got %q", c.TempScale)
	}
	if c.KWhRate < 0 {
		return fmt.Errorf("kwh_rate must be >= 0")
	}
	if len(c.Zones) == 0 {
		return fmt.Errorf("zones is required")
	}
	if _, ok := thermocouple.ParseType(c.Thermocouple.Type); !ok {
		return fmt.Errorf("thermocouple.type %q is not a known thermocouple type", c.Thermocouple.Type)
	}
	switch c.Thermocouple.Averaging {
	case 0, 1, 2, 4, 8, 16:
	default:
		return fmt.Errorf("thermocouple.averaging must be one of 1, 2, 4, 8, 16")
	}

	names := map[string]bool{}
	used := map[int]int{}
	for i, z := range c.Zones {
		if z.Name == "" {
			return fmt.Errorf("zones[%d].name is required", i)
		}
		if names[z.Name] {
			return fmt.Errorf("zones[%d].name %q is used twice", i, z.Name)
		}
		names[z.Name] = true
		if z.PowerAdjust < 0 {
			return fmt.Errorf("zones[%d].power_adjust must be >= 0", i)
		}
		if c.Simulate.Enable {
			continue
		}
		if z.Sensor < 0 || z.Sensor >= len(c.Sensors) {
			return fmt.Errorf("zones[%d].sensor %d does not name an entry of sensors", i, z.Sensor)
		}
		if j, ok := used[z.Sensor]; ok {
			return fmt.Errorf("zones[%d].sensor %d is already used by zones[%d]", i, z.Sensor, j)
		}
		used[z.Sensor] = i
	}

	if !c.Simulate.Enable {
		for i, s := range c.Sensors {
			if s.Bus == "" {
				return fmt.Errorf("sensors[%d].bus is required", i)
			}
			if s.Type != "" {
				if _, ok := thermocouple.ParseType(s.Type); !ok {
					return fmt.Errorf("sensors[%d].type %q is not a known thermocouple type", i, s.Type)
				}
			}
		}
	}

	if c.RunLog.Redis.Addr == "" && c.RunLog.Redis.DB != 0 {
		return fmt.Errorf("runlog.redis.addr is required when runlog.redis.db is set")
	}

	return c.checkPins()
}

// checkPins returns a *PinConflictError if any GPIO line is claimed
// twice.
func (c *Config) checkPins() error {
	owners := map[int]string{}
	var conflicts []PinConflict
	claim := func(pin int, owner string) {
		if prev, ok := owners[pin]; ok {
			conflicts = append(conflicts, PinConflict{Pin: pin, First: prev, Second: owner})
			return
		}
		owners[pin] = owner
	}

	if c.SafetySwitch.Pin != nil {
		claim(*c.SafetySwitch.Pin, "safety_switch.pin")
	}
	for i, z := range c.Zones {
		if z.HeatPin != nil {
			claim(*z.HeatPin, fmt.Sprintf("zones[%d].heat_pin", i))
		}
	}
	if !c.Simulate.Enable {
		for i, s := range c.Sensors {
			if s.CSPin != nil {
				claim(*s.CSPin, fmt.Sprintf("sensors[%d].cs_pin", i))
			}
		}
	}
	if len(conflicts) > 0 {
		return &PinConflictError{Conflicts: conflicts}
	}
	return nil
}
