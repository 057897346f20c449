// Command kiln-controller fires a multi-zone electric kiln along a profile
// and publishes its state to MQTT.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sweeney/kiln-controller/internal/config"
	"github.com/sweeney/kiln-controller/internal/gpio"
	"github.com/sweeney/kiln-controller/internal/mqtt"
	"github.com/sweeney/kiln-controller/internal/oven"
	"github.com/sweeney/kiln-controller/internal/profile"
	"github.com/sweeney/kiln-controller/internal/runlog"
	"github.com/sweeney/kiln-controller/internal/sampler"
	"github.com/sweeney/kiln-controller/internal/status"
	"github.com/sweeney/kiln-controller/internal/zone"
)

type options struct {
	configPath string
	profile    string
	startAt    float64
	printTemps bool
	simulate   bool
	verbose    bool
}

func main() {
	var o options
	flag.StringVar(&o.configPath, "config", "kiln.yaml", "Path to the YAML configuration")
	flag.StringVar(&o.profile, "profile", "", "Profile to start immediately (name under profiles_dir)")
	flag.Float64Var(&o.startAt, "start-at", 0, "Minutes into the profile to start at")
	flag.BoolVar(&o.printTemps, "print-temps", false, "Read every sensor once, print it and exit")
	flag.BoolVar(&o.simulate, "simulate", false, "Use the simulated thermal model instead of hardware")
	flag.BoolVar(&o.verbose, "verbose", false, "Log every sensor read and every zone each cycle")

	flag.Parse()

	if err := run(o); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

func run(o options) error {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if o.simulate {
		cfg.Simulate.Enable = true
	}

	if o.printTemps {
		return printTemps(cfg)
	}

	var hw *hardware
	if !cfg.Simulate.Enable {
		hw, err = openHardware(cfg)
		if err != nil {
			return err
		}
		defer hw.Close()
	}

	registry := zone.NewRegistry(len(cfg.Zones))
	zones, samplers, err := buildZones(cfg, hw, registry, o.verbose)
	if err != nil {
		return err
	}

	var safety gpio.Output
	switch {
	case cfg.Simulate.Enable:
		safety = gpio.NullOutput{}
	case cfg.SafetySwitch.Pin != nil:
		safety, err = hw.output(*cfg.SafetySwitch.Pin, cfg.SafetySwitch.IsActiveHigh())
		if err != nil {
			return fmt.Errorf("safety switch: %w", err)
		}
	}

	sink, closeSink, err := buildRunLog(cfg)
	if err != nil {
		return err
	}
	defer closeSink()

	var publisher interface {
		mqtt.Publisher
		mqtt.ConnectionStatus
	} = mqtt.NopPublisher{}
	if cfg.MQTT.Broker != "" {
		publisher = mqtt.NewRealPublisher(mqtt.Options{
			Broker:      cfg.MQTT.Broker,
			ClientID:    cfg.MQTT.ClientID,
			TopicPrefix: cfg.MQTT.TopicPrefix,
		})
	}
	defer publisher.Close()

	names := make([]string, len(cfg.Zones))
	for i, z := range cfg.Zones {
		names[i] = z.Name
	}
	tracker := status.NewTracker(time.Now(), status.Config{
		TimeStepMs:  cfg.TimeStep.Milliseconds(),
		HeartbeatMs: cfg.MQTT.Heartbeat.Milliseconds(),
		Broker:      cfg.MQTT.Broker,
		MetricsAddr: cfg.Metrics.Addr,
		TempScale:   cfg.TempScale,
		Simulate:    cfg.Simulate.Enable,
		Zones:       names,
	})
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}

	events := make(chan oven.Event, 16)
	kiln := oven.New(oven.Config{
		TimeStep:             cfg.TimeStep,
		EmergencyShutoffTemp: cfg.EmergencyShutoffTemp,
		ZoneMaxLag:           cfg.ZoneMaxLag,
		FaultThreshold:       cfg.FaultThreshold,
		MaxBadPercent:        cfg.MaxBadPercent,
		CatchUp:              cfg.CatchUp.Enable,
		CatchUpMaxError:      cfg.CatchUp.MaxError,
		PID:                  cfg.PID,
		Verbose:              o.verbose,
		KWhRate:              cfg.KWhRate,
		CurrencyType:         cfg.CurrencyType,
	}, oven.Deps{
		Zones:        zones,
		Registry:     registry,
		SafetySwitch: safety,
		RunLog:       sink,
		OnEvent: func(e oven.Event) {
			select {
			case events <- e:
			default:
				log.Printf("event queue full, dropping %s", e.Type)
			}
		},
	})

	// Publish startup event with full status snapshot
	snap := tracker.Snapshot()
	startupEvent := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}
	if err := publisher.PublishSystem(startupEvent); err != nil {
		log.Printf("failed to publish startup event: %v", err)
	}

	if cfg.Metrics.Addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		srv := &http.Server{Addr: cfg.Metrics.Addr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("metrics server error: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Printf("metrics listening on %s", cfg.Metrics.Addr)
	}

	// Prime every sampler so the first run check sees real readings.
	for _, s := range samplers {
		s.Poll(time.Now())
	}

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	spawn := func(f func(context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f(ctx)
		}()
	}
	for _, s := range samplers {
		spawn(s.Run)
	}
	for _, z := range zones {
		if rz, ok := z.(*zone.RealZone); ok {
			spawn(rz.Run)
		}
	}
	spawn(kiln.Run)
	defer func() {
		cancel()
		wg.Wait()
	}()

	if o.profile != "" {
		p, err := profile.Store{Dir: cfg.ProfilesDir}.Load(o.profile)
		if err != nil {
			return fmt.Errorf("load profile: %w", err)
		}
		if err := kiln.RunProfile(p, o.startAt); err != nil {
			log.Printf("%v", err)
		}
	}

	log.Printf("started: zones=%d time_step=%v simulate=%v broker=%q", len(zones), cfg.TimeStep, cfg.Simulate.Enable, cfg.MQTT.Broker)

	ticker := time.NewTicker(cfg.TimeStep)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return runLoop(kiln, publisher, publisher, tracker, cfg.MQTT.Heartbeat, time.Now, ticker.C, events, sigCh)
}

// stateSource is the part of the oven the run loop reads.
type stateSource interface {
	State() oven.RunState
}

func runLoop(kiln stateSource, publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus, tracker *status.Tracker, heartbeat time.Duration, now func() time.Time, tick <-chan time.Time, events <-chan oven.Event, sig <-chan os.Signal) error {
	lastHeartbeat := now()

	for {
		select {
		case s := <-sig:
			log.Printf("received %v, shutting down", s)
			signalName := "UNKNOWN"
			if s == syscall.SIGINT {
				signalName = "SIGINT"
			} else if s == syscall.SIGTERM {
				signalName = "SIGTERM"
			}
			event := mqtt.SystemEvent{
				Timestamp: now(),
				Event:     "SHUTDOWN",
				Reason:    signalName,
				Retained:  true,
			}
			if tracker != nil {
				if mqttStatus != nil {
					tracker.SetMQTTConnected(mqttStatus.IsConnected())
				}
				tracker.Update(kiln.State())
				event.RawPayload = status.FormatStatusEvent(tracker.Snapshot(), "SHUTDOWN", signalName)
			}
			if err := publisher.PublishSystem(event); err != nil {
				log.Printf("failed to publish shutdown event: %v", err)
			} else {
				log.Printf("published shutdown event")
			}
			return nil

		case e := <-events:
			if e.Reason != "" {
				log.Printf("event: %s %s (%s)", e.Type, e.RunID, e.Reason)
			} else {
				log.Printf("event: %s %s", e.Type, e.RunID)
			}
			if err := publisher.PublishEvent(e); err != nil {
				log.Printf("publish error: %v", err)
			}

		case <-tick:
			t := now()
			rs := kiln.State()
			if err := publisher.PublishState(status.FormatRunState(rs)); err != nil {
				log.Printf("publish state error: %v", err)
			}

			if tracker == nil {
				continue
			}
			tracker.Update(rs)
			if mqttStatus != nil {
				tracker.SetMQTTConnected(mqttStatus.IsConnected())
			}

			if heartbeat > 0 && t.Sub(lastHeartbeat) >= heartbeat {
				lastHeartbeat = t
				if net := readNetworkInfo(); net != nil {
					tracker.SetNetwork(net)
				}
				hbEvent := mqtt.SystemEvent{
					Timestamp:  t,
					Event:      "HEARTBEAT",
					RawPayload: status.FormatStatusEvent(tracker.Snapshot(), "HEARTBEAT", ""),
				}
				log.Printf("heartbeat: state=%s temp=%.1f target=%.1f", rs.State, rs.Temperature, rs.Target)
				if err := publisher.PublishSystem(hbEvent); err != nil {
					log.Printf("heartbeat publish error: %v", err)
				}
			}
		}
	}
}

// buildZones creates one zone per configured entry: simulated, or real
// with a sampler over its sensor.
func buildZones(cfg config.Config, hw *hardware, reg *zone.Registry, verbose bool) ([]zone.Zone, []*sampler.Sampler, error) {
	zones := make([]zone.Zone, 0, len(cfg.Zones))

	if cfg.Simulate.Enable {
		for i, zc := range cfg.Zones {
			zones = append(zones, zone.NewSimulated(zone.SimConfig{
				Name:        zc.Name,
				Index:       i,
				TimeStep:    cfg.TimeStep,
				PowerAdjust: zc.PowerAdjust,
				Model:       cfg.Simulate.ThermalModel,
				Heated:      zc.HeatPin != nil,
				Registry:    reg,
			}))
		}
		return zones, nil, nil
	}

	drivers, err := hw.sensors(cfg)
	if err != nil {
		return nil, nil, err
	}
	samplers := make([]*sampler.Sampler, 0, len(cfg.Zones))
	for i, zc := range cfg.Zones {
		s := sampler.New(drivers[zc.Sensor], sampler.Config{
			Name:        zc.Name,
			TimeStep:    cfg.TimeStep,
			Samples:     zc.AverageSamples,
			Offset:      cfg.Sensors[zc.Sensor].Offset,
			Scale:       sampler.Scale(cfg.TempScale),
			ReadTimeout: cfg.Thermocouple.ReadTimeout,
			Verbose:     verbose,
		})
		samplers = append(samplers, s)

		var heater gpio.Output
		if zc.HeatPin != nil {
			out, err := hw.output(*zc.HeatPin, zc.IsActiveHigh())
			if err != nil {
				return nil, nil, fmt.Errorf("zones[%d] heater: %w", i, err)
			}
			heater = out
		}
		zones = append(zones, zone.NewReal(zone.RealConfig{
			Name:        zc.Name,
			Index:       i,
			TimeStep:    cfg.TimeStep,
			PowerAdjust: zc.PowerAdjust,
			Sensor:      s,
			Heater:      heater,
			Registry:    reg,
		}))
	}
	return zones, samplers, nil
}

// buildRunLog fans out to the CSV directory and Redis when configured.
// Writes go through an Async queue so a slow sink never holds up the
// control cycle; the returned func drains it and closes Redis.
func buildRunLog(cfg config.Config) (runlog.Sink, func(), error) {
	var sinks runlog.Multi
	var rs *runlog.RedisSink
	if cfg.RunLog.Dir != "" {
		c, err := runlog.NewCSVFile(cfg.RunLog.Dir)
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, c)
	}
	if r := cfg.RunLog.Redis; r.Addr != "" {
		var err error
		rs, err = runlog.NewRedisSink(r.Addr, r.Password, r.DB, r.TTL)
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, rs)
	}
	if len(sinks) == 0 {
		return runlog.Discard{}, func() {}, nil
	}
	async := runlog.NewAsync(sinks, runlog.DefaultQueue)
	return async, func() {
		async.Close()
		if rs != nil {
			rs.Close()
		}
	}, nil
}

// printTemps reads every sensor once and prints the result.
func printTemps(cfg config.Config) error {
	if cfg.Simulate.Enable {
		return fmt.Errorf("print-temps needs hardware; simulate is enabled")
	}
	hw, err := openHardware(cfg)
	if err != nil {
		return err
	}
	defer hw.Close()

	drivers, err := hw.sensors(cfg)
	if err != nil {
		return err
	}
	for i, d := range drivers {
		r, err := d.Read()
		if err != nil {
			fmt.Printf("sensor %d (%s): error: %v\n", i, cfg.Sensors[i].Bus, err)
			continue
		}
		fmt.Printf("sensor %d (%s): temp=%.2fC cold_junction=%.2fC faults=%s\n",
			i, cfg.Sensors[i].Bus, r.Temperature+cfg.Sensors[i].Offset, r.ColdJunction, r.Faults)
	}
	return nil
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}
