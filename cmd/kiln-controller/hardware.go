package main

import (
	"fmt"
	"io"
	"log"

	"github.com/sweeney/kiln-controller/internal/config"
	"github.com/sweeney/kiln-controller/internal/gpio"
	"github.com/sweeney/kiln-controller/internal/spi"
	"github.com/sweeney/kiln-controller/internal/thermocouple"
)

// hardware owns every opened device so teardown can release them in
// reverse order.
type hardware struct {
	chip    *gpio.Chip
	buses   map[string]*spi.Bus
	closers []io.Closer
}

func openHardware(cfg config.Config) (*hardware, error) {
	chip, err := gpio.OpenChip(cfg.GPIO.Chip, "kiln-controller")
	if err != nil {
		return nil, fmt.Errorf("init gpio: %w", err)
	}
	return &hardware{chip: chip, buses: map[string]*spi.Bus{}}, nil
}

// output requests pin and registers it for Close.
func (h *hardware) output(pin int, activeHigh bool) (gpio.Output, error) {
	out, err := h.chip.Output(pin, activeHigh)
	if err != nil {
		return nil, err
	}
	h.closers = append(h.closers, out)
	return out, nil
}

// sensors opens one driver per configured sensor, in order.
func (h *hardware) sensors(cfg config.Config) ([]*thermocouple.Driver, error) {
	tc := cfg.Thermocouple
	drivers := make([]*thermocouple.Driver, 0, len(cfg.Sensors))
	for i, sc := range cfg.Sensors {
		bus, ok := h.buses[sc.Bus]
		if !ok {
			b, err := spi.Open(sc.Bus, spi.Mode1, spi.DefaultSpeedHz, sc.CSPin != nil)
			if err != nil {
				return nil, fmt.Errorf("sensors[%d]: %w", i, err)
			}
			h.buses[sc.Bus] = b
			h.closers = append(h.closers, b)
			bus = b
		}

		var cs gpio.Output
		if sc.CSPin != nil {
			out, err := h.output(*sc.CSPin, false)
			if err != nil {
				return nil, fmt.Errorf("sensors[%d] chip select: %w", i, err)
			}
			cs = out
		}

		typeName := tc.Type
		if sc.Type != "" {
			typeName = sc.Type
		}
		typ, _ := thermocouple.ParseType(typeName)
		drv, err := thermocouple.New(bus.Device(cs), thermocouple.Options{
			Type:       typ,
			Averaging:  thermocouple.AveragingFor(tc.Averaging),
			Continuous: tc.Continuous,
			AC50Hz:     tc.AC50Hz,
		})
		if err != nil {
			return nil, fmt.Errorf("sensors[%d]: %w", i, err)
		}
		if err := programThresholds(drv, tc); err != nil {
			return nil, fmt.Errorf("sensors[%d]: %w", i, err)
		}
		drivers = append(drivers, drv)
	}
	return drivers, nil
}

// programThresholds writes the configured fault thresholds, keeping the
// chip's value for any side left unset.
func programThresholds(drv *thermocouple.Driver, tc config.ThermocoupleConfig) error {
	if tc.TCLow != nil || tc.TCHigh != nil {
		low, high, err := drv.TemperatureThresholds()
		if err != nil {
			return err
		}
		if tc.TCLow != nil {
			low = *tc.TCLow
		}
		if tc.TCHigh != nil {
			high = *tc.TCHigh
		}
		if err := drv.SetTemperatureThresholds(low, high); err != nil {
			return err
		}
	}
	if tc.CJLow != nil || tc.CJHigh != nil {
		low, high, err := drv.ColdJunctionThresholds()
		if err != nil {
			return err
		}
		if tc.CJLow != nil {
			low = *tc.CJLow
		}
		if tc.CJHigh != nil {
			high = *tc.CJHigh
		}
		if err := drv.SetColdJunctionThresholds(low, high); err != nil {
			return err
		}
	}
	return nil
}

// Close releases outputs (de-energizing them), buses, then the chip.
func (h *hardware) Close() error {
	for i := len(h.closers) - 1; i >= 0; i-- {
		if err := h.closers[i].Close(); err != nil {
			log.Printf("close: %v", err)
		}
	}
	return h.chip.Close()
}
