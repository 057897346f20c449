// Package metrics holds the Prometheus instruments for the control loop.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SensorReads counts device reads by outcome (ok, fault, error).
	SensorReads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kiln_sensor_reads_total",
			Help: "Total number of thermocouple reads",
		},
		[]string{"sensor", "result"},
	)

	// SensorBadPercent is the bad-reading share of the last window.
	SensorBadPercent = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "kiln_sensor_bad_percent",
			Help: "Percentage of bad thermocouple readings over the last window",
		},
		[]string{"sensor"},
	)

	ZoneTemperature = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "kiln_zone_temperature",
			Help: "Published zone temperature",
		},
		[]string{"zone"},
	)

	// ZoneDuty is the heater on-fraction assigned for the current step.
	ZoneDuty = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "kiln_zone_duty_ratio",
			Help: "Heater duty assigned to the zone for the current step",
		},
		[]string{"zone"},
	)

	ZoneFaulted = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "kiln_zone_faulted",
			Help: "1 if the zone's sensor is faulted",
		},
		[]string{"zone"},
	)

	TargetTemperature = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "kiln_target_temperature",
			Help: "Schedule target temperature",
		},
	)

	AverageTemperature = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "kiln_average_temperature",
			Help: "Average temperature across zones",
		},
	)

	PIDOutput = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "kiln_pid_output_ratio",
			Help: "Global PID duty",
		},
	)

	// Running is 1 while a profile runs.
	Running = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "kiln_running",
			Help: "1 while a firing profile is running",
		},
	)

	Cycles = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kiln_control_cycles_total",
			Help: "Total number of control cycles executed while running",
		},
	)

	CatchUpShifts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kiln_catch_up_shifts_total",
			Help: "Number of time steps the schedule was shifted to let the kiln catch up",
		},
	)

	// Resets counts returns to IDLE by reason.
	Resets = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kiln_resets_total",
			Help: "Total number of resets to idle",
		},
		[]string{"reason"},
	)
)
