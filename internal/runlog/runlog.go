// Package runlog records one row per control cycle while a firing runs.
package runlog

import (
	"errors"
	"time"
)

// TimeFormat is the row timestamp layout, in local time.
const TimeFormat = "2006-01-02 15:04:05"

// ZoneRow is one zone's share of a row.
type ZoneRow struct {
	Name        string  `json:"name"`
	Temperature float64 `json:"temperature"`
	Delta       float64 `json:"delta"`
	HeatPct     float64 `json:"heat_pct"`
}

// Row is one control cycle.
type Row struct {
	Time    time.Time `json:"time"`
	Target  float64   `json:"target"`
	Average float64   `json:"average"`
	PID     float64   `json:"pid"`
	Zones   []ZoneRow `json:"zones"`
}

// Sink stores the rows of one run at a time. Begin opens a run, Append
// adds to it, End closes it. Append and End without an open run are
// no-ops.
type Sink interface {
	Begin(runID string, zones []string) error
	Append(row Row) error
	End() error
}

// Discard drops everything.
type Discard struct{}

func (Discard) Begin(string, []string) error { return nil }
func (Discard) Append(Row) error             { return nil }
func (Discard) End() error                   { return nil }

// Multi fans out to every sink and joins their errors.
type Multi []Sink

func (m Multi) Begin(runID string, zones []string) error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.Begin(runID, zones))
	}
	return errors.Join(errs...)
}

func (m Multi) Append(row Row) error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.Append(row))
	}
	return errors.Join(errs...)
}

func (m Multi) End() error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.End())
	}
	return errors.Join(errs...)
}
