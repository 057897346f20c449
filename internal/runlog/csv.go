package runlog

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
)

// CSVFile writes each run to <Dir>/<runID>.csv.
type CSVFile struct {
	Dir string

	mu sync.Mutex
	f  *os.File
	w  *csv.Writer
}

// NewCSVFile creates dir if needed.
func NewCSVFile(dir string) (*CSVFile, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("runlog: create %s: %w", dir, err)
	}
	return &CSVFile{Dir: dir}, nil
}

// Header is the first CSV line for the given zones.
func Header(zones []string) []string {
	h := []string{"Time", "Target", "Average", "PID"}
	for _, z := range zones {
		h = append(h, z+" Temp", z+" Delta", z+" Heat%")
	}
	return h
}

// Record formats row as CSV fields.
func Record(row Row) []string {
	rec := []string{
		row.Time.Local().Format(TimeFormat),
		ftoa(row.Target),
		ftoa(row.Average),
		ftoa(row.PID),
	}
	for _, z := range row.Zones {
		rec = append(rec, ftoa(z.Temperature), ftoa(z.Delta), ftoa(z.HeatPct))
	}
	return rec
}

func ftoa(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// Path is where runID is written.
func (c *CSVFile) Path(runID string) string {
	return filepath.Join(c.Dir, runID+".csv")
}

func (c *CSVFile) Begin(runID string, zones []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.f != nil {
		c.closeLocked()
	}
	f, err := os.Create(c.Path(runID))
	if err != nil {
		return fmt.Errorf("runlog: %w", err)
	}
	c.f = f
	c.w = csv.NewWriter(f)
	if err := c.w.Write(Header(zones)); err != nil {
		return fmt.Errorf("runlog: write header: %w", err)
	}
	c.w.Flush()
	return c.w.Error()
}

func (c *CSVFile) Append(row Row) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.w == nil {
		return nil
	}
	if err := c.w.Write(Record(row)); err != nil {
		return fmt.Errorf("runlog: write row: %w", err)
	}
	c.w.Flush()
	return c.w.Error()
}

func (c *CSVFile) End() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeLocked()
}

func (c *CSVFile) closeLocked() error {
	if c.f == nil {
		return nil
	}
	c.w.Flush()
	err := c.f.Close()
	c.f = nil
	c.w = nil
	if err != nil {
		return fmt.Errorf("runlog: close: %w", err)
	}
	return nil
}
