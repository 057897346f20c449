package runlog

import "sync"

// Memory keeps rows in memory. Used by tests.
type Memory struct {
	mu    sync.Mutex
	runID string
	zones []string
	rows  []Row
	ended int
}

func (m *Memory) Begin(runID string, zones []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runID = runID
	m.zones = append([]string(nil), zones...)
	m.rows = nil
	return nil
}

func (m *Memory) Append(row Row) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.runID == "" {
		return nil
	}
	m.rows = append(m.rows, row)
	return nil
}

func (m *Memory) End() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.runID != "" {
		m.ended++
	}
	m.runID = ""
	return nil
}

// RunID is the open run, or "".
func (m *Memory) RunID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.runID
}

// Zones are the zone names given to the last Begin.
func (m *Memory) Zones() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.zones...)
}

// Rows returns a copy of the rows of the last run.
func (m *Memory) Rows() []Row {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Row(nil), m.rows...)
}

// Ended counts runs closed by End.
func (m *Memory) Ended() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ended
}
