package gpio

import "sync"

// FakeOutput is a test double that records every Set call.
// It is safe for concurrent use; zone workers drive it from their own
// goroutine while tests inspect it.
type FakeOutput struct {
	mu sync.Mutex

	on      bool
	history []bool
	closed  bool

	// SetError, if set, will be returned by Set().
	SetError error
}

// NewFakeOutput creates a FakeOutput in the off state.
func NewFakeOutput() *FakeOutput {
	return &FakeOutput{}
}

// Set records the requested state.
func (f *FakeOutput) Set(on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SetError != nil {
		return f.SetError
	}
	f.on = on
	f.history = append(f.history, on)
	return nil
}

// Close marks the output closed and off.
func (f *FakeOutput) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.on = false
	f.closed = true
	return nil
}

// On reports the last state set.
func (f *FakeOutput) On() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.on
}

// Closed reports whether Close was called.
func (f *FakeOutput) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// History returns a copy of every state set, oldest first.
func (f *FakeOutput) History() []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]bool(nil), f.history...)
}

// Reset clears recorded history and state.
func (f *FakeOutput) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.on = false
	f.history = nil
	f.closed = false
}
