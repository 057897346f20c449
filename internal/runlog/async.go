package runlog

import (
	"log"
	"sync"
)

// DefaultQueue is the number of rows Async holds before dropping.
const DefaultQueue = 1024

type opKind int

const (
	opBegin opKind = iota
	opAppend
	opEnd
)

type op struct {
	kind  opKind
	runID string
	zones []string
	row   Row
}

// Async hands writes to a goroutine that performs them on the wrapped
// sink in order. Begin, Append and End never block; Append drops the row
// when more than maxRows writes are waiting. Begin and End are never
// dropped.
type Async struct {
	sink    Sink
	maxRows int

	mu      sync.Mutex
	cond    *sync.Cond
	queue   []op
	busy    bool
	closed  bool
	dropped int
	done    chan struct{}
}

// NewAsync starts the writer goroutine. maxRows <= 0 uses DefaultQueue.
func NewAsync(sink Sink, maxRows int) *Async {
	if maxRows <= 0 {
		maxRows = DefaultQueue
	}
	a := &Async{sink: sink, maxRows: maxRows, done: make(chan struct{})}
	a.cond = sync.NewCond(&a.mu)
	go a.loop()
	return a
}

func (a *Async) Begin(runID string, zones []string) error {
	a.push(op{kind: opBegin, runID: runID, zones: append([]string(nil), zones...)})
	return nil
}

func (a *Async) Append(row Row) error {
	a.mu.Lock()
	if len(a.queue) >= a.maxRows {
		a.dropped++
		n := a.dropped
		a.mu.Unlock()
		log.Printf("runlog: writer behind, dropped row (%d so far)", n)
		return nil
	}
	a.mu.Unlock()
	a.push(op{kind: opAppend, row: row})
	return nil
}

func (a *Async) End() error {
	a.push(op{kind: opEnd})
	return nil
}

// Dropped is the number of rows discarded because the queue was full.
func (a *Async) Dropped() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.dropped
}

// Flush waits until every write queued so far has been performed.
func (a *Async) Flush() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for len(a.queue) > 0 || a.busy {
		a.cond.Wait()
	}
}

// Close performs the remaining writes and stops the goroutine. Writes
// after Close are discarded.
func (a *Async) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		<-a.done
		return nil
	}
	a.closed = true
	a.cond.Broadcast()
	a.mu.Unlock()
	<-a.done
	return nil
}

func (a *Async) push(o op) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	a.queue = append(a.queue, o)
	a.cond.Broadcast()
}

func (a *Async) loop() {
	defer close(a.done)
	a.mu.Lock()
	for {
		for len(a.queue) == 0 && !a.closed {
			a.cond.Wait()
		}
		if len(a.queue) == 0 {
			a.mu.Unlock()
			return
		}
		batch := a.queue
		a.queue = nil
		a.busy = true
		a.mu.Unlock()

		for _, o := range batch {
			if err := a.apply(o); err != nil {
				log.Printf("runlog: %v", err)
			}
		}

		a.mu.Lock()
		a.busy = false
		a.cond.Broadcast()
	}
}

func (a *Async) apply(o op) error {
	switch o.kind {
	case opBegin:
		return a.sink.Begin(o.runID, o.zones)
	case opAppend:
		return a.sink.Append(o.row)
	default:
		return a.sink.End()
	}
}
