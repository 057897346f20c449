package runlog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gatedSink blocks every Append until released.
type gatedSink struct {
	Memory
	entered chan struct{}
	release chan struct{}
}

func (g *gatedSink) Append(row Row) error {
	select {
	case g.entered <- struct{}{}:
	default:
	}
	<-g.release
	return g.Memory.Append(row)
}

func TestAsync_PreservesOrder(t *testing.T) {
	mem := &Memory{}
	a := NewAsync(mem, 0)
	require.NoError(t, a.Begin("run", []string{"top"}))
	for i := 0; i < 5; i++ {
		r := sampleRow()
		r.Target = float64(i)
		require.NoError(t, a.Append(r))
	}
	require.NoError(t, a.End())
	a.Flush()

	rows := mem.Rows()
	require.Len(t, rows, 5)
	for i, r := range rows {
		assert.Equal(t, float64(i), r.Target)
	}
	assert.Equal(t, 1, mem.Ended())
	require.NoError(t, a.Close())
}

func TestAsync_WritesDoNotWaitForTheSink(t *testing.T) {
	g := &gatedSink{entered: make(chan struct{}, 1), release: make(chan struct{})}
	a := NewAsync(g, 2)
	require.NoError(t, a.Begin("run", nil))
	require.NoError(t, a.Append(sampleRow()))
	<-g.entered

	returned := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			_ = a.Append(sampleRow())
		}
		_ = a.End()
		close(returned)
	}()
	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("writes blocked behind a stalled sink")
	}

	// Two rows fit behind the stalled one; the rest were dropped, End was not.
	assert.Equal(t, 8, a.Dropped())
	close(g.release)
	require.NoError(t, a.Close())
	assert.Len(t, g.Rows(), 3)
	assert.Equal(t, 1, g.Ended())
}

func TestAsync_CloseDrainsAndIgnoresLateWrites(t *testing.T) {
	mem := &Memory{}
	a := NewAsync(mem, 0)
	require.NoError(t, a.Begin("run", nil))
	require.NoError(t, a.Append(sampleRow()))
	require.NoError(t, a.Close())
	assert.Len(t, mem.Rows(), 1)

	require.NoError(t, a.Append(sampleRow()))
	require.NoError(t, a.Close())
	assert.Len(t, mem.Rows(), 1)
}
