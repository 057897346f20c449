package mqtt

import (
	"testing"
)

func TestRingBufferEmptyDrain(t *testing.T) {
	rb := newRingBuffer(10)
	if got := rb.drainAll(); got != nil {
		t.Errorf("expected nil from empty drain, got %d items", len(got))
	}
}

func TestRingBufferPushAndDrain(t *testing.T) {
	rb := newRingBuffer(10)
	for i := 0; i < 5; i++ {
		rb.push(bufferedMsg{topic: "kiln/events", payload: []byte{byte(i)}})
	}

	got := rb.drainAll()
	if len(got) != 5 {
		t.Fatalf("expected 5 items, got %d", len(got))
	}
	for i := 0; i < 5; i++ {
		if got[i].payload[0] != byte(i) {
			t.Errorf("item %d: expected payload %d, got %d", i, i, got[i].payload[0])
		}
	}
	if rb.len() != 0 {
		t.Errorf("expected len 0 after drain, got %d", rb.len())
	}
}

func TestRingBufferOverflowKeepsNewest(t *testing.T) {
	rb := newRingBuffer(5)
	for i := 0; i < 8; i++ {
		rb.push(bufferedMsg{topic: "kiln/events", payload: []byte{byte(i)}})
	}

	got := rb.drainAll()
	if len(got) != 5 {
		t.Fatalf("expected 5 items, got %d", len(got))
	}
	for i := 0; i < 5; i++ {
		if want := byte(i + 3); got[i].payload[0] != want {
			t.Errorf("item %d: expected payload %d, got %d", i, want, got[i].payload[0])
		}
	}
}

func TestRingBufferRetainedStateReplacesInPlace(t *testing.T) {
	rb := newRingBuffer(4)
	rb.push(bufferedMsg{topic: "kiln/events", payload: []byte("started")})
	for i := 0; i < 100; i++ {
		rb.push(bufferedMsg{topic: "kiln/state", payload: []byte{byte(i)}, retained: true})
	}
	rb.push(bufferedMsg{topic: "kiln/events", payload: []byte("ended")})

	got := rb.drainAll()
	if len(got) != 3 {
		t.Fatalf("expected 3 items, got %d", len(got))
	}
	if string(got[0].payload) != "started" || string(got[2].payload) != "ended" {
		t.Errorf("events out of order: %q, %q", got[0].payload, got[2].payload)
	}
	if got[1].topic != "kiln/state" || got[1].payload[0] != 99 {
		t.Errorf("expected latest state, got %s %v", got[1].topic, got[1].payload)
	}
}

func TestRingBufferNonRetainedNotMerged(t *testing.T) {
	rb := newRingBuffer(10)
	rb.push(bufferedMsg{topic: "kiln/events", payload: []byte("a")})
	rb.push(bufferedMsg{topic: "kiln/events", payload: []byte("b")})
	if rb.len() != 2 {
		t.Errorf("expected len 2, got %d", rb.len())
	}
}

func TestRingBufferMergeAfterWrap(t *testing.T) {
	rb := newRingBuffer(3)
	rb.push(bufferedMsg{topic: "e", payload: []byte{1}})
	rb.push(bufferedMsg{topic: "e", payload: []byte{2}})
	rb.push(bufferedMsg{topic: "s", payload: []byte{3}, retained: true})
	rb.push(bufferedMsg{topic: "e", payload: []byte{4}}) // drops 1
	rb.push(bufferedMsg{topic: "s", payload: []byte{5}, retained: true})

	got := rb.drainAll()
	want := []byte{2, 5, 4}
	if len(got) != len(want) {
		t.Fatalf("expected %d items, got %d", len(want), len(got))
	}
	for i, w := range want {
		if got[i].payload[0] != w {
			t.Errorf("item %d: expected %d, got %d", i, w, got[i].payload[0])
		}
	}
}

func TestRingBufferPreservesFields(t *testing.T) {
	rb := newRingBuffer(10)
	rb.push(bufferedMsg{
		topic:    "kiln/state",
		payload:  []byte(`{"state":"IDLE"}`),
		qos:      1,
		retained: true,
	})

	got := rb.drainAll()
	if len(got) != 1 {
		t.Fatalf("expected 1 item, got %d", len(got))
	}
	if got[0].topic != "kiln/state" || string(got[0].payload) != `{"state":"IDLE"}` {
		t.Errorf("unexpected message %s %s", got[0].topic, got[0].payload)
	}
	if got[0].qos != 1 || !got[0].retained {
		t.Errorf("qos=%d retained=%v", got[0].qos, got[0].retained)
	}
}
