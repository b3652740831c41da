package frame

import (
	"testing"
	"time"
)

func seqFrame(seq uint64) Frame {
	// Zero Mats are fine here: Close on an unallocated Mat is a no-op and
	// the queue only moves frames around.
	return Frame{Seq: seq, Timestamp: time.Unix(int64(seq), 0)}
}

func TestQueueDropOldest(t *testing.T) {
	q := NewQueue(3)

	for seq := uint64(1); seq <= 3; seq++ {
		if _, dropped := q.Push(seqFrame(seq)); dropped {
			t.Fatalf("push %d dropped below capacity", seq)
		}
	}

	evicted, dropped := q.Push(seqFrame(4))
	if !dropped {
		t.Fatal("push over capacity did not drop")
	}
	if evicted.Seq != 1 {
		t.Errorf("evicted seq = %d, want 1 (oldest)", evicted.Seq)
	}
	if q.Len() != 3 {
		t.Errorf("Len() = %d, want 3", q.Len())
	}

	// Survivors keep their original relative order.
	for _, want := range []uint64{2, 3, 4} {
		f, ok := q.Pop()
		if !ok || f.Seq != want {
			t.Errorf("Pop() = (%d, %v), want seq %d", f.Seq, ok, want)
		}
	}
	if _, ok := q.Pop(); ok {
		t.Error("Pop() on empty queue returned ok")
	}
}

func TestQueueDropsCounter(t *testing.T) {
	q := NewQueue(1)
	q.Push(seqFrame(1))
	q.Push(seqFrame(2))
	q.Push(seqFrame(3))

	if got := q.Drops(); got != 2 {
		t.Errorf("Drops() = %d, want 2", got)
	}
}

func TestQueueMinimumCapacity(t *testing.T) {
	q := NewQueue(0)
	q.Push(seqFrame(1))
	if _, dropped := q.Push(seqFrame(2)); !dropped {
		t.Error("capacity clamped to 1, second push should drop")
	}
}

func TestQueueDrainRejectsPush(t *testing.T) {
	q := NewQueue(2)
	q.Push(seqFrame(1))
	q.Drain()

	if q.Len() != 0 {
		t.Errorf("Len() after Drain = %d", q.Len())
	}
	evicted, dropped := q.Push(seqFrame(9))
	if !dropped || evicted.Seq != 9 {
		t.Errorf("push after Drain = (%d, %v), want own frame back", evicted.Seq, dropped)
	}
}
