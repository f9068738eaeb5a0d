package buffer

import "testing"

func TestGrowIsMonotonic(t *testing.T) {
	b := NewBuffer(4)
	b.Grow(16)
	if b.Cap() != 16 {
		t.Fatalf("Cap() = %d, want 16", b.Cap())
	}
	b.Grow(8) // smaller request must not shrink capacity
	if b.Cap() != 16 {
		t.Errorf("Cap() shrank to %d after smaller Grow", b.Cap())
	}
}

func TestResetPreservesCapacityAcrossRounds(t *testing.T) {
	b := NewBuffer(4)
	data := b.Reset(10)
	for i := range data {
		data[i] = byte(i)
	}
	if b.Count() != 10 {
		t.Fatalf("Count() = %d, want 10", b.Count())
	}
	highWater := b.Cap()

	b.Reset(3)
	if b.Cap() < highWater {
		t.Errorf("capacity shrank from %d to %d", highWater, b.Cap())
	}
	if b.Count() != 3 {
		t.Errorf("Count() = %d, want 3", b.Count())
	}
}

func TestDescriptorSwapExchangesCountAndCapacity(t *testing.T) {
	d := Descriptor{Send: NewBuffer(4), Recv: NewBuffer(8)}
	d.Send.Reset(4)
	d.Recv.Reset(2)

	sendBuf, recvBuf := d.Send, d.Recv
	d.Swap()

	if d.Send != recvBuf || d.Recv != sendBuf {
		t.Fatal("Swap did not exchange buffer pointers")
	}
	if d.Send.Count() != 2 || d.Recv.Count() != 4 {
		t.Errorf("counts not exchanged: send=%d recv=%d", d.Send.Count(), d.Recv.Count())
	}
}

func TestUnifyDoubleCapacity(t *testing.T) {
	p := NewPool(4)
	p.Doubles.Send.Grow(100)
	p.Doubles.Recv.Grow(40)

	p.UnifyDoubleCapacity()

	if p.Doubles.Send.Cap() != 100 || p.Doubles.Recv.Cap() != 100 {
		t.Errorf("expected both buffers at capacity 100, got send=%d recv=%d", p.Doubles.Send.Cap(), p.Doubles.Recv.Cap())
	}
}
