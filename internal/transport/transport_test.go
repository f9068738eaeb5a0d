package transport

import (
	"sync"
	"testing"

	"github.com/openmd/haloexchange/internal/buffer"
	"github.com/openmd/haloexchange/internal/topology"
)

func newDescriptor(payload []byte) *buffer.Descriptor {
	d := &buffer.Descriptor{Send: buffer.NewBuffer(len(payload)), Recv: buffer.NewBuffer(len(payload))}
	copy(d.Send.Reset(len(payload)), payload)
	return d
}

func TestExchangeLinearChain(t *testing.T) {
	net := NewNetwork(2)
	tp0, _ := topology.New([3]int{2, 1, 1}, 0, [3]float64{2, 1, 1}, [3]bool{false, false, false})
	tp1, _ := topology.New([3]int{2, 1, 1}, 1, [3]float64{2, 1, 1}, [3]bool{false, false, false})
	tr0 := New(net, tp0)
	tr1 := New(net, tp1)

	var wg sync.WaitGroup
	wg.Add(2)

	var got0, got1 []byte

	go func() {
		defer wg.Done()
		header := newDescriptor([]byte{1, 2, 3, 4})
		body := newDescriptor([]byte("hello-from-0"))
		if err := tr0.Exchange(topology.Direction(1), header, body); err != nil {
			t.Errorf("rank0 exchange: %v", err)
		}
		got0 = body.Recv.Bytes()
	}()

	go func() {
		defer wg.Done()
		header := newDescriptor([]byte{9, 9, 9, 9})
		body := newDescriptor([]byte("hello-from-1"))
		if err := tr1.Exchange(topology.Direction(1), header, body); err != nil {
			t.Errorf("rank1 exchange: %v", err)
		}
		got1 = body.Recv.Bytes()
	}()

	wg.Wait()

	if string(got0) != "hello-from-1" {
		t.Errorf("rank0 received %q, want hello-from-1", got0)
	}
	if string(got1) != "hello-from-0" {
		t.Errorf("rank1 received %q, want hello-from-0", got1)
	}
}

func TestExchangeSelfNeighborSwap(t *testing.T) {
	net := NewNetwork(1)
	tp, _ := topology.New([3]int{1, 1, 1}, 0, [3]float64{1, 1, 1}, [3]bool{false, false, false})
	tr := New(net, tp)

	header := newDescriptor([]byte{1, 2, 3, 4})
	body := newDescriptor([]byte("local-payload"))

	if err := tr.Exchange(topology.Direction(0), header, body); err != nil {
		t.Fatalf("Exchange: %v", err)
	}
	if string(body.Recv.Bytes()) != "local-payload" {
		t.Errorf("self-neighbor swap did not move payload to Recv: %q", body.Recv.Bytes())
	}
}

func TestBarrierReleasesAllParticipants(t *testing.T) {
	b := NewBarrier(3)
	var wg sync.WaitGroup
	reached := make([]bool, 3)
	wg.Add(3)
	for i := 0; i < 3; i++ {
		go func(i int) {
			defer wg.Done()
			reached[i] = true
			b.Wait()
		}(i)
	}
	wg.Wait()
	for i, r := range reached {
		if !r {
			t.Errorf("goroutine %d did not reach barrier", i)
		}
	}
}
