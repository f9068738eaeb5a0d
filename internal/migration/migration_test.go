package migration

import (
	"sync"
	"testing"

	"github.com/openmd/haloexchange/internal/buffer"
	"github.com/openmd/haloexchange/internal/particle"
	"github.com/openmd/haloexchange/internal/topology"
	"github.com/openmd/haloexchange/internal/transport"
	"github.com/openmd/haloexchange/pkg/utils"
)

func TestRunMigratesParticleAcrossChainBoundary(t *testing.T) {
	net := transport.NewNetwork(2)
	tp0, err := topology.New([3]int{2, 1, 1}, 0, [3]float64{2, 1, 1}, [3]bool{false, false, false})
	if err != nil {
		t.Fatalf("topology rank0: %v", err)
	}
	tp1, err := topology.New([3]int{2, 1, 1}, 1, [3]float64{2, 1, 1}, [3]bool{false, false, false})
	if err != nil {
		t.Fatalf("topology rank1: %v", err)
	}

	store0 := particle.NewStore(8)
	store1 := particle.NewStore(8)
	store0.AddOwned(particle.Record{Identity: 42, Pos: [3]float64{1.5, 0.5, 0.5}, Bonds: []int64{7, 8}})
	store0.AddOwned(particle.Record{Identity: 1, Pos: [3]float64{0.2, 0.5, 0.5}})

	pool0 := buffer.NewPool(64)
	pool1 := buffer.NewPool(64)

	m0 := New(tp0, store0, pool0, transport.New(net, tp0), [3]float64{0, 0, 0}, [3]float64{1, 1, 1}, nil, &utils.NullLogger{})
	m1 := New(tp1, store1, pool1, transport.New(net, tp1), [3]float64{1, 0, 0}, [3]float64{2, 1, 1}, nil, &utils.NullLogger{})

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); m0.Run() }()
	go func() { defer wg.Done(); m1.Run() }()
	wg.Wait()

	if store0.NOwned != 1 {
		t.Fatalf("rank0 NOwned = %d, want 1 (particle 42 should have migrated away)", store0.NOwned)
	}
	if store0.LocalIndexOf(42) != -1 {
		t.Errorf("rank0 still indexes identity 42 after migration")
	}

	slot := store1.LocalIndexOf(42)
	if slot == -1 {
		t.Fatalf("rank1 does not have identity 42 after migration")
	}
	rec := store1.Get(slot)
	if rec.Pos[0] != 1.5 {
		t.Errorf("migrated particle pos[0] = %v, want 1.5", rec.Pos[0])
	}
	if len(rec.Bonds) != 2 || rec.Bonds[0] != 7 || rec.Bonds[1] != 8 {
		t.Errorf("migrated particle bonds = %v, want [7 8]", rec.Bonds)
	}
}
