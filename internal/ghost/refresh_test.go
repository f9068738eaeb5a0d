package ghost

import "testing"

func TestPushPositionsPropagatesOwnerMotion(t *testing.T) {
	b, store := newSelfNeighborRig(t)
	if findings := b.Build(); len(findings) != 0 {
		t.Fatalf("Build findings: %v", findings)
	}

	owner := store.Get(0)
	owner.Pos = [3]float64{0.7, 0.5, 0.5}

	r := NewRefresh(b.topo, store, b.pool, b.transport, b)
	if findings := r.PushPositions(); len(findings) != 0 {
		t.Fatalf("PushPositions findings: %v", findings)
	}

	var sawUpdatedImage bool
	for slot := store.NOwned; slot < store.NOwned+store.NGhosts; slot++ {
		if store.Get(slot).Pos[0] == 2.7 {
			sawUpdatedImage = true
		}
	}
	if !sawUpdatedImage {
		t.Error("expected the ghost's periodic image to track the owner's new position (0.7 + 2)")
	}
}

func TestCollectForcesAccumulatesOntoOwner(t *testing.T) {
	b, store := newSelfNeighborRig(t)
	if findings := b.Build(); len(findings) != 0 {
		t.Fatalf("Build findings: %v", findings)
	}

	owner := store.Get(0)
	owner.Force = [3]float64{1, 1, 1}
	for slot := store.NOwned; slot < store.NOwned+store.NGhosts; slot++ {
		store.Get(slot).Force = [3]float64{10, 0, 0}
	}

	r := NewRefresh(b.topo, store, b.pool, b.transport, b)
	if findings := r.CollectForces(); len(findings) != 0 {
		t.Fatalf("CollectForces findings: %v", findings)
	}

	got := store.Get(0).Force[0]
	if got <= 1 {
		t.Errorf("owner force[0] = %v, want > 1 (ghost forces folded back in)", got)
	}
}
