package topology

import "testing"

func TestNewSingleRank(t *testing.T) {
	tp, err := New([3]int{1, 1, 1}, 0, [3]float64{10, 10, 10}, [3]bool{true, true, true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for d := 0; d < 6; d++ {
		if tp.Neighbors[d] != 0 {
			t.Errorf("direction %d: expected self-neighbor rank 0, got %d", d, tp.Neighbors[d])
		}
		if !tp.IsSelfNeighbor(Direction(d)) {
			t.Errorf("direction %d: expected self-neighbor", d)
		}
	}
	// Rank alone on a periodic axis sees both shifts nonzero and opposite.
	if tp.Boundary[0] != 10 || tp.Boundary[1] != -10 {
		t.Errorf("unexpected boundary shifts: %v", tp.Boundary)
	}
}

func TestNewLinearChain(t *testing.T) {
	// 2x1x1 grid, non-periodic in x.
	tp0, err := New([3]int{2, 1, 1}, 0, [3]float64{2, 1, 1}, [3]bool{false, false, false})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if tp0.PEPos != [3]int{0, 0, 0} {
		t.Errorf("rank 0 pe_pos = %v", tp0.PEPos)
	}
	// x is toroidal for rank lookup even without physical periodicity.
	if tp0.Neighbors[1] != 1 {
		t.Errorf("rank 0 +x neighbor = %d, want 1", tp0.Neighbors[1])
	}
	if tp0.Boundary[0] != 0 || tp0.Boundary[1] != 0 {
		t.Errorf("non-periodic axis should have zero boundary shift, got %v", tp0.Boundary)
	}

	tp1, err := New([3]int{2, 1, 1}, 1, [3]float64{2, 1, 1}, [3]bool{false, false, false})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if tp1.PEPos != [3]int{1, 0, 0} {
		t.Errorf("rank 1 pe_pos = %v", tp1.PEPos)
	}
	if tp1.Neighbors[0] != 0 {
		t.Errorf("rank 1 -x neighbor = %d, want 0", tp1.Neighbors[0])
	}
}

func TestDirectionHelpers(t *testing.T) {
	d := Direction(3) // axis 1, sign 1
	if d.Axis() != 1 || d.Sign() != 1 {
		t.Errorf("Direction(3) axis=%d sign=%d", d.Axis(), d.Sign())
	}
	if d.Opposite() != Direction(2) {
		t.Errorf("Opposite(3) = %d, want 2", d.Opposite())
	}
}

func TestInvalidRank(t *testing.T) {
	if _, err := New([3]int{2, 1, 1}, 5, [3]float64{1, 1, 1}, [3]bool{}); err == nil {
		t.Error("expected error for out-of-range rank")
	}
}
