package testutil

import (
	"sync"
	"testing"

	"github.com/openmd/haloexchange/internal/cellgrid"
	"github.com/openmd/haloexchange/internal/engine"
	"github.com/openmd/haloexchange/internal/topology"
	"github.com/openmd/haloexchange/internal/transport"
)

// RankSpec describes one rank's sub-box for SpawnRanks. Rank is the global
// rank id (must match the row-major rank the process grid would assign);
// MyLeft/MyRight are its owned sub-box corners in the global box frame.
type RankSpec struct {
	Rank    int
	MyLeft  [3]float64
	MyRight [3]float64
}

// SpawnRanks builds one Engine per RankSpec, all sharing a single Network,
// for use by multi-rank scenario tests. cellGrid is applied uniformly to
// every rank's sub-box. It is the generalized form of the rank-wiring
// boilerplate every exchange scenario test otherwise repeats by hand.
func SpawnRanks(t *testing.T, gridDims [3]int, boxLengths [3]float64, periodic [3]bool, cellGrid [3]int, specs []RankSpec) []*engine.Engine {
	t.Helper()

	total := gridDims[0] * gridDims[1] * gridDims[2]
	net := transport.NewNetwork(total)

	engines := make([]*engine.Engine, len(specs))
	for i, spec := range specs {
		tp, err := topology.New(gridDims, spec.Rank, boxLengths, periodic)
		if err != nil {
			t.Fatalf("topology rank %d: %v", spec.Rank, err)
		}
		cellSize := [3]float64{
			(spec.MyRight[0] - spec.MyLeft[0]) / float64(cellGrid[0]),
			(spec.MyRight[1] - spec.MyLeft[1]) / float64(cellGrid[1]),
			(spec.MyRight[2] - spec.MyLeft[2]) / float64(cellGrid[2]),
		}
		grid := cellgrid.New(cellGrid, cellSize)

		engines[i] = engine.Init(engine.Config{
			Topo:           tp,
			Grid:           grid,
			Net:            net,
			MyLeft:         spec.MyLeft,
			MyRight:        spec.MyRight,
			StoreCapacity:  16,
			BufferCapacity: 256,
		})
	}
	return engines
}

// RunConcurrently runs every fn in its own goroutine and blocks until all
// have returned, the shape every SPMD exchange round needs in tests since
// each rank's Engine method call blocks on its peers' matching calls.
func RunConcurrently(fns ...func()) {
	var wg sync.WaitGroup
	wg.Add(len(fns))
	for _, fn := range fns {
		go func(f func()) {
			defer wg.Done()
			f()
		}(fn)
	}
	wg.Wait()
}
