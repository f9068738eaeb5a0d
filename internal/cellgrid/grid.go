// Package cellgrid maps 3D cell coordinates to linear indices and enumerates
// the per-direction send/recv cell lists that drive ghost construction and
// refresh.
package cellgrid

import "github.com/openmd/haloexchange/internal/topology"

// Grid is the fixed, axis-aligned cell lattice for one rank's sub-box. The
// owned region is CellGrid[3]; the stored (haloed) lattice is
// GhostCellGrid[3] = CellGrid + 2, one halo layer on each side.
type Grid struct {
	CellGrid      [3]int
	GhostCellGrid [3]int
	CellSize      [3]float64
}

// New builds a Grid from the owned cell-grid dimensions and the physical
// cell size along each axis.
func New(cellGrid [3]int, cellSize [3]float64) *Grid {
	g := &Grid{CellGrid: cellGrid, CellSize: cellSize}
	for i := 0; i < 3; i++ {
		g.GhostCellGrid[i] = cellGrid[i] + 2
	}
	return g
}

// LinearIndex maps a (p0, p1, p2) lattice coordinate into a linear index
// within a gs-shaped lattice, row-major with p0 as the outer loop. ok is
// false if any coordinate is out of [0, gs[i]).
func LinearIndex(p0, p1, p2 int, gs [3]int) (idx int, ok bool) {
	if p0 < 0 || p0 >= gs[0] || p1 < 0 || p1 >= gs[1] || p2 < 0 || p2 >= gs[2] {
		return 0, false
	}
	return (p0*gs[1]+p1)*gs[2] + p2, true
}

// CellOf returns the ghost-lattice linear index of the cell containing
// position pos, given this rank's lower sub-box corner myLeft. ok is false
// if pos falls outside the stored (haloed) lattice, which signals a cell
// index overflow (an InvariantViolation upstream, not a crash here).
func (g *Grid) CellOf(pos [3]float64, myLeft [3]float64) (idx int, ok bool) {
	var p [3]int
	for i := 0; i < 3; i++ {
		// +1 shifts into the haloed lattice, whose coordinate 0 is the
		// halo layer below the owned region.
		p[i] = int((pos[i]-myLeft[i])/g.CellSize[i]) + 1
	}
	return LinearIndex(p[0], p[1], p[2], g.GhostCellGrid)
}

// SubGridIndices enumerates the linear indices, in the gs-shaped lattice, of
// the axis-aligned box [lc, hc] inclusive, outer loop p0. overflow is true
// if any bound lies outside [0, gs[i]).
func SubGridIndices(lc, hc [3]int, gs [3]int) (indices []int, overflow bool) {
	for i := 0; i < 3; i++ {
		if lc[i] < 0 || hc[i] >= gs[i] || lc[i] > hc[i] {
			return nil, true
		}
	}
	n := (hc[0] - lc[0] + 1) * (hc[1] - lc[1] + 1) * (hc[2] - lc[2] + 1)
	indices = make([]int, 0, n)
	for p0 := lc[0]; p0 <= hc[0]; p0++ {
		for p1 := lc[1]; p1 <= hc[1]; p1++ {
			for p2 := lc[2]; p2 <= hc[2]; p2++ {
				idx, ok := LinearIndex(p0, p1, p2, gs)
				if !ok {
					return nil, true
				}
				indices = append(indices, idx)
			}
		}
	}
	return indices, false
}

// DirectionCells holds the pre-computed send and recv cell lists for one
// direction, as linear indices into the ghost (haloed) lattice.
type DirectionCells struct {
	Send []int
	Recv []int
}

// DirectionCellLists computes, for each of the 6 directions in fixed sweep
// order (axis 0 low/high, then axis 1, then axis 2), the plane of owned
// cells adjacent to that face (Send) and the halo plane on the opposite
// side that receives from the anti-parallel neighbor (Recv).
//
// Transverse bounds widen by one cell on each side once an axis has been
// swept, so that edge and corner halo cells filled by an earlier sweep
// become eligible send cells for a later one; this is why the axis order
// 0, 1, 2 is fixed.
func (g *Grid) DirectionCellLists() [6]DirectionCells {
	var lists [6]DirectionCells
	var done [3]int // 0 or 1, widens transverse bounds once an axis is processed

	for axis := 0; axis < 3; axis++ {
		lowLC, lowHC := g.transverseBounds(axis, done)
		lowLC[axis], lowHC[axis] = 1, 1
		lists[2*axis].Send, _ = SubGridIndices(lowLC, lowHC, g.GhostCellGrid)

		lowRC, lowRH := g.transverseBounds(axis, done)
		lowRC[axis], lowRH[axis] = g.CellGrid[axis]+1, g.CellGrid[axis]+1
		lists[2*axis].Recv, _ = SubGridIndices(lowRC, lowRH, g.GhostCellGrid)

		highLC, highHC := g.transverseBounds(axis, done)
		highLC[axis], highHC[axis] = g.CellGrid[axis], g.CellGrid[axis]
		lists[2*axis+1].Send, _ = SubGridIndices(highLC, highHC, g.GhostCellGrid)

		highRC, highRH := g.transverseBounds(axis, done)
		highRC[axis], highRH[axis] = 0, 0
		lists[2*axis+1].Recv, _ = SubGridIndices(highRC, highRH, g.GhostCellGrid)

		done[axis] = 1
	}

	return lists
}

// transverseBounds returns, for every axis, the lc/hc bound used as the
// transverse (non-swept-axis) extent: the owned range [1, cg[j]] if axis j
// has not yet been swept, widened to [0, cg[j]+1] once it has. The caller
// overwrites the entry for the swept axis itself.
func (g *Grid) transverseBounds(axis int, done [3]int) (lc, hc [3]int) {
	for j := 0; j < 3; j++ {
		lc[j] = 1 - done[j]
		hc[j] = g.CellGrid[j] + done[j]
	}
	_ = axis
	return lc, hc
}

// DirectionIndex maps a topology.Direction to its index into the
// DirectionCells list computed above; kept as a thin alias so callers
// needn't import both packages' Direction-ish concepts separately.
func DirectionIndex(d topology.Direction) int { return int(d) }
