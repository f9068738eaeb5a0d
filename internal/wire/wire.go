// Package wire implements the packed, fixed-layout binary encoding shared by
// migration, ghost construction, and ghost refresh. There is no schema or
// generated marshaling: every record has a fixed field order and fixed
// widths, written big-endian, so sender and receiver agree byte-for-byte
// without exchanging type information.
package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/openmd/haloexchange/internal/particle"
)

var byteOrder = binary.BigEndian

// ParticleRecord is the on-wire layout of one migrating owned particle:
// identity, type, pos[3], image[3], vel[3], force[3], charge, n_bonds. The
// bond partner identities themselves travel in a separate concatenated
// stream (Body B), not inline in this record.
type ParticleRecord struct {
	Identity int64
	Type     int32
	Pos      [3]float64
	Image    [3]int32
	Vel      [3]float64
	Force    [3]float64
	Charge   float64
	NBonds   int32
}

// GhostRecord is the on-wire layout of one ghost: identity, type, pos[3],
// charge. Velocities, images, forces, and bonds are intentionally absent.
type GhostRecord struct {
	Identity int64
	Type     int32
	Pos      [3]float64
	Charge   float64
}

// ParticleHeader is the migration header: counts, not data.
type ParticleHeader struct {
	NParticles int32
	NBondInts  int32
}

// ToWire converts a particle.Record (owned particle) to its wire layout.
func ParticleToWire(rec particle.Record) ParticleRecord {
	return ParticleRecord{
		Identity: rec.Identity,
		Type:     rec.Type,
		Pos:      rec.Pos,
		Image:    rec.Image,
		Vel:      rec.Vel,
		Force:    rec.Force,
		Charge:   rec.Charge,
		NBonds:   int32(len(rec.Bonds)),
	}
}

// FromWire converts a wire ParticleRecord plus its bond-partner slice back
// into a particle.Record.
func ParticleFromWire(w ParticleRecord, bonds []int64) particle.Record {
	return particle.Record{
		Identity: w.Identity,
		Type:     w.Type,
		Pos:      w.Pos,
		Image:    w.Image,
		Vel:      w.Vel,
		Force:    w.Force,
		Charge:   w.Charge,
		Bonds:    bonds,
	}
}

// GhostToWire converts a particle.Record to its ghost wire layout, dropping
// every field ghosts don't carry.
func GhostToWire(rec particle.Record) GhostRecord {
	return GhostRecord{Identity: rec.Identity, Type: rec.Type, Pos: rec.Pos, Charge: rec.Charge}
}

// GhostFromWire converts a wire GhostRecord into a particle.Record
// populated only with the fields a ghost carries.
func GhostFromWire(w GhostRecord) particle.Record {
	return particle.Record{Identity: w.Identity, Type: w.Type, Pos: w.Pos, Charge: w.Charge}
}

// EncodeParticleHeader writes the migration header.
func EncodeParticleHeader(buf *bytes.Buffer, h ParticleHeader) error {
	return binary.Write(buf, byteOrder, h)
}

// DecodeParticleHeader reads the migration header.
func DecodeParticleHeader(r io.Reader) (ParticleHeader, error) {
	var h ParticleHeader
	err := binary.Read(r, byteOrder, &h)
	return h, err
}

// EncodeParticleRecords writes n packed ParticleRecord entries in order.
func EncodeParticleRecords(buf *bytes.Buffer, recs []ParticleRecord) error {
	for i := range recs {
		if err := binary.Write(buf, byteOrder, recs[i]); err != nil {
			return fmt.Errorf("wire: encode particle record %d: %w", i, err)
		}
	}
	return nil
}

// DecodeParticleRecords reads n packed ParticleRecord entries.
func DecodeParticleRecords(r io.Reader, n int32) ([]ParticleRecord, error) {
	recs := make([]ParticleRecord, n)
	for i := int32(0); i < n; i++ {
		if err := binary.Read(r, byteOrder, &recs[i]); err != nil {
			return nil, fmt.Errorf("wire: decode particle record %d: %w", i, err)
		}
	}
	return recs, nil
}

// EncodeBondInts writes a concatenated stream of bond-partner identities.
func EncodeBondInts(buf *bytes.Buffer, bonds []int64) error {
	for _, id := range bonds {
		if err := binary.Write(buf, byteOrder, id); err != nil {
			return err
		}
	}
	return nil
}

// DecodeBondInts reads n bond-partner identities.
func DecodeBondInts(r io.Reader, n int32) ([]int64, error) {
	if n == 0 {
		return nil, nil
	}
	ids := make([]int64, n)
	if err := binary.Read(r, byteOrder, &ids); err != nil {
		return nil, fmt.Errorf("wire: decode bond ints: %w", err)
	}
	return ids, nil
}

// EncodeGhostHeader writes the per-send-cell ghost count vector, with the
// grand total in the final slot (max_send_cells + 1 entries total).
func EncodeGhostHeader(buf *bytes.Buffer, counts []int32) error {
	for _, c := range counts {
		if err := binary.Write(buf, byteOrder, c); err != nil {
			return err
		}
	}
	return nil
}

// DecodeGhostHeader reads n count entries.
func DecodeGhostHeader(r io.Reader, n int) ([]int32, error) {
	counts := make([]int32, n)
	if err := binary.Read(r, byteOrder, &counts); err != nil {
		return nil, fmt.Errorf("wire: decode ghost header: %w", err)
	}
	return counts, nil
}

// EncodeGhostRecords writes packed GhostRecord entries in order.
func EncodeGhostRecords(buf *bytes.Buffer, recs []GhostRecord) error {
	for i := range recs {
		if err := binary.Write(buf, byteOrder, recs[i]); err != nil {
			return fmt.Errorf("wire: encode ghost record %d: %w", i, err)
		}
	}
	return nil
}

// DecodeGhostRecords reads n packed GhostRecord entries.
func DecodeGhostRecords(r io.Reader, n int32) ([]GhostRecord, error) {
	recs := make([]GhostRecord, n)
	for i := int32(0); i < n; i++ {
		if err := binary.Read(r, byteOrder, &recs[i]); err != nil {
			return nil, fmt.Errorf("wire: decode ghost record %d: %w", i, err)
		}
	}
	return recs, nil
}

// EncodeDoubles writes a raw stream of float64 values, used by ghost
// refresh to carry pos[3] or force[3] per slot.
func EncodeDoubles(buf *bytes.Buffer, vals []float64) error {
	return binary.Write(buf, byteOrder, vals)
}

// DecodeDoubles reads n float64 values.
func DecodeDoubles(r io.Reader, n int) ([]float64, error) {
	vals := make([]float64, n)
	if err := binary.Read(r, byteOrder, &vals); err != nil {
		return nil, fmt.Errorf("wire: decode doubles: %w", err)
	}
	return vals, nil
}
