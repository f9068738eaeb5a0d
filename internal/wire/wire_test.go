package wire

import (
	"bytes"
	"testing"

	"github.com/openmd/haloexchange/internal/particle"
)

func TestParticleRoundTrip(t *testing.T) {
	rec := particle.Record{
		Identity: 42,
		Type:     1,
		Pos:      [3]float64{1.5, 2.5, 3.5},
		Image:    [3]int32{1, 0, -1},
		Vel:      [3]float64{0.1, 0.2, 0.3},
		Force:    [3]float64{0, 0, 0},
		Charge:   -1.0,
		Bonds:    []int64{7, 8, 9},
	}

	var buf bytes.Buffer
	wireRec := ParticleToWire(rec)
	if err := EncodeParticleRecords(&buf, []ParticleRecord{wireRec}); err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := EncodeBondInts(&buf, rec.Bonds); err != nil {
		t.Fatalf("encode bonds: %v", err)
	}

	decoded, err := DecodeParticleRecords(&buf, 1)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	bonds, err := DecodeBondInts(&buf, decoded[0].NBonds)
	if err != nil {
		t.Fatalf("decode bonds: %v", err)
	}

	got := ParticleFromWire(decoded[0], bonds)
	if got.Identity != rec.Identity || got.Pos != rec.Pos || got.Charge != rec.Charge {
		t.Errorf("round trip mismatch: %+v vs %+v", got, rec)
	}
	if len(got.Bonds) != 3 || got.Bonds[1] != 8 {
		t.Errorf("bonds round trip mismatch: %v", got.Bonds)
	}
}

func TestGhostRoundTrip(t *testing.T) {
	rec := particle.Record{Identity: 5, Type: 2, Pos: [3]float64{1, 2, 3}, Charge: 0.5}

	var buf bytes.Buffer
	if err := EncodeGhostRecords(&buf, []GhostRecord{GhostToWire(rec)}); err != nil {
		t.Fatalf("encode: %v", err)
	}

	decoded, err := DecodeGhostRecords(&buf, 1)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	got := GhostFromWire(decoded[0])
	if got.Identity != 5 || got.Pos != rec.Pos || got.Charge != 0.5 {
		t.Errorf("ghost round trip mismatch: %+v", got)
	}
}

func TestDoublesRoundTrip(t *testing.T) {
	vals := []float64{1.1, 2.2, 3.3, 4.4}
	var buf bytes.Buffer
	if err := EncodeDoubles(&buf, vals); err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := DecodeDoubles(&buf, len(vals))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	for i := range vals {
		if got[i] != vals[i] {
			t.Errorf("index %d: got %f want %f", i, got[i], vals[i])
		}
	}
}

func TestGhostHeaderRoundTrip(t *testing.T) {
	counts := []int32{3, 1, 4, 1, 5, 9}
	var buf bytes.Buffer
	if err := EncodeGhostHeader(&buf, counts); err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := DecodeGhostHeader(&buf, len(counts))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	for i := range counts {
		if got[i] != counts[i] {
			t.Errorf("index %d: got %d want %d", i, got[i], counts[i])
		}
	}
}
