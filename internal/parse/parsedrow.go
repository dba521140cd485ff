package parse

import (
	"encoding/binary"
	"fmt"
	"math"
)

// ParsedRow is the typed form of one input row in the packed five/six/
// seven-column layout written by EncodeRow and read by DecodeRow. The
// Ingestor does not build ParsedRow values; it decodes fields directly.
type ParsedRow struct {
	IterID    int32
	SeqID     int32
	EventID   int32
	Loss      float64
	Rip       float64
	RiskGroup string
	FullRip   float64
	HasRiskGroup bool
	HasFullRip   bool
}

// EncodedSize returns the number of bytes EncodeRow will write for row.
func (r ParsedRow) EncodedSize() int {
	n := 4 + 4 + 4 + 8 + 8
	if r.HasRiskGroup {
		n += len(r.RiskGroup) + 1 // NUL-terminated
	}
	if r.HasFullRip {
		n += 8
	}
	return n
}

// EncodeRow packs row into buf per the spec's five/six/seven-column
// layouts, matching the HasRiskGroup/HasFullRip flags row carries.
// buf must be at least row.EncodedSize() bytes. Returns the number of
// bytes written.
func EncodeRow(buf []byte, row ParsedRow) (int, error) {
	need := row.EncodedSize()
	if len(buf) < need {
		return 0, fmt.Errorf("parse: buffer too small: need %d, have %d", need, len(buf))
	}
	off := 0
	binary.LittleEndian.PutUint32(buf[off:], uint32(row.IterID))
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], uint32(row.SeqID))
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], uint32(row.EventID))
	off += 4
	binary.LittleEndian.PutUint64(buf[off:], math.Float64bits(row.Loss))
	off += 8
	binary.LittleEndian.PutUint64(buf[off:], math.Float64bits(row.Rip))
	off += 8
	if row.HasRiskGroup {
		copy(buf[off:], row.RiskGroup)
		off += len(row.RiskGroup)
		buf[off] = 0
		off++
	}
	if row.HasFullRip {
		binary.LittleEndian.PutUint64(buf[off:], math.Float64bits(row.FullRip))
		off += 8
	}
	return off, nil
}

// DecodeRow unpacks a ParsedRow previously written by EncodeRow.
// hasRiskGroup/hasFullRip must match how the row was encoded, matching
// the variant the Ingestor detected from the header's column count.
func DecodeRow(buf []byte, hasRiskGroup, hasFullRip bool) (ParsedRow, error) {
	if len(buf) < 28 {
		return ParsedRow{}, fmt.Errorf("parse: buffer too small for fixed header: %d bytes", len(buf))
	}
	off := 0
	row := ParsedRow{HasRiskGroup: hasRiskGroup, HasFullRip: hasFullRip}
	row.IterID = int32(binary.LittleEndian.Uint32(buf[off:]))
	off += 4
	row.SeqID = int32(binary.LittleEndian.Uint32(buf[off:]))
	off += 4
	row.EventID = int32(binary.LittleEndian.Uint32(buf[off:]))
	off += 4
	row.Loss = math.Float64frombits(binary.LittleEndian.Uint64(buf[off:]))
	off += 8
	row.Rip = math.Float64frombits(binary.LittleEndian.Uint64(buf[off:]))
	off += 8
	if hasRiskGroup {
		start := off
		for off < len(buf) && buf[off] != 0 {
			off++
		}
		if off >= len(buf) {
			return ParsedRow{}, fmt.Errorf("parse: risk group field not NUL-terminated")
		}
		row.RiskGroup = string(buf[start:off])
		off++ // skip NUL
	}
	if hasFullRip {
		if len(buf) < off+8 {
			return ParsedRow{}, fmt.Errorf("parse: buffer too small for full_rip")
		}
		row.FullRip = math.Float64frombits(binary.LittleEndian.Uint64(buf[off:]))
		off += 8
	}
	return row, nil
}
