// Package dayfile implements the Day Writer: read-modify-write of one
// per-day columnar dataset, and the on-disk columnar format itself.
//
// No repository in the retrieval pack imports an actual Apache-Parquet
// library, so the on-disk format here is a small self-describing columnar
// container built the way arkiliandb-Arkilian builds its own on-disk
// partition artifacts (github.com/golang/snappy compression, fixed schema),
// rather than a hand-wave dependency on something unavailable. It honors
// spec.md §6.2's column order, types, nullability and compression contract
// exactly; see DESIGN.md's "column format" decision.
package dayfile

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"
	"time"

	"github.com/golang/snappy"
	"github.com/pkg/errors"
	"gopkg.in/volatiletech/null.v6"

	"github.com/barshanhassan/enexory-parquet-export/internal/cdcevent"
)

// Ext is the day-file extension: files are named "<YYYY-MM-DD>.parq".
const Ext = "parq"

const magic = "EXPQ1\n"

// targetRowGroupBytes bounds each row group at ~1 MiB uncompressed, per
// spec.md §6.2's row-group size target.
const targetRowGroupBytes = 1 << 20

const rowWidthEstimate = 8 + 19 + 9 + 19 // id + date_time + value(flag+f64) + ts

// RowValue is one stored row: spec.md §3's "row value" shape.
type RowValue struct {
	ID       int64
	DateTime string
	Value    null.Float64
	TS       string
}

// tsLayout is the fixed 19-character "YYYY-MM-DD HH:MM:SS" layout used for
// both DateTime and TS.
const tsLayout = "2006-01-02 15:04:05"

// utc2 is the fixed additive offset spec.md §4.3 requires for the TS column:
// a historical downstream contract, not real timezone math.
const utc2 = 2 * time.Hour

// FromEvent builds the stored RowValue for a completed insert/update event.
func FromEvent(e *cdcevent.Event) RowValue {
	return RowValue{
		ID:       e.PK,
		DateTime: e.DT,
		Value:    e.Val,
		TS:       formatTS(e.TS),
	}
}

// formatTS renders a Unix-epoch-seconds value at a fixed UTC+2 offset,
// truncated to 19 characters. ts=0 renders as "1970-01-01 02:00:00".
func formatTS(epochSeconds uint64) string {
	t := time.Unix(int64(epochSeconds), 0).UTC().Add(utc2)
	s := t.Format(tsLayout)
	if len(s) > 19 {
		s = s[:19]
	}
	return s
}

// encode serializes rows (in the given order) into the day-file byte
// format: a magic header, a row-group count, then per row group four
// snappy-compressed column chunks (id, date_time, value, ts) in that fixed
// order.
func encode(rows []RowValue) []byte {
	var buf bytes.Buffer
	buf.WriteString(magic)

	groups := chunkRowGroups(rows)
	writeUint32(&buf, uint32(len(groups)))

	for _, g := range groups {
		writeUint32(&buf, uint32(len(g)))
		writeColumn(&buf, encodeIDs(g))
		writeColumn(&buf, encodeDateTimes(g))
		writeColumn(&buf, encodeValues(g))
		writeColumn(&buf, encodeTS(g))
	}

	return buf.Bytes()
}

// decode is encode's inverse. It returns an error wrapping the position and
// reason if the byte stream is truncated or malformed — spec.md §7's
// "I/O error on read: existing day file unreadable or truncated".
func decode(data []byte) ([]RowValue, error) {
	r := bytes.NewReader(data)

	hdr := make([]byte, len(magic))
	if _, err := io.ReadFull(r, hdr); err != nil {
		return nil, errors.Wrap(err, "dayfile: truncated header")
	}
	if string(hdr) != magic {
		return nil, errors.Errorf("dayfile: bad magic %q", hdr)
	}

	numGroups, err := readUint32(r)
	if err != nil {
		return nil, errors.Wrap(err, "dayfile: truncated row-group count")
	}

	var rows []RowValue
	for g := uint32(0); g < numGroups; g++ {
		rowCount, err := readUint32(r)
		if err != nil {
			return nil, errors.Wrapf(err, "dayfile: truncated row group %d count", g)
		}

		ids, err := readColumn(r)
		if err != nil {
			return nil, errors.Wrapf(err, "dayfile: row group %d id column", g)
		}
		dts, err := readColumn(r)
		if err != nil {
			return nil, errors.Wrapf(err, "dayfile: row group %d date_time column", g)
		}
		vals, err := readColumn(r)
		if err != nil {
			return nil, errors.Wrapf(err, "dayfile: row group %d value column", g)
		}
		tss, err := readColumn(r)
		if err != nil {
			return nil, errors.Wrapf(err, "dayfile: row group %d ts column", g)
		}

		group, err := decodeRowGroup(rowCount, ids, dts, vals, tss)
		if err != nil {
			return nil, errors.Wrapf(err, "dayfile: row group %d", g)
		}
		rows = append(rows, group...)
	}

	return rows, nil
}

// chunkRowGroups splits rows into ~targetRowGroupBytes-sized groups,
// preserving order. Always yields at least one (possibly empty) group so an
// empty file still round-trips.
func chunkRowGroups(rows []RowValue) [][]RowValue {
	if len(rows) == 0 {
		return [][]RowValue{{}}
	}
	rowsPerGroup := targetRowGroupBytes / rowWidthEstimate
	if rowsPerGroup < 1 {
		rowsPerGroup = 1
	}

	var groups [][]RowValue
	for i := 0; i < len(rows); i += rowsPerGroup {
		end := i + rowsPerGroup
		if end > len(rows) {
			end = len(rows)
		}
		groups = append(groups, rows[i:end])
	}
	return groups
}

func writeUint32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func readUint32(r io.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

// writeColumn snappy-compresses one column's raw bytes and writes
// [uncompressedLen][compressedLen][compressed bytes].
func writeColumn(buf *bytes.Buffer, raw []byte) {
	compressed := snappy.Encode(nil, raw)
	writeUint32(buf, uint32(len(raw)))
	writeUint32(buf, uint32(len(compressed)))
	buf.Write(compressed)
}

func readColumn(r io.Reader) ([]byte, error) {
	uncompressedLen, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	compressedLen, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	compressed := make([]byte, compressedLen)
	if _, err := io.ReadFull(r, compressed); err != nil {
		return nil, err
	}
	raw, err := snappy.Decode(nil, compressed)
	if err != nil {
		return nil, errors.Wrap(err, "snappy decode")
	}
	if uint32(len(raw)) != uncompressedLen {
		return nil, errors.Errorf("decompressed length %d != recorded %d", len(raw), uncompressedLen)
	}
	return raw, nil
}

func encodeIDs(rows []RowValue) []byte {
	buf := make([]byte, 8*len(rows))
	for i, r := range rows {
		binary.LittleEndian.PutUint64(buf[i*8:], uint64(r.ID))
	}
	return buf
}

func encodeFixedString(s string) [19]byte {
	var b [19]byte
	copy(b[:], s)
	return b
}

func encodeDateTimes(rows []RowValue) []byte {
	buf := make([]byte, 19*len(rows))
	for i, r := range rows {
		b := encodeFixedString(r.DateTime)
		copy(buf[i*19:], b[:])
	}
	return buf
}

func encodeTS(rows []RowValue) []byte {
	buf := make([]byte, 19*len(rows))
	for i, r := range rows {
		b := encodeFixedString(r.TS)
		copy(buf[i*19:], b[:])
	}
	return buf
}

// encodeValues encodes the nullable float64 column as one presence byte
// (0 = null, 1 = present) followed by 8 bytes of float64 bits per row.
func encodeValues(rows []RowValue) []byte {
	buf := make([]byte, 9*len(rows))
	for i, r := range rows {
		off := i * 9
		if r.Value.Valid {
			buf[off] = 1
			binary.LittleEndian.PutUint64(buf[off+1:], math.Float64bits(r.Value.Float64))
		}
	}
	return buf
}

func decodeRowGroup(rowCount uint32, ids, dts, vals, tss []byte) ([]RowValue, error) {
	if uint32(len(ids)) != rowCount*8 {
		return nil, errors.Errorf("id column length %d != %d rows", len(ids), rowCount)
	}
	if uint32(len(dts)) != rowCount*19 {
		return nil, errors.Errorf("date_time column length %d != %d rows", len(dts), rowCount)
	}
	if uint32(len(vals)) != rowCount*9 {
		return nil, errors.Errorf("value column length %d != %d rows", len(vals), rowCount)
	}
	if uint32(len(tss)) != rowCount*19 {
		return nil, errors.Errorf("ts column length %d != %d rows", len(tss), rowCount)
	}

	rows := make([]RowValue, rowCount)
	for i := uint32(0); i < rowCount; i++ {
		rows[i].ID = int64(binary.LittleEndian.Uint64(ids[i*8:]))
		rows[i].DateTime = trimFixedString(dts[i*19 : i*19+19])
		rows[i].TS = trimFixedString(tss[i*19 : i*19+19])

		off := i * 9
		if vals[off] == 1 {
			rows[i].Value = null.Float64From(math.Float64frombits(binary.LittleEndian.Uint64(vals[off+1:])))
		}
	}
	return rows, nil
}

func trimFixedString(b []byte) string {
	n := bytes.IndexByte(b, 0)
	if n < 0 {
		n = len(b)
	}
	return string(b[:n])
}
