// Package cdcevent models one decoded row-based binlog statement.
//
// The three kinds are modelled as a tagged variant over a common structure,
// the same way helpers/mycanal models RowInsertion/RowUpdating/RowDeletion
// over a live replication.RowsEvent: the reader only fills the fields
// relevant to the kind it saw.
package cdcevent

import "gopkg.in/volatiletech/null.v6"

// Kind is the statement kind of a decoded row event.
type Kind int

const (
	// Insert is an `INSERT INTO` statement block.
	Insert Kind = iota
	// Update is an `UPDATE` statement block.
	Update
	// Delete is a `DELETE FROM` statement block.
	Delete
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case Insert:
		return "INSERT"
	case Update:
		return "UPDATE"
	case Delete:
		return "DELETE"
	default:
		return "UNKNOWN"
	}
}

// Event is one completed statement block for the configured table.
//
//   - PK is column @1, always required and non-zero.
//   - DT is column @3, always required, "YYYY-MM-DD HH:MM:SS".
//   - Val is column @4, required for Insert/Update, ignored for Delete.
//   - TS is column @6, required for Insert/Update, ignored for Delete.
type Event struct {
	Kind Kind
	PK   int64
	DT   string
	Val  null.Float64
	TS   uint64
}

// Day returns the calendar-day partition this event belongs to: the first
// 10 characters of DT. No timezone math is performed, per spec.
func (e *Event) Day() string {
	if len(e.DT) < 10 {
		return e.DT
	}
	return e.DT[:10]
}
