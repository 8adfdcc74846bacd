// Package collapse implements the Event Collapser: the deterministic,
// per-(day, pk) reduction of a stream of row events into at most one net
// effect per key, as specified in spec.md §4.2.
//
// Grounded on original_source/consolidate.cpp's process_block (the
// INSERT/UPDATE/DELETE map-mutation rules) and
// original_source/sync_yesterday_events.py's collect_and_consolidate_changes
// (the same rules against a per-run dict), generalized here to per-day maps.
package collapse

import (
	"sort"

	"github.com/barshanhassan/enexory-parquet-export/internal/cdcevent"
)

type tag int

const (
	tagInsert tag = iota
	tagUpdate
)

type upsertEntry struct {
	tag   tag
	event *cdcevent.Event
}

type dayState struct {
	upserts map[int64]*upsertEntry
	deletes map[int64]struct{}
}

func newDayState() *dayState {
	return &dayState{
		upserts: make(map[int64]*upsertEntry),
		deletes: make(map[int64]struct{}),
	}
}

// Collapser accumulates row events and reduces them to a per-day effect set.
// It is pure in-memory and not safe for concurrent use — the reader feeds it
// single-threaded, per spec.md §5.
type Collapser struct {
	days map[string]*dayState
}

// New creates an empty Collapser. daysHint is a size hint (spec.md §5: "a real
// batch may touch ~100 days") used to pre-reserve the day map.
func New(daysHint int) *Collapser {
	if daysHint <= 0 {
		daysHint = 16
	}
	return &Collapser{
		days: make(map[string]*dayState, daysHint),
	}
}

// Apply folds one event into the collapser's state, per the reduction table
// in spec.md §4.2. The day used for routing is the event's own DT, not any
// previously stored day for the same pk.
func (c *Collapser) Apply(e *cdcevent.Event) {
	ds, ok := c.days[e.Day()]
	if !ok {
		ds = newDayState()
		c.days[e.Day()] = ds
	}

	switch e.Kind {
	case cdcevent.Insert:
		delete(ds.deletes, e.PK)
		ds.upserts[e.PK] = &upsertEntry{tag: tagInsert, event: e}

	case cdcevent.Update:
		if prior, exists := ds.upserts[e.PK]; exists {
			t := tagUpdate
			if prior.tag == tagInsert {
				t = tagInsert
			}
			ds.upserts[e.PK] = &upsertEntry{tag: t, event: e}
			return
		}
		// Either no prior state, or a pending same-batch delete: an UPDATE
		// against a pending delete undeletes the row (spec.md §4.2's
		// documented policy for this otherwise-undefined case).
		delete(ds.deletes, e.PK)
		ds.upserts[e.PK] = &upsertEntry{tag: tagUpdate, event: e}

	case cdcevent.Delete:
		if prior, exists := ds.upserts[e.PK]; exists {
			delete(ds.upserts, e.PK)
			if prior.tag == tagUpdate {
				// The row may exist on disk from a previous batch; a DELETE
				// must still be emitted to remove it there.
				ds.deletes[e.PK] = struct{}{}
			}
			// tagInsert: row never existed on disk, erase without a delete.
			return
		}
		ds.deletes[e.PK] = struct{}{}
	}
}

// Days returns the sorted list of calendar days touched so far.
func (c *Collapser) Days() []string {
	days := make([]string, 0, len(c.days))
	for d := range c.days {
		days = append(days, d)
	}
	sort.Strings(days)
	return days
}

// DayEffect is one day's net effect set: rows to insert (upsert, tag=INSERT),
// rows to update (upsert only if the pk preexists, tag=UPDATE), and pks to
// delete.
type DayEffect struct {
	Inserts map[int64]*cdcevent.Event
	Updates map[int64]*cdcevent.Event
	Deletes map[int64]struct{}
}

// Effect returns the net effect set for one day. It never returns nil; a day
// never seen by Apply yields an effect with all-empty maps.
func (c *Collapser) Effect(day string) DayEffect {
	ds, ok := c.days[day]
	if !ok {
		return DayEffect{
			Inserts: map[int64]*cdcevent.Event{},
			Updates: map[int64]*cdcevent.Event{},
			Deletes: map[int64]struct{}{},
		}
	}

	inserts := make(map[int64]*cdcevent.Event)
	updates := make(map[int64]*cdcevent.Event)
	for pk, entry := range ds.upserts {
		if entry.tag == tagInsert {
			inserts[pk] = entry.event
		} else {
			updates[pk] = entry.event
		}
	}

	deletes := make(map[int64]struct{}, len(ds.deletes))
	for pk := range ds.deletes {
		deletes[pk] = struct{}{}
	}

	return DayEffect{Inserts: inserts, Updates: updates, Deletes: deletes}
}
