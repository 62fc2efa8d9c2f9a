// Package table folds targets into per-category tables keyed by ICAO address.
package table

import (
	"errors"

	"airsafe_tracker/internal/target"
)

// ErrUnknownCategory is returned when a target's collection type selects no table.
var ErrUnknownCategory = errors.New("unknown collection type")

// Table is an ordered set of targets, at most one per ICAO address. Order is
// the order of first appearance.
type Table struct {
	targets []target.Target
	index   map[string]int
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{index: make(map[string]int)}
}

// Upsert replaces the target with the same ICAO address in place, or appends.
// Returns true if the target was appended.
func (t *Table) Upsert(tg target.Target) bool {
	if i, ok := t.index[tg.ICAOAddress]; ok {
		t.targets[i] = tg
		return false
	}
	t.index[tg.ICAOAddress] = len(t.targets)
	t.targets = append(t.targets, tg)
	return true
}

// Len returns the number of tracked aircraft.
func (t *Table) Len() int { return len(t.targets) }

// Get returns the target for an ICAO address.
func (t *Table) Get(icao string) (target.Target, bool) {
	i, ok := t.index[icao]
	if !ok {
		return target.Target{}, false
	}
	return t.targets[i], true
}

// IndexOf returns the position of an ICAO address, or -1.
func (t *Table) IndexOf(icao string) int {
	if i, ok := t.index[icao]; ok {
		return i
	}
	return -1
}

// Targets returns a copy of the table contents in order.
func (t *Table) Targets() []target.Target {
	out := make([]target.Target, len(t.targets))
	copy(out, t.targets)
	return out
}

// Rows returns the table projected onto target.Columns.
func (t *Table) Rows() []target.Row {
	rows := make([]target.Row, len(t.targets))
	for i := range t.targets {
		rows[i] = t.targets[i].Row()
	}
	return rows
}

// Tables holds one table per known category. It is the ingestion state of a
// single pipeline and is not safe for concurrent use.
type Tables struct {
	byCategory map[target.Category]*Table
}

// New creates empty tables for every known category.
func New() *Tables {
	ts := &Tables{byCategory: make(map[target.Category]*Table, len(target.Categories))}
	for _, c := range target.Categories {
		ts.byCategory[c] = NewTable()
	}
	return ts
}

// Upsert routes a target to its category table. Returns true if the target
// was appended, false if it replaced an existing entry.
func (ts *Tables) Upsert(tg target.Target) (bool, error) {
	t, ok := ts.byCategory[tg.CollectionType]
	if !ok {
		return false, ErrUnknownCategory
	}
	return t.Upsert(tg), nil
}

// Table returns the table for a category, or nil if unknown.
func (ts *Tables) Table(c target.Category) *Table {
	return ts.byCategory[c]
}

// Empty reports whether every table is empty.
func (ts *Tables) Empty() bool {
	for _, t := range ts.byCategory {
		if t.Len() > 0 {
			return false
		}
	}
	return true
}

// Lookup finds an aircraft in any table.
func (ts *Tables) Lookup(icao string) (target.Target, bool) {
	for _, c := range target.Categories {
		if tg, ok := ts.byCategory[c].Get(icao); ok {
			return tg, true
		}
	}
	return target.Target{}, false
}

// Snapshot copies the current tables for publication.
func (ts *Tables) Snapshot() Snapshot {
	s := Snapshot{Datasets: make([]Dataset, 0, len(target.Categories))}
	for _, c := range target.Categories {
		t := ts.byCategory[c]
		s.Datasets = append(s.Datasets, Dataset{
			Category: c,
			Targets:  t.Targets(),
			Rows:     t.Rows(),
		})
	}
	return s
}
