package table

import "airsafe_tracker/internal/target"

// DatasetPrefix names published datasets, e.g. "aircraft_satellite".
const DatasetPrefix = "aircraft_"

// Dataset is an immutable copy of one category table.
type Dataset struct {
	Category target.Category
	Targets  []target.Target
	Rows     []target.Row
}

// Label returns the published name of the dataset.
func (d Dataset) Label() string {
	return DatasetPrefix + string(d.Category)
}

// Snapshot is an immutable copy of all tables, in target.Categories order.
type Snapshot struct {
	Datasets []Dataset
}

// Dataset returns the dataset for a category.
func (s Snapshot) Dataset(c target.Category) (Dataset, bool) {
	for _, d := range s.Datasets {
		if d.Category == c {
			return d, true
		}
	}
	return Dataset{}, false
}

// Len returns the total number of targets across datasets.
func (s Snapshot) Len() int {
	n := 0
	for _, d := range s.Datasets {
		n += len(d.Targets)
	}
	return n
}

// Targets returns every target across datasets.
func (s Snapshot) Targets() []target.Target {
	out := make([]target.Target, 0, s.Len())
	for _, d := range s.Datasets {
		out = append(out, d.Targets...)
	}
	return out
}
