// Package model defines the core domain types shared across the validation engine.
package model

// Record is one input row to be validated. Records are immutable once loaded;
// Index is the stable zero-based position in the input file.
type Record struct {
	Index   int               `json:"index"`
	Columns []string          `json:"columns"`
	Values  map[string]string `json:"values"`
}

// NewRecord builds a Record from an ordered header and a row of cells.
// Missing trailing cells become empty strings; extra cells are dropped.
func NewRecord(index int, header []string, cells []string) Record {
	values := make(map[string]string, len(header))
	for i, col := range header {
		if i < len(cells) {
			values[col] = cells[i]
		} else {
			values[col] = ""
		}
	}
	cols := make([]string, len(header))
	copy(cols, header)
	return Record{Index: index, Columns: cols, Values: values}
}

// Value returns the raw value for a field and whether the field exists.
func (r Record) Value(field string) (string, bool) {
	v, ok := r.Values[field]
	return v, ok
}

// Has reports whether the record carries the named field.
func (r Record) Has(field string) bool {
	_, ok := r.Values[field]
	return ok
}
