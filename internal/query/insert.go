package query

import "github.com/vexarch/framedb/internal/storage"

// InsertInto parses text against t's schema and appends every resulting row
// to t, stopping at the first error. It returns how many rows were
// successfully appended.
func InsertInto(t *storage.Table, text string) (int, error) {
	rows, err := Parse(text, t.Schema())
	if err != nil {
		return 0, err
	}
	for i, row := range rows {
		if err := t.AddElement(row); err != nil {
			return i, err
		}
	}
	return len(rows), nil
}
