package aspath

import (
	"fmt"
	"io"
)

// Diff is a source whose AS path changed between two snapshots.
type Diff struct {
	SourceID string
	Old      Path
	New      Path
}

// Compare walks the source IDs of then in order and returns the ones whose
// path differs in now. Sources missing from either side are not reported.
func Compare(then, now *Snapshot) []Diff {
	var diffs []Diff
	for _, id := range then.SourceIDs() {
		newPath, ok := now.Get(id)
		if !ok {
			continue
		}
		oldPath, _ := then.Get(id)
		if oldPath.Equal(newPath) {
			continue
		}
		diffs = append(diffs, Diff{SourceID: id, Old: oldPath, New: newPath})
	}
	return diffs
}

const columnWidth = 35

// Report writes one line per diff with the old and new paths right-aligned
// in fixed-width columns.
func Report(w io.Writer, diffs []Diff) error {
	for _, d := range diffs {
		if _, err := fmt.Fprintf(w, "%*s --> %*s\n", columnWidth, d.Old, columnWidth, d.New); err != nil {
			return fmt.Errorf("failed to write report: %w", err)
		}
	}
	return nil
}
