// Copyright (c) 2025 Lattice Data. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package sqlmap

import "math"

// RowBounds requests a client-side offset/limit window over a query's
// result rows, the "row bounds" reserved parameter type spec §4.7's
// parameter-name resolver skips when building a mapper method's
// canonicalized parameter object (it is threaded separately, not as a
// property of the parameter object).
type RowBounds struct {
	Offset int
	Limit  int
}

// NoRowOffset and NoRowLimit are the sentinel values a nil or
// zero-value RowBounds is treated as, matching MyBatis's own
// RowBounds.NO_ROW_OFFSET/NO_ROW_LIMIT defaults: no rows skipped, no
// cap on how many are returned.
const (
	NoRowOffset = 0
	NoRowLimit  = math.MaxInt32
)

// effectiveBounds normalizes a possibly-nil RowBounds (or one left at
// its Go zero value) into concrete offset/limit values.
func effectiveBounds(rb *RowBounds) (offset, limit int) {
	if rb == nil {
		return NoRowOffset, NoRowLimit
	}
	limit = rb.Limit
	if limit == 0 {
		limit = NoRowLimit
	}
	return rb.Offset, limit
}

// skipRows discards the first n rows of an open *sql.Rows without
// projecting them, matching MyBatis's DefaultResultSetHandler.skipRows
// for the non-scrollable ResultSet case: RowBounds.Offset is applied
// by advancing the cursor, not by a driver-level OFFSET clause.
func skipRows(rows interface{ Next() bool }, n int) {
	for i := 0; i < n; i++ {
		if !rows.Next() {
			return
		}
	}
}
