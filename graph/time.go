// Package graph provides the core time-series graph evaluation engine for hgraph.
package graph

import "time"

// Engine time is an ordinary time.Time in UTC. The engine only relies on the
// invariants below, not on any particular epoch:
//
//   - MinDT is the smallest engine time. The per-node schedule vector is
//     initialised to it, so it doubles as "nothing pending".
//   - MinST is the earliest time an engine run may start at.
//   - MaxDT is the "never" sentinel used for the proposed next engine time
//     when no node has announced interest in the future.
//   - MinTD is the smallest representable positive engine duration;
//     t.Add(MinTD) is the next distinguishable instant after t.
var (
	// MinDT is the minimum representable engine time.
	MinDT = time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)

	// MaxDT is the sentinel engine time meaning "never".
	MaxDT = time.Date(9999, 12, 31, 23, 59, 59, 999999000, time.UTC)

	// MinST is the earliest permitted engine start time.
	MinST = MinDT.Add(MinTD)
)

// MinTD is the smallest representable positive engine duration.
const MinTD = time.Microsecond

// minTime returns the earlier of two engine times.
func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}

// maxTime returns the later of two engine times.
func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}
