package coverage

import (
	"fmt"
	"sort"
)

// Interval is a closed range of byte offsets [Lo, Hi]
type Interval struct {
	Lo int64 `json:"lo"`
	Hi int64 `json:"hi"`
}

// Len returns the number of offsets in the interval
func (i Interval) Len() int64 {
	return i.Hi - i.Lo + 1
}

// IntervalSet is a union of closed intervals kept sorted and merged
type IntervalSet struct {
	intervals []Interval
}

// NewIntervalSet creates an empty set
func NewIntervalSet() *IntervalSet {
	return &IntervalSet{
		intervals: make([]Interval, 0, 4),
	}
}

// Add inserts [lo, hi] and merges it with overlapping or adjacent intervals.
// Passing lo > hi is a programming error and panics.
func (s *IntervalSet) Add(lo, hi int64) {
	if lo > hi {
		panic(fmt.Sprintf("coverage: invalid interval [%d, %d]", lo, hi))
	}

	s.intervals = append(s.intervals, Interval{Lo: lo, Hi: hi})
	s.normalize()
}

func (s *IntervalSet) normalize() {
	sort.Slice(s.intervals, func(i, j int) bool {
		if s.intervals[i].Lo != s.intervals[j].Lo {
			return s.intervals[i].Lo < s.intervals[j].Lo
		}
		return s.intervals[i].Hi < s.intervals[j].Hi
	})

	merged := s.intervals[:0]
	for _, cur := range s.intervals {
		if n := len(merged); n > 0 && merged[n-1].Hi+1 >= cur.Lo {
			if cur.Hi > merged[n-1].Hi {
				merged[n-1].Hi = cur.Hi
			}
			continue
		}
		merged = append(merged, cur)
	}
	s.intervals = merged
}

// IsCovered reports whether every offset in [lo, hi] belongs to the set
func (s *IntervalSet) IsCovered(lo, hi int64) bool {
	if lo > hi {
		return true
	}
	// Intervals are merged, so a covering interval must contain the whole range.
	for _, iv := range s.intervals {
		if iv.Lo <= lo && hi <= iv.Hi {
			return true
		}
	}
	return false
}

// TotalLength returns the number of distinct offsets in the set
func (s *IntervalSet) TotalLength() int64 {
	var total int64
	for _, iv := range s.intervals {
		total += iv.Len()
	}
	return total
}

// Intervals returns a copy of the merged intervals in ascending order
func (s *IntervalSet) Intervals() []Interval {
	out := make([]Interval, len(s.intervals))
	copy(out, s.intervals)
	return out
}

// Gaps returns the sub-ranges of [lo, hi] not covered by the set
func (s *IntervalSet) Gaps(lo, hi int64) []Interval {
	var gaps []Interval
	next := lo
	for _, iv := range s.intervals {
		if iv.Hi < next {
			continue
		}
		if iv.Lo > hi {
			break
		}
		if iv.Lo > next {
			gaps = append(gaps, Interval{Lo: next, Hi: iv.Lo - 1})
		}
		next = iv.Hi + 1
		if next > hi {
			return gaps
		}
	}
	if next <= hi {
		gaps = append(gaps, Interval{Lo: next, Hi: hi})
	}
	return gaps
}
