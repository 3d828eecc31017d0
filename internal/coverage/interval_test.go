package coverage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIntervalSet_MergeAdjacent(t *testing.T) {
	s := NewIntervalSet()
	s.Add(0, 10)
	s.Add(11, 20)

	assert.Equal(t, []Interval{{Lo: 0, Hi: 20}}, s.Intervals())
	assert.True(t, s.IsCovered(0, 20))
	assert.Equal(t, int64(21), s.TotalLength())
}

func TestIntervalSet_MergeOverlappingOutOfOrder(t *testing.T) {
	s := NewIntervalSet()
	s.Add(50, 60)
	s.Add(0, 5)
	s.Add(55, 70)
	s.Add(3, 8)

	assert.Equal(t, []Interval{{Lo: 0, Hi: 8}, {Lo: 50, Hi: 70}}, s.Intervals())
	assert.Equal(t, int64(9+21), s.TotalLength())
}

func TestIntervalSet_IsCovered(t *testing.T) {
	tests := []struct {
		name      string
		intervals []Interval
		lo, hi    int64
		want      bool
	}{
		{"empty set", nil, 0, 9, false},
		{"exact", []Interval{{0, 9}}, 0, 9, true},
		{"gap in middle", []Interval{{0, 3}, {5, 9}}, 0, 9, false},
		{"gap at end", []Interval{{0, 8}}, 0, 9, false},
		{"gap at start", []Interval{{1, 9}}, 0, 9, false},
		{"filled gap", []Interval{{0, 3}, {4, 4}, {5, 9}}, 0, 9, true},
		{"sub range", []Interval{{0, 100}}, 10, 20, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewIntervalSet()
			for _, iv := range tt.intervals {
				s.Add(iv.Lo, iv.Hi)
			}
			assert.Equal(t, tt.want, s.IsCovered(tt.lo, tt.hi))
		})
	}
}

func TestIntervalSet_SinglePoint(t *testing.T) {
	s := NewIntervalSet()
	s.Add(7, 7)

	assert.True(t, s.IsCovered(7, 7))
	assert.Equal(t, int64(1), s.TotalLength())
}

func TestIntervalSet_InvalidIntervalPanics(t *testing.T) {
	s := NewIntervalSet()
	assert.Panics(t, func() { s.Add(5, 4) })
}

func TestIntervalSet_Gaps(t *testing.T) {
	s := NewIntervalSet()
	s.Add(0, 9)
	s.Add(20, 29)

	assert.Equal(t, []Interval{{Lo: 10, Hi: 19}, {Lo: 30, Hi: 49}}, s.Gaps(0, 49))
	assert.Empty(t, s.Gaps(0, 9))
	assert.Equal(t, []Interval{{Lo: 0, Hi: 4}}, NewIntervalSet().Gaps(0, 4))
}
