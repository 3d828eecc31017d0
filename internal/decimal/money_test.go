package decimal_test

import (
	"testing"

	dec "github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/rezonia/pdfsig-verifier/internal/decimal"
)

func TestFromInt(t *testing.T) {
	d := decimal.FromInt(8192)
	assert.True(t, d.Equal(dec.NewFromInt(8192)))
}

func TestDiv(t *testing.T) {
	a := dec.NewFromInt(100)
	b := dec.NewFromInt(3)
	result := decimal.Div(a, b)
	assert.True(t, result.Equal(dec.RequireFromString("33.33")))

	// Division by zero returns zero
	result = decimal.Div(a, dec.Zero)
	assert.True(t, result.IsZero())
}

func TestPercentage(t *testing.T) {
	tests := []struct {
		part, total int64
		expected    string
	}{
		{50, 100, "50"},
		{1, 3, "33.33"},
		{2, 3, "66.67"},
		{0, 100, "0"},
		{5, 0, "0"},
	}

	for _, tt := range tests {
		result := decimal.Percentage(tt.part, tt.total)
		assert.True(t, result.Equal(dec.RequireFromString(tt.expected)),
			"Percentage(%d, %d) = %s, want %s", tt.part, tt.total, result, tt.expected)
	}
}

func TestCoveredPercentage(t *testing.T) {
	tests := []struct {
		name       string
		size       int64
		notCovered int64
		expected   string
	}{
		{"fully covered", 20000, 0, "100"},
		{"incremental update", 20000, 50, "99.75"},
		{"nothing covered", 20000, 20000, "0"},
		{"gap larger than document", 10, 20, "0"},
		{"negative gap", 10, -1, "100"},
		{"empty document", 0, 0, "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := decimal.CoveredPercentage(tt.size, tt.notCovered)
			assert.True(t, result.Equal(dec.RequireFromString(tt.expected)), "got %s", result)
		})
	}
}

func TestFormatPercent(t *testing.T) {
	assert.Equal(t, "99.75%", decimal.FormatPercent(decimal.CoveredPercentage(20000, 50)))
	assert.Equal(t, "100.00%", decimal.FormatPercent(decimal.Percentage(1, 1)))
}

func TestSum(t *testing.T) {
	values := []dec.Decimal{
		dec.NewFromInt(100),
		dec.NewFromInt(200),
		dec.NewFromInt(300),
	}
	result := decimal.Sum(values)
	assert.True(t, result.Equal(dec.NewFromInt(600)))

	// Empty slice
	result = decimal.Sum([]dec.Decimal{})
	assert.True(t, result.IsZero())
}

func TestMean(t *testing.T) {
	values := []dec.Decimal{
		dec.NewFromInt(100),
		dec.RequireFromString("99.75"),
	}
	assert.True(t, decimal.Mean(values).Equal(dec.RequireFromString("99.88")))
	assert.True(t, decimal.Mean(nil).IsZero())
}

func TestCoverageMean(t *testing.T) {
	var m decimal.CoverageMean
	assert.Equal(t, 0, m.Count())
	assert.True(t, m.Mean().IsZero())

	assert.Equal(t, "100.00%", decimal.FormatPercent(m.Add(2000, 0)))
	assert.Equal(t, "99.75%", decimal.FormatPercent(m.Add(2000, 5)))
	assert.Equal(t, 2, m.Count())
	assert.Equal(t, "99.88%", decimal.FormatPercent(m.Mean()))

	// a field covering nothing drags the mean down
	m.Add(1000, 1000)
	assert.Equal(t, "66.58%", decimal.FormatPercent(m.Mean()))
}
