package decimal

import (
	"github.com/shopspring/decimal"
)

// Zero is decimal zero
var Zero = decimal.Zero

var hundred = decimal.NewFromInt(100)

// FromInt creates decimal from int
func FromInt(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

// Div divides a by b, rounds to 2 places
func Div(a, b decimal.Decimal) decimal.Decimal {
	if b.IsZero() {
		return Zero
	}
	return a.Div(b).Round(2)
}

// Percentage computes part/total*100, rounded to 2 places
func Percentage(part, total int64) decimal.Decimal {
	if total <= 0 {
		return Zero
	}
	return decimal.NewFromInt(part).Mul(hundred).Div(decimal.NewFromInt(total)).Round(2)
}

// CoveredPercentage is the share of a document of size bytes that is covered
// by a signature leaving notCovered bytes outside its byte ranges
func CoveredPercentage(size, notCovered int64) decimal.Decimal {
	if size <= 0 {
		return Zero
	}
	if notCovered < 0 {
		notCovered = 0
	}
	if notCovered > size {
		notCovered = size
	}
	return Percentage(size-notCovered, size)
}

// FormatPercent renders d with two decimals and a percent sign
func FormatPercent(d decimal.Decimal) string {
	return d.StringFixed(2) + "%"
}

// Sum sums a slice of decimals
func Sum(values []decimal.Decimal) decimal.Decimal {
	result := Zero
	for _, v := range values {
		result = result.Add(v)
	}
	return result
}

// Mean averages values, rounded to 2 places
func Mean(values []decimal.Decimal) decimal.Decimal {
	if len(values) == 0 {
		return Zero
	}
	return Div(Sum(values), FromInt(int64(len(values))))
}

// CoverageMean accumulates the covered percentages of several signatures
type CoverageMean struct {
	values []decimal.Decimal
}

// Add records one signature and returns its covered percentage
func (m *CoverageMean) Add(size, notCovered int64) decimal.Decimal {
	p := CoveredPercentage(size, notCovered)
	m.values = append(m.values, p)
	return p
}

// Count returns the number of recorded signatures
func (m *CoverageMean) Count() int {
	return len(m.values)
}

// Mean returns the average covered percentage, zero when nothing was added
func (m *CoverageMean) Mean() decimal.Decimal {
	return Mean(m.values)
}
