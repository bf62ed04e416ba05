package table

import (
	"strconv"
	"strings"
)

// NotFound signals that no column matched. Absence is a normal outcome the
// caller reports, not a fault.
const NotFound = -1

const (
	maxNumericScan = 10 // columns scanned in numeric mode
	numericSample  = 10 // non-empty cells sampled per candidate column
)

// Resolve returns the position of the first header matching any candidate,
// comparing case-insensitively after trimming whitespace.
func Resolve(headers []string, candidates []string) int {
	for idx, h := range headers {
		got := strings.ToLower(strings.TrimSpace(h))
		for _, want := range candidates {
			if got == strings.ToLower(want) {
				return idx
			}
		}
	}
	return NotFound
}

// ResolveNumeric locates a quantity-like column: the header must match a
// candidate within the first 10 columns, and a sample of up to 10 non-empty
// cells must contain at least one numeric value. The sample check keeps a
// text column that merely shares the header name from winning.
func ResolveNumeric(t *Table, candidates []string) int {
	limit := len(t.Headers)
	if limit > maxNumericScan {
		limit = maxNumericScan
	}
	for idx := 0; idx < limit; idx++ {
		got := strings.ToLower(strings.TrimSpace(t.Headers[idx]))
		matched := false
		for _, want := range candidates {
			if got == strings.ToLower(want) {
				matched = true
				break
			}
		}
		if !matched {
			continue
		}
		if columnLooksNumeric(t, idx) {
			return idx
		}
	}
	return NotFound
}

func columnLooksNumeric(t *Table, col int) bool {
	sampled := 0
	for row := 0; row < t.Len() && sampled < numericSample; row++ {
		v := strings.TrimSpace(t.Cell(row, col))
		if v == "" {
			continue
		}
		sampled++
		if _, err := strconv.ParseFloat(v, 64); err == nil {
			return true
		}
	}
	return false
}

// ParseQuantity interprets a quantity cell; blank or unparsable cells count
// as zero.
func ParseQuantity(v string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0
	}
	return f
}
