// Package trend classifies the recent direction of a subject's grades.
package trend

import (
	"strconv"
	"strings"
)

// Direction of a grade series.
type Direction string

const (
	Decline   Direction = "DECLINE"
	Improving Direction = "IMPROVING"
	Stable    Direction = "STABLE"
)

// Window is the number of most recent grades a trend is computed over.
const Window = 3

const threshold = 0.5

// Record is the derived trend of one subject.
type Record struct {
	Direction Direction `json:"direction"`
	Recent    []string  `json:"recent"`
}

// Numeric converts a grade symbol such as "4", "4+" or "5-" to a number.
// A trailing "+" adds 0.5 and a trailing "-" subtracts 0.5. Symbols without a
// leading number ("np", "+", "bz") are not numeric.
func Numeric(symbol string) (float64, bool) {
	s := strings.TrimSpace(symbol)
	mod := 0.0
	switch {
	case strings.HasSuffix(s, "+"):
		mod = threshold
		s = strings.TrimSuffix(s, "+")
	case strings.HasSuffix(s, "-"):
		mod = -threshold
		s = strings.TrimSuffix(s, "-")
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, false
	}
	return float64(n) + mod, true
}

// Analyze computes the trend over the last three symbols of a chronological
// series. It reports false when there are fewer than three symbols or when
// any of the last three is not numeric; callers keep the previous trend then.
func Analyze(symbols []string) (Record, bool) {
	if len(symbols) < Window {
		return Record{}, false
	}
	recent := make([]string, Window)
	copy(recent, symbols[len(symbols)-Window:])

	values := make([]float64, 0, Window)
	for _, s := range recent {
		if v, ok := Numeric(s); ok {
			values = append(values, v)
		}
	}
	if len(values) < Window {
		return Record{}, false
	}

	delta := values[len(values)-1] - values[0]
	dir := Stable
	switch {
	case delta < -threshold:
		dir = Decline
	case delta > threshold:
		dir = Improving
	}
	return Record{Direction: dir, Recent: recent}, true
}
