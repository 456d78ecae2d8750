package trend

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNumeric(t *testing.T) {
	testCases := []struct {
		symbol string
		want   float64
		ok     bool
	}{
		{"5", 5, true},
		{" 3 ", 3, true},
		{"4+", 4.5, true},
		{"4-", 3.5, true},
		{"1", 1, true},
		{"np", 0, false},
		{"+", 0, false},
		{"-", 0, false},
		{"", 0, false},
		{"bz", 0, false},
	}

	for _, tc := range testCases {
		t.Run(tc.symbol, func(t *testing.T) {
			got, ok := Numeric(tc.symbol)
			assert.Equal(t, tc.ok, ok)
			assert.InDelta(t, tc.want, got, 1e-9)
		})
	}
}

func TestAnalyze(t *testing.T) {
	testCases := []struct {
		name    string
		symbols []string
		want    Direction
		ok      bool
	}{
		{"declining", []string{"3", "3", "2"}, Decline, true},
		{"improving", []string{"3", "4", "5"}, Improving, true},
		{"modifiers cancel out", []string{"4", "4+", "4-"}, Stable, true},
		{"half point is stable", []string{"4", "2", "4+"}, Stable, true},
		{"only last three count", []string{"1", "1", "5", "5", "5"}, Stable, true},
		{"too few", []string{"5", "4"}, "", false},
		{"non numeric in window", []string{"5", "np", "4"}, "", false},
		{"non numeric outside window", []string{"np", "2", "3", "4"}, Improving, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rec, ok := Analyze(tc.symbols)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.want, rec.Direction)
			if ok {
				assert.Equal(t, tc.symbols[len(tc.symbols)-3:], rec.Recent)
			}
		})
	}
}

func TestAnalyzeIsDeterministic(t *testing.T) {
	in := []string{"2", "3", "5"}
	first, _ := Analyze(in)
	for i := 0; i < 10; i++ {
		again, _ := Analyze(in)
		assert.Equal(t, first, again)
	}
	assert.Equal(t, []string{"2", "3", "5"}, in)
}
