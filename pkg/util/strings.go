package util

import (
	"math"
	"strconv"
	"strings"
)

// ParseIntDefault parses string to int or returns default if empty/invalid.
func ParseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return def
	}
	return v
}

// ParseFloatOrNaN parses a numeric cell; empty cells and "nan"/"null" read as NaN.
func ParseFloatOrNaN(s string) (float64, error) {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "", "nan", "null", "na":
		return math.NaN(), nil
	}
	return strconv.ParseFloat(s, 64)
}

// SplitInts parses a comma separated list, skipping blanks and entries that are not integers.
func SplitInts(s string) []int {
	var out []int
	for _, part := range strings.Split(s, ",") {
		if v := ParseIntDefault(strings.TrimSpace(part), math.MinInt); v != math.MinInt {
			out = append(out, v)
		}
	}
	return out
}
