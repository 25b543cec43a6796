package main

import (
	"fmt"
	"strings"

	"github.com/gary322/flashbets-sub011/pkg/fixedpoint"
	"github.com/shopspring/decimal"
)

var bpsDecimal = decimal.NewFromInt(fixedpoint.MaxBps)

// parseFixed parses a decimal string like "1.5". An empty string is zero.
func parseFixed(s string) (fixedpoint.Fixed, error) {
	if s == "" {
		return fixedpoint.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return fixedpoint.Zero, fmt.Errorf("invalid number %q: %w", s, err)
	}
	return fixedpoint.FromDecimal(d)
}

// parseFixedList parses a comma separated list of decimals.
func parseFixedList(s string) ([]fixedpoint.Fixed, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	list := make([]fixedpoint.Fixed, 0, len(parts))
	for _, p := range parts {
		f, err := parseFixed(strings.TrimSpace(p))
		if err != nil {
			return nil, err
		}
		list = append(list, f)
	}
	return list, nil
}

// parsePricesBps parses a comma separated list of probabilities like
// "0.6,0.4" into basis points.
func parsePricesBps(s string) ([]uint64, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	prices := make([]uint64, 0, len(parts))
	for _, p := range parts {
		d, err := decimal.NewFromString(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("invalid price %q: %w", p, err)
		}
		if d.Sign() <= 0 || d.GreaterThan(decimal.NewFromInt(1)) {
			return nil, fmt.Errorf("price %q must be in range (0, 1]", p)
		}
		prices = append(prices, uint64(d.Mul(bpsDecimal).Round(0).IntPart()))
	}
	return prices, nil
}

// parseSuccessor parses a successor given as "verseID:positionID:...".
func parseSuccessor(s string) (string, []string, error) {
	parts := strings.Split(s, ":")
	if len(parts) < 1 || parts[0] == "" {
		return "", nil, fmt.Errorf("invalid successor %q", s)
	}
	positions := make([]string, 0, len(parts)-1)
	for _, p := range parts[1:] {
		if p == "" {
			return "", nil, fmt.Errorf("invalid successor %q", s)
		}
		positions = append(positions, p)
	}
	return parts[0], positions, nil
}
