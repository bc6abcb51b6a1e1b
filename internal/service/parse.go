package service

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	queryWeightRe = regexp.MustCompile(`(?i)(\d+(?:[.,]\d+)?)\s*(kg|g)?\b`)
	weightOnlyRe  = regexp.MustCompile(`(?i)^\s*(\d+(?:[.,]\d+)?)\s*(kg|g)?\s*$`)
	gramsPerKg    = decimal.NewFromInt(1000)
)

// Query is a parsed free-text request such as "2kg Australie".
type Query struct {
	Destination string
	WeightKg    decimal.Decimal
}

// ParseQuery extracts the first number (optionally suffixed kg or g) as the
// weight and treats the rest of the text as the destination.
func ParseQuery(text string) (Query, error) {
	loc := queryWeightRe.FindStringSubmatchIndex(text)
	if loc == nil {
		return Query{}, fmt.Errorf("%w: no weight in %q", ErrInvalidWeight, text)
	}
	weight, err := toKg(text[loc[2]:loc[3]], submatch(text, loc, 2))
	if err != nil {
		return Query{}, err
	}
	rest := text[:loc[0]] + " " + text[loc[1]:]
	dest := strings.Join(strings.Fields(rest), " ")
	if dest == "" {
		return Query{}, ErrEmptyDestination
	}
	return Query{Destination: dest, WeightKg: weight}, nil
}

// ParseWeight parses "2", "2kg", "0,5 kg" or "500g" into kilograms.
func ParseWeight(s string) (decimal.Decimal, error) {
	m := weightOnlyRe.FindStringSubmatch(s)
	if m == nil {
		return decimal.Decimal{}, fmt.Errorf("%w: %q (use 2kg, 5 or 500g)", ErrInvalidWeight, s)
	}
	return toKg(m[1], m[2])
}

func submatch(text string, loc []int, group int) string {
	if loc[2*group] < 0 {
		return ""
	}
	return text[loc[2*group]:loc[2*group+1]]
}

func toKg(number, unit string) (decimal.Decimal, error) {
	w, err := decimal.NewFromString(strings.Replace(number, ",", ".", 1))
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: %q", ErrInvalidWeight, number)
	}
	if strings.EqualFold(unit, "g") {
		w = w.Div(gramsPerKg)
	}
	return w, nil
}
