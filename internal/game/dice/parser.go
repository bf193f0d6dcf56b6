package dice

import (
	"fmt"
	"strconv"
	"strings"
)

// Limits on a single expression. Roll allocates one slot per die, and
// expressions also arrive from Lua scripts.
const (
	MaxCount = 100
	MaxSides = 1000
)

// Expression is a parsed "NdS+M" hazard damage expression.
//
// Invariant: 1 <= Count <= MaxCount and 2 <= Sides <= MaxSides after a
// successful Parse.
type Expression struct {
	Raw      string
	Count    int
	Sides    int
	Modifier int
}

// Parse parses "d20", "2d10", "3d6+4" or "1d8-1".
//
// Postcondition: Returns a valid Expression or a descriptive error.
func Parse(expr string) (Expression, error) {
	raw := strings.TrimSpace(expr)
	if raw == "" {
		return Expression{}, fmt.Errorf("dice: empty expression")
	}
	s := strings.ToLower(raw)

	countPart, rest, ok := strings.Cut(s, "d")
	if !ok {
		return Expression{}, fmt.Errorf("dice: missing 'd' in expression %q", raw)
	}

	count := 1
	if countPart != "" {
		n, err := strconv.Atoi(countPart)
		if err != nil || n < 1 {
			return Expression{}, fmt.Errorf("dice: invalid die count in %q", raw)
		}
		if n > MaxCount {
			return Expression{}, fmt.Errorf("dice: die count %d in %q exceeds %d", n, raw, MaxCount)
		}
		count = n
	}

	sidesPart, modPart := rest, ""
	if i := strings.IndexAny(rest, "+-"); i >= 0 {
		sidesPart, modPart = rest[:i], rest[i:]
	}

	sides, err := strconv.Atoi(sidesPart)
	if err != nil || sides < 2 {
		return Expression{}, fmt.Errorf("dice: invalid die sides in %q", raw)
	}
	if sides > MaxSides {
		return Expression{}, fmt.Errorf("dice: die sides %d in %q exceed %d", sides, raw, MaxSides)
	}

	modifier := 0
	if modPart != "" {
		modifier, err = strconv.Atoi(modPart)
		if err != nil {
			return Expression{}, fmt.Errorf("dice: invalid modifier in %q: %w", raw, err)
		}
	}

	return Expression{Raw: raw, Count: count, Sides: sides, Modifier: modifier}, nil
}
