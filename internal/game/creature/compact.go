package creature

import (
	"fmt"
	"strconv"
	"strings"
)

// CompactCode renders the lossy display code, for example
// "G1-A2-M2-D30-H85-AC1-GILLS-SWIMMING". Damage and health are rounded to
// whole numbers; use Record for full precision.
func (v *Vitality) CompactCode() string {
	var b strings.Builder
	fmt.Fprintf(&b, "G%d-A%d-M%d-D%.0f-H%.0f-AC%d",
		v.generation, v.adaptability, v.mutationCount,
		v.totalDamage, v.health, v.adaptiveCharges)
	for _, t := range v.traits {
		b.WriteByte('-')
		b.WriteString(t)
	}
	return b.String()
}

var compactPrefixes = [...]string{"G", "A", "M", "D", "H", "AC"}

// ParseCompactCode rebuilds a Vitality from a compact code. Damage and health
// come back as the rounded integers the code carries, so the result is a
// best-effort reconstruction.
//
// Postcondition: Returns a Vitality satisfying every invariant, or an error
// wrapping ErrInvalidArgument.
func ParseCompactCode(code string) (*Vitality, error) {
	tokens := strings.Split(strings.TrimSpace(code), "-")
	if len(tokens) < len(compactPrefixes) {
		return nil, fmt.Errorf("%w: compact code %q has %d fields, want at least %d",
			ErrInvalidArgument, code, len(tokens), len(compactPrefixes))
	}

	var nums [len(compactPrefixes)]float64
	for i, prefix := range compactPrefixes {
		tok := tokens[i]
		digits, ok := strings.CutPrefix(tok, prefix)
		if !ok || digits == "" {
			return nil, fmt.Errorf("%w: compact code %q: field %d must be %s<n>, got %q",
				ErrInvalidArgument, code, i+1, prefix, tok)
		}
		n, err := strconv.ParseUint(digits, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("%w: compact code %q: field %q: %v", ErrInvalidArgument, code, tok, err)
		}
		nums[i] = float64(n)
	}

	rec := Record{
		Generation:      int(nums[0]),
		Adaptability:    int(nums[1]),
		MutationCount:   int(nums[2]),
		TotalDamage:     nums[3],
		Health:          nums[4],
		AdaptiveCharges: int(nums[5]),
		Traits:          tokens[len(compactPrefixes):],
	}
	rec.Dead = rec.Health == 0
	return FromRecord(rec)
}
