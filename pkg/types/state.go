package types

// Tier is a coarse retention class. Tiers are ordered SHORT < MEDIUM < LONG.
type Tier string

const (
	TierShort  Tier = "short_term"
	TierMedium Tier = "medium_term"
	TierLong   Tier = "long_term"
)

// ValidTiers contains all tiers in ascending order.
var ValidTiers = []Tier{TierShort, TierMedium, TierLong}

// Rank returns the position of t in the tier order, or -1 if t is unknown.
func (t Tier) Rank() int {
	for i, v := range ValidTiers {
		if v == t {
			return i
		}
	}
	return -1
}

// IsValid reports whether t is a known tier.
func (t Tier) IsValid() bool {
	return t.Rank() >= 0
}

// Up returns the next tier up, or t itself at LONG_TERM.
func (t Tier) Up() Tier {
	r := t.Rank()
	if r < 0 || r == len(ValidTiers)-1 {
		return t
	}
	return ValidTiers[r+1]
}

// Down returns the next tier down, or t itself at SHORT_TERM.
func (t Tier) Down() Tier {
	r := t.Rank()
	if r <= 0 {
		return t
	}
	return ValidTiers[r-1]
}

// MaxTier returns the higher of a and b.
func MaxTier(a, b Tier) Tier {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// IsValidTierTransition validates a transition made by a single aging sweep.
//
// Valid transitions:
//
//	any -> same tier
//	short -> medium, medium -> long   (promotion, one step)
//	long -> medium, medium -> short   (demotion, one step)
func IsValidTierTransition(from, to Tier) bool {
	if !from.IsValid() || !to.IsValid() {
		return false
	}
	diff := to.Rank() - from.Rank()
	return diff >= -1 && diff <= 1
}
