package guide

import "fmt"

// Tier controls how much an individual hint is allowed to reveal. Tiers
// are ordered from least to most revealing.
type Tier int

const (
	TierNudge Tier = iota + 1
	TierDirectional
	TierTechnique
	TierExplicit
)

// ParseTier maps a tier name or level number to a Tier.
func ParseTier(s string) (Tier, error) {
	switch s {
	case "nudge", "1":
		return TierNudge, nil
	case "directional", "2":
		return TierDirectional, nil
	case "technique", "3":
		return TierTechnique, nil
	case "explicit", "4":
		return TierExplicit, nil
	default:
		return 0, fmt.Errorf("unknown hint tier %q (want nudge, directional, technique, or explicit)", s)
	}
}

func (t Tier) String() string {
	switch t {
	case TierNudge:
		return "nudge"
	case TierDirectional:
		return "directional"
	case TierTechnique:
		return "technique"
	case TierExplicit:
		return "explicit"
	default:
		return fmt.Sprintf("Tier(%d)", int(t))
	}
}

// Instruction returns the prompt instruction bounding what this tier may
// reveal.
func (t Tier) Instruction() string {
	switch t {
	case TierNudge:
		return "Give a gentle nudge in the right direction. Do not name the vulnerability or any tool. One or two sentences."
	case TierDirectional:
		return "Point at the area to investigate (a service, a port, a behavior). Do not name the exact vulnerability or give commands."
	case TierTechnique:
		return "Name the vulnerability class and the general technique to exploit it. Suggest a category of tools but no exact commands."
	case TierExplicit:
		return "Walk through the attack methodology step by step, naming specific tools. Never include literal flag values."
	default:
		return "Give a gentle nudge in the right direction."
	}
}
