// Package score holds the pure warmth scoring model: band classification,
// decay-mode constants, and the days-until-attention math. No I/O, no state.
package score

import "math"

// Band is a discrete classification tier derived purely from a score.
type Band string

const (
	BandHot     Band = "hot"
	BandWarm    Band = "warm"
	BandNeutral Band = "neutral"
	BandCool    Band = "cool"
	BandCold    Band = "cold"
)

// Threshold maps a band to the minimum score (inclusive) that earns it.
type Threshold struct {
	Band Band
	Min  float64
}

// Bands is a threshold table, ordered high to low. Tables must be exhaustive
// (last entry Min == 0) and non-overlapping.
type Bands []Threshold

// DefaultBands is the 4-tier table: hot [70,100], warm [50,70),
// cool [30,50), cold [0,30).
var DefaultBands = Bands{
	{BandHot, 70},
	{BandWarm, 50},
	{BandCool, 30},
	{BandCold, 0},
}

// Classify returns the band for a score under this table. Out-of-range
// scores are clamped to [0,100] before classification rather than rejected —
// upstream values are not the sole source of truth.
func (b Bands) Classify(s float64) Band {
	s = Clamp(s)
	for _, t := range b {
		if s >= t.Min {
			return t.Band
		}
	}
	return b[len(b)-1].Band
}

// ClassifyBand classifies a score against the default 4-tier table.
func ClassifyBand(s float64) Band {
	return DefaultBands.Classify(s)
}

// Clamp bounds a score to [0,100].
func Clamp(s float64) float64 {
	if s < 0 {
		return 0
	}
	if s > 100 {
		return 100
	}
	return s
}

// AttentionThreshold is the score floor below which a contact needs
// attention now.
const AttentionThreshold = 30.0

// Mode names a decay-rate profile. The server selects the λ constant from
// the mode; the client only needs λ for the reach-out math.
const (
	ModeSlow    = "slow"
	ModeMedium  = "medium"
	ModeFast    = "fast"
	ModeTest    = "test"
	ModeDefault = ModeMedium
)

// Modes maps a mode name to its per-day exponential decay rate λ.
type Modes map[string]float64

// DefaultModes is the built-in λ table. It is the fallback when the mode
// table cannot be hydrated from the scoring service.
var DefaultModes = Modes{
	ModeSlow:   0.040132, // half-life ~17.3 days
	ModeMedium: 0.085998, // half-life ~8.1 days
	ModeFast:   0.171996, // half-life ~4.0 days
	ModeTest:   2.407946, // hours, for exercising decay in dev
}

// Lambda returns the decay rate for a mode, falling back to medium for
// unknown or empty mode names. Never fails.
func (m Modes) Lambda(mode string) float64 {
	if l, ok := m[mode]; ok && l > 0 {
		return l
	}
	return DefaultModes[ModeMedium]
}

// HalfLife returns the half-life in days for a mode.
func (m Modes) HalfLife(mode string) float64 {
	return math.Ln2 / m.Lambda(mode)
}

// DaysUntilAttention returns the whole days until a score decays to the
// attention threshold under the given mode: ln(score/threshold)/λ, rounded
// to the nearest day, floored at 0. A score at or below the threshold needs
// attention now.
func (m Modes) DaysUntilAttention(s float64, mode string, threshold float64) int {
	if threshold <= 0 {
		threshold = AttentionThreshold
	}
	s = Clamp(s)
	if s <= threshold {
		return 0
	}
	days := math.Round(math.Log(s/threshold) / m.Lambda(mode))
	if days < 0 {
		return 0
	}
	return int(days)
}

// DaysUntilAttention applies the default mode table and threshold.
func DaysUntilAttention(s float64, mode string) int {
	return DefaultModes.DaysUntilAttention(s, mode, AttentionThreshold)
}

// Decay returns the score after elapsedDays of exponential decay at the
// mode's λ: s·e^(−λ·days), clamped to [0,100]. Negative elapsed time is
// treated as zero (clock skew must never inflate a score).
func (m Modes) Decay(s float64, mode string, elapsedDays float64) float64 {
	if elapsedDays <= 0 {
		return Clamp(s)
	}
	return Clamp(s * math.Exp(-m.Lambda(mode)*elapsedDays))
}
