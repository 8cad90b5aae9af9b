package domain

import "math"

// ============================================================
// Temperature
// ============================================================

// Temperature bounds. Impacts saturate at these values.
const (
	MinTemperature = -20
	MaxTemperature = 100

	// Fixed temperatures for terminal and reactivation transitions.
	WonTemperature         = MaxTemperature
	LostTemperature        = MinTemperature
	ReactivatedTemperature = 40

	// ForwardProgressBonus is added when a stage move advances the pipeline.
	ForwardProgressBonus = 10

	// ReactivatedProbability is pinned when a lost lead is reopened.
	ReactivatedProbability = 30
)

// TemperatureStatus is the named band a temperature falls in.
type TemperatureStatus string

const (
	StatusCold     TemperatureStatus = "cold"
	StatusWarm     TemperatureStatus = "warm"
	StatusHot      TemperatureStatus = "hot"
	StatusCritical TemperatureStatus = "critical"
)

// AllTemperatureStatuses lists the bands from coldest to hottest.
var AllTemperatureStatuses = []TemperatureStatus{StatusCold, StatusWarm, StatusHot, StatusCritical}

// Valid reports whether s is a known band.
func (s TemperatureStatus) Valid() bool {
	switch s {
	case StatusCold, StatusWarm, StatusHot, StatusCritical:
		return true
	}
	return false
}

// ClampTemperature saturates t into [MinTemperature, MaxTemperature].
func ClampTemperature(t int) int {
	if t < MinTemperature {
		return MinTemperature
	}
	if t > MaxTemperature {
		return MaxTemperature
	}
	return t
}

// MaxImpact is the widest swing a single impact can have: floor to ceiling.
const MaxImpact = MaxTemperature - MinTemperature

// ClampImpact saturates delta into [-MaxImpact, MaxImpact]. Any larger delta
// has the same effect on a clamped temperature.
func ClampImpact(delta int) int {
	if delta < -MaxImpact {
		return -MaxImpact
	}
	if delta > MaxImpact {
		return MaxImpact
	}
	return delta
}

// StatusForTemperature maps a temperature to its band using inclusive upper bounds:
// cold ≤25, warm ≤50, hot ≤75, critical above.
func StatusForTemperature(t int) TemperatureStatus {
	switch t = ClampTemperature(t); {
	case t <= 25:
		return StatusCold
	case t <= 50:
		return StatusWarm
	case t <= 75:
		return StatusHot
	default:
		return StatusCritical
	}
}

// ============================================================
// Probability
// ============================================================

// Probability derives the win probability in percent from stage, temperature and deal type.
// Won and lost are pinned at 100 and 0.
func Probability(stage Stage, temperature int, dealType DealType) int {
	switch stage {
	case StageWon:
		return 100
	case StageLost:
		return 0
	}

	bonus := int(math.Floor(float64(temperature)/10)) * 2
	p := float64(stage.BaseProbability()+bonus) * dealType.ProbabilityMultiplier()
	p = math.Max(0, math.Min(100, p))
	return int(math.Round(p))
}
