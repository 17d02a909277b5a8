package profile

import (
	"math"

	"coderush/internal/judge/sandbox/spec"
)

// ApplyLimits scales the task defaults by the language multipliers and then
// merges override onto them. Explicit override values are used as given.
func ApplyLimits(override, defaults spec.ResourceLimit, lang LanguageSpec) spec.ResourceLimit {
	return MergeLimits(applyMultipliers(defaults, lang), override)
}

// MergeLimits replaces every positive field of base with the override value.
func MergeLimits(base, override spec.ResourceLimit) spec.ResourceLimit {
	if override.CPUTimeMs > 0 {
		base.CPUTimeMs = override.CPUTimeMs
	}
	if override.WallTimeMs > 0 {
		base.WallTimeMs = override.WallTimeMs
	}
	if override.MemoryMB > 0 {
		base.MemoryMB = override.MemoryMB
	}
	if override.StackMB > 0 {
		base.StackMB = override.StackMB
	}
	if override.OutputMB > 0 {
		base.OutputMB = override.OutputMB
	}
	if override.PIDs > 0 {
		base.PIDs = override.PIDs
	}
	return base
}

func applyMultipliers(limits spec.ResourceLimit, lang LanguageSpec) spec.ResourceLimit {
	limits.CPUTimeMs = scaleLimit(limits.CPUTimeMs, lang.TimeMultiplier)
	limits.WallTimeMs = scaleLimit(limits.WallTimeMs, lang.TimeMultiplier)
	limits.MemoryMB = scaleLimit(limits.MemoryMB, lang.MemoryMultiplier)
	return limits
}

func scaleLimit(value int64, multiplier float64) int64 {
	if value <= 0 {
		return 0
	}
	if multiplier <= 0 {
		return value
	}
	return int64(math.Ceil(float64(value) * multiplier))
}
