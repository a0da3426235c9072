// Package progress computes a goal's displayed progress from its linked
// habits' completion ratios plus a manual offset. Progress is always derived
// on demand; nothing here reads or writes storage.
package progress

import (
	"math"

	"momentum/internal/domain"
)

// habitCap is the ceiling for habit-derived progress. Habits alone can never
// fully complete a goal; the last 10 points require completion or manual
// credit.
const habitCap = 90

// HabitPercent returns one habit instance's completion ratio as a percentage
// in [0,100]. A non-positive target yields 0.
func HabitPercent(h domain.HabitInstance) float64 {
	if h.Target <= 0 {
		return 0
	}
	ratio := float64(h.Current) / float64(h.Target)
	if ratio > 1 {
		ratio = 1
	}
	return ratio * 100
}

// HabitDerived averages the linked habits' percentages and caps the result
// at 90. Zero habits derive zero.
func HabitDerived(habits []domain.HabitInstance) float64 {
	if len(habits) == 0 {
		return 0
	}
	var sum float64
	for _, h := range habits {
		sum += HabitPercent(h)
	}
	avg := sum / float64(len(habits))
	if avg > habitCap {
		return habitCap
	}
	return avg
}

// Goal computes a goal instance's displayed progress:
// min(avg(habit percentages), 90) + manual offset, clamped to [0,100].
// A completed goal is always 100 regardless of habit state.
func Goal(habits []domain.HabitInstance, manualOffset int, status domain.GoalStatus) int {
	if status == domain.GoalStatusCompleted {
		return 100
	}
	combined := HabitDerived(habits) + float64(manualOffset)
	return clamp(int(math.Round(combined)))
}

// PreservingOffset returns the manual offset that keeps a goal's combined
// progress unchanged when its habit set is replaced: old combined value
// minus the new habit-derived value, clamped so the final combined value
// stays in [0,100].
func PreservingOffset(oldHabits []domain.HabitInstance, oldOffset int, newHabits []domain.HabitInstance) int {
	oldCombined := clamp(int(math.Round(HabitDerived(oldHabits) + float64(oldOffset))))
	newDerived := HabitDerived(newHabits)
	offset := int(math.Round(float64(oldCombined) - newDerived))

	// Keep combined = newDerived + offset inside [0,100].
	if newDerived+float64(offset) > 100 {
		offset = int(math.Round(100 - newDerived))
	}
	if newDerived+float64(offset) < 0 {
		offset = int(math.Round(-newDerived))
	}
	return offset
}

func clamp(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
