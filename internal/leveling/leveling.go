// Package leveling maps XP gains onto levels.
package leveling

// XPPerLevel is the threshold growth per level.
const XPPerLevel = 100

// Threshold is the XP needed to leave level.
func Threshold(level int) int {
	return XPPerLevel * level
}

// ApplyXP adds delta to (xp, level) and carries every full threshold into a
// new level. A single call may cross several levels. Negative deltas clamp
// XP at zero and never lower the level.
func ApplyXP(xp, level, delta int) (int, int) {
	if level < 1 {
		level = 1
	}
	xp += delta
	if xp < 0 {
		return 0, level
	}
	for xp >= Threshold(level) {
		xp -= Threshold(level)
		level++
	}
	return xp, level
}

// Normalize repairs a stored (xp, level) pair so the invariants hold.
func Normalize(xp, level int) (int, int) {
	return ApplyXP(xp, level, 0)
}

// TotalXP returns the cumulative XP represented by (xp, level).
func TotalXP(xp, level int) int {
	total := xp
	for l := 1; l < level; l++ {
		total += Threshold(l)
	}
	return total
}
