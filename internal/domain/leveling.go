package domain

import "math"

// Leveling holds the XP curve: requiredXP(level) = ceil(BaseXP * GrowthRate^level).
type Leveling struct {
	BaseXP     float64
	GrowthRate float64
}

func (l Leveling) RequiredXP(level int) int64 {
	req := int64(math.Ceil(l.BaseXP * math.Pow(l.GrowthRate, float64(level))))
	if req < 1 {
		return 1
	}
	return req
}

// Accrue adds gain to xp and resolves any number of level-ups.
// It returns the new level, the leftover xp and the number of levels gained.
func (l Leveling) Accrue(level int, xp, gain int64) (int, int64, int) {
	if level < 1 {
		level = 1
	}
	xp += gain
	gained := 0
	for {
		req := l.RequiredXP(level)
		if xp < req {
			break
		}
		xp -= req
		level++
		gained++
	}
	return level, xp, gained
}
