package engine

import "time"

// LevelSetting is the (UCI_Elo, movetime, max depth) triple a Move job's
// skill level maps to (spec §4.2: "derived from historical Lichess
// settings; move time is bounded to 6s").
type LevelSetting struct {
	Elo      int
	MoveTime time.Duration
	MaxDepth int
}

// levelTable is the static skill-level mapping for levels 1..8.
var levelTable = map[int]LevelSetting{
	1: {Elo: 1350, MoveTime: 50 * time.Millisecond, MaxDepth: 1},
	2: {Elo: 1500, MoveTime: 100 * time.Millisecond, MaxDepth: 2},
	3: {Elo: 1650, MoveTime: 150 * time.Millisecond, MaxDepth: 4},
	4: {Elo: 1800, MoveTime: 200 * time.Millisecond, MaxDepth: 6},
	5: {Elo: 2000, MoveTime: 300 * time.Millisecond, MaxDepth: 8},
	6: {Elo: 2200, MoveTime: 400 * time.Millisecond, MaxDepth: 10},
	7: {Elo: 2500, MoveTime: 500 * time.Millisecond, MaxDepth: 13},
	8: {Elo: 2850, MoveTime: 1000 * time.Millisecond, MaxDepth: 18},
}

// MaxLevelMoveTime is the hard cap spec §4.2 places on move time
// regardless of level.
const MaxLevelMoveTime = 6 * time.Second

// LookupLevel returns the setting for a skill level 1..8, clamping out
// of range values to the nearest valid level.
func LookupLevel(level int) LevelSetting {
	if level < 1 {
		level = 1
	}
	if level > 8 {
		level = 8
	}
	s := levelTable[level]
	if s.MoveTime > MaxLevelMoveTime {
		s.MoveTime = MaxLevelMoveTime
	}
	return s
}
