package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseInfo(t *testing.T) {
	line := "info depth 12 seldepth 18 multipv 1 score cp 34 nodes 123456 nps 987654 time 125 pv e2e4 e7e5 g1f3"
	info, ok := parseInfo(line)
	assert.True(t, ok)
	assert.Equal(t, 12, info.Depth)
	assert.Equal(t, 34, info.Score.CP)
	assert.False(t, info.Score.IsMate)
	assert.Equal(t, uint64(123456), info.Nodes)
	assert.Equal(t, uint64(987654), info.NPS)
	assert.Equal(t, []string{"e2e4", "e7e5", "g1f3"}, info.PV)
}

func TestParseInfo_Mate(t *testing.T) {
	info, ok := parseInfo("info depth 5 score mate 3 pv d1h5")
	assert.True(t, ok)
	assert.True(t, info.Score.IsMate)
	assert.Equal(t, 3, info.Score.Mate)
}

func TestParseInfo_NonSearchLine(t *testing.T) {
	_, ok := parseInfo("info string NNUE evaluation enabled")
	assert.False(t, ok)
}

func TestBestMoveResult_Terminal(t *testing.T) {
	res, err := bestMoveResult("bestmove (none)", Info{}, true)
	assert.NoError(t, err)
	assert.True(t, res.Terminal)
}

func TestBestMoveResult_ZeroMove(t *testing.T) {
	res, err := bestMoveResult("bestmove 0000", Info{}, true)
	assert.NoError(t, err)
	assert.True(t, res.Terminal)
}

func TestBestMoveResult_Computed(t *testing.T) {
	res, err := bestMoveResult("bestmove e2e4 ponder e7e5", Info{Depth: 10}, true)
	assert.NoError(t, err)
	assert.False(t, res.Terminal)
	assert.Equal(t, "e2e4", res.BestMove)
}

func TestBestMoveResult_Promotion(t *testing.T) {
	res, err := bestMoveResult("bestmove a7a8q", Info{}, true)
	assert.NoError(t, err)
	assert.Equal(t, "a7a8q", res.BestMove)
}

func TestBestMoveResult_MalformedMove(t *testing.T) {
	_, err := bestMoveResult("bestmove notamove", Info{}, true)
	assert.Error(t, err)
}

func TestLookupLevel_ClampsRange(t *testing.T) {
	assert.Equal(t, levelTable[1], LookupLevel(0))
	assert.Equal(t, levelTable[8], LookupLevel(100))
	assert.Equal(t, levelTable[4], LookupLevel(4))
}

func TestLookupLevel_CapsMoveTime(t *testing.T) {
	s := LookupLevel(8)
	assert.LessOrEqual(t, s.MoveTime, MaxLevelMoveTime)
}
