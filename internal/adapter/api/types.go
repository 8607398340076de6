// Package api implements the coordinator's HTTP wire protocol: acquire,
// submit (analysis/move), abort, status, and key-check, the way the
// teacher's ai/real package implements its provider clients.
package api

import (
	"time"

	"github.com/fishnet-client/fishnet/internal/domain"
)

// fishnetIdentity is embedded on every request body per §6.1.
type fishnetIdentity struct {
	Version string `json:"version"`
	APIKey  string `json:"apikey"`
}

type stockfishIdentity struct {
	Flavor string `json:"flavor,omitempty"`
}

// acquireRequest is the body for POST /fishnet/acquire.
type acquireRequest struct {
	Fishnet   fishnetIdentity    `json:"fishnet"`
	Stockfish *stockfishIdentity `json:"stockfish,omitempty"`
}

// submitRequest is the body for POST /fishnet/analysis/{id} and
// POST /fishnet/move/{id}.
type submitRequest struct {
	Fishnet   fishnetIdentity    `json:"fishnet"`
	Stockfish *stockfishIdentity `json:"stockfish,omitempty"`
	Analysis  []plyResultWire    `json:"analysis,omitempty"`
	Move      *moveWire          `json:"move,omitempty"`
}

type moveWire struct {
	BestMove string `json:"bestmove"`
}

type scoreWire struct {
	CP   *int `json:"cp,omitempty"`
	Mate *int `json:"mate,omitempty"`
}

// plyResultWire mirrors the three PlyResult shapes in §6.1: an empty
// object for pending, {"skipped":true} for skipped, or the full
// computed shape.
type plyResultWire struct {
	Skipped bool       `json:"skipped,omitempty"`
	PV      string     `json:"pv,omitempty"`
	Depth   *int       `json:"depth,omitempty"`
	Score   *scoreWire `json:"score,omitempty"`
	Time    int        `json:"time,omitempty"`
	Nodes   int        `json:"nodes,omitempty"`
	NPS     int        `json:"nps,omitempty"`
}

// jobWire is the job body the server returns on 202.
type jobWire struct {
	WorkID        string      `json:"work_id"`
	GameID        string      `json:"game_id,omitempty"`
	Variant       string      `json:"variant,omitempty"`
	StartFEN      string      `json:"startFEN,omitempty"`
	Moves         string      `json:"moves,omitempty"`
	SkipPositions []int       `json:"skipPositions,omitempty"`
	Work          jobWorkWire `json:"work"`
}

type jobWorkWire struct {
	Type      string     `json:"type"`
	NNUE      uint64     `json:"nnue,omitempty"`
	Classical uint64     `json:"classical,omitempty"`
	Level     int        `json:"level,omitempty"`
	Clock     *clockWire `json:"clock,omitempty"`
}

type clockWire struct {
	WTime int `json:"wtime"`
	BTime int `json:"btime"`
	Inc   int `json:"inc"`
}

type queueClassWire struct {
	Acquired int     `json:"acquired"`
	Queued   int     `json:"queued"`
	OldestS  float64 `json:"oldest_s"`
}

type statusWire struct {
	User   queueClassWire `json:"user"`
	System queueClassWire `json:"system"`
}

type keyCheckWire struct {
	Username string `json:"username,omitempty"`
}

// toDomainJob converts the wire job body into a domain.Job.
func (w jobWire) toDomainJob() domain.Job {
	j := domain.Job{
		WorkID:   w.WorkID,
		GameID:   w.GameID,
		Variant:  w.Variant,
		StartFEN: w.StartFEN,
	}
	if j.Variant == "" {
		j.Variant = "standard"
	}
	if w.Moves != "" {
		j.Moves = splitMoves(w.Moves)
	}
	j.SkipPositions = make(map[int]bool, len(w.SkipPositions))
	for _, p := range w.SkipPositions {
		j.SkipPositions[p] = true
	}
	switch w.Work.Type {
	case "move":
		j.Kind = domain.KindMove
		j.Level = w.Work.Level
		if w.Work.Clock != nil {
			j.Clock = &domain.Clock{
				WTime: time.Duration(w.Work.Clock.WTime) * time.Millisecond,
				BTime: time.Duration(w.Work.Clock.BTime) * time.Millisecond,
				Inc:   time.Duration(w.Work.Clock.Inc) * time.Millisecond,
			}
		}
	default:
		j.Kind = domain.KindAnalysis
		j.NodesNNUE = w.Work.NNUE
		j.NodesClassical = w.Work.Classical
	}
	return j
}

func splitMoves(s string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ' ' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}

// toDomain converts a wire status reply into domain.QueueStatus.
func (w statusWire) toDomain() domain.QueueStatus {
	return domain.QueueStatus{
		User: domain.QueueClassStatus{
			Acquired: w.User.Acquired,
			Queued:   w.User.Queued,
			OldestS:  w.User.OldestS,
		},
		System: domain.QueueClassStatus{
			Acquired: w.System.Acquired,
			Queued:   w.System.Queued,
			OldestS:  w.System.OldestS,
		},
	}
}

// plyResultToWire converts a domain.PlyResult into its wire shape.
func plyResultToWire(r domain.PlyResult) plyResultWire {
	switch r.Status {
	case domain.PlySkipped:
		return plyResultWire{Skipped: true}
	case domain.PlyPending:
		return plyResultWire{}
	case domain.PlyTerminal:
		depth := 0
		mate := 0
		return plyResultWire{Depth: &depth, Score: &scoreWire{Mate: &mate}}
	default: // PlyComputed
		depth := r.Depth
		sw := &scoreWire{}
		if r.Score.IsMate {
			m := r.Score.Mate
			sw.Mate = &m
		} else {
			cp := r.Score.CP
			sw.CP = &cp
		}
		return plyResultWire{
			PV:    joinMoves(r.PV),
			Depth: &depth,
			Score: sw,
			Time:  int(r.Time.Milliseconds()),
			Nodes: int(r.Nodes),
			NPS:   int(r.NPS),
		}
	}
}

func joinMoves(moves []string) string {
	out := ""
	for i, m := range moves {
		if i > 0 {
			out += " "
		}
		out += m
	}
	return out
}
