// Package engine supervises one bundled Stockfish-compatible subprocess
// per worker core: it speaks the UCI line protocol, multiplexes it over
// a sequence of positions, and restarts the process with backoff on
// crash, following the same process-supervision shape the teacher's
// cmd/worker main loop uses for its own subprocess-free workers, now
// generalized to a real child process.
package engine

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fishnet-client/fishnet/internal/domain"
)

// Info is the last parsed `info` line seen before a `bestmove`, the
// fields spec §4.2 requires be retained.
type Info struct {
	Depth int
	Score domain.Score
	Nodes uint64
	NPS   uint64
	Time  time.Duration
	PV    []string
}

// SearchResult is the outcome of one UCI search: either a completed
// search description, or a terminal position (engine replied
// "bestmove (none)" or "0000").
type SearchResult struct {
	Terminal bool
	Info     Info
	BestMove string
}

// Session owns one UCI subprocess and implements the strict
// request/response protocol described in spec §4.2: Spawning →
// WaitingUci → WaitingReadyOk → Idle → Searching → Idle → … → Closed.
type Session struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Scanner

	mu    sync.Mutex
	state domain.EngineState

	lines chan string
	done  chan struct{}

	strength int // last UCI_Elo applied; 0 means full strength
}

// StartSession spawns the engine binary at path with process-group
// signal isolation (spec §4.2: the child must not receive SIGINT/SIGTERM
// meant for the parent) and CPU priority applied per niceAdjust.
func StartSession(ctx context.Context, path string, niceAdjust int) (*Session, error) {
	cmd := exec.CommandContext(context.Background(), path)
	configureProcessGroup(cmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("engine: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("engine: stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: spawn %s: %w", domain.ErrEngineCrash, path, err)
	}
	if niceAdjust != 0 {
		if err := setNice(cmd.Process.Pid, niceAdjust); err != nil {
			slog.Warn("engine: failed to apply cpu priority", slog.Any("error", err))
		}
	}

	s := &Session{
		cmd:    cmd,
		stdin:  stdin,
		stdout: bufio.NewScanner(stdout),
		state:  domain.EngineSpawning,
		lines:  make(chan string, 64),
		done:   make(chan struct{}),
	}
	go s.readLoop()
	return s, nil
}

func (s *Session) readLoop() {
	defer close(s.done)
	for s.stdout.Scan() {
		select {
		case s.lines <- s.stdout.Text():
		default:
			// A slow consumer should never block the engine's stdout
			// pipe; drop the oldest buffered line instead of stalling
			// the subprocess.
			<-s.lines
			s.lines <- s.stdout.Text()
		}
	}
}

func (s *Session) send(cmd string) error {
	_, err := io.WriteString(s.stdin, cmd+"\n")
	return err
}

func (s *Session) setState(st domain.EngineState) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// State reports the session's current protocol state.
func (s *Session) State() domain.EngineState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// waitFor reads lines until pred matches one, a command timeout elapses,
// or the subprocess exits.
func (s *Session) waitFor(ctx context.Context, timeout time.Duration, pred func(string) bool) (string, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case line, ok := <-s.lines:
			if !ok {
				return "", fmt.Errorf("%w: engine stdout closed", domain.ErrEngineCrash)
			}
			if pred(line) {
				return line, nil
			}
		case <-timer.C:
			return "", fmt.Errorf("%w: command timeout after %s", domain.ErrEngineCrash, timeout)
		case <-s.done:
			return "", fmt.Errorf("%w: engine process exited", domain.ErrEngineCrash)
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

// Handshake performs `uci` → `uciok`, applies options, then `isready` →
// `readyok` (spec §4.2).
func (s *Session) Handshake(ctx context.Context, timeout time.Duration, options map[string]string) error {
	s.setState(domain.EngineWaitingUCI)
	if err := s.send("uci"); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrEngineCrash, err)
	}
	if _, err := s.waitFor(ctx, timeout, func(l string) bool { return l == "uciok" }); err != nil {
		return err
	}

	for name, value := range options {
		if err := s.send(fmt.Sprintf("setoption name %s value %s", name, value)); err != nil {
			return fmt.Errorf("%w: %w", domain.ErrEngineCrash, err)
		}
	}

	s.setState(domain.EngineWaitingReadyOK)
	if err := s.send("isready"); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrEngineCrash, err)
	}
	if _, err := s.waitFor(ctx, timeout, func(l string) bool { return l == "readyok" }); err != nil {
		return err
	}
	s.setState(domain.EngineIdle)
	return nil
}

// SearchSpec parametrizes one `go` command: exactly one of Nodes or
// MoveTime+Depth is set, matching the Analysis/Move split in spec §4.2.
type SearchSpec struct {
	FEN      string
	Moves    []string
	Nodes    uint64        // Analysis jobs
	MoveTime time.Duration // Move jobs
	MaxDepth int           // Move jobs
	Elo      int           // Move jobs only: 0 means run at full strength; Analysis jobs leave this unset
}

// Search runs `ucinewgame`, `position`, and `go`, then collects `info`
// lines until `bestmove` (spec §4.2). A cancelled ctx sends `stop` and
// waits (bounded by timeout) for the forced `bestmove`.
func (s *Session) Search(ctx context.Context, timeout time.Duration, spec SearchSpec) (SearchResult, error) {
	s.setState(domain.EngineSearching)
	defer s.setState(domain.EngineIdle)

	if err := s.setStrength(spec.Elo); err != nil {
		return SearchResult{}, err
	}

	if err := s.send("ucinewgame"); err != nil {
		return SearchResult{}, fmt.Errorf("%w: %w", domain.ErrEngineCrash, err)
	}

	posCmd := "position fen " + spec.FEN
	if len(spec.Moves) > 0 {
		posCmd += " moves " + strings.Join(spec.Moves, " ")
	}
	if err := s.send(posCmd); err != nil {
		return SearchResult{}, fmt.Errorf("%w: %w", domain.ErrEngineCrash, err)
	}

	var goCmd string
	switch {
	case spec.Nodes > 0:
		goCmd = fmt.Sprintf("go nodes %d", spec.Nodes)
	default:
		goCmd = fmt.Sprintf("go movetime %d depth %d", spec.MoveTime.Milliseconds(), spec.MaxDepth)
	}
	if err := s.send(goCmd); err != nil {
		return SearchResult{}, fmt.Errorf("%w: %w", domain.ErrEngineCrash, err)
	}

	var last Info
	haveInfo := false
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		select {
		case line, ok := <-s.lines:
			if !ok {
				return SearchResult{}, fmt.Errorf("%w: engine stdout closed mid-search", domain.ErrEngineCrash)
			}
			switch {
			case strings.HasPrefix(line, "info "):
				if info, ok := parseInfo(line); ok {
					last = info
					haveInfo = true
				}
			case strings.HasPrefix(line, "bestmove"):
				return bestMoveResult(line, last, haveInfo)
			}
		case <-deadline.C:
			return SearchResult{}, fmt.Errorf("%w: search timeout after %s", domain.ErrEngineCrash, timeout)
		case <-s.done:
			return SearchResult{}, fmt.Errorf("%w: engine process exited mid-search", domain.ErrEngineCrash)
		case <-ctx.Done():
			// Cancellation: force a bestmove and wait for it with a
			// tight deadline, per spec §4.3 item 5.
			_ = s.send("stop")
			stopDeadline := time.NewTimer(timeout)
			defer stopDeadline.Stop()
			for {
				select {
				case line, ok := <-s.lines:
					if !ok {
						return SearchResult{}, ctx.Err()
					}
					if strings.HasPrefix(line, "bestmove") {
						return bestMoveResult(line, last, haveInfo)
					}
				case <-stopDeadline.C:
					return SearchResult{}, ctx.Err()
				}
			}
		}
	}
}

// setStrength applies UCI_LimitStrength/UCI_Elo for a Move job's skill
// level (spec §4.2 component B: "UCI_Elo / Skill Level ... as
// applicable"), skipping the round-trip when the engine is already at
// the requested strength.
func (s *Session) setStrength(elo int) error {
	if s.strength == elo {
		return nil
	}
	if elo > 0 {
		if err := s.send("setoption name UCI_LimitStrength value true"); err != nil {
			return fmt.Errorf("%w: %w", domain.ErrEngineCrash, err)
		}
		if err := s.send(fmt.Sprintf("setoption name UCI_Elo value %d", elo)); err != nil {
			return fmt.Errorf("%w: %w", domain.ErrEngineCrash, err)
		}
	} else {
		if err := s.send("setoption name UCI_LimitStrength value false"); err != nil {
			return fmt.Errorf("%w: %w", domain.ErrEngineCrash, err)
		}
	}
	s.strength = elo
	return nil
}

func bestMoveResult(line string, last Info, haveInfo bool) (SearchResult, error) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return SearchResult{}, fmt.Errorf("%w: malformed bestmove line %q", domain.ErrEngineProtocol, line)
	}
	move := fields[1]
	if move == "(none)" || move == "0000" {
		return SearchResult{Terminal: true}, nil
	}
	if !looksLikeUCIMove(move) {
		return SearchResult{}, fmt.Errorf("%w: non-uci bestmove %q", domain.ErrEngineProtocol, move)
	}
	return SearchResult{Info: last, BestMove: move, Terminal: false}, errIf(!haveInfo)
}

func errIf(noInfo bool) error {
	if noInfo {
		return fmt.Errorf("%w: bestmove with no preceding info", domain.ErrEngineProtocol)
	}
	return nil
}

// looksLikeUCIMove validates the coarse shape of a UCI move: file-rank
// pairs and an optional promotion letter, e.g. "e2e4", "a7a8q".
func looksLikeUCIMove(m string) bool {
	if len(m) != 4 && len(m) != 5 {
		return false
	}
	isFile := func(b byte) bool { return b >= 'a' && b <= 'h' }
	isRank := func(b byte) bool { return b >= '1' && b <= '8' }
	if !isFile(m[0]) || !isRank(m[1]) || !isFile(m[2]) || !isRank(m[3]) {
		return false
	}
	if len(m) == 5 {
		switch m[4] {
		case 'q', 'r', 'b', 'n':
		default:
			return false
		}
	}
	return true
}

// parseInfo extracts depth, score, nodes, nps, time, and pv from one
// `info` line. Unknown or partial lines are accepted (per-field) since
// the engine emits many non-search info lines (e.g. "info string ...").
func parseInfo(line string) (Info, bool) {
	fields := strings.Fields(line)
	var info Info
	found := false
	for i := 1; i < len(fields); i++ {
		switch fields[i] {
		case "depth":
			if i+1 < len(fields) {
				if v, err := strconv.Atoi(fields[i+1]); err == nil {
					info.Depth = v
					found = true
				}
			}
		case "nodes":
			if i+1 < len(fields) {
				if v, err := strconv.ParseUint(fields[i+1], 10, 64); err == nil {
					info.Nodes = v
					found = true
				}
			}
		case "nps":
			if i+1 < len(fields) {
				if v, err := strconv.ParseUint(fields[i+1], 10, 64); err == nil {
					info.NPS = v
					found = true
				}
			}
		case "time":
			if i+1 < len(fields) {
				if v, err := strconv.ParseInt(fields[i+1], 10, 64); err == nil {
					info.Time = time.Duration(v) * time.Millisecond
					found = true
				}
			}
		case "score":
			if i+2 < len(fields) {
				kind := fields[i+1]
				if v, err := strconv.Atoi(fields[i+2]); err == nil {
					switch kind {
					case "cp":
						info.Score = domain.Score{CP: v}
						found = true
					case "mate":
						info.Score = domain.Score{Mate: v, IsMate: true}
						found = true
					}
				}
			}
		case "pv":
			if i+1 < len(fields) {
				info.PV = fields[i+1:]
				found = true
			}
			i = len(fields)
		}
	}
	return info, found
}

// Quit asks the engine to exit gracefully (quit), escalating to
// Terminate then Kill if it doesn't exit within timeout1/timeout2,
// mirroring the graceful-shutdown escalation used by line-protocol UCI
// clients in the wild.
func (s *Session) Quit(timeout1, timeout2 time.Duration) error {
	_ = s.send("quit")

	exited := make(chan struct{})
	go func() {
		_ = s.cmd.Wait()
		close(exited)
	}()

	select {
	case <-exited:
		return nil
	case <-time.After(timeout1):
	}

	if err := terminate(s.cmd); err != nil {
		slog.Warn("engine: terminate failed", slog.Any("error", err))
	}
	select {
	case <-exited:
		return nil
	case <-time.After(timeout2):
	}

	if err := s.cmd.Process.Kill(); err != nil && !errors.Is(err, errProcessFinished) {
		return fmt.Errorf("engine: kill: %w", err)
	}
	<-exited
	return nil
}

var errProcessFinished = errors.New("os: process already finished")
