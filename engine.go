package main

import (
	"encoding/binary"
	"hash/fnv"
	"sort"
)

// EnginePhase tracks the tick state machine.
type EnginePhase uint8

const (
	PhaseAwaitingInputs EnginePhase = iota
	PhaseResolving
	PhaseRoundOver
)

// WallDelta is one cell that became a wall or tail segment this tick.
type WallDelta struct {
	Pos   Position `json:"p" msgpack:"p"`
	Owner uint8    `json:"o" msgpack:"o"`
}

// TickResult is the per-tick output consumed by presentation and network
// observers. It carries only deltas plus the updated player views.
type TickResult struct {
	Tick       uint32       `json:"tick" msgpack:"tick"`
	Walls      []WallDelta  `json:"w,omitempty" msgpack:"w,omitempty"`
	Cleared    []Position   `json:"c,omitempty" msgpack:"c,omitempty"`
	Players    []PlayerView `json:"pl" msgpack:"pl"`
	Eliminated []uint8      `json:"e,omitempty" msgpack:"e,omitempty"`
	Crashes    []Position   `json:"x,omitempty" msgpack:"x,omitempty"`
	RoundOver  bool         `json:"ro,omitempty" msgpack:"ro,omitempty"`
	Result     *RoundResult `json:"r,omitempty" msgpack:"r,omitempty"`
}

// RoundResult is the terminal snapshot of a round.
type RoundResult struct {
	Winner  uint8         `json:"win" msgpack:"win"` // 0 on draw or abort
	Draw    bool          `json:"draw,omitempty" msgpack:"draw,omitempty"`
	Aborted bool          `json:"ab,omitempty" msgpack:"ab,omitempty"`
	Scores  map[uint8]int `json:"sc" msgpack:"sc"` // round score deltas
	EndTick uint32        `json:"t" msgpack:"t"`
	Crashes []Position    `json:"x,omitempty" msgpack:"x,omitempty"` // explosion markers
}

// StateSnapshot is the full serialized simulation state, used for resync
// and for read-only snapshots handed to presentation layers.
type StateSnapshot struct {
	Tick    uint32       `msgpack:"tick" json:"tick"`
	Width   int          `msgpack:"w" json:"w"`
	Height  int          `msgpack:"h" json:"h"`
	Cells   []byte       `msgpack:"c" json:"c"`
	Players []PlayerView `msgpack:"pl" json:"pl"`
	Variant uint8        `msgpack:"v" json:"v"`
}

// Engine advances the round one tick at a time. It is single-threaded per
// round and never fails on structurally valid input: a tick's result is a
// pure function of the board, players, and that tick's commands.
type Engine struct {
	variant Variant
	board   *Board
	players []*Player
	tick    uint32
	phase   EnginePhase
	result  *RoundResult
}

// NewEngine builds a round from the variant's initial layout.
func NewEngine(variant Variant, width, height, playerCount, tailTarget int) (*Engine, error) {
	board, players, err := variant.Layout(width, height, playerCount)
	if err != nil {
		return nil, err
	}
	if variant == VariantHustle {
		for _, p := range players {
			p.TailTarget = tailTarget
		}
	}
	return &Engine{
		variant: variant,
		board:   board,
		players: players,
		phase:   PhaseAwaitingInputs,
	}, nil
}

// Tick returns the tick the engine is waiting on.
func (e *Engine) Tick() uint32 { return e.tick }

// Over reports whether the round has ended.
func (e *Engine) Over() bool { return e.phase == PhaseRoundOver }

// Result returns the terminal round result once the round is over.
func (e *Engine) Result() *RoundResult { return e.result }

// Players returns the engine's player list. Callers must not mutate it.
func (e *Engine) Players() []*Player { return e.players }

// Board returns the engine's board. Callers must not mutate it.
func (e *Engine) Board() *Board { return e.board }

// Variant returns the active rule variant.
func (e *Engine) Variant() Variant { return e.variant }

// Step resolves one tick with the given direction commands (one per player
// at most; missing players keep their current direction). Commands for dead
// or unknown ids must have been filtered out by the caller.
func (e *Engine) Step(cmds map[uint8]Direction) TickResult {
	res := TickResult{Tick: e.tick}
	if e.phase == PhaseRoundOver {
		res.RoundOver = true
		res.Result = e.result
		return res
	}
	e.phase = PhaseResolving

	// Apply pending turns. An illegal reversal is silently ignored, never
	// an error: the original cabinets have no invalid-move concept.
	for _, p := range e.players {
		if !p.Alive {
			continue
		}
		if d, ok := cmds[p.ID]; ok {
			p.Pending = d
		}
		if p.Pending != p.Dir.Opposite() || e.variant.AllowsReversal() {
			p.Dir = p.Pending
		}
		p.Pending = p.Dir
	}

	// Candidate next cells.
	cand := make(map[uint8]Position, len(e.players))
	for _, p := range e.players {
		if p.Alive {
			cand[p.ID] = p.Pos.Step(p.Dir)
		}
	}

	// Simultaneous-arrival tie-break: coincident candidates, or a candidate
	// landing on another live head's current cell, eliminate everyone
	// involved. Neither side of a head-on crash survives.
	doomed := make(map[uint8]bool)
	for _, a := range e.players {
		if !a.Alive {
			continue
		}
		for _, b := range e.players {
			if !b.Alive || a.ID >= b.ID {
				continue
			}
			if cand[a.ID] == cand[b.ID] {
				doomed[a.ID] = true
				doomed[b.ID] = true
				res.Crashes = appendCrash(res.Crashes, cand[a.ID])
			}
			if cand[a.ID] == b.Pos || cand[b.ID] == a.Pos {
				doomed[a.ID] = true
				doomed[b.ID] = true
				res.Crashes = appendCrash(res.Crashes, cand[a.ID])
			}
		}
	}

	// Variant collision check for everyone not already doomed.
	for _, p := range e.players {
		if !p.Alive || doomed[p.ID] {
			continue
		}
		if e.variant.CheckCollision(p, cand[p.ID], e.board, e.players) {
			doomed[p.ID] = true
			res.Crashes = appendCrash(res.Crashes, cand[p.ID])
		}
	}

	// Survivors move and lay their trail; the doomed stay put and fall.
	for _, p := range e.players {
		if !p.Alive {
			continue
		}
		if doomed[p.ID] {
			p.Alive = false
			p.ElimTick = e.tick
			res.Eliminated = append(res.Eliminated, p.ID)
			continue
		}
		from := p.Pos
		p.Pos = cand[p.ID]
		laid, cleared := e.variant.OnMove(p, from, e.board)
		if laid != nil {
			res.Walls = append(res.Walls, *laid)
		}
		if cleared != nil {
			res.Cleared = append(res.Cleared, *cleared)
		}
	}

	sort.Slice(res.Eliminated, func(i, j int) bool { return res.Eliminated[i] < res.Eliminated[j] })
	for _, p := range e.players {
		res.Players = append(res.Players, p.ToView())
	}

	if e.variant.RoundOver(e.players) {
		e.phase = PhaseRoundOver
		e.result = e.roundResult(false)
		e.result.Crashes = res.Crashes
		res.RoundOver = true
		res.Result = e.result
	} else {
		e.tick++
		e.phase = PhaseAwaitingInputs
	}
	return res
}

// Abort ends the round immediately with an aborted result and no scores.
func (e *Engine) Abort() *RoundResult {
	if e.phase == PhaseRoundOver {
		return e.result
	}
	e.phase = PhaseRoundOver
	e.result = &RoundResult{Aborted: true, Scores: map[uint8]int{}, EndTick: e.tick}
	return e.result
}

func (e *Engine) roundResult(aborted bool) *RoundResult {
	r := &RoundResult{EndTick: e.tick, Aborted: aborted}
	if aborted {
		r.Scores = map[uint8]int{}
		return r
	}
	r.Scores = e.variant.ScoreRound(e.players, e.tick)
	survivors := 0
	for _, p := range e.players {
		if p.Alive {
			survivors++
			r.Winner = p.ID
		}
	}
	if survivors != 1 {
		r.Winner = 0
		r.Draw = true
	}
	return r
}

// Checksum hashes the canonical serialization of board and players with
// FNV-64a. Peers running the same inputs must agree on it tick for tick.
func (e *Engine) Checksum() uint64 {
	h := fnv.New64a()
	var buf [8]byte

	binary.BigEndian.PutUint32(buf[:4], e.tick)
	h.Write(buf[:4])
	binary.BigEndian.PutUint32(buf[:4], uint32(e.board.Width))
	h.Write(buf[:4])
	binary.BigEndian.PutUint32(buf[:4], uint32(e.board.Height))
	h.Write(buf[:4])
	h.Write(e.board.Pack())

	for _, p := range e.players {
		buf[0] = p.ID
		buf[1] = uint8(p.Dir)
		buf[2] = 0
		if p.Alive {
			buf[2] = 1
		}
		h.Write(buf[:3])
		binary.BigEndian.PutUint32(buf[:4], uint32(int32(p.Pos.X)))
		h.Write(buf[:4])
		binary.BigEndian.PutUint32(buf[:4], uint32(int32(p.Pos.Y)))
		h.Write(buf[:4])
		binary.BigEndian.PutUint64(buf[:8], uint64(int64(p.Score)))
		h.Write(buf[:8])
		for _, seg := range p.Tail {
			binary.BigEndian.PutUint32(buf[:4], uint32(int32(seg.X)))
			binary.BigEndian.PutUint32(buf[4:8], uint32(int32(seg.Y)))
			h.Write(buf[:8])
		}
	}
	return h.Sum64()
}

// Snapshot serializes the full simulation state.
func (e *Engine) Snapshot() StateSnapshot {
	s := StateSnapshot{
		Tick:    e.tick,
		Width:   e.board.Width,
		Height:  e.board.Height,
		Cells:   e.board.Pack(),
		Variant: uint8(e.variant),
	}
	for _, p := range e.players {
		s.Players = append(s.Players, p.ToView())
	}
	return s
}

// Restore overwrites the simulation state from an authoritative snapshot.
// Players not present in the snapshot are left untouched.
func (e *Engine) Restore(s StateSnapshot) bool {
	if s.Width != e.board.Width || s.Height != e.board.Height {
		return false
	}
	if !e.board.Unpack(s.Cells) {
		return false
	}
	e.tick = s.Tick
	for _, v := range s.Players {
		for _, p := range e.players {
			if p.ID != v.ID {
				continue
			}
			p.Pos = v.Pos
			p.Dir = Direction(v.Dir)
			p.Pending = Direction(v.Dir)
			p.Alive = v.Alive
			p.Score = v.Score
			p.Tail = append(p.Tail[:0], v.Tail...)
		}
	}
	return true
}

func appendCrash(crashes []Position, p Position) []Position {
	for _, c := range crashes {
		if c == p {
			return crashes
		}
	}
	return append(crashes, p)
}
