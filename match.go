package main

import "time"

// MatchPhase represents the lifecycle of a match.
type MatchPhase int

const (
	PhaseLobby     MatchPhase = 0
	PhaseCountdown MatchPhase = 1
	PhasePlaying   MatchPhase = 2
	PhaseResult    MatchPhase = 3
)

// MatchConfig holds settings for a match.
type MatchConfig struct {
	Variant        Variant
	Players        int
	BoardWidth     int
	BoardHeight    int
	TickRate       int           // simulation ticks per second
	InputTimeout   time.Duration // bounded wait for remote inputs per tick
	ChecksumEvery  uint32        // ticks between checksum exchanges
	TargetScore    int           // round wins needed to take the match
	TailTarget     int           // Hustle tail length
	CountdownTicks int
	MaxResyncs     int // resyncs per peer before the round aborts
}

// DefaultConfig returns the default config for a variant. The 32x28 board
// and first-to-six match length match the original cabinet settings.
func DefaultConfig(v Variant, players int) MatchConfig {
	cfg := MatchConfig{
		Variant:        v,
		Players:        players,
		BoardWidth:     32,
		BoardHeight:    28,
		TickRate:       8,
		InputTimeout:   250 * time.Millisecond,
		ChecksumEvery:  8,
		TargetScore:    6,
		CountdownTicks: 24,
		MaxResyncs:     3,
	}
	if v == VariantHustle {
		cfg.TailTarget = 8
	}
	if players < 2 {
		cfg.Players = 2
	}
	if cfg.Players > v.MaxPlayers() {
		cfg.Players = v.MaxPlayers()
	}
	return cfg
}

// TickDuration returns the wall-clock length of one tick.
func (c MatchConfig) TickDuration() time.Duration {
	return time.Second / time.Duration(c.TickRate)
}

// MatchState tracks match progress across rounds.
type MatchState struct {
	Phase      MatchPhase
	Round      int
	Scores     map[uint8]int // accumulated round scores per seat
	CountdownT int           // ticks remaining in countdown
	StartedAt  time.Time
}

// NewMatchState creates lobby-phase match state.
func NewMatchState() MatchState {
	return MatchState{Phase: PhaseLobby, Scores: make(map[uint8]int)}
}

// ApplyRound folds a round's score deltas into the match totals.
func (ms *MatchState) ApplyRound(deltas map[uint8]int) {
	for id, d := range deltas {
		ms.Scores[id] += d
	}
	ms.Round++
}

// Leader returns the seat with the highest match score and whether it has
// reached the target. Ties report no winner.
func (ms *MatchState) Leader(target int) (uint8, bool) {
	var leader uint8
	best := -1
	tied := false
	for id, sc := range ms.Scores {
		switch {
		case sc > best:
			best, leader, tied = sc, id, false
		case sc == best:
			tied = true
		}
	}
	if tied || best < target {
		return 0, false
	}
	return leader, true
}
