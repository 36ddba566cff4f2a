package main

import "math/rand"

// Bot steers an unfilled seat with a "drunk lamppost" policy:
// keep the current heading most of the time, never pick a move that visibly
// crashes, and wander among the safe turns otherwise. Bots are plain input
// sources; their commands travel through the lockstep scheduler like any
// player's, so peers replaying the inputs stay deterministic.
type Bot struct {
	ch  *LocalChannel
	rng *rand.Rand
}

// NewBot wires a bot to the local channel of its seat.
func NewBot(ch *LocalChannel, seed int64) *Bot {
	return &Bot{ch: ch, rng: rand.New(rand.NewSource(seed))}
}

// PlayerID returns the seat the bot drives.
func (b *Bot) PlayerID() uint8 { return b.ch.PlayerID() }

// Plan inspects the current state and submits the next direction. Called
// from the round loop between ticks, so it reads engine state unlocked.
func (b *Bot) Plan(e *Engine) {
	var me *Player
	for _, p := range e.Players() {
		if p.ID == b.ch.PlayerID() {
			me = p
			break
		}
	}
	if me == nil || !me.Alive {
		return
	}

	variant := e.Variant()
	var safe []Direction
	keepSafe := false
	for _, d := range [4]Direction{DirUp, DirDown, DirLeft, DirRight} {
		if !variant.AllowsReversal() && d == me.Dir.Opposite() {
			continue
		}
		to := me.Pos.Step(d)
		if variant.CheckCollision(me, to, e.Board(), e.Players()) {
			continue
		}
		if headed(to, me.ID, e.Players()) {
			continue
		}
		safe = append(safe, d)
		if d == me.Dir {
			keepSafe = true
		}
	}

	// Crashing anyway: ride it out on the current heading.
	if len(safe) == 0 {
		return
	}
	if keepSafe && b.rng.Float64() > 0.1 {
		b.ch.Submit(me.Dir)
		return
	}
	b.ch.Submit(safe[b.rng.Intn(len(safe))])
}

// headed reports whether another live head currently occupies the cell.
func headed(pos Position, self uint8, players []*Player) bool {
	for _, p := range players {
		if p.ID != self && p.Alive && p.Pos == pos {
			return true
		}
	}
	return false
}
