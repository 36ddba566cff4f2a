package main

import "fmt"

// Variant selects the active rule set. The set is closed: every rule hook
// switches over these three tags.
type Variant uint8

const (
	VariantBlockade Variant = 0
	VariantComotion Variant = 1
	VariantHustle   Variant = 2
)

func (v Variant) String() string {
	switch v {
	case VariantBlockade:
		return "blockade"
	case VariantComotion:
		return "comotion"
	case VariantHustle:
		return "hustle"
	default:
		return "unknown"
	}
}

// ValidVariant reports whether a wire byte decodes to a known variant.
func ValidVariant(b uint8) bool {
	return b <= uint8(VariantHustle)
}

// MaxPlayers returns the seat limit for the variant. Blockade and Hustle are
// strictly two-player cabinets; Comotion seats up to four.
func (v Variant) MaxPlayers() int {
	if v == VariantComotion {
		return 4
	}
	return 2
}

// AllowsReversal reports whether a 180° turn command is honored. Blockade and
// Comotion ignore it (the reversal would always hit the wall just laid);
// Hustle honors it so a long enough tail can be steered into.
func (v Variant) AllowsReversal() bool {
	return v == VariantHustle
}

// LaysWalls reports whether vacated cells become permanent walls.
func (v Variant) LaysWalls() bool {
	return v != VariantHustle
}

// Layout builds the starting board and players for a round. Starting
// positions are quadrant-symmetric and pairwise non-adjacent: seats 1 and 2
// take opposite corner quadrants (matching the original two-player layout),
// seats 3 and 4 take the remaining two.
func (v Variant) Layout(width, height, playerCount int) (*Board, []*Player, error) {
	if playerCount < 2 || playerCount > v.MaxPlayers() {
		return nil, nil, fmt.Errorf("%s supports 2-%d players, got %d", v, v.MaxPlayers(), playerCount)
	}
	if width < minBoardSize || height < minBoardSize {
		return nil, nil, fmt.Errorf("board %dx%d below minimum %d", width, height, minBoardSize)
	}

	board := NewBoard(width, height)
	if v == VariantComotion {
		placeObstacles(board)
	}

	qx := [4]int{width / 4, 3 * width / 4, 3 * width / 4, width / 4}
	qy := [4]int{height / 4, 3 * height / 4, height / 4, 3 * height / 4}
	dirs := [4]Direction{DirDown, DirUp, DirDown, DirUp}

	players := make([]*Player, playerCount)
	for i := 0; i < playerCount; i++ {
		players[i] = NewPlayer(uint8(i+1), Position{qx[i], qy[i]}, dirs[i])
	}
	return board, players, nil
}

const minBoardSize = 8

// placeObstacles adds Comotion's pre-placed center cross.
func placeObstacles(b *Board) {
	center := Position{b.Width / 2, b.Height / 2}
	b.MarkWall(center, 0)
	b.MarkWall(Position{center.X - 1, center.Y}, 0)
	b.MarkWall(Position{center.X + 1, center.Y}, 0)
	b.MarkWall(Position{center.X, center.Y - 1}, 0)
	b.MarkWall(Position{center.X, center.Y + 1}, 0)
}

// OnMove applies the variant's trail rule for a move from one cell. Blockade
// and Comotion turn the vacated cell into a permanent wall; Hustle grows the
// tail by one segment and vacates the oldest segment once the tail exceeds
// its target length. Returns the wall cell laid (if any) and any cell that
// became passable again.
func (v Variant) OnMove(p *Player, from Position, b *Board) (laid *WallDelta, cleared *Position) {
	if v.LaysWalls() {
		b.MarkWall(from, p.ID)
		return &WallDelta{Pos: from, Owner: p.ID}, nil
	}

	p.Tail = append(p.Tail, from)
	b.MarkWall(from, p.ID)
	laid = &WallDelta{Pos: from, Owner: p.ID}
	if len(p.Tail) > p.TailTarget {
		oldest := p.Tail[0]
		p.Tail = p.Tail[1:]
		b.ClearCell(oldest)
		cleared = &oldest
	}
	return laid, cleared
}

// CheckCollision reports whether moving to the candidate cell eliminates the
// player: off-board, any wall segment, or (Hustle) any player's current tail
// including the mover's own.
func (v Variant) CheckCollision(p *Player, to Position, b *Board, players []*Player) bool {
	switch b.CellAt(to).Kind {
	case CellOffBoard, CellWall:
		return true
	}
	if v == VariantHustle {
		for _, other := range players {
			if other.OnTail(to) {
				return true
			}
		}
	}
	return false
}

// ScoreRound computes per-player score deltas when a round ends. Blockade
// and Hustle award the round to a sole survivor. Comotion credits elimination
// order: each player scores one point per opponent eliminated strictly
// earlier, so later elimination never scores below earlier elimination and a
// lone survivor earns the maximum.
func (v Variant) ScoreRound(players []*Player, endTick uint32) map[uint8]int {
	deltas := make(map[uint8]int, len(players))
	if v != VariantComotion {
		for _, p := range players {
			if p.Alive {
				deltas[p.ID] = 1
			} else {
				deltas[p.ID] = 0
			}
		}
		return deltas
	}
	for _, p := range players {
		outlasted := 0
		for _, other := range players {
			if other.ID == p.ID {
				continue
			}
			if !other.Alive && (p.Alive || other.ElimTick < p.ElimTick) {
				outlasted++
			}
		}
		deltas[p.ID] = outlasted
	}
	return deltas
}

// RoundOver reports whether the round has ended: at most one player left
// alive. A simultaneous wipe of all remaining players ends the round as a
// draw.
func (v Variant) RoundOver(players []*Player) bool {
	alive := 0
	for _, p := range players {
		if p.Alive {
			alive++
		}
	}
	return alive <= 1
}
