package main

// Player holds one player's simulation state for the current round.
type Player struct {
	ID      uint8
	Pos     Position
	Dir     Direction
	Pending Direction
	Alive   bool
	Score   int

	// Tail is the mobile trailing body, oldest segment first. Only Hustle
	// uses it; the other variants leave it empty.
	Tail       []Position
	TailTarget int

	// ElimTick is the tick the player was eliminated on, used for
	// elimination-order scoring. Zero while alive.
	ElimTick uint32

	// AuthPlayerID links to an account row, 0 for guests without accounts.
	AuthPlayerID int64
	Name         string
}

// NewPlayer creates a player at a starting position and facing.
func NewPlayer(id uint8, pos Position, dir Direction) *Player {
	return &Player{
		ID:      id,
		Pos:     pos,
		Dir:     dir,
		Pending: dir,
		Alive:   true,
	}
}

// OnTail reports whether p's tail currently occupies the given cell.
func (p *Player) OnTail(pos Position) bool {
	for _, seg := range p.Tail {
		if seg == pos {
			return true
		}
	}
	return false
}

// PlayerView is the wire snapshot of a player, broadcast each tick.
type PlayerView struct {
	ID    uint8      `json:"id" msgpack:"id"`
	Name  string     `json:"n" msgpack:"n"`
	Pos   Position   `json:"p" msgpack:"p"`
	Dir   uint8      `json:"d" msgpack:"d"`
	Alive bool       `json:"a" msgpack:"a"`
	Score int        `json:"sc" msgpack:"sc"`
	Tail  []Position `json:"t,omitempty" msgpack:"t,omitempty"`
}

// ToView builds the broadcastable snapshot of the player.
func (p *Player) ToView() PlayerView {
	v := PlayerView{
		ID:    p.ID,
		Name:  p.Name,
		Pos:   p.Pos,
		Dir:   uint8(p.Dir),
		Alive: p.Alive,
		Score: p.Score,
	}
	if len(p.Tail) > 0 {
		v.Tail = append([]Position(nil), p.Tail...)
	}
	return v
}
