package main

// Direction is a grid-aligned facing, encoded as a single byte on the wire.
type Direction uint8

const (
	DirUp Direction = iota
	DirDown
	DirLeft
	DirRight
)

// ValidDirection reports whether a wire byte decodes to a known direction.
func ValidDirection(b uint8) bool {
	return b <= uint8(DirRight)
}

// Opposite returns the 180° reversal of d.
func (d Direction) Opposite() Direction {
	switch d {
	case DirUp:
		return DirDown
	case DirDown:
		return DirUp
	case DirLeft:
		return DirRight
	default:
		return DirLeft
	}
}

func (d Direction) String() string {
	switch d {
	case DirUp:
		return "up"
	case DirDown:
		return "down"
	case DirLeft:
		return "left"
	default:
		return "right"
	}
}

// Position is a 0-indexed (column, row) cell coordinate.
type Position struct {
	X int `json:"x" msgpack:"x"`
	Y int `json:"y" msgpack:"y"`
}

// Step returns the neighboring position one cell in the given direction.
func (p Position) Step(d Direction) Position {
	switch d {
	case DirUp:
		return Position{p.X, p.Y - 1}
	case DirDown:
		return Position{p.X, p.Y + 1}
	case DirLeft:
		return Position{p.X - 1, p.Y}
	default:
		return Position{p.X + 1, p.Y}
	}
}

// CellKind classifies one board cell.
type CellKind uint8

const (
	CellEmpty CellKind = iota
	CellWall
	CellOffBoard
)

// Cell is one grid cell. Owner is the player that laid the wall segment;
// owner 0 marks board furniture (border walls, variant obstacles).
type Cell struct {
	Kind  CellKind `msgpack:"k"`
	Owner uint8    `msgpack:"o"`
}

// Board is a fixed-size grid of cells. It is created once per round from the
// active variant's layout and owned exclusively by that round's engine.
type Board struct {
	Width  int
	Height int
	cells  []Cell
}

// NewBoard returns an empty board of the given size with the playfield
// border pre-walled, matching the original cabinet playfield.
func NewBoard(width, height int) *Board {
	b := &Board{
		Width:  width,
		Height: height,
		cells:  make([]Cell, width*height),
	}
	for x := 0; x < width; x++ {
		b.MarkWall(Position{x, 0}, 0)
		b.MarkWall(Position{x, height - 1}, 0)
	}
	for y := 1; y < height-1; y++ {
		b.MarkWall(Position{0, y}, 0)
		b.MarkWall(Position{width - 1, y}, 0)
	}
	return b
}

func (b *Board) inBounds(p Position) bool {
	return p.X >= 0 && p.X < b.Width && p.Y >= 0 && p.Y < b.Height
}

// CellAt classifies the cell at p. Out-of-bounds positions classify as
// OffBoard rather than failing, so edge collisions need no special case.
func (b *Board) CellAt(p Position) Cell {
	if !b.inBounds(p) {
		return Cell{Kind: CellOffBoard}
	}
	return b.cells[p.Y*b.Width+p.X]
}

// IsPassable reports whether p is an in-bounds empty cell.
func (b *Board) IsPassable(p Position) bool {
	return b.inBounds(p) && b.cells[p.Y*b.Width+p.X].Kind == CellEmpty
}

// MarkWall turns the cell at p into a wall segment owned by owner.
func (b *Board) MarkWall(p Position, owner uint8) {
	if !b.inBounds(p) {
		return
	}
	b.cells[p.Y*b.Width+p.X] = Cell{Kind: CellWall, Owner: owner}
}

// ClearCell returns the cell at p to empty. Only tail segments are ever
// cleared; walls laid in Blockade and Comotion are permanent for the round.
func (b *Board) ClearCell(p Position) {
	if !b.inBounds(p) {
		return
	}
	b.cells[p.Y*b.Width+p.X] = Cell{}
}

// Pack flattens the grid into one byte per cell (0 = empty, owner+1 = wall)
// for resync snapshots and checksumming.
func (b *Board) Pack() []byte {
	packed := make([]byte, len(b.cells))
	for i, c := range b.cells {
		if c.Kind == CellWall {
			packed[i] = c.Owner + 1
		}
	}
	return packed
}

// Unpack restores grid contents from a packed snapshot. The packed length
// must match the board size; extra or missing bytes leave the board unchanged.
func (b *Board) Unpack(packed []byte) bool {
	if len(packed) != len(b.cells) {
		return false
	}
	for i, v := range packed {
		if v == 0 {
			b.cells[i] = Cell{}
		} else {
			b.cells[i] = Cell{Kind: CellWall, Owner: v - 1}
		}
	}
	return true
}
