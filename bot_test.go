package main

import "testing"

func TestBotPicksOnlySafeDirection(t *testing.T) {
	e, err := NewEngine(VariantBlockade, 11, 11, 2, 0)
	if err != nil {
		t.Fatal(err)
	}
	p1 := findPlayer(e, 1)
	p1.Pos = Position{5, 5}
	forceHeading(p1, DirUp)

	// Wall off everything except down. Down is the reversal, so the only
	// legal safe move is... none for blockade; leave right open instead.
	e.Board().MarkWall(Position{5, 4}, 2) // up
	e.Board().MarkWall(Position{4, 5}, 2) // left

	ch := NewLocalChannel(1)
	bot := NewBot(ch, 1)
	for i := 0; i < 20; i++ {
		bot.Plan(e)
		cmd, ok := ch.NextCommand()
		if !ok {
			t.Fatal("bot submitted nothing despite a safe move existing")
		}
		if cmd.Dir != DirRight {
			t.Fatalf("bot chose %v, only right is safe", cmd.Dir)
		}
	}
}

func TestBotRidesOutWhenTrapped(t *testing.T) {
	e, err := NewEngine(VariantBlockade, 11, 11, 2, 0)
	if err != nil {
		t.Fatal(err)
	}
	p1 := findPlayer(e, 1)
	p1.Pos = Position{5, 5}
	forceHeading(p1, DirUp)
	e.Board().MarkWall(Position{5, 4}, 2)
	e.Board().MarkWall(Position{4, 5}, 2)
	e.Board().MarkWall(Position{6, 5}, 2)

	ch := NewLocalChannel(1)
	bot := NewBot(ch, 1)
	bot.Plan(e)
	if _, ok := ch.NextCommand(); ok {
		t.Error("trapped bot should not submit a command")
	}
}

func TestBotAvoidsOtherHead(t *testing.T) {
	e, err := NewEngine(VariantBlockade, 11, 11, 2, 0)
	if err != nil {
		t.Fatal(err)
	}
	p1, p2 := findPlayer(e, 1), findPlayer(e, 2)
	p1.Pos = Position{5, 5}
	forceHeading(p1, DirUp)
	p2.Pos = Position{5, 4} // directly ahead
	e.Board().MarkWall(Position{4, 5}, 2)
	e.Board().MarkWall(Position{6, 5}, 2)

	ch := NewLocalChannel(1)
	bot := NewBot(ch, 1)
	bot.Plan(e)
	if cmd, ok := ch.NextCommand(); ok {
		t.Errorf("only move avoiding the other head is the reversal, bot chose %v", cmd.Dir)
	}
}

func TestBotSurvivesOpenBoard(t *testing.T) {
	e, err := NewEngine(VariantBlockade, 32, 28, 2, 0)
	if err != nil {
		t.Fatal(err)
	}
	ch1 := NewLocalChannel(1)
	ch2 := NewLocalChannel(2)
	b1 := NewBot(ch1, 7)
	b2 := NewBot(ch2, 11)

	// Two bots on an open board should fill a good share of it before
	// either runs out of room.
	ticks := 0
	for !e.Over() && ticks < 1000 {
		b1.Plan(e)
		b2.Plan(e)
		cmds := make(map[uint8]Direction)
		if c, ok := ch1.NextCommand(); ok {
			cmds[1] = c.Dir
		}
		if c, ok := ch2.NextCommand(); ok {
			cmds[2] = c.Dir
		}
		e.Step(cmds)
		ticks++
	}
	if ticks < 30 {
		t.Errorf("bots crashed after %d ticks, expected them to dodge longer", ticks)
	}
	if !e.Over() {
		t.Error("round should eventually end on a finite board")
	}
}
