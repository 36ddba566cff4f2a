package main

import (
	"sync"
	"testing"
	"time"
)

// mockBroadcaster records everything the game sends to a connection.
type mockBroadcaster struct {
	mu    sync.Mutex
	jsons []Envelope
	bins  [][]byte
}

func (m *mockBroadcaster) SendJSON(msg interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if env, ok := msg.(Envelope); ok {
		m.jsons = append(m.jsons, env)
	}
}

func (m *mockBroadcaster) SendBinary(data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bins = append(m.bins, append([]byte(nil), data...))
}

func (m *mockBroadcaster) sawMsg(t string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, env := range m.jsons {
		if env.T == t {
			return true
		}
	}
	return false
}

func (m *mockBroadcaster) binCount(tag byte) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, b := range m.bins {
		if len(b) > 0 && b[0] == tag {
			n++
		}
	}
	return n
}

// testConfig shrinks the default config so a full match resolves in a few
// dozen update calls. The 11x12 board makes the straight-line paths of the
// two silent seats unequal, so rounds end with a winner instead of a draw.
func testConfig() MatchConfig {
	cfg := DefaultConfig(VariantBlockade, 2)
	cfg.BoardWidth = 11
	cfg.BoardHeight = 12
	cfg.InputTimeout = 20 * time.Millisecond
	cfg.ChecksumEvery = 1
	cfg.TargetScore = 1
	cfg.CountdownTicks = 1
	cfg.MaxResyncs = 1
	return cfg
}

func startedGame(t *testing.T) (*Game, *mockBroadcaster, *mockBroadcaster) {
	t.Helper()
	g := NewGame(testConfig(), nil, nil, "test")
	a, b := &mockBroadcaster{}, &mockBroadcaster{}
	if _, err := g.AddSeats("conn-a", a, "alice", 1, false, 0); err != nil {
		t.Fatal(err)
	}
	if _, err := g.AddSeats("conn-b", b, "bob", 1, false, 0); err != nil {
		t.Fatal(err)
	}
	g.HandleReady("conn-a")
	g.HandleReady("conn-b")
	if g.Phase() != PhaseCountdown {
		t.Fatalf("phase = %v after both ready, want countdown", g.Phase())
	}
	g.update() // countdown of 1 tick rolls straight into the round
	if g.Phase() != PhasePlaying {
		t.Fatalf("phase = %v, want playing", g.Phase())
	}
	return g, a, b
}

func TestGameStartsWhenAllReady(t *testing.T) {
	g, a, _ := startedGame(t)
	if g.engine == nil {
		t.Fatal("no engine after round start")
	}
	if a.binCount(pktState) != 1 {
		t.Error("round start must broadcast a state snapshot")
	}
	if !a.sawMsg(MsgSeatUpdate) {
		t.Error("seat claims must broadcast seat updates")
	}
}

func TestGameSeatLimits(t *testing.T) {
	g := NewGame(testConfig(), nil, nil, "test")
	a := &mockBroadcaster{}
	if _, err := g.AddSeats("conn-a", a, "alice", 3, false, 0); err == nil {
		t.Error("claiming more seats than the variant allows must fail")
	}
	if _, err := g.AddSeats("conn-a", a, "alice", 2, false, 0); err != nil {
		t.Fatal(err)
	}
	if _, err := g.AddBot(); err == nil {
		t.Error("bot must not squeeze into a full lobby")
	}
}

func TestGameBotFillsSeatAndStarts(t *testing.T) {
	g := NewGame(testConfig(), nil, nil, "test")
	a := &mockBroadcaster{}
	if _, err := g.AddSeats("conn-a", a, "alice", 1, false, 0); err != nil {
		t.Fatal(err)
	}
	if _, err := g.AddBot(); err != nil {
		t.Fatal(err)
	}
	g.HandleReady("conn-a") // bot is always ready
	if g.Phase() != PhaseCountdown {
		t.Errorf("phase = %v, want countdown once the human readies up", g.Phase())
	}
}

func TestGamePlaysRoundToMatchOver(t *testing.T) {
	g, a, b := startedGame(t)

	for i := 0; i < 100 && g.Phase() == PhasePlaying; i++ {
		g.update()
	}
	if g.Phase() != PhaseResult {
		t.Fatalf("phase = %v, want result with target score 1", g.Phase())
	}
	if !a.sawMsg(MsgRoundOver) || !a.sawMsg(MsgMatchOver) {
		t.Error("round and match results must be broadcast")
	}
	if !b.sawMsg(MsgMatchOver) {
		t.Error("every connection gets the match result")
	}
	if a.binCount(pktInput) == 0 {
		t.Error("resolved inputs must be relayed every tick")
	}
	if a.binCount(pktTick) == 0 {
		t.Error("tick results must be broadcast")
	}
	// Seat 2's straight path is one cell longer, so it survives seat 1.
	if w, done := g.match.Leader(g.cfg.TargetScore); !done || w != 2 {
		t.Errorf("winner = %d done=%v, want seat 2", w, done)
	}
}

func TestGameLocalInputOwnership(t *testing.T) {
	g, _, _ := startedGame(t)
	p1 := findPlayer(g.engine, 1)

	g.HandleLocalInput("conn-b", 1, uint8(DirRight)) // not conn-b's seat
	g.update()
	if p1.Dir != DirDown {
		t.Fatalf("foreign input applied: dir = %v", p1.Dir)
	}

	g.HandleLocalInput("conn-a", 1, uint8(DirRight))
	g.update()
	if p1.Dir != DirRight {
		t.Errorf("own input ignored: dir = %v", p1.Dir)
	}

	g.HandleLocalInput("conn-a", 1, 99) // malformed direction byte
	g.update()
	if p1.Dir != DirRight {
		t.Errorf("malformed input changed direction to %v", p1.Dir)
	}
}

func TestGameMidRoundDisconnectAborts(t *testing.T) {
	g, a, _ := startedGame(t)
	g.update()
	g.RemoveConn("conn-b")
	if g.Phase() != PhaseLobby {
		t.Fatalf("phase = %v, want lobby after mid-round disconnect", g.Phase())
	}
	if !a.sawMsg(MsgAborted) {
		t.Error("remaining connection must learn about the abort")
	}
	for _, s := range g.seats {
		if !s.IsBot && s.Ready {
			t.Error("humans must re-ready after an abort")
		}
	}
}

func TestGameRematchResetsScores(t *testing.T) {
	g, _, _ := startedGame(t)
	for i := 0; i < 100 && g.Phase() == PhasePlaying; i++ {
		g.update()
	}
	if g.Phase() != PhaseResult {
		t.Fatal("expected a finished match")
	}

	g.HandleRematch("conn-a")
	if g.Phase() != PhaseResult {
		t.Fatal("rematch needs every human connection")
	}
	g.HandleRematch("conn-b")
	if g.Phase() != PhaseCountdown {
		t.Fatalf("phase = %v, want countdown after unanimous rematch", g.Phase())
	}
	if len(g.match.Scores) != 0 || g.match.Round != 0 {
		t.Errorf("match state not reset: %+v", g.match)
	}
}

func TestGameObservers(t *testing.T) {
	g, _, _ := startedGame(t)
	var mu sync.Mutex
	seen := 0
	cancel := g.Subscribe(func(TickResult) {
		mu.Lock()
		seen++
		mu.Unlock()
	})
	g.update()
	g.update()
	cancel()
	g.update()

	mu.Lock()
	defer mu.Unlock()
	if seen != 2 {
		t.Errorf("observer saw %d ticks, want 2", seen)
	}
}

func TestGameResyncsDivergentPeer(t *testing.T) {
	cfg := testConfig()
	cfg.InputTimeout = time.Millisecond
	g := NewGame(cfg, nil, nil, "test")
	a, b := &mockBroadcaster{}, &mockBroadcaster{}
	if _, err := g.AddSeats("conn-a", a, "alice", 1, false, 0); err != nil {
		t.Fatal(err)
	}
	seats, err := g.AddSeats("conn-b", b, "bob", 1, true, 0)
	if err != nil {
		t.Fatal(err)
	}
	peer := seats[0].ID
	g.HandleReady("conn-a")
	g.HandleReady("conn-b")
	g.update() // countdown
	g.update() // tick 0, records checksum for tick 1
	g.update() // tick 1

	g.SubmitPeerChecksum(peer, ChecksumPacket{Tick: 1, Checksum: 0xBAD})
	g.update()
	if !b.sawMsg(MsgDiverged) {
		t.Fatal("divergent peer not notified")
	}
	if b.binCount(pktResync) != 1 {
		t.Errorf("resync snapshots sent = %d, want 1", b.binCount(pktResync))
	}
	if a.sawMsg(MsgDiverged) {
		t.Error("in-sync connection must not be told it diverged")
	}

	// A second divergence exceeds MaxResyncs=1 and aborts the round.
	g.SubmitPeerChecksum(peer, ChecksumPacket{Tick: 2, Checksum: 0xBAD})
	g.update()
	if g.Phase() != PhaseLobby {
		t.Errorf("phase = %v, want lobby after repeated divergence", g.Phase())
	}
	if !b.sawMsg(MsgAborted) {
		t.Error("abort must be broadcast")
	}
}

func TestGameMatchingPeerChecksumPasses(t *testing.T) {
	cfg := testConfig()
	cfg.InputTimeout = time.Millisecond
	g := NewGame(cfg, nil, nil, "test")
	a, b := &mockBroadcaster{}, &mockBroadcaster{}
	g.AddSeats("conn-a", a, "alice", 1, false, 0)
	seats, _ := g.AddSeats("conn-b", b, "bob", 1, true, 0)
	g.HandleReady("conn-a")
	g.HandleReady("conn-b")
	g.update()
	g.update() // tick 0

	sum := g.engine.Checksum()
	g.SubmitPeerChecksum(seats[0].ID, ChecksumPacket{Tick: g.engine.Tick(), Checksum: sum})
	g.update()
	if b.sawMsg(MsgDiverged) {
		t.Error("matching checksum flagged as divergence")
	}
}
