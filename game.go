package main

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// Broadcaster is the outbound side of a connection, as seen by the game.
type Broadcaster interface {
	SendJSON(msg interface{})
	SendBinary(data []byte)
}

// Observer receives per-tick results. Presentation layers and tests
// subscribe; they must treat the result as read-only.
type Observer func(TickResult)

// Seat is one claimed player slot. Every seat has a local channel (bots and
// same-device players submit through it); remote peers additionally get a
// remote channel fed with tick-stamped packets.
type Seat struct {
	ID      uint8
	Name    string
	ConnID  string
	Ready   bool
	Rematch bool
	IsBot   bool

	AuthPlayerID int64

	local  *LocalChannel
	remote *RemoteChannel
	bot    *Bot
	conn   Broadcaster
}

// Game owns one match: board, players, variant rules, input channels, the
// lockstep scheduler, and the fixed-rate round loop. Exactly one goroutine
// (Run) drives the simulation; connection goroutines only touch the
// thread-safe channel queues and the mutex-guarded lobby state.
type Game struct {
	mu       sync.Mutex
	cfg      MatchConfig
	seats    map[uint8]*Seat
	engine   *Engine
	lockstep *Lockstep
	wake     chan struct{}
	match    MatchState

	observers map[int]Observer
	nextObs   int

	resyncs map[uint8]int // per-seat resyncs this round

	running bool
	stop    chan struct{}

	db        *DB
	analytics *Analytics
	sessionID string
}

// NewGame creates a game for the given match config.
func NewGame(cfg MatchConfig, db *DB, analytics *Analytics, sessionID string) *Game {
	wake := make(chan struct{}, 1)
	return &Game{
		cfg:       cfg,
		seats:     make(map[uint8]*Seat),
		lockstep:  NewLockstep(wake, cfg.InputTimeout, cfg.ChecksumEvery),
		wake:      wake,
		match:     NewMatchState(),
		observers: make(map[int]Observer),
		resyncs:   make(map[uint8]int),
		stop:      make(chan struct{}),
		db:        db,
		analytics: analytics,
		sessionID: sessionID,
	}
}

// Run drives the fixed-rate loop until Stop.
func (g *Game) Run() {
	g.mu.Lock()
	g.running = true
	g.mu.Unlock()

	ticker := time.NewTicker(g.cfg.TickDuration())
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			g.update()
		case <-g.stop:
			return
		}
	}
}

// Stop terminates the game loop.
func (g *Game) Stop() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.running {
		g.running = false
		close(g.stop)
	}
}

// Subscribe registers a per-tick observer and returns a cancel func.
func (g *Game) Subscribe(fn Observer) func() {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := g.nextObs
	g.nextObs++
	g.observers[id] = fn
	return func() {
		g.mu.Lock()
		delete(g.observers, id)
		g.mu.Unlock()
	}
}

// Variant returns the configured rule variant.
func (g *Game) Variant() Variant { return g.cfg.Variant }

// Phase returns the current match phase.
func (g *Game) Phase() MatchPhase {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.match.Phase
}

// SeatCount returns the number of claimed seats.
func (g *Game) SeatCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.seats)
}

// HumanSeats returns the number of non-bot seats.
func (g *Game) HumanSeats() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, s := range g.seats {
		if !s.IsBot {
			n++
		}
	}
	return n
}

// Snapshot returns the current full simulation state, or false while no
// round is running.
func (g *Game) Snapshot() (StateSnapshot, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.engine == nil {
		return StateSnapshot{}, false
	}
	return g.engine.Snapshot(), true
}

// AddSeats claims count seats for a connection. Remote connections get
// lockstep peer channels; local connections submit through local channels
// that never gate the tick. Returns the claimed seat ids.
func (g *Game) AddSeats(connID string, conn Broadcaster, name string, count int, remote bool, authID int64) ([]*Seat, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.match.Phase != PhaseLobby {
		return nil, fmt.Errorf("match already started")
	}
	if count < 1 {
		count = 1
	}
	if len(g.seats)+count > g.cfg.Players {
		return nil, fmt.Errorf("not enough free seats")
	}

	var claimed []*Seat
	for i := 0; i < count; i++ {
		id := g.freeSeatLocked()
		seat := &Seat{
			ID:           id,
			Name:         seatName(name, i, count),
			ConnID:       connID,
			AuthPlayerID: authID,
			local:        NewLocalChannel(id),
			conn:         conn,
		}
		if remote {
			seat.remote = NewRemoteChannel(id, g.wake)
			g.lockstep.Attach(seat.remote)
		} else {
			g.lockstep.Attach(seat.local)
		}
		g.seats[id] = seat
		claimed = append(claimed, seat)
	}
	g.broadcastSeatsLocked()
	return claimed, nil
}

// AddBot fills one free seat with a bot. Bots are always ready.
func (g *Game) AddBot() (uint8, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.match.Phase != PhaseLobby {
		return 0, fmt.Errorf("match already started")
	}
	if len(g.seats) >= g.cfg.Players {
		return 0, fmt.Errorf("no free seats")
	}
	id := g.freeSeatLocked()
	seat := &Seat{
		ID:    id,
		Name:  fmt.Sprintf("Bot %d", id),
		Ready: true,
		IsBot: true,
		local: NewLocalChannel(id),
	}
	seat.bot = NewBot(seat.local, time.Now().UnixNano())
	g.lockstep.Attach(seat.local)
	g.seats[id] = seat
	g.broadcastSeatsLocked()
	g.maybeStartLocked()
	return id, nil
}

// RemoveConn releases every seat held by a connection. A mid-round
// disconnect aborts the round at the next tick boundary rather than playing
// on with a ghost.
func (g *Game) RemoveConn(connID string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	removed := false
	for id, s := range g.seats {
		if s.ConnID != connID {
			continue
		}
		g.lockstep.Detach(id)
		delete(g.seats, id)
		removed = true
	}
	if !removed {
		return
	}
	if g.match.Phase == PhasePlaying || g.match.Phase == PhaseCountdown {
		g.abortRoundLocked("player disconnected")
	}
	g.broadcastSeatsLocked()
}

// HandleReady marks a connection's seats ready and starts the countdown once
// every seat is.
func (g *Game) HandleReady(connID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.match.Phase != PhaseLobby {
		return
	}
	for _, s := range g.seats {
		if s.ConnID == connID {
			s.Ready = true
		}
	}
	g.broadcastSeatsLocked()
	g.maybeStartLocked()
}

// HandleRematch counts rematch votes after a match; when every human
// connection votes, scores reset and a new match starts.
func (g *Game) HandleRematch(connID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.match.Phase != PhaseResult {
		return
	}
	for _, s := range g.seats {
		if s.ConnID == connID {
			s.Rematch = true
		}
	}
	for _, s := range g.seats {
		if !s.IsBot && !s.Rematch {
			return
		}
	}
	g.match = NewMatchState()
	for _, s := range g.seats {
		s.Rematch = false
		s.Ready = true
	}
	g.startCountdownLocked()
}

// HandleLocalInput accepts a same-device direction command. Commands for
// unclaimed seats, foreign seats, or dead players are silently ignored, as
// are malformed directions: invalid turns are policy-rejected, never errors.
func (g *Game) HandleLocalInput(connID string, seatID uint8, dir uint8) {
	if !ValidDirection(dir) {
		return
	}
	g.mu.Lock()
	seat, ok := g.seats[seatID]
	if !ok || seat.ConnID != connID || seat.remote != nil {
		g.mu.Unlock()
		return
	}
	ch := seat.local
	g.mu.Unlock()
	ch.Submit(Direction(dir))
}

// maybeStartLocked begins the countdown when the lobby is full and ready.
func (g *Game) maybeStartLocked() {
	if g.match.Phase != PhaseLobby || len(g.seats) != g.cfg.Players {
		return
	}
	for _, s := range g.seats {
		if !s.Ready {
			return
		}
	}
	g.startCountdownLocked()
}

func (g *Game) startCountdownLocked() {
	g.match.Phase = PhaseCountdown
	g.match.CountdownT = g.cfg.CountdownTicks
	g.match.StartedAt = time.Now()
	if g.analytics != nil {
		g.analytics.Track(EvtMatchStart, 0, g.sessionID, g.cfg.Variant.String())
	}
}

// update advances one tick of whatever phase the match is in.
func (g *Game) update() {
	g.mu.Lock()
	defer g.mu.Unlock()

	switch g.match.Phase {
	case PhaseCountdown:
		g.match.CountdownT--
		if g.match.CountdownT%g.cfg.TickRate == 0 {
			g.broadcastLocked(Envelope{T: MsgCountdown, Data: g.match.CountdownT / g.cfg.TickRate})
		}
		if g.match.CountdownT <= 0 {
			g.startRoundLocked()
		}
	case PhasePlaying:
		g.runTickLocked()
	}
}

// startRoundLocked builds a fresh board and players from the variant layout
// and broadcasts the starting snapshot. Round-scoped state from the previous
// round is dropped wholesale.
func (g *Game) startRoundLocked() {
	engine, err := NewEngine(g.cfg.Variant, g.cfg.BoardWidth, g.cfg.BoardHeight, g.cfg.Players, g.cfg.TailTarget)
	if err != nil {
		// Config was validated at creation; failure here is a bug.
		log.Printf("game %s: layout failed: %v", g.sessionID, err)
		g.match.Phase = PhaseLobby
		return
	}
	for _, p := range engine.Players() {
		if seat, ok := g.seats[p.ID]; ok {
			p.Name = seat.Name
			p.AuthPlayerID = seat.AuthPlayerID
		}
		p.Score = g.match.Scores[p.ID]
	}
	g.engine = engine
	g.lockstep.Reset()
	g.resyncs = make(map[uint8]int)
	g.match.Phase = PhasePlaying

	snap, _ := msgpack.Marshal(engine.Snapshot())
	g.broadcastBinaryLocked(append([]byte{pktState}, snap...))
	g.planBotsLocked()
}

// runTickLocked resolves exactly one simulation tick: gather commands
// (bounded wait on remote seats), relay the agreed command set to peers,
// step the engine, audit checksums, publish the result.
func (g *Game) runTickLocked() {
	tick := g.engine.Tick()

	alive := make(map[uint8]bool, len(g.seats))
	for _, p := range g.engine.Players() {
		if p.Alive {
			alive[p.ID] = true
		}
	}

	cmds := g.lockstep.Collect(tick, alive)
	if g.lockstep.Violated() {
		g.abortRoundLocked("tick ordering violated")
		return
	}

	// Relay the resolved command set so every peer replays this tick from
	// identical inputs, including the defaults filled in for missing seats.
	for _, p := range g.engine.Players() {
		if !p.Alive {
			continue
		}
		dir, ok := cmds[p.ID]
		if !ok {
			dir = p.Dir
		}
		pkt := EncodeInputPacket(InputPacket{Tick: tick, PlayerID: p.ID, Direction: uint8(dir)})
		g.broadcastBinaryLocked(pkt)
	}

	res := g.engine.Step(cmds)

	if g.lockstep.ChecksumDue(tick) && !res.RoundOver {
		sum := g.engine.Checksum()
		g.lockstep.RecordChecksum(g.engine.Tick(), sum)
		g.broadcastBinaryLocked(EncodeChecksumPacket(ChecksumPacket{Tick: g.engine.Tick(), Checksum: sum}))
	}
	g.auditPeersLocked()

	data, err := msgpack.Marshal(res)
	if err == nil {
		g.broadcastBinaryLocked(append([]byte{pktTick}, data...))
	}
	for _, fn := range g.observers {
		fn(res)
	}
	g.planBotsLocked()

	if res.RoundOver {
		g.finishRoundLocked(res.Result)
	}
}

// auditPeersLocked compares peer checksums against our own and resyncs
// divergent peers with an authoritative snapshot. A peer that keeps
// diverging gets the round aborted as a connectivity failure.
func (g *Game) auditPeersLocked() {
	for _, div := range g.lockstep.Audit() {
		log.Printf("game %s: divergence at tick %d seat %d (host %016x peer %016x)",
			g.sessionID, div.Tick, div.Seat, div.Want, div.Got)
		if g.analytics != nil {
			g.analytics.Track(EvtDivergence, 0, g.sessionID, fmt.Sprintf("tick=%d seat=%d", div.Tick, div.Seat))
		}
		seat, ok := g.seats[div.Seat]
		if !ok || seat.conn == nil {
			continue
		}
		g.resyncs[div.Seat]++
		if g.resyncs[div.Seat] > g.cfg.MaxResyncs {
			g.abortRoundLocked("peer could not stay in sync")
			return
		}
		seat.conn.SendJSON(Envelope{T: MsgDiverged, Data: DivergedMsg{Tick: div.Tick, Seat: div.Seat}})
		snap, err := msgpack.Marshal(g.engine.Snapshot())
		if err == nil {
			seat.conn.SendBinary(append([]byte{pktResync}, snap...))
		}
		if g.analytics != nil {
			g.analytics.Track(EvtResync, 0, g.sessionID, fmt.Sprintf("seat=%d", div.Seat))
		}
	}
}

// planBotsLocked lets every bot seat choose its next direction.
func (g *Game) planBotsLocked() {
	if g.engine == nil || g.engine.Over() {
		return
	}
	for _, s := range g.seats {
		if s.bot != nil {
			s.bot.Plan(g.engine)
		}
	}
}

// finishRoundLocked applies round scores and either starts the next round's
// countdown or ends the match.
func (g *Game) finishRoundLocked(result *RoundResult) {
	g.match.ApplyRound(result.Scores)
	g.broadcastLocked(Envelope{T: MsgRoundOver, Data: result})
	if g.analytics != nil {
		g.analytics.Track(EvtRoundEnd, 0, g.sessionID, fmt.Sprintf("round=%d winner=%d", g.match.Round, result.Winner))
	}

	winner, done := g.match.Leader(g.cfg.TargetScore)
	if !done {
		g.match.Phase = PhaseCountdown
		g.match.CountdownT = g.cfg.CountdownTicks
		return
	}

	g.match.Phase = PhaseResult
	scores := make(map[uint8]int, len(g.match.Scores))
	for id, sc := range g.match.Scores {
		scores[id] = sc
	}
	g.broadcastLocked(Envelope{T: MsgMatchOver, Data: MatchOverMsg{Winner: winner, Scores: scores}})
	if g.analytics != nil {
		g.analytics.Track(EvtMatchEnd, 0, g.sessionID, fmt.Sprintf("winner=%d rounds=%d", winner, g.match.Round))
	}
	g.persistMatchLocked(winner)
}

// AbortRound cancels the running round at the next tick boundary.
func (g *Game) AbortRound(reason string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.abortRoundLocked(reason)
}

func (g *Game) abortRoundLocked(reason string) {
	if g.match.Phase != PhasePlaying && g.match.Phase != PhaseCountdown {
		return
	}
	var result *RoundResult
	if g.engine != nil {
		result = g.engine.Abort()
	} else {
		result = &RoundResult{Aborted: true, Scores: map[uint8]int{}}
	}
	log.Printf("game %s: round aborted: %s", g.sessionID, reason)
	g.broadcastLocked(Envelope{T: MsgAborted, Data: AbortedMsg{Reason: reason}})
	g.broadcastLocked(Envelope{T: MsgRoundOver, Data: result})
	if g.analytics != nil {
		g.analytics.Track(EvtRoundAbort, 0, g.sessionID, reason)
	}
	g.match.Phase = PhaseLobby
	for _, s := range g.seats {
		s.Ready = s.IsBot
	}
}

// persistMatchLocked records the finished match for seats with accounts.
// Database writes leave the tick goroutine.
func (g *Game) persistMatchLocked(winner uint8) {
	if g.db == nil {
		return
	}
	type row struct {
		seat  uint8
		pid   int64
		score int
		won   bool
		conn  Broadcaster
	}
	var rows []row
	for id, s := range g.seats {
		if s.AuthPlayerID == 0 {
			continue
		}
		rows = append(rows, row{seat: id, pid: s.AuthPlayerID, score: g.match.Scores[id], won: id == winner, conn: s.conn})
	}
	variant := g.cfg.Variant
	rounds := g.match.Round
	duration := time.Since(g.match.StartedAt).Seconds()

	go func() {
		matchID, err := g.db.RecordMatch(int(variant), rounds, duration, int(winner))
		if err != nil {
			log.Printf("record match: %v", err)
			return
		}
		for _, r := range rows {
			if err := g.db.RecordMatchPlayer(matchID, r.pid, int(r.seat), r.score, r.won); err != nil {
				log.Printf("record match player: %v", err)
			}
			roundsLost := rounds - r.score
			if roundsLost < 0 {
				roundsLost = 0
			}
			if err := g.db.UpdateStatsAfterMatch(r.pid, r.score, roundsLost, r.won, duration); err != nil {
				log.Printf("update stats: %v", err)
			}
			unlocked := CheckAchievements(g.db, r.pid, variant, roundsLost, r.won)
			if len(unlocked) > 0 && r.conn != nil {
				r.conn.SendJSON(Envelope{T: MsgAchievement, Data: unlocked})
			}
		}
	}()
}

// SubmitPeerChecksum feeds a peer's checksum packet into the audit. Safe to
// call from connection goroutines.
func (g *Game) SubmitPeerChecksum(seat uint8, pkt ChecksumPacket) {
	g.lockstep.SubmitPeerChecksum(seat, pkt.Tick, pkt.Checksum)
}

// SeatList returns the lobby view of all seats.
func (g *Game) SeatList() []SeatInfo {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.seatListLocked()
}

func (g *Game) seatListLocked() []SeatInfo {
	list := make([]SeatInfo, 0, len(g.seats))
	for id := uint8(1); id <= uint8(g.cfg.Players); id++ {
		if s, ok := g.seats[id]; ok {
			list = append(list, SeatInfo{ID: s.ID, Name: s.Name, Ready: s.Ready, Bot: s.IsBot})
		}
	}
	return list
}

func (g *Game) broadcastSeatsLocked() {
	g.broadcastLocked(Envelope{T: MsgSeatUpdate, Data: g.seatListLocked()})
}

func (g *Game) broadcastLocked(msg Envelope) {
	sent := make(map[string]bool, len(g.seats))
	for _, s := range g.seats {
		if s.conn == nil || sent[s.ConnID] {
			continue
		}
		sent[s.ConnID] = true
		s.conn.SendJSON(msg)
	}
}

func (g *Game) broadcastBinaryLocked(data []byte) {
	sent := make(map[string]bool, len(g.seats))
	for _, s := range g.seats {
		if s.conn == nil || sent[s.ConnID] {
			continue
		}
		sent[s.ConnID] = true
		s.conn.SendBinary(data)
	}
}

// freeSeatLocked returns the lowest unclaimed seat id.
func (g *Game) freeSeatLocked() uint8 {
	for id := uint8(1); ; id++ {
		if _, ok := g.seats[id]; !ok {
			return id
		}
	}
}

// seatName disambiguates multiple same-device seats sharing one name.
func seatName(name string, i, count int) string {
	if count == 1 {
		return name
	}
	return fmt.Sprintf("%s %d", name, i+1)
}
