package main

import (
	"log"
	"sync"
	"time"
)

const (
	// maxTickLead bounds how far ahead of the resolved tick a remote
	// command may be stamped before it is dropped as garbage.
	maxTickLead = 120

	// checksumKeep bounds how many audited ticks of checksum history are
	// retained before pruning.
	checksumKeep = 600
)

// Divergence reports a peer whose simulation no longer matches the host's.
type Divergence struct {
	Tick uint32
	Seat uint8
	Want uint64 // host checksum
	Got  uint64 // peer checksum
}

// Lockstep gathers one direction command per alive player per tick and
// releases ticks in strictly increasing order. It holds no simulation state,
// only per-tick buffers that are discarded once their tick resolves.
type Lockstep struct {
	channels map[uint8]InputChannel
	buffers  map[uint32]map[uint8]Direction
	resolved uint32 // next tick to be released
	violated bool   // ordering contract broken, round must not continue
	wake     chan struct{}
	timeout  time.Duration

	// Checksum audit state. Peer sums arrive from the network goroutines,
	// local sums from the round loop after each audited tick.
	sumMu     sync.Mutex
	peerSums  map[uint32]map[uint8]uint64
	localSums map[uint32]uint64
	every     uint32
}

// NewLockstep creates a scheduler with the given bounded per-tick wait and
// checksum exchange interval (in ticks). The wake channel is shared with the
// remote channels that poke it on delivery; pass nil to create a private one.
func NewLockstep(wake chan struct{}, timeout time.Duration, checksumEvery uint32) *Lockstep {
	if checksumEvery == 0 {
		checksumEvery = 1
	}
	if wake == nil {
		wake = make(chan struct{}, 1)
	}
	return &Lockstep{
		channels:  make(map[uint8]InputChannel),
		buffers:   make(map[uint32]map[uint8]Direction),
		wake:      wake,
		timeout:   timeout,
		peerSums:  make(map[uint32]map[uint8]uint64),
		localSums: make(map[uint32]uint64),
		every:     checksumEvery,
	}
}

// Wake is the signal channel remote channels poke on delivery.
func (ls *Lockstep) Wake() chan<- struct{} { return ls.wake }

// Reset clears all per-tick state for a fresh round. Attached channels are
// kept; stale buffered commands and checksums are dropped.
func (ls *Lockstep) Reset() {
	for _, ch := range ls.channels {
		for {
			if _, ok := ch.NextCommand(); !ok {
				break
			}
		}
	}
	ls.buffers = make(map[uint32]map[uint8]Direction)
	ls.resolved = 0
	ls.violated = false
	ls.sumMu.Lock()
	ls.peerSums = make(map[uint32]map[uint8]uint64)
	ls.localSums = make(map[uint32]uint64)
	ls.sumMu.Unlock()
}

// Attach registers a player's input channel.
func (ls *Lockstep) Attach(ch InputChannel) {
	ls.channels[ch.PlayerID()] = ch
}

// Detach removes a player's input channel (disconnect mid-round).
func (ls *Lockstep) Detach(id uint8) {
	delete(ls.channels, id)
}

// Violated reports whether ticks were ever collected out of order. This is a
// bug in the caller, not a network condition, and the round must abort.
func (ls *Lockstep) Violated() bool { return ls.violated }

// ChecksumDue reports whether the given tick ends a checksum interval.
func (ls *Lockstep) ChecksumDue(tick uint32) bool {
	return tick%ls.every == ls.every-1
}

// Collect blocks until commands for every expected remote seat at the given
// tick are buffered or the bounded wait elapses, then returns the command
// set for alive players. Seats with no command keep their current direction:
// a lost packet slows nobody down and never errors.
func (ls *Lockstep) Collect(tick uint32, alive map[uint8]bool) map[uint8]Direction {
	if tick != ls.resolved {
		// Strict ordering is a programming contract, not a network event.
		log.Printf("lockstep: tick %d collected out of order (want %d)", tick, ls.resolved)
		ls.violated = true
	}

	deadline := time.NewTimer(ls.timeout)
	defer deadline.Stop()
	waiting := true
	for waiting {
		ls.drain(tick)
		if ls.remoteReady(tick, alive) {
			break
		}
		select {
		case <-ls.wake:
		case <-deadline.C:
			ls.drain(tick)
			waiting = false
		}
	}

	cmds := make(map[uint8]Direction, len(alive))
	for id, d := range ls.buffers[tick] {
		if alive[id] {
			cmds[id] = d
		}
	}
	delete(ls.buffers, tick)
	ls.resolved = tick + 1
	return cmds
}

// drain empties every channel into the per-tick buffers, validating and
// discarding as it goes.
func (ls *Lockstep) drain(current uint32) {
	for id, ch := range ls.channels {
		for {
			cmd, ok := ch.NextCommand()
			if !ok {
				break
			}
			tick := cmd.Tick
			if !ch.Remote() {
				// Local commands always target the tick being collected.
				tick = current
			}
			if tick < ls.resolved || tick < current {
				log.Printf("lockstep: dropping late command from player %d for tick %d (at %d)", id, tick, current)
				continue
			}
			if tick > current+maxTickLead {
				log.Printf("lockstep: dropping far-future command from player %d for tick %d (at %d)", id, tick, current)
				continue
			}
			buf := ls.buffers[tick]
			if buf == nil {
				buf = make(map[uint8]Direction, len(ls.channels))
				ls.buffers[tick] = buf
			}
			buf[cmd.PlayerID] = cmd.Dir
		}
	}
}

// remoteReady reports whether every alive remote seat has a buffered command
// for the tick. Local seats never gate the tick.
func (ls *Lockstep) remoteReady(tick uint32, alive map[uint8]bool) bool {
	buf := ls.buffers[tick]
	for id, ch := range ls.channels {
		if !ch.Remote() || !alive[id] {
			continue
		}
		if _, ok := buf[id]; !ok {
			return false
		}
	}
	return true
}

// SubmitPeerChecksum records a checksum received from a remote peer. Safe to
// call from connection goroutines.
func (ls *Lockstep) SubmitPeerChecksum(seat uint8, tick uint32, sum uint64) {
	ls.sumMu.Lock()
	defer ls.sumMu.Unlock()
	m := ls.peerSums[tick]
	if m == nil {
		m = make(map[uint8]uint64, 4)
		ls.peerSums[tick] = m
	}
	m[seat] = sum
}

// RecordChecksum stores the host's own checksum for an audited tick.
func (ls *Lockstep) RecordChecksum(tick uint32, sum uint64) {
	ls.sumMu.Lock()
	ls.localSums[tick] = sum
	ls.sumMu.Unlock()
}

// Audit compares every peer checksum that has a matching local checksum and
// returns the mismatches. Matching entries are consumed; anything older than
// the retention window is pruned so late stragglers cannot accumulate.
func (ls *Lockstep) Audit() []Divergence {
	ls.sumMu.Lock()
	defer ls.sumMu.Unlock()

	var diverged []Divergence
	for tick, peers := range ls.peerSums {
		local, ok := ls.localSums[tick]
		if !ok {
			if tick+checksumKeep < ls.resolved {
				delete(ls.peerSums, tick)
			}
			continue
		}
		for seat, sum := range peers {
			if sum != local {
				diverged = append(diverged, Divergence{Tick: tick, Seat: seat, Want: local, Got: sum})
			}
		}
		delete(ls.peerSums, tick)
		delete(ls.localSums, tick)
	}
	for tick := range ls.localSums {
		if tick+checksumKeep < ls.resolved {
			delete(ls.localSums, tick)
		}
	}
	return diverged
}
