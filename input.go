package main

import "sync"

// Command is one direction command tagged with the tick it targets. Local
// commands carry no tick; the lockstep scheduler stamps them with the tick
// being collected.
type Command struct {
	Tick     uint32
	PlayerID uint8
	Dir      Direction
}

// InputChannel is one input source per player. Implementations never block:
// NextCommand drains a buffered command if one is available.
type InputChannel interface {
	PlayerID() uint8
	NextCommand() (Command, bool)
	// Remote reports whether commands arrive over the network. The lockstep
	// scheduler waits for remote seats each tick; local seats are always
	// ready and default to keeping their current direction.
	Remote() bool
}

// LocalChannel feeds same-device input. It holds at most the latest
// submitted direction; a newer turn before the tick fires replaces it.
type LocalChannel struct {
	id      uint8
	mu      sync.Mutex
	pending *Direction
}

// NewLocalChannel creates a local input channel for one seat.
func NewLocalChannel(id uint8) *LocalChannel {
	return &LocalChannel{id: id}
}

func (c *LocalChannel) PlayerID() uint8 { return c.id }
func (c *LocalChannel) Remote() bool    { return false }

// Submit records a direction for the upcoming tick. Safe to call from the
// connection goroutine while the round loop polls.
func (c *LocalChannel) Submit(d Direction) {
	c.mu.Lock()
	c.pending = &d
	c.mu.Unlock()
}

func (c *LocalChannel) NextCommand() (Command, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending == nil {
		return Command{}, false
	}
	d := *c.pending
	c.pending = nil
	return Command{PlayerID: c.id, Dir: d}, true
}

const remoteQueueSize = 256

// RemoteChannel feeds tick-stamped commands from a network peer. The
// connection goroutine is the sole producer and the lockstep scheduler the
// sole consumer of the inbound queue.
type RemoteChannel struct {
	id   uint8
	in   chan Command
	wake chan<- struct{}
}

// NewRemoteChannel creates a remote input channel for one seat. Deliveries
// signal wake so a scheduler blocked on missing input can re-poll.
func NewRemoteChannel(id uint8, wake chan<- struct{}) *RemoteChannel {
	return &RemoteChannel{
		id:   id,
		in:   make(chan Command, remoteQueueSize),
		wake: wake,
	}
}

func (c *RemoteChannel) PlayerID() uint8 { return c.id }
func (c *RemoteChannel) Remote() bool    { return true }

// Deliver enqueues a command received from the network. It never blocks; a
// full queue drops the command, which the timeout policy absorbs.
func (c *RemoteChannel) Deliver(tick uint32, d Direction) bool {
	select {
	case c.in <- Command{Tick: tick, PlayerID: c.id, Dir: d}:
	default:
		return false
	}
	if c.wake != nil {
		select {
		case c.wake <- struct{}{}:
		default:
		}
	}
	return true
}

func (c *RemoteChannel) NextCommand() (Command, bool) {
	select {
	case cmd := <-c.in:
		return cmd, true
	default:
		return Command{}, false
	}
}
