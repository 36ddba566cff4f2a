package main

import (
	"encoding/binary"
	"encoding/json"
)

// Client -> Server message types
const (
	MsgJoin     = "join"
	MsgLeave    = "leave"
	MsgInput    = "input" // local seat direction
	MsgCreate   = "create"
	MsgList     = "list"
	MsgCheck    = "check"
	MsgReady    = "ready"
	MsgRematch  = "rematch"
	MsgAddBot   = "addbot"
	MsgRegister = "register"
	MsgLogin    = "login"
	MsgGuest    = "guest"
	MsgAuth     = "auth"
	MsgProfile  = "profile"
)

// Server -> Client message types
const (
	MsgSessions    = "sessions"
	MsgCreated     = "created"
	MsgJoined      = "joined"
	MsgWelcome     = "welcome"
	MsgError       = "error"
	MsgChecked     = "checked"
	MsgCountdown   = "countdown"
	MsgRoundOver   = "round_over"
	MsgMatchOver   = "match_over"
	MsgDiverged    = "diverged"
	MsgAborted     = "aborted"
	MsgBotAdded    = "bot_added"
	MsgSeatUpdate  = "seats"
	MsgAuthOK      = "auth_ok"
	MsgProfileData = "profile_data"
	MsgAchievement = "achievement"
)

// Envelope wraps all outgoing control messages with a type field.
type Envelope struct {
	T    string      `json:"t"`
	Data interface{} `json:"d,omitempty"`
}

// InEnvelope is used for incoming messages. json.RawMessage defers payload
// decoding until the type is known.
type InEnvelope struct {
	T string          `json:"t"`
	D json.RawMessage `json:"d,omitempty"`
}

// CreateMsg requests a new session.
type CreateMsg struct {
	Name        string `json:"name"`
	SessionName string `json:"sname"`
	Variant     uint8  `json:"v"`
	Players     int    `json:"np"`
}

// JoinMsg claims seats in a session. Seats is the number of players sharing
// this connection (same-device play); it defaults to 1.
type JoinMsg struct {
	Name      string `json:"name"`
	SessionID string `json:"sid"`
	Seats     int    `json:"seats,omitempty"`
	// Remote marks the connection as a lockstep peer that simulates
	// locally and sends tick-stamped input packets.
	Remote bool `json:"remote,omitempty"`
}

// LocalInputMsg is a same-device direction command for one claimed seat.
type LocalInputMsg struct {
	Seat uint8 `json:"s"`
	Dir  uint8 `json:"d"`
}

// WelcomeMsg tells a connection which seats it controls and the match setup.
type WelcomeMsg struct {
	Seats   []uint8 `json:"seats"`
	Variant uint8   `json:"v"`
	Width   int     `json:"w"`
	Height  int     `json:"h"`
	Target  int     `json:"ts"`
}

// SeatInfo describes one claimed seat in the lobby.
type SeatInfo struct {
	ID    uint8  `json:"id"`
	Name  string `json:"n"`
	Ready bool   `json:"r"`
	Bot   bool   `json:"b,omitempty"`
}

// SessionInfo is one entry in the session list.
type SessionInfo struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Variant uint8  `json:"v"`
	Players int    `json:"players"`
	Seats   int    `json:"seats"`
}

// CheckMsg asks whether a session exists.
type CheckMsg struct {
	SID string `json:"sid"`
}

// CheckedMsg is the response to a session check.
type CheckedMsg struct {
	SID     string `json:"sid"`
	Exists  bool   `json:"exists"`
	Name    string `json:"name,omitempty"`
	Players int    `json:"players,omitempty"`
}

// MatchOverMsg reports the match winner and final scores.
type MatchOverMsg struct {
	Winner uint8         `json:"win"`
	Scores map[uint8]int `json:"sc"`
}

// DivergedMsg notifies a peer its simulation drifted and a resync follows.
type DivergedMsg struct {
	Tick uint32 `json:"tick"`
	Seat uint8  `json:"seat"`
}

// AbortedMsg reports a round abort with a human-readable reason.
type AbortedMsg struct {
	Reason string `json:"reason"`
}

// ErrorMsg sends an error to the client.
type ErrorMsg struct {
	Msg string `json:"msg"`
}

// RegisterMsg / LoginMsg / AuthMsg are the account messages.
type RegisterMsg struct {
	Username string `json:"u"`
	Password string `json:"p"`
}

type LoginMsg struct {
	Username string `json:"u"`
	Password string `json:"p"`
}

type AuthMsg struct {
	Token string `json:"tok"`
}

// AuthOKMsg confirms authentication.
type AuthOKMsg struct {
	Token    string `json:"tok"`
	Username string `json:"u"`
	PlayerID int64  `json:"pid"`
}

// ProfileDataMsg returns persisted stats for the authenticated account.
type ProfileDataMsg struct {
	Username    string  `json:"u"`
	RoundsWon   int     `json:"rw"`
	RoundsLost  int     `json:"rl"`
	MatchesWon  int     `json:"mw"`
	MatchesLost int     `json:"ml"`
	Playtime    float64 `json:"pt"`

	Achievements []string `json:"ach,omitempty"`
}

// Binary packet type bytes. Binary WebSocket messages carry one packet each,
// first byte selects the format. These are wire-stable across peers of the
// same version.
const (
	pktInput    = 0x01 // [tag, tick u32, player u8, dir u8], both directions
	pktChecksum = 0x02 // [tag, tick u32, sum u64], peer -> host
	pktTick     = 0x10 // [tag, msgpack TickResult], host -> peers
	pktState    = 0x11 // [tag, msgpack StateSnapshot], round start
	pktResync   = 0x12 // [tag, msgpack StateSnapshot], divergence recovery
)

const (
	inputPacketLen    = 7
	checksumPacketLen = 13
)

// InputPacket is one tick-stamped direction command on the wire.
type InputPacket struct {
	Tick      uint32
	PlayerID  uint8
	Direction uint8
}

// ChecksumPacket carries a peer's post-tick state checksum.
type ChecksumPacket struct {
	Tick     uint32
	Checksum uint64
}

// EncodeInputPacket serializes an input packet.
func EncodeInputPacket(p InputPacket) []byte {
	buf := make([]byte, inputPacketLen)
	buf[0] = pktInput
	binary.BigEndian.PutUint32(buf[1:5], p.Tick)
	buf[5] = p.PlayerID
	buf[6] = p.Direction
	return buf
}

// DecodeInputPacket parses an input packet, reporting malformed input.
func DecodeInputPacket(b []byte) (InputPacket, bool) {
	if len(b) != inputPacketLen || b[0] != pktInput {
		return InputPacket{}, false
	}
	return InputPacket{
		Tick:      binary.BigEndian.Uint32(b[1:5]),
		PlayerID:  b[5],
		Direction: b[6],
	}, true
}

// EncodeChecksumPacket serializes a checksum packet.
func EncodeChecksumPacket(p ChecksumPacket) []byte {
	buf := make([]byte, checksumPacketLen)
	buf[0] = pktChecksum
	binary.BigEndian.PutUint32(buf[1:5], p.Tick)
	binary.BigEndian.PutUint64(buf[5:13], p.Checksum)
	return buf
}

// DecodeChecksumPacket parses a checksum packet.
func DecodeChecksumPacket(b []byte) (ChecksumPacket, bool) {
	if len(b) != checksumPacketLen || b[0] != pktChecksum {
		return ChecksumPacket{}, false
	}
	return ChecksumPacket{
		Tick:     binary.BigEndian.Uint32(b[1:5]),
		Checksum: binary.BigEndian.Uint64(b[5:13]),
	}, true
}
