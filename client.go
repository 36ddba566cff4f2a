package main

import (
	"encoding/json"
	"log"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait         = 10 * time.Second
	pongWait          = 60 * time.Second
	pingPeriod        = (pongWait * 9) / 10
	maxMessageSize    = 65536
	sendBufSize       = 256
	maxMessagesPerSec = 60
	maxNameLen        = 16
	maxLocalSeats     = 4
)

// Client represents a WebSocket connection. One connection may control
// several same-device seats, or act as a single remote lockstep peer.
type Client struct {
	hub        *Hub
	conn       *websocket.Conn
	send       chan []byte
	connID     string
	remoteAddr string

	sessionID string
	game      *Game
	seats     map[uint8]*Seat
	peerSeat  uint8 // checksum identity for remote peers
	isRemote  bool

	msgCount   int
	msgResetAt time.Time

	// Auth state
	authPlayerID int64  // 0 = unauthenticated/guest
	authUsername string // "" = unauthenticated
}

// NewClient creates a new Client.
func NewClient(hub *Hub, conn *websocket.Conn, remoteAddr string) *Client {
	return &Client{
		hub:        hub,
		conn:       conn,
		send:       make(chan []byte, sendBufSize),
		connID:     GenerateID(8),
		remoteAddr: remoteAddr,
		seats:      make(map[uint8]*Seat),
	}
}

// ReadPump reads messages from the WebSocket connection.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.TrackDisconnect(c.remoteAddr)
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		msgType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("ws error: %v", err)
			}
			break
		}

		// Rate limiting
		now := time.Now()
		if now.After(c.msgResetAt) {
			c.msgCount = 0
			c.msgResetAt = now.Add(time.Second)
		}
		c.msgCount++
		if c.msgCount > maxMessagesPerSec {
			log.Printf("rate limit exceeded for %s, disconnecting", c.remoteAddr)
			break
		}

		if msgType == websocket.BinaryMessage {
			c.handleBinary(message)
		} else {
			c.handleMessage(message)
		}
	}
}

// WritePump writes messages to the WebSocket connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			// Check for binary marker (0xFF prefix from SendBinary)
			var err error
			if len(message) > 0 && message[0] == 0xFF {
				err = c.conn.WriteMessage(websocket.BinaryMessage, message[1:])
			} else {
				err = c.conn.WriteMessage(websocket.TextMessage, message)
			}
			if err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// SendJSON sends a JSON message to the client.
func (c *Client) SendJSON(msg interface{}) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("marshal error: %v", err)
		return
	}
	c.SendRaw(data)
}

// SendRaw sends pre-marshaled bytes as a text message to the client.
func (c *Client) SendRaw(data []byte) {
	defer func() { recover() }()
	select {
	case c.send <- data:
	default:
		// Client too slow, drop message
	}
}

// SendBinary sends bytes as a binary WebSocket message. Prefixes with a
// 0xFF marker byte so WritePump can distinguish from text.
func (c *Client) SendBinary(data []byte) {
	defer func() { recover() }()
	msg := make([]byte, len(data)+1)
	msg[0] = 0xFF
	copy(msg[1:], data)
	select {
	case c.send <- msg:
	default:
	}
}

// handleBinary routes binary game packets by their tag byte.
func (c *Client) handleBinary(msg []byte) {
	if len(msg) == 0 {
		return
	}
	switch msg[0] {
	case pktInput:
		c.handleInputPacket(msg)
	case pktChecksum:
		c.handleChecksumPacket(msg)
	}
}

// handleInputPacket feeds a tick-stamped remote command into the lockstep
// queue. Malformed packets and packets for seats this connection does not
// own are dropped here, before they can reach the simulation.
func (c *Client) handleInputPacket(msg []byte) {
	pkt, ok := DecodeInputPacket(msg)
	if !ok || !ValidDirection(pkt.Direction) {
		return
	}
	seat, ok := c.seats[pkt.PlayerID]
	if !ok || seat.remote == nil {
		log.Printf("input packet for foreign seat %d from %s", pkt.PlayerID, c.remoteAddr)
		return
	}
	seat.remote.Deliver(pkt.Tick, Direction(pkt.Direction))
}

// handleChecksumPacket records a peer's post-tick checksum for auditing.
func (c *Client) handleChecksumPacket(msg []byte) {
	pkt, ok := DecodeChecksumPacket(msg)
	if !ok || c.game == nil || !c.isRemote {
		return
	}
	c.game.SubmitPeerChecksum(c.peerSeat, pkt)
}

// handleMessage routes incoming control messages (single-pass decode via
// InEnvelope).
func (c *Client) handleMessage(raw []byte) {
	var env InEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		log.Printf("unmarshal error: %v", err)
		return
	}

	switch env.T {
	case MsgList:
		c.handleList()
	case MsgCreate:
		c.handleCreate(env.D)
	case MsgJoin:
		c.handleJoin(env.D)
	case MsgInput:
		c.handleInput(env.D)
	case MsgReady:
		c.handleReady()
	case MsgRematch:
		c.handleRematch()
	case MsgAddBot:
		c.handleAddBot()
	case MsgLeave:
		c.handleLeave()
	case MsgCheck:
		c.handleCheck(env.D)
	case MsgRegister:
		c.handleRegister(env.D)
	case MsgLogin:
		c.handleLogin(env.D)
	case MsgGuest:
		c.handleGuest()
	case MsgAuth:
		c.handleAuth(env.D)
	case MsgProfile:
		c.handleProfile()
	}
}

func (c *Client) handleList() {
	sessions := c.hub.sessions.ListSessions()
	c.SendJSON(Envelope{T: MsgSessions, Data: sessions})
}

func (c *Client) handleCreate(data json.RawMessage) {
	var msg CreateMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	if !ValidVariant(msg.Variant) {
		c.SendJSON(Envelope{T: MsgError, Data: ErrorMsg{Msg: "unknown variant"}})
		return
	}
	sname := msg.SessionName
	if sname == "" {
		sname = "Blockade Arcade"
	}
	if len(sname) > 30 {
		sname = sname[:30]
	}

	cfg := DefaultConfig(Variant(msg.Variant), msg.Players)
	sess := c.hub.sessions.CreateSession(sname, cfg)
	if sess == nil {
		c.SendJSON(Envelope{T: MsgError, Data: ErrorMsg{Msg: "too many active sessions"}})
		return
	}

	c.hub.sessions.MarkActive(sess.ID)
	c.SendJSON(Envelope{T: MsgCreated, Data: map[string]string{"sid": sess.ID}})
}

func (c *Client) handleJoin(data json.RawMessage) {
	var msg JoinMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	if c.sessionID != "" {
		c.SendJSON(Envelope{T: MsgError, Data: ErrorMsg{Msg: "already in a session"}})
		return
	}
	name := msg.Name
	if name == "" {
		name = "Player"
	}
	if len(name) > maxNameLen {
		name = name[:maxNameLen]
	}
	seats := msg.Seats
	if seats < 1 {
		seats = 1
	}
	if seats > maxLocalSeats {
		seats = maxLocalSeats
	}
	if msg.Remote {
		// A lockstep peer simulates one player per connection.
		seats = 1
	}

	sess := c.hub.sessions.GetSession(msg.SessionID)
	if sess == nil {
		c.SendJSON(Envelope{T: MsgError, Data: ErrorMsg{Msg: "session not found"}})
		return
	}

	claimed, err := sess.Game.AddSeats(c.connID, c, name, seats, msg.Remote, c.authPlayerID)
	if err != nil {
		c.SendJSON(Envelope{T: MsgError, Data: ErrorMsg{Msg: err.Error()}})
		return
	}
	c.hub.sessions.MarkActive(sess.ID)
	c.sessionID = sess.ID
	c.game = sess.Game
	c.isRemote = msg.Remote
	ids := make([]uint8, 0, len(claimed))
	for _, seat := range claimed {
		c.seats[seat.ID] = seat
		ids = append(ids, seat.ID)
	}
	c.peerSeat = ids[0]

	c.SendJSON(Envelope{T: MsgJoined, Data: map[string]string{"sid": sess.ID}})
	c.SendJSON(Envelope{T: MsgWelcome, Data: WelcomeMsg{
		Seats:   ids,
		Variant: uint8(sess.Game.Variant()),
		Width:   sess.Game.cfg.BoardWidth,
		Height:  sess.Game.cfg.BoardHeight,
		Target:  sess.Game.cfg.TargetScore,
	}})
}

func (c *Client) handleInput(data json.RawMessage) {
	if c.game == nil {
		return
	}
	var msg LocalInputMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	c.game.HandleLocalInput(c.connID, msg.Seat, msg.Dir)
}

func (c *Client) handleReady() {
	if c.game == nil {
		return
	}
	c.hub.sessions.MarkActive(c.sessionID)
	c.game.HandleReady(c.connID)
}

func (c *Client) handleRematch() {
	if c.game == nil {
		return
	}
	c.hub.sessions.MarkActive(c.sessionID)
	c.game.HandleRematch(c.connID)
}

func (c *Client) handleAddBot() {
	if c.game == nil {
		return
	}
	id, err := c.game.AddBot()
	if err != nil {
		c.SendJSON(Envelope{T: MsgError, Data: ErrorMsg{Msg: err.Error()}})
		return
	}
	c.SendJSON(Envelope{T: MsgBotAdded, Data: map[string]uint8{"id": id}})
}

func (c *Client) handleLeave() {
	if c.sessionID == "" {
		return
	}
	c.hub.sessions.RemoveConn(c.sessionID, c.connID)
	c.sessionID = ""
	c.game = nil
	c.seats = make(map[uint8]*Seat)
	c.isRemote = false
}

func (c *Client) handleCheck(data json.RawMessage) {
	var msg CheckMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	sess := c.hub.sessions.GetSession(msg.SID)
	if sess == nil {
		c.SendJSON(Envelope{T: MsgChecked, Data: CheckedMsg{SID: msg.SID, Exists: false}})
		return
	}
	c.SendJSON(Envelope{T: MsgChecked, Data: CheckedMsg{
		SID:     msg.SID,
		Exists:  true,
		Name:    sess.Name,
		Players: sess.Game.SeatCount(),
	}})
}

func (c *Client) handleRegister(data json.RawMessage) {
	if c.hub.auth == nil {
		return
	}
	var msg RegisterMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	id, token, err := c.hub.auth.Register(msg.Username, msg.Password)
	if err != nil {
		c.SendJSON(Envelope{T: MsgError, Data: ErrorMsg{Msg: err.Error()}})
		return
	}
	c.authPlayerID = id
	c.authUsername = msg.Username
	c.SendJSON(Envelope{T: MsgAuthOK, Data: AuthOKMsg{
		Token:    token,
		Username: msg.Username,
		PlayerID: id,
	}})
}

func (c *Client) handleLogin(data json.RawMessage) {
	if c.hub.auth == nil {
		return
	}
	var msg LoginMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	id, token, err := c.hub.auth.Login(msg.Username, msg.Password, c.remoteAddr)
	if err != nil {
		c.SendJSON(Envelope{T: MsgError, Data: ErrorMsg{Msg: err.Error()}})
		return
	}
	c.authPlayerID = id
	c.authUsername = msg.Username
	c.SendJSON(Envelope{T: MsgAuthOK, Data: AuthOKMsg{
		Token:    token,
		Username: msg.Username,
		PlayerID: id,
	}})
}

func (c *Client) handleGuest() {
	if c.hub.auth == nil {
		return
	}
	id, name, token, err := c.hub.auth.Guest()
	if err != nil {
		c.SendJSON(Envelope{T: MsgError, Data: ErrorMsg{Msg: err.Error()}})
		return
	}
	c.authPlayerID = id
	c.authUsername = name
	c.SendJSON(Envelope{T: MsgAuthOK, Data: AuthOKMsg{
		Token:    token,
		Username: name,
		PlayerID: id,
	}})
}

func (c *Client) handleAuth(data json.RawMessage) {
	if c.hub.auth == nil {
		return
	}
	var msg AuthMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	id, username, err := c.hub.auth.ValidateToken(msg.Token)
	if err != nil {
		c.SendJSON(Envelope{T: MsgError, Data: ErrorMsg{Msg: "invalid token"}})
		return
	}
	c.authPlayerID = id
	c.authUsername = username
	c.SendJSON(Envelope{T: MsgAuthOK, Data: AuthOKMsg{
		Token:    msg.Token,
		Username: username,
		PlayerID: id,
	}})
}

func (c *Client) handleProfile() {
	if c.hub.db == nil || c.authPlayerID == 0 {
		c.SendJSON(Envelope{T: MsgError, Data: ErrorMsg{Msg: "not authenticated"}})
		return
	}
	stats, err := c.hub.db.GetStats(c.authPlayerID)
	if err != nil || stats == nil {
		c.SendJSON(Envelope{T: MsgError, Data: ErrorMsg{Msg: "profile not found"}})
		return
	}
	unlocked, err := c.hub.db.GetAchievements(c.authPlayerID)
	if err != nil {
		log.Printf("get achievements: %v", err)
	}
	c.SendJSON(Envelope{T: MsgProfileData, Data: ProfileDataMsg{
		Username:     c.authUsername,
		RoundsWon:    stats.RoundsWon,
		RoundsLost:   stats.RoundsLost,
		MatchesWon:   stats.MatchesWon,
		MatchesLost:  stats.MatchesLost,
		Playtime:     stats.Playtime,
		Achievements: unlocked,
	}})
}
