package main

import (
	"log"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"
)

const (
	writeWait         = 10 * time.Second
	pongWait          = 60 * time.Second
	pingPeriod        = (pongWait * 9) / 10
	maxMessageSize    = 4096
	sendBufSize       = 256
	maxMessagesPerSec = 50
)

// Client represents a WebSocket connection bound to one player session
type Client struct {
	hub        *Hub
	conn       *websocket.Conn
	send       chan []byte
	playerID   PlayerID
	remoteAddr string
	// binary clients receive playerState as msgpack frames
	binary     bool
	msgCount   int
	msgResetAt time.Time
}

// NewClient creates a new Client
func NewClient(hub *Hub, conn *websocket.Conn, remoteAddr string, binary bool) *Client {
	return &Client{
		hub:        hub,
		conn:       conn,
		send:       make(chan []byte, sendBufSize),
		remoteAddr: remoteAddr,
		binary:     binary,
	}
}

// ReadPump reads messages from the WebSocket connection
func (c *Client) ReadPump() {
	defer func() {
		c.hub.TrackDisconnect(c.remoteAddr)
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
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

		c.handleMessage(message)
	}
}

// WritePump writes messages to the WebSocket connection
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

// Send encodes an outbound message for this connection. Runs on the game loop.
func (c *Client) Send(msg OutMessage) {
	if state, ok := msg.(PlayerStateMsg); ok && c.binary {
		data, err := msgpack.Marshal(state)
		if err != nil {
			log.Printf("msgpack error: %v", err)
			return
		}
		c.SendBinary(data)
		return
	}
	data, err := EncodeMessage(msg)
	if err != nil {
		log.Printf("marshal %s error: %v", msg.MessageType(), err)
		return
	}
	c.SendRaw(data)
}

// SendRaw sends pre-marshaled bytes as a text message to the client
func (c *Client) SendRaw(data []byte) {
	defer func() { recover() }()
	select {
	case c.send <- data:
	default:
		// Client too slow, drop message
	}
}

// SendBinary sends pre-marshaled bytes as a binary WebSocket message
// Prefixes with 0xFF marker byte so WritePump can distinguish from text
func (c *Client) SendBinary(data []byte) {
	defer func() { recover() }()
	msg := make([]byte, len(data)+1)
	msg[0] = 0xFF // binary marker
	copy(msg[1:], data)
	select {
	case c.send <- msg:
	default:
	}
}

// handleMessage decodes a client message and hands it to the game loop.
// Name changes go through auth first, off the loop.
func (c *Client) handleMessage(raw []byte) {
	msg, err := DecodeMessage(raw)
	if err != nil {
		log.Printf("player %d: %v", c.playerID, err)
		return
	}

	switch m := msg.(type) {
	case SetNicknameMsg:
		c.handleNickname(m)
	case AuthMsg:
		c.handleAuth(m)
	default:
		id, game := c.playerID, c.hub.game
		c.hub.loop.Post(func() { game.HandleMessage(id, msg) })
	}
}

func (c *Client) handleNickname(m SetNicknameMsg) {
	id, game := c.playerID, c.hub.game
	name, token, err := c.hub.auth.ResolveName(m.Name, m.Password, c.remoteAddr)
	if err != nil {
		reason := err.Error()
		c.hub.loop.Post(func() { game.RejectName(id, reason) })
		return
	}
	c.hub.loop.Post(func() { game.Rename(id, name, token) })
}

func (c *Client) handleAuth(m AuthMsg) {
	id, game := c.playerID, c.hub.game
	_, name, err := c.hub.auth.ValidateToken(m.Token)
	if err != nil {
		c.hub.loop.Post(func() { game.RejectName(id, "invalid token") })
		return
	}
	c.hub.loop.Post(func() { game.Rename(id, name, m.Token) })
}
