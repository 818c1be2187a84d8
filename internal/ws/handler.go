package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/blindorder/blindorder-backend/internal/hub"
	"github.com/blindorder/blindorder-backend/internal/session"
	"github.com/blindorder/blindorder-backend/internal/types"
)

const writeTimeout = 3 * time.Second

// errBadPayload marks an undecodable frame that was already answered with an
// error; the reader loop moves on instead of closing the connection.
var errBadPayload = errors.New("bad payload")

// binding ties a live connection to at most one (room, participant) pair.
// It exists only for the lifetime of the connection and is owned entirely
// by the connection's handler goroutine.
type binding struct {
	sess     *session.Session
	playerID string
	outbox   chan types.ServerMessage
}

// Handler terminates realtime connections and translates the message
// contract into session operations. Each connection gets a reader loop
// (this handler) and a writer goroutine fed by the session's broadcasts.
func Handler(h *hub.Hub, log *zap.Logger, originPatterns []string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: originPatterns,
		})
		if err != nil {
			log.Warn("websocket accept failed", zap.Error(err))
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		c := &connHandler{
			conn: conn,
			hub:  h,
			log:  log,
			ctx:  r.Context(),
		}
		c.run()
	}
}

type connHandler struct {
	conn  *websocket.Conn
	hub   *hub.Hub
	log   *zap.Logger
	ctx   context.Context
	bound *binding
}

func (c *connHandler) run() {
	defer c.detach()

	for {
		var cm types.ClientMessage
		err := c.readMessage(&cm)
		if errors.Is(err, errBadPayload) {
			continue // already answered
		}
		if err != nil {
			return
		}

		switch cm.Type {
		case "join-room":
			c.handleJoin(cm)
		case "start-game":
			c.forward(func(b *binding) session.Msg {
				return session.StartGame{PlayerID: b.playerID}
			})
		case "play-number":
			number := cm.Number
			c.forward(func(b *binding) session.Msg {
				return session.PlayNumber{PlayerID: b.playerID, Number: number}
			})
		case "reset-game":
			c.forward(func(b *binding) session.Msg {
				return session.Reset{PlayerID: b.playerID}
			})
		case "leave-room":
			c.detach()
			c.writeDirect(types.ServerMessage{Type: "left-room"})
		default:
			c.writeDirect(types.ServerMessage{Type: "error", Error: "unknown message type"})
		}
	}
}

func (c *connHandler) readMessage(cm *types.ClientMessage) error {
	_, data, err := c.conn.Read(c.ctx)
	if err != nil {
		switch websocket.CloseStatus(err) {
		case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		default:
			if c.ctx.Err() == nil {
				c.log.Debug("websocket read failed", zap.Error(err))
			}
		}
		return err
	}
	if err := json.Unmarshal(data, cm); err != nil {
		c.writeDirect(types.ServerMessage{Type: "error", Error: "bad json"})
		return errBadPayload
	}
	return nil
}

func (c *connHandler) handleJoin(cm types.ClientMessage) {
	if c.bound != nil {
		c.writeDirect(types.ServerMessage{Type: "error", Error: "already in a room"})
		return
	}
	if !types.ValidRoomID(cm.RoomID) {
		c.writeDirect(types.ServerMessage{Type: "error", Error: "invalid roomId"})
		return
	}
	if !types.ValidUsername(cm.PlayerName) {
		c.writeDirect(types.ServerMessage{Type: "error", Error: "invalid playerName"})
		return
	}

	reply := make(chan *session.Session, 1)
	select {
	case c.hub.Inbox() <- hub.OpenRoom{ID: cm.RoomID, Reply: reply}:
	case <-c.ctx.Done():
		return
	}
	sess := <-reply
	if sess == nil {
		c.writeDirect(types.ServerMessage{Type: "error", Error: "Room not found"})
		return
	}

	playerID := uuid.NewString()
	outbox := make(chan types.ServerMessage, 16)
	joinReply := make(chan error, 1)

	join := session.Join{
		PlayerID: playerID,
		Username: cm.PlayerName,
		Host:     cm.IsHost,
		Outbox:   outbox,
		Reply:    joinReply,
	}
	select {
	case sess.Inbox() <- join:
	case <-sess.Done():
		c.writeDirect(types.ServerMessage{Type: "error", Error: "Room not found"})
		return
	}

	select {
	case err := <-joinReply:
		if err != nil {
			c.writeDirect(types.ServerMessage{Type: "error", Error: err.Error()})
			return
		}
	case <-sess.Done():
		c.writeDirect(types.ServerMessage{Type: "error", Error: "Room not found"})
		return
	}

	c.bound = &binding{sess: sess, playerID: playerID, outbox: outbox}
	go c.writePump(outbox)
}

// forward sends a session message for the bound room, or tells the client
// it has no room.
func (c *connHandler) forward(build func(*binding) session.Msg) {
	b := c.bound
	if b == nil {
		c.writeDirect(types.ServerMessage{Type: "error", Error: "join a room first"})
		return
	}
	select {
	case b.sess.Inbox() <- build(b):
	case <-b.sess.Done():
		c.bound = nil
		c.writeDirect(types.ServerMessage{Type: "error", Error: "room closed"})
	}
}

// detach removes the participant from its room; the session applies host
// failover or room deletion as needed. Safe to call twice.
func (c *connHandler) detach() {
	b := c.bound
	if b == nil {
		return
	}
	c.bound = nil
	select {
	case b.sess.Inbox() <- session.Leave{PlayerID: b.playerID}:
	case <-b.sess.Done():
	}
}

// writePump drains broadcasts for one room membership. The session closes
// the outbox when the membership ends, which terminates the pump.
func (c *connHandler) writePump(outbox <-chan types.ServerMessage) {
	for msg := range outbox {
		payload, err := json.Marshal(msg)
		if err != nil {
			c.log.Error("marshal server message", zap.Error(err))
			continue
		}
		ctx, cancel := context.WithTimeout(c.ctx, writeTimeout)
		err = c.conn.Write(ctx, websocket.MessageText, payload)
		cancel()
		if err != nil {
			return
		}
	}
}

// writeDirect writes outside any room membership (errors before a join,
// leave confirmations).
func (c *connHandler) writeDirect(msg types.ServerMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(c.ctx, writeTimeout)
	defer cancel()
	_ = c.conn.Write(ctx, websocket.MessageText, payload)
}
