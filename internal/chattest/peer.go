package chattest

import (
	"encoding/json"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Tyrowin/gochat-client/internal/chat"
)

const (
	peerWriteWait  = 10 * time.Second
	peerPongWait   = 60 * time.Second
	peerPingPeriod = 54 * time.Second
	peerMaxMessage = 64 << 10
)

type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func encodeEvent(event string, payload any) []byte {
	data, _ := json.Marshal(payload)
	frame, _ := json.Marshal(envelope{Event: event, Data: data})
	return frame
}

// peer is one client connection as the fake backend sees it.
type peer struct {
	conn     *websocket.Conn
	send     chan []byte
	hub      *hub
	srv      *Server
	username string
	limiter  *tokenBucket

	mu   sync.Mutex
	room string
}

func newPeer(conn *websocket.Conn, srv *Server, username string) *peer {
	conn.SetReadLimit(peerMaxMessage)
	return &peer{
		conn:     conn,
		send:     make(chan []byte, 256),
		hub:      srv.hub,
		srv:      srv,
		username: username,
		limiter:  newTokenBucket(srv.opts.rateBurst, srv.opts.rateInterval, nil),
	}
}

func (p *peer) currentRoom() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.room
}

func (p *peer) setRoom(room string) {
	p.mu.Lock()
	p.room = room
	p.mu.Unlock()
}

func (p *peer) handleFrame(raw []byte) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		p.hub.log.Warn().Err(err).Str("user", p.username).Msg("invalid frame")
		return
	}

	switch env.Event {
	case "joinRoom":
		var room string
		if err := json.Unmarshal(env.Data, &room); err != nil {
			p.hub.log.Warn().Err(err).Msg("invalid joinRoom payload")
			return
		}
		p.setRoom(room)
		if p.srv.opts.roomMessagesOnJoin {
			p.hub.safeSend(p, encodeEvent("roomMessages", p.srv.backlog(room)))
		}
		// Recorded last so a test that saw the join also sees its reply queued.
		p.srv.recordJoin(Join{User: p.username, Room: room})

	case "chatMessage":
		var out chat.OutgoingMessage
		if err := json.Unmarshal(env.Data, &out); err != nil {
			p.hub.log.Warn().Err(err).Msg("invalid chatMessage payload")
			return
		}
		if !p.limiter.take() {
			p.srv.recordThrottled()
			p.hub.log.Warn().Str("user", p.username).Msg("rate limit exceeded; discarding message")
			return
		}
		p.srv.recordReceived(out)
		msg := chat.Message{
			Sender:    out.Sender,
			Content:   out.Content,
			Room:      out.Room,
			Timestamp: time.Now().UTC(),
		}
		p.srv.appendBacklog(out.Room, msg)
		p.hub.submit(roomBroadcast{Room: out.Room, Payload: encodeEvent("chatMessage", msg)})

	default:
		p.hub.log.Debug().Str("event", env.Event).Msg("ignoring unknown event")
	}
}

func (p *peer) readPump() {
	defer func() {
		p.hub.leave(p)
		_ = p.conn.Close()
	}()

	_ = p.conn.SetReadDeadline(time.Now().Add(peerPongWait))
	p.conn.SetPongHandler(func(string) error {
		return p.conn.SetReadDeadline(time.Now().Add(peerPongWait))
	})

	for {
		_, raw, err := p.conn.ReadMessage()
		if err != nil {
			if !errors.Is(err, io.EOF) && websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				p.hub.log.Debug().Err(err).Str("user", p.username).Msg("peer read error")
			}
			return
		}
		p.handleFrame(raw)
	}
}

// writePump batches queued frames into one WebSocket message, newline
// separated, and pings the client periodically.
func (p *peer) writePump() {
	ticker := time.NewTicker(peerPingPeriod)
	defer func() {
		ticker.Stop()
		_ = p.conn.Close()
	}()

	for {
		select {
		case message, ok := <-p.send:
			_ = p.conn.SetWriteDeadline(time.Now().Add(peerWriteWait))
			if !ok {
				_ = p.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if !p.writeBatch(message) {
				return
			}
		case <-ticker.C:
			_ = p.conn.SetWriteDeadline(time.Now().Add(peerWriteWait))
			if err := p.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-p.hub.ctx.Done():
			return
		}
	}
}

func (p *peer) writeBatch(message []byte) bool {
	w, err := p.conn.NextWriter(websocket.TextMessage)
	if err != nil {
		return false
	}
	if _, err := w.Write(message); err != nil {
		return false
	}
	n := len(p.send)
	for i := 0; i < n; i++ {
		next, ok := <-p.send
		if !ok {
			break
		}
		if _, err := w.Write([]byte{'\n'}); err != nil {
			return false
		}
		if _, err := w.Write(next); err != nil {
			return false
		}
	}
	return w.Close() == nil
}
