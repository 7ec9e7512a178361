package channel

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	writeWait     = 10 * time.Second
	pongWait      = 60 * time.Second
	pingPeriod    = 54 * time.Second
	sendQueueSize = 256
)

// DefaultMaxMessageSize caps incoming frames unless the Dialer sets its own
// limit. A roomMessages frame carries a whole backlog, so it matches the
// REST client's body limit.
const DefaultMaxMessageSize = 16 << 20

var (
	// ErrClosed is returned by Emit once the connection has stopped.
	ErrClosed = errors.New("channel: connection closed")
	// ErrSendQueueFull is returned by Emit when the write pump is too far behind.
	ErrSendQueueFull = errors.New("channel: send queue full")
)

type subscription struct {
	id      uint64
	handler Handler
}

// Conn is one live channel connection. Handlers run on the read pump
// goroutine, one event at a time, in registration order.
type Conn struct {
	ws      *websocket.Conn
	send    chan []byte
	readCap int64
	log     zerolog.Logger

	mu       sync.RWMutex
	handlers map[string][]subscription
	nextID   uint64

	closeOnce sync.Once
	closing   chan struct{}
	readDone  chan struct{}
	done      chan struct{}
}

func newConn(ws *websocket.Conn, readCap int64, logger zerolog.Logger) *Conn {
	if readCap <= 0 {
		readCap = DefaultMaxMessageSize
	}
	ws.SetReadLimit(readCap)
	c := &Conn{
		ws:       ws,
		send:     make(chan []byte, sendQueueSize),
		readCap:  readCap,
		log:      logger,
		handlers: make(map[string][]subscription),
		closing:  make(chan struct{}),
		readDone: make(chan struct{}),
		done:     make(chan struct{}),
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		c.readPump()
	}()
	go func() {
		defer wg.Done()
		c.writePump()
	}()
	go func() {
		wg.Wait()
		close(c.done)
	}()
	return c
}

// Emit queues one event for the write pump. It does not wait for delivery.
func (c *Conn) Emit(event string, payload any) error {
	frame, err := encodeEnvelope(event, payload)
	if err != nil {
		return err
	}

	select {
	case <-c.closing:
		return ErrClosed
	case <-c.readDone:
		return ErrClosed
	default:
	}

	select {
	case c.send <- frame:
		return nil
	default:
		c.log.Warn().Str("event", event).Msg("send queue full; dropping event")
		return ErrSendQueueFull
	}
}

// On registers handler for event and returns the function that removes it.
// Calling the returned function more than once is harmless.
func (c *Conn) On(event string, handler Handler) (off func()) {
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	c.handlers[event] = append(c.handlers[event], subscription{id: id, handler: handler})
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		subs := c.handlers[event]
		for i, sub := range subs {
			if sub.id == id {
				c.handlers[event] = append(subs[:i:i], subs[i+1:]...)
				break
			}
		}
		if len(c.handlers[event]) == 0 {
			delete(c.handlers, event)
		}
	}
}

// Listeners reports how many handlers are registered for event.
func (c *Conn) Listeners(event string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.handlers[event])
}

// Close sends a close frame, tears the connection down and waits for both
// pumps to stop. It is safe to call more than once.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		close(c.closing)
	})
	<-c.done
	return nil
}

// Done is closed once the connection has stopped, locally or remotely.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Alive reports whether the connection is still usable.
func (c *Conn) Alive() bool {
	select {
	case <-c.closing:
		return false
	case <-c.readDone:
		return false
	default:
		return true
	}
}

func (c *Conn) dispatch(frame []byte) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		c.log.Warn().Err(err).Msg("invalid event frame")
		return
	}
	if env.Event == "" {
		c.log.Warn().Msg("event frame without a name")
		return
	}

	c.mu.RLock()
	subs := append([]subscription(nil), c.handlers[env.Event]...)
	c.mu.RUnlock()

	if len(subs) == 0 {
		c.log.Debug().Str("event", env.Event).Msg("no listeners for event")
		return
	}
	for _, sub := range subs {
		sub.handler(env.Data)
	}
}

// setupReadConnection configures read deadlines and pong handler for the WebSocket connection
func (c *Conn) setupReadConnection() {
	if err := c.ws.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.log.Warn().Err(err).Msg("set initial read deadline")
	}
	c.ws.SetPongHandler(func(string) error {
		if err := c.ws.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			c.log.Warn().Err(err).Msg("set read deadline in pong handler")
		}
		return nil
	})
}

// handleReadError logs the read failure at a level matching how expected it is.
func (c *Conn) handleReadError(err error) {
	select {
	case <-c.closing:
		c.log.Debug().Err(err).Msg("read pump stopped after local close")
		return
	default:
	}

	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		c.log.Error().Int64("limit", c.readCap).Msg("incoming frame exceeded maximum size; raise CHAT_MAX_PAYLOAD")
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
		c.log.Info().Err(err).Msg("channel closed by peer")
	case errors.Is(err, io.EOF) || isExpectedCloseError(err):
		c.log.Info().Err(err).Msg("channel connection closed")
	case websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure):
		c.log.Warn().Err(err).Msg("unexpected channel close")
	default:
		c.log.Warn().Err(err).Msg("channel read error")
	}
}

func (c *Conn) readPump() {
	defer func() {
		close(c.readDone)
		if err := c.ws.Close(); err != nil && !isExpectedCloseError(err) {
			c.log.Debug().Err(err).Msg("close after read pump")
		}
	}()

	c.setupReadConnection()

	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			c.handleReadError(err)
			return
		}
		// Peers may batch several envelopes into one frame, newline separated.
		for _, frame := range bytes.Split(raw, []byte{'\n'}) {
			if len(bytes.TrimSpace(frame)) == 0 {
				continue
			}
			c.dispatch(frame)
		}
	}
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		if err := c.ws.Close(); err != nil && !isExpectedCloseError(err) {
			c.log.Debug().Err(err).Msg("close after write pump")
		}
	}()

	for {
		select {
		case frame := <-c.send:
			if !c.write(websocket.TextMessage, frame) {
				return
			}
		case <-ticker.C:
			if !c.write(websocket.PingMessage, nil) {
				return
			}
		case <-c.closing:
			c.write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case <-c.readDone:
			return
		}
	}
}

func (c *Conn) write(messageType int, data []byte) bool {
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.log.Warn().Err(err).Msg("set write deadline")
		return false
	}
	if err := c.ws.WriteMessage(messageType, data); err != nil {
		if !isExpectedCloseError(err) {
			c.log.Warn().Err(err).Msg("channel write error")
		}
		return false
	}
	return true
}
