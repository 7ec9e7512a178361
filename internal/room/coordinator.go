// Package room coordinates room membership on the real-time channel and
// maintains the message view for the currently selected room.
package room

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/Tyrowin/gochat-client/internal/channel"
	"github.com/Tyrowin/gochat-client/internal/chat"
)

var (
	// ErrUnknownRoom is returned when selecting a room outside the catalogue.
	ErrUnknownRoom = errors.New("unknown room")
	// ErrNotAttached is returned when no channel connection is attached.
	ErrNotAttached = errors.New("not connected")
)

// Channel is the part of a channel connection the Coordinator uses.
type Channel interface {
	Emit(event string, payload any) error
	On(event string, handler channel.Handler) (off func())
}

// BacklogFetcher loads a room's message history.
type BacklogFetcher interface {
	Messages(ctx context.Context, room string) ([]chat.Message, error)
}

// Observer is told about every change of the message view. It runs outside
// the Coordinator's lock and must not block for long.
type Observer func(room string, msgs []chat.Message)

// Option customizes a Coordinator.
type Option func(*Coordinator)

// WithObserver registers fn to receive view changes.
func WithObserver(fn Observer) Option {
	return func(c *Coordinator) { c.observer = fn }
}

// Coordinator owns the current room and its message view.
//
// Every selection starts a new generation. Backlog responses and channel
// events tagged with an older generation are discarded, and the previous
// selection's fetch is cancelled, so only the latest selection can write to
// the view.
type Coordinator struct {
	rooms    chat.Catalogue
	backlog  BacklogFetcher
	log      zerolog.Logger
	observer Observer

	mu          sync.Mutex
	ch          Channel
	sender      string
	current     string
	view        []chat.Message
	generation  uint64
	cancelFetch context.CancelFunc
	offs        []func()
}

// New returns a detached Coordinator whose current room is the catalogue's
// default.
func New(rooms chat.Catalogue, backlog BacklogFetcher, logger zerolog.Logger, opts ...Option) *Coordinator {
	c := &Coordinator{
		rooms:   rooms,
		backlog: backlog,
		log:     logger.With().Str("component", "room").Logger(),
		current: rooms.Default(),
		view:    []chat.Message{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Attach binds the Coordinator to a live channel and the identity messages
// are sent as. It does not select a room.
func (c *Coordinator) Attach(ch Channel, sender string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetLocked()
	c.ch = ch
	c.sender = sender
}

// Detach drops the channel, removes listeners, abandons any in-flight
// backlog fetch and clears the view. The current room is kept.
func (c *Coordinator) Detach() {
	c.mu.Lock()
	c.resetLocked()
	c.ch = nil
	c.sender = ""
	c.view = []chat.Message{}
	room, snapshot := c.current, slices.Clone(c.view)
	c.mu.Unlock()

	c.notify(room, snapshot)
}

// resetLocked invalidates the current generation and its listeners.
func (c *Coordinator) resetLocked() {
	c.generation++
	if c.cancelFetch != nil {
		c.cancelFetch()
		c.cancelFetch = nil
	}
	for _, off := range c.offs {
		off()
	}
	c.offs = nil
}

// SelectRoom makes room current: it announces membership, swaps the event
// listeners over to the new selection and loads the backlog. Announcement
// and backlog failures are logged and leave an empty view; only an unknown
// room or a missing connection is returned as an error.
func (c *Coordinator) SelectRoom(ctx context.Context, name string) error {
	room, ok := c.rooms.Lookup(name)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownRoom, name)
	}

	c.mu.Lock()
	if c.ch == nil {
		c.mu.Unlock()
		return ErrNotAttached
	}
	c.resetLocked()
	gen := c.generation
	fetchCtx, cancel := context.WithCancel(ctx)
	c.cancelFetch = cancel
	c.current = room
	ch := c.ch
	c.offs = []func(){
		ch.On(channel.EventRoomMessages, func(data json.RawMessage) { c.onRoomMessages(gen, data) }),
		ch.On(channel.EventChatMessage, func(data json.RawMessage) { c.onChatMessage(gen, data) }),
	}
	c.mu.Unlock()
	defer cancel()

	log := c.log.With().Str("room", room).Uint64("generation", gen).Logger()

	if err := ch.Emit(channel.EventJoinRoom, room); err != nil {
		log.Warn().Err(err).Msg("join announcement failed")
	}

	msgs, err := c.backlog.Messages(fetchCtx, room)
	if err != nil {
		if fetchCtx.Err() != nil && ctx.Err() == nil {
			log.Debug().Err(err).Msg("backlog fetch superseded")
		} else {
			log.Warn().Err(err).Msg("backlog fetch failed; showing empty room")
		}
		msgs = []chat.Message{}
	}
	if msgs == nil {
		msgs = []chat.Message{}
	}

	c.apply(gen, func() { c.view = msgs }, "backlog")
	return nil
}

func (c *Coordinator) onRoomMessages(gen uint64, data json.RawMessage) {
	backlog, err := chat.DecodeBacklog(data)
	if err != nil {
		c.log.Warn().Err(err).Msg("malformed roomMessages payload; clearing view")
		backlog = chat.Backlog{Messages: []chat.Message{}}
	}
	c.apply(gen, func() {
		if backlog.Room != "" && backlog.Room != c.current {
			c.log.Debug().Str("event_room", backlog.Room).Msg("dropping roomMessages for another room")
			return
		}
		c.view = backlog.Messages
	}, "roomMessages")
}

func (c *Coordinator) onChatMessage(gen uint64, data json.RawMessage) {
	msg, err := chat.DecodeMessage(data)
	if err != nil {
		c.log.Warn().Err(err).Msg("malformed chatMessage payload")
		return
	}
	c.apply(gen, func() {
		if msg.Room != "" && msg.Room != c.current {
			c.log.Debug().Str("event_room", msg.Room).Msg("dropping chatMessage for another room")
			return
		}
		c.view = append(c.view, msg)
	}, "chatMessage")
}

// apply runs mutate under the lock if gen is still current, then notifies
// the observer.
func (c *Coordinator) apply(gen uint64, mutate func(), source string) {
	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		c.log.Debug().Str("source", source).Uint64("generation", gen).Msg("discarding stale update")
		return
	}
	before := len(c.view)
	mutate()
	room, snapshot := c.current, slices.Clone(c.view)
	c.mu.Unlock()

	c.log.Debug().Str("source", source).Int("before", before).Int("after", len(snapshot)).Msg("view updated")
	c.notify(room, snapshot)
}

func (c *Coordinator) notify(room string, msgs []chat.Message) {
	if c.observer != nil {
		c.observer(room, msgs)
	}
}

// Send emits one chatMessage for the current room. Blank content is ignored.
// The view is not touched; the message shows up when the channel echoes it.
func (c *Coordinator) Send(content string) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil
	}

	c.mu.Lock()
	ch, room, sender := c.ch, c.current, c.sender
	c.mu.Unlock()

	if ch == nil {
		return ErrNotAttached
	}
	return ch.Emit(channel.EventChatMessage, chat.OutgoingMessage{
		Room:    room,
		Sender:  sender,
		Content: content,
	})
}

// Messages returns a copy of the current view.
func (c *Coordinator) Messages() []chat.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.view)
}

// Current returns the selected room.
func (c *Coordinator) Current() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Rooms returns the selectable rooms.
func (c *Coordinator) Rooms() []string {
	return c.rooms.List()
}
