package room

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/gochat-client/internal/channel"
	"github.com/Tyrowin/gochat-client/internal/chat"
)

var testRooms = chat.MustCatalogue(chat.DefaultRooms, "general")

func msg(sender, content string) chat.Message {
	return chat.Message{Sender: sender, Content: content, Timestamp: time.Unix(1700000000, 0).UTC()}
}

func contents(msgs []chat.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Content
	}
	return out
}

func attached(t *testing.T, opts ...Option) (*Coordinator, *fakeChannel, *fakeFetcher) {
	t.Helper()
	ch := newFakeChannel()
	fetcher := newFakeFetcher()
	c := New(testRooms, fetcher, zerolog.Nop(), opts...)
	c.Attach(ch, "al")
	return c, ch, fetcher
}

func TestSelectRoomAnnouncesFetchesAndSubscribes(t *testing.T) {
	c, ch, fetcher := attached(t)
	fetcher.set("dev", []chat.Message{msg("bo", "one"), msg("cy", "two")}, nil)

	require.NoError(t, c.SelectRoom(context.Background(), "dev"))

	assert.Equal(t, []emitted{{Event: channel.EventJoinRoom, Payload: "dev"}}, ch.emitted())
	assert.Equal(t, 1, fetcher.callCount("dev"))
	assert.Equal(t, []string{"one", "two"}, contents(c.Messages()))
	assert.Equal(t, "dev", c.Current())
	assert.Equal(t, 1, ch.listeners(channel.EventRoomMessages))
	assert.Equal(t, 1, ch.listeners(channel.EventChatMessage))

	ch.deliver(channel.EventChatMessage, chat.Message{Sender: "bo", Content: "three", Room: "dev"})
	assert.Equal(t, []string{"one", "two", "three"}, contents(c.Messages()))
}

func TestSelectRoomUsesCatalogueSpelling(t *testing.T) {
	rooms := chat.MustCatalogue([]string{"General", "Dev"}, "")
	ch := newFakeChannel()
	fetcher := newFakeFetcher()
	fetcher.set("dev", []chat.Message{msg("bo", "one")}, nil)
	c := New(rooms, fetcher, zerolog.Nop())
	c.Attach(ch, "al")

	require.NoError(t, c.SelectRoom(context.Background(), "Dev"))

	assert.Equal(t, "dev", c.Current())
	assert.Equal(t, []emitted{{Event: channel.EventJoinRoom, Payload: "dev"}}, ch.emitted())
	assert.Equal(t, 1, fetcher.callCount("dev"))

	ch.deliver(channel.EventChatMessage, chat.Message{Sender: "cy", Content: "two", Room: "dev"})
	assert.Equal(t, []string{"one", "two"}, contents(c.Messages()))
}

func TestSelectRoomRejectsUnknownRoom(t *testing.T) {
	c, ch, _ := attached(t)

	err := c.SelectRoom(context.Background(), "ops")
	require.ErrorIs(t, err, ErrUnknownRoom)
	assert.Empty(t, ch.emitted())
	assert.Equal(t, "general", c.Current())
}

func TestSelectRoomRequiresConnection(t *testing.T) {
	c := New(testRooms, newFakeFetcher(), zerolog.Nop())
	require.ErrorIs(t, c.SelectRoom(context.Background(), "dev"), ErrNotAttached)
}

func TestBacklogFailureYieldsEmptyView(t *testing.T) {
	c, ch, fetcher := attached(t)
	fetcher.set("general", []chat.Message{msg("bo", "old")}, nil)
	require.NoError(t, c.SelectRoom(context.Background(), "general"))
	require.Len(t, c.Messages(), 1)

	fetcher.set("dev", nil, errors.New("boom"))
	require.NoError(t, c.SelectRoom(context.Background(), "dev"))

	assert.NotNil(t, c.Messages())
	assert.Empty(t, c.Messages())
	assert.Len(t, ch.emitted(), 2)
}

func TestJoinFailureDoesNotBlockBacklog(t *testing.T) {
	c, ch, fetcher := attached(t)
	ch.emitErr = channel.ErrClosed
	fetcher.set("dev", []chat.Message{msg("bo", "one")}, nil)

	require.NoError(t, c.SelectRoom(context.Background(), "dev"))
	assert.Equal(t, []string{"one"}, contents(c.Messages()))
}

func TestRoomSwitchDetachesPreviousListeners(t *testing.T) {
	c, ch, _ := attached(t)
	ctx := context.Background()

	for _, room := range []string{"general", "dev", "random", "dev"} {
		require.NoError(t, c.SelectRoom(ctx, room))
		assert.Equal(t, 1, ch.listeners(channel.EventRoomMessages))
		assert.Equal(t, 1, ch.listeners(channel.EventChatMessage))
	}

	ch.deliver(channel.EventChatMessage, chat.Message{Sender: "bo", Content: "once"})
	assert.Equal(t, []string{"once"}, contents(c.Messages()))
}

func TestStaleBacklogIsDiscarded(t *testing.T) {
	tests := []struct {
		name        string
		honorCancel bool
	}{
		{name: "fetcher ignores cancellation"},
		{name: "fetcher honors cancellation", honorCancel: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _, fetcher := attached(t)
			fetcher.honorCancel = tt.honorCancel
			fetcher.set("general", []chat.Message{msg("bo", "from A")}, nil)
			fetcher.set("dev", []chat.Message{msg("cy", "from B")}, nil)
			gate := fetcher.gate("general")

			var wg sync.WaitGroup
			wg.Add(1)
			go func() {
				defer wg.Done()
				assert.NoError(t, c.SelectRoom(context.Background(), "general"))
			}()
			require.Eventually(t, func() bool { return fetcher.callCount("general") == 1 }, time.Second, 5*time.Millisecond)

			require.NoError(t, c.SelectRoom(context.Background(), "dev"))
			assert.Equal(t, []string{"from B"}, contents(c.Messages()))

			close(gate)
			wg.Wait()

			assert.Equal(t, []string{"from B"}, contents(c.Messages()))
			assert.Equal(t, "dev", c.Current())
		})
	}
}

func TestStaleBacklogDiscardedWhenNewRoomFails(t *testing.T) {
	c, _, fetcher := attached(t)
	fetcher.set("general", []chat.Message{msg("bo", "from A")}, nil)
	fetcher.set("dev", nil, errors.New("unavailable"))
	gate := fetcher.gate("general")

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = c.SelectRoom(context.Background(), "general")
	}()
	require.Eventually(t, func() bool { return fetcher.callCount("general") == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, c.SelectRoom(context.Background(), "dev"))
	close(gate)
	<-done

	assert.Empty(t, c.Messages())
}

func TestRoomMessagesReplacesView(t *testing.T) {
	c, ch, fetcher := attached(t)
	fetcher.set("dev", []chat.Message{msg("bo", "old")}, nil)
	require.NoError(t, c.SelectRoom(context.Background(), "dev"))

	ch.deliver(channel.EventRoomMessages, []chat.Message{msg("bo", "x"), msg("cy", "y")})
	assert.Equal(t, []string{"x", "y"}, contents(c.Messages()))

	ch.deliver(channel.EventRoomMessages, map[string]any{"messages": []chat.Message{msg("bo", "z")}})
	assert.Equal(t, []string{"z"}, contents(c.Messages()))

	ch.deliverRaw(channel.EventRoomMessages, []byte(`{"broken":`))
	assert.Empty(t, c.Messages())
}

func TestIncrementalMessagesAppendRegardlessOfLength(t *testing.T) {
	c, ch, _ := attached(t)
	require.NoError(t, c.SelectRoom(context.Background(), "dev"))

	for i := 0; i < 5; i++ {
		ch.deliver(channel.EventChatMessage, msg("bo", "m"))
	}
	assert.Len(t, c.Messages(), 5)
}

func TestEventsForOtherRoomsAreDropped(t *testing.T) {
	c, ch, _ := attached(t)
	require.NoError(t, c.SelectRoom(context.Background(), "dev"))

	ch.deliver(channel.EventChatMessage, chat.Message{Sender: "bo", Content: "elsewhere", Room: "random"})
	ch.deliver(channel.EventRoomMessages, map[string]any{"room": "random", "messages": []chat.Message{msg("bo", "x")}})
	assert.Empty(t, c.Messages())

	ch.deliver(channel.EventChatMessage, chat.Message{Sender: "bo", Content: "here", Room: "dev"})
	ch.deliver(channel.EventChatMessage, chat.Message{Sender: "bo", Content: "untagged"})
	assert.Equal(t, []string{"here", "untagged"}, contents(c.Messages()))
}

func TestMalformedChatMessageIsIgnored(t *testing.T) {
	c, ch, fetcher := attached(t)
	fetcher.set("dev", []chat.Message{msg("bo", "kept")}, nil)
	require.NoError(t, c.SelectRoom(context.Background(), "dev"))

	ch.deliverRaw(channel.EventChatMessage, []byte(`"just text"`))
	assert.Equal(t, []string{"kept"}, contents(c.Messages()))
}

func TestSend(t *testing.T) {
	c, ch, _ := attached(t)
	require.NoError(t, c.SelectRoom(context.Background(), "dev"))
	joins := len(ch.emitted())

	require.NoError(t, c.Send(""))
	require.NoError(t, c.Send("   "))
	assert.Len(t, ch.emitted(), joins)

	require.NoError(t, c.Send("  hi  "))
	emits := ch.emitted()
	require.Len(t, emits, joins+1)
	assert.Equal(t, emitted{
		Event:   channel.EventChatMessage,
		Payload: chat.OutgoingMessage{Room: "dev", Sender: "al", Content: "hi"},
	}, emits[len(emits)-1])

	assert.Empty(t, c.Messages(), "send must not append optimistically")
}

func TestSendRequiresConnection(t *testing.T) {
	c := New(testRooms, newFakeFetcher(), zerolog.Nop())
	require.NoError(t, c.Send(" "))
	require.ErrorIs(t, c.Send("hi"), ErrNotAttached)
}

func TestDetachClearsStateAndListeners(t *testing.T) {
	c, ch, fetcher := attached(t)
	fetcher.set("dev", []chat.Message{msg("bo", "one")}, nil)
	require.NoError(t, c.SelectRoom(context.Background(), "dev"))

	c.Detach()

	assert.Empty(t, c.Messages())
	assert.Zero(t, ch.listeners(channel.EventChatMessage))
	assert.Zero(t, ch.listeners(channel.EventRoomMessages))
	assert.Equal(t, "dev", c.Current())
	assert.ErrorIs(t, c.Send("hi"), ErrNotAttached)
}

func TestDetachDiscardsInFlightBacklog(t *testing.T) {
	c, _, fetcher := attached(t)
	fetcher.set("dev", []chat.Message{msg("bo", "late")}, nil)
	gate := fetcher.gate("dev")

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = c.SelectRoom(context.Background(), "dev")
	}()
	require.Eventually(t, func() bool { return fetcher.callCount("dev") == 1 }, time.Second, 5*time.Millisecond)

	c.Detach()
	close(gate)
	<-done

	assert.Empty(t, c.Messages())
}

func TestObserverSeesEveryChange(t *testing.T) {
	var mu sync.Mutex
	var seen [][]string
	c, ch, fetcher := attached(t, WithObserver(func(room string, msgs []chat.Message) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, append([]string{room}, contents(msgs)...))
	}))
	fetcher.set("dev", []chat.Message{msg("bo", "one")}, nil)

	require.NoError(t, c.SelectRoom(context.Background(), "dev"))
	ch.deliver(channel.EventChatMessage, msg("cy", "two"))
	c.Detach()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, [][]string{
		{"dev", "one"},
		{"dev", "one", "two"},
		{"dev"},
	}, seen)
}

func TestRooms(t *testing.T) {
	c := New(testRooms, newFakeFetcher(), zerolog.Nop())
	assert.Equal(t, []string{"general", "dev", "random"}, c.Rooms())
	assert.Equal(t, "general", c.Current())
}
