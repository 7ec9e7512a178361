package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/gochat-client/internal/api"
	"github.com/Tyrowin/gochat-client/internal/chat"
	"github.com/Tyrowin/gochat-client/internal/chattest"
)

const (
	waitFor = 2 * time.Second
	tick    = 10 * time.Millisecond
)

// loggedInDialer logs "al" into srv and returns a Dialer sharing the session cookie.
func loggedInDialer(t *testing.T, srv *chattest.Server) Dialer {
	t.Helper()
	srv.AddUser("al", "Secret1!")
	client, err := api.New(srv.URL, 5*time.Second, zerolog.Nop())
	require.NoError(t, err)
	_, err = client.Login(context.Background(), api.Credentials{Username: "al", Password: "Secret1!"})
	require.NoError(t, err)

	return Dialer{
		URL:    srv.WSURL(),
		Origin: srv.URL,
		Jar:    client.Jar(),
		Logger: zerolog.Nop(),
	}
}

func TestDialRequiresCredentials(t *testing.T) {
	srv := chattest.NewServer(t)
	d := Dialer{URL: srv.WSURL(), Origin: srv.URL, Jar: nil}

	_, err := d.Dial(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), fmt.Sprint(http.StatusUnauthorized))
	assert.Equal(t, 1, srv.ChannelDenied())
}

func TestDialRejectsForeignOrigin(t *testing.T) {
	srv := chattest.NewServer(t)
	d := loggedInDialer(t, srv)
	d.Origin = "http://evil.example"

	_, err := d.Dial(context.Background())
	require.Error(t, err)
	assert.Zero(t, srv.TotalConnections())
}

func TestEmitReachesServer(t *testing.T) {
	srv := chattest.NewServer(t)
	conn, err := loggedInDialer(t, srv).Dial(context.Background())
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()

	require.NoError(t, conn.Emit(EventJoinRoom, "dev"))
	require.NoError(t, conn.Emit(EventChatMessage, chat.OutgoingMessage{Room: "dev", Sender: "al", Content: "hi"}))

	require.Eventually(t, func() bool { return len(srv.Received()) == 1 }, waitFor, tick)
	assert.Equal(t, []chattest.Join{{User: "al", Room: "dev"}}, srv.Joins())
	assert.Equal(t, chat.OutgoingMessage{Room: "dev", Sender: "al", Content: "hi"}, srv.Received()[0])
}

func TestHandlersReceiveEventsInOrder(t *testing.T) {
	srv := chattest.NewServer(t)
	conn, err := loggedInDialer(t, srv).Dial(context.Background())
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()

	var mu sync.Mutex
	var got []string
	off := conn.On(EventChatMessage, func(data json.RawMessage) {
		msg, err := chat.DecodeMessage(data)
		if err != nil {
			return
		}
		mu.Lock()
		got = append(got, msg.Content)
		mu.Unlock()
	})
	defer off()

	require.NoError(t, conn.Emit(EventJoinRoom, "dev"))
	require.Eventually(t, func() bool { return len(srv.Joins()) == 1 }, waitFor, tick)

	const total = 50
	for i := 0; i < total; i++ {
		srv.Push("dev", chat.Message{Sender: "bo", Content: fmt.Sprintf("m%02d", i)})
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == total
	}, waitFor, tick)

	mu.Lock()
	defer mu.Unlock()
	for i, content := range got {
		assert.Equal(t, fmt.Sprintf("m%02d", i), content)
	}
}

func TestOffDetachesHandler(t *testing.T) {
	srv := chattest.NewServer(t)
	conn, err := loggedInDialer(t, srv).Dial(context.Background())
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()

	offA := conn.On(EventChatMessage, func(json.RawMessage) {})
	offB := conn.On(EventChatMessage, func(json.RawMessage) {})
	assert.Equal(t, 2, conn.Listeners(EventChatMessage))

	offA()
	offA()
	assert.Equal(t, 1, conn.Listeners(EventChatMessage))

	offB()
	assert.Zero(t, conn.Listeners(EventChatMessage))
}

func TestEmitAfterClose(t *testing.T) {
	srv := chattest.NewServer(t)
	conn, err := loggedInDialer(t, srv).Dial(context.Background())
	require.NoError(t, err)

	require.NoError(t, conn.Close())
	require.NoError(t, conn.Close())
	assert.False(t, conn.Alive())
	assert.ErrorIs(t, conn.Emit(EventJoinRoom, "dev"), ErrClosed)

	select {
	case <-conn.Done():
	default:
		t.Fatal("Done not closed after Close")
	}
	require.Eventually(t, func() bool { return srv.OpenConnections() == 0 }, waitFor, tick)
}

func TestPeerDropStopsConnection(t *testing.T) {
	srv := chattest.NewServer(t)
	conn, err := loggedInDialer(t, srv).Dial(context.Background())
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()

	require.Eventually(t, func() bool { return srv.OpenConnections() == 1 }, waitFor, tick)
	srv.DropConnections()

	select {
	case <-conn.Done():
	case <-time.After(waitFor):
		t.Fatal("connection did not notice the peer going away")
	}
	assert.False(t, conn.Alive())
}

func TestLargeBacklogFrameWithinDefaultLimit(t *testing.T) {
	srv := chattest.NewServer(t)
	conn, err := loggedInDialer(t, srv).Dial(context.Background())
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()

	got := make(chan int, 1)
	off := conn.On(EventRoomMessages, func(data json.RawMessage) {
		msgs, err := chat.DecodeMessages(data)
		if err == nil {
			got <- len(msgs)
		}
	})
	defer off()

	require.NoError(t, conn.Emit(EventJoinRoom, "dev"))
	require.Eventually(t, func() bool { return len(srv.Joins()) == 1 }, waitFor, tick)

	big := make([]chat.Message, 3000)
	for i := range big {
		big[i] = chat.Message{Sender: "bo", Content: strings.Repeat("x", 400)}
	}
	srv.PushRoomMessages("dev", big)

	select {
	case n := <-got:
		assert.Equal(t, 3000, n)
	case <-time.After(waitFor):
		t.Fatal("roomMessages frame over 1 MiB was not delivered")
	}
	assert.True(t, conn.Alive())
}

func TestFrameOverLimitStopsConnection(t *testing.T) {
	srv := chattest.NewServer(t)
	d := loggedInDialer(t, srv)
	d.MaxMessageSize = 4 << 10
	conn, err := d.Dial(context.Background())
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()

	require.NoError(t, conn.Emit(EventJoinRoom, "dev"))
	require.Eventually(t, func() bool { return len(srv.Joins()) == 1 }, waitFor, tick)

	srv.PushRoomMessages("dev", []chat.Message{{Sender: "bo", Content: strings.Repeat("x", 8<<10)}})

	select {
	case <-conn.Done():
	case <-time.After(waitFor):
		t.Fatal("oversized frame did not stop the connection")
	}
	assert.False(t, conn.Alive())
}
