package room

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/Tyrowin/gochat-client/internal/channel"
	"github.com/Tyrowin/gochat-client/internal/chat"
)

type emitted struct {
	Event   string
	Payload any
}

// fakeChannel records emits and lets tests deliver events to listeners.
type fakeChannel struct {
	mu       sync.Mutex
	emits    []emitted
	handlers map[string]map[int]channel.Handler
	next     int
	emitErr  error
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{handlers: make(map[string]map[int]channel.Handler)}
}

func (f *fakeChannel) Emit(event string, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.emits = append(f.emits, emitted{Event: event, Payload: payload})
	return f.emitErr
}

func (f *fakeChannel) On(event string, handler channel.Handler) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	id := f.next
	if f.handlers[event] == nil {
		f.handlers[event] = make(map[int]channel.Handler)
	}
	f.handlers[event][id] = handler
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.handlers[event], id)
	}
}

func (f *fakeChannel) deliver(event string, payload any) {
	data, _ := json.Marshal(payload)
	f.deliverRaw(event, data)
}

func (f *fakeChannel) deliverRaw(event string, data []byte) {
	f.mu.Lock()
	handlers := make([]channel.Handler, 0, len(f.handlers[event]))
	for _, h := range f.handlers[event] {
		handlers = append(handlers, h)
	}
	f.mu.Unlock()

	for _, h := range handlers {
		h(data)
	}
}

func (f *fakeChannel) listeners(event string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.handlers[event])
}

func (f *fakeChannel) emitted() []emitted {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]emitted(nil), f.emits...)
}

type fetchResult struct {
	msgs []chat.Message
	err  error
}

// fakeFetcher serves canned backlogs. A gated room blocks until its gate is
// closed; with honorCancel set it also returns early on cancellation.
type fakeFetcher struct {
	mu          sync.Mutex
	results     map[string]fetchResult
	gates       map[string]chan struct{}
	calls       []string
	honorCancel bool
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		results: make(map[string]fetchResult),
		gates:   make(map[string]chan struct{}),
	}
}

func (f *fakeFetcher) set(room string, msgs []chat.Message, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results[room] = fetchResult{msgs: msgs, err: err}
}

func (f *fakeFetcher) gate(room string) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	g := make(chan struct{})
	f.gates[room] = g
	return g
}

func (f *fakeFetcher) Messages(ctx context.Context, room string) ([]chat.Message, error) {
	f.mu.Lock()
	f.calls = append(f.calls, room)
	gate := f.gates[room]
	result := f.results[room]
	honor := f.honorCancel
	f.mu.Unlock()

	if gate != nil {
		if honor {
			select {
			case <-gate:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		} else {
			<-gate
		}
	}
	return result.msgs, result.err
}

func (f *fakeFetcher) callCount(room string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == room {
			n++
		}
	}
	return n
}
