package chattest

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// roomBroadcast is one frame for every peer currently in Room.
type roomBroadcast struct {
	Room    string
	Payload []byte
}

// hub tracks connected peers and fans room frames out to them. All
// membership changes go through Run's select loop.
type hub struct {
	peers      map[*peer]bool
	broadcast  chan roomBroadcast
	register   chan *peer
	unregister chan *peer
	mutex      sync.RWMutex
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
	total      int
	log        zerolog.Logger
}

func newHub(logger zerolog.Logger) *hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &hub{
		peers:      make(map[*peer]bool),
		broadcast:  make(chan roomBroadcast),
		register:   make(chan *peer),
		unregister: make(chan *peer),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
		log:        logger,
	}
}

func (h *hub) run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownPeers()
			return

		case p := <-h.register:
			h.mutex.Lock()
			h.peers[p] = true
			h.total++
			h.mutex.Unlock()

			h.wg.Add(2)
			go func() {
				defer h.wg.Done()
				p.writePump()
			}()
			go func() {
				defer h.wg.Done()
				p.readPump()
			}()

		case p := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.peers[p]; ok {
				delete(h.peers, p)
				h.mutex.Unlock()
				close(p.send)
			} else {
				h.mutex.Unlock()
			}

		case msg := <-h.broadcast:
			h.handleBroadcast(msg)
		}
	}
}

// submit hands a frame to the run loop unless the hub is shutting down.
func (h *hub) submit(msg roomBroadcast) {
	select {
	case h.broadcast <- msg:
	case <-h.ctx.Done():
	}
}

func (h *hub) join(p *peer) {
	select {
	case h.register <- p:
	case <-h.ctx.Done():
		_ = p.conn.Close()
	}
}

func (h *hub) leave(p *peer) {
	select {
	case h.unregister <- p:
	case <-h.ctx.Done():
	}
}

func (h *hub) handleBroadcast(msg roomBroadcast) {
	var failed []*peer
	for _, p := range h.snapshot() {
		if p.currentRoom() != msg.Room {
			continue
		}
		if !h.safeSend(p, msg.Payload) {
			failed = append(failed, p)
		}
	}
	h.removeFailedPeers(failed)
}

func (h *hub) safeSend(p *peer, payload []byte) bool {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	if _, ok := h.peers[p]; !ok {
		return false
	}
	select {
	case p.send <- payload:
		return true
	default:
		return false
	}
}

func (h *hub) removeFailedPeers(failed []*peer) {
	if len(failed) == 0 {
		return
	}

	h.mutex.Lock()
	var toClose []chan []byte
	for _, p := range failed {
		if _, ok := h.peers[p]; ok {
			delete(h.peers, p)
			toClose = append(toClose, p.send)
			h.log.Warn().Str("user", p.username).Msg("peer removed due to full send buffer")
		}
	}
	h.mutex.Unlock()

	for _, ch := range toClose {
		close(ch)
	}
}

func (h *hub) snapshot() []*peer {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	peers := make([]*peer, 0, len(h.peers))
	for p := range h.peers {
		peers = append(peers, p)
	}
	return peers
}

func (h *hub) counts() (open, total int) {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.peers), h.total
}

func (h *hub) shutdownPeers() {
	for _, p := range h.snapshot() {
		_ = p.conn.Close()
	}
}

// shutdown stops the run loop and waits for every peer pump to exit.
func (h *hub) shutdown() {
	h.cancel()
	<-h.done
	h.wg.Wait()
}
