package channel

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// Manager owns the process's single channel connection.
//
// States are Closed and Open. EnsureOpen moves Closed to Open and is a no-op
// when Open; Close moves Open to Closed and is a no-op when Closed. A
// connection dropped by the peer counts as Closed, so the next EnsureOpen
// replaces it.
type Manager struct {
	dial func(context.Context) (*Conn, error)
	log  zerolog.Logger

	mu    sync.Mutex
	conn  *Conn
	dials int
}

// NewManager returns a Manager in the Closed state that dials with d.
func NewManager(d Dialer, logger zerolog.Logger) *Manager {
	log := logger.With().Str("component", "channel").Logger()
	d.Logger = log
	return &Manager{dial: d.Dial, log: log}
}

// EnsureOpen returns the live connection, dialing one only if none exists.
// Concurrent callers share a single dial.
func (m *Manager) EnsureOpen(ctx context.Context) (*Conn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conn != nil {
		if m.conn.Alive() {
			return m.conn, nil
		}
		m.log.Info().Msg("previous connection dropped; reopening")
		_ = m.conn.Close()
		m.conn = nil
	}

	conn, err := m.dial(ctx)
	if err != nil {
		return nil, err
	}
	m.dials++
	m.conn = conn
	m.log.Info().Int("dials", m.dials).Msg("channel connection opened")
	return conn, nil
}

// Close terminates the connection, if any, and clears it.
func (m *Manager) Close() error {
	m.mu.Lock()
	conn := m.conn
	m.conn = nil
	m.mu.Unlock()

	if conn == nil {
		return nil
	}
	err := conn.Close()
	m.log.Info().Msg("channel connection closed")
	return err
}

// Open reports whether a live connection is held.
func (m *Manager) Open() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conn != nil && m.conn.Alive()
}

// Current returns the held connection or nil.
func (m *Manager) Current() *Conn {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conn
}

// Dials counts physical connections opened over the Manager's lifetime.
func (m *Manager) Dials() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dials
}
