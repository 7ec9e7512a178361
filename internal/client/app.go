// Package client holds the application state of the GoChat client. The App
// owns the Session and drives the channel connection and room membership
// from session transitions: a session appearing opens the connection and
// joins the current room; a session ending detaches from the room and closes
// the connection.
package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Tyrowin/gochat-client/internal/api"
	"github.com/Tyrowin/gochat-client/internal/channel"
	"github.com/Tyrowin/gochat-client/internal/chat"
	"github.com/Tyrowin/gochat-client/internal/room"
	"github.com/Tyrowin/gochat-client/internal/session"
	"github.com/Tyrowin/gochat-client/internal/validate"
)

const logoutTimeout = 5 * time.Second

var (
	// ErrInvalidCredentials is returned when the backend rejects a login.
	ErrInvalidCredentials = errors.New("invalid username or password")
	// ErrInvalidLoginResponse is returned when a login succeeds without a user.
	ErrInvalidLoginResponse = errors.New("invalid login response")
	// ErrUsernameTaken is returned when registration hits an existing account.
	ErrUsernameTaken = errors.New("username already taken")
	// ErrNotLoggedIn is returned by operations that need a session.
	ErrNotLoggedIn = errors.New("not logged in")
)

// Backend is the REST surface the App needs.
type Backend interface {
	Profile(ctx context.Context) (chat.User, error)
	Login(ctx context.Context, creds api.Credentials) (chat.User, error)
	Register(ctx context.Context, creds api.Credentials) (chat.User, error)
	Logout(ctx context.Context) error
	Messages(ctx context.Context, room string) ([]chat.Message, error)
}

// Connector owns the channel connection's lifecycle.
type Connector interface {
	EnsureOpen(ctx context.Context) (*channel.Conn, error)
	Close() error
}

// App is the client's top-level state.
type App struct {
	backend  Backend
	conns    Connector
	resolver *session.Resolver
	rooms    *room.Coordinator
	log      zerolog.Logger

	mu      sync.Mutex
	session chat.Session
}

// New assembles an App. Options are passed to the room Coordinator.
func New(backend Backend, conns Connector, catalogue chat.Catalogue, logger zerolog.Logger, opts ...room.Option) *App {
	return &App{
		backend:  backend,
		conns:    conns,
		resolver: session.NewResolver(backend, logger),
		rooms:    room.New(catalogue, backend, logger, opts...),
		log:      logger.With().Str("component", "app").Logger(),
	}
}

// Start resolves an existing session and, if one exists, connects.
func (a *App) Start(ctx context.Context) (chat.Session, error) {
	s := a.resolver.Resolve(ctx)
	if err := a.transition(ctx, s); err != nil {
		return a.Session(), err
	}
	return s, nil
}

// Login authenticates and connects.
func (a *App) Login(ctx context.Context, username, password string) (chat.User, error) {
	user, err := a.backend.Login(ctx, api.Credentials{Username: username, Password: password})
	switch {
	case errors.Is(err, api.ErrNoUser):
		return chat.User{}, ErrInvalidLoginResponse
	case api.IsStatus(err, http.StatusUnauthorized), api.IsStatus(err, http.StatusBadRequest), api.IsStatus(err, http.StatusNotFound):
		return chat.User{}, fmt.Errorf("%w: %w", ErrInvalidCredentials, err)
	case err != nil:
		return chat.User{}, fmt.Errorf("login: %w", err)
	}

	a.log.Info().Str("user", user.Username).Msg("logged in")
	return user, a.transition(ctx, chat.Authenticated(user))
}

// Register validates form, creates the account and connects as it.
// Validation problems come back as validate.FieldErrors.
func (a *App) Register(ctx context.Context, form validate.Registration) (chat.User, error) {
	if err := validate.Check(form); err != nil {
		return chat.User{}, err
	}

	user, err := a.backend.Register(ctx, api.Credentials{Username: form.Username, Password: form.Password})
	switch {
	case errors.Is(err, api.ErrNoUser):
		return chat.User{}, ErrInvalidLoginResponse
	case api.IsStatus(err, http.StatusConflict):
		return chat.User{}, fmt.Errorf("%w: %w", ErrUsernameTaken, err)
	case err != nil:
		return chat.User{}, fmt.Errorf("register: %w", err)
	}

	a.log.Info().Str("user", user.Username).Msg("registered")
	return user, a.transition(ctx, chat.Authenticated(user))
}

// Logout notifies the backend, best effort, then always tears down locally.
func (a *App) Logout(ctx context.Context) {
	if !a.Session().Present() {
		return
	}

	notifyCtx, cancel := context.WithTimeout(ctx, logoutTimeout)
	defer cancel()
	if err := a.backend.Logout(notifyCtx); err != nil {
		a.log.Warn().Err(err).Msg("logout notification failed; clearing local session anyway")
	}

	if err := a.transition(ctx, chat.Anonymous()); err != nil {
		a.log.Warn().Err(err).Msg("teardown after logout")
	}
	a.log.Info().Msg("logged out")
}

// transition moves the session to next and applies the connection side
// effects of the change. Same-state transitions have none.
func (a *App) transition(ctx context.Context, next chat.Session) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	prev := a.session
	a.session = next

	switch {
	case !prev.Present() && next.Present():
		return a.connectLocked(ctx, next.Username())

	case prev.Present() && !next.Present():
		a.rooms.Detach()
		if err := a.conns.Close(); err != nil {
			return fmt.Errorf("close channel: %w", err)
		}

	case prev.Present() && next.Present() && prev.Username() != next.Username():
		a.log.Info().Str("from", prev.Username()).Str("to", next.Username()).Msg("switching identity")
		a.rooms.Detach()
		if err := a.conns.Close(); err != nil {
			a.log.Warn().Err(err).Msg("close channel")
		}
		return a.connectLocked(ctx, next.Username())
	}
	return nil
}

// connectLocked opens the channel, binds the Coordinator to it and rejoins
// the current room. a.mu must be held.
func (a *App) connectLocked(ctx context.Context, username string) error {
	conn, err := a.conns.EnsureOpen(ctx)
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	a.rooms.Attach(conn, username)
	if err := a.rooms.SelectRoom(ctx, a.rooms.Current()); err != nil {
		return fmt.Errorf("select room: %w", err)
	}
	return nil
}

// Reconnect replaces a channel connection the backend dropped and rejoins
// the current room. With a live connection it only rejoins.
func (a *App) Reconnect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.session.Present() {
		return ErrNotLoggedIn
	}
	return a.connectLocked(ctx, a.session.Username())
}

// Session returns the current session.
func (a *App) Session() chat.Session {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.session
}

// SelectRoom switches the current room.
func (a *App) SelectRoom(ctx context.Context, name string) error {
	if !a.Session().Present() {
		return ErrNotLoggedIn
	}
	return a.rooms.SelectRoom(ctx, name)
}

// Send posts content to the current room.
func (a *App) Send(content string) error {
	if !a.Session().Present() {
		return ErrNotLoggedIn
	}
	return a.rooms.Send(content)
}

// Messages returns the current room's view.
func (a *App) Messages() []chat.Message {
	return a.rooms.Messages()
}

// CurrentRoom returns the selected room.
func (a *App) CurrentRoom() string {
	return a.rooms.Current()
}

// Rooms returns the selectable rooms.
func (a *App) Rooms() []string {
	return a.rooms.Rooms()
}
