// Package session resolves who, if anyone, is logged in when the client
// starts.
package session

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/Tyrowin/gochat-client/internal/chat"
)

// ProfileFetcher asks the backend for the current session's user.
type ProfileFetcher interface {
	Profile(ctx context.Context) (chat.User, error)
}

// Resolver turns one profile request into a Session.
type Resolver struct {
	profiles ProfileFetcher
	log      zerolog.Logger
}

// NewResolver returns a Resolver backed by profiles.
func NewResolver(profiles ProfileFetcher, logger zerolog.Logger) *Resolver {
	return &Resolver{
		profiles: profiles,
		log:      logger.With().Str("component", "session").Logger(),
	}
}

// Resolve issues exactly one profile request. Any failure means an anonymous
// visitor; it is logged, never returned.
func (r *Resolver) Resolve(ctx context.Context) chat.Session {
	user, err := r.profiles.Profile(ctx)
	if err != nil {
		r.log.Debug().Err(err).Msg("no active session")
		return chat.Anonymous()
	}
	if user.Username == "" {
		r.log.Debug().Msg("profile carried no username")
		return chat.Anonymous()
	}
	r.log.Info().Str("user", user.Username).Msg("session resumed")
	return chat.Authenticated(user)
}
