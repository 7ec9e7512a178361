package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Tyrowin/gochat-client/internal/console"
	"github.com/Tyrowin/gochat-client/internal/room"
)

var reconnectInterval = 3 * time.Second

var errQuit = errors.New("quit")

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Log in and chat interactively",
	RunE:  runChat,
}

func runChat(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	render := console.NewRenderer(cmd.OutOrStdout(), nil)
	d, err := newDeps(room.WithObserver(render.View))
	if err != nil {
		return err
	}
	defer d.shutdown()

	p := newPrompter(ctx, cmd.InOrStdin(), cmd.OutOrStdout())

	s, err := d.app.Start(ctx)
	if err != nil {
		render.Error(err)
	}
	if !s.Present() {
		if err := login(ctx, d.app, p); err != nil {
			return quiet(err)
		}
	}
	render.Notice("logged in as %s; /help lists commands", d.app.Session().Username())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return commandLoop(gctx, d, render, p)
	})
	g.Go(func() error {
		watchConnection(gctx, d, render)
		return nil
	})
	return quiet(g.Wait())
}

// quiet maps the ways a user ends a session onto a clean exit.
func quiet(err error) error {
	if errors.Is(err, errQuit) || errors.Is(err, errNoInput) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func commandLoop(ctx context.Context, d *deps, render *console.Renderer, p *prompter) error {
	for {
		line, err := p.line(ctx)
		if err != nil {
			return err
		}

		cmd := console.Parse(line)
		switch cmd.Kind {
		case console.KindEmpty:
		case console.KindSend:
			if err := d.app.Send(cmd.Arg); err != nil {
				render.Error(err)
			}
		case console.KindJoin:
			if err := d.app.SelectRoom(ctx, cmd.Arg); err != nil {
				render.Error(err)
			}
		case console.KindRooms:
			render.Notice("rooms: %s (current: %s)", strings.Join(d.app.Rooms(), ", "), d.app.CurrentRoom())
		case console.KindLogout:
			d.app.Logout(ctx)
			render.Reset()
			render.Notice("logged out")
			if err := login(ctx, d.app, p); err != nil {
				return err
			}
			render.Notice("logged in as %s", d.app.Session().Username())
		case console.KindQuit:
			return errQuit
		case console.KindHelp:
			render.Notice("%s", console.Help)
		case console.KindUnknown:
			render.Notice("unknown command %s; /help lists commands", cmd.Arg)
		}
	}
}

// watchConnection keeps the channel up while a session is active: it waits
// for the live connection to stop, or finds none, and reconnects. Attempts
// are at least reconnectInterval apart.
func watchConnection(ctx context.Context, d *deps, render *console.Renderer) {
	var last time.Time
	for {
		if conn := d.conns.Current(); conn != nil {
			select {
			case <-ctx.Done():
				return
			case <-conn.Done():
			}
		}
		if !d.app.Session().Present() {
			if !sleep(ctx, reconnectInterval) {
				return
			}
			continue
		}

		if wait := reconnectInterval - time.Since(last); wait > 0 {
			if !sleep(ctx, wait) {
				return
			}
		}
		last = time.Now()

		render.Notice("channel down; reconnecting")
		if err := d.app.Reconnect(ctx); err != nil {
			logger.Warn().Err(err).Msg("reconnect failed")
			continue
		}
		render.Notice("reconnected")
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
