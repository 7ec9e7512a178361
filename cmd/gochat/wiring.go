package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/Tyrowin/gochat-client/internal/api"
	"github.com/Tyrowin/gochat-client/internal/channel"
	"github.com/Tyrowin/gochat-client/internal/client"
	"github.com/Tyrowin/gochat-client/internal/room"
)

// connector is the Manager as the CLI sees it: the App's lifecycle calls
// plus access to the live connection for the watcher.
type connector interface {
	client.Connector
	Current() *channel.Conn
}

type deps struct {
	api   *api.Client
	conns connector
	app   *client.App
}

func newDeps(opts ...room.Option) (*deps, error) {
	apiClient, err := api.New(cfg.APIBase(), cfg.HTTPTimeout, logger, api.WithMaxBodySize(cfg.MaxPayload))
	if err != nil {
		return nil, err
	}
	catalogue, err := cfg.Catalogue()
	if err != nil {
		return nil, err
	}
	conns := channel.NewManager(channel.Dialer{
		URL:              cfg.ChannelURL(),
		Origin:           cfg.Origin(),
		Jar:              apiClient.Jar(),
		HandshakeTimeout: cfg.HTTPTimeout,
		MaxMessageSize:   cfg.MaxPayload,
	}, logger)

	logger.Debug().
		Str("api", apiClient.BaseURL()).
		Int64("max_payload", cfg.MaxPayload).
		Str("channel", cfg.ChannelURL()).
		Strs("rooms", catalogue.List()).
		Msg("client configured")

	return &deps{
		api:   apiClient,
		conns: conns,
		app:   client.New(apiClient, conns, catalogue, logger, opts...),
	}, nil
}

func (d *deps) shutdown() {
	if err := d.conns.Close(); err != nil {
		logger.Debug().Err(err).Msg("close channel")
	}
}

// prompter hands out input lines. A single goroutine owns the reader, so
// prompts and the chat input loop never compete for stdin.
type prompter struct {
	lines <-chan string
	out   io.Writer
}

var errNoInput = errors.New("no more input")

func newPrompter(ctx context.Context, in io.Reader, out io.Writer) *prompter {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	return &prompter{lines: lines, out: out}
}

func (p *prompter) line(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case line, ok := <-p.lines:
		if !ok {
			return "", errNoInput
		}
		return strings.TrimRight(line, "\r"), nil
	}
}

// ask returns preset when set, otherwise prompts for a line.
func (p *prompter) ask(ctx context.Context, label, preset string) (string, error) {
	if preset != "" {
		return preset, nil
	}
	fmt.Fprintf(p.out, "%s: ", label)
	return p.line(ctx)
}

// login prompts for credentials until the backend accepts them or input
// runs out. A login whose channel could not be opened still counts: the
// session is kept and the connection watcher retries the channel.
func login(ctx context.Context, app *client.App, p *prompter) error {
	for {
		username, err := p.ask(ctx, "username", flagUsername)
		if err != nil {
			return err
		}
		password, err := p.ask(ctx, "password", flagPassword)
		if err != nil {
			return err
		}

		_, err = app.Login(ctx, strings.TrimSpace(username), password)
		if err != nil && app.Session().Present() {
			fmt.Fprintf(p.out, "logged in, but the chat channel is unavailable (%v); retrying in the background\n", err)
			return nil
		}
		if !errors.Is(err, client.ErrInvalidCredentials) {
			return err
		}
		fmt.Fprintln(p.out, "invalid username or password")
		if flagUsername != "" && flagPassword != "" {
			return err
		}
		flagPassword = ""
	}
}
