// Command gochat is a terminal client for a GoChat backend.
package main

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/Tyrowin/gochat-client/internal/config"
)

var rootCmd = &cobra.Command{
	Use:               "gochat",
	Short:             "Terminal client for a GoChat backend",
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

var (
	flagAPIURL   string
	flagRoom     string
	flagLogLevel string
	flagUsername string
	flagPassword string
)

// Set by setup before any command runs.
var (
	cfg    *config.Config
	logger zerolog.Logger
)

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&flagAPIURL, "api-url", "", "backend base URL (env CHAT_API_URL)")
	flags.StringVar(&flagRoom, "room", "", "room to join first (env CHAT_DEFAULT_ROOM)")
	flags.StringVar(&flagLogLevel, "log-level", "", "debug, info, warn or error (env CHAT_LOG_LEVEL)")
	flags.StringVarP(&flagUsername, "username", "u", "", "account name; prompted for when empty")
	flags.StringVar(&flagPassword, "password", os.Getenv("CHAT_PASSWORD"), "account password; prompted for when empty (env CHAT_PASSWORD)")

	rootCmd.AddCommand(chatCmd, registerCmd, whoamiCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("gochat")
	}
}

// setup loads configuration, applies flag overrides and builds the logger.
func setup(cmd *cobra.Command, _ []string) error {
	c, err := config.NewConfigFromEnv()
	if err != nil {
		return err
	}
	if flagAPIURL != "" {
		c.APIURL = flagAPIURL
	}
	if flagRoom != "" {
		c.DefaultRoom = flagRoom
	}
	if flagLogLevel != "" {
		c.LogLevel = flagLogLevel
	}
	if err := c.Sanitize(); err != nil {
		return err
	}

	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		return err
	}
	logger = zerolog.New(zerolog.ConsoleWriter{Out: cmd.ErrOrStderr(), TimeFormat: time.Kitchen}).
		Level(level).
		With().Timestamp().Logger()
	log.Logger = logger
	cfg = c
	return nil
}
