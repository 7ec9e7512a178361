package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Tyrowin/gochat-client/internal/api"
)

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Check credentials against the backend",
	Long: `Logs in with --username and --password, prints the account name the
backend reports, then logs out again. No chat channel is opened.

Sessions are not kept between runs, so without both flags there is nothing
to check and the command prints "not logged in".`,
	RunE: runWhoami,
}

func runWhoami(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	if flagUsername == "" || flagPassword == "" {
		fmt.Fprintln(out, "not logged in")
		return nil
	}

	d, err := newDeps()
	if err != nil {
		return err
	}
	defer d.shutdown()

	user, err := d.api.Login(ctx, api.Credentials{Username: flagUsername, Password: flagPassword})
	if err != nil {
		return err
	}
	fmt.Fprintln(out, user.Username)
	if err := d.api.Logout(ctx); err != nil {
		logger.Warn().Err(err).Msg("logout after credential check")
	}
	return nil
}
