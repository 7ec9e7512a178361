package main

import (
	"errors"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/Tyrowin/gochat-client/internal/validate"
)

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Create an account",
	RunE:  runRegister,
}

func runRegister(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	d, err := newDeps()
	if err != nil {
		return err
	}
	defer d.shutdown()

	p := newPrompter(ctx, cmd.InOrStdin(), out)
	var form validate.Registration
	if form.Username, err = p.ask(ctx, "username", flagUsername); err != nil {
		return err
	}
	if form.Password, err = p.ask(ctx, "password", flagPassword); err != nil {
		return err
	}
	if form.ConfirmPassword, err = p.ask(ctx, "confirm password", flagPassword); err != nil {
		return err
	}

	user, err := d.app.Register(ctx, form)
	var fieldErrs validate.FieldErrors
	if errors.As(err, &fieldErrs) {
		fields := make([]string, 0, len(fieldErrs))
		for field := range fieldErrs {
			fields = append(fields, field)
		}
		sort.Strings(fields)
		for _, field := range fields {
			fmt.Fprintf(out, "%s: %s\n", field, fieldErrs[field])
		}
		if rules := validate.UnmetPasswordRules(form.Password); len(rules) > 0 {
			fmt.Fprintln(out, "password still needs:")
			for _, rule := range rules {
				fmt.Fprintf(out, "  - %s\n", rule)
			}
		}
		return errors.New("registration form is invalid")
	}
	if err != nil {
		return err
	}

	d.app.Logout(ctx)
	fmt.Fprintf(out, "registered %s\n", user.Username)
	return nil
}
