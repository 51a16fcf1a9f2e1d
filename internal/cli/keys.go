package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/soheil-star01/anjoman/internal/core/domain"
)

func newKeysCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage provider API keys stored on this machine",
	}
	cmd.AddCommand(newKeysSetCmd(e), newKeysListCmd(e), newKeysClearCmd(e))
	return cmd
}

func newKeysSetCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "set <provider> [key]",
		Short: "Store a key; read from stdin when omitted",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			p, err := domain.ParseProvider(args[0])
			if err != nil {
				return err
			}

			var key string
			if len(args) == 2 {
				key = args[1]
			} else {
				line, ok := newShell(e, nil).read(fmt.Sprintf("%s API key: ", p))
				if !ok {
					return errors.New("no key given")
				}
				key = line
			}
			key = strings.TrimSpace(key)
			if key == "" {
				return domain.ErrValidation("key must not be empty").WithParam("key")
			}

			stored, err := e.app.Store.Load(ctx)
			if err != nil {
				return err
			}
			stored[p] = key
			if err := e.app.Store.Save(ctx, stored); err != nil {
				return err
			}
			e.printer.Info("Stored %s key %s.", p, domain.Mask(key))
			return nil
		},
	}
}

func newKeysListCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Show which providers have a key, masked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			stored, err := e.app.Store.Load(ctx)
			if err != nil {
				return err
			}
			seed, err := e.app.Config.ProviderCredentials()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, p := range domain.KnownProviders {
				switch {
				case stored[p] != "":
					fmt.Fprintf(out, "%-10s %s\n", p, domain.Mask(stored[p]))
				case seed[p] != "":
					fmt.Fprintf(out, "%-10s %s (config)\n", p, domain.Mask(seed[p]))
				default:
					fmt.Fprintf(out, "%-10s -\n", p)
				}
			}
			return nil
		},
	}
}

func newKeysClearCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove every stored key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := e.app.Store.Clear(cmd.Context()); err != nil {
				return err
			}
			e.printer.Info("Stored keys removed.")
			return nil
		},
	}
}
