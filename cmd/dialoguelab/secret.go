package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MrWong99/dialoguelab/internal/secrets"
)

func newSecretCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secret",
		Short: "Manage provider API keys in the OS keyring",
	}

	set := &cobra.Command{
		Use:   "set PROVIDER",
		Short: "Store the API key read from stdin for PROVIDER",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.ErrOrStderr(), "API key for %s: ", args[0])
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && line == "" {
				return fmt.Errorf("read key: %w", err)
			}
			if err := secrets.NewResolver().Store(args[0], strings.TrimSpace(line)); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "stored key for %s in the %q keyring\n", args[0], secrets.KeyringService)
			return nil
		},
	}

	del := &cobra.Command{
		Use:   "delete PROVIDER",
		Short: "Remove the stored API key for PROVIDER",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := secrets.NewResolver().Delete(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted key for %s\n", args[0])
			return nil
		},
	}

	cmd.AddCommand(set, del)
	return cmd
}
