package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/esystemsdev/fabrixctl/pkg/fabrixctl/secrets"
)

func NewSecretsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secrets",
		Short: "Manage client credentials in the OS keychain",
	}
	cmd.AddCommand(
		newSecretsSetCommand(),
		newSecretsRemoveCommand(),
	)
	return cmd
}

func newSecretsSetCommand() *cobra.Command {
	var clientID string
	var clientSecret string

	cmd := &cobra.Command{
		Use:   "set <app>",
		Short: "Store a client-id/secret pair for an app",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			appName := args[0]
			if clientID == "" {
				clientID = os.Getenv("CLIENTID")
			}
			if clientSecret == "" {
				clientSecret = os.Getenv("CLIENTSECRET")
			}
			if clientID == "" || clientSecret == "" {
				return errors.New("both --client-id and --client-secret are required")
			}
			creds := secrets.Credentials{ClientID: clientID, ClientSecret: clientSecret}
			if err := secrets.Store(secrets.DefaultService, appName, creds); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(rt.Writer(), "Stored credentials for %s\n", appName)
			return nil
		},
	}

	cmd.Flags().StringVar(&clientID, "client-id", "", "Client ID (falls back to CLIENTID env var)")
	cmd.Flags().StringVar(&clientSecret, "client-secret", "", "Client secret (falls back to CLIENTSECRET env var)")
	return cmd
}

func newSecretsRemoveCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "rm <app>",
		Aliases: []string{"remove"},
		Short:   "Remove stored credentials for an app",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			if err := secrets.Remove(secrets.DefaultService, args[0]); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(rt.Writer(), "Removed credentials for %s\n", args[0])
			return nil
		},
	}
}
