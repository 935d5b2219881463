package main

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/codebuildervaibhav/transcript-queue/internal/auth"
)

func newAuthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "auth",
		Short: "Authorize an OAuth client and cache its token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.Google.CredentialsFile == "" {
				return errors.New("google.credentials_file is not set")
			}
			if cfg.Google.TokenFile == "" {
				return errors.New("google.token_file is not set")
			}
			return auth.RunInstalledFlow(cmd.Context(), auth.Config{
				CredentialsFile: cfg.Google.CredentialsFile,
				TokenFile:       cfg.Google.TokenFile,
			}, os.Stdin, cmd.OutOrStdout())
		},
	}
}
