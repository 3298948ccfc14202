package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/watzon/gensched/internal/auth"
)

var (
	tokenSubject string
	tokenTTL     time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue an API token",
	Long: `Issue a bearer token for the HTTP API, signed with server.auth.jwt_secret.

Examples:
  gensched token --subject ci --ttl 720h
  curl -H "Authorization: Bearer $(gensched token --subject me)" localhost:8090/api/tasks`,
	Args: cobra.NoArgs,
	RunE: runToken,
}

func init() {
	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "", "Who the token is issued to")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "Token lifetime (0 for no expiry)")
	_ = tokenCmd.MarkFlagRequired("subject")

	rootCmd.AddCommand(tokenCmd)
}

func runToken(cmd *cobra.Command, args []string) error {
	if !appConfig.Server.Auth.Enabled() {
		return fmt.Errorf("server.auth.jwt_secret is not configured")
	}

	token, err := auth.NewTokenService(appConfig.Server.Auth).Issue(tokenSubject, tokenTTL)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}
