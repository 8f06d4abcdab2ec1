package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/OCAP2/placefinder/internal/auth"
	"github.com/OCAP2/placefinder/internal/config"
	"github.com/OCAP2/placefinder/pkg/core"
	"github.com/spf13/cobra"
)

var (
	tokenSubject string
	tokenName    string
	tokenAvatar  string
	tokenTTL     time.Duration
)

// tokenCmd signs a sign-in credential with the configured key
var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a sign-in token for local use",
	RunE: func(cmd *cobra.Command, args []string) error {
		if tokenSubject == "" && tokenName == "" {
			return errors.New("--subject or --name is required")
		}
		p, err := auth.NewJWTProvider(config.GetAuthConfig())
		if err != nil {
			return err
		}
		token, err := p.Issue(core.Identity{
			Subject:     tokenSubject,
			DisplayName: tokenName,
			AvatarRef:   tokenAvatar,
		}, tokenTTL)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "", "stable subject id")
	tokenCmd.Flags().StringVar(&tokenName, "name", "", "display name")
	tokenCmd.Flags().StringVar(&tokenAvatar, "avatar", "", "avatar reference")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime")
	rootCmd.AddCommand(tokenCmd)
}
