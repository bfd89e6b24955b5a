package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	jwttoken "nftregistry/internal/jwt_token"
	"nftregistry/internal/platform/config"
	id "nftregistry/pkg/domain"
)

func newTokenCmd() *cobra.Command {
	var (
		account string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for an account",
		Long: `Mint an HS256 access token using the server's NFTREGISTRY_JWT_* settings.

Examples:
  nftctl token --account alice
  curl -H "Authorization: Bearer $(nftctl token --account alice)" -X POST localhost:8080/nfts -d '{}'`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromEnv()
			if err != nil {
				return err
			}
			parsed, err := id.ParseAccountID(account)
			if err != nil {
				return err
			}
			if ttl == 0 {
				ttl = cfg.JWT.TokenTTL
			}
			svc := jwttoken.NewJWTService(cfg.JWT.SigningKey, cfg.JWT.Issuer, cfg.JWT.Audience)
			token, err := svc.GenerateAccessToken(parsed, ttl)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
	cmd.Flags().StringVarP(&account, "account", "a", "", "account the token authenticates")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (default NFTREGISTRY_JWT_TOKEN_TTL)")
	_ = cmd.MarkFlagRequired("account")
	return cmd
}
