package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"nftregistry/internal/nft/store/backend"
)

func newSchemaCmd(flags *cliFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Apply migrations and report the schema version of a SQL store",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			// Opening a SQL backend applies pending migrations.
			b, err := backend.Open(cmd.Context(), cfg, quietLogger())
			if err != nil {
				return err
			}
			b.Close()

			version, dirty, err := backend.SchemaVersion(cfg)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "backend=%s version=%d dirty=%t\n", cfg.Store.Backend, version, dirty)
			return err
		},
	}
}
