package main

import (
	"encoding/json"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"nftregistry/internal/platform/config"
)

var version = "dev"

// cliFlags override the NFTREGISTRY_* environment for a single invocation.
type cliFlags struct {
	backend    string
	sqlitePath string
	badgerPath string
	dsn        string
	redisURL   string
}

func newRootCmd() *cobra.Command {
	flags := &cliFlags{}
	root := &cobra.Command{
		Use:           "nftctl",
		Short:         "Operator tooling for the NFT registry",
		Long:          `nftctl mints development tokens and inspects registry stores directly, bypassing the HTTP API.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.backend, "backend", "", "store backend (memory, badger, sqlite, postgres, redis)")
	pf.StringVar(&flags.sqlitePath, "sqlite-path", "", "sqlite database file")
	pf.StringVar(&flags.badgerPath, "badger-path", "", "badger data directory")
	pf.StringVar(&flags.dsn, "postgres-dsn", "", "postgres connection string")
	pf.StringVar(&flags.redisURL, "redis-url", "", "redis URL")

	root.AddCommand(
		newTokenCmd(),
		newInspectCmd(flags),
		newSchemaCmd(flags),
	)
	return root
}

// loadConfig reads the environment with flag overrides applied.
func loadConfig(flags *cliFlags) (config.Server, error) {
	overrides := map[string]string{}
	set := func(key, value string) {
		if value != "" {
			overrides[key] = value
		}
	}
	set("STORE_BACKEND", flags.backend)
	set("STORE_SQLITE_PATH", flags.sqlitePath)
	set("STORE_BADGER_PATH", flags.badgerPath)
	set("POSTGRES_DSN", flags.dsn)
	set("REDIS_URL", flags.redisURL)
	return config.FromEnvWith(overrides)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
