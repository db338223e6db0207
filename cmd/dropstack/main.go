// dropstack serves owner-scoped documents whose content lives in an S3-compatible
// object store and whose metadata and audit trail live in PostgreSQL.
package main

import (
	"fmt"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/spf13/cobra"

	"dropstack/internal/config"
)

var (
	Version = "dev"
	Commit  = "unknown"
)

var cfgFile string

func main() {
	rootCmd := &cobra.Command{
		Use:           "dropstack",
		Short:         "Document storage service backed by MinIO and PostgreSQL",
		Version:       fmt.Sprintf("%s (%s)", Version, Commit),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "optional YAML config file; environment variables override it")

	rootCmd.AddCommand(newServeCmd(), newMigrateCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// loadConfig reads --config when given, otherwise the environment only.
func loadConfig() (*config.AppConfig, error) {
	cfg := config.Load()
	if cfgFile != "" {
		var err error
		if cfg, err = config.LoadFile(cfgFile); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
