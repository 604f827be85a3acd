// Package cli implements the finscope command tree.
package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"finscope/internal/config"
	"finscope/internal/util"
)

// app carries state resolved by the root command for its subcommands.
type app struct {
	cfgPath string
	cfg     *config.Config
	log     *slog.Logger
}

// NewRootCmd creates the root command for the finscope binary.
func NewRootCmd(ver string) *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:           "finscope",
		Short:         "Security research over market, FTD and news data",
		Version:       ver,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load(cmd)
		},
	}

	cmd.PersistentFlags().StringVar(&a.cfgPath, "config", "",
		"config file (default $FINSCOPE_CONFIG or "+config.DefaultPath+")")
	cmd.PersistentFlags().String("log-level", "", "override logging.level")

	cmd.AddCommand(
		newServeCmd(a),
		newTUICmd(a),
		newFetchCmd(a),
		newUserCmd(a),
		newMenuCmd(a),
		newCallsCmd(a),
	)
	return cmd
}

func (a *app) load(cmd *cobra.Command) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading .env: %w", err)
	}

	path := a.cfgPath
	if path == "" {
		path = os.Getenv("FINSCOPE_CONFIG")
	}
	if path == "" {
		path = config.DefaultPath
	}
	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
		cfg.Logging.Level = lvl
	}
	a.cfg = cfg

	a.log = util.NewLoggerTo(cmd.ErrOrStderr(), cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(a.log)
	return nil
}
