package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"finscope/internal/market"
	"finscope/internal/provider"
	"finscope/internal/request"
	"finscope/internal/tui"
	"finscope/internal/util"
)

func newTUICmd(a *app) *cobra.Command {
	var remote bool
	cmd := &cobra.Command{
		Use:   "tui [ticker]",
		Short: "Open the terminal UI",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			var ticker string
			if len(args) == 1 {
				ticker = args[0]
			}
			return a.runTUI(ctx, ticker, remote)
		},
	}
	cmd.Flags().BoolVar(&remote, "remote", false, "read data from ui.remote_url instead of local stores")
	return cmd
}

func (a *app) runTUI(ctx context.Context, ticker string, remote bool) error {
	cfg := a.cfg

	// The screen belongs to the UI; log lines go to a file.
	if err := os.MkdirAll(cfg.Storage.DataDir, 0o755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}
	logFile, err := os.OpenFile(filepath.Join(cfg.Storage.DataDir, "tui.log"),
		os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}
	defer logFile.Close()
	a.log = util.NewLoggerTo(logFile, cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(a.log)

	var (
		p   provider.DataProvider
		gw  *market.Gateway
		cls = func() error { return nil }
	)
	if remote {
		p, cls, err = a.dataProvider(true)
	} else {
		var st *stack
		st, err = a.openStack()
		if st != nil {
			p, gw, cls = st.provider, st.gateway, st.Close
		}
	}
	if err != nil {
		return err
	}
	defer cls()

	ps, err := a.openPrefs()
	if err != nil {
		return err
	}

	m := tui.New(p, tui.Options{
		Menu:     cfg.Menu,
		Prefs:    ps,
		Ticker:   ticker,
		Calendar: a.calendar(ctx, gw),
		Logger:   a.log,
		HookOpts: []request.Option{request.WithPolicy(cfg.Policy)},
	})
	defer m.Close()

	if _, err := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("running tui: %w", err)
	}
	return nil
}
