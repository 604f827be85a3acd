package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"finscope/internal/grpcapi"
	"finscope/internal/httpapi"
	"finscope/internal/request"
)

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and gRPC health service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx)
		},
	}
}

func (a *app) serve(ctx context.Context) error {
	cfg := a.cfg
	st, err := a.openStack()
	if err != nil {
		return err
	}
	defer st.Close()

	ps, err := a.openPrefs()
	if err != nil {
		return err
	}

	cal := a.calendar(ctx, st.gateway)
	now := time.Now()
	a.log.Info("market session",
		"open", cal.IsMarketOpen(now),
		"next_open", cal.NextOpen(now),
		"next_close", cal.NextClose(now))

	api := httpapi.New(st.provider, ps, cfg.Menu, httpapi.Options{
		CORSOrigin: cfg.Server.CORSOrigin,
		Logger:     a.log,
	})
	httpSrv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	grpcSrv := grpcapi.New(st.sqlite.Ping, cfg.Server.HealthInterval, a.log, request.WithPolicy(cfg.Policy))

	httpLis, err := net.Listen("tcp", httpSrv.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", httpSrv.Addr, err)
	}
	grpcLis, err := net.Listen("tcp", cfg.Server.GRPCAddr())
	if err != nil {
		httpLis.Close()
		return fmt.Errorf("listening on %s: %w", cfg.Server.GRPCAddr(), err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		api.Run(gctx)
		return nil
	})
	g.Go(func() error {
		a.log.Info("HTTP listening", "addr", httpLis.Addr().String())
		if err := httpSrv.Serve(httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return grpcSrv.Serve(gctx, grpcLis)
	})

	err = g.Wait()
	a.log.Info("server stopped")
	return err
}
