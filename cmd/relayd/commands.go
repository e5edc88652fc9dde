package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	httpapi "github.com/tbourn/go-relay-bridge/internal/http"
	"github.com/tbourn/go-relay-bridge/internal/services"
)

const shutdownTimeout = 15 * time.Second

// withApp runs fn with a wired app whose context ends on SIGINT/SIGTERM.
// migrate runs first unless skipMigrate is set.
func withApp(cmd *cobra.Command, skipMigrate bool, fn func(ctx context.Context, a *app) error) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer func() {
		cctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		a.Close(cctx)
	}()

	if !skipMigrate {
		if err := a.migrate(); err != nil {
			return err
		}
	}
	return fn(ctx, a)
}

func newServeCommand() *cobra.Command {
	var noWorkers bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the queue workers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, false, func(ctx context.Context, a *app) error {
				g, ctx := errgroup.WithContext(ctx)
				g.Go(func() error { return serveHTTP(ctx, a) })
				if !noWorkers {
					g.Go(func() error { return a.consumer.Run(ctx) })
				}
				return g.Wait()
			})
		},
	}
	cmd.Flags().BoolVar(&noWorkers, "no-workers", false, "serve the API without consuming the queue")
	return cmd
}

// serveHTTP runs the API until ctx ends, then drains in-flight requests.
func serveHTTP(ctx context.Context, a *app) error {
	gin.SetMode(a.cfg.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, httpapi.Services{
		Messages: a.messages,
		Links:    a.links,
		Relayer:  a.relay,
	}, a.cfg)

	srv := &http.Server{
		Addr:              ":" + a.cfg.Port,
		Handler:           r,
		ReadTimeout:       a.cfg.ReadTimeout,
		ReadHeaderTimeout: a.cfg.ReadHeaderTimeout,
		WriteTimeout:      a.cfg.WriteTimeout,
		IdleTimeout:       a.cfg.IdleTimeout,
		MaxHeaderBytes:    a.cfg.MaxHeaderBytes,
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Info().Str("addr", srv.Addr).Str("base_path", a.cfg.APIBasePath).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	a.log.Info().Msg("shutting down http server")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(sctx)
}

func newWorkCommand() *cobra.Command {
	var once bool
	cmd := &cobra.Command{
		Use:   "work",
		Short: "Run the queue workers only",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, false, func(ctx context.Context, a *app) error {
				if !once {
					return a.consumer.Run(ctx)
				}
				n := 0
				for {
					processed, err := a.consumer.ProcessOne(ctx)
					if err != nil {
						return err
					}
					if !processed {
						fmt.Fprintf(cmd.OutOrStdout(), "processed %d job(s)\n", n)
						return nil
					}
					n++
				}
			})
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "drain the due jobs and exit")
	return cmd
}

func newRelayCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "relay <message-id>",
		Short:   "Relay one stored message now and print the outcome",
		Args:    cobra.ExactArgs(1),
		Example: "  relayd relay 3f1c9a2e-5b7d-4e8f-9a0b-1c2d3e4f5a6b",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, false, func(ctx context.Context, a *app) error {
				msg, err := a.messages.Get(ctx, args[0])
				if errors.Is(err, services.ErrMessageNotFound) {
					return fmt.Errorf("message %s not found", args[0])
				}
				if err != nil {
					return err
				}
				out := a.relay.Relay(ctx, msg)
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(out)
			})
		},
	}
}

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, true, func(_ context.Context, a *app) error {
				if err := a.migrate(); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
				return nil
			})
		},
	}
}
