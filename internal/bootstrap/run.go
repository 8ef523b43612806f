package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
)

// Run serves every component until SIGINT, SIGTERM, ctx cancellation or the
// first failure. On the way out each HTTP server drains within the shutdown
// timeout and each consumer loop closes its subscription.
func (a *App) Run(ctx context.Context, components ...Component) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(ctx)

	for _, c := range components {
		if c.Loop != nil {
			g.Go(func() error {
				return c.Loop.Run(gCtx)
			})
		}
		if c.Handler == nil {
			continue
		}

		srv := &http.Server{
			Addr:         fmt.Sprintf(":%d", c.Port),
			Handler:      c.Handler,
			ReadTimeout:  a.Config.Server.ReadTimeout,
			WriteTimeout: a.Config.Server.WriteTimeout,
			IdleTimeout:  a.Config.Server.IdleTimeout,
		}

		g.Go(func() error {
			a.Logger.Info().Str("component", c.Name).Str("addr", srv.Addr).Msg("Starting HTTP server")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("%s server: %w", c.Name, err)
			}
			return nil
		})

		g.Go(func() error {
			<-gCtx.Done()
			a.Logger.Info().Str("component", c.Name).Msg("Shutting down server...")
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gCtx), a.shutdownTimeout())
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				a.Logger.Error().Err(err).Str("component", c.Name).Msg("Server forced to shutdown")
			}
			return nil
		})
	}

	err := g.Wait()
	a.Logger.Info().Msg("Exited")
	return err
}

func (a *App) shutdownTimeout() time.Duration {
	if a.Config.Server.ShutdownTimeout > 0 {
		return a.Config.Server.ShutdownTimeout
	}
	return 30 * time.Second
}
