package app

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"shipping-bot/internal/scheduler"
	"shipping-bot/internal/server"
	"shipping-bot/internal/version"
)

// ServeOptions configure the HTTP API.
type ServeOptions struct {
	Addr string
	// Ready, when set, receives the bound listener address once serving.
	Ready func(addr string)
}

// Serve runs the HTTP API until interrupted, hot-reloading reference data
// every data.reload_interval when configured.
func (a *App) Serve(ctx context.Context, opts ServeOptions) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rt, err := a.bootstrap(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	addr := opts.Addr
	if addr == "" {
		addr = a.Config.Server.Addr
	}
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:      server.New(rt.service, a.Logger),
		ReadTimeout:  a.Config.Server.ReadTimeout,
		WriteTimeout: a.Config.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Logger.Info().Str("addr", listener.Addr().String()).Str("build", version.String()).Msg("starting http api")
		if opts.Ready != nil {
			opts.Ready(listener.Addr().String())
		}
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		timeout := a.Config.Server.ShutdownTimeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if interval := a.Config.Data.ReloadInterval; interval > 0 {
		sched := scheduler.New(scheduler.Options{
			Name:     "refdata_reload",
			Interval: interval,
		}, a.Logger)
		g.Go(func() error {
			err := sched.Run(gctx, func(ctx context.Context, _ time.Time) error {
				_, err := rt.holder.Reload(ctx, rt.source, a.Logger)
				return err
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("http api terminated with error")
		return err
	}

	a.Logger.Info().Msg("http api stopped")
	return nil
}
