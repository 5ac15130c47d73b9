package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tbourn/go-setlogs-backend/internal/events"
	httpapi "github.com/tbourn/go-setlogs-backend/internal/http"
	"github.com/tbourn/go-setlogs-backend/internal/observability"
	"github.com/tbourn/go-setlogs-backend/internal/progression"
)

func newServeCmd(a *app) *cobra.Command {
	var shutdownTimeout time.Duration
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the idempotency reaper and event subscribers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, a, shutdownTimeout)
		},
	}
	cmd.Flags().DurationVar(&shutdownTimeout, "shutdown-timeout", 30*time.Second, "grace period for in-flight requests")
	return cmd
}

func serve(ctx context.Context, a *app, shutdownTimeout time.Duration) error {
	cfg := a.cfg

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			log.Warn().Err(err).Msg("otel shutdown")
		}
	}()

	rt, err := buildRuntime(ctx, cfg, cfg.Events.Backend != "none")
	if err != nil {
		return err
	}
	defer rt.Close()

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, rt.Core, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	eg, gctx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		log.Info().Str("addr", srv.Addr).Str("version", version).Msg("starting setlogs server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server listen error")
			return err
		}
		return nil
	})

	eg.Go(func() error {
		return rt.Core.Ledger.RunReaper(gctx, cfg.Idempotency.ReapInterval)
	})

	if rt.Bus != nil {
		var handlers []events.Handler
		if cfg.Events.WarmCache && rt.Core.Cache.Store != nil {
			handlers = append(handlers, &events.CacheWarmer{Cache: rt.Core.Cache, Window: progression.DefaultWindow})
		}
		handlers = append(handlers, events.NewMutationLogger())
		eg.Go(func() error { return events.Run(gctx, rt.Bus, handlers...) })
	}

	eg.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down gracefully...")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			log.Error().Err(err).Msg("server shutdown error")
			return err
		}
		log.Info().Msg("server shutdown complete")
		return nil
	})

	return eg.Wait()
}
