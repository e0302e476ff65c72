package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/dkeye/VoiceHub/internal/adapters/auth"
	router "github.com/dkeye/VoiceHub/internal/adapters/http"
	"github.com/dkeye/VoiceHub/internal/adapters/storage"
	"github.com/dkeye/VoiceHub/internal/app"
	"github.com/dkeye/VoiceHub/internal/app/orch"
	"github.com/dkeye/VoiceHub/internal/config"
	"github.com/dkeye/VoiceHub/internal/core"
	"github.com/dkeye/VoiceHub/internal/domain"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP and WebSocket server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		demo, _ := cmd.Flags().GetBool("demo")
		users, _ := cmd.Flags().GetStringSlice("users")
		return serve(ctx, cfg, demo, users)
	},
}

func policyFor(name string) app.Policy {
	if name == "drop" {
		return app.LenientPolicy{}
	}
	return app.SimplePolicy{}
}

func serve(ctx context.Context, cfg *config.Config, demo bool, users []string) error {
	if cfg.Auth.Secret == "" {
		return fmt.Errorf("auth.secret is not set")
	}
	backend, err := storage.NewFromConfig(ctx, cfg.Database, cfg.Redis)
	if err != nil {
		return err
	}
	defer backend.Close()

	if demo {
		sid, err := seedDemo(ctx, backend, users)
		if err != nil {
			return err
		}
		log.Info().Str("module", "cmd").Str("server", string(sid)).Strs("users", users).Msg("demo data seeded")
	}

	o := orch.New(orch.Deps{
		Store:     backend,
		Auth:      auth.NewJWTAuthenticator(cfg.Auth.Secret, cfg.Auth.Issuer, cfg.Auth.TTL),
		Clock:     core.RealClock{},
		Scheduler: core.TickerScheduler{},
		Policy:    policyFor(cfg.Backpressure),
		Accrual: app.AccrualConfig{
			Interval:  cfg.Accrual.Interval,
			XPPerTick: cfg.Accrual.XPPerTick,
			Leveling:  domain.Leveling{BaseXP: float64(cfg.Accrual.BaseXP), GrowthRate: cfg.Accrual.GrowthRate},
		},
		StoreTimeout:     cfg.StoreTimeout,
		PrivateThreshold: domain.PermissionLevel(cfg.Membership.PrivateThreshold),
	})

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router.SetupRouter(ctx, cfg, o, backend),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", addr).Msg("VoiceHub server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		o.Shutdown(shutdownCtx)
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server forced to shutdown")
			return err
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}
	log.Info().Msg("Server exited gracefully")
	return nil
}
