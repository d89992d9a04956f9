package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jonwraymond/tokengate/cache"
	"github.com/jonwraymond/tokengate/config"
	"github.com/jonwraymond/tokengate/governor"
	"github.com/jonwraymond/tokengate/health"
	"github.com/jonwraymond/tokengate/keepa"
	"github.com/jonwraymond/tokengate/observe"
	"github.com/jonwraymond/tokengate/server"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the governor and its status server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) (err error) {
	obs, err := observe.NewObserver(ctx, cfg.Observe)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, obs.Shutdown(context.WithoutCancel(ctx)))
	}()
	logger := obs.Logger()

	store, closeCache, err := cfg.Cache.OpenCache(ctx)
	if err != nil {
		return fmt.Errorf("open cache: %w", err)
	}
	defer func() {
		err = errors.Join(err, closeCache())
	}()

	gov, err := newGovernor(cfg, obs, store)
	if err != nil {
		return err
	}

	if cfg.Budget.Seed {
		// A failed seed keeps the configured estimate; the first real
		// response corrects it.
		_ = gov.Seed(ctx, keepa.SeedRequest())
	}

	srv, err := server.New(gov, server.Config{
		Addr:            cfg.Server.Addr,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		IdleTimeout:     cfg.Server.IdleTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		Authenticators:  cfg.Auth.Authenticators(),
		Health:          newHealth(cfg, gov, store),
		Logger:          logger,
	})
	if err != nil {
		return err
	}
	return srv.ListenAndServe(ctx)
}

func newGovernor(cfg *config.Config, obs observe.Observer, store cache.Cache) (*governor.Client, error) {
	inst, err := observe.InstrumentationFromObserver(obs)
	if err != nil {
		return nil, err
	}
	tr, err := keepa.NewTransport(cfg.Keepa.APIKey, cfg.Keepa.BaseURL)
	if err != nil {
		return nil, err
	}
	obs.Logger().Info(context.Background(), "keepa transport ready",
		observe.F("base_url", cfg.Keepa.BaseURL),
		observe.F("key_hash", tr.KeyFingerprint()),
		observe.F("domain", cfg.Domain().String()),
	)

	opts := []governor.Option{governor.WithInstrumentation(inst)}
	if store != nil {
		opts = append(opts, governor.WithCache(store))
	}
	return governor.New(cfg.Governor(), tr, opts...)
}

// pinger is implemented by shared cache backends.
type pinger interface {
	Ping(ctx context.Context) error
}

func newHealth(cfg *config.Config, gov *governor.Client, store cache.Cache) *health.Aggregator {
	agg := health.NewAggregator()
	agg.Register(health.BudgetChecker(gov, health.BudgetCheckerConfig{
		LowWatermark:      cfg.Health.LowWatermark,
		AuthFailureWindow: cfg.Health.AuthFailureWindow,
	}))
	agg.Register(health.NewCheckerFunc("circuit", func(ctx context.Context) health.Result {
		state := gov.Stats().Circuit
		if state == "" || state == "closed" {
			return health.Healthy("upstream circuit closed")
		}
		return health.Degraded("upstream circuit " + state)
	}))
	if p, ok := store.(pinger); ok {
		agg.Register(health.NewCheckerFunc("cache", func(ctx context.Context) health.Result {
			if err := p.Ping(ctx); err != nil {
				return health.Degraded("response cache unreachable").WithDetails(map[string]any{"error": err.Error()})
			}
			return health.Healthy("response cache reachable")
		}))
	}
	return agg
}
