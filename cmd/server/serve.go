package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/DoyleJ11/cricket-auction-backend/internal/auctioneer"
	"github.com/DoyleJ11/cricket-auction-backend/internal/config"
	"github.com/DoyleJ11/cricket-auction-backend/internal/engine"
	"github.com/DoyleJ11/cricket-auction-backend/internal/httpapi"
	"github.com/DoyleJ11/cricket-auction-backend/internal/hub"
	"github.com/DoyleJ11/cricket-auction-backend/internal/logging"
	"github.com/DoyleJ11/cricket-auction-backend/internal/relay"
	"github.com/DoyleJ11/cricket-auction-backend/internal/store"
	"github.com/DoyleJ11/cricket-auction-backend/internal/store/postgres"
)

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the auction HTTP and websocket server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup(*configPath)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, log)
		},
	}
}

func setup(path string) (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}

func openPostgres(cfg *config.Config, log *zap.Logger) (*postgres.Store, error) {
	return postgres.Open(postgres.Config{
		DSN:             cfg.Database.DSN,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime.Duration,
	}, log.Named("postgres"))
}

func serve(ctx context.Context, cfg *config.Config, log *zap.Logger) (err error) {
	checks := map[string]httpapi.Pinger{}

	var st store.Store
	if cfg.Database.DSN != "" {
		pg, perr := openPostgres(cfg, log)
		if perr != nil {
			return perr
		}
		defer func() { err = multierr.Append(err, pg.Close()) }()
		checks["database"] = pg.Ping
		st = pg
	} else {
		teams, lots := cfg.SeedEntities()
		log.Warn("no database configured, auction state is kept in memory",
			zap.Int("teams", len(teams)), zap.Int("players", len(lots)))
		st = store.NewMemory(teams, lots)
	}

	h := hub.New(log.Named("hub"), cfg.Auction.ObserverBuffer)
	defer h.Close()

	// The auctioneer outlives the signal so in-flight requests can finish;
	// it stops when the shutdown goroutine closes it.
	a, err := auctioneer.New(context.WithoutCancel(ctx), engine.NewMachine(cfg.Rules()), st, h, log.Named("auctioneer"), auctioneer.Options{
		InboxSize:      cfg.Auction.InboxSize,
		CommandTimeout: cfg.Auction.CommandTimeout.Duration,
		StoreTimeout:   cfg.Auction.StoreTimeout.Duration,
	})
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Redis.Enabled {
		bus, rerr := relay.Dial(ctx, relay.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if rerr != nil {
			return multierr.Append(rerr, a.Close(context.Background()))
		}
		defer func() { err = multierr.Append(err, bus.Close()) }()
		r := relay.New(a, bus, log.Named("relay"), relay.Options{Channel: cfg.Redis.Channel, Stream: cfg.Redis.Stream})
		g.Go(func() error { return r.Run(gctx) })
	}

	srv := &http.Server{
		Addr: cfg.Server.Addr,
		Handler: httpapi.SetupRoutes(a, log.Named("http"), httpapi.Options{
			OriginPatterns: cfg.Server.OriginPatterns,
			Checks:         checks,
		}),
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout.Duration,
	}

	g.Go(func() error {
		log.Info("listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration)
		defer cancel()
		return multierr.Combine(srv.Shutdown(sctx), a.Close(sctx))
	})

	return g.Wait()
}
