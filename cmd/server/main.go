package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	router "github.com/dkeye/Parley/internal/adapters/http"
	"github.com/dkeye/Parley/internal/adapters/rtc"
	"github.com/dkeye/Parley/internal/app"
	"github.com/dkeye/Parley/internal/app/orch"
	"github.com/dkeye/Parley/internal/auth"
	"github.com/dkeye/Parley/internal/config"
	"github.com/dkeye/Parley/internal/core"
	"github.com/dkeye/Parley/internal/domain"
	"github.com/dkeye/Parley/internal/observability"
	"github.com/dkeye/Parley/internal/store/memory"
	"github.com/dkeye/Parley/internal/store/mongo"
	"github.com/dkeye/Parley/internal/store/redis"
)

type stores struct {
	messages core.MessageStore
	graph    core.SocialGraph
	lastSeen core.LastSeenStore
	close    func()
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	switch cfg.Mode {
	case "release":
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(reg)

	st, err := openStores(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("storage", cfg.Storage).Msg("failed to open storage")
	}
	defer st.close()

	ice := rtc.FromConfig(cfg.ICEServers)
	if err := rtc.Validate(ice); err != nil {
		log.Fatal().Err(err).Msg("bad ice_servers")
	}

	verifier := auth.NewJWTVerifier(cfg.JWTSecret, 0)
	o := orch.New(orch.Deps{
		Store:    st.messages,
		Graph:    st.graph,
		LastSeen: st.lastSeen,
		Policy:   app.PolicyByName(cfg.Backpressure),
		Metrics:  metrics,
		Status: app.StatusConfig{
			QueueSize:    cfg.StatusQueue,
			Timeout:      cfg.PersistTimeout,
			BacklogLimit: cfg.BacklogLimit,
		},
		Calls:   app.NewCallTracker(cfg.RingTimeout),
		Limiter: app.NewCallRateLimiter(cfg.CallRate.Limit, cfg.CallRate.Interval),
	})

	r := router.SetupRouter(ctx, cfg, router.Deps{
		Orch:     o,
		Auth:     verifier,
		RTC:      ice,
		Gatherer: reg,
	})
	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return o.Status.Run(gctx)
	})
	g.Go(func() error {
		log.Info().Str("addr", addr).Msg("Parley server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen %s: %w", addr, err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server forced to shutdown")
		}
		o.Registry.CloseAll()
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("server error")
	}
	log.Info().Msg("Server exited gracefully")
}

func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	policy := domain.DeliveryPolicy(cfg.DeliveryPolicy)
	if cfg.Storage == "memory" {
		graph := memory.NewGraph()
		graph.DefaultPolicy = policy
		log.Warn().Str("module", "main").Msg("in-memory storage, state is lost on restart")
		return &stores{
			messages: memory.NewMessages(),
			graph:    graph,
			lastSeen: memory.NewLastSeen(),
			close:    func() {},
		}, nil
	}

	cli, err := mongo.Connect(ctx, cfg.Mongo)
	if err != nil {
		return nil, err
	}
	if err := cli.EnsureIndexes(ctx); err != nil {
		_ = cli.Close(context.Background())
		return nil, err
	}
	graph := cli.Graph()
	graph.DefaultPolicy = policy
	st := &stores{
		messages: cli.Messages(),
		graph:    graph,
		lastSeen: memory.NewLastSeen(),
	}

	var rdb *redis.LastSeen
	if cfg.Redis.Addr != "" {
		rdb, err = redis.NewLastSeen(ctx, cfg.Redis)
		if err != nil {
			_ = cli.Close(context.Background())
			return nil, err
		}
		st.lastSeen = rdb
	}
	st.close = func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := cli.Close(closeCtx); err != nil {
			log.Error().Err(err).Str("module", "main").Msg("close mongo")
		}
		if rdb != nil {
			if err := rdb.Close(); err != nil {
				log.Error().Err(err).Str("module", "main").Msg("close redis")
			}
		}
	}
	return st, nil
}
