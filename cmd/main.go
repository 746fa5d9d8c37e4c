package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"go-portal-realtime/internal/application/facade"
	"go-portal-realtime/internal/infrastructure/auth"
	"go-portal-realtime/internal/infrastructure/config"
	"go-portal-realtime/internal/infrastructure/hub"
	"go-portal-realtime/internal/infrastructure/logger"
	"go-portal-realtime/internal/infrastructure/metrics"
	"go-portal-realtime/internal/infrastructure/relay"
	"go-portal-realtime/internal/infrastructure/server"
	"go-portal-realtime/internal/infrastructure/store"
)

func main() {
	ctx := context.Background()
	sctx := WithSignal(ctx)

	cfg, err := config.LoadFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewLogrusLogger(newLoggerConfig(cfg.Log))

	reg := metrics.NewRegistry()
	var (
		realtimeMetrics *metrics.Realtime
		httpMetrics     *metrics.HTTP
	)
	if cfg.Metrics.Enabled {
		realtimeMetrics = metrics.NewRealtime(reg)
		httpMetrics = metrics.NewHTTP(reg)
	}

	hubInstance := hub.New(log,
		hub.WithMetrics(realtimeMetrics),
		hub.WithPingInterval(cfg.Realtime.PingInterval),
	)

	// Start the hub first
	if err := hubInstance.Start(ctx); err != nil {
		log.Errorf("failed to start hub: %v", err)
		return
	}

	contentStore, closeStore, err := newStore(ctx, cfg.Database, log)
	if err != nil {
		log.Errorf("failed to open store: %v", err)
		_ = hubInstance.Stop(ctx)
		return
	}
	defer closeStore()

	broadcaster, relayRunner, err := newBroadcaster(cfg, hubInstance, log)
	if err != nil {
		log.Errorf("failed to set up relay: %v", err)
		_ = hubInstance.Stop(ctx)
		return
	}

	verifier := auth.NewJWTVerifier(cfg.Auth.JWTSecret)
	content := facade.NewContentApplicationService(contentStore, broadcaster, cfg.Realtime.PushOnWrite, log)

	router := InitRouter(routerDeps{
		cfg:         cfg,
		log:         log,
		hub:         hubInstance,
		inbound:     hub.NewRouter(broadcaster, log, realtimeMetrics),
		verifier:    verifier,
		content:     content,
		profiles:    facade.NewProfileApplicationService(contentStore, log),
		registry:    reg,
		realtime:    realtimeMetrics,
		httpMetrics: httpMetrics,
	})
	httpSrv := server.NewHTTPServer(router, server.Options{
		Addr:         cfg.Addr(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	})

	log.Infof("listening on %s", cfg.Addr())
	app := newApplication(log, httpSrv, hubInstance, relayRunner, cfg.Server.ShutdownTimeout)
	if err := app.Run(sctx); err != nil {
		log.Errorf("failed to run application: %v", err)
	}
}

func newLoggerConfig(c config.LogConfig) *logger.Config {
	lCfg := logger.NewDefaultConfig()
	lCfg.Level = logger.ParseLevel(c.Level)
	lCfg.Format = c.Format
	lCfg.Output = c.Output
	lCfg.FilePath = c.File
	return lCfg
}

// newStore opens Postgres when a database URL is configured and falls back
// to the in-memory store otherwise.
func newStore(ctx context.Context, c config.DatabaseConfig, log logger.Logger) (store.Store, func(), error) {
	if c.URL == "" {
		log.Warn("DATABASE_URL not set, content is kept in memory")
		return store.NewMemory(), func() {}, nil
	}

	pool, err := store.Connect(ctx, c.URL)
	if err != nil {
		return nil, nil, err
	}
	pg := store.NewPostgres(pool)
	if err := pg.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	log.Info("Database connected")
	return pg, pool.Close, nil
}

type relayRunner interface {
	Run(ctx context.Context) error
	io.Closer
}

// newBroadcaster returns the Broadcaster used for client and API originated
// updates. With a relay configured, events go through the relay and reach
// the local hub via its subscription.
func newBroadcaster(cfg *config.Config, hubInstance *hub.Hub, log logger.Logger) (hub.Broadcaster, relayRunner, error) {
	switch {
	case cfg.Redis.URL != "":
		r, err := relay.NewRedis(cfg.Redis.URL, cfg.Redis.Channel, hubInstance, log)
		if err != nil {
			return nil, nil, err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := r.Ping(ctx); err != nil {
			_ = r.Close()
			return nil, nil, fmt.Errorf("failed to ping redis: %w", err)
		}
		return r, r, nil

	case cfg.Kafka.Brokers != "":
		k, err := relay.NewKafka(relay.KafkaConfig{
			Brokers: relay.ParseBrokers(cfg.Kafka.Brokers),
			Topic:   cfg.Kafka.Topic,
			Version: cfg.Kafka.Version,
		}, hubInstance, log)
		if err != nil {
			return nil, nil, err
		}
		return k, k, nil

	default:
		return hubInstance, nil, nil
	}
}

type Application struct {
	logger          logger.Logger
	httpSrv         server.Server
	hub             *hub.Hub
	relay           relayRunner
	shutdownTimeout time.Duration
}

func newApplication(
	logger logger.Logger,
	httpSrv *server.HTTPServer,
	hubInstance *hub.Hub,
	relay relayRunner,
	shutdownTimeout time.Duration,
) *Application {
	return &Application{
		logger:          logger.WithField("app", "portal"),
		httpSrv:         httpSrv,
		hub:             hubInstance,
		relay:           relay,
		shutdownTimeout: shutdownTimeout,
	}
}

func (app *Application) Run(ctx context.Context) error {
	eg, ctx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		return app.httpSrv.Start(ctx)
	})

	if app.relay != nil {
		eg.Go(func() error {
			return app.relay.Run(ctx)
		})
	}

	eg.Go(func() error {
		<-ctx.Done()

		gracefulshutdownCtx, cancel := context.WithTimeout(
			context.Background(),
			app.shutdownTimeout,
		)
		defer cancel()

		// Stop hub first
		if err := app.hub.Stop(gracefulshutdownCtx); err != nil {
			app.logger.Errorf("failed to stop hub: %v", err)
		}

		err := app.httpSrv.Stop(gracefulshutdownCtx)

		if app.relay != nil {
			if cerr := app.relay.Close(); cerr != nil {
				app.logger.Errorf("failed to close relay: %v", cerr)
			}
		}
		return err
	})

	return eg.Wait()
}

func WithSignal(pctx context.Context) context.Context {
	ctx, cancel := context.WithCancel(pctx)

	go func() {
		sigc := make(chan os.Signal, 1)
		signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

		<-sigc

		cancel()
	}()

	return ctx
}
