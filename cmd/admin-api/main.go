// README: Entry point; loads config, wires services, starts HTTP server and
// background sync engine, watchdog and polling fallback.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"primetransportes/internal/attachments"
	"primetransportes/internal/config"
	"primetransportes/internal/events"
	httptransport "primetransportes/internal/http"
	"primetransportes/internal/infra"
	"primetransportes/internal/modules/corrida"
	"primetransportes/internal/realtime"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load(".")
	if err != nil {
		log.Fatal(err)
	}

	logger, err := infra.NewLogger(cfg.Dev)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbPool, err := infra.NewDB(ctx, cfg.DB.DSN)
	if err != nil {
		logger.Fatal("postgres init", zap.Error(err))
	}
	defer dbPool.Close()

	redisClient := infra.NewRedis(cfg.Redis.Addr)

	deps := corrida.ServiceDeps{
		Store:    corrida.NewStore(dbPool),
		Sequence: corrida.NewRedisSequence(redisClient),
		Log:      logger.Named("corrida"),
	}

	if cfg.S3.Bucket != "" {
		uploader, err := attachments.NewUploader(ctx, cfg.S3)
		if err != nil {
			logger.Fatal("s3 init", zap.Error(err))
		}
		deps.Uploader = uploader
	}

	if cfg.AMQP.URL != "" {
		publisher, err := events.NewPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange)
		if err != nil {
			logger.Fatal("rabbitmq init", zap.Error(err))
		}
		defer publisher.Close()
		deps.Audit = publisher
	}

	corridaSvc := corrida.NewService(deps)
	if err := corridaSvc.Reload(ctx); err != nil {
		logger.Fatal("initial load", zap.Error(err))
	}

	var hub *httptransport.Hub

	// Reloads fan out to connected UI clients so browsers track the cache.
	reload := func(ctx context.Context) error {
		if err := corridaSvc.Reload(ctx); err != nil {
			return err
		}
		if hub != nil {
			hub.Broadcast(map[string]string{"event": "corridas_reloaded"})
		}
		return nil
	}

	engine := realtime.NewEngine(
		func(ctx context.Context) realtime.Channel {
			return realtime.NewWSChannel(cfg.Realtime.URL, logger.Named("realtime"))
		},
		reload,
		func() {
			logger.Error("realtime degraded; operating on polling floor only")
		},
		realtime.EngineConfig{
			Table:            cfg.Realtime.Table,
			MaxRetries:       cfg.Realtime.MaxRetries,
			BaseBackoff:      cfg.Realtime.BaseBackoff,
			MaxBackoff:       cfg.Realtime.MaxBackoff,
			WatchdogInterval: cfg.Realtime.WatchdogInterval,
			PollInterval:     cfg.Polling.Interval,
		},
		logger.Named("engine"),
	)

	hub = httptransport.NewHub(engine.SetVisible, logger.Named("hub"))

	server := httptransport.NewServer(httptransport.ServerDeps{
		Corridas:  corridaSvc,
		Engine:    engine,
		Hub:       hub,
		JWTSecret: cfg.JWT.Secret,
		Log:       logger.Named("http"),
	})

	engine.Start(ctx)

	srv := &http.Server{Addr: cfg.Server.Addr, Handler: server.Routes()}
	go func() {
		<-ctx.Done()
		srv.Shutdown(context.Background())
	}()

	logger.Info("admin-api listening", zap.String("addr", cfg.Server.Addr))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("http server", zap.Error(err))
	}
}
