package cmd

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.uber.org/zap"

	"github.com/arc-self/amy-core/internal/config"
	"github.com/arc-self/amy-core/internal/emergency"
	"github.com/arc-self/amy-core/internal/flow"
	"github.com/arc-self/amy-core/internal/listener"
	"github.com/arc-self/amy-core/internal/resolver"
	"github.com/arc-self/amy-core/internal/scheduler"
	"github.com/arc-self/amy-core/internal/store"
	"github.com/arc-self/amy-core/internal/telemetry"
	"github.com/arc-self/amy-core/internal/writer"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the ingestion core: MQTT listeners, resolver, writer and the data-flow stream",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) error {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.OTelEndpoint != "" {
		mp, err := telemetry.InitMeterProvider(ctx, "amy-core", cfg.OTelEndpoint)
		if err != nil {
			logger.Fatal("otel meter provider init failed", zap.Error(err))
		}
		defer mp.Shutdown(ctx)

		tp, err := telemetry.InitTracer(ctx, "amy-core", cfg.OTelEndpoint)
		if err != nil {
			logger.Fatal("otel tracer init failed", zap.Error(err))
		}
		defer tp.Shutdown(ctx)
	}

	secrets, err := config.NewSecretManager(cfg.Vault.Address, cfg.Vault.Token)
	if err != nil {
		logger.Fatal("vault client init failed", zap.Error(err))
	}
	secret, err := secrets.GetKV2(cfg.Vault.SecretPath)
	if err != nil {
		logger.Fatal("vault secret read failed", zap.Error(err))
	}
	cfg.ApplyMongoSecret(secret)

	mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.Mongo.URI))
	if err != nil {
		logger.Fatal("mongo connection failed", zap.Error(err))
	}
	defer mongoClient.Disconnect(context.Background())

	patientsDB := mongoClient.Database(cfg.Mongo.Database)
	auditDB := mongoClient.Database(cfg.Mongo.AuditDatabase)

	docStore := store.New(patientsDB)
	auditStore := store.NewAuditStore(auditDB, logger)

	cache := resolver.NewNoopCache()
	if cfg.Resolver.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.Resolver.RedisURL)
		if err != nil {
			logger.Fatal("redis url parse failed", zap.Error(err))
		}
		cache = resolver.NewRedisCache(redis.NewClient(opt))
	} else if cfg.Resolver.CacheTTL > 0 {
		cache = resolver.NewMemoryCache()
	}
	res := resolver.New(docStore, cache, cfg.Resolver.CacheTTL, logger)

	writerCfg := writer.Config{
		MaxRetries:        cfg.Writer.MaxRetries,
		ProtocolTimeout:   cfg.Writer.ProtocolTimeout,
		PerPatientStripes: cfg.Writer.PerPatientStripes,
	}
	wr := writer.New(docStore, auditStore, writerCfg, logger)

	var collector flow.Collector
	if cfg.DataFlow.CollectorURL != "" {
		collector = flow.NewHTTPCollector(cfg.DataFlow.CollectorURL, logger, nil)
	}
	emitter := flow.NewEmitter(cfg.DataFlow.ChannelCapacity, cfg.DataFlow.RingBufferSize, collector, logger)
	flowCtx, cancelFlow := context.WithCancel(context.Background())
	go emitter.Run(flowCtx)

	emergencyPipeline := emergency.New(res, wr, emitter, logger)

	listenerCfg := listener.Config{
		BrokerURL:      cfg.MQTT.BrokerURL,
		Username:       cfg.MQTT.Username,
		Password:       cfg.MQTT.Password,
		ClientIDPrefix: cfg.MQTT.ClientIDPrefix,
		KeepAlive:      cfg.MQTT.KeepAlive,
		QoS:            byte(cfg.MQTT.QoS),
		WorkerPool:     cfg.Listener.WorkerPool,
	}
	runtime := listener.New(listenerCfg, res, wr, emergencyPipeline, emitter, logger)

	e := echo.New()
	e.HideBanner = true
	e.Use(otelecho.Middleware("amy-core"))
	flow.RegisterRoutes(e, emitter, logger)
	go func() {
		if err := e.Start(cfg.DataFlow.HTTPAddr); err != nil && err != http.ErrServerClosed {
			logger.Error("data-flow http server stopped", zap.Error(err))
		}
	}()

	if err := runtime.Start(); err != nil {
		logger.Error("listener startup reported an error", zap.Error(err))
	}

	health := scheduler.NewHealthScheduler(snapshotter{runtime: runtime, emitter: emitter}, logger)
	if err := health.Start("0 * * * * *"); err != nil {
		logger.Fatal("health scheduler start failed", zap.Error(err))
	}

	logger.Info("amy-core serving",
		zap.String("mqtt_broker", cfg.MQTT.BrokerURL),
		zap.String("dataflow_addr", cfg.DataFlow.HTTPAddr))

	<-ctx.Done()
	logger.Info("shutdown signal received, draining")

	health.Stop()
	runtime.Stop()

	drainCtx, cancelDrain := context.WithTimeout(context.Background(), cfg.Shutdown.DrainHandlers)
	<-drainCtx.Done()
	cancelDrain()

	cancelFlow()
	time.Sleep(cfg.Shutdown.FlushFlow)

	httpCtx, cancelHTTP := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelHTTP()
	if err := e.Shutdown(httpCtx); err != nil {
		logger.Error("data-flow http server shutdown error", zap.Error(err))
	}

	logger.Info("amy-core stopped")
	return nil
}

// snapshotter adapts internal/listener.Runtime and internal/flow.Emitter
// into a scheduler.Snapshotter.
type snapshotter struct {
	runtime *listener.Runtime
	emitter *flow.Emitter
}

func (s snapshotter) HealthSnapshot() scheduler.HealthSnapshot {
	states := make(map[string]string, 3)
	for group, state := range s.runtime.States() {
		states[group] = string(state)
	}
	return scheduler.HealthSnapshot{
		ListenerStates: states,
		DroppedEvents:  s.emitter.DroppedCount(),
	}
}
