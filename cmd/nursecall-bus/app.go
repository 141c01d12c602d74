package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sua-org/nursecall-bus/internal/cache"
	"github.com/sua-org/nursecall-bus/internal/camera"
	"github.com/sua-org/nursecall-bus/internal/config"
	"github.com/sua-org/nursecall-bus/internal/dispatcher"
	"github.com/sua-org/nursecall-bus/internal/drivers"
	"github.com/sua-org/nursecall-bus/internal/httpapi"
	"github.com/sua-org/nursecall-bus/internal/ingest"
	"github.com/sua-org/nursecall-bus/internal/metrics"
	"github.com/sua-org/nursecall-bus/internal/mqttclient"
	"github.com/sua-org/nursecall-bus/internal/session"
	"github.com/sua-org/nursecall-bus/internal/storage"
	"github.com/sua-org/nursecall-bus/internal/store"
	"github.com/sua-org/nursecall-bus/internal/supervisor"
)

const shutdownTimeout = 5 * time.Second

// app junta todos os componentes do processo principal.
type app struct {
	cfg    *config.Config
	logger *zap.Logger

	db       *store.GormStore
	redis    *redis.Client
	mqtt     *mqttclient.Client
	cameras  *camera.Manager
	hub      *dispatcher.Dispatcher
	sup      *supervisor.Supervisor
	listener *ingest.Listener
	snaps    *ingest.SnapshotQueue
	http     *http.Server
}

// newApp conecta banco, MQTT e faz o bind UDP. Qualquer erro aqui aborta a
// partida; MinIO e Redis são opcionais e só geram aviso.
func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (_ *app, err error) {
	a := &app{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	a.db, err = store.Open(ctx, cfg.Database, logger)
	if err != nil {
		return nil, err
	}

	m := metrics.New()
	drivers.SetFFmpegCommand(cfg.Camera.FFmpegPath)
	a.cameras = camera.NewManager(camera.Options{
		Simulate:       cfg.Camera.Simulate,
		ReconnectDelay: cfg.Camera.ReconnectDelay,
		MaxWidth:       cfg.Camera.MaxWidth,
		Observer:       m,
	}, logger)
	m.WatchStreams(a.cameras.Streams)

	a.hub = dispatcher.New(logger,
		dispatcher.WithDropHook(m.SubscriberDropped),
		dispatcher.WithSkipHook(m.MessageSkipped),
	)

	if cfg.Redis.Addr != "" {
		a.redis = cache.NewRedisClient(cfg.Redis)
	}
	stats := cache.NewStatsCache(a.redis, cfg.Redis.StatsTTL, logger)
	if err := stats.Ping(ctx); err != nil {
		logger.Warn("redis unavailable, stats served from database", zap.Error(err))
	}

	pipeline := &ingest.Pipeline{
		Store:       a.db,
		Tracker:     session.NewTracker(cfg.Location(), logger),
		Cameras:     a.cameras,
		Broadcaster: a.hub,
		Stats:       stats,
		Metrics:     m,
		Logger:      logger.Named("pipeline"),
	}

	if cfg.MinIO.Enabled {
		ms, merr := storage.NewMinioStore(ctx, cfg.MinIO, logger)
		if merr != nil {
			logger.Warn("minio not initialized, snapshots disabled", zap.Error(merr))
		} else {
			a.snaps = ingest.NewSnapshotQueue(ms, 0, m, logger)
			pipeline.Snapshots = a.snaps
		}
	}

	var broker supervisor.Broker
	if cfg.MQTT.Enabled {
		a.mqtt, err = mqttclient.New(cfg.MQTT, serviceName, logger)
		if err != nil {
			return nil, err
		}
		broker = a.mqtt
		// o espelho MQTT não pode sair do hub numa queda do broker
		a.hub.Attach(mqttclient.NewSink(a.mqtt, supervisor.EventsTopic(cfg.MQTT.BaseTopic)))
	}
	a.sup = supervisor.New(broker, a.cameras, cfg.MQTT.BaseTopic, cfg.MQTT.StatusInterval, logger)
	a.sup.Subscribers = a.hub.Len

	if _, err := a.sup.Bootstrap(ctx, a.db); err != nil {
		// sem câmeras o coletor ainda funciona
		logger.Warn("camera bootstrap failed", zap.Error(err))
	}

	a.listener, err = ingest.Listen(cfg.UDP.Addr(), cfg.UDP.BufferSize, pipeline.Handler(), logger)
	if err != nil {
		return nil, err
	}

	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	api := &httpapi.Server{
		Queries:     a.db,
		Cameras:     a.cameras,
		Hub:         a.hub,
		Stats:       stats,
		Metrics:     m,
		VideoFPS:    int(cfg.Camera.VideoFPS),
		Location:    cfg.Location(),
		AllowOrigin: cfg.HTTP.AllowOrigin,
		RateLimit:   rate.Limit(cfg.HTTP.RateLimit),
		RateBurst:   cfg.HTTP.RateBurst,
		Logger:      logger,
	}
	a.http = &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return a, nil
}

// Run bloqueia até ctx acabar ou um dos laços falhar.
func (a *app) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// streams MJPEG abertos seguram o Shutdown; presos a ctx, saem no cancel
	a.http.BaseContext = baseContext(ctx)

	errCh := make(chan error, 3)
	go func() {
		errCh <- a.listener.Serve(ctx)
	}()
	if a.snaps != nil {
		go func() {
			_ = a.snaps.Run(ctx)
		}()
	}
	go func() {
		a.logger.Info("http server listening", zap.String("addr", a.http.Addr))
		if err := a.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		if err := a.sup.Run(ctx); err != nil {
			errCh <- err
		}
	}()

	var err error
	select {
	case <-ctx.Done():
	case err = <-errCh:
	}
	cancel()
	a.close()
	return err
}

func baseContext(ctx context.Context) func(net.Listener) context.Context {
	return func(net.Listener) context.Context { return ctx }
}

// close encerra na ordem inversa da partida. Aceita app parcialmente montado.
func (a *app) close() {
	if a.http != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := a.http.Shutdown(ctx); err != nil {
			a.logger.Warn("http shutdown", zap.Error(err))
		}
		cancel()
	}
	if a.listener != nil {
		_ = a.listener.Close()
	}
	if a.hub != nil {
		a.hub.Close()
	}
	if a.cameras != nil {
		a.cameras.Shutdown()
	}
	if a.mqtt != nil {
		a.mqtt.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("database close", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}
