package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"remotedesk/internal/core/domain"
	"remotedesk/internal/core/ports"
	"remotedesk/internal/core/services"
	httphandlers "remotedesk/internal/handlers/http"
	"remotedesk/internal/infrastructure/datachannel"
	"remotedesk/internal/infrastructure/monitoring"
	"remotedesk/internal/infrastructure/sink"
	"remotedesk/internal/infrastructure/telemetry"
	webrtcinfra "remotedesk/internal/infrastructure/webrtc"
	"remotedesk/pkg/config"
	"remotedesk/pkg/logger"
	"remotedesk/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func loadConfig() (*config.Config, error) {
	configPaths := []string{
		"configs/client.yaml",
		"client.yaml",
	}
	if p := os.Getenv("REMOTEDESK_CONFIG"); p != "" {
		configPaths = []string{p}
	}

	var lastErr error
	for _, path := range configPaths {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		cfg, err := config.Load(path)
		if err == nil {
			return cfg, nil
		}
		lastErr = err
	}
	if lastErr != nil {
		return nil, lastErr
	}
	// No file: defaults plus environment.
	return config.Load("")
}

func main() {
	cfg, err := loadConfig()
	if err != nil {
		logger.New("info").Sugar().Fatalw("failed to load configuration", "error", err)
	}

	zapLogger := logger.NewWithOptions(logger.Options{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
	})
	defer zapLogger.Sync()
	log := zapLogger.Sugar()

	tp, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Tracing.ServiceName,
		JaegerURL:   cfg.Tracing.JaegerURL,
		Environment: cfg.Tracing.Environment,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		log.Fatalw("failed to initialise tracing", "error", err)
	}

	clientID := uuid.NewString()
	log = log.With("client_id", clientID)

	recorder := monitoring.NewPrometheusCollector(prometheus.DefaultRegisterer)
	health := monitoring.NewHealthChecker()

	var publisher ports.MetricsPublisher
	if cfg.Telemetry.Enabled {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		rdb, err := telemetry.Dial(ctx, cfg.Telemetry.Address, cfg.Telemetry.Password, cfg.Telemetry.DB)
		cancel()
		if err != nil {
			log.Warnw("telemetry disabled", "error", err)
		} else {
			defer rdb.Close()
			publisher = telemetry.NewRedisPublisher(rdb, cfg.Telemetry.Channel, clientID, log.With("component", "telemetry"))
			health.AddRedisCheck(rdb, time.Second)
		}
	}

	factory := webrtcinfra.NewSessionFactory(webrtcinfra.ConfigFromApp(cfg), log.With("component", "webrtc"))
	kinds := factory.Kinds()

	videoSink, err := sink.NewForwarder(domain.KindVideo, cfg.Sinks.VideoUDPAddr, log.With("component", "video_sink"))
	if err != nil {
		log.Fatalw("failed to open video sink", "addr", cfg.Sinks.VideoUDPAddr, "error", err)
	}
	defer videoSink.Close()
	audioSink, err := sink.NewForwarder(domain.KindAudio, cfg.Sinks.AudioUDPAddr, log.With("component", "audio_sink"))
	if err != nil {
		log.Fatalw("failed to open audio sink", "addr", cfg.Sinks.AudioUDPAddr, "error", err)
	}
	defer audioSink.Close()

	mux := datachannel.NewMultiplexer(cfg.Channels.MaxQueue, recorder, log.With("component", "channels"))
	client, err := services.NewRemoteDesktopClient(
		services.ClientConfigFromApp(cfg, kinds),
		factory,
		mux,
		map[domain.StreamKind]ports.MediaSink{
			domain.KindVideo: videoSink,
			domain.KindAudio: audioSink,
		},
		recorder,
		publisher,
		log,
	)
	if err != nil {
		log.Fatalw("failed to create client", "error", err)
	}

	for _, k := range kinds {
		if k == domain.KindData {
			continue
		}
		health.AddSessionCheck(k, client.Connection().State, k == domain.KindVideo)
	}
	client.OnClipboard(func(text string) {
		log.Debugw("clipboard received from host", "length", len(text))
	})

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	client.Start(ctx)
	log.Infow("remote desktop client started", "kinds", kinds)

	var srv *http.Server
	serverErr := make(chan error, 1)
	if cfg.Control.Enabled {
		if cfg.Logging.Level != "debug" {
			gin.SetMode(gin.ReleaseMode)
		}
		var metrics http.Handler
		if cfg.Monitoring.PrometheusEnabled {
			metrics = promhttp.Handler()
		}
		handler := httphandlers.NewControlHandler(client, client.Input(), client.Touch(), health, log.With("component", "control"))
		srv = &http.Server{
			Addr:              cfg.Control.Address,
			Handler:           httphandlers.NewRouter(cfg, handler, metrics, log),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			log.Infow("control api listening", "address", cfg.Control.Address)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serverErr <- err
			}
		}()
	}

	sigChan := make(chan os.Signal, 1)
	ossignal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		log.Errorw("control api failed", "error", err)
	case sig := <-sigChan:
		log.Infow("received shutdown signal", "signal", sig)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if srv != nil {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Errorw("control api shutdown failed", "error", err)
			_ = srv.Close()
		}
	}
	stop()
	if err := client.Close(); err != nil {
		log.Errorw("client close failed", "error", err)
	}
	if err := tp.Shutdown(shutdownCtx); err != nil {
		log.Warnw("tracer shutdown failed", "error", err)
	}
	log.Info("remote desktop client stopped")
}
