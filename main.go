package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"media-streamer/internal/capabilities"
	"media-streamer/internal/database"
	"media-streamer/internal/filesystem"
	"media-streamer/internal/handlers"
	"media-streamer/internal/hls"
	"media-streamer/internal/logging"
	"media-streamer/internal/metrics"
	"media-streamer/internal/middleware"
	"media-streamer/internal/queue"
	"media-streamer/internal/session"
	"media-streamer/internal/startup"
	"media-streamer/internal/store"
	"media-streamer/internal/watcher"

	"github.com/gorilla/mux"
)

func main() {
	startTime := time.Now()

	// Load configuration
	config, err := startup.LoadConfig()
	if err != nil {
		startup.LogFatal("Configuration error: %v", err)
	}

	// Volume labels for filesystem metrics
	filesystem.SetDefaultVolumeResolver(filesystem.NewVolumeResolver(map[string]string{
		"media":    config.MediaDir,
		"scratch":  config.ScratchDir,
		"store":    config.StoreDir,
		"database": config.DatabaseDir,
	}))
	filesystem.SetObserver(metrics.NewFilesystemObserver())
	metrics.InitializeMetrics()
	metrics.SetAppInfo(startup.Version, startup.Commit, runtime.Version())

	// Initialize job database
	dbStart := time.Now()
	db, err := database.New(context.Background(), config.DatabasePath)
	if err != nil {
		startup.LogFatal("Failed to initialize job database: %v", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Warn("Failed to close job database: %v", err)
		}
	}()
	startup.LogDatabaseInit(time.Since(dbStart))

	// Probe the transcoding engine and hardware acceleration
	startup.LogTranscoderInit(config.FFmpegPath, config.StreamingEnabled)
	detector := capabilities.NewDetector(config.FFmpegPath)
	caps := detector.Detect()
	startup.LogCapabilities(caps.Encoder, caps.Hardware)

	// Pre-transcoded store and streaming service
	st := store.New(config.StoreDir)

	streamConfig := hls.DefaultConfig()
	streamConfig.FFmpegPath = config.FFmpegPath

	sessionConfig := session.DefaultConfig(config.SessionDir)
	sessionConfig.MaxSessions = config.MaxSessions
	sessionConfig.IdleTimeout = config.SessionIdleTimeout

	streams := hls.NewService(streamConfig, sessionConfig, st, detector)

	// Background transcoding queue
	startup.LogQueueInit(config.QueueAutoStart && config.QueueEnabled)
	queueConfig := queue.DefaultConfig(config.MediaDir, config.StageDir)
	queueConfig.FFmpegPath = config.FFmpegPath

	q, err := queue.New(queueConfig, db, st, detector)
	if err != nil {
		startup.LogFatal("Failed to initialize transcode queue: %v", err)
	}
	if config.QueueAutoStart && config.QueueEnabled {
		q.Start()
		startup.LogQueueStarted()
	}

	// Media tree watcher feeding the queue
	var w *watcher.Watcher
	startup.LogWatcherInit(config.WatcherEnabled && config.QueueEnabled, config.WatchSettleDelay)
	if config.WatcherEnabled && config.QueueEnabled {
		watchConfig := watcher.DefaultConfig(config.MediaDir)
		watchConfig.SettleDelay = config.WatchSettleDelay
		w = watcher.New(watchConfig, q)
		if err := w.Start(); err != nil {
			logging.Error("Failed to start media watcher: %v", err)
			w = nil
		} else {
			startup.LogWatcherStarted()
		}
	}

	// Periodic queue/store gauge refresh
	collector := metrics.NewCollector(&statsAdapter{queue: q, store: st}, time.Minute)
	collector.Start()

	// Initialize handlers
	h := handlers.New(streams, q, w, db, st, config)

	// Setup router
	router := setupRouter(h)

	// Log routes dynamically
	startup.LogHTTPRoutes(router, config.LogHealthChecks)

	// Apply logging middleware
	loggingConfig := middleware.DefaultLoggingConfig()
	loggingConfig.LogHealthChecks = config.LogHealthChecks
	loggedHandler := middleware.Logger(loggingConfig)(router)

	// Apply metrics middleware
	meteredHandler := middleware.Metrics(middleware.DefaultMetricsConfig())(loggedHandler)

	// Apply compression middleware
	handler := middleware.Compression(middleware.DefaultCompressionConfig())(meteredHandler)

	// Create server. WriteTimeout stays 0: segment streaming has its own
	// timeout writer and long waits are bounded by the readiness window.
	srv := &http.Server{
		Addr:         ":" + config.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	// Dedicated metrics listener
	var metricsSrv *http.Server
	if config.MetricsEnabled {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", h.MetricsHandler())
		metricsSrv = &http.Server{
			Addr:         ":" + config.MetricsPort,
			Handler:      metricsMux,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
		}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != http.ErrServerClosed {
				logging.Error("Metrics server error: %v", err)
			}
		}()
	}

	// Start graceful shutdown handler
	go handleShutdown(srv, metricsSrv, w, q, streams, collector)

	// Start server
	startup.LogServerStarted(startup.ServerConfig{
		Port:            config.Port,
		MetricsPort:     config.MetricsPort,
		MetricsEnabled:  config.MetricsEnabled,
		StartupDuration: time.Since(startTime),
	})
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		startup.LogFatal("Server error: %v", err)
	}
}

// statsAdapter feeds queue and store counts into the metrics collector.
type statsAdapter struct {
	queue *queue.Queue
	store *store.Store
}

func (a *statsAdapter) GetStats() metrics.Stats {
	var s metrics.Stats

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stats, err := a.queue.GetStats(ctx)
	if err != nil {
		logging.Debug("Stats collection failed: %v", err)
		return s
	}

	s.PendingJobs = stats.Counts["pending"]
	s.ProcessingJobs = stats.Counts["processing"]
	s.CompletedJobs = stats.Counts["completed"]
	s.FailedJobs = stats.Counts["failed"]
	s.StoreUnits = a.store.CountUnits()
	return s
}

func setupRouter(h *handlers.Handlers) *mux.Router {
	r := mux.NewRouter()

	// Health check and version routes
	r.HandleFunc("/health", h.HealthCheck).Methods("GET")
	r.HandleFunc("/healthz", h.HealthCheck).Methods("GET")
	r.HandleFunc("/livez", h.LivenessCheck).Methods("GET", "HEAD")
	r.HandleFunc("/readyz", h.ReadinessCheck).Methods("GET")
	r.HandleFunc("/version", h.GetVersion).Methods("GET")

	// Streaming API
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/stream", h.GetStream).Methods("GET")
	api.HandleFunc("/stream", h.StopStream).Methods("DELETE")
	api.HandleFunc("/stream/status", h.StreamStatus).Methods("GET")

	// Queue control API
	api.HandleFunc("/queue", h.QueueAction).Methods("POST")
	api.HandleFunc("/queue", h.GetQueue).Methods("GET")
	api.HandleFunc("/queue", h.DeleteQueueItem).Methods("DELETE")

	return r
}

func handleShutdown(srv, metricsSrv *http.Server, w *watcher.Watcher, q *queue.Queue, streams *hls.Service, collector *metrics.Collector) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	startup.LogShutdownInitiated(sig.String())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Producers stop before consumers: watcher first so nothing new is
	// queued, then the queue worker, then live sessions, then HTTP.
	if w != nil {
		startup.LogShutdownStep("Stopping media watcher")
		w.Stop()
		startup.LogShutdownStepComplete("Media watcher stopped")
	}

	startup.LogShutdownStep("Stopping transcode queue")
	q.Stop()
	startup.LogShutdownStepComplete("Transcode queue stopped")

	startup.LogShutdownStep("Stopping live sessions")
	streams.Sessions().StopAll()
	startup.LogShutdownStepComplete("Live sessions stopped")

	collector.Stop()

	startup.LogShutdownStep("Shutting down HTTP server")
	if err := srv.Shutdown(ctx); err != nil {
		logging.Warn("Server shutdown error: %v", err)
	} else {
		startup.LogShutdownStepComplete("HTTP server stopped")
	}

	if metricsSrv != nil {
		if err := metricsSrv.Shutdown(ctx); err != nil {
			logging.Warn("Metrics server shutdown error: %v", err)
		}
	}

	startup.LogShutdownComplete()
}
