package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"media-proxy/internal/database"
	"media-proxy/internal/decoder"
	"media-proxy/internal/filesystem"
	"media-proxy/internal/framecache"
	"media-proxy/internal/handlers"
	"media-proxy/internal/logging"
	"media-proxy/internal/memory"
	"media-proxy/internal/metrics"
	"media-proxy/internal/middleware"
	"media-proxy/internal/proxy"
	"media-proxy/internal/startup"
)

const metricsInterval = 15 * time.Second

func main() {
	startTime := time.Now()

	// Load configuration
	config, err := startup.LoadConfig()
	if err != nil {
		startup.LogFatal("Configuration error: %v", err)
	}

	budget := memory.ConfigureFromEnv()

	if config.MetricsEnabled {
		metrics.InitializeMetrics()
		metrics.SetAppInfo(startup.Version, startup.Commit, startup.GoVersion)
		filesystem.SetObserver(metrics.NewFilesystemObserver())
	}

	// Open the job journal
	dbStart := time.Now()
	db, err := database.New(context.Background(), config.DatabasePath)
	if err != nil {
		startup.LogFatal("Failed to open job journal: %v", err)
	}
	startup.LogDatabaseInit(time.Since(dbStart))

	// Initialize proxy generator
	startup.LogGeneratorInit(config.ProxyDir, config.FFmpegPath, config.ProxySettings)
	gen, err := proxy.New(proxy.Config{
		Dir:          config.ProxyDir,
		FFmpegPath:   config.FFmpegPath,
		PollInterval: config.ProxyPollInterval,
		Journal:      db,
		WatchOutputs: config.WatchProxyDir,
		AfterCleanup: afterCleanup(db, config.HistoryRetention),
	})
	if err != nil {
		_ = db.Close()
		startup.LogFatal("Failed to start proxy generator: %v", err)
	}
	gen.StartCleanupLoop(config.ProxyCleanupInterval, config.ProxyMaxAge)

	// Initialize frame cache
	startup.LogFrameCacheInit(config.FrameCacheCapacity, config.PreviewMaxWidth, config.PreviewMaxHeight)
	cache := framecache.New(config.FrameCacheCapacity)
	reader := framecache.NewReader(cache, decoder.NewFFmpeg(config.FFmpegPath, config.PreviewMaxWidth, config.PreviewMaxHeight))

	// Shed decoded frames when the heap nears its limit
	mon := memory.NewMonitor(memory.Config{
		LimitBytes: budget.HeapLimit,
		OnCritical: func(float64) {
			frames, _ := cache.Stats()
			cache.Clear()
			logging.Warn("Dropped %d cached frames under memory pressure", frames)
		},
	})
	mon.Start()

	var collector *metrics.Collector
	if config.MetricsEnabled {
		collector = metrics.NewCollector(metrics.StatsProviderFunc(func() metrics.Stats {
			total, ready, bytes := gen.Stats()
			frames, _ := cache.Stats()
			return metrics.Stats{
				FrameEntries: frames,
				ProxyRecords: total,
				ProxyReady:   ready,
				ProxyBytes:   bytes,
				QueueDepth:   gen.QueueLen(),
			}
		}), metricsInterval)
		collector.SetDatabasePath(config.DatabasePath)
		collector.Start()
	}

	// Initialize handlers
	h := handlers.New(gen, reader, cache, db, handlers.Options{
		Defaults:        config.ProxySettings,
		MaxAge:          config.ProxyMaxAge,
		PreviewMaxWidth: config.PreviewMaxWidth,
		Throttle:        mon.ShouldThrottle,
	})

	// Setup router
	router := mux.NewRouter()
	router.Use(middleware.Metrics(middleware.DefaultMetricsConfig()))
	h.RegisterRoutes(router)
	if config.MetricsEnabled {
		router.Handle("/metrics", handlers.MetricsHandler()).Methods(http.MethodGet)
	}

	// Log routes dynamically
	startup.LogHTTPRoutes(router, config.LogHealthChecks)

	// Apply compression, then logging middleware
	handler := middleware.Compression(middleware.DefaultCompressionConfig())(router)
	loggingConfig := middleware.DefaultLoggingConfig()
	loggingConfig.LogHealthChecks = config.LogHealthChecks
	handler = middleware.Logger(loggingConfig)(handler)

	// Create server
	srv := &http.Server{
		Addr:         ":" + config.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	// Start graceful shutdown handler
	done := make(chan struct{})
	go handleShutdown(srv, collector, mon, gen, db, done)

	// Start server
	startup.LogServerStarted(startup.ServerConfig{
		Port:            config.Port,
		MetricsEnabled:  config.MetricsEnabled,
		StartupDuration: time.Since(startTime),
	})
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		startup.LogFatal("Server error: %v", err)
	}
	<-done
}

// afterCleanup records each cleanup sweep in the journal and prunes job
// outcomes older than retention.
func afterCleanup(db *database.Database, retention time.Duration) func(int, time.Time) {
	return func(_ int, at time.Time) {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := db.SetLastCleanup(ctx, at); err != nil {
			logging.Warn("Failed to record cleanup time: %v", err)
		}
		if _, err := db.Prune(ctx, at.Add(-retention)); err != nil {
			logging.Warn("Failed to prune job history: %v", err)
		}
		db.UpdateDBMetrics()
	}
}

func handleShutdown(srv *http.Server, collector *metrics.Collector, mon *memory.Monitor, gen *proxy.Generator, db *database.Database, done chan<- struct{}) {
	defer close(done)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	startup.LogShutdownInitiated(sig.String())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	startup.LogShutdownStep("Shutting down HTTP server")
	if err := srv.Shutdown(ctx); err != nil {
		logging.Warn("Server shutdown error: %v", err)
	} else {
		startup.LogShutdownStepComplete("HTTP server stopped")
	}

	if collector != nil {
		startup.LogShutdownStep("Stopping metrics collector")
		collector.Stop()
		startup.LogShutdownStepComplete("Metrics collector stopped")
	}

	startup.LogShutdownStep("Stopping memory monitor")
	mon.Stop()
	startup.LogShutdownStepComplete("Memory monitor stopped")

	startup.LogShutdownStep("Stopping proxy generator")
	if err := gen.Close(); err != nil {
		logging.Warn("Proxy generator shutdown error: %v", err)
	} else {
		startup.LogShutdownStepComplete("Proxy generator stopped")
	}

	startup.LogShutdownStep("Closing job journal")
	if err := db.Close(); err != nil {
		logging.Warn("Journal close error: %v", err)
	} else {
		startup.LogShutdownStepComplete("Job journal closed")
	}

	startup.LogShutdownComplete()
}
