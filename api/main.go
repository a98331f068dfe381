package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	sentryhttp "github.com/getsentry/sentry-go/http"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	flag "github.com/spf13/pflag"

	"github.com/urbanworks/dispatch/api/config"
	"github.com/urbanworks/dispatch/api/handlers"
	"github.com/urbanworks/dispatch/api/metrics"
	"github.com/urbanworks/dispatch/optimizer"
	"github.com/urbanworks/dispatch/store/postgres"
	"github.com/urbanworks/dispatch/utils/logger"
)

var (
	// Set by LDFLAGS
	version = "dev"
	commit  = "none"
	date    = "unknown"

	// shuttingDown is set to true when shutdown signal is received.
	// Readiness probe checks this to immediately return 503.
	shuttingDown atomic.Bool
)

const (
	defaultListenAddr  = "0.0.0.0:3020"
	defaultMetricsAddr = "0.0.0.0:0"
	defaultAvgSpeed    = optimizer.DefaultAvgSpeedKmh
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	verboseFlag := flag.Bool("verbose", false, "enable verbose (debug) logging")
	listenAddrFlag := flag.String("listen-addr", defaultListenAddr, "HTTP server listen address")
	metricsAddrFlag := flag.String("metrics-addr", defaultMetricsAddr, "Address to listen on for prometheus metrics")
	migrationsEnableFlag := flag.Bool("migrations-enable", false, "run database migrations on startup")

	// Engine configuration
	avgSpeedFlag := flag.Float64("avg-speed-kmh", defaultAvgSpeed, "assumed crew travel speed in km/h (or set AVG_SPEED_KMH env var)")
	epsKmFlag := flag.Float64("cluster-eps-km", optimizer.DefaultEpsKm, "clustering neighborhood radius in km")
	minSamplesFlag := flag.Int("cluster-min-samples", optimizer.DefaultMinSamples, "clustering density threshold")
	maxConcurrencyFlag := flag.Int("max-concurrency", 0, "maximum concurrent cluster solvers (0 = number of CPUs)")

	flag.Parse()

	// Load .env file. godotenv does not override existing env vars, so
	// process env and explicit exports take precedence.
	_ = godotenv.Load()

	// Override flags with environment variables if set
	if env := os.Getenv("LISTEN_ADDR"); env != "" {
		*listenAddrFlag = env
	}
	if env := os.Getenv("AVG_SPEED_KMH"); env != "" {
		if v, err := strconv.ParseFloat(env, 64); err == nil {
			*avgSpeedFlag = v
		}
	}
	if os.Getenv("MIGRATIONS_ENABLE") == "true" {
		*migrationsEnableFlag = true
	}

	log := logger.New(*verboseFlag)
	log.Info("dispatch-api starting", "version", version, "commit", commit, "date", date)
	handlers.SetBuildInfo(version, commit, date)

	// Initialize Sentry for error tracking (optional - no-op if DSN not set)
	sentryDSN := os.Getenv("SENTRY_DSN")
	if sentryDSN != "" {
		sentryEnv := os.Getenv("SENTRY_ENVIRONMENT")
		if sentryEnv == "" {
			sentryEnv = "development"
		}
		release := version
		if commit != "none" {
			release = version + "-" + commit
		}
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         sentryDSN,
			Environment: sentryEnv,
			Release:     release,
		}); err != nil {
			log.Warn("sentry initialization failed", "error", err)
		} else {
			log.Info("sentry initialized", "env", sentryEnv, "release", release)
			defer sentry.Flush(2 * time.Second)
		}
	}

	// Load PostgreSQL
	if err := config.Load(); err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	defer config.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if *migrationsEnableFlag {
		if err := postgres.RunMigrations(ctx, log, config.ConnString()); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	store := postgres.New(config.DB, log)
	engine, err := optimizer.New(optimizer.Config{
		Logger: log,
		Store:  store,
		Cache:  store,
		CacheStats: func(hits, misses uint64) {
			metrics.DistanceCacheOps.WithLabelValues("hit").Add(float64(hits))
			metrics.DistanceCacheOps.WithLabelValues("miss").Add(float64(misses))
		},
		AvgSpeedKmh:    *avgSpeedFlag,
		EpsKm:          *epsKmFlag,
		MinSamples:     *minSamplesFlag,
		MaxConcurrency: *maxConcurrencyFlag,
	})
	if err != nil {
		return fmt.Errorf("failed to build optimizer engine: %w", err)
	}
	handlers.Init(store, engine)

	// Start metrics server
	var metricsServer *http.Server
	if *metricsAddrFlag != "" {
		metrics.BuildInfo.WithLabelValues(version, commit, date).Set(1)
		listener, err := net.Listen("tcp", *metricsAddrFlag)
		if err != nil {
			log.Warn("failed to start prometheus metrics listener", "error", err)
		} else {
			log.Info("prometheus metrics server listening", "addr", listener.Addr().String())
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			metricsServer = &http.Server{Handler: mux}
			go func() {
				if err := metricsServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("metrics server error", "error", err)
				}
			}()
		}
	}

	r := chi.NewRouter()
	r.Use(middleware.Logger)

	// Sentry middleware before Recoverer so panics are captured.
	if sentryDSN != "" {
		r.Use(sentryhttp.New(sentryhttp.Options{Repanic: true}).Handle)
	}
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)

	// CORS configuration - origins from env or allow all
	corsOrigins := []string{"*"}
	if origins := os.Getenv("CORS_ORIGINS"); origins != "" {
		corsOrigins = strings.Split(origins, ",")
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Health check endpoints
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		// Immediately fail if shutting down
		if shuttingDown.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("shutting down"))
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if err := config.DB.Ping(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("database connection failed: " + handlers.SanitizeError(err)))
			return
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	handlers.Routes(r)

	server := &http.Server{
		Addr:              *listenAddrFlag,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info("server: received signal", "signal", sig.String())
		shuttingDown.Store(true)

		// Give load balancers a moment to observe the readiness flip.
		time.Sleep(2 * time.Second)

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error("server shutdown error", "error", err)
		}
		if metricsServer != nil {
			_ = metricsServer.Shutdown(shutdownCtx)
		}
		cancel()
	}()

	log.Info("dispatch-api listening", "addr", *listenAddrFlag)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	log.Info("dispatch-api stopped")
	return nil
}
