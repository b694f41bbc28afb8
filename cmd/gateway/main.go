// cmd/gateway/main.go
package main

import (
	"context"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/crissins/admit-care/internal/common/auth"
	"github.com/crissins/admit-care/internal/common/config"
	"github.com/crissins/admit-care/internal/common/database"
	"github.com/crissins/admit-care/internal/common/logger"
	"github.com/crissins/admit-care/internal/common/observability"
	"github.com/crissins/admit-care/internal/intake"
	"github.com/crissins/admit-care/internal/notify"
	"github.com/crissins/admit-care/internal/relay"
	"github.com/crissins/admit-care/internal/search"
	"github.com/crissins/admit-care/internal/tools"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	zapLog := logger.New("info", "console")
	defer zapLog.Sync()

	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting intake gateway...")

	cfg, err := config.Load()
	if err != nil {
		zapLog.Fatal("config load failed", zap.Error(err))
	}

	obs := observability.New("intake-gateway")
	defer obs.Shutdown()

	ctx := context.Background()

	// --- Resolve upstream credentials ---
	// Misconfigured identity must fail fast, not limp along: a gateway that
	// cannot talk to the model or the search backend serves no sessions.
	resolver := auth.NewResolver(cfg, log)
	if err := resolver.Probe(ctx); err != nil {
		zapLog.Fatal("credential resolution failed", zap.Error(err))
	}

	modelCred, err := resolver.Resolve(auth.EndpointModel)
	if err != nil {
		zapLog.Fatal("model credential failed", zap.Error(err))
	}
	searchCred, err := resolver.Resolve(auth.EndpointSearch)
	if err != nil {
		zapLog.Fatal("search credential failed", zap.Error(err))
	}
	zapLog.Info("Upstream credentials resolved")

	// --- Init knowledge-base client ---
	searchClient, err := search.NewClient(cfg.Search, searchCred, log)
	if err != nil {
		zapLog.Fatal("search client failed", zap.Error(err))
	}
	zapLog.Info("Search client initialized", zap.String("index", cfg.Search.Index))

	// --- Init intake sinks ---
	var sinks []intake.Sink

	if cfg.Intake.PostgresEnabled {
		var pg *database.PostgresClient
		err = retryWithBackoff(func() error {
			var err error
			pg, err = database.NewPostgres(cfg.Database.Postgres)
			if err != nil {
				return err
			}
			return pg.Ping(ctx)
		}, 15, 2*time.Second, zapLog, "PostgreSQL connection")
		if err != nil {
			zapLog.Fatal("postgres failed after retries", zap.Error(err))
		}
		defer pg.Close()
		sinks = append(sinks, intake.NewPostgresSink(pg.DB, log))
		zapLog.Info("PostgreSQL sink enabled")
	}

	if cfg.Intake.RedisEnabled {
		var rdb *database.RedisClient
		err = retryWithBackoff(func() error {
			var err error
			rdb, err = database.NewRedis(cfg.Database.Redis)
			if err != nil {
				return err
			}
			return rdb.Ping(ctx)
		}, 10, 2*time.Second, zapLog, "Redis connection")
		if err != nil {
			zapLog.Fatal("redis failed after retries", zap.Error(err))
		}
		defer rdb.Close()
		sinks = append(sinks, intake.NewRedisSink(rdb.Client, cfg.Intake.RedisQueueKey, log))
		zapLog.Info("Redis sink enabled", zap.String("queue", cfg.Intake.RedisQueueKey))
	}

	if cfg.Intake.FileEnabled || len(sinks) == 0 {
		sinks = append(sinks, intake.NewFileSink(cfg.Intake.FileDir, log))
		zapLog.Info("File sink enabled", zap.String("dir", cfg.Intake.FileDir))
	}

	sink := intake.NewMultiSink(sinks...)

	// --- Init staff notifier ---
	notifier, err := notify.New(ctx, cfg.Notifications, log)
	if err != nil {
		zapLog.Fatal("notifier failed", zap.Error(err))
	}

	// --- Build tool set and relay ---
	toolSet := tools.NewSet(
		tools.NewSearchTool(searchClient, log),
		tools.NewStoreTool(sink, notifier, log),
	)

	rly := relay.New(cfg.Model, cfg.Gateway.CloseOnStore, modelCred, toolSet,
		intake.SystemInstructions, log, obs)

	// --- HTTP surface ---
	mux := http.NewServeMux()
	rly.Attach(mux, cfg.Gateway.RealtimePath)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/", http.FileServer(http.Dir(cfg.Gateway.StaticDir)))

	server := &http.Server{
		Addr:    cfg.Gateway.Addr(),
		Handler: mux,
	}

	go func() {
		zapLog.Info("Gateway listening",
			zap.String("addr", cfg.Gateway.Addr()),
			zap.String("realtime_path", cfg.Gateway.RealtimePath),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLog.Fatal("http server failed", zap.Error(err))
		}
	}()

	// pprof on a side port, never exposed through the gateway mux.
	go func() {
		if err := http.ListenAndServe("localhost:6060", nil); err != nil {
			zapLog.Warn("pprof server stopped", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutting down gateway...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("graceful shutdown failed", zap.Error(err))
	}
	zapLog.Info("Gateway stopped")
}
