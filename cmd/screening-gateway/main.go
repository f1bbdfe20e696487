// cmd/screening-gateway/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"cv-screening/internal/backend"
	"cv-screening/internal/common/config"
	httpclient "cv-screening/internal/common/http"
	"cv-screening/internal/common/logger"
	"cv-screening/internal/common/observability"
	"cv-screening/internal/controllers/longlist"
	"cv-screening/internal/controllers/shortlist"
	"cv-screening/internal/gateway"
	"cv-screening/internal/persistence"
	"cv-screening/internal/screening/store"
	"cv-screening/internal/session"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log logger.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName), map[string]interface{}{
				"error":       err.Error(),
				"attempt":     i + 1,
				"maxRetries":  maxRetries,
				"nextRetryIn": delay.String(),
			})
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewStructured(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	defer log.Sync()

	log.Info("starting screening gateway", map[string]interface{}{
		"environment": cfg.App.Environment,
		"version":     cfg.App.Version,
		"persistence": cfg.Persistence.Driver,
	})

	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	obs, err := observability.New(cfg.App.Name, observability.WithGlobalProviders())
	if err != nil {
		log.Warn("observability degraded", map[string]interface{}{"error": err.Error()})
	}

	ctx := context.Background()

	// --- Persistence with retry ---
	var (
		kv     persistence.KV
		closer io.Closer
	)
	err = retryWithBackoff(func() error {
		var err error
		kv, closer, err = persistence.New(ctx, cfg, log)
		return err
	}, 10, 2*time.Second, log, "persistence connection")
	if err != nil {
		log.Error("persistence unavailable, falling back to memory", map[string]interface{}{"error": err.Error()})
		kv, closer = persistence.NewMemoryKV(), io.NopCloser(nil)
	}

	// --- Session ---
	sessions := session.NewManager(kv, log)
	if restored, err := sessions.Restore(ctx); err != nil {
		log.Warn("session restore failed", map[string]interface{}{"error": err.Error()})
	} else if restored {
		log.Info("session restored", nil)
	}

	notices := gateway.NewNotices()
	timer := session.NewTimer(sessions, session.TimerConfig{
		CheckInterval:  config.GetDuration(cfg.Session.CheckInterval),
		WarningMinutes: cfg.Session.WarningMinutes,
	}, notices, log)

	// --- Backend clients ---
	clientOpts := []httpclient.Option{
		httpclient.WithObservability(obs),
		httpclient.WithLogger(log),
	}
	resumes := backend.NewResumeClient(cfg.Backend.ResumeURL, backend.ResumeTimeouts{
		Default: config.GetDuration(cfg.Backend.Timeout),
		Upload:  config.GetDuration(cfg.Backend.UploadTimeout),
		Rank:    config.GetDuration(cfg.Backend.RankTimeout),
	}, sessions, log, clientOpts...)
	auth := backend.NewAuthClient(cfg.Backend.AuthURL, cfg.Backend.UsersURL,
		config.GetDuration(cfg.Backend.Timeout), sessions, log, clientOpts...)

	// --- Screening ---
	records := store.New(kv, log)
	longList := longlist.New(records, resumes, longlist.Limits{
		MaxBytes:          cfg.Upload.MaxBytes,
		AllowedExtensions: cfg.Upload.AllowedExtensions,
	}, log)
	shortList := shortlist.New(records, resumes, log)

	view := longList.Mount(ctx)
	log.Info("screening state mounted", map[string]interface{}{"batchId": view.BatchID, "records": view.Total})

	srv := gateway.New(gateway.Deps{
		Session:        sessions,
		Timer:          timer,
		Notices:        notices,
		Auth:           auth,
		LongList:       longList,
		ShortList:      shortList,
		Logger:         log,
		Metrics:        promhttp.Handler(),
		MaxUploadBytes: cfg.Upload.MaxBytes,
	})
	srv.StartTimer(context.Background())

	httpServer := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      srv.Handler(),
		ReadTimeout:  config.GetDuration(cfg.Server.ReadTimeout),
		WriteTimeout: config.GetDuration(cfg.Server.WriteTimeout),
	}

	go func() {
		log.Info("gateway listening", map[string]interface{}{"address": cfg.Server.Address})
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("gateway server failed", map[string]interface{}{"error": err.Error()})
			os.Exit(1)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutting down gateway...", nil)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.GetDuration(cfg.Server.ShutdownTimeout))
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", map[string]interface{}{"error": err.Error()})
	}
	srv.Close()
	longList.CancelUpload()
	shortList.CancelRank()
	if err := records.Persist(shutdownCtx); err != nil {
		log.Warn("final persist failed", map[string]interface{}{"error": err.Error()})
	}
	if obs != nil {
		_ = obs.Shutdown(shutdownCtx)
	}
	if err := closer.Close(); err != nil {
		log.Warn("persistence close failed", map[string]interface{}{"error": err.Error()})
	}
	log.Info("gateway stopped", nil)
}
