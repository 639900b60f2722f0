package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	firebase "firebase.google.com/go/v4"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"google.golang.org/api/option"

	"github.com/hjemmeapp/hjemme-engine/internal/config"
	"github.com/hjemmeapp/hjemme-engine/internal/logger"
	"github.com/hjemmeapp/hjemme-engine/internal/notify"
	"github.com/hjemmeapp/hjemme-engine/internal/push"
	"github.com/hjemmeapp/hjemme-engine/internal/queue"
	"github.com/hjemmeapp/hjemme-engine/internal/tasks"
)

func main() {
	config.LoadConfig()
	cfg := config.AppConfig

	log := logger.New(logger.FromConfig(cfg.LogLevel, cfg.LogFormat))
	log.Info("starting hjemme engine", slog.String("instance_id", logger.GetInstanceID()))

	ctx := context.Background()

	var opts []option.ClientOption
	if cfg.FirebaseCredJSON != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(cfg.FirebaseCredJSON)))
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.FirebaseProjectID}, opts...)
	if err != nil {
		log.Error("failed to initialize firebase app", slog.String("error", err.Error()))
		os.Exit(1)
	}

	firestoreClient, err := app.Firestore(ctx)
	if err != nil {
		log.Error("failed to initialize firestore client", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer firestoreClient.Close()

	defaultZone, err := time.LoadLocation(cfg.DefaultTimezone)
	if err != nil {
		log.Warn("invalid default timezone, falling back to UTC",
			slog.String("timezone", cfg.DefaultTimezone))
		defaultZone = time.UTC
	}

	var transport push.Transport
	if cfg.PushEnabled {
		messagingClient, err := app.Messaging(ctx)
		if err != nil {
			log.Error("failed to initialize messaging client", slog.String("error", err.Error()))
			os.Exit(1)
		}
		transport = push.NewFCMTransport(messagingClient, log)
	} else {
		log.Warn("push notifications disabled by configuration")
		transport = push.NewNoopTransport(log)
	}

	tokenStore := push.NewTokenStore(firestoreClient, log)
	queueStore := queue.NewFirestoreStore(firestoreClient, log)
	prefsStore := notify.NewPrefsStore(firestoreClient, log)
	taskStore := tasks.NewFirestoreStore(firestoreClient, log)

	router := notify.NewRouter(transport, queueStore, tokenStore, defaultZone, log)
	worker := queue.NewWorker(queueStore, transport, tokenStore, log, queue.Options{
		BatchSize:      cfg.QueueBatchSize,
		MaxAttempts:    cfg.MaxAttempts,
		RetryBaseDelay: cfg.RetryBaseDelay,
		RetryCap:       cfg.RetryCap,
	})
	planner := tasks.NewPlanner(taskStore, prefsStore, tokenStore, router, defaultZone,
		cfg.PlannerBatchSize, cfg.SweepInterval, log)

	scheduler := cron.New()
	cadence := fmt.Sprintf("@every %s", cfg.SweepInterval)

	if _, err := scheduler.AddFunc(cadence, func() {
		if err := planner.Sweep(context.Background()); err != nil {
			log.Error("planner sweep failed", slog.String("error", err.Error()))
		}
	}); err != nil {
		log.Error("failed to schedule planner sweep", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if _, err := scheduler.AddFunc(cadence, func() {
		if _, err := worker.Sweep(context.Background()); err != nil {
			log.Error("delivery sweep failed", slog.String("error", err.Error()))
		}
	}); err != nil {
		log.Error("failed to schedule delivery sweep", slog.String("error", err.Error()))
		os.Exit(1)
	}

	scheduler.Start()
	log.Info("sweeps scheduled", slog.String("cadence", cadence))

	// Ops surface: health and metrics only, no product API lives here.
	mux := chi.NewRouter()
	mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:    cfg.OpsAddr,
		Handler: mux,
	}

	go func() {
		log.Info("ops server listening", slog.String("addr", cfg.OpsAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("ops server failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(),
		time.Duration(cfg.ShutdownTimeoutSeconds)*time.Second)
	defer cancel()

	// Stop returns a context that is done once running jobs finish.
	cronCtx := scheduler.Stop()
	select {
	case <-cronCtx.Done():
	case <-shutdownCtx.Done():
		log.Warn("timed out waiting for running sweeps")
	}

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("ops server shutdown failed", slog.String("error", err.Error()))
	}

	worker.Close()
	log.Info("shutdown complete")
}
