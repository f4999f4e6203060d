// Command scribed runs the council-recording coordination service: it
// accepts processing tasks, drives diarization and transcription jobs
// against their providers, and serves the webhook callback endpoint those
// providers deliver results to.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/opencouncil/scribe/callback"
	"github.com/opencouncil/scribe/config"
	"github.com/opencouncil/scribe/diarization"
	"github.com/opencouncil/scribe/diarization/pyannote"
	"github.com/opencouncil/scribe/dispatch"
	"github.com/opencouncil/scribe/errors"
	"github.com/opencouncil/scribe/logger"
	"github.com/opencouncil/scribe/observability"
	"github.com/opencouncil/scribe/pipeline"
	"github.com/opencouncil/scribe/provider"
	"github.com/opencouncil/scribe/scheduler"
	"github.com/opencouncil/scribe/server"
	"github.com/opencouncil/scribe/server/endpoint"
	"github.com/opencouncil/scribe/transcription"
	"github.com/opencouncil/scribe/transcription/whisper"
	"github.com/opencouncil/scribe/version"
)

const gracefulTimeout = 30 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "scribed: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var cfg config.AppConfig
	if err := config.LoadConfig("scribed", &cfg); err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg.ApplyDefaults()
	if cfg.Version == "dev" {
		cfg.Version = version.GetVersionInfo().Version
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}

	log := logger.New(cfg.Logging, cfg.Name)
	log.Info("starting", logger.Fields(
		"version", cfg.Version,
		"environment", cfg.Environment,
		"public_base_url", cfg.PublicBaseURL,
	))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics := observability.NopMetrics()
	if cfg.Observability.Enabled {
		tp, err := observability.InitTracer(ctx, observability.TracerConfig{
			ServiceName:    cfg.Name,
			ServiceVersion: cfg.Version,
			Environment:    cfg.Environment,
			Endpoint:       cfg.Observability.Endpoint,
			Insecure:       cfg.Observability.Insecure,
			SampleRate:     cfg.Observability.SampleRate,
		}, log)
		if err != nil {
			return fmt.Errorf("init tracer: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = tp.Shutdown(shutdownCtx)
		}()

		mp, err := observability.InitMeter(ctx, observability.MeterConfig{
			ServiceName:    cfg.Name,
			ServiceVersion: cfg.Version,
			Environment:    cfg.Environment,
			Endpoint:       cfg.Observability.Endpoint,
			Insecure:       cfg.Observability.Insecure,
			Interval:       15 * time.Second,
		}, log)
		if err != nil {
			return fmt.Errorf("init meter: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = mp.Shutdown(shutdownCtx)
		}()

		metrics, err = observability.NewMetrics(observability.Meter(cfg.Name))
		if err != nil {
			return fmt.Errorf("init metrics: %w", err)
		}
	}

	// Providers are selected by name from the configured factories.
	diarizers := provider.NewRegistry[diarization.Provider]()
	diarizers.RegisterFactory(pyannote.ProviderName, pyannote.Factory())
	transcribers := provider.NewRegistry[transcription.Provider]()
	transcribers.RegisterFactory(whisper.ProviderName, whisper.Factory())

	diarizer, err := diarizers.GetOrCreate(cfg.Diarization.Provider, cfg.Diarization.Options)
	if err != nil {
		return fmt.Errorf("diarization provider: %w", err)
	}
	transcriber, err := transcribers.GetOrCreate(cfg.Transcription.Provider, cfg.Transcription.Options)
	if err != nil {
		return fmt.Errorf("transcription provider: %w", err)
	}

	registry := callback.NewRegistry(cfg.PublicBaseURL, log)

	diarizeJobs := dispatch.New[diarization.Request, diarization.JobPayload](
		dispatch.Config{
			Provider:      diarizer.Name(),
			MaxConcurrent: cfg.Diarization.MaxConcurrent,
			QueueSize:     cfg.Diarization.QueueSize,
			JobTimeout:    cfg.Diarization.Timeout(),
			PollInterval:  cfg.Diarization.PollInterval(),
		},
		registry, diarizer.Submit, log,
		dispatch.WithStatusPoll[diarization.Request, diarization.JobPayload](diarizer.Status),
		dispatch.WithResultCheck[diarization.Request, diarization.JobPayload](func(res diarization.JobPayload) error {
			if res.Status != "succeeded" {
				return errors.RemoteJobFailed(diarizer.Name(), res.Status, res.Error)
			}
			return nil
		}),
		dispatch.WithMetrics[diarization.Request, diarization.JobPayload](metrics),
	)

	transcribeJobs := dispatch.New[transcription.Request, transcription.JobPayload](
		dispatch.Config{
			Provider:      transcriber.Name(),
			MaxConcurrent: cfg.Transcription.MaxConcurrent,
			QueueSize:     cfg.Transcription.QueueSize,
			JobTimeout:    cfg.Transcription.Timeout(),
			PollInterval:  cfg.Transcription.PollInterval(),
		},
		registry, transcriber.Submit, log,
		dispatch.WithStatusPoll[transcription.Request, transcription.JobPayload](transcriber.Status),
		dispatch.WithResultCheck[transcription.Request, transcription.JobPayload](func(res transcription.JobPayload) error {
			if res.Status != "succeeded" {
				return errors.RemoteJobFailed(transcriber.Name(), res.Status, res.Error)
			}
			return nil
		}),
		dispatch.WithMetrics[transcription.Request, transcription.JobPayload](metrics),
	)

	diarizeJobs.Start()
	transcribeJobs.Start()
	defer diarizeJobs.Stop()
	defer transcribeJobs.Stop()

	var summarizer pipeline.Summarizer
	if cfg.Summary.BaseURL != "" {
		summarizer, err = pipeline.NewHTTPSummarizer(cfg.Summary.BaseURL, cfg.Summary.Model,
			time.Duration(cfg.Summary.TimeoutSeconds)*time.Second)
		if err != nil {
			return fmt.Errorf("summarizer: %w", err)
		}
	}

	notifier, err := scheduler.NewNotifier(log, metrics)
	if err != nil {
		return fmt.Errorf("notifier: %w", err)
	}
	sched := scheduler.New(cfg.Scheduler, notifier, log, metrics)

	pipe := pipeline.New(diarizeJobs, transcribeJobs, cfg.Reconcile, nil, summarizer, log, metrics)

	srv := server.New(cfg.Server, log)
	srv.ApplyMiddleware()
	engine := srv.GinEngine()

	engine.Any("/callback/:token", callback.Handler(registry))
	engine.POST("/v1/tasks", submitTask(sched, pipe))
	engine.GET("/v1/tasks", listTasks(sched))
	engine.GET("/health", endpoint.Health(cfg.Name, func(ctx context.Context) map[string]error {
		components := provider.HealthCheck[provider.Provider](ctx, diarizer, transcriber)
		return components
	}))
	engine.GET("/version", endpoint.Version())

	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("start server: %w", err)
	}
	log.Info("ready", logger.Fields("addr", srv.Addr()))

	<-ctx.Done()
	log.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), gracefulTimeout)
	defer cancel()

	if err := srv.Stop(shutdownCtx); err != nil {
		log.WithError(err).Warn("server shutdown incomplete")
	}
	if err := sched.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("tasks still running at shutdown deadline")
	}
	log.Info("stopped")
	return nil
}
