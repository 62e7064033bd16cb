package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/cloudguardai/learning/internal/api"
	"github.com/cloudguardai/learning/internal/config"
	"github.com/cloudguardai/learning/internal/drift"
	"github.com/cloudguardai/learning/internal/engine"
	"github.com/cloudguardai/learning/internal/patterns"
	"github.com/cloudguardai/learning/internal/persist"
	"github.com/cloudguardai/learning/internal/queue"
	"github.com/cloudguardai/learning/internal/ruleweights"
	"github.com/cloudguardai/learning/internal/scheduler"
	"github.com/cloudguardai/learning/internal/telemetry"
)

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	writer := persist.NewWriter(cfg.Learning.FlushInterval, cfg.Learning.FlushBatchSize, logger)

	eng := engine.New(
		engine.Config{FeedbackThreshold: cfg.Learning.FeedbackThreshold},
		engine.Deps{
			Drift:       drift.New(cfg.Learning.ReferenceWindow, cfg.Learning.DriftBins, cfg.Learning.DriftThreshold),
			RuleWeights: ruleweights.NewStore(cfg.Learning.RuleWeightsPath(), writer, logger),
			Patterns:    patterns.NewEngine(cfg.Learning.PatternsPath(), cfg.Learning.RulesDir(), writer, logger),
			Telemetry:   telemetry.NewLog(cfg.Learning.TelemetryPath(), writer, logger),
		},
		logger,
	)

	opts := []api.ServerOption{api.WithLogger(logger)}

	q, err := queue.New(queue.Config{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		logger.Warn("retrain queue unavailable, auto-enqueue disabled", "error", err)
		q = nil
	} else {
		defer q.Close()
		opts = append(opts, api.WithQueue(q))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go writer.Run(ctx)

	sched := scheduler.New(logger)
	if q != nil {
		err := sched.Schedule("auto_retrain_check", cfg.Scheduler.RetrainCheckSchedule, func(ctx context.Context) error {
			return checkAutoRetrain(ctx, eng, q, logger)
		})
		if err != nil {
			log.Fatalf("Failed to schedule retrain check: %v", err)
		}
	}
	sched.Start()
	defer sched.Stop()

	server := api.NewServer(cfg, eng, opts...)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutting down")
		cancel()
	}()

	logger.Info("starting learning service", "host", cfg.Server.Host, "port", cfg.Server.Port)
	if err := server.Run(ctx); err != nil {
		log.Fatalf("Server failed: %v", err)
	}

	// ctx cancellation already triggered the writer's final flush; one more
	// synchronous pass catches marks that raced shutdown.
	writer.Flush()
}

// checkAutoRetrain enqueues at most one retrain job when the engine asks
// for one and none is already waiting.
func checkAutoRetrain(ctx context.Context, eng *engine.Engine, q *queue.Queue, logger *slog.Logger) error {
	should, reason := eng.ShouldAutoRetrain()
	if !should {
		return nil
	}

	pending, err := q.PendingJobs(ctx)
	if err != nil {
		return err
	}
	if pending > 0 {
		return nil
	}

	_, y := eng.TrainingBatch()
	job := &queue.Job{Reason: reason, Samples: len(y)}
	if reason == engine.ReasonDriftDetected {
		job.Priority = 1
	}

	if err := q.EnqueueRetrainJob(ctx, job); err != nil {
		return err
	}

	logger.Info("retrain job enqueued", "job_id", job.ID, "reason", reason, "samples", job.Samples)
	return nil
}
