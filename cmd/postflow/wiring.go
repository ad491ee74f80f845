package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"

	"github.com/hibiken/asynq"
	_ "github.com/lib/pq"
	config "github.com/maheshrc27/postflow/configs"
	"github.com/maheshrc27/postflow/internal/queue"
	"github.com/maheshrc27/postflow/internal/repository"
	"github.com/maheshrc27/postflow/internal/service"
)

type app struct {
	cfg      *config.Config
	db       *sql.DB
	asynq    *asynq.Client
	queue    service.PublishingQueueService
	dispatch service.DispatchService
	schedule service.SchedulingService
}

func openDB(ctx context.Context, uri string) (*sql.DB, error) {
	db, err := sql.Open("postgres", uri)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("database is unreachable: %w", err)
	}
	return db, nil
}

func contentResolver(cfg *config.Config) service.ContentResolver {
	if cfg.R2.BucketName == "" {
		slog.Info("no R2 bucket configured, items must carry a video url")
		return service.DirectURLResolver{}
	}
	return service.NewR2Service(cfg.R2)
}

// newApp wires repositories and services shared by every subcommand.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	db, err := openDB(ctx, cfg.PostgresURI)
	if err != nil {
		return nil, err
	}

	client := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisURI})

	queueRepo := repository.NewQueueItemRepository(db)
	metricRepo := repository.NewPostMetricRepository(db)
	historyRepo := repository.NewPostingHistoryRepository(db)

	queueService := service.NewPublishingQueueService(queueRepo, cfg.Queue.MaxRetries)
	platformService := service.NewPlatformService(*cfg, contentResolver(cfg))
	enqueuer := queue.NewEnqueuer(client, cfg.Queue, cfg.Timeouts)
	dispatchService := service.NewDispatchService(queueService, queueRepo, metricRepo, historyRepo, platformService, enqueuer, cfg.Queue, cfg.Timeouts)
	schedulingService := service.NewSchedulingService(cfg.Planner, queueService)

	return &app{
		cfg:      cfg,
		db:       db,
		asynq:    client,
		queue:    queueService,
		dispatch: dispatchService,
		schedule: schedulingService,
	}, nil
}

// newMemoryApp wires the services onto in-memory repositories and publishes
// in-process. Nothing survives a restart; it is meant for local runs.
func newMemoryApp(cfg *config.Config) (*app, *queue.InlineEnqueuer) {
	queueRepo := repository.NewMemoryQueueItemRepository()

	queueService := service.NewPublishingQueueService(queueRepo, cfg.Queue.MaxRetries)
	platformService := service.NewPlatformService(*cfg, contentResolver(cfg))
	enqueuer := queue.NewInlineEnqueuer()
	dispatchService := service.NewDispatchService(
		queueService, queueRepo,
		repository.NewMemoryPostMetricRepository(),
		repository.NewMemoryPostingHistoryRepository(),
		platformService, enqueuer, cfg.Queue, cfg.Timeouts,
	)
	enqueuer.Bind(dispatchService)

	return &app{
		cfg:      cfg,
		queue:    queueService,
		dispatch: dispatchService,
		schedule: service.NewSchedulingService(cfg.Planner, queueService),
	}, enqueuer
}

func (a *app) Close() {
	fmt.Fprint(os.Stdout, "Closing connections... ")
	if a.asynq != nil {
		if err := a.asynq.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to close asynq client: %v\n", err)
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to close database: %v\n", err)
			return
		}
	}
	fmt.Fprintln(os.Stdout, "Done")
}
