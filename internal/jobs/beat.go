package job

import (
	"context"
	"log/slog"
	"time"

	config "github.com/maheshrc27/postflow/configs"
	"github.com/maheshrc27/postflow/internal/service"
	"github.com/robfig/cron"
)

const (
	JobCheckScheduledPosts = "check_scheduled_posts"
	JobRetryFailedPosts    = "retry_failed_posts"
	JobCollectPostMetrics  = "collect_post_metrics"
)

// Leaser guards a job so only one beat process runs it at a time.
type Leaser interface {
	Acquire(ctx context.Context, name string, ttl time.Duration) (bool, error)
	Extend(ctx context.Context, name string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, name string) error
}

// Beat runs the periodic dispatcher jobs.
type Beat struct {
	ds     service.DispatchService
	leaser Leaser
	cfg    config.Beat
}

func NewBeat(ds service.DispatchService, leaser Leaser, cfg config.Beat) *Beat {
	if cfg.CheckLeaseTTL <= 0 {
		cfg.CheckLeaseTTL = 50 * time.Second
	}
	if cfg.RetryLeaseTTL <= 0 {
		cfg.RetryLeaseTTL = 10 * time.Minute
	}
	if cfg.MetricsLeaseTTL <= 0 {
		cfg.MetricsLeaseTTL = 10 * time.Minute
	}
	return &Beat{
		ds:     ds,
		leaser: leaser,
		cfg:    cfg,
	}
}

func (b *Beat) CheckScheduledPosts() {
	b.run(JobCheckScheduledPosts, b.cfg.CheckLeaseTTL, func(ctx context.Context) error {
		_, err := b.ds.CheckScheduledPosts(ctx)
		return err
	})
}

func (b *Beat) RetryFailedPosts() {
	b.run(JobRetryFailedPosts, b.cfg.RetryLeaseTTL, func(ctx context.Context) error {
		_, err := b.ds.RetryFailedPosts(ctx)
		return err
	})
}

func (b *Beat) CollectPostMetrics() {
	b.run(JobCollectPostMetrics, b.cfg.MetricsLeaseTTL, func(ctx context.Context) error {
		_, err := b.ds.CollectPostMetrics(ctx)
		return err
	})
}

// run executes fn under the job's lease. The lease is renewed every ttl/2
// while fn runs and released afterwards, so the next tick on any process can
// take it.
func (b *Beat) run(name string, ttl time.Duration, fn func(ctx context.Context) error) {
	ctx := context.Background()

	if b.leaser != nil {
		ok, err := b.leaser.Acquire(ctx, name, ttl)
		if err != nil {
			slog.Error("lease acquire failed", "job", name, "error", err)
			return
		}
		if !ok {
			slog.Debug("job already running elsewhere", "job", name)
			return
		}

		done := make(chan struct{})
		renewed := make(chan struct{})
		go func() {
			defer close(renewed)
			b.renew(ctx, name, ttl, done)
		}()
		defer func() {
			close(done)
			<-renewed
			if err := b.leaser.Release(ctx, name); err != nil {
				slog.Warn("lease release failed", "job", name, "error", err)
			}
		}()
	}

	start := time.Now()
	if err := fn(ctx); err != nil {
		slog.Error("job failed", "job", name, "error", err)
		return
	}
	slog.Debug("job finished", "job", name, "took", time.Since(start))
}

// renew extends the lease every ttl/2 until done is closed.
func (b *Beat) renew(ctx context.Context, name string, ttl time.Duration, done <-chan struct{}) {
	ticker := time.NewTicker(ttl / 2)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			ok, err := b.leaser.Extend(ctx, name, ttl)
			if err != nil {
				slog.Warn("lease extend failed", "job", name, "error", err)
				continue
			}
			if !ok {
				slog.Warn("lease lost while job was running", "job", name)
				return
			}
		}
	}
}

// Schedule registers the jobs on c using the configured cron specs.
func (b *Beat) Schedule(c *cron.Cron) error {
	jobs := []struct {
		spec string
		fn   func()
	}{
		{b.cfg.CheckSchedule, b.CheckScheduledPosts},
		{b.cfg.RetrySchedule, b.RetryFailedPosts},
		{b.cfg.MetricsSchedule, b.CollectPostMetrics},
	}
	for _, j := range jobs {
		if err := c.AddFunc(j.spec, j.fn); err != nil {
			return err
		}
	}
	return nil
}
