package job_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/robfig/cron"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	config "github.com/maheshrc27/postflow/configs"
	job "github.com/maheshrc27/postflow/internal/jobs"
	"github.com/maheshrc27/postflow/internal/models"
)

type fakeLeaser struct {
	mu       sync.Mutex
	held     map[string]bool
	err      error
	released []string
	ttls     map[string]time.Duration
	extended map[string]int
}

func (l *fakeLeaser) Acquire(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return false, l.err
	}
	if l.held[name] {
		return false, nil
	}
	l.held[name] = true
	if l.ttls == nil {
		l.ttls = map[string]time.Duration{}
	}
	l.ttls[name] = ttl
	return true, nil
}

func (l *fakeLeaser) Extend(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.held[name] {
		return false, nil
	}
	if l.extended == nil {
		l.extended = map[string]int{}
	}
	l.extended[name]++
	return true, nil
}

func (l *fakeLeaser) Release(ctx context.Context, name string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, name)
	l.released = append(l.released, name)
	return nil
}

type countingDispatch struct {
	mu     sync.Mutex
	delay  time.Duration
	checks int
	retry  int
	metric int
}

func (d *countingDispatch) CheckScheduledPosts(ctx context.Context) ([]string, error) {
	time.Sleep(d.delay)
	d.mu.Lock()
	defer d.mu.Unlock()
	d.checks++
	return nil, nil
}

func (d *countingDispatch) PublishScheduledPost(ctx context.Context, itemID string, finalAttempt bool) error {
	return nil
}

func (d *countingDispatch) RetryFailedPosts(ctx context.Context) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.retry++
	return nil, errors.New("db down")
}

func (d *countingDispatch) CollectPostMetrics(ctx context.Context) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.metric++
	return 0, nil
}

func (d *countingDispatch) AttemptHistory(ctx context.Context, itemID string) ([]*models.PostingHistory, error) {
	return nil, nil
}

func TestBeat_RunsUnderLease(t *testing.T) {
	t.Parallel()

	ds := &countingDispatch{}
	leaser := &fakeLeaser{held: map[string]bool{}}
	b := job.NewBeat(ds, leaser, config.Beat{})

	b.CheckScheduledPosts()
	b.RetryFailedPosts()
	b.CollectPostMetrics()

	assert.Equal(t, 1, ds.checks)
	assert.Equal(t, 1, ds.retry)
	assert.Equal(t, 1, ds.metric)
	assert.ElementsMatch(t, []string{
		job.JobCheckScheduledPosts, job.JobRetryFailedPosts, job.JobCollectPostMetrics,
	}, leaser.released)
	assert.Empty(t, leaser.held)
}

func TestBeat_LeaseTTLPerJob(t *testing.T) {
	t.Parallel()

	leaser := &fakeLeaser{held: map[string]bool{}}
	b := job.NewBeat(&countingDispatch{}, leaser, config.Beat{
		CheckLeaseTTL:   30 * time.Second,
		RetryLeaseTTL:   20 * time.Minute,
		MetricsLeaseTTL: 5 * time.Minute,
	})

	b.CheckScheduledPosts()
	b.RetryFailedPosts()
	b.CollectPostMetrics()

	assert.Equal(t, map[string]time.Duration{
		job.JobCheckScheduledPosts: 30 * time.Second,
		job.JobRetryFailedPosts:    20 * time.Minute,
		job.JobCollectPostMetrics:  5 * time.Minute,
	}, leaser.ttls)

	defaults := &fakeLeaser{held: map[string]bool{}}
	d := job.NewBeat(&countingDispatch{}, defaults, config.Beat{})
	d.CheckScheduledPosts()
	d.RetryFailedPosts()
	assert.Equal(t, 50*time.Second, defaults.ttls[job.JobCheckScheduledPosts])
	assert.Equal(t, 10*time.Minute, defaults.ttls[job.JobRetryFailedPosts])
}

func TestBeat_RenewsLeaseWhileRunning(t *testing.T) {
	t.Parallel()

	ds := &countingDispatch{delay: 200 * time.Millisecond}
	leaser := &fakeLeaser{held: map[string]bool{}}
	b := job.NewBeat(ds, leaser, config.Beat{CheckLeaseTTL: 40 * time.Millisecond})

	b.CheckScheduledPosts()

	assert.Equal(t, 1, ds.checks)
	assert.GreaterOrEqual(t, leaser.extended[job.JobCheckScheduledPosts], 2)
	assert.Equal(t, []string{job.JobCheckScheduledPosts}, leaser.released)
	assert.Empty(t, leaser.held)

	quick := &fakeLeaser{held: map[string]bool{}}
	job.NewBeat(&countingDispatch{}, quick, config.Beat{}).CheckScheduledPosts()
	assert.Zero(t, quick.extended[job.JobCheckScheduledPosts])
}

func TestBeat_SkipsWhenLeaseHeld(t *testing.T) {
	t.Parallel()

	ds := &countingDispatch{}
	leaser := &fakeLeaser{held: map[string]bool{job.JobCheckScheduledPosts: true}}
	b := job.NewBeat(ds, leaser, config.Beat{})

	b.CheckScheduledPosts()
	assert.Equal(t, 0, ds.checks)
	assert.Empty(t, leaser.released)
}

func TestBeat_SkipsWhenLeaseErrors(t *testing.T) {
	t.Parallel()

	ds := &countingDispatch{}
	b := job.NewBeat(ds, &fakeLeaser{held: map[string]bool{}, err: errors.New("redis down")}, config.Beat{})

	b.CollectPostMetrics()
	assert.Equal(t, 0, ds.metric)
}

func TestBeat_WithoutLeaser(t *testing.T) {
	t.Parallel()

	ds := &countingDispatch{}
	b := job.NewBeat(ds, nil, config.Beat{})

	b.CheckScheduledPosts()
	assert.Equal(t, 1, ds.checks)
}

func TestBeat_Schedule(t *testing.T) {
	t.Parallel()

	ds := &countingDispatch{}

	good := job.NewBeat(ds, nil, config.Beat{
		CheckSchedule:   "@every 1m",
		RetrySchedule:   "@every 1h",
		MetricsSchedule: "@every 15m",
	})
	c := cron.New()
	require.NoError(t, good.Schedule(c))
	assert.Len(t, c.Entries(), 3)

	bad := job.NewBeat(ds, nil, config.Beat{
		CheckSchedule:   "not a spec",
		RetrySchedule:   "@every 1h",
		MetricsSchedule: "@every 15m",
	})
	assert.Error(t, bad.Schedule(cron.New()))
}
