package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	config "github.com/maheshrc27/postflow/configs"
	"github.com/maheshrc27/postflow/internal/models"
)

// ScheduleResult is the outcome of a planning run. Assets whose slot would
// fall past the horizon are returned in Unscheduled rather than silently
// dropped.
type ScheduleResult struct {
	Scheduled   []models.PostingSchedule `json:"scheduled"`
	Unscheduled []models.Asset           `json:"unscheduled"`
	Spacing     time.Duration            `json:"spacing"`
}

type SchedulingService interface {
	Spacing(n int) time.Duration
	GenerateSchedule(assets []models.Asset, start time.Time) *ScheduleResult
	MergeWithExisting(assets []models.Asset, existing []models.PostingSchedule) *ScheduleResult
	Plan(ctx context.Context, assets []models.Asset, start time.Time, merge bool) (*ScheduleResult, error)
	PlanAndQueue(ctx context.Context, assets []models.Asset, start time.Time, merge bool) (*ScheduleResult, []*models.QueueItem, error)
}

type schedulingService struct {
	cfg config.Planner
	pqs PublishingQueueService
	now func() time.Time
}

func NewSchedulingService(cfg config.Planner, pqs PublishingQueueService) SchedulingService {
	if cfg.Horizon <= 0 {
		cfg.Horizon = 60 * 24 * time.Hour
	}
	if cfg.MinGap <= 0 {
		cfg.MinGap = 2 * time.Hour
	}
	if cfg.MaxGap <= 0 {
		cfg.MaxGap = 24 * time.Hour
	}
	if cfg.MaxGap < cfg.MinGap {
		cfg.MaxGap = cfg.MinGap
	}
	if _, err := models.ParsePlatform(cfg.DefaultPlatform); err != nil {
		cfg.DefaultPlatform = string(models.PlatformTiktok)
	}
	return &schedulingService{
		cfg: cfg,
		pqs: pqs,
		now: time.Now,
	}
}

// Spacing spreads n posts evenly over the horizon, clamped to [MinGap, MaxGap].
func (s *schedulingService) Spacing(n int) time.Duration {
	if n <= 0 {
		return s.cfg.MaxGap
	}
	gap := s.cfg.Horizon / time.Duration(n)
	if gap < s.cfg.MinGap {
		return s.cfg.MinGap
	}
	if gap > s.cfg.MaxGap {
		return s.cfg.MaxGap
	}
	return gap
}

func (s *schedulingService) platformFor(hint string) models.Platform {
	fallback := models.Platform(s.cfg.DefaultPlatform)
	hint = strings.TrimSpace(hint)
	if hint == "" || strings.EqualFold(hint, models.PlatformHintMulti) {
		return fallback
	}
	p, err := models.ParsePlatform(hint)
	if err != nil {
		slog.Warn("unknown platform hint, using default", "hint", hint, "platform", fallback)
		return fallback
	}
	return p
}

// GenerateSchedule assigns the i-th asset to start + (i+1)*spacing. A zero
// start means now.
func (s *schedulingService) GenerateSchedule(assets []models.Asset, start time.Time) *ScheduleResult {
	if start.IsZero() {
		start = s.now()
	}
	start = start.UTC()

	spacing := s.Spacing(len(assets))
	result := &ScheduleResult{
		Scheduled:   []models.PostingSchedule{},
		Unscheduled: []models.Asset{},
		Spacing:     spacing,
	}

	for i, asset := range assets {
		offset := time.Duration(i+1) * spacing
		if offset > s.cfg.Horizon {
			result.Unscheduled = append(result.Unscheduled, assets[i:]...)
			break
		}
		result.Scheduled = append(result.Scheduled, models.PostingSchedule{
			MediaID:     asset.MediaID,
			Platform:    s.platformFor(asset.PlatformHint),
			ScheduledAt: start.Add(offset),
			Status:      models.ScheduleStatusPending,
		})
	}

	if n := len(result.Unscheduled); n > 0 {
		slog.Warn("assets beyond planning horizon left unscheduled", "count", n, "horizon", s.cfg.Horizon)
	}
	return result
}

// MergeWithExisting appends new assets after the latest existing entry.
func (s *schedulingService) MergeWithExisting(assets []models.Asset, existing []models.PostingSchedule) *ScheduleResult {
	var start time.Time
	for _, e := range existing {
		if e.ScheduledAt.After(start) {
			start = e.ScheduledAt
		}
	}
	return s.GenerateSchedule(assets, start)
}

// Plan schedules assets from start, or after the latest queued item when
// merge is set. The two anchors are exclusive. A zero start means now.
func (s *schedulingService) Plan(ctx context.Context, assets []models.Asset, start time.Time, merge bool) (*ScheduleResult, error) {
	if merge && !start.IsZero() {
		return nil, validationErr("start and merge cannot be combined")
	}
	if merge {
		latest, err := s.pqs.LatestScheduled(ctx)
		if err != nil {
			return nil, err
		}
		if latest != nil {
			start = *latest
		}
	}

	return s.GenerateSchedule(assets, start), nil
}

// PlanAndQueue runs Plan and writes the planned entries to the publishing
// queue in one batch.
func (s *schedulingService) PlanAndQueue(ctx context.Context, assets []models.Asset, start time.Time, merge bool) (*ScheduleResult, []*models.QueueItem, error) {
	result, err := s.Plan(ctx, assets, start, merge)
	if err != nil {
		return nil, nil, err
	}
	if len(result.Scheduled) == 0 {
		return result, nil, nil
	}

	inputs := make([]QueueItemInput, 0, len(result.Scheduled))
	for i, entry := range result.Scheduled {
		asset := assets[i]
		inputs = append(inputs, QueueItemInput{
			Platform:      string(entry.Platform),
			ScheduledFor:  entry.ScheduledAt,
			ContentItemID: asset.ContentItemID,
			ClipID:        asset.ClipID,
			Caption:       asset.Caption,
			Hashtags:      asset.Hashtags,
			VideoURL:      asset.VideoURL,
			ThumbnailURL:  asset.ThumbnailURL,
		})
	}

	items, err := s.pqs.BulkSchedule(ctx, inputs)
	if err != nil {
		return nil, nil, err
	}
	return result, items, nil
}
