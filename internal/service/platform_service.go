package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	config "github.com/maheshrc27/postflow/configs"
	"github.com/maheshrc27/postflow/internal/models"
)

// PublishResult is what a platform hands back after a successful post.
type PublishResult struct {
	PlatformPostID string `json:"platform_post_id"`
	URL            string `json:"url"`
}

// PlatformPublisher posts a single queue item to one platform.
type PlatformPublisher interface {
	Publish(ctx context.Context, item *models.QueueItem) (*PublishResult, error)
}

// ResumablePublisher splits a publish into a submission the platform accepts
// and a wait for it to go live. The submission id is stored on the item, so
// an attempt that times out while waiting resumes the same submission on the
// next try instead of posting again.
type ResumablePublisher interface {
	PlatformPublisher
	Submit(ctx context.Context, item *models.QueueItem) (string, error)
	Await(ctx context.Context, item *models.QueueItem, submissionID string) (*PublishResult, error)
}

// MetricsCollector reads engagement counters for a published item.
type MetricsCollector interface {
	CollectMetrics(ctx context.Context, item *models.QueueItem) (*models.PostMetric, error)
}

// PlatformAdapter is a native platform integration.
type PlatformAdapter interface {
	PlatformPublisher
	MetricsCollector
}

// ResumableAdapter is a native integration with resumable submissions.
type ResumableAdapter interface {
	ResumablePublisher
	MetricsCollector
}

// PlatformService resolves the publisher for a platform.
type PlatformService interface {
	Publisher(platform models.Platform) (PlatformPublisher, error)
	Collector(platform models.Platform) (MetricsCollector, bool)
	Platforms() []models.Platform
}

type platformService struct {
	publishers map[models.Platform]PlatformPublisher
}

// NewPlatformService registers the native adapters whose credentials are
// configured, then routes every Blotato account platform that has no native
// adapter through Blotato.
func NewPlatformService(cfg config.Config, content ContentResolver) PlatformService {
	client := &http.Client{Timeout: 2 * time.Minute}
	publishers := make(map[models.Platform]PlatformPublisher)

	if cfg.YoutubeRefreshToken != "" {
		publishers[models.PlatformYoutube] = NewYoutubeService(cfg, content)
	}
	if cfg.TiktokAccessToken != "" {
		publishers[models.PlatformTiktok] = NewTiktokService(client, cfg.TiktokAPIBaseURL, cfg.TiktokAccessToken, content)
	}
	if cfg.InstagramAccessToken != "" && cfg.InstagramAccountID != "" {
		publishers[models.PlatformInstagram] = NewInstagramService(client, cfg.InstagramAPIBaseURL, cfg.InstagramAccountID, cfg.InstagramAccessToken, content)
	}

	if cfg.BlotatoAPIKey != "" {
		for name, accountID := range cfg.BlotatoAccounts {
			p, err := models.ParsePlatform(name)
			if err != nil {
				slog.Warn("ignoring blotato account", "platform", name, "error", err)
				continue
			}
			if _, native := publishers[p]; native {
				continue
			}
			publishers[p] = NewBlotatoService(client, cfg.BlotatoAPIBaseURL, cfg.BlotatoAPIKey, p, accountID, content)
		}
	}

	return NewPlatformServiceWith(publishers)
}

// NewPlatformServiceWith builds a registry from explicit publishers.
func NewPlatformServiceWith(publishers map[models.Platform]PlatformPublisher) PlatformService {
	for p := range publishers {
		slog.Info("publisher registered", "platform", p)
	}
	return &platformService{publishers: publishers}
}

func (s *platformService) Publisher(platform models.Platform) (PlatformPublisher, error) {
	pub, ok := s.publishers[platform]
	if !ok {
		return nil, Permanent(platform, ErrNoAdapter)
	}
	return pub, nil
}

func (s *platformService) Collector(platform models.Platform) (MetricsCollector, bool) {
	pub, ok := s.publishers[platform]
	if !ok {
		return nil, false
	}
	c, ok := pub.(MetricsCollector)
	return c, ok
}

func (s *platformService) Platforms() []models.Platform {
	out := make([]models.Platform, 0, len(s.publishers))
	for p := range s.publishers {
		out = append(out, p)
	}
	return out
}

// composeCaption appends hashtags to the caption the way platforms expect them.
func composeCaption(item *models.QueueItem) string {
	if len(item.Hashtags) == 0 {
		return item.Caption
	}
	tags := make([]string, 0, len(item.Hashtags))
	for _, t := range item.Hashtags {
		tags = append(tags, "#"+t)
	}
	if item.Caption == "" {
		return strings.Join(tags, " ")
	}
	return item.Caption + "\n\n" + strings.Join(tags, " ")
}

// doJSON sends body as JSON and decodes a 2xx response into out. Non-2xx
// responses become classified PublishErrors. Network failures are transient.
func doJSON(ctx context.Context, client *http.Client, platform models.Platform, method, url string, headers map[string]string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return Permanent(platform, fmt.Errorf("error encoding request: %w", err))
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return Permanent(platform, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json; charset=UTF-8")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return Transient(platform, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Transient(platform, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return StatusError(platform, resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return Transient(platform, fmt.Errorf("error decoding response: %w", err))
		}
	}
	return nil
}

// pollUntil calls check every interval until it reports done, returns an
// error, or ctx expires.
func pollUntil(ctx context.Context, interval time.Duration, check func(context.Context) (bool, error)) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		done, err := check(ctx)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
