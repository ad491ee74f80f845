package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/transfer"
)

// blotatoService publishes through the Blotato aggregator for platforms
// without a native integration.
type blotatoService struct {
	client       *http.Client
	baseURL      string
	apiKey       string
	platform     models.Platform
	accountID    string
	content      ContentResolver
	pollInterval time.Duration
}

func NewBlotatoService(client *http.Client, baseURL, apiKey string, platform models.Platform, accountID string, content ContentResolver) ResumablePublisher {
	return &blotatoService{
		client:       client,
		baseURL:      strings.TrimRight(baseURL, "/"),
		apiKey:       apiKey,
		platform:     platform,
		accountID:    accountID,
		content:      content,
		pollInterval: 3 * time.Second,
	}
}

func (s *blotatoService) headers() map[string]string {
	return map[string]string{"blotato-api-key": s.apiKey}
}

func (s *blotatoService) Publish(ctx context.Context, item *models.QueueItem) (*PublishResult, error) {
	submissionID, err := s.Submit(ctx, item)
	if err != nil {
		return nil, err
	}
	return s.Await(ctx, item, submissionID)
}

func (s *blotatoService) Submit(ctx context.Context, item *models.QueueItem) (string, error) {
	videoURL, err := s.content.ResolveVideoURL(ctx, item)
	if err != nil {
		return "", err
	}

	req := transfer.BlotatoPostRequest{
		Post: transfer.BlotatoPost{
			AccountID: s.accountID,
			Content: transfer.BlotatoContent{
				Text:      composeCaption(item),
				MediaURLs: []string{videoURL},
				Platform:  string(s.platform),
			},
			Target: transfer.BlotatoTarget{TargetType: string(s.platform)},
		},
	}

	var sub transfer.BlotatoSubmission
	if err := doJSON(ctx, s.client, s.platform, http.MethodPost, s.baseURL+"/posts", s.headers(), req, &sub); err != nil {
		slog.Info(err.Error())
		return "", err
	}
	if sub.PostSubmissionID == "" {
		return "", Transient(s.platform, errors.New("blotato returned no submission id"))
	}
	return sub.PostSubmissionID, nil
}

func (s *blotatoService) Await(ctx context.Context, item *models.QueueItem, submissionID string) (*PublishResult, error) {
	var status transfer.BlotatoPostStatus
	err := pollUntil(ctx, s.pollInterval, func(ctx context.Context) (bool, error) {
		if err := doJSON(ctx, s.client, s.platform, http.MethodGet, s.baseURL+"/posts/"+submissionID, s.headers(), nil, &status); err != nil {
			return false, err
		}
		switch status.Status {
		case "published":
			return true, nil
		case "failed":
			return false, Permanent(s.platform, fmt.Errorf("blotato submission %s failed: %s", submissionID, status.ErrorMessage))
		default:
			return false, nil
		}
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			err = Transient(s.platform, fmt.Errorf("blotato submission %s still in progress: %w", submissionID, err))
		}
		return nil, err
	}

	slog.Info("published via blotato", "item_id", item.ID, "platform", s.platform, "submission_id", submissionID)
	return &PublishResult{PlatformPostID: submissionID, URL: status.PublicURL}, nil
}
