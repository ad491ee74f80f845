package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/transfer"
)

type instagramService struct {
	client       *http.Client
	baseURL      string
	accountID    string
	accessToken  string
	content      ContentResolver
	pollInterval time.Duration
}

func NewInstagramService(client *http.Client, baseURL, accountID, accessToken string, content ContentResolver) PlatformAdapter {
	return &instagramService{
		client:       client,
		baseURL:      strings.TrimRight(baseURL, "/"),
		accountID:    accountID,
		accessToken:  accessToken,
		content:      content,
		pollInterval: 5 * time.Second,
	}
}

func (s *instagramService) endpoint(path string, query url.Values) string {
	if query == nil {
		query = url.Values{}
	}
	query.Set("access_token", s.accessToken)
	return fmt.Sprintf("%s/%s?%s", s.baseURL, path, query.Encode())
}

// call wraps doJSON and honours the is_transient flag Graph API errors carry.
func (s *instagramService) call(ctx context.Context, method, endpoint string, body, out any) error {
	err := doJSON(ctx, s.client, models.PlatformInstagram, method, endpoint, nil, body, out)
	var se *HTTPStatusError
	if err == nil || !errors.As(err, &se) {
		return err
	}

	var igErr transfer.InstagramErrorResponse
	if jsonErr := json.Unmarshal([]byte(se.Body), &igErr); jsonErr != nil || igErr.Error.Message == "" {
		return err
	}
	wrapped := fmt.Errorf("%s (code %d): %w", igErr.Error.Message, igErr.Error.Code, se)
	if igErr.Error.IsTransient {
		return Transient(models.PlatformInstagram, wrapped)
	}
	return Permanent(models.PlatformInstagram, wrapped)
}

func (s *instagramService) Publish(ctx context.Context, item *models.QueueItem) (*PublishResult, error) {
	videoURL, err := s.content.ResolveVideoURL(ctx, item)
	if err != nil {
		return nil, err
	}

	body := map[string]any{
		"media_type": "REELS",
		"video_url":  videoURL,
		"caption":    composeCaption(item),
	}
	if opts := item.PlatformMetadata.Instagram; opts != nil {
		body["share_to_feed"] = opts.ShareToFeed
		if opts.CoverURL != "" {
			body["cover_url"] = opts.CoverURL
		}
	} else if item.ThumbnailURL != "" {
		body["cover_url"] = item.ThumbnailURL
	}

	var container transfer.InstagramIDResponse
	if err := s.call(ctx, http.MethodPost, s.endpoint(s.accountID+"/media", nil), body, &container); err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	if container.ID == "" {
		return nil, Transient(models.PlatformInstagram, errors.New("media container returned no id"))
	}

	statusQuery := url.Values{"fields": {"status_code,status"}}
	err = pollUntil(ctx, s.pollInterval, func(ctx context.Context) (bool, error) {
		var st transfer.InstagramContainerStatus
		if err := s.call(ctx, http.MethodGet, s.endpoint(container.ID, statusQuery), nil, &st); err != nil {
			return false, err
		}
		switch st.StatusCode {
		case "FINISHED", "PUBLISHED":
			return true, nil
		case "ERROR", "EXPIRED":
			return false, Permanent(models.PlatformInstagram, fmt.Errorf("container %s: %s %s", container.ID, st.StatusCode, st.Status))
		default:
			return false, nil
		}
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			err = Transient(models.PlatformInstagram, fmt.Errorf("container %s still processing: %w", container.ID, err))
		}
		return nil, err
	}

	var media transfer.InstagramIDResponse
	publishBody := map[string]string{"creation_id": container.ID}
	if err := s.call(ctx, http.MethodPost, s.endpoint(s.accountID+"/media_publish", nil), publishBody, &media); err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	result := &PublishResult{PlatformPostID: media.ID}

	var info transfer.InstagramMedia
	if err := s.call(ctx, http.MethodGet, s.endpoint(media.ID, url.Values{"fields": {"id,permalink"}}), nil, &info); err != nil {
		slog.Warn("published but permalink lookup failed", "item_id", item.ID, "media_id", media.ID, "error", err)
	} else {
		result.URL = info.Permalink
	}

	slog.Info("instagram reel published", "item_id", item.ID, "media_id", media.ID)
	return result, nil
}

func (s *instagramService) CollectMetrics(ctx context.Context, item *models.QueueItem) (*models.PostMetric, error) {
	query := url.Values{"metric": {"views,likes,comments,shares"}}

	var resp transfer.InstagramInsightsResponse
	if err := s.call(ctx, http.MethodGet, s.endpoint(item.PlatformPostID+"/insights", query), nil, &resp); err != nil {
		return nil, err
	}

	metric := &models.PostMetric{}
	for _, in := range resp.Data {
		if len(in.Values) == 0 {
			continue
		}
		v := in.Values[0].Value
		switch in.Name {
		case "views":
			metric.Views = v
		case "likes":
			metric.Likes = v
		case "comments":
			metric.Comments = v
		case "shares":
			metric.Shares = v
		}
	}
	return metric, nil
}
