package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/transfer"
)

const (
	tiktokInitPath   = "/v2/post/publish/video/init/"
	tiktokStatusPath = "/v2/post/publish/status/fetch/"
	tiktokQueryPath  = "/v2/video/query/?fields=id,view_count,like_count,comment_count,share_count"

	tiktokUserInfoPath = "/v2/user/info/?fields=username"

	tiktokDefaultPrivacy = "PUBLIC_TO_EVERYONE"
)

type tiktokService struct {
	client       *http.Client
	baseURL      string
	accessToken  string
	content      ContentResolver
	pollInterval time.Duration

	mu       sync.Mutex
	username string
}

func NewTiktokService(client *http.Client, baseURL, accessToken string, content ContentResolver) ResumableAdapter {
	return &tiktokService{
		client:       client,
		baseURL:      strings.TrimRight(baseURL, "/"),
		accessToken:  accessToken,
		content:      content,
		pollInterval: 5 * time.Second,
	}
}

func (s *tiktokService) headers() map[string]string {
	return map[string]string{"Authorization": "Bearer " + s.accessToken}
}

func (s *tiktokService) Publish(ctx context.Context, item *models.QueueItem) (*PublishResult, error) {
	publishID, err := s.Submit(ctx, item)
	if err != nil {
		return nil, err
	}
	return s.Await(ctx, item, publishID)
}

// Submit asks TikTok to pull the video and returns the publish id.
func (s *tiktokService) Submit(ctx context.Context, item *models.QueueItem) (string, error) {
	videoURL, err := s.content.ResolveVideoURL(ctx, item)
	if err != nil {
		return "", err
	}

	postInfo := transfer.VideoPostInfo{
		Title:                 composeCaption(item),
		PrivacyLevel:          tiktokDefaultPrivacy,
		VideoCoverTimestampMs: 1000,
	}
	if opts := item.PlatformMetadata.Tiktok; opts != nil {
		if opts.PrivacyLevel != "" {
			postInfo.PrivacyLevel = opts.PrivacyLevel
		}
		postInfo.DisableDuet = opts.DisableDuet
		postInfo.DisableComment = opts.DisableComment
		postInfo.DisableStitch = opts.DisableStitch
		postInfo.IsAIGC = opts.IsAIGC
		if opts.VideoCoverTimestampMs > 0 {
			postInfo.VideoCoverTimestampMs = opts.VideoCoverTimestampMs
		}
	}

	req := transfer.VideoUploadRequest{
		PostInfo: postInfo,
		SourceInfo: transfer.VideoSourceInfo{
			Source:   "PULL_FROM_URL",
			VideoURL: videoURL,
		},
	}

	var initResp transfer.TikTokUploadResponse
	if err := doJSON(ctx, s.client, models.PlatformTiktok, http.MethodPost, s.baseURL+tiktokInitPath, s.headers(), req, &initResp); err != nil {
		slog.Info(err.Error())
		return "", err
	}
	if !initResp.Error.OK() {
		return "", Permanent(models.PlatformTiktok, fmt.Errorf("%s: %s", initResp.Error.Code, initResp.Error.Message))
	}
	if initResp.Data.PublishID == "" {
		return "", Transient(models.PlatformTiktok, errors.New("init returned no publish id"))
	}
	return initResp.Data.PublishID, nil
}

// Await polls a publish id until TikTok finishes or rejects it.
func (s *tiktokService) Await(ctx context.Context, item *models.QueueItem, publishID string) (*PublishResult, error) {
	var status transfer.TiktokStatusData
	err := pollUntil(ctx, s.pollInterval, func(ctx context.Context) (bool, error) {
		var resp transfer.TiktokStatusResponse
		err := doJSON(ctx, s.client, models.PlatformTiktok, http.MethodPost, s.baseURL+tiktokStatusPath, s.headers(),
			transfer.TiktokStatusRequest{PublishID: publishID}, &resp)
		if err != nil {
			return false, err
		}
		status = resp.Data
		switch resp.Data.Status {
		case "PUBLISH_COMPLETE":
			return true, nil
		case "FAILED":
			return false, Permanent(models.PlatformTiktok, fmt.Errorf("publish failed: %s", resp.Data.FailReason))
		default:
			return false, nil
		}
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			err = Transient(models.PlatformTiktok, fmt.Errorf("publish %s still processing: %w", publishID, err))
		}
		return nil, err
	}

	result := &PublishResult{PlatformPostID: publishID}
	if len(status.PublicalyAvailablePostIDs) > 0 {
		postID := fmt.Sprintf("%d", status.PublicalyAvailablePostIDs[0])
		result.PlatformPostID = postID
		if username := s.creatorUsername(ctx); username != "" {
			result.URL = fmt.Sprintf("https://www.tiktok.com/@%s/video/%s", username, postID)
		}
	}

	slog.Info("tiktok video published", "item_id", item.ID, "publish_id", publishID)
	return result, nil
}

// creatorUsername looks up the account handle once. Permalinks need it and
// the publish status response does not carry it.
func (s *tiktokService) creatorUsername(ctx context.Context) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.username != "" {
		return s.username
	}

	var resp transfer.TiktokUserInfoResponse
	if err := doJSON(ctx, s.client, models.PlatformTiktok, http.MethodGet, s.baseURL+tiktokUserInfoPath, s.headers(), nil, &resp); err != nil {
		slog.Warn("tiktok username lookup failed", "error", err)
		return ""
	}
	if !resp.Error.OK() {
		slog.Warn("tiktok username lookup failed", "code", resp.Error.Code, "message", resp.Error.Message)
		return ""
	}
	s.username = resp.Data.User.Username
	return s.username
}

func (s *tiktokService) CollectMetrics(ctx context.Context, item *models.QueueItem) (*models.PostMetric, error) {
	var req transfer.TiktokVideoQueryRequest
	req.Filters.VideoIDs = []string{item.PlatformPostID}

	var resp transfer.TiktokVideoQueryResponse
	if err := doJSON(ctx, s.client, models.PlatformTiktok, http.MethodPost, s.baseURL+tiktokQueryPath, s.headers(), req, &resp); err != nil {
		return nil, err
	}
	if !resp.Error.OK() {
		return nil, Permanent(models.PlatformTiktok, fmt.Errorf("%s: %s", resp.Error.Code, resp.Error.Message))
	}

	for _, v := range resp.Data.Videos {
		if v.ID == item.PlatformPostID {
			return &models.PostMetric{
				Views:    v.ViewCount,
				Likes:    v.LikeCount,
				Comments: v.CommentCount,
				Shares:   v.ShareCount,
			}, nil
		}
	}
	return nil, Permanent(models.PlatformTiktok, fmt.Errorf("video %s not found", item.PlatformPostID))
}
