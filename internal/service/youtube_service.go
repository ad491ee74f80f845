package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	config "github.com/maheshrc27/postflow/configs"
	"github.com/maheshrc27/postflow/internal/models"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"
)

const (
	youtubeDefaultCategory = "22"
	youtubeDefaultPrivacy  = "public"
	youtubeTitleLimit      = 100
)

type youtubeService struct {
	cfg     config.Config
	content ContentResolver
	client  *http.Client
	opts    []option.ClientOption
}

func NewYoutubeService(cfg config.Config, content ContentResolver) PlatformAdapter {
	conf := &oauth2.Config{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		Scopes:       []string{youtube.YoutubeUploadScope, youtube.YoutubeReadonlyScope},
		Endpoint:     google.Endpoint,
	}
	ts := conf.TokenSource(context.Background(), &oauth2.Token{RefreshToken: cfg.YoutubeRefreshToken})

	return &youtubeService{
		cfg:     cfg,
		content: content,
		client:  http.DefaultClient,
		opts:    []option.ClientOption{option.WithTokenSource(ts)},
	}
}

func (s *youtubeService) api(ctx context.Context) (*youtube.Service, error) {
	svc, err := youtube.NewService(ctx, s.opts...)
	if err != nil {
		slog.Info(err.Error())
		return nil, Transient(models.PlatformYoutube, fmt.Errorf("error creating youtube service: %w", err))
	}
	return svc, nil
}

// youtubeTitle picks the explicit title or derives one from the caption's
// first line.
func youtubeTitle(item *models.QueueItem) string {
	title := ""
	if opts := item.PlatformMetadata.Youtube; opts != nil {
		title = strings.TrimSpace(opts.Title)
	}
	if title == "" {
		title, _, _ = strings.Cut(strings.TrimSpace(item.Caption), "\n")
	}
	if title == "" {
		title = "Untitled"
	}
	if r := []rune(title); len(r) > youtubeTitleLimit {
		title = string(r[:youtubeTitleLimit])
	}
	return title
}

func (s *youtubeService) Publish(ctx context.Context, item *models.QueueItem) (*PublishResult, error) {
	videoURL, err := s.content.ResolveVideoURL(ctx, item)
	if err != nil {
		return nil, err
	}

	svc, err := s.api(ctx)
	if err != nil {
		return nil, err
	}

	video := &youtube.Video{
		Snippet: &youtube.VideoSnippet{
			Title:       youtubeTitle(item),
			Description: composeCaption(item),
			Tags:        item.Hashtags,
			CategoryId:  youtubeDefaultCategory,
		},
		Status: &youtube.VideoStatus{
			PrivacyStatus: youtubeDefaultPrivacy,
		},
	}
	if opts := item.PlatformMetadata.Youtube; opts != nil {
		if opts.CategoryID != "" {
			video.Snippet.CategoryId = opts.CategoryID
		}
		if opts.PrivacyStatus != "" {
			video.Status.PrivacyStatus = opts.PrivacyStatus
		}
		video.Status.SelfDeclaredMadeForKids = opts.MadeForKids
		video.Status.ForceSendFields = []string{"SelfDeclaredMadeForKids"}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, videoURL, nil)
	if err != nil {
		return nil, Permanent(models.PlatformYoutube, err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, Transient(models.PlatformYoutube, fmt.Errorf("error downloading video: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, StatusError(models.PlatformYoutube, resp.StatusCode, "video download failed")
	}

	uploaded, err := svc.Videos.Insert([]string{"snippet", "status"}, video).
		Media(resp.Body).
		Context(ctx).
		Do()
	if err != nil {
		slog.Info(err.Error())
		return nil, classifyGoogleError(err)
	}

	slog.Info("youtube video uploaded", "item_id", item.ID, "video_id", uploaded.Id)
	return &PublishResult{
		PlatformPostID: uploaded.Id,
		URL:            "https://youtu.be/" + uploaded.Id,
	}, nil
}

func (s *youtubeService) CollectMetrics(ctx context.Context, item *models.QueueItem) (*models.PostMetric, error) {
	svc, err := s.api(ctx)
	if err != nil {
		return nil, err
	}

	list, err := svc.Videos.List([]string{"statistics"}).Id(item.PlatformPostID).Context(ctx).Do()
	if err != nil {
		return nil, classifyGoogleError(err)
	}
	if len(list.Items) == 0 || list.Items[0].Statistics == nil {
		return nil, Permanent(models.PlatformYoutube, fmt.Errorf("video %s not found", item.PlatformPostID))
	}

	st := list.Items[0].Statistics
	return &models.PostMetric{
		Views:    int64(st.ViewCount),
		Likes:    int64(st.LikeCount),
		Comments: int64(st.CommentCount),
	}, nil
}

// classifyGoogleError treats quota exhaustion as transient since quotas
// reset daily.
func classifyGoogleError(err error) error {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return Transient(models.PlatformYoutube, err)
	}
	for _, e := range gerr.Errors {
		switch e.Reason {
		case "quotaExceeded", "uploadLimitExceeded", "rateLimitExceeded", "userRateLimitExceeded":
			return Transient(models.PlatformYoutube, err)
		}
	}
	if gerr.Code == http.StatusTooManyRequests || gerr.Code >= 500 {
		return Transient(models.PlatformYoutube, err)
	}
	return Permanent(models.PlatformYoutube, err)
}
