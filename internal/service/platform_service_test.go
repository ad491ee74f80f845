package service_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	config "github.com/maheshrc27/postflow/configs"
	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/service"
	"github.com/maheshrc27/postflow/internal/transfer"
)

const testVideoURL = "https://cdn.example.com/clip.mp4"

func publishItem(platform models.Platform) *models.QueueItem {
	return &models.QueueItem{
		ID:       "item-1",
		Platform: platform,
		Caption:  "hello",
		Hashtags: []string{"go", "video"},
		VideoURL: testVideoURL,
	}
}

func writeJSON(t *testing.T, w http.ResponseWriter, status int, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	assert.NoError(t, json.NewEncoder(w).Encode(v))
}

func TestTiktokService_Publish(t *testing.T) {
	t.Parallel()

	t.Run("pulls from url and waits for completion", func(t *testing.T) {
		t.Parallel()

		var initReq transfer.VideoUploadRequest
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "Bearer token", r.Header.Get("Authorization"))
			switch r.URL.Path {
			case "/v2/post/publish/video/init/":
				assert.NoError(t, json.NewDecoder(r.Body).Decode(&initReq))
				writeJSON(t, w, http.StatusOK, map[string]any{
					"data":  map[string]any{"publish_id": "pub-1"},
					"error": map[string]any{"code": "ok"},
				})
			case "/v2/post/publish/status/fetch/":
				writeJSON(t, w, http.StatusOK, map[string]any{
					"data": map[string]any{
						"status":                      "PUBLISH_COMPLETE",
						"publicaly_available_post_id": []int64{7351},
					},
					"error": map[string]any{"code": "ok"},
				})
			case "/v2/user/info/":
				assert.Equal(t, "username", r.URL.Query().Get("fields"))
				writeJSON(t, w, http.StatusOK, map[string]any{
					"data":  map[string]any{"user": map[string]any{"username": "creator"}},
					"error": map[string]any{"code": "ok"},
				})
			default:
				http.NotFound(w, r)
			}
		}))
		defer srv.Close()

		adapter := service.NewTiktokService(srv.Client(), srv.URL, "token", service.DirectURLResolver{})
		result, err := adapter.Publish(context.Background(), publishItem(models.PlatformTiktok))
		require.NoError(t, err)

		assert.Equal(t, "7351", result.PlatformPostID)
		assert.Equal(t, "https://www.tiktok.com/@creator/video/7351", result.URL)
		assert.Equal(t, "PULL_FROM_URL", initReq.SourceInfo.Source)
		assert.Equal(t, testVideoURL, initReq.SourceInfo.VideoURL)
		assert.Equal(t, "hello\n\n#go #video", initReq.PostInfo.Title)
	})

	t.Run("no permalink without a username", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/v2/post/publish/status/fetch/" {
				writeJSON(t, w, http.StatusOK, map[string]any{
					"data": map[string]any{"status": "PUBLISH_COMPLETE", "publicaly_available_post_id": []int64{42}},
				})
				return
			}
			writeJSON(t, w, http.StatusForbidden, map[string]any{"error": map[string]any{"code": "scope_not_authorized"}})
		}))
		defer srv.Close()

		adapter := service.NewTiktokService(srv.Client(), srv.URL, "token", service.DirectURLResolver{})
		result, err := adapter.Await(context.Background(), publishItem(models.PlatformTiktok), "pub-9")
		require.NoError(t, err)
		assert.Equal(t, "42", result.PlatformPostID)
		assert.Empty(t, result.URL)
	})

	t.Run("failed status is permanent", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.HasSuffix(r.URL.Path, "/init/") {
				writeJSON(t, w, http.StatusOK, map[string]any{"data": map[string]any{"publish_id": "pub-1"}})
				return
			}
			writeJSON(t, w, http.StatusOK, map[string]any{
				"data": map[string]any{"status": "FAILED", "fail_reason": "duration_check_failed"},
			})
		}))
		defer srv.Close()

		adapter := service.NewTiktokService(srv.Client(), srv.URL, "token", service.DirectURLResolver{})
		_, err := adapter.Publish(context.Background(), publishItem(models.PlatformTiktok))
		require.Error(t, err)
		assert.Equal(t, models.ErrorKindPermanent, service.ErrorKindOf(err))
		assert.Contains(t, err.Error(), "duration_check_failed")
	})

	t.Run("rate limit is transient", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeJSON(t, w, http.StatusTooManyRequests, map[string]any{"error": map[string]any{"code": "rate_limit_exceeded"}})
		}))
		defer srv.Close()

		adapter := service.NewTiktokService(srv.Client(), srv.URL, "token", service.DirectURLResolver{})
		_, err := adapter.Publish(context.Background(), publishItem(models.PlatformTiktok))
		require.Error(t, err)
		assert.Equal(t, models.ErrorKindTransient, service.ErrorKindOf(err))
	})

	t.Run("item without video url is permanent", func(t *testing.T) {
		t.Parallel()

		adapter := service.NewTiktokService(http.DefaultClient, "http://127.0.0.1:0", "token", service.DirectURLResolver{})
		item := publishItem(models.PlatformTiktok)
		item.VideoURL = ""

		_, err := adapter.Publish(context.Background(), item)
		require.Error(t, err)
		assert.Equal(t, models.ErrorKindPermanent, service.ErrorKindOf(err))
	})
}

func TestTiktokService_CollectMetrics(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/video/query/", r.URL.Path)
		writeJSON(t, w, http.StatusOK, map[string]any{
			"data": map[string]any{"videos": []map[string]any{
				{"id": "7351", "view_count": 900, "like_count": 40, "comment_count": 3, "share_count": 2},
			}},
		})
	}))
	defer srv.Close()

	adapter := service.NewTiktokService(srv.Client(), srv.URL, "token", service.DirectURLResolver{})
	item := publishItem(models.PlatformTiktok)
	item.PlatformPostID = "7351"

	metric, err := adapter.CollectMetrics(context.Background(), item)
	require.NoError(t, err)
	assert.Equal(t, int64(900), metric.Views)
	assert.Equal(t, int64(40), metric.Likes)
	assert.Equal(t, int64(3), metric.Comments)
	assert.Equal(t, int64(2), metric.Shares)
}

func TestInstagramService_Publish(t *testing.T) {
	t.Parallel()

	t.Run("container, publish and permalink", func(t *testing.T) {
		t.Parallel()

		var container map[string]any
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "token", r.URL.Query().Get("access_token"))
			switch r.URL.Path {
			case "/acct/media":
				assert.NoError(t, json.NewDecoder(r.Body).Decode(&container))
				writeJSON(t, w, http.StatusOK, map[string]any{"id": "c-1"})
			case "/c-1":
				writeJSON(t, w, http.StatusOK, map[string]any{"id": "c-1", "status_code": "FINISHED"})
			case "/acct/media_publish":
				writeJSON(t, w, http.StatusOK, map[string]any{"id": "m-1"})
			case "/m-1":
				writeJSON(t, w, http.StatusOK, map[string]any{"id": "m-1", "permalink": "https://instagram.com/reel/abc"})
			default:
				http.NotFound(w, r)
			}
		}))
		defer srv.Close()

		adapter := service.NewInstagramService(srv.Client(), srv.URL, "acct", "token", service.DirectURLResolver{})
		result, err := adapter.Publish(context.Background(), publishItem(models.PlatformInstagram))
		require.NoError(t, err)

		assert.Equal(t, "m-1", result.PlatformPostID)
		assert.Equal(t, "https://instagram.com/reel/abc", result.URL)
		assert.Equal(t, "REELS", container["media_type"])
		assert.Equal(t, testVideoURL, container["video_url"])
	})

	t.Run("graph api transient flag is honoured", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeJSON(t, w, http.StatusBadRequest, map[string]any{
				"error": map[string]any{"message": "Please retry", "code": 2, "is_transient": true},
			})
		}))
		defer srv.Close()

		adapter := service.NewInstagramService(srv.Client(), srv.URL, "acct", "token", service.DirectURLResolver{})
		_, err := adapter.Publish(context.Background(), publishItem(models.PlatformInstagram))
		require.Error(t, err)
		assert.Equal(t, models.ErrorKindTransient, service.ErrorKindOf(err))
		assert.Contains(t, err.Error(), "Please retry")
	})

	t.Run("container error is permanent", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/acct/media" {
				writeJSON(t, w, http.StatusOK, map[string]any{"id": "c-1"})
				return
			}
			writeJSON(t, w, http.StatusOK, map[string]any{"id": "c-1", "status_code": "ERROR", "status": "unsupported codec"})
		}))
		defer srv.Close()

		adapter := service.NewInstagramService(srv.Client(), srv.URL, "acct", "token", service.DirectURLResolver{})
		_, err := adapter.Publish(context.Background(), publishItem(models.PlatformInstagram))
		require.Error(t, err)
		assert.Equal(t, models.ErrorKindPermanent, service.ErrorKindOf(err))
	})
}

func TestInstagramService_CollectMetrics(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/m-1/insights", r.URL.Path)
		writeJSON(t, w, http.StatusOK, map[string]any{"data": []map[string]any{
			{"name": "views", "values": []map[string]any{{"value": 310}}},
			{"name": "likes", "values": []map[string]any{{"value": 12}}},
			{"name": "shares", "values": []map[string]any{}},
		}})
	}))
	defer srv.Close()

	adapter := service.NewInstagramService(srv.Client(), srv.URL, "acct", "token", service.DirectURLResolver{})
	item := publishItem(models.PlatformInstagram)
	item.PlatformPostID = "m-1"

	metric, err := adapter.CollectMetrics(context.Background(), item)
	require.NoError(t, err)
	assert.Equal(t, int64(310), metric.Views)
	assert.Equal(t, int64(12), metric.Likes)
	assert.Equal(t, int64(0), metric.Shares)
}

func TestBlotatoService_Publish(t *testing.T) {
	t.Parallel()

	t.Run("published", func(t *testing.T) {
		t.Parallel()

		var req transfer.BlotatoPostRequest
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "key", r.Header.Get("blotato-api-key"))
			switch {
			case r.Method == http.MethodPost && r.URL.Path == "/posts":
				assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
				writeJSON(t, w, http.StatusCreated, map[string]any{"postSubmissionId": "sub-1"})
			case r.Method == http.MethodGet && r.URL.Path == "/posts/sub-1":
				writeJSON(t, w, http.StatusOK, map[string]any{"status": "published", "publicUrl": "https://threads.net/p/1"})
			default:
				http.NotFound(w, r)
			}
		}))
		defer srv.Close()

		pub := service.NewBlotatoService(srv.Client(), srv.URL, "key", models.PlatformThreads, "acc-9", service.DirectURLResolver{})
		result, err := pub.Publish(context.Background(), publishItem(models.PlatformThreads))
		require.NoError(t, err)

		assert.Equal(t, "sub-1", result.PlatformPostID)
		assert.Equal(t, "https://threads.net/p/1", result.URL)
		assert.Equal(t, "acc-9", req.Post.AccountID)
		assert.Equal(t, "threads", req.Post.Target.TargetType)
		assert.Equal(t, []string{testVideoURL}, req.Post.Content.MediaURLs)
	})

	t.Run("failed submission is permanent", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodPost {
				writeJSON(t, w, http.StatusCreated, map[string]any{"postSubmissionId": "sub-1"})
				return
			}
			writeJSON(t, w, http.StatusOK, map[string]any{"status": "failed", "errorMessage": "account disconnected"})
		}))
		defer srv.Close()

		pub := service.NewBlotatoService(srv.Client(), srv.URL, "key", models.PlatformLinkedin, "acc-1", service.DirectURLResolver{})
		_, err := pub.Publish(context.Background(), publishItem(models.PlatformLinkedin))
		require.Error(t, err)
		assert.Equal(t, models.ErrorKindPermanent, service.ErrorKindOf(err))
		assert.Contains(t, err.Error(), "account disconnected")
	})
}

func TestNewPlatformService(t *testing.T) {
	t.Parallel()

	cfg := config.Config{
		TiktokAccessToken:    "tt",
		TiktokAPIBaseURL:     "https://open.tiktokapis.com",
		InstagramAccessToken: "ig",
		BlotatoAPIKey:        "bk",
		BlotatoAPIBaseURL:    "https://backend.blotato.com/v2",
		BlotatoAccounts: map[string]string{
			"tiktok":   "1",
			"linkedin": "2",
			"myspace":  "3",
		},
	}
	ps := service.NewPlatformService(cfg, service.DirectURLResolver{})

	assert.ElementsMatch(t, []models.Platform{models.PlatformTiktok, models.PlatformLinkedin}, ps.Platforms())

	_, ok := ps.Collector(models.PlatformTiktok)
	assert.True(t, ok)
	_, ok = ps.Collector(models.PlatformLinkedin)
	assert.False(t, ok)

	_, err := ps.Publisher(models.PlatformInstagram)
	assert.ErrorIs(t, err, service.ErrNoAdapter)
	assert.Equal(t, models.ErrorKindPermanent, service.ErrorKindOf(err))
}
