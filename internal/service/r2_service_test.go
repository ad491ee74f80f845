package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"

	cfg "github.com/maheshrc27/postflow/configs"
	"github.com/maheshrc27/postflow/internal/models"
)

var mp4Header = append([]byte("\x00\x00\x00\x18ftypisom"), make([]byte, 64)...)

type fakeObjects struct {
	headErr error
	body    []byte
	keys    []string
}

func (f *fakeObjects) HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.keys = append(f.keys, *in.Key)
	if f.headErr != nil {
		return nil, f.headErr
	}
	return &s3.HeadObjectOutput{}, nil
}

func (f *fakeObjects) GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(f.body))}, nil
}

type fakePresigner struct{}

func (fakePresigner) PresignGetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	return &v4.PresignedHTTPRequest{URL: "https://signed.example.com/" + *in.Key, Method: http.MethodGet}, nil
}

func TestObjectKey(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "clips/c1.mp4", ObjectKey(&models.QueueItem{ClipID: "c1", ContentItemID: "x"}))
	assert.Equal(t, "content/x.mp4", ObjectKey(&models.QueueItem{ContentItemID: "x"}))
	assert.Empty(t, ObjectKey(&models.QueueItem{}))
}

func TestR2Service_ResolveVideoURL(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	r2 := cfg.R2{BucketName: "media"}

	t.Run("explicit video url wins", func(t *testing.T) {
		t.Parallel()

		objects := &fakeObjects{}
		s := newR2ServiceWith(r2, objects, fakePresigner{})
		url, err := s.ResolveVideoURL(ctx, &models.QueueItem{VideoURL: "https://cdn/x.mp4", ClipID: "c1"})
		require.NoError(t, err)
		assert.Equal(t, "https://cdn/x.mp4", url)
		assert.Empty(t, objects.keys)
	})

	t.Run("presigned clip url", func(t *testing.T) {
		t.Parallel()

		s := newR2ServiceWith(r2, &fakeObjects{body: mp4Header}, fakePresigner{})
		url, err := s.ResolveVideoURL(ctx, &models.QueueItem{ClipID: "c1"})
		require.NoError(t, err)
		assert.Equal(t, "https://signed.example.com/clips/c1.mp4", url)
	})

	t.Run("public base url", func(t *testing.T) {
		t.Parallel()

		public := r2
		public.PublicBaseURL = "https://pub.example.com/"
		s := newR2ServiceWith(public, &fakeObjects{body: mp4Header}, fakePresigner{})
		url, err := s.ResolveVideoURL(ctx, &models.QueueItem{ContentItemID: "k"})
		require.NoError(t, err)
		assert.Equal(t, "https://pub.example.com/content/k.mp4", url)
	})

	t.Run("missing object is permanent", func(t *testing.T) {
		t.Parallel()

		s := newR2ServiceWith(r2, &fakeObjects{headErr: &types.NotFound{}}, fakePresigner{})
		_, err := s.ResolveVideoURL(ctx, &models.QueueItem{Platform: models.PlatformTiktok, ClipID: "gone"})
		require.Error(t, err)
		assert.Equal(t, models.ErrorKindPermanent, ErrorKindOf(err))
	})

	t.Run("storage outage is transient", func(t *testing.T) {
		t.Parallel()

		s := newR2ServiceWith(r2, &fakeObjects{headErr: errors.New("connection refused")}, fakePresigner{})
		_, err := s.ResolveVideoURL(ctx, &models.QueueItem{ClipID: "c1"})
		require.Error(t, err)
		assert.Equal(t, models.ErrorKindTransient, ErrorKindOf(err))
	})

	t.Run("non video object is permanent", func(t *testing.T) {
		t.Parallel()

		s := newR2ServiceWith(r2, &fakeObjects{body: []byte("\x89PNG\r\n\x1a\n0000000000")}, fakePresigner{})
		_, err := s.ResolveVideoURL(ctx, &models.QueueItem{ClipID: "c1"})
		require.Error(t, err)
		assert.Equal(t, models.ErrorKindPermanent, ErrorKindOf(err))
		assert.Contains(t, err.Error(), "not a video")
	})

	t.Run("no reference at all", func(t *testing.T) {
		t.Parallel()

		s := newR2ServiceWith(r2, &fakeObjects{}, fakePresigner{})
		_, err := s.ResolveVideoURL(ctx, &models.QueueItem{})
		assert.Equal(t, models.ErrorKindPermanent, ErrorKindOf(err))
	})
}

func TestYoutubeTitle(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "First line", youtubeTitle(&models.QueueItem{Caption: "First line\nsecond"}))
	assert.Equal(t, "Untitled", youtubeTitle(&models.QueueItem{}))
	assert.Equal(t, "Explicit", youtubeTitle(&models.QueueItem{
		Caption:          "caption",
		PlatformMetadata: models.PlatformMetadata{Youtube: &models.YoutubeOptions{Title: " Explicit "}},
	}))

	long := youtubeTitle(&models.QueueItem{Caption: strings.Repeat("é", 150)})
	assert.Equal(t, 100, len([]rune(long)))
}

func TestClassifyGoogleError(t *testing.T) {
	t.Parallel()

	quota := &googleapi.Error{Code: 403, Errors: []googleapi.ErrorItem{{Reason: "quotaExceeded"}}}
	assert.Equal(t, models.ErrorKindTransient, ErrorKindOf(classifyGoogleError(quota)))

	forbidden := &googleapi.Error{Code: 403, Errors: []googleapi.ErrorItem{{Reason: "forbidden"}}}
	assert.Equal(t, models.ErrorKindPermanent, ErrorKindOf(classifyGoogleError(forbidden)))

	assert.Equal(t, models.ErrorKindTransient, ErrorKindOf(classifyGoogleError(&googleapi.Error{Code: 503})))
	assert.Equal(t, models.ErrorKindPermanent, ErrorKindOf(classifyGoogleError(&googleapi.Error{Code: 400})))
	assert.Equal(t, models.ErrorKindTransient, ErrorKindOf(classifyGoogleError(errors.New("eof"))))
}
