package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/h2non/filetype"
	cfg "github.com/maheshrc27/postflow/configs"
	"github.com/maheshrc27/postflow/internal/models"
)

// ContentResolver turns a queue item's content reference into a URL the
// platform can fetch.
type ContentResolver interface {
	ResolveVideoURL(ctx context.Context, item *models.QueueItem) (string, error)
}

type objectAPI interface {
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

type presignAPI interface {
	PresignGetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// sniffLen covers every video signature filetype knows about.
const sniffLen = 262

type R2Service struct {
	config    cfg.R2
	client    objectAPI
	presigner presignAPI
}

func NewR2Service(c cfg.R2) *R2Service {
	client := R2Client(c)
	return &R2Service{
		config:    c,
		client:    client,
		presigner: s3.NewPresignClient(client),
	}
}

func newR2ServiceWith(c cfg.R2, client objectAPI, presigner presignAPI) *R2Service {
	return &R2Service{config: c, client: client, presigner: presigner}
}

func R2Client(c cfg.R2) *s3.Client {
	awsCfg, err := config.LoadDefaultConfig(context.TODO(),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(c.AccessKey, c.SecretKey, "")),
		config.WithRegion("auto"),
	)
	if err != nil {
		slog.Info(err.Error())
		log.Fatal(err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(fmt.Sprintf("https://%s.r2.cloudflarestorage.com", c.AccountID))
	})
}

// ObjectKey is the bucket key for an item's rendered video. Clips win over
// whole content items.
func ObjectKey(item *models.QueueItem) string {
	switch {
	case item.ClipID != "":
		return "clips/" + item.ClipID + ".mp4"
	case item.ContentItemID != "":
		return "content/" + item.ContentItemID + ".mp4"
	default:
		return ""
	}
}

func (r *R2Service) ResolveVideoURL(ctx context.Context, item *models.QueueItem) (string, error) {
	if item.VideoURL != "" {
		return item.VideoURL, nil
	}

	key := ObjectKey(item)
	if key == "" {
		return "", Permanent(item.Platform, errors.New("item has no video url, clip or content reference"))
	}

	_, err := r.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(r.config.BucketName),
		Key:    aws.String(key),
	})
	if err != nil {
		if isMissingObject(err) {
			return "", Permanent(item.Platform, fmt.Errorf("video object %s not found", key))
		}
		slog.Info(err.Error())
		return "", Transient(item.Platform, err)
	}

	if err := r.checkVideo(ctx, item.Platform, key); err != nil {
		return "", err
	}

	if r.config.PublicBaseURL != "" {
		return strings.TrimRight(r.config.PublicBaseURL, "/") + "/" + key, nil
	}

	signed, err := r.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.config.BucketName),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(r.config.PresignTTL))
	if err != nil {
		slog.Info(err.Error())
		return "", Transient(item.Platform, err)
	}
	return signed.URL, nil
}

// checkVideo reads the object's leading bytes and rejects anything that is
// not a video container.
func (r *R2Service) checkVideo(ctx context.Context, platform models.Platform, key string) error {
	out, err := r.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.config.BucketName),
		Key:    aws.String(key),
		Range:  aws.String(fmt.Sprintf("bytes=0-%d", sniffLen-1)),
	})
	if err != nil {
		slog.Info(err.Error())
		return Transient(platform, err)
	}
	defer out.Body.Close()

	head, err := io.ReadAll(io.LimitReader(out.Body, sniffLen))
	if err != nil {
		return Transient(platform, err)
	}
	if !filetype.IsVideo(head) {
		return Permanent(platform, fmt.Errorf("object %s is not a video", key))
	}
	return nil
}

func isMissingObject(err error) bool {
	var nf *types.NotFound
	var nk *types.NoSuchKey
	return errors.As(err, &nf) || errors.As(err, &nk)
}

// DirectURLResolver only accepts items that carry their own video URL. It is
// used when no bucket is configured.
type DirectURLResolver struct{}

func (DirectURLResolver) ResolveVideoURL(ctx context.Context, item *models.QueueItem) (string, error) {
	if item.VideoURL == "" {
		return "", Permanent(item.Platform, errors.New("item has no video url and no bucket is configured"))
	}
	return item.VideoURL, nil
}
