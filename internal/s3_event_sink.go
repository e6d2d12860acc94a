package internal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/google/uuid"
	"github.com/lychee-technology/dynaform"
	"go.uber.org/zap"
)

type objectUploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

type bucketClient interface {
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	CreateBucket(ctx context.Context, params *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
}

// archivedEvent is the JSON document written for every event.
type archivedEvent struct {
	ID         string             `json:"id"`
	Kind       dynaform.EventKind `json:"kind"`
	UserID     string             `json:"userId,omitempty"`
	OccurredAt time.Time          `json:"occurredAt"`
	Payload    map[string]any     `json:"payload"`
}

// S3EventSink archives events as JSON objects under
// <prefix>/<kind>/<yyyy>/<mm>/<dd>/<event id>.json.
type S3EventSink struct {
	uploader objectUploader
	buckets  bucketClient
	bucket   string
	prefix   string
	now      func() time.Time
}

var _ dynaform.Notifier = (*S3EventSink)(nil)

// NewS3EventSink builds the S3 client from cfg. Static keys win over the
// default credential chain; a custom endpoint switches to path-style addressing.
func NewS3EventSink(ctx context.Context, cfg dynaform.EventsConfig) (*S3EventSink, error) {
	if err := ValidateEventsConfig(cfg); err != nil {
		return nil, err
	}
	if !cfg.Enabled() {
		return nil, fmt.Errorf("events: s3Bucket is not configured")
	}

	var loadOpts []func(*config.LoadOptions) error
	if cfg.S3Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(cfg.S3Region))
	} else {
		// region is required by the SDK even for custom endpoints
		loadOpts = append(loadOpts, config.WithRegion("us-east-1"))
	}
	if cfg.S3AccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKey, cfg.S3SecretKey, "")))
	}
	if cfg.S3Endpoint != "" {
		loadOpts = append(loadOpts, config.WithBaseEndpoint(cfg.S3Endpoint))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.S3Endpoint != ""
	})
	return newS3EventSink(manager.NewUploader(client), client, cfg.S3Bucket, cfg.S3Prefix), nil
}

func newS3EventSink(uploader objectUploader, buckets bucketClient, bucket, prefix string) *S3EventSink {
	return &S3EventSink{
		uploader: uploader,
		buckets:  buckets,
		bucket:   bucket,
		prefix:   prefix,
		now:      time.Now,
	}
}

// EnsureBucket creates the archive bucket when it does not exist yet.
func (s *S3EventSink) EnsureBucket(ctx context.Context) error {
	if _, err := s.buckets.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)}); err == nil {
		return nil
	}
	if _, err := s.buckets.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(s.bucket)}); err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			switch apiErr.ErrorCode() {
			case "BucketAlreadyOwnedByYou", "BucketAlreadyExists":
				return nil
			}
		}
		return fmt.Errorf("create bucket %s: %w", s.bucket, err)
	}
	zap.S().Infow("created event archive bucket", "bucket", s.bucket)
	return nil
}

func (s *S3EventSink) objectKey(kind dynaform.EventKind, id string, at time.Time) string {
	return path.Join(s.prefix, string(kind), at.Format("2006/01/02"), id+".json")
}

func (s *S3EventSink) Notify(ctx context.Context, userID string, kind dynaform.EventKind, payload map[string]any) error {
	event := archivedEvent{
		ID:         uuid.Must(uuid.NewV7()).String(),
		Kind:       kind,
		UserID:     userID,
		OccurredAt: s.now().UTC(),
		Payload:    payload,
	}
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	key := s.objectKey(kind, event.ID, event.OccurredAt)
	_, err = s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			return fmt.Errorf("s3 upload %s rejected (%s): %w", key, apiErr.ErrorCode(), err)
		}
		return fmt.Errorf("s3 upload %s: %w", key, err)
	}
	zap.S().Debugw("event archived", "kind", kind, "key", key)
	return nil
}
