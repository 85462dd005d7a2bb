// Package archive uploads generated images to S3 so they outlive the
// data URI returned to the browser.
package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/canmore-mixology/barkeep/internal/genai"
)

// DefaultPrefix is the key prefix used when none is configured.
const DefaultPrefix = "concierge"

var (
	// ErrBucketNotSet is returned by New when no bucket is configured.
	ErrBucketNotSet = errors.New("S3 bucket not set")
	// ErrEmptyImage is returned when asked to archive an image without data.
	ErrEmptyImage = errors.New("image has no data")
)

// putObjectAPI is the subset of *s3.Client used here.
type putObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Opts holds configuration for the S3 archiver.
type Opts struct {
	Bucket          string
	Region          string
	Prefix          string
	PublicBaseURL   string // overrides the virtual-hosted bucket URL
	AccessKeyID     string
	SecretAccessKey string
}

// Option defines a function that configures Opts.
type Option func(*Opts)

func WithBucket(bucket string) Option {
	return func(o *Opts) { o.Bucket = bucket }
}

func WithRegion(region string) Option {
	return func(o *Opts) { o.Region = region }
}

func WithPrefix(prefix string) Option {
	return func(o *Opts) { o.Prefix = prefix }
}

func WithPublicBaseURL(url string) Option {
	return func(o *Opts) { o.PublicBaseURL = url }
}

// WithStaticCredentials uses the given key pair instead of the default
// AWS credential chain.
func WithStaticCredentials(accessKeyID, secretAccessKey string) Option {
	return func(o *Opts) {
		o.AccessKeyID = accessKeyID
		o.SecretAccessKey = secretAccessKey
	}
}

// S3Archiver stores images in an S3 bucket.
type S3Archiver struct {
	api     putObjectAPI
	bucket  string
	prefix  string
	baseURL string
	now     func() time.Time
	newID   func() string
}

// New creates an S3Archiver. Unset options fall back to S3_BUCKET,
// S3_REGION, S3_PREFIX and S3_PUBLIC_BASE_URL.
func New(ctx context.Context, opts ...Option) (*S3Archiver, error) {
	cfg := Opts{
		Bucket:        os.Getenv("S3_BUCKET"),
		Region:        os.Getenv("S3_REGION"),
		Prefix:        os.Getenv("S3_PREFIX"),
		PublicBaseURL: os.Getenv("S3_PUBLIC_BASE_URL"),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Bucket == "" {
		return nil, ErrBucketNotSet
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{}
	if cfg.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	baseURL := cfg.PublicBaseURL
	if baseURL == "" {
		baseURL = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.Bucket, awsCfg.Region)
	}
	slog.Debug("archive.New: S3 archiver configured", "bucket", cfg.Bucket, "region", awsCfg.Region, "baseURL", baseURL)
	return newArchiver(s3.NewFromConfig(awsCfg), cfg.Bucket, cfg.Prefix, baseURL), nil
}

func newArchiver(api putObjectAPI, bucket, prefix, baseURL string) *S3Archiver {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &S3Archiver{
		api:     api,
		bucket:  bucket,
		prefix:  prefix,
		baseURL: strings.TrimRight(baseURL, "/"),
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

// Archive uploads img and returns its public URL.
func (a *S3Archiver) Archive(ctx context.Context, img *genai.Image) (string, error) {
	if img == nil || len(img.Data) == 0 {
		return "", ErrEmptyImage
	}
	key := a.objectKey(img.MIMEType)
	_, err := a.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(img.Data),
		ContentType: aws.String(img.MIMEType),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", key, err)
	}
	slog.Debug("S3Archiver.Archive: image uploaded", "key", key, "bytes", len(img.Data))
	return a.baseURL + "/" + key, nil
}

// objectKey builds <prefix>/<yyyy>/<mm>/<dd>/<uuid>.<ext>.
func (a *S3Archiver) objectKey(mimeType string) string {
	return fmt.Sprintf("%s/%s/%s.%s", a.prefix, a.now().UTC().Format("2006/01/02"), a.newID(), extension(mimeType))
}

func extension(mimeType string) string {
	switch strings.ToLower(mimeType) {
	case "image/jpeg", "image/jpg":
		return "jpg"
	case "image/webp":
		return "webp"
	case "image/gif":
		return "gif"
	default:
		return "png"
	}
}
