package storage

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Config holds configuration for S3-compatible storage
type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string // Optional: for Yandex Object Storage, R2, etc.
	AccessKeyID     string
	SecretAccessKey string
}

// S3Uploader uploads listing photos to S3-compatible storage
type S3Uploader struct {
	client *s3.Client
	bucket string
	config S3Config
}

// NewS3Uploader creates a new S3 uploader
func NewS3Uploader(ctx context.Context, cfg S3Config) (*S3Uploader, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	var client *s3.Client
	if cfg.Endpoint != "" {
		client = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	} else {
		client = s3.NewFromConfig(awsCfg)
	}

	return &S3Uploader{
		client: client,
		bucket: cfg.Bucket,
		config: cfg,
	}, nil
}

// Upload uploads data to S3 with the given key
func (u *S3Uploader) Upload(ctx context.Context, key string, data io.Reader, contentType string) error {
	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(key),
		Body:        data,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("put object: %w", err)
	}
	return nil
}

// PublicURL returns the public URL for an S3 key
func (u *S3Uploader) PublicURL(key string) string {
	if u.config.Endpoint != "" && strings.Contains(u.config.Endpoint, "storage.yandexcloud.net") {
		// Yandex Object Storage: https://{bucket}.storage.yandexcloud.net/{key}
		host := strings.TrimPrefix(u.config.Endpoint, "https://")
		return fmt.Sprintf("https://%s.%s/%s", u.bucket, host, key)
	}
	// AWS S3: https://{bucket}.s3.{region}.amazonaws.com/{key}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", u.bucket, u.config.Region, key)
}

// PublicPrefix is the URL prefix shared by every mirrored object; listings
// with images outside it still need mirroring.
func (u *S3Uploader) PublicPrefix() string {
	return u.PublicURL("")
}
