// Package objectstore publishes pipeline outputs to S3-compatible storage.
//
// Uploads are best-effort by contract: callers fall back to the local file
// path when an upload fails, so storage unavailability degrades the published
// URLs rather than failing the task.
package objectstore

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"mediapress/internal/config"
)

// Uploader pushes a local file to object storage under the given key and
// returns a publicly reachable URL.
type Uploader interface {
	Upload(ctx context.Context, localPath, key string) (string, error)
}

// Client is an S3-backed Uploader.
type Client struct {
	api           *s3.Client
	bucket        string
	publicBaseURL string
}

// New builds an S3 client from configuration. A nil client is returned when
// storage is disabled; callers treat that the same as a failing upload.
func New(ctx context.Context, cfg *config.Config) (*Client, error) {
	if cfg == nil || !cfg.Storage.Enabled {
		return nil, nil
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Storage.Region),
	}
	if cfg.Storage.AccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.Storage.AccessKey, cfg.Storage.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load storage config: %w", err)
	}

	endpoint := strings.TrimSpace(cfg.Storage.Endpoint)
	api := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})

	base := strings.TrimRight(cfg.Storage.PublicBaseURL, "/")
	if base == "" {
		base = strings.TrimRight(endpoint, "/")
	}

	return &Client{
		api:           api,
		bucket:        cfg.Storage.Bucket,
		publicBaseURL: base,
	}, nil
}

// Upload pushes the file at localPath to the configured bucket under key and
// returns its public URL.
func (c *Client) Upload(ctx context.Context, localPath, key string) (string, error) {
	if c == nil {
		return "", fmt.Errorf("object storage disabled")
	}
	file, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", localPath, err)
	}
	defer file.Close()

	_, err = c.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
		Body:   file,
	})
	if err != nil {
		return "", fmt.Errorf("put object %s: %w", key, err)
	}
	return fmt.Sprintf("%s/%s/%s", c.publicBaseURL, c.bucket, key), nil
}
