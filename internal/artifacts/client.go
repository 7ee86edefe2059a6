// Package artifacts stores run outputs (reports, failure screenshots) in an
// S3-compatible bucket, keyed by run.
package artifacts

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/kuitang/crossbrowser/internal/errs"
)

// ErrObjectNotFound is returned when a requested object does not exist.
var ErrObjectNotFound = errors.New("artifacts: object not found")

// Store is what producers of artifacts need.
type Store interface {
	PutObject(ctx context.Context, key string, content []byte, contentType string) error
	PublicURL(key string) string
}

// Client wraps an S3 client with bucket and URL configuration.
type Client struct {
	s3Client   *s3.Client
	bucketName string
	publicURL  string
}

var _ Store = (*Client)(nil)

// Config holds the configuration for creating a Client.
type Config struct {
	// Endpoint is the S3 endpoint URL. Leave empty to use AWS S3.
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	// PublicURL is the base URL under which stored objects are reachable.
	PublicURL string
	// UsePathStyle enables path-style addressing (S3-compatible services, gofakes3).
	UsePathStyle bool
}

// New creates a Client with the given configuration.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.BucketName) == "" {
		return nil, errs.New(errs.Config, "artifacts: bucket name is required")
	}

	var opts []func(*config.LoadOptions) error
	opts = append(opts, config.WithRegion(cfg.Region))
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	sdkConfig, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, errs.Wrap(errs.Artifact, "artifacts: load AWS config", err)
	}

	s3Client := s3.NewFromConfig(sdkConfig, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	return NewFromS3Client(s3Client, cfg.BucketName, cfg.PublicURL), nil
}

// NewFromS3Client creates a Client from an existing S3 client.
func NewFromS3Client(s3Client *s3.Client, bucketName, publicURL string) *Client {
	return &Client{
		s3Client:   s3Client,
		bucketName: bucketName,
		publicURL:  strings.TrimSuffix(publicURL, "/"),
	}
}

// RunKey returns the object key for name under run runID.
func RunKey(runID, name string) string {
	return path.Join("runs", runID, strings.TrimPrefix(name, "/"))
}

// PutObject stores content under key with the given content type.
func (c *Client) PutObject(ctx context.Context, key string, content []byte, contentType string) error {
	_, err := c.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.bucketName),
		Key:         aws.String(key),
		Body:        bytes.NewReader(content),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return errs.Wrap(errs.Artifact, "artifacts: put "+key, err)
	}
	return nil
}

// GetObject retrieves the content stored under key.
// Returns ErrObjectNotFound if the key does not exist.
func (c *Client) GetObject(ctx context.Context, key string) ([]byte, error) {
	result, err := c.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucketName),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, ErrObjectNotFound
		}
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return nil, ErrObjectNotFound
		}
		return nil, errs.Wrap(errs.Artifact, "artifacts: get "+key, err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, errs.Wrap(errs.Artifact, "artifacts: read "+key, err)
	}
	return data, nil
}

// DeleteObject removes the object at key. Deleting a missing key is not an error.
func (c *Client) DeleteObject(ctx context.Context, key string) error {
	_, err := c.s3Client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(c.bucketName),
		Key:    aws.String(key),
	})
	if err != nil {
		return errs.Wrap(errs.Artifact, "artifacts: delete "+key, err)
	}
	return nil
}

// PublicURL returns the URL for key under the configured public base.
func (c *Client) PublicURL(key string) string {
	return c.publicURL + "/" + strings.TrimPrefix(key, "/")
}

// BucketName returns the configured bucket name.
func (c *Client) BucketName() string {
	return c.bucketName
}
