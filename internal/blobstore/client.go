package blobstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"
)

const (
	defaultSignedURLTTL = time.Hour
	defaultContentType  = "application/octet-stream"
)

var (
	errMissingCredentials = errors.New("credential cache is required")
	errMissingBucket      = errors.New("bucket is required")
)

// ClientConfig configures a Client.
type ClientConfig struct {
	Credentials   *CredentialCache
	Bucket        string
	PublicBaseURL string
	Logger        *zap.Logger
}

// Object describes one stored blob.
type Object struct {
	Key          string    `json:"key"`
	Reference    string    `json:"reference"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"lastModified"`
}

// Client uploads, deletes, lists and signs blobs in one bucket.
type Client struct {
	credentials   *CredentialCache
	bucket        string
	publicBaseURL string
	logger        *zap.Logger
}

// NewClient constructs a Client.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.Credentials == nil {
		return nil, errMissingCredentials
	}
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, errMissingBucket
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		credentials:   cfg.Credentials,
		bucket:        cfg.Bucket,
		publicBaseURL: cfg.PublicBaseURL,
		logger:        logger,
	}, nil
}

// Upload stores data under name and returns the canonical reference.
func (c *Client) Upload(ctx context.Context, name string, data []byte, contentType string) (string, error) {
	if err := ValidateName(name); err != nil {
		return "", fmt.Errorf("%w: %w", ErrUploadFailed, err)
	}
	if contentType == "" {
		contentType = defaultContentType
	}
	session, err := c.credentials.Session(ctx)
	if err != nil {
		return "", err
	}

	_, err = session.Objects.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(c.bucket),
		Key:           aws.String(name),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		c.observe(err)
		c.logger.Error("blob upload failed", zap.String("key", name), zap.Error(err))
		return "", fmt.Errorf("%w: %s: %w", ErrUploadFailed, name, err)
	}
	c.logger.Debug("blob uploaded", zap.String("key", name), zap.Int("bytes", len(data)))
	return c.Reference(name), nil
}

// Delete removes the object behind reference. ErrNotFound is returned when
// the object does not exist.
func (c *Client) Delete(ctx context.Context, reference string) error {
	key, err := c.KeyFromReference(reference)
	if err != nil {
		return err
	}
	session, err := c.credentials.Session(ctx)
	if err != nil {
		return err
	}

	if err := c.head(ctx, session, key); err != nil {
		if errors.Is(err, ErrNotFound) {
			return err
		}
		return fmt.Errorf("%w: %s: %w", ErrDeleteFailed, key, err)
	}
	_, err = session.Objects.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		c.observe(err)
		return fmt.Errorf("%w: %s: %w", ErrDeleteFailed, key, err)
	}
	c.logger.Debug("blob deleted", zap.String("key", key))
	return nil
}

// SignedURL returns a time-limited download URL for reference.
func (c *Client) SignedURL(ctx context.Context, reference string, ttl time.Duration) (string, error) {
	key, err := c.KeyFromReference(reference)
	if err != nil {
		return "", err
	}
	if ttl <= 0 {
		ttl = defaultSignedURLTTL
	}
	session, err := c.credentials.Session(ctx)
	if err != nil {
		return "", err
	}
	if session.Presigner == nil {
		return "", fmt.Errorf("%w: session cannot presign", ErrStorageUnavailable)
	}

	if err := c.head(ctx, session, key); err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", err
		}
		return "", fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}
	request, err := session.Presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	}, func(options *s3.PresignOptions) {
		options.Expires = ttl
	})
	if err != nil {
		return "", fmt.Errorf("%w: presign %s: %w", ErrStorageUnavailable, key, err)
	}
	return request.URL, nil
}

// Exists reports whether the object behind reference is present.
func (c *Client) Exists(ctx context.Context, reference string) (bool, error) {
	key, err := c.KeyFromReference(reference)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	session, err := c.credentials.Session(ctx)
	if err != nil {
		return false, err
	}
	err = c.head(ctx, session, key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}
	return true, nil
}

// List returns every object whose key starts with prefix.
func (c *Client) List(ctx context.Context, prefix string) ([]Object, error) {
	session, err := c.credentials.Session(ctx)
	if err != nil {
		return nil, err
	}

	input := &s3.ListObjectsV2Input{Bucket: aws.String(c.bucket)}
	if prefix != "" {
		input.Prefix = aws.String(prefix)
	}
	paginator := s3.NewListObjectsV2Paginator(session.Objects, input)

	objects := []Object{}
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			c.observe(err)
			return nil, fmt.Errorf("%w: list %q: %w", ErrStorageUnavailable, prefix, err)
		}
		for _, item := range page.Contents {
			key := aws.ToString(item.Key)
			objects = append(objects, Object{
				Key:          key,
				Reference:    c.Reference(key),
				Size:         aws.ToInt64(item.Size),
				LastModified: aws.ToTime(item.LastModified),
			})
		}
	}
	return objects, nil
}

func (c *Client) head(ctx context.Context, session *Session, key string) error {
	_, err := session.Objects.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return nil
	}
	if isNotFound(err) {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	c.observe(err)
	return err
}

// observe drops the cached session when the provider rejects its credentials.
func (c *Client) observe(err error) {
	if isAuthFailure(err) {
		c.logger.Warn("object store rejected session credentials", zap.Error(err))
		c.credentials.Invalidate()
	}
}
