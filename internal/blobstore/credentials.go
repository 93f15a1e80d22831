package blobstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"
)

const defaultSessionTTL = 23 * time.Hour

var errMissingAuthorizer = errors.New("authorizer is required")

// ObjectAPI is the subset of the S3 client used by Client.
type ObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// Presigner issues time-limited download URLs.
type Presigner interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// Session is an authorized handle on the object store.
type Session struct {
	Objects   ObjectAPI
	Presigner Presigner
	IssuedAt  time.Time
}

// Authorizer performs the provider handshake and returns a fresh Session.
type Authorizer func(ctx context.Context) (*Session, error)

// CredentialCacheConfig configures a CredentialCache.
type CredentialCacheConfig struct {
	Authorizer Authorizer
	TTL        time.Duration
	Clock      func() time.Time
	Logger     *zap.Logger
}

// CredentialCache holds one authorized Session and renews it once the TTL
// elapses or after Invalidate. Concurrent callers share a single handshake.
type CredentialCache struct {
	mu        sync.Mutex
	authorize Authorizer
	ttl       time.Duration
	clock     func() time.Time
	logger    *zap.Logger
	current   *Session
}

// NewCredentialCache constructs a CredentialCache.
func NewCredentialCache(cfg CredentialCacheConfig) (*CredentialCache, error) {
	if cfg.Authorizer == nil {
		return nil, errMissingAuthorizer
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CredentialCache{
		authorize: cfg.Authorizer,
		ttl:       ttl,
		clock:     clock,
		logger:    logger,
	}, nil
}

// Session returns the cached session, authorizing when none is valid.
func (c *CredentialCache) Session(ctx context.Context) (*Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock()
	if c.current != nil && now.Sub(c.current.IssuedAt) < c.ttl {
		return c.current, nil
	}

	session, err := c.authorize(ctx)
	if err != nil {
		c.logger.Error("object store authorization failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}
	if session == nil || session.Objects == nil {
		return nil, fmt.Errorf("%w: authorizer returned no session", ErrStorageUnavailable)
	}
	if session.IssuedAt.IsZero() {
		session.IssuedAt = now
	}
	c.current = session
	c.logger.Debug("object store session authorized", zap.Time("issued_at", session.IssuedAt))
	return session, nil
}

// Invalidate drops the cached session so the next call re-authorizes.
func (c *CredentialCache) Invalidate() {
	c.mu.Lock()
	c.current = nil
	c.mu.Unlock()
}

// S3Settings describes how to reach an S3-compatible endpoint.
type S3Settings struct {
	Endpoint       string
	Region         string
	Bucket         string
	KeyID          string
	ApplicationKey string
}

// NewS3Authorizer returns an Authorizer that builds a path-style S3 client
// with static credentials and verifies them against the bucket.
func NewS3Authorizer(settings S3Settings) Authorizer {
	return func(ctx context.Context) (*Session, error) {
		awsConfig, err := config.LoadDefaultConfig(ctx,
			config.WithRegion(settings.Region),
			config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(settings.KeyID, settings.ApplicationKey, "")),
		)
		if err != nil {
			return nil, fmt.Errorf("load sdk config: %w", err)
		}

		client := s3.NewFromConfig(awsConfig, func(options *s3.Options) {
			if settings.Endpoint != "" {
				options.BaseEndpoint = aws.String(settings.Endpoint)
			}
			options.UsePathStyle = true
		})
		if _, err := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(settings.Bucket)}); err != nil {
			return nil, fmt.Errorf("verify bucket %s: %w", settings.Bucket, err)
		}
		return &Session{
			Objects:   client,
			Presigner: s3.NewPresignClient(client),
			IssuedAt:  time.Now(),
		}, nil
	}
}
