package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/lectern/backend/internal/catalog"
	"go.uber.org/zap"
)

const (
	defaultSignedURLTTL = time.Hour
	defaultFetchTimeout = 30 * time.Second
	defaultMaxBytes     = 256 << 20

	imageContentType = "image/jpeg"
	videoContentType = "video/mp4"
	audioContentType = "audio/mpeg"
)

var (
	// ErrNotFound is returned for every resolution failure.
	ErrNotFound = errors.New("media: not found")

	errMissingSigner = errors.New("signer is required")
	errMissingSource = errors.New("source is required")
	errEmptyRef      = errors.New("empty blob reference")
	errTooLarge      = errors.New("payload exceeds size limit")
)

// Signer issues time-limited download URLs for stored blobs.
type Signer interface {
	SignedURL(ctx context.Context, reference string, ttl time.Duration) (string, error)
}

// Source loads the rows whose blob references are resolved.
type Source interface {
	GetProfile(ctx context.Context) (catalog.Profile, error)
	GetContent(ctx context.Context, id string) (catalog.Content, error)
}

// ResolverConfig configures a Resolver.
type ResolverConfig struct {
	Signer       Signer
	Source       Source
	HTTPClient   *http.Client
	SignedURLTTL time.Duration
	FetchTimeout time.Duration
	MaxBytes     int64
	Logger       *zap.Logger
}

// Payload is a fetched blob.
type Payload struct {
	Data        []byte
	ContentType string
}

// Resolver turns profile and content rows into blob bytes.
type Resolver struct {
	signer       Signer
	source       Source
	httpClient   *http.Client
	signedURLTTL time.Duration
	fetchTimeout time.Duration
	maxBytes     int64
	logger       *zap.Logger
}

// NewResolver constructs a Resolver.
func NewResolver(cfg ResolverConfig) (*Resolver, error) {
	if cfg.Signer == nil {
		return nil, errMissingSigner
	}
	if cfg.Source == nil {
		return nil, errMissingSource
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	ttl := cfg.SignedURLTTL
	if ttl <= 0 {
		ttl = defaultSignedURLTTL
	}
	timeout := cfg.FetchTimeout
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	maxBytes := cfg.MaxBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxBytes
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		signer:       cfg.Signer,
		source:       cfg.Source,
		httpClient:   httpClient,
		signedURLTTL: ttl,
		fetchTimeout: timeout,
		maxBytes:     maxBytes,
		logger:       logger,
	}, nil
}

// ProfileImage returns the profile picture.
func (r *Resolver) ProfileImage(ctx context.Context) (Payload, error) {
	profile, err := r.source.GetProfile(ctx)
	if err != nil {
		return r.notFound("profile_image", "", err)
	}
	return r.fetch(ctx, "profile_image", profile.ImageURL, imageContentType)
}

// ContentThumbnail returns the thumbnail of a content.
func (r *Resolver) ContentThumbnail(ctx context.Context, contentID string) (Payload, error) {
	content, err := r.source.GetContent(ctx, contentID)
	if err != nil {
		return r.notFound("content_thumbnail", contentID, err)
	}
	return r.fetch(ctx, "content_thumbnail", content.ThumbnailURL, imageContentType)
}

// ContentMedia returns the video or audio file of a content.
func (r *Resolver) ContentMedia(ctx context.Context, contentID string) (Payload, error) {
	content, err := r.source.GetContent(ctx, contentID)
	if err != nil {
		return r.notFound("content_media", contentID, err)
	}
	fallback := videoContentType
	if content.Type == catalog.ContentTypeAudio {
		fallback = audioContentType
	}
	return r.fetch(ctx, "content_media", content.MediaURL, fallback)
}

// SignedURL returns a download URL for reference, or ErrNotFound.
func (r *Resolver) SignedURL(ctx context.Context, reference string) (string, error) {
	if strings.TrimSpace(reference) == "" {
		_, err := r.notFound("signed_url", reference, errEmptyRef)
		return "", err
	}
	signed, err := r.signer.SignedURL(ctx, reference, r.signedURLTTL)
	if err != nil {
		_, err = r.notFound("signed_url", reference, err)
		return "", err
	}
	return signed, nil
}

func (r *Resolver) fetch(ctx context.Context, kind, reference, fallbackType string) (Payload, error) {
	signed, err := r.SignedURL(ctx, reference)
	if err != nil {
		return Payload{}, err
	}

	fetchContext, cancel := context.WithTimeout(ctx, r.fetchTimeout)
	defer cancel()
	request, err := http.NewRequestWithContext(fetchContext, http.MethodGet, signed, nil)
	if err != nil {
		return r.notFound(kind, reference, err)
	}
	response, err := r.httpClient.Do(request)
	if err != nil {
		return r.notFound(kind, reference, err)
	}
	defer response.Body.Close()

	if response.StatusCode < 200 || response.StatusCode > 299 {
		return r.notFound(kind, reference, fmt.Errorf("unexpected status %d", response.StatusCode))
	}
	data, err := io.ReadAll(io.LimitReader(response.Body, r.maxBytes+1))
	if err != nil {
		return r.notFound(kind, reference, err)
	}
	if int64(len(data)) > r.maxBytes {
		return r.notFound(kind, reference, errTooLarge)
	}
	return Payload{Data: data, ContentType: resolveContentType(response.Header.Get("Content-Type"), fallbackType)}, nil
}

func (r *Resolver) notFound(kind, reference string, cause error) (Payload, error) {
	r.logger.Warn("media resolution failed",
		zap.String("kind", kind),
		zap.String("reference", reference),
		zap.Error(cause),
	)
	return Payload{}, ErrNotFound
}

func resolveContentType(header, fallback string) string {
	mediaType, _, err := mime.ParseMediaType(header)
	if err != nil || mediaType == "" || mediaType == "application/octet-stream" || mediaType == "binary/octet-stream" {
		return fallback
	}
	return header
}
