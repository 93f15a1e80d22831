package publishing

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync/atomic"
	"time"

	"github.com/MarcoPoloResearchLab/lectern/backend/internal/blobstore"
	"go.uber.org/zap"
)

const (
	prefixContents   = "contents"
	prefixThumbnails = "thumbnails"
	prefixProfiles   = "profiles"

	maxFilenameLength = 120
	fallbackFilename  = "file"
)

// BlobStore uploads and deletes blobs by canonical reference.
type BlobStore interface {
	Upload(ctx context.Context, name string, data []byte, contentType string) (string, error)
	Delete(ctx context.Context, reference string) error
}

// blobName builds "{prefix}/{unix_ms}-{sanitized filename}".
func blobName(prefix string, now time.Time, filename string) string {
	return fmt.Sprintf("%s/%d-%s", prefix, now.UTC().UnixMilli(), sanitizeFilename(filename))
}

func sanitizeFilename(filename string) string {
	base := path.Base(strings.ReplaceAll(strings.TrimSpace(filename), `\`, "/"))
	var builder strings.Builder
	lastDash := false
	for _, r := range base {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_':
			builder.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				builder.WriteRune('-')
				lastDash = true
			}
		}
	}
	cleaned := strings.Trim(builder.String(), "-.")
	if cleaned == "" {
		return fallbackFilename
	}
	if len(cleaned) > maxFilenameLength {
		cleaned = cleaned[len(cleaned)-maxFilenameLength:]
	}
	return cleaned
}

// blobJanitor uploads blobs for one coordinator call and undoes or finishes
// the blob side once the row outcome is known.
type blobJanitor struct {
	blobs     BlobStore
	logger    *zap.Logger
	failures  *atomic.Int64
	operation string
	uploaded  []string
}

func (j *blobJanitor) upload(ctx context.Context, prefix string, now time.Time, part *FilePart) (string, error) {
	reference, err := j.blobs.Upload(ctx, blobName(prefix, now, part.Filename), part.Data, part.ContentType)
	if err != nil {
		return "", err
	}
	j.uploaded = append(j.uploaded, reference)
	return reference, nil
}

// compensate deletes every blob uploaded during the call.
func (j *blobJanitor) compensate(ctx context.Context) {
	for _, reference := range j.uploaded {
		j.discard(ctx, reference, "compensation")
	}
	j.uploaded = nil
}

// discard deletes a blob that no row references any more. Failures are
// logged and counted, never returned.
func (j *blobJanitor) discard(ctx context.Context, reference, reason string) {
	if !isRemoteReference(reference) {
		return
	}
	err := j.blobs.Delete(ctx, reference)
	if err == nil {
		return
	}
	if j.failures != nil {
		j.failures.Add(1)
	}
	loggerOrDefault(j.logger).Warn("blob cleanup failed",
		zap.String("operation", j.operation),
		zap.String("reason", reason),
		zap.String("reference", reference),
		zap.Bool("already_missing", errors.Is(err, blobstore.ErrNotFound)),
		zap.Error(err),
	)
}
