package blobstore

import (
	"fmt"
	"path"
	"strings"
)

// ValidateName rejects object names that are empty, absolute or escape their prefix.
func ValidateName(name string) error {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidName)
	}
	if strings.HasPrefix(trimmed, "/") {
		return fmt.Errorf("%w: absolute name %q", ErrInvalidName, name)
	}
	for _, segment := range strings.Split(trimmed, "/") {
		if segment == ".." || segment == "." {
			return fmt.Errorf("%w: traversing name %q", ErrInvalidName, name)
		}
	}
	if path.Clean(trimmed) != trimmed {
		return fmt.Errorf("%w: unclean name %q", ErrInvalidName, name)
	}
	return nil
}

func (c *Client) referencePrefix() string {
	return fmt.Sprintf("%s/file/%s/", strings.TrimRight(c.publicBaseURL, "/"), c.bucket)
}

// Reference returns the canonical public URL stored in rows for an object key.
func (c *Client) Reference(key string) string {
	return c.referencePrefix() + key
}

// KeyFromReference resolves the object key behind a stored reference. Canonical
// URLs and bare keys are accepted; URLs pointing anywhere else yield ErrNotFound.
func (c *Client) KeyFromReference(reference string) (string, error) {
	trimmed := strings.TrimSpace(reference)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty reference", ErrNotFound)
	}
	if key, ok := strings.CutPrefix(trimmed, c.referencePrefix()); ok {
		if err := ValidateName(key); err != nil {
			return "", fmt.Errorf("%w: %w", ErrNotFound, err)
		}
		return key, nil
	}
	lowered := strings.ToLower(trimmed)
	if strings.HasPrefix(lowered, "http://") || strings.HasPrefix(lowered, "https://") {
		return "", fmt.Errorf("%w: foreign reference %q", ErrNotFound, reference)
	}
	key := strings.TrimPrefix(trimmed, "/")
	if err := ValidateName(key); err != nil {
		return "", fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	return key, nil
}
