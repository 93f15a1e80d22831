package media

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/lectern/backend/internal/blobstore"
	"github.com/MarcoPoloResearchLab/lectern/backend/internal/blobstore/blobstoretest"
	"github.com/MarcoPoloResearchLab/lectern/backend/internal/catalog"
)

type stubSource struct {
	profile  catalog.Profile
	contents map[string]catalog.Content
}

func (s *stubSource) GetProfile(context.Context) (catalog.Profile, error) {
	if s.profile.ID == "" {
		return catalog.Profile{}, catalog.ErrNotFound
	}
	return s.profile, nil
}

func (s *stubSource) GetContent(_ context.Context, id string) (catalog.Content, error) {
	content, ok := s.contents[id]
	if !ok {
		return catalog.Content{}, catalog.ErrNotFound
	}
	return content, nil
}

type failingSigner struct{}

func (failingSigner) SignedURL(context.Context, string, time.Duration) (string, error) {
	return "", blobstore.ErrStorageUnavailable
}

func newBucketClient(t *testing.T) (*blobstoretest.Objects, *blobstore.Client) {
	t.Helper()
	objects := blobstoretest.NewObjects()
	server := httptest.NewServer(objects)
	t.Cleanup(server.Close)
	objects.SetSignedBaseURL(server.URL)

	cache, err := blobstore.NewCredentialCache(blobstore.CredentialCacheConfig{Authorizer: objects.Authorizer()})
	if err != nil {
		t.Fatalf("unexpected cache error: %v", err)
	}
	client, err := blobstore.NewClient(blobstore.ClientConfig{Credentials: cache, Bucket: "media", PublicBaseURL: "https://f000.backblazeb2.com"})
	if err != nil {
		t.Fatalf("unexpected client error: %v", err)
	}
	return objects, client
}

func newTestResolver(t *testing.T, signer Signer, source Source) *Resolver {
	t.Helper()
	resolver, err := NewResolver(ResolverConfig{Signer: signer, Source: source, FetchTimeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("unexpected resolver error: %v", err)
	}
	return resolver
}

func TestProfileImageFetchesSignedBlob(t *testing.T) {
	objects, client := newBucketClient(t)
	objects.Put("profiles/1-me.png", []byte("png-bytes"), "image/png")
	source := &stubSource{profile: catalog.Profile{ID: "main", ImageURL: client.Reference("profiles/1-me.png")}}
	resolver := newTestResolver(t, client, source)

	payload, err := resolver.ProfileImage(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(payload.Data) != "png-bytes" {
		t.Fatalf("unexpected payload %q", payload.Data)
	}
	if payload.ContentType != "image/png" {
		t.Fatalf("expected stored content type, got %q", payload.ContentType)
	}
}

func TestContentMediaFallsBackToKindContentType(t *testing.T) {
	objects, client := newBucketClient(t)
	objects.Put("contents/1-a.mp3", []byte("audio"), "")
	source := &stubSource{contents: map[string]catalog.Content{
		"a": {ID: "a", Type: catalog.ContentTypeAudio, MediaURL: client.Reference("contents/1-a.mp3")},
	}}
	resolver := newTestResolver(t, client, source)

	payload, err := resolver.ContentMedia(context.Background(), "a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if payload.ContentType != "audio/mpeg" {
		t.Fatalf("expected audio fallback, got %q", payload.ContentType)
	}
}

func TestResolverCollapsesFailuresToNotFound(t *testing.T) {
	objects, client := newBucketClient(t)
	objects.Put("thumbnails/1-ok.jpg", []byte("jpg"), "image/jpeg")
	source := &stubSource{contents: map[string]catalog.Content{
		"no-thumbnail": {ID: "no-thumbnail", Type: catalog.ContentTypeText},
		"missing-blob": {ID: "missing-blob", ThumbnailURL: client.Reference("thumbnails/gone.jpg")},
		"foreign":      {ID: "foreign", ThumbnailURL: "https://elsewhere.test/a.jpg"},
	}}
	resolver := newTestResolver(t, client, source)

	for _, id := range []string{"unknown", "no-thumbnail", "missing-blob", "foreign"} {
		if _, err := resolver.ContentThumbnail(context.Background(), id); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected not found for %s, got %v", id, err)
		}
	}
	if _, err := resolver.ProfileImage(context.Background()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found for missing profile, got %v", err)
	}
}

func TestResolverHidesSignerErrors(t *testing.T) {
	source := &stubSource{profile: catalog.Profile{ID: "main", ImageURL: "profiles/me.jpg"}}
	resolver := newTestResolver(t, failingSigner{}, source)

	_, err := resolver.ProfileImage(context.Background())
	if !errors.Is(err, ErrNotFound) || errors.Is(err, blobstore.ErrStorageUnavailable) {
		t.Fatalf("expected bare not found, got %v", err)
	}
}

func TestResolverRejectsNonSuccessStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, _ *http.Request) {
		writer.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()
	signer := staticSigner(server.URL + "/blob")
	source := &stubSource{profile: catalog.Profile{ID: "main", ImageURL: "profiles/me.jpg"}}
	resolver := newTestResolver(t, signer, source)

	if _, err := resolver.ProfileImage(context.Background()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

type staticSigner string

func (s staticSigner) SignedURL(context.Context, string, time.Duration) (string, error) {
	return string(s), nil
}
