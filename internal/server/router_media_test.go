package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MarcoPoloResearchLab/lectern/backend/internal/catalog"
	"github.com/stretchr/testify/require"
)

func TestProfileImageServesETagAndNotModified(t *testing.T) {
	h := newServerHarness(t)
	h.objects.Put("profiles/1-portrait.png", []byte("png-bytes"), "image/png")
	h.seedProfile(t, h.blobs.Reference("profiles/1-portrait.png"))

	response := h.serve(httptest.NewRequest(http.MethodGet, "/media/profile", http.NoBody))
	require.Equal(t, http.StatusOK, response.Code)
	require.Equal(t, "png-bytes", response.Body.String())
	require.Equal(t, "image/png", response.Header().Get("Content-Type"))
	require.Equal(t, imageCacheControl, response.Header().Get("Cache-Control"))
	etag := response.Header().Get("ETag")
	require.NotEmpty(t, etag)

	conditional := httptest.NewRequest(http.MethodGet, "/media/profile", http.NoBody)
	conditional.Header.Set("If-None-Match", etag)
	response = h.serve(conditional)
	require.Equal(t, http.StatusNotModified, response.Code)
	require.Empty(t, response.Body.String())

	stale := httptest.NewRequest(http.MethodGet, "/media/profile", http.NoBody)
	stale.Header.Set("If-None-Match", `"something-else"`)
	response = h.serve(stale)
	require.Equal(t, http.StatusOK, response.Code)
}

func TestMediaFailuresCollapseToBareNotFound(t *testing.T) {
	h := newServerHarness(t)
	missingBlob := h.seedContent(t, catalog.NewContent{
		Title:        "Ghost",
		Type:         catalog.ContentTypeVideo,
		MediaURL:     h.blobs.Reference("contents/1-gone.mp4"),
		ThumbnailURL: h.blobs.Reference("thumbnails/1-gone.jpg"),
		PublishedAt:  "2026-01-01",
	})

	paths := []string{
		"/media/profile",
		"/media/thumbnail/unknown",
		"/media/video/unknown",
		"/media/thumbnail/" + missingBlob.ID,
		"/media/video/" + missingBlob.ID,
	}
	for _, path := range paths {
		response := h.serve(httptest.NewRequest(http.MethodGet, path, http.NoBody))
		require.Equal(t, http.StatusNotFound, response.Code, path)
		require.Empty(t, response.Body.String(), path)
	}
}

func TestVideoSupportsByteRanges(t *testing.T) {
	h := newServerHarness(t)
	h.objects.Put("contents/1-episode.mp4", []byte("0123456789"), "")
	content := h.seedContent(t, catalog.NewContent{
		Title:       "Episode",
		Type:        catalog.ContentTypeVideo,
		MediaURL:    h.blobs.Reference("contents/1-episode.mp4"),
		PublishedAt: "2026-01-01",
	})

	response := h.serve(httptest.NewRequest(http.MethodGet, "/media/video/"+content.ID, http.NoBody))
	require.Equal(t, http.StatusOK, response.Code)
	require.Equal(t, "0123456789", response.Body.String())
	require.Equal(t, "video/mp4", response.Header().Get("Content-Type"))
	require.Equal(t, "bytes", response.Header().Get("Accept-Ranges"))
	require.Equal(t, videoCacheControl, response.Header().Get("Cache-Control"))

	ranged := httptest.NewRequest(http.MethodGet, "/media/video/"+content.ID, http.NoBody)
	ranged.Header.Set("Range", "bytes=2-5")
	response = h.serve(ranged)
	require.Equal(t, http.StatusPartialContent, response.Code)
	require.Equal(t, "2345", response.Body.String())
	require.Equal(t, "bytes 2-5/10", response.Header().Get("Content-Range"))
}

func TestThumbnailServesStoredImage(t *testing.T) {
	h := newServerHarness(t)
	h.objects.Put("thumbnails/1-cover.jpg", []byte("jpeg-bytes"), "image/jpeg")
	content := h.seedContent(t, catalog.NewContent{
		Title:        "Covered",
		Type:         catalog.ContentTypeText,
		ThumbnailURL: h.blobs.Reference("thumbnails/1-cover.jpg"),
		PublishedAt:  "2026-01-01",
	})

	response := h.serve(httptest.NewRequest(http.MethodGet, "/media/thumbnail/"+content.ID, http.NoBody))
	require.Equal(t, http.StatusOK, response.Code)
	require.Equal(t, "jpeg-bytes", response.Body.String())
	require.Equal(t, "image/jpeg", response.Header().Get("Content-Type"))
}
