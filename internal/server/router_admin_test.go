package server

import (
	"bytes"
	"context"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/MarcoPoloResearchLab/lectern/backend/internal/blobstore"
	"github.com/MarcoPoloResearchLab/lectern/backend/internal/blobstore/blobstoretest"
	"github.com/MarcoPoloResearchLab/lectern/backend/internal/catalog"
	"github.com/stretchr/testify/require"
)

type envelope[T any] struct {
	Success bool   `json:"success"`
	Data    T      `json:"data"`
	Error   string `json:"error"`
}

func TestAdminCreateContentUploadsBlobsAndPublishesRevalidation(t *testing.T) {
	h := newServerHarness(t)
	h.seedCategory(t, "philo", "Philosophie")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stream, cleanup := h.dispatcher.Subscribe(ctx)
	defer cleanup()

	body, contentType := multipartBody(t, map[string][]string{
		"title":       {"Episode 1"},
		"description": {"First episode"},
		"type":        {"video"},
		"category":    {"philo"},
		"publishedAt": {"2026-01-15"},
		"duration":    {"42:00"},
		"tags":        {`["stoa","ethics"]`},
	},
		multipartFile{field: "media", filename: "episode one.mp4", contentType: "video/mp4", data: []byte("video-bytes")},
		multipartFile{field: "thumbnail", filename: "cover.jpg", contentType: "image/jpeg", data: []byte("jpeg-bytes")},
	)
	response := h.serve(h.adminRequest(t, http.MethodPost, "/admin/contents", body, contentType))
	require.Equal(t, http.StatusCreated, response.Code, response.Body.String())

	created := decodeJSON[envelope[catalog.Content]](t, response)
	require.True(t, created.Success)
	require.Equal(t, "Episode 1", created.Data.Title)
	require.Equal(t, []string{"stoa", "ethics"}, created.Data.TagList())
	require.True(t, strings.HasPrefix(created.Data.MediaURL, testPublicBaseURL+"/file/"+testBucket+"/contents/"))
	require.True(t, strings.HasPrefix(created.Data.ThumbnailURL, testPublicBaseURL+"/file/"+testBucket+"/thumbnails/"))
	require.Len(t, h.objects.Keys(), 2)

	select {
	case message := <-stream:
		require.Contains(t, message.Paths, revalidationPathHome)
		require.Contains(t, message.Paths, revalidationPathContent)
		require.Contains(t, message.Paths, revalidationPathPages+"/"+created.Data.ID)
	default:
		t.Fatalf("expected a revalidation message after create")
	}
}

func TestAdminCreateContentRejectsMissingFields(t *testing.T) {
	h := newServerHarness(t)
	body, contentType := multipartBody(t, map[string][]string{"title": {"Only a title"}})

	response := h.serve(h.adminRequest(t, http.MethodPost, "/admin/contents", body, contentType))
	require.Equal(t, http.StatusBadRequest, response.Code)
	failure := decodeJSON[envelope[any]](t, response)
	require.False(t, failure.Success)
	require.NotEmpty(t, failure.Error)
	require.Empty(t, h.objects.Keys())
}

func TestAdminUpdateContentKeepsAbsentFields(t *testing.T) {
	h := newServerHarness(t)
	content := h.seedContent(t, catalog.NewContent{
		Title:       "Draft",
		Description: "Keep me",
		Type:        catalog.ContentTypeText,
		TextContent: "Body",
		PublishedAt: "2026-01-01",
		Tags:        []string{"a"},
	})

	form := url.Values{"title": {"Final"}, "tags": {""}}
	response := h.serve(h.adminRequest(t, http.MethodPut, "/admin/contents/"+content.ID, bytes.NewBufferString(form.Encode()), "application/x-www-form-urlencoded"))
	require.Equal(t, http.StatusOK, response.Code, response.Body.String())

	updated := decodeJSON[envelope[catalog.Content]](t, response).Data
	require.Equal(t, "Final", updated.Title)
	require.Equal(t, "Keep me", updated.Description)
	require.Equal(t, "Body", updated.TextContent)
	require.Empty(t, updated.TagList())

	response = h.serve(h.adminRequest(t, http.MethodPut, "/admin/contents/missing", bytes.NewBufferString(form.Encode()), "application/x-www-form-urlencoded"))
	require.Equal(t, http.StatusNotFound, response.Code)
}

func TestAdminDeleteContentRemovesBlobs(t *testing.T) {
	h := newServerHarness(t)
	h.objects.Put("contents/1-a.mp4", []byte("video"), "video/mp4")
	content := h.seedContent(t, catalog.NewContent{
		Title:       "Doomed",
		Type:        catalog.ContentTypeVideo,
		MediaURL:    h.blobs.Reference("contents/1-a.mp4"),
		PublishedAt: "2026-01-01",
	})

	response := h.serve(h.adminRequest(t, http.MethodDelete, "/admin/contents/"+content.ID, nil, ""))
	require.Equal(t, http.StatusOK, response.Code, response.Body.String())
	require.Empty(t, h.objects.Keys())

	response = h.serve(h.adminRequest(t, http.MethodDelete, "/admin/contents/"+content.ID, nil, ""))
	require.Equal(t, http.StatusNotFound, response.Code)
}

func TestAdminCategoryLifecycleMapsConflicts(t *testing.T) {
	h := newServerHarness(t)

	create := url.Values{"id": {"philo"}, "label": {"Philosophie"}, "icon": {"book"}}
	response := h.serve(h.adminRequest(t, http.MethodPost, "/admin/categories", bytes.NewBufferString(create.Encode()), "application/x-www-form-urlencoded"))
	require.Equal(t, http.StatusCreated, response.Code, response.Body.String())

	response = h.serve(h.adminRequest(t, http.MethodPost, "/admin/categories", bytes.NewBufferString(create.Encode()), "application/x-www-form-urlencoded"))
	require.Equal(t, http.StatusConflict, response.Code)

	invalid := url.Values{"id": {"Not A Slug"}, "label": {"Bad"}}
	response = h.serve(h.adminRequest(t, http.MethodPost, "/admin/categories", bytes.NewBufferString(invalid.Encode()), "application/x-www-form-urlencoded"))
	require.Equal(t, http.StatusBadRequest, response.Code)

	h.seedContent(t, catalog.NewContent{Title: "Stoicism", Type: catalog.ContentTypeText, Category: "philo", PublishedAt: "2026-01-01"})
	response = h.serve(h.adminRequest(t, http.MethodDelete, "/admin/categories/philo", nil, ""))
	require.Equal(t, http.StatusConflict, response.Code)

	rename := url.Values{"label": {"Philo"}}
	response = h.serve(h.adminRequest(t, http.MethodPut, "/admin/categories/philo", bytes.NewBufferString(rename.Encode()), "application/x-www-form-urlencoded"))
	require.Equal(t, http.StatusOK, response.Code, response.Body.String())
	require.Equal(t, "Philo", decodeJSON[envelope[catalog.Category]](t, response).Data.Label)

	response = h.serve(h.adminRequest(t, http.MethodDelete, "/admin/categories/unknown", nil, ""))
	require.Equal(t, http.StatusNotFound, response.Code)
}

func TestAdminSetContentViews(t *testing.T) {
	h := newServerHarness(t)
	content := h.seedContent(t, catalog.NewContent{Title: "Counted", Type: catalog.ContentTypeText, PublishedAt: "2026-01-01"})

	response := h.serve(h.adminRequest(t, http.MethodPut, "/admin/contents/"+content.ID+"/views", bytes.NewBufferString(`{"views":42}`), "application/json"))
	require.Equal(t, http.StatusOK, response.Code, response.Body.String())
	require.Equal(t, int64(42), decodeJSON[envelope[viewsResponsePayload]](t, response).Data.Views)

	response = h.serve(h.adminRequest(t, http.MethodPut, "/admin/contents/"+content.ID+"/views", bytes.NewBufferString(`{"views":-1}`), "application/json"))
	require.Equal(t, http.StatusBadRequest, response.Code)

	response = h.serve(h.adminRequest(t, http.MethodPut, "/admin/contents/"+content.ID+"/views", bytes.NewBufferString(`{}`), "application/json"))
	require.Equal(t, http.StatusBadRequest, response.Code)
}

func TestAdminUpdateProfileReplacesImage(t *testing.T) {
	h := newServerHarness(t)
	h.objects.Put("profiles/1-old.png", []byte("old"), "image/png")
	h.seedProfile(t, h.blobs.Reference("profiles/1-old.png"))

	body, contentType := multipartBody(t, map[string][]string{
		"bio":        {"Updated bio"},
		"formations": {"Sorbonne\n\nENS"},
		"twitter":    {"https://twitter.com/ada"},
	}, multipartFile{field: "image", filename: "new.png", contentType: "image/png", data: []byte("new")})
	response := h.serve(h.adminRequest(t, http.MethodPut, "/admin/profile", body, contentType))
	require.Equal(t, http.StatusOK, response.Code, response.Body.String())

	profile := decodeJSON[envelope[catalog.Profile]](t, response).Data
	require.Equal(t, "Updated bio", profile.Bio)
	require.Equal(t, "Ada", profile.FirstName)
	require.Equal(t, []string{"Sorbonne", "ENS"}, []string(profile.Formations))
	require.Equal(t, "https://twitter.com/ada", profile.SocialLinks.Data().Twitter)
	require.NotEqual(t, h.blobs.Reference("profiles/1-old.png"), profile.ImageURL)
	require.Contains(t, h.objects.Deleted(), "profiles/1-old.png")

	blank, blankType := multipartBody(t, map[string][]string{"firstName": {"  "}})
	response = h.serve(h.adminRequest(t, http.MethodPut, "/admin/profile", blank, blankType))
	require.Equal(t, http.StatusBadRequest, response.Code)
}

func TestAdminDashboardAndBlobListing(t *testing.T) {
	h := newServerHarness(t)
	h.seedCategory(t, "philo", "Philosophie")
	h.objects.Put("contents/1-a.mp4", []byte("video"), "video/mp4")
	h.objects.Put("thumbnails/1-a.jpg", []byte("jpeg"), "image/jpeg")
	content := h.seedContent(t, catalog.NewContent{Title: "Watched", Type: catalog.ContentTypeVideo, Category: "philo", PublishedAt: "2026-01-01"})
	_, err := h.store.SetContentViews(context.Background(), content.ID, 7)
	require.NoError(t, err)

	response := h.serve(h.adminRequest(t, http.MethodGet, "/admin/dashboard", nil, ""))
	require.Equal(t, http.StatusOK, response.Code, response.Body.String())
	dashboard := decodeJSON[envelope[dashboardPayload]](t, response).Data
	require.Equal(t, int64(1), dashboard.Stats.TotalContents)
	require.Equal(t, int64(7), dashboard.TotalViews)
	require.Len(t, dashboard.TopContents, 1)
	require.Equal(t, int64(7), dashboard.TopContents[0].Views)
	require.Len(t, dashboard.Categories, 1)

	response = h.serve(h.adminRequest(t, http.MethodGet, "/admin/blobs?prefix=contents/", nil, ""))
	require.Equal(t, http.StatusOK, response.Code, response.Body.String())
	objects := decodeJSON[envelope[[]blobstore.Object]](t, response).Data
	require.Len(t, objects, 1)
	require.Equal(t, "contents/1-a.mp4", objects[0].Key)

	h.objects.Fail(blobstoretest.OperationList, "", blobstore.ErrStorageUnavailable)
	response = h.serve(h.adminRequest(t, http.MethodGet, "/admin/blobs", nil, ""))
	require.Equal(t, http.StatusBadGateway, response.Code)
}
