package server

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/lectern/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/lectern/backend/internal/blobstore"
	"github.com/MarcoPoloResearchLab/lectern/backend/internal/blobstore/blobstoretest"
	"github.com/MarcoPoloResearchLab/lectern/backend/internal/catalog"
	"github.com/MarcoPoloResearchLab/lectern/backend/internal/media"
	"github.com/MarcoPoloResearchLab/lectern/backend/internal/publishing"
	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	testSigningSecret = "lectern-test-secret"
	testCookieName    = "app_session"
	testBucket        = "lectern"
	testPublicBaseURL = "https://f000.backblazeb2.com"
)

type serverHarness struct {
	server     *httptest.Server
	handler    http.Handler
	store      *catalog.Store
	objects    *blobstoretest.Objects
	blobs      *blobstore.Client
	dispatcher *RevalidationDispatcher
}

func newServerHarness(t *testing.T) *serverHarness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	database, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "server.db")), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := database.DB()
	if err != nil {
		t.Fatalf("failed to access sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := database.AutoMigrate(catalog.Models()...); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	current := time.Now().UTC().Add(-time.Hour)
	clock := func() time.Time {
		current = current.Add(time.Millisecond)
		return current
	}
	store, err := catalog.NewStore(catalog.StoreConfig{Database: database, Clock: clock})
	if err != nil {
		t.Fatalf("failed to build store: %v", err)
	}

	objects := blobstoretest.NewObjects()
	downloads := httptest.NewServer(objects)
	t.Cleanup(downloads.Close)
	objects.SetSignedBaseURL(downloads.URL)

	cache, err := blobstore.NewCredentialCache(blobstore.CredentialCacheConfig{Authorizer: objects.Authorizer()})
	if err != nil {
		t.Fatalf("failed to build credential cache: %v", err)
	}
	blobs, err := blobstore.NewClient(blobstore.ClientConfig{Credentials: cache, Bucket: testBucket, PublicBaseURL: testPublicBaseURL})
	if err != nil {
		t.Fatalf("failed to build blob client: %v", err)
	}

	contents, err := publishing.NewContentCoordinator(publishing.ContentCoordinatorConfig{Blobs: blobs, Contents: store, Clock: clock})
	if err != nil {
		t.Fatalf("failed to build content coordinator: %v", err)
	}
	profiles, err := publishing.NewProfileCoordinator(publishing.ProfileCoordinatorConfig{Blobs: blobs, Profiles: store, Clock: clock})
	if err != nil {
		t.Fatalf("failed to build profile coordinator: %v", err)
	}
	categories, err := publishing.NewCategoryCoordinator(publishing.CategoryCoordinatorConfig{Categories: store})
	if err != nil {
		t.Fatalf("failed to build category coordinator: %v", err)
	}
	resolver, err := media.NewResolver(media.ResolverConfig{Signer: blobs, Source: store, FetchTimeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("failed to build media resolver: %v", err)
	}
	sessions, err := auth.NewSessionValidator(auth.SessionValidatorConfig{
		SigningSecret: []byte(testSigningSecret),
		CookieName:    testCookieName,
		RequiredRole:  auth.RoleAdmin,
	})
	if err != nil {
		t.Fatalf("failed to build session validator: %v", err)
	}

	dispatcher := NewRevalidationDispatcher()
	handler, err := NewHTTPHandler(Dependencies{
		Catalog:           store,
		Contents:          contents,
		Profiles:          profiles,
		Categories:        categories,
		Media:             resolver,
		Blobs:             blobs,
		Sessions:          sessions,
		Realtime:          dispatcher,
		HeartbeatInterval: time.Hour,
		Logger:            zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("failed to construct http handler: %v", err)
	}
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return &serverHarness{
		server:     server,
		handler:    handler,
		store:      store,
		objects:    objects,
		blobs:      blobs,
		dispatcher: dispatcher,
	}
}

func signAdminSession(t *testing.T, roles ...string) string {
	t.Helper()
	now := time.Now()
	claims := auth.SessionClaims{
		UserID:    "admin-1",
		UserEmail: "admin@example.com",
		UserRoles: roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "tauth",
			Subject:   "admin-1",
			IssuedAt:  jwt.NewNumericDate(now.Add(-time.Minute)),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSigningSecret))
	if err != nil {
		t.Fatalf("failed to sign session: %v", err)
	}
	return signed
}

func (h *serverHarness) adminRequest(t *testing.T, method, path string, body *bytes.Buffer, contentType string) *http.Request {
	t.Helper()
	var request *http.Request
	if body == nil {
		request = httptest.NewRequest(method, path, http.NoBody)
	} else {
		request = httptest.NewRequest(method, path, body)
	}
	if contentType != "" {
		request.Header.Set("Content-Type", contentType)
	}
	request.AddCookie(&http.Cookie{Name: testCookieName, Value: signAdminSession(t, auth.RoleAdmin)})
	return request
}

func (h *serverHarness) serve(request *http.Request) *httptest.ResponseRecorder {
	recorder := httptest.NewRecorder()
	h.handler.ServeHTTP(recorder, request)
	return recorder
}

func (h *serverHarness) seedProfile(t *testing.T, imageURL string) {
	t.Helper()
	if _, err := h.store.SaveProfile(context.Background(), catalog.Profile{
		ID:        "main",
		FirstName: "Ada",
		LastName:  "Lovelace",
		Title:     "Analyst",
		Bio:       "Notes on the engine",
		ImageURL:  imageURL,
	}); err != nil {
		t.Fatalf("failed to seed profile: %v", err)
	}
}

func (h *serverHarness) seedCategory(t *testing.T, id, label string) {
	t.Helper()
	if _, err := h.store.CreateCategory(context.Background(), catalog.Category{ID: id, Label: label}); err != nil {
		t.Fatalf("failed to seed category: %v", err)
	}
}

func (h *serverHarness) seedContent(t *testing.T, input catalog.NewContent) catalog.Content {
	t.Helper()
	content, err := h.store.CreateContent(context.Background(), input)
	if err != nil {
		t.Fatalf("failed to seed content: %v", err)
	}
	return content
}

type multipartFile struct {
	field       string
	filename    string
	contentType string
	data        []byte
}

func multipartBody(t *testing.T, fields map[string][]string, files ...multipartFile) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for name, values := range fields {
		for _, value := range values {
			if err := writer.WriteField(name, value); err != nil {
				t.Fatalf("failed to write field %s: %v", name, err)
			}
		}
	}
	for _, file := range files {
		header := make(map[string][]string)
		header["Content-Disposition"] = []string{`form-data; name="` + file.field + `"; filename="` + file.filename + `"`}
		header["Content-Type"] = []string{file.contentType}
		part, err := writer.CreatePart(header)
		if err != nil {
			t.Fatalf("failed to create part %s: %v", file.field, err)
		}
		if _, err := part.Write(file.data); err != nil {
			t.Fatalf("failed to write part %s: %v", file.field, err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("failed to close multipart writer: %v", err)
	}
	return body, writer.FormDataContentType()
}
