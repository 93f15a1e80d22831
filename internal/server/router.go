package server

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/lectern/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/lectern/backend/internal/blobstore"
	"github.com/MarcoPoloResearchLab/lectern/backend/internal/catalog"
	"github.com/MarcoPoloResearchLab/lectern/backend/internal/media"
	"github.com/MarcoPoloResearchLab/lectern/backend/internal/publishing"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	sessionClaimsContextKey  = "lectern_session_claims"
	defaultVisitorWindow     = 30 * 24 * time.Hour
	defaultHeartbeatInterval = 25 * time.Second
	adminPathPrefix          = "/admin"
	wildcardOrigin           = "*"
)

var (
	errMissingCatalog    = errors.New("catalog dependency required")
	errMissingContents   = errors.New("content coordinator dependency required")
	errMissingProfiles   = errors.New("profile coordinator dependency required")
	errMissingCategories = errors.New("category coordinator dependency required")
	errMissingMedia      = errors.New("media resolver dependency required")
	errMissingBlobs      = errors.New("blob lister dependency required")
	errMissingSessions   = errors.New("session validator dependency required")
	errWildcardAdmin     = errors.New("admin origins must be listed explicitly")
)

// Catalog is the read and counter surface of the row store.
type Catalog interface {
	GetProfile(ctx context.Context) (catalog.Profile, error)
	ListCategories(ctx context.Context) ([]catalog.Category, error)
	GetCategory(ctx context.Context, id string) (catalog.Category, error)
	ListContents(ctx context.Context) ([]catalog.Content, error)
	ListContentsByCategory(ctx context.Context, category string) ([]catalog.Content, error)
	SearchContents(ctx context.Context, query string) ([]catalog.Content, error)
	GetContent(ctx context.Context, id string) (catalog.Content, error)
	ContentViews(ctx context.Context, contentID string) (int64, error)
	IncrementContentViews(ctx context.Context, contentID string) (int64, error)
	SetContentViews(ctx context.Context, contentID string, views int64) (int64, error)
	ListContentsWithViews(ctx context.Context) ([]catalog.ContentWithViews, error)
	TopViewedContents(ctx context.Context, limit int) ([]catalog.ContentWithViews, error)
	TotalViews(ctx context.Context) (int64, error)
	Stats(ctx context.Context) (catalog.Stats, error)
	RecordVisitor(ctx context.Context, visitorID string, metadata map[string]any) error
	CountVisitors(ctx context.Context, window time.Duration) (int64, error)
	VisitorStats(ctx context.Context, days int) (catalog.VisitorStats, error)
}

// ContentPublisher applies admin content mutations.
type ContentPublisher interface {
	Create(ctx context.Context, form publishing.ContentForm) (catalog.Content, error)
	Update(ctx context.Context, id string, form publishing.ContentForm) (catalog.Content, error)
	Delete(ctx context.Context, id string) (bool, error)
	CleanupFailures() int64
}

// ProfilePublisher applies admin profile updates.
type ProfilePublisher interface {
	Update(ctx context.Context, form publishing.ProfileForm) (catalog.Profile, error)
	CleanupFailures() int64
}

// CategoryPublisher applies admin category mutations.
type CategoryPublisher interface {
	Create(ctx context.Context, form publishing.CategoryForm) (catalog.Category, error)
	Update(ctx context.Context, id string, form publishing.CategoryForm) (catalog.Category, error)
	Delete(ctx context.Context, id string) error
}

// MediaResolver fetches blob bytes for the media endpoints.
type MediaResolver interface {
	ProfileImage(ctx context.Context) (media.Payload, error)
	ContentThumbnail(ctx context.Context, contentID string) (media.Payload, error)
	ContentMedia(ctx context.Context, contentID string) (media.Payload, error)
}

// BlobLister enumerates stored blobs for the admin dashboard.
type BlobLister interface {
	List(ctx context.Context, prefix string) ([]blobstore.Object, error)
}

// SessionValidator authenticates admin requests.
type SessionValidator interface {
	ValidateRequest(r *http.Request) (auth.SessionClaims, error)
}

// Dependencies wires the HTTP handler.
type Dependencies struct {
	Catalog           Catalog
	Contents          ContentPublisher
	Profiles          ProfilePublisher
	Categories        CategoryPublisher
	Media             MediaResolver
	Blobs             BlobLister
	Sessions          SessionValidator
	Realtime          *RevalidationDispatcher
	AllowedOrigins    []string
	AdminOrigins      []string
	VisitorWindow     time.Duration
	HeartbeatInterval time.Duration
	Logger            *zap.Logger
}

// NewHTTPHandler builds the gin engine serving the public API, media
// endpoints and the admin surface.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	switch {
	case deps.Catalog == nil:
		return nil, errMissingCatalog
	case deps.Contents == nil:
		return nil, errMissingContents
	case deps.Profiles == nil:
		return nil, errMissingProfiles
	case deps.Categories == nil:
		return nil, errMissingCategories
	case deps.Media == nil:
		return nil, errMissingMedia
	case deps.Blobs == nil:
		return nil, errMissingBlobs
	case deps.Sessions == nil:
		return nil, errMissingSessions
	case slices.Contains(deps.AdminOrigins, wildcardOrigin):
		return nil, errWildcardAdmin
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	realtime := deps.Realtime
	if realtime == nil {
		realtime = NewRevalidationDispatcher()
	}
	visitorWindow := deps.VisitorWindow
	if visitorWindow <= 0 {
		visitorWindow = defaultVisitorWindow
	}
	heartbeat := deps.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeatInterval
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware(deps.AllowedOrigins, deps.AdminOrigins))

	handler := &httpHandler{
		catalog:           deps.Catalog,
		contents:          deps.Contents,
		profiles:          deps.Profiles,
		categories:        deps.Categories,
		media:             deps.Media,
		blobs:             deps.Blobs,
		sessions:          deps.Sessions,
		realtime:          realtime,
		visitorWindow:     visitorWindow,
		heartbeatInterval: heartbeat,
		logger:            logger,
	}

	api := router.Group("/api")
	api.GET("/profile", handler.handleGetProfile)
	api.GET("/categories", handler.handleListCategories)
	api.GET("/categories/:id", handler.handleGetCategory)
	api.GET("/contents", handler.handleListContents)
	api.GET("/contents/:id", handler.handleGetContent)
	api.GET("/contents/:id/views", handler.handleGetContentViews)
	api.POST("/contents/:id/views", handler.handleIncrementContentViews)
	api.GET("/stats", handler.handleStats)
	api.POST("/visitors", handler.handleRecordVisitor)

	mediaGroup := router.Group("/media")
	mediaGroup.GET("/profile", handler.handleProfileImage)
	mediaGroup.GET("/thumbnail/:id", handler.handleThumbnail)
	mediaGroup.GET("/video/:id", handler.handleVideo)

	admin := router.Group("/admin")
	admin.Use(handler.authorizeAdmin)
	admin.GET("/dashboard", handler.handleDashboard)
	admin.POST("/categories", handler.handleCreateCategory)
	admin.PUT("/categories/:id", handler.handleUpdateCategory)
	admin.DELETE("/categories/:id", handler.handleDeleteCategory)
	admin.POST("/contents", handler.handleCreateContent)
	admin.PUT("/contents/:id", handler.handleUpdateContent)
	admin.DELETE("/contents/:id", handler.handleDeleteContent)
	admin.PUT("/contents/:id/views", handler.handleSetContentViews)
	admin.PUT("/profile", handler.handleUpdateProfile)
	admin.GET("/blobs", handler.handleListBlobs)
	admin.GET("/events", handler.handleRevalidationStream)

	return router, nil
}

type httpHandler struct {
	catalog           Catalog
	contents          ContentPublisher
	profiles          ProfilePublisher
	categories        CategoryPublisher
	media             MediaResolver
	blobs             BlobLister
	sessions          SessionValidator
	realtime          *RevalidationDispatcher
	visitorWindow     time.Duration
	heartbeatInterval time.Duration
	logger            *zap.Logger
}

// corsMiddleware applies the public policy to /api and /media and a
// credentialed policy to /admin. A wildcard public policy never allows
// credentials; admin origins are always explicit, and without any the admin
// surface refuses foreign origins outright.
func corsMiddleware(publicOrigins, adminOrigins []string) gin.HandlerFunc {
	public := cors.New(corsConfig(publicOrigins))
	var admin gin.HandlerFunc
	if len(adminOrigins) > 0 {
		admin = cors.New(corsConfig(adminOrigins))
	}
	return func(c *gin.Context) {
		if !isAdminPath(c.Request.URL.Path) {
			public(c)
			return
		}
		if admin != nil {
			admin(c)
			return
		}
		origin := c.Request.Header.Get("Origin")
		if origin != "" && !sameHost(origin, c.Request.Host) {
			c.AbortWithStatus(http.StatusForbidden)
		}
	}
}

func corsConfig(origins []string) cors.Config {
	config := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders:  []string{"Content-Type", "If-None-Match", "Range"},
		ExposeHeaders: []string{"ETag", "Content-Length", "Content-Range"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || slices.Contains(origins, wildcardOrigin) {
		config.AllowAllOrigins = true
		return config
	}
	config.AllowOrigins = origins
	config.AllowCredentials = true
	return config
}

func isAdminPath(path string) bool {
	return path == adminPathPrefix || strings.HasPrefix(path, adminPathPrefix+"/")
}

func sameHost(origin, host string) bool {
	parsed, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(parsed.Host, host)
}

func (h *httpHandler) authorizeAdmin(c *gin.Context) {
	claims, err := h.sessions.ValidateRequest(c.Request)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrMissingSessionRole):
			h.logger.Warn("admin session lacks role", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusForbidden, adminFailure("forbidden"))
		case errors.Is(err, auth.ErrExpiredSessionToken), errors.Is(err, auth.ErrMissingSessionToken):
			h.logger.Info("admin session validation failed", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, adminFailure("unauthorized"))
		default:
			h.logger.Warn("admin session validation failed", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, adminFailure("unauthorized"))
		}
		return
	}
	c.Set(sessionClaimsContextKey, claims)
	c.Next()
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, publishing.ErrValidationFailed), errors.Is(err, catalog.ErrInvalidInput), errors.Is(err, errInvalidForm):
		return http.StatusBadRequest
	case errors.Is(err, catalog.ErrNotFound), errors.Is(err, blobstore.ErrNotFound), errors.Is(err, media.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, catalog.ErrConstraintViolation), errors.Is(err, catalog.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, blobstore.ErrStorageUnavailable), errors.Is(err, blobstore.ErrUploadFailed), errors.Is(err, blobstore.ErrDeleteFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
