package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	visitorCookieName   = "lectern_visitor"
	visitorCookieMaxAge = 365 * 24 * 60 * 60
)

func (h *httpHandler) respondPublicError(c *gin.Context, operation string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("public request failed", zap.String("operation", operation), zap.Error(err))
		c.JSON(status, gin.H{"error": "internal_error"})
		return
	}
	c.JSON(status, gin.H{"error": http.StatusText(status)})
}

func (h *httpHandler) handleGetProfile(c *gin.Context) {
	profile, err := h.catalog.GetProfile(c.Request.Context())
	if err != nil {
		h.respondPublicError(c, "get_profile", err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

func (h *httpHandler) handleListCategories(c *gin.Context) {
	categories, err := h.catalog.ListCategories(c.Request.Context())
	if err != nil {
		h.respondPublicError(c, "list_categories", err)
		return
	}
	c.JSON(http.StatusOK, categories)
}

func (h *httpHandler) handleGetCategory(c *gin.Context) {
	category, err := h.catalog.GetCategory(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondPublicError(c, "get_category", err)
		return
	}
	c.JSON(http.StatusOK, category)
}

func (h *httpHandler) handleListContents(c *gin.Context) {
	ctx := c.Request.Context()
	query := strings.TrimSpace(c.Query("q"))
	category := strings.TrimSpace(c.Query("category"))

	var (
		contents any
		err      error
	)
	switch {
	case query != "":
		contents, err = h.catalog.SearchContents(ctx, query)
	case category != "":
		contents, err = h.catalog.ListContentsByCategory(ctx, category)
	default:
		contents, err = h.catalog.ListContents(ctx)
	}
	if err != nil {
		h.respondPublicError(c, "list_contents", err)
		return
	}
	c.JSON(http.StatusOK, contents)
}

func (h *httpHandler) handleGetContent(c *gin.Context) {
	content, err := h.catalog.GetContent(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondPublicError(c, "get_content", err)
		return
	}
	c.JSON(http.StatusOK, content)
}

type viewsResponsePayload struct {
	ContentID string `json:"contentId"`
	Views     int64  `json:"views"`
}

func (h *httpHandler) handleGetContentViews(c *gin.Context) {
	contentID := c.Param("id")
	views, err := h.catalog.ContentViews(c.Request.Context(), contentID)
	if err != nil {
		h.respondPublicError(c, "content_views", err)
		return
	}
	c.JSON(http.StatusOK, viewsResponsePayload{ContentID: contentID, Views: views})
}

func (h *httpHandler) handleIncrementContentViews(c *gin.Context) {
	contentID := c.Param("id")
	views, err := h.catalog.IncrementContentViews(c.Request.Context(), contentID)
	if err != nil {
		h.respondPublicError(c, "increment_content_views", err)
		return
	}
	c.JSON(http.StatusOK, viewsResponsePayload{ContentID: contentID, Views: views})
}

type statsResponsePayload struct {
	TotalContents      int64            `json:"totalContents"`
	TotalCategories    int64            `json:"totalCategories"`
	ContentsByType     map[string]int64 `json:"contentsByType"`
	ContentsByCategory map[string]int64 `json:"contentsByCategory"`
	TotalViews         int64            `json:"totalViews"`
	Visitors           int64            `json:"visitors"`
}

func (h *httpHandler) handleStats(c *gin.Context) {
	ctx := c.Request.Context()
	stats, err := h.catalog.Stats(ctx)
	if err != nil {
		h.respondPublicError(c, "stats", err)
		return
	}
	totalViews, err := h.catalog.TotalViews(ctx)
	if err != nil {
		h.respondPublicError(c, "stats", err)
		return
	}
	visitors, err := h.catalog.CountVisitors(ctx, h.visitorWindow)
	if err != nil {
		h.respondPublicError(c, "stats", err)
		return
	}
	c.JSON(http.StatusOK, statsResponsePayload{
		TotalContents:      stats.TotalContents,
		TotalCategories:    stats.TotalCategories,
		ContentsByType:     stats.ContentsByType,
		ContentsByCategory: stats.ContentsByCategory,
		TotalViews:         totalViews,
		Visitors:           visitors,
	})
}

type visitorRequestPayload struct {
	VisitorID string         `json:"visitorId"`
	Metadata  map[string]any `json:"metadata"`
}

// handleRecordVisitor records a visit. The visitor id comes from the body,
// then the visitor cookie; a new id is issued when neither is present.
func (h *httpHandler) handleRecordVisitor(c *gin.Context) {
	var request visitorRequestPayload
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&request); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
			return
		}
	}

	visitorID := strings.TrimSpace(request.VisitorID)
	if visitorID == "" {
		if cookie, err := c.Cookie(visitorCookieName); err == nil {
			visitorID = strings.TrimSpace(cookie)
		}
	}
	if visitorID == "" {
		generated, err := uuid.NewV7()
		if err != nil {
			h.respondPublicError(c, "record_visitor", err)
			return
		}
		visitorID = generated.String()
	}

	metadata := request.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	if _, ok := metadata["userAgent"]; !ok && c.Request.UserAgent() != "" {
		metadata["userAgent"] = c.Request.UserAgent()
	}
	if err := h.catalog.RecordVisitor(c.Request.Context(), visitorID, metadata); err != nil {
		h.respondPublicError(c, "record_visitor", err)
		return
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(visitorCookieName, visitorID, visitorCookieMaxAge, "/", "", false, true)
	c.JSON(http.StatusAccepted, gin.H{"visitorId": visitorID})
}
