package server

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/lectern/backend/internal/blobstore"
	"github.com/MarcoPoloResearchLab/lectern/backend/internal/catalog"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	dashboardTopContents  = 5
	dashboardVisitorDays  = 30
	revalidationPathPages = "/contenus"
)

type adminEnvelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func adminSuccess(data any) adminEnvelope {
	return adminEnvelope{Success: true, Data: data}
}

func adminFailure(message string) adminEnvelope {
	return adminEnvelope{Success: false, Error: message}
}

func (h *httpHandler) respondAdminError(c *gin.Context, operation string, err error) {
	status := statusFor(err)
	fields := []zap.Field{zap.String("operation", operation), zap.Int("status", status), zap.Error(err)}
	switch {
	case status >= http.StatusInternalServerError && status != http.StatusBadGateway:
		h.logger.Error("admin request failed", fields...)
		c.JSON(status, adminFailure("internal error"))
		return
	case status == http.StatusBadGateway:
		h.logger.Error("admin request failed", fields...)
	default:
		h.logger.Info("admin request rejected", fields...)
	}
	c.JSON(status, adminFailure(err.Error()))
}

type dashboardPayload struct {
	Stats           catalog.Stats              `json:"stats"`
	TotalViews      int64                      `json:"totalViews"`
	Visitors        catalog.VisitorStats       `json:"visitors"`
	TopContents     []catalog.ContentWithViews `json:"topContents"`
	Contents        []catalog.ContentWithViews `json:"contents"`
	Categories      []catalog.Category         `json:"categories"`
	CleanupFailures int64                      `json:"cleanupFailures"`
}

func (h *httpHandler) handleDashboard(c *gin.Context) {
	ctx := c.Request.Context()
	var (
		payload dashboardPayload
		err     error
	)
	if payload.Stats, err = h.catalog.Stats(ctx); err != nil {
		h.respondAdminError(c, "dashboard", err)
		return
	}
	if payload.TotalViews, err = h.catalog.TotalViews(ctx); err != nil {
		h.respondAdminError(c, "dashboard", err)
		return
	}
	if payload.Visitors, err = h.catalog.VisitorStats(ctx, dashboardVisitorDays); err != nil {
		h.respondAdminError(c, "dashboard", err)
		return
	}
	if payload.TopContents, err = h.catalog.TopViewedContents(ctx, dashboardTopContents); err != nil {
		h.respondAdminError(c, "dashboard", err)
		return
	}
	if payload.Contents, err = h.catalog.ListContentsWithViews(ctx); err != nil {
		h.respondAdminError(c, "dashboard", err)
		return
	}
	if payload.Categories, err = h.catalog.ListCategories(ctx); err != nil {
		h.respondAdminError(c, "dashboard", err)
		return
	}
	payload.CleanupFailures = h.contents.CleanupFailures() + h.profiles.CleanupFailures()
	c.JSON(http.StatusOK, adminSuccess(payload))
}

func (h *httpHandler) handleCreateCategory(c *gin.Context) {
	form, err := categoryFormFromRequest(c.Request)
	if err != nil {
		h.respondAdminError(c, "create_category", err)
		return
	}
	category, err := h.categories.Create(c.Request.Context(), form)
	if err != nil {
		h.respondAdminError(c, "create_category", err)
		return
	}
	h.realtime.Publish(revalidationPathHome, revalidationPathAdmin, revalidationPathTaxon)
	c.JSON(http.StatusCreated, adminSuccess(category))
}

func (h *httpHandler) handleUpdateCategory(c *gin.Context) {
	form, err := categoryFormFromRequest(c.Request)
	if err != nil {
		h.respondAdminError(c, "update_category", err)
		return
	}
	category, err := h.categories.Update(c.Request.Context(), c.Param("id"), form)
	if err != nil {
		h.respondAdminError(c, "update_category", err)
		return
	}
	h.realtime.Publish(revalidationPathHome, revalidationPathAdmin, revalidationPathTaxon)
	c.JSON(http.StatusOK, adminSuccess(category))
}

func (h *httpHandler) handleDeleteCategory(c *gin.Context) {
	if err := h.categories.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.respondAdminError(c, "delete_category", err)
		return
	}
	h.realtime.Publish(revalidationPathHome, revalidationPathAdmin, revalidationPathTaxon)
	c.JSON(http.StatusOK, adminSuccess(gin.H{"removed": true}))
}

func (h *httpHandler) handleCreateContent(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, 2*maxUploadBytes)
	form, err := contentFormFromRequest(c.Request)
	if err != nil {
		h.respondAdminError(c, "create_content", err)
		return
	}
	content, err := h.contents.Create(c.Request.Context(), form)
	if err != nil {
		h.respondAdminError(c, "create_content", err)
		return
	}
	h.publishContentChange(content.ID)
	c.JSON(http.StatusCreated, adminSuccess(content))
}

func (h *httpHandler) handleUpdateContent(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, 2*maxUploadBytes)
	form, err := contentFormFromRequest(c.Request)
	if err != nil {
		h.respondAdminError(c, "update_content", err)
		return
	}
	content, err := h.contents.Update(c.Request.Context(), c.Param("id"), form)
	if err != nil {
		h.respondAdminError(c, "update_content", err)
		return
	}
	h.publishContentChange(content.ID)
	c.JSON(http.StatusOK, adminSuccess(content))
}

func (h *httpHandler) handleDeleteContent(c *gin.Context) {
	contentID := c.Param("id")
	removed, err := h.contents.Delete(c.Request.Context(), contentID)
	if err != nil {
		h.respondAdminError(c, "delete_content", err)
		return
	}
	if !removed {
		c.JSON(http.StatusNotFound, adminFailure(fmt.Sprintf("content %q not found", contentID)))
		return
	}
	h.publishContentChange(contentID)
	c.JSON(http.StatusOK, adminSuccess(gin.H{"removed": true}))
}

type setViewsRequestPayload struct {
	Views *int64 `json:"views" form:"views"`
}

func (h *httpHandler) handleSetContentViews(c *gin.Context) {
	var request setViewsRequestPayload
	if err := c.ShouldBind(&request); err != nil || request.Views == nil {
		h.respondAdminError(c, "set_content_views", fmt.Errorf("%w: views must be an integer", errInvalidForm))
		return
	}
	contentID := c.Param("id")
	views, err := h.catalog.SetContentViews(c.Request.Context(), contentID, *request.Views)
	if err != nil {
		h.respondAdminError(c, "set_content_views", err)
		return
	}
	h.realtime.Publish(revalidationPathAdmin)
	c.JSON(http.StatusOK, adminSuccess(viewsResponsePayload{ContentID: contentID, Views: views}))
}

func (h *httpHandler) handleUpdateProfile(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, 2*maxUploadBytes)
	form, err := profileFormFromRequest(c.Request)
	if err != nil {
		h.respondAdminError(c, "update_profile", err)
		return
	}
	profile, err := h.profiles.Update(c.Request.Context(), form)
	if err != nil {
		h.respondAdminError(c, "update_profile", err)
		return
	}
	h.realtime.Publish(revalidationPathHome, revalidationPathAdmin, revalidationPathProfile)
	c.JSON(http.StatusOK, adminSuccess(profile))
}

func (h *httpHandler) handleListBlobs(c *gin.Context) {
	objects, err := h.blobs.List(c.Request.Context(), strings.TrimSpace(c.Query("prefix")))
	if err != nil {
		h.respondAdminError(c, "list_blobs", err)
		return
	}
	if objects == nil {
		objects = []blobstore.Object{}
	}
	c.JSON(http.StatusOK, adminSuccess(objects))
}

func (h *httpHandler) publishContentChange(contentID string) {
	paths := []string{revalidationPathHome, revalidationPathAdmin, revalidationPathContent}
	if contentID != "" {
		paths = append(paths, revalidationPathPages+"/"+contentID)
	}
	h.realtime.Publish(paths...)
}

type revalidationEventPayload struct {
	Paths     []string `json:"paths"`
	Timestamp string   `json:"timestamp"`
}

// handleRevalidationStream emits revalidate events over SSE until the
// client disconnects.
func (h *httpHandler) handleRevalidationStream(c *gin.Context) {
	ctx := c.Request.Context()
	stream, cleanup := h.realtime.Subscribe(ctx)
	defer cleanup()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.SSEvent(realtimeEventHeartbeat, gin.H{"source": realtimeSourceBackend})
	c.Writer.Flush()

	ticker := time.NewTicker(h.heartbeatInterval)
	defer ticker.Stop()

	c.Stream(func(io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case message, ok := <-stream:
			if !ok {
				return false
			}
			c.SSEvent(EventRevalidate, revalidationEventPayload{
				Paths:     message.Paths,
				Timestamp: message.Timestamp.Format(time.RFC3339Nano),
			})
			return true
		case <-ticker.C:
			c.SSEvent(realtimeEventHeartbeat, gin.H{"source": realtimeSourceBackend})
			return true
		}
	})
}
