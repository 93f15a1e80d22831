package server

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/lectern/backend/internal/media"
	"github.com/gin-gonic/gin"
)

const (
	imageCacheControl = "public, max-age=86400, s-maxage=86400"
	videoCacheControl = "public, max-age=3600"
)

func (h *httpHandler) handleProfileImage(c *gin.Context) {
	payload, err := h.media.ProfileImage(c.Request.Context())
	if err != nil {
		c.Status(http.StatusNotFound)
		return
	}

	etag := payloadETag(payload)
	c.Header("ETag", etag)
	c.Header("Cache-Control", imageCacheControl)
	if etagMatches(c.GetHeader("If-None-Match"), etag) {
		c.Status(http.StatusNotModified)
		return
	}
	c.Data(http.StatusOK, payload.ContentType, payload.Data)
}

func (h *httpHandler) handleThumbnail(c *gin.Context) {
	payload, err := h.media.ContentThumbnail(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Status(http.StatusNotFound)
		return
	}
	c.Header("Cache-Control", imageCacheControl)
	c.Data(http.StatusOK, payload.ContentType, payload.Data)
}

// handleVideo streams content media with byte-range support.
func (h *httpHandler) handleVideo(c *gin.Context) {
	contentID := c.Param("id")
	payload, err := h.media.ContentMedia(c.Request.Context(), contentID)
	if err != nil {
		c.Status(http.StatusNotFound)
		return
	}
	c.Header("Content-Type", payload.ContentType)
	c.Header("Cache-Control", videoCacheControl)
	c.Header("Accept-Ranges", "bytes")
	http.ServeContent(c.Writer, c.Request, contentID, time.Time{}, bytes.NewReader(payload.Data))
}

func payloadETag(payload media.Payload) string {
	sum := sha256.Sum256(payload.Data)
	return `"` + hex.EncodeToString(sum[:]) + `"`
}

func etagMatches(header string, etag string) bool {
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" || strings.TrimPrefix(candidate, "W/") == etag {
			return true
		}
	}
	return false
}
