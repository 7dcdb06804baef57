// Package ads handles ad creative uploads. Advertisers may inline small
// creatives as data URIs on the rental itself; larger files go through this
// endpoint and the rental references the returned s3:// key.
package ads

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/akashbiswas0/Avenger/pkg/response"
	"github.com/akashbiswas0/Avenger/pkg/storage"
)

// Handler handles ad creative upload endpoints.
type Handler struct {
	s3     *storage.S3
	logger *zap.Logger
}

// NewHandler creates an ads handler. s3 must be configured for the upload
// route to be mounted.
func NewHandler(s3 *storage.S3, logger *zap.Logger) *Handler {
	return &Handler{s3: s3, logger: logger}
}

// Upload handles POST /ads/upload: multipart form with "listing_id" and a
// "file" part. Returns the s3:// reference to use as a rental's ad image.
func (h *Handler) Upload(c *gin.Context) {
	listingID, err := uuid.Parse(c.PostForm("listing_id"))
	if err != nil {
		response.BadRequest(c, "invalid listing_id")
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.BadRequest(c, "missing file")
		return
	}
	if fileHeader.Size > storage.MaxAdFileSize {
		response.Error(c, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("file exceeds %d byte limit", storage.MaxAdFileSize))
		return
	}
	contentType := fileHeader.Header.Get("Content-Type")
	if !storage.ValidateAdFileType(contentType, fileHeader.Filename) {
		response.BadRequest(c, "ad creatives must be jpeg, png, or webp images")
		return
	}
	if contentType == "" {
		contentType = storage.ContentTypeForFilename(fileHeader.Filename)
	}

	file, err := fileHeader.Open()
	if err != nil {
		response.Internal(c, "failed to read upload")
		return
	}
	defer file.Close()

	key := storage.AdKey(listingID.String(), fileHeader.Filename)
	if _, err := h.s3.Upload(c.Request.Context(), key, contentType, file); err != nil {
		h.logger.Error("ad upload failed", zap.String("key", key), zap.Error(err))
		response.Internal(c, "failed to store ad creative")
		return
	}

	h.logger.Info("ad creative uploaded",
		zap.String("key", key), zap.Int64("size", fileHeader.Size))
	response.Created(c, gin.H{
		"key": key,
		"ref": "s3://" + key,
	})
}

// DownloadURL handles GET /ads/url?key=: returns a time-limited download
// URL for a stored creative, used by the owner dashboard preview.
func (h *Handler) DownloadURL(c *gin.Context) {
	key := c.Query("key")
	if key == "" {
		response.BadRequest(c, "missing key parameter")
		return
	}
	url, err := h.s3.GeneratePresignedDownloadURL(c.Request.Context(), key)
	if err != nil {
		response.Internal(c, "failed to generate download URL")
		return
	}
	response.OK(c, gin.H{"url": url})
}
