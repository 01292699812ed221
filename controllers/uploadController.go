package controllers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

const maxImageSize = 5 << 20

// UploadImage passes an image through to the image host and returns its URL.
func (h *Handler) UploadImage(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxImageSize+1<<20)
	file, header, err := c.Request.FormFile("image")
	if err != nil {
		respondError(c, invalid("image", "Choose an image to upload"))
		return
	}
	defer file.Close()

	if header.Size > maxImageSize {
		respondError(c, invalid("image", "Images must be 5 MB or smaller"))
		return
	}
	if ct := header.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "image/") {
		respondError(c, invalid("image", "Only image files can be uploaded"))
		return
	}

	url, err := h.Images.Upload(c.Request.Context(), header.Filename, file)
	if err != nil {
		log.WithError(err).Warn("image upload failed")
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"url": url})
}
