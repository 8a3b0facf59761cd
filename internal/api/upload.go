package api

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"fanctl-backend/internal/ingest"
)

var errUploadTooLarge = errors.New("upload exceeds the size limit")

// withUpload stores the multipart "file" field in the upload directory and
// hands it to fn. The stored copy is removed on every return path.
func (h *Handler) withUpload(c *gin.Context, fn func(f *os.File) error) error {
	if max := h.cfg.Import.MaxUploadBytes; max > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, max)
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return errUploadTooLarge
		}
		return fmt.Errorf("%w: file is required", ingest.ErrInvalidInput)
	}

	path := filepath.Join(h.cfg.Import.UploadDir, "upload-"+uuid.NewString()+filepath.Ext(fileHeader.Filename))
	if err := c.SaveUploadedFile(fileHeader, path); err != nil {
		return fmt.Errorf("failed to store upload: %w", err)
	}
	defer func() {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			log.WithError(err).WithField("path", path).Warn("Failed to remove upload")
		}
	}()

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open upload: %w", err)
	}
	defer f.Close()

	return fn(f)
}
