package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"

	"github.com/tirumala-karthikeya/chat-pro/internal/models"
	"github.com/tirumala-karthikeya/chat-pro/pkg/logger"
)

// FileUploader forwards a file to the upstream.
type FileUploader interface {
	UploadFile(ctx context.Context, user, filename, contentType string, file io.Reader) (json.RawMessage, error)
}

type UploadHandler struct {
	uploader FileUploader
	dir      string
	log      *logger.Logger
}

func NewUploadHandler(uploader FileUploader, dir string, log *logger.Logger) *UploadHandler {
	if dir == "" {
		dir = "uploads"
	}
	return &UploadHandler{uploader: uploader, dir: dir, log: log}
}

// safeName keeps only the last path element and rejects names that would
// escape the upload directory.
func safeName(name string) (string, bool) {
	base := filepath.Base(filepath.Clean("/" + name))
	if base == "/" || base == "." || base == ".." {
		return "", false
	}
	return base, true
}

func (h *UploadHandler) fail(c *gin.Context, err error) {
	logger.FromContext(c, h.log).LogError(err, "upload failed")
	c.JSON(http.StatusInternalServerError, gin.H{"detail": "Error uploading file: " + err.Error()})
}

// Upload stores the file under <dir>/<user>/<filename> and forwards it.
func (h *UploadHandler) Upload(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "file is required"})
		return
	}

	user := c.PostForm("user")
	if user == "" {
		user = models.DefaultChatUser
	}
	userDir, ok := safeName(user)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "invalid user"})
		return
	}
	filename, ok := safeName(fh.Filename)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "invalid filename"})
		return
	}

	dst := filepath.Join(h.dir, userDir, filename)
	if err := c.SaveUploadedFile(fh, dst); err != nil {
		h.fail(c, err)
		return
	}

	f, err := os.Open(dst)
	if err != nil {
		h.fail(c, err)
		return
	}
	defer f.Close()

	contentType := fh.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	raw, err := h.uploader.UploadFile(c.Request.Context(), user, filename, contentType, f)
	if err != nil {
		h.fail(c, fmt.Errorf("forward %s: %w", filename, err))
		return
	}
	c.Data(http.StatusOK, "application/json", raw)
}
