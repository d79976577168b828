package handler

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mohamedazimal27/rag-docmind/internal/app"
	"github.com/mohamedazimal27/rag-docmind/internal/model"
	"github.com/mohamedazimal27/rag-docmind/internal/transport/http/response"
)

// Uploader is the upload pipeline the file routes drive.
type Uploader interface {
	Upload(ctx context.Context, input app.UploadInput) (*app.UploadResult, error)
	ListFiles(userID uint) ([]string, error)
	MaxFiles() int
}

type FileHandler struct {
	uploader       Uploader
	maxUploadBytes int64
}

func NewFileHandler(uploader Uploader, maxUploadBytes int64) *FileHandler {
	return &FileHandler{uploader: uploader, maxUploadBytes: maxUploadBytes}
}

// Upload accepts a multipart form with a single "file" field.
func (h *FileHandler) Upload(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	file, err := c.FormFile("file")
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "missing file")
		return
	}
	if h.maxUploadBytes > 0 && file.Size > h.maxUploadBytes {
		response.Error(c, http.StatusRequestEntityTooLarge, response.CodeFileTooLarge,
			fmt.Sprintf("file too large (max %d bytes)", h.maxUploadBytes))
		return
	}

	f, err := file.Open()
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "failed to read file")
		return
	}
	defer f.Close()

	content, err := io.ReadAll(f)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "failed to read file")
		return
	}

	result, err := h.uploader.Upload(c.Request.Context(), app.UploadInput{
		UserID:   userID,
		Filename: file.Filename,
		Content:  content,
	})
	if err != nil {
		writeError(c, err, uploadErrorRules, "upload failed")
		return
	}

	response.OK(c, result)
}

var uploadErrorRules = []errorRule{
	{target: model.ErrFileLimitExceeded, status: http.StatusBadRequest, code: response.CodeFileLimitExceeded},
	{target: model.ErrUnsupportedFormat, status: http.StatusBadRequest, code: response.CodeUnsupportedFormat, message: "unsupported file type"},
	{target: model.ErrExtraction, status: http.StatusBadRequest, code: response.CodeExtractionFailed, message: "could not extract text from file"},
	{target: app.ErrInvalidInput, status: http.StatusBadRequest, code: response.CodeBadRequest, message: "invalid filename"},
	{target: model.ErrEmbedding, status: http.StatusBadGateway, code: response.CodeEmbeddingFailed, message: "embedding provider failed"},
	{target: model.ErrStorage, status: http.StatusInternalServerError, code: response.CodeStorageFailed, message: "storing file failed"},
}

func (h *FileHandler) List(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	files, err := h.uploader.ListFiles(userID)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeStorageFailed, "list files failed")
		return
	}
	response.OK(c, gin.H{
		"files":     files,
		"total":     len(files),
		"max_files": h.uploader.MaxFiles(),
	})
}
