package api

import (
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"sheetlens/domain/core"
	"sheetlens/domain/upload"
	"sheetlens/internal"
	"sheetlens/internal/dataset"
	"sheetlens/internal/errors"
)

// multipart framing allowance on top of the file size limit
const multipartOverhead = 1 << 20

// FileHandler serves the /api/files routes
type FileHandler struct {
	processor   *dataset.Processor
	maxFileSize int64
	logger      *internal.Logger
}

// NewFileHandler creates a new file handler
func NewFileHandler(processor *dataset.Processor, maxFileSize int64, logger *internal.Logger) *FileHandler {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &FileHandler{
		processor:   processor,
		maxFileSize: maxFileSize,
		logger:      logger,
	}
}

// Upload accepts a multipart file in field "file" and starts processing
func (h *FileHandler) Upload(c *gin.Context) {
	actor := actorFrom(c)
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxFileSize+multipartOverhead)

	header, err := c.FormFile("file")
	if err != nil {
		h.logger.Warn("[FileHandler] No file uploaded: %v", err)
		respondError(c, errors.ValidationError("No file uploaded"))
		return
	}
	if header.Size > h.maxFileSize {
		respondError(c, errors.Newf(errors.CodeValidationError,
			"File size (%.1f MB) exceeds the %.0f MB limit", float64(header.Size)/(1<<20), float64(h.maxFileSize)/(1<<20)))
		return
	}

	file, err := header.Open()
	if err != nil {
		respondError(c, errors.ValidationError("Uploaded file could not be read"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, h.maxFileSize+1))
	if err != nil {
		respondError(c, errors.ValidationError("Uploaded file could not be read"))
		return
	}

	rec, err := h.processor.Accept(c.Request.Context(), &upload.Upload{
		OwnerID:          actor.OwnerID,
		OriginalFilename: header.Filename,
		MimeType:         header.Header.Get("Content-Type"),
		Size:             header.Size,
		Data:             data,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message":           "File uploaded successfully. Processing started.",
		"id":                rec.ID,
		"original_filename": rec.OriginalFilename,
		"size":              rec.Size,
		"status":            rec.Status,
	})
}

// List returns the caller's files, newest first, without full data
func (h *FileHandler) List(c *gin.Context) {
	actor := actorFrom(c)
	page := queryInt(c, "page", 1)
	limit := queryInt(c, "limit", dataset.DefaultPageSize)

	result, err := h.processor.List(c.Request.Context(), actor.OwnerID, page, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Stats returns per-status counts for the caller
func (h *FileHandler) Stats(c *gin.Context) {
	stats, err := h.processor.OwnerStats(c.Request.Context(), actorFrom(c).OwnerID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// Get returns one file with all of its analysis
func (h *FileHandler) Get(c *gin.Context) {
	id, ok := fileID(c)
	if !ok {
		return
	}

	rec, err := h.processor.Get(c.Request.Context(), id, actorFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// Data pages through a processed file's rows
func (h *FileHandler) Data(c *gin.Context) {
	id, ok := fileID(c)
	if !ok {
		return
	}

	result, err := h.processor.GetData(c.Request.Context(), id, actorFrom(c),
		queryInt(c, "page", 1), queryInt(c, "limit", 50))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// RegenerateInsight asks the provider for a fresh insight
func (h *FileHandler) RegenerateInsight(c *gin.Context) {
	id, ok := fileID(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	if _, err := h.processor.Get(ctx, id, actorFrom(c)); err != nil {
		respondError(c, err)
		return
	}

	insight, err := h.processor.RegenerateInsight(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"insight": insight})
}

// Delete removes a file that is not processing
func (h *FileHandler) Delete(c *gin.Context) {
	id, ok := fileID(c)
	if !ok {
		return
	}

	if err := h.processor.Delete(c.Request.Context(), id, actorFrom(c)); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "File deleted successfully"})
}

func fileID(c *gin.Context) (core.ID, bool) {
	id, err := core.ParseID(c.Param("id"))
	if err != nil {
		respondError(c, errors.ValidationError("Invalid file ID"))
		return "", false
	}
	return id, true
}

func queryInt(c *gin.Context, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}
