package handlers

import (
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/bioviz/bioviz/internal/dataset"
)

func (h *Handler) UploadFile(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		fail(c, http.StatusBadRequest, 10002, "file required")
		return
	}
	if h.Cfg.MaxUploadSize > 0 && fh.Size > h.Cfg.MaxUploadSize {
		fail(c, http.StatusRequestEntityTooLarge, 41301, "file too large")
		return
	}

	f, err := fh.Open()
	if err != nil {
		fail(c, http.StatusBadRequest, 10002, "unreadable file")
		return
	}
	defer f.Close()

	content, err := io.ReadAll(io.LimitReader(f, h.Cfg.MaxUploadSize+1))
	if err != nil {
		fail(c, http.StatusBadRequest, 10002, "unreadable file")
		return
	}

	rec, err := h.Datasets.Save(c.Request.Context(), fh.Filename, content)
	if err != nil {
		switch {
		case errors.Is(err, dataset.ErrUnsupportedFormat):
			fail(c, http.StatusBadRequest, 10004, "unsupported file format")
		case errors.Is(err, dataset.ErrFileTooLarge):
			fail(c, http.StatusRequestEntityTooLarge, 41301, "file too large")
		default:
			log.Printf("[UploadFile] save %q failed: %v", fh.Filename, err)
			fail(c, http.StatusBadRequest, 10005, "failed to parse file")
		}
		return
	}

	ok(c, rec)
}

func (h *Handler) ListFiles(c *gin.Context) {
	recs, err := h.Datasets.List(c.Request.Context())
	if err != nil {
		log.Printf("[ListFiles] %v", err)
		fail(c, http.StatusInternalServerError, 50002, "failed to list files")
		return
	}
	ok(c, gin.H{"files": recs})
}

func (h *Handler) GetFileSchema(c *gin.Context) {
	fileID := c.Param("file_id")
	info, err := h.Datasets.SchemaSummary(c.Request.Context(), fileID)
	if err != nil {
		if errors.Is(err, dataset.ErrNotFound) {
			fail(c, http.StatusNotFound, 40401, "dataset not found")
			return
		}
		log.Printf("[GetFileSchema] file_id=%s err=%v", fileID, err)
		fail(c, http.StatusInternalServerError, 50003, "failed to read schema")
		return
	}
	ok(c, info)
}

func (h *Handler) GetFilePreview(c *gin.Context) {
	fileID := c.Param("file_id")
	start, _ := strconv.Atoi(c.DefaultQuery("start", "0"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	preview, err := h.Datasets.Preview(c.Request.Context(), fileID, start, limit)
	if err != nil {
		if errors.Is(err, dataset.ErrNotFound) {
			fail(c, http.StatusNotFound, 40401, "dataset not found")
			return
		}
		log.Printf("[GetFilePreview] file_id=%s err=%v", fileID, err)
		fail(c, http.StatusInternalServerError, 50004, "failed to read preview")
		return
	}
	ok(c, preview)
}

func (h *Handler) DeleteFile(c *gin.Context) {
	fileID := c.Param("file_id")
	if err := h.Datasets.Delete(c.Request.Context(), fileID); err != nil {
		if errors.Is(err, dataset.ErrNotFound) {
			fail(c, http.StatusNotFound, 40401, "dataset not found")
			return
		}
		log.Printf("[DeleteFile] file_id=%s err=%v", fileID, err)
		fail(c, http.StatusInternalServerError, 50005, "failed to delete file")
		return
	}
	ok(c, gin.H{"file_id": fileID, "deleted": true})
}
