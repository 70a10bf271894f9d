package handlers

import (
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/bioviz/bioviz/internal/analysis"
	"github.com/bioviz/bioviz/internal/dataset"
)

func (h *Handler) ListAnalysisMethods(c *gin.Context) {
	ok(c, gin.H{"methods": h.Analysis.Available()})
}

func (h *Handler) GetAnalysisMethod(c *gin.Context) {
	method := analysis.Method(c.Param("method"))
	meta, err := h.Analysis.Metadata(method)
	if err != nil {
		fail(c, http.StatusNotFound, 40403, "unknown analysis method")
		return
	}
	ok(c, meta)
}

type runAnalysisReq struct {
	FileID        string                     `json:"file_id" binding:"required"`
	Method        string                     `json:"method" binding:"required"`
	Params        map[string]any             `json:"params"`
	TargetColumns []string                   `json:"target_columns"`
	Filters       map[string]analysis.Filter `json:"filter_conditions"`
}

func (h *Handler) RunAnalysis(c *gin.Context) {
	var req runAnalysisReq
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	resp, err := h.Analysis.Run(c.Request.Context(), analysis.Request{
		FileID:        req.FileID,
		Method:        analysis.Method(req.Method),
		Params:        req.Params,
		TargetColumns: req.TargetColumns,
		Filters:       req.Filters,
	})
	if err != nil {
		switch {
		case errors.Is(err, dataset.ErrNotFound):
			fail(c, http.StatusNotFound, 40401, "dataset not found")
		case strings.Contains(err.Error(), "unknown analysis method"):
			fail(c, http.StatusNotFound, 40403, "unknown analysis method")
		default:
			log.Printf("[RunAnalysis] file_id=%s method=%s err=%v", req.FileID, req.Method, err)
			fail(c, http.StatusBadRequest, 10006, err.Error())
		}
		return
	}

	ok(c, resp)
}
