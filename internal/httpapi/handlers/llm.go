package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/bioviz/bioviz/internal/ai"
	"github.com/bioviz/bioviz/internal/dataset"
	"github.com/bioviz/bioviz/internal/llm"
)

// failPipeline maps pipeline errors onto the error envelope.
func failPipeline(c *gin.Context, err error) {
	switch {
	case errors.Is(err, dataset.ErrNotFound):
		fail(c, http.StatusNotFound, 40401, "dataset not found")
	case errors.Is(err, llm.ErrSessionNotFound):
		fail(c, http.StatusNotFound, 40402, "session not found")
	case errors.Is(err, ai.ErrTimeout):
		fail(c, http.StatusGatewayTimeout, 50401, "model timeout")
	case errors.Is(err, ai.ErrUnavailable):
		fail(c, http.StatusBadGateway, 50201, "model unavailable")
	case errors.Is(err, context.Canceled):
		// client went away; nothing useful to write
	default:
		log.Printf("[llm] pipeline error: %v", err)
		fail(c, http.StatusInternalServerError, 50001, "internal error")
	}
}

type createSessionReq struct {
	DatasetID string `json:"dataset_id" binding:"required"`
}

func (h *Handler) CreateLLMSession(c *gin.Context) {
	var req createSessionReq
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	sess, err := h.LLM.CreateSession(c.Request.Context(), req.DatasetID)
	if err != nil {
		failPipeline(c, err)
		return
	}
	ok(c, sess)
}

func (h *Handler) ListSessionMessages(c *gin.Context) {
	sessionID := c.Param("session_id")
	limit, _ := strconv.Atoi(c.Query("limit"))

	msgs, err := h.LLM.ListMessages(c.Request.Context(), sessionID, limit)
	if err != nil {
		failPipeline(c, err)
		return
	}
	ok(c, gin.H{"messages": msgs})
}

type queryReq struct {
	SessionID string `json:"session_id"`
	DatasetID string `json:"dataset_id"`
	Query     string `json:"query" binding:"required"`
}

func (r *queryReq) validate() error {
	if r.SessionID == "" && r.DatasetID == "" {
		return errors.New("session_id or dataset_id required")
	}
	return nil
}

func (h *Handler) Query(c *gin.Context) {
	var req queryReq
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	if err := req.validate(); err != nil {
		fail(c, http.StatusBadRequest, 10002, err.Error())
		return
	}

	resp, err := h.LLM.RunQuery(c.Request.Context(), llm.QueryRequest{
		SessionID: req.SessionID,
		DatasetID: req.DatasetID,
		Query:     req.Query,
	})
	if err != nil {
		failPipeline(c, err)
		return
	}
	ok(c, resp)
}

type executeCodeReq struct {
	DatasetID string `json:"dataset_id" binding:"required"`
	Code      string `json:"code" binding:"required"`
}

func (h *Handler) ExecuteCode(c *gin.Context) {
	var req executeCodeReq
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	result, err := h.LLM.RunCode(c.Request.Context(), req.DatasetID, req.Code)
	if err != nil {
		failPipeline(c, err)
		return
	}
	ok(c, result)
}

func (h *Handler) QueryStream(c *gin.Context) {
	var req queryReq
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	if err := req.validate(); err != nil {
		fail(c, http.StatusBadRequest, 10002, err.Error())
		return
	}

	// SSE headers
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	flusher, canFlush := c.Writer.(http.Flusher)
	if !canFlush {
		fmt.Fprintf(c.Writer, "event: error\ndata: {\"message\":\"streaming not supported\"}\n\n")
		return
	}

	writeJSON := func(event string, payload any) {
		b, err := json.Marshal(payload)
		if err != nil {
			fmt.Fprintf(c.Writer, "event: error\ndata: {\"message\":\"json marshal failed\"}\n\n")
			flusher.Flush()
			return
		}
		fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", event, b)
		flusher.Flush()
	}

	ctx := c.Request.Context()
	chunks, final, errs := h.LLM.StreamQuery(ctx, llm.QueryRequest{
		SessionID: req.SessionID,
		DatasetID: req.DatasetID,
		Query:     req.Query,
	})

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case ch, open := <-chunks:
			if !open {
				chunks = nil
				continue
			}
			writeJSON("chunk", gin.H{"type": "chunk", "delta": ch})

		case <-ticker.C:
			writeJSON("ping", gin.H{"type": "ping", "ts": time.Now().Unix()})

		case err, open := <-errs:
			if err != nil {
				writeJSON("error", gin.H{"type": "error", "message": err.Error()})
				return
			}
			if !open {
				errs = nil
				if final == nil && chunks == nil {
					return
				}
			}

		case resp, open := <-final:
			if !open {
				final = nil
				if errs == nil && chunks == nil {
					return
				}
				continue
			}
			if resp.Result != nil {
				writeJSON("execution_result", gin.H{"type": "execution_result", "result": resp.Result})
			}
			writeJSON("done", gin.H{
				"type":        "done",
				"explanation": resp.Explanation,
				"code":        resp.Code,
				"query_time":  resp.QueryTime,
			})
			return

		case <-ctx.Done():
			return
		}
	}
}

type queryAsyncReq struct {
	SessionID string `json:"session_id" binding:"required"`
	Query     string `json:"query" binding:"required"`
}

func (h *Handler) QueryAsync(c *gin.Context) {
	if h.Rabbit == nil {
		fail(c, http.StatusServiceUnavailable, 50301, "async queries disabled")
		return
	}

	var req queryAsyncReq
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	key := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
	if len(key) > 128 {
		fail(c, http.StatusBadRequest, 10003, "idempotency key too long")
		return
	}
	var keyPtr *string
	if key != "" {
		keyPtr = &key
	}

	job, err := h.LLM.EnqueueQuery(c.Request.Context(), h.Rabbit, req.SessionID, req.Query, keyPtr)
	if err != nil {
		if errors.Is(err, llm.ErrSessionNotFound) {
			fail(c, http.StatusNotFound, 40402, "session not found")
			return
		}
		log.Printf("[QueryAsync] session_id=%s err=%v", req.SessionID, err)
		fail(c, http.StatusInternalServerError, 50002, "enqueue failed")
		return
	}

	ok(c, gin.H{"job_id": job.ID, "status": job.Status})
}

func (h *Handler) GetJob(c *gin.Context) {
	jobID := c.Param("job_id")
	if jobID == "" {
		fail(c, http.StatusBadRequest, 10002, "job_id required")
		return
	}

	job, err := h.LLM.GetJob(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			fail(c, http.StatusNotFound, 40404, "job not found")
			return
		}
		log.Printf("[GetJob] job_id=%s err=%v", jobID, err)
		fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}
	ok(c, job)
}
