package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/bioviz/bioviz/internal/ai"
	"github.com/bioviz/bioviz/internal/analysis"
	"github.com/bioviz/bioviz/internal/config"
	"github.com/bioviz/bioviz/internal/dataset"
	"github.com/bioviz/bioviz/internal/llm"
	"github.com/bioviz/bioviz/internal/sandbox"
)

func ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{
		"code":    0,
		"message": "ok",
		"data":    data,
	})
}

func fail(c *gin.Context, httpStatus int, code int, msg string) {
	c.JSON(httpStatus, gin.H{
		"code":    code,
		"message": msg,
		"data":    nil,
	})
}

type Handler struct {
	Cfg      config.Config
	Datasets *dataset.Registry
	Analysis *analysis.Service
	LLM      *llm.Service
	Rabbit   llm.JobPublisher
}

// NewHandler wires the services. rabbit may be nil when async queries
// are disabled (tests, single-process deployments).
func NewHandler(db *gorm.DB, cfg config.Config, cache dataset.Cache, rabbit llm.JobPublisher) (*Handler, error) {
	datasets, err := dataset.NewRegistry(db, cache, cfg.UploadDir, cfg.MaxUploadSize, cfg.AllowedExtensions)
	if err != nil {
		return nil, err
	}

	opts := ai.Options{MaxTokens: cfg.LLMMaxTokens, Temperature: cfg.LLMTemperature}
	registry := ai.NewRegistry()
	registry.Register("ollama", func(_ context.Context, model string) (ai.Provider, error) {
		return ai.NewOllamaProvider(cfg.LLMServerURL, model, opts), nil
	})
	registry.Register("llamacpp", func(_ context.Context, model string) (ai.Provider, error) {
		return ai.NewLlamaCppProvider(cfg.LLMServerURL, "", model, opts), nil
	})

	backend := strings.ToLower(cfg.LLMBackend)
	switch backend {
	case "", "ollama":
		backend = "ollama"
	case "llamacpp":
	default:
		return nil, fmt.Errorf("unsupported LLM_BACKEND=%q", cfg.LLMBackend)
	}

	repo, err := llm.NewRepo(db)
	if err != nil {
		return nil, err
	}

	svc := llm.NewService(
		datasets,
		registry,
		sandbox.NewRunner(cfg.SandboxTimeout, cfg.SandboxMaxSteps),
		repo,
		llm.NewBuilder(cfg.LLMContextWindow),
		backend,
		cfg.LLMModel,
		cfg.LLMTimeout,
		cfg.ChatContextWindow,
	)

	return &Handler{
		Cfg:      cfg,
		Datasets: datasets,
		Analysis: analysis.NewService(datasets),
		LLM:      svc,
		Rabbit:   rabbit,
	}, nil
}

func (h *Handler) Ping(c *gin.Context) {
	ok(c, gin.H{"status": "ok", "time": time.Now().Unix()})
}
