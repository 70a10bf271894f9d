package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/bioviz/bioviz/internal/common"
	"github.com/bioviz/bioviz/internal/config"
	"github.com/bioviz/bioviz/internal/dataset"
	"github.com/bioviz/bioviz/internal/httpapi/handlers"
	"github.com/bioviz/bioviz/internal/httpapi/middleware"
	"github.com/bioviz/bioviz/internal/llm"
)

func NewRouter(db *gorm.DB, cfg config.Config, cache dataset.Cache, rabbit llm.JobPublisher) (*gin.Engine, error) {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(gin.Logger())
	r.Use(middleware.Recovery())
	r.Use(middleware.RequestID())

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, 40400, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, 40500, "method not allowed")
	})

	h, err := handlers.NewHandler(db, cfg, cache, rabbit)
	if err != nil {
		return nil, err
	}

	r.GET("/ping", h.Ping)
	r.POST("/login", h.Login)

	api := r.Group("/api")
	api.Use(middleware.AuthRequired(cfg.JWTSecret))

	files := api.Group("/files")
	files.POST("/upload", h.UploadFile)
	files.GET("/list", h.ListFiles)
	files.GET("/schema/:file_id", h.GetFileSchema)
	files.GET("/preview/:file_id", h.GetFilePreview)
	files.DELETE("/:file_id", h.DeleteFile)

	an := api.Group("/analysis")
	an.GET("/methods", h.ListAnalysisMethods)
	an.GET("/methods/:method", h.GetAnalysisMethod)
	an.POST("/run", h.RunAnalysis)

	ai := api.Group("/llm")
	ai.POST("/sessions", h.CreateLLMSession)
	ai.GET("/sessions/:session_id/messages", h.ListSessionMessages)
	ai.POST("/query", h.Query)
	ai.POST("/query/stream", h.QueryStream)
	ai.POST("/query/async", h.QueryAsync)
	ai.GET("/jobs/:job_id", h.GetJob)
	ai.POST("/execute-code", h.ExecuteCode)

	return r, nil
}
