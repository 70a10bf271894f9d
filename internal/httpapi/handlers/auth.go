package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bioviz/bioviz/internal/auth"
)

const tokenTTL = 24 * time.Hour

type loginReq struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *Handler) Login(c *gin.Context) {
	var req loginReq
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	if req.Username != h.Cfg.AuthUsername || !auth.CheckPassword(h.Cfg.AuthPasswordHash, req.Password) {
		fail(c, http.StatusUnauthorized, 40103, "invalid credentials")
		return
	}

	token, err := auth.SignJWT(req.Username, h.Cfg.JWTSecret, tokenTTL)
	if err != nil {
		fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}

	ok(c, gin.H{
		"token":      token,
		"expires_in": int(tokenTTL.Seconds()),
	})
}
