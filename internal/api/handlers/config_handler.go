package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/starcoach/starcoach/config"
)

type ConfigHandler struct {
	cfg *config.Config
}

func NewConfigHandler(cfg *config.Config) *ConfigHandler {
	return &ConfigHandler{cfg: cfg}
}

// Get exposes the non-secret runtime settings the frontend needs to render
// provider labels and recording parameters. Keys and tokens never leave the
// server.
func (h *ConfigHandler) Get(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"ai_provider":        h.cfg.AIProvider,
		"stt_provider":       h.cfg.STTProvider,
		"language":           h.cfg.Language,
		"sample_rate":        h.cfg.SampleRate,
		"channels":           h.cfg.Channels,
		"chunk_interval_sec": int(h.cfg.ChunkInterval.Seconds()),
		"chunk_overlap_sec":  int(h.cfg.Overlap.Seconds()),
	})
}

func (h *ConfigHandler) Test(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"message": "backend is running",
	})
}
