package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/starcoach/starcoach/internal/api/handlers"
)

type Deps struct {
	Config *handlers.ConfigHandler
	Answer *handlers.AnswerHandler
	WS     *handlers.WSHandler
}

func RegisterRoutes(r *gin.Engine, d Deps) {
	// Health-ish
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{"message": "pong"})
	})

	r.GET("/api/test", d.Config.Test)
	r.GET("/api/config", d.Config.Get)
	r.POST("/api/answer", d.Answer.Generate)

	// WebSocket
	r.GET("/ws", d.WS.Meeting)
}
