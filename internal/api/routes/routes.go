package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/Sabeehq11/CMI/internal/api/handlers"
)

type Deps struct {
	WS        *handlers.WSHandler
	Interview *handlers.InterviewHandler
	TurnLog   *handlers.TurnLogHandler

	RelayPath string
}

func RegisterRoutes(r *gin.Engine, d Deps) {
	// Health-ish
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{"message": "pong"})
	})

	relayPath := d.RelayPath
	if relayPath == "" {
		relayPath = "/websocket"
	}
	r.GET(relayPath, d.WS.Relay)

	api := r.Group("/api")
	api.POST("/transcribe", d.Interview.Transcribe)
	api.POST("/generate-response", d.Interview.GenerateResponse)
	api.GET("/session/:session_id/turns", d.TurnLog.ListBySession)
}
