package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/yoockh/civicvoice/internal/api/handlers"
	"github.com/yoockh/civicvoice/internal/api/middleware"
)

type Deps struct {
	JWT          middleware.JWTConfig
	Call         *handlers.CallHandler
	Conversation *handlers.ConversationHandler
	Complaint    *handlers.ComplaintHandler
	WS           *handlers.WSHandler
}

func RegisterRoutes(r *gin.Engine, d Deps) {
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{"message": "pong"})
	})

	// Protected routes (JWT)
	auth := r.Group("/")
	auth.Use(middleware.JWTAuth(d.JWT))

	auth.GET("/call", d.Call.Get)
	auth.GET("/call/transcript", d.Call.Transcript)

	ops := auth.Group("/")
	ops.Use(middleware.RequireOperator())
	ops.POST("/call/toggle", d.Call.Toggle)
	ops.POST("/call/end", d.Call.End)
	ops.DELETE("/call/history", d.Call.ClearHistory)

	auth.GET("/conversation/:call_id", d.Conversation.ListByCall)
	auth.GET("/conversation/:call_id/archive", d.Conversation.Archive)
	auth.GET("/complaints/:complaint_id", d.Complaint.Get)

	// WebSocket
	auth.GET("/ws/call", d.WS.CallWS)
}
