package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/consultbridge/ConsultBridge-Backend/internal/handlers"
	"github.com/consultbridge/ConsultBridge-Backend/internal/middlewares"
)

func RegisterProtectedEndpoints(
	router *gin.Engine,
	sessionHandler *handlers.SessionHandler,
	recordingHandler *handlers.RecordingHandler,
	jwtSecret string,
) {
	protected := router.Group("/api")
	protected.Use(middlewares.AuthMiddleware(jwtSecret))

	protected.POST("/sessions", sessionHandler.CreateSession)
	protected.POST("/sessions/from-booking", sessionHandler.CreateFromBooking)
	protected.GET("/sessions/:id/access", sessionHandler.GetAccess)
	protected.POST("/sessions/:id/end", sessionHandler.EndSession)
	protected.POST("/sessions/:id/events", sessionHandler.SessionEvent)

	protected.POST("/recordings/sync", recordingHandler.SyncRecordings)
}
