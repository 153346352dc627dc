package http

import (
	"github.com/gin-gonic/gin"

	"github.com/mohammednazmy/VoiceAssist-sub005/internal/pkg/relay/presentation/controller"
)

// RegisterRoutes mounts the relay endpoints. The realtime socket lives at
// the root-level /api/realtime path; the history read path is versioned
// REST.
func RegisterRoutes(r *gin.Engine, v1 *gin.RouterGroup, socketCtl *controller.RealtimeSocketController, historyCtl *controller.GetHistoryController) {
	// GET /api/realtime?conversationId=<id>&token=<jwt> -> WebSocket upgrade
	r.GET("/api/realtime", socketCtl.Handle())

	// GET /api/v1/conversations/:conversationId/messages -> recent history
	v1.GET("/conversations/:conversationId/messages", historyCtl.Handle())
}
