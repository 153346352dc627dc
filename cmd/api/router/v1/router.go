package v1

import (
	"github.com/gin-gonic/gin"

	"github.com/mohammednazmy/VoiceAssist-sub005/internal/pkg/relay/presentation/controller"
	httpHandler "github.com/mohammednazmy/VoiceAssist-sub005/internal/pkg/relay/presentation/http"
)

// RegisterRoutes mounts the realtime socket and the versioned REST API.
func RegisterRoutes(r *gin.Engine, socketCtl *controller.RealtimeSocketController, historyCtl *controller.GetHistoryController) {
	v1 := r.Group("/api/v1")
	httpHandler.RegisterRoutes(r, v1, socketCtl, historyCtl)
}
