package controller

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	cacheport "github.com/mohammednazmy/VoiceAssist-sub005/internal/infrastructure/cache/port"
	"github.com/mohammednazmy/VoiceAssist-sub005/internal/infrastructure/realtime"
	"github.com/mohammednazmy/VoiceAssist-sub005/internal/pkg/relay/application/usecase"
	"github.com/mohammednazmy/VoiceAssist-sub005/internal/pkg/relay/auth"
	repository "github.com/mohammednazmy/VoiceAssist-sub005/internal/pkg/relay/persistence/repository/port"
	"github.com/mohammednazmy/VoiceAssist-sub005/internal/pkg/relay/protocol"
	"github.com/mohammednazmy/VoiceAssist-sub005/internal/pkg/relay/ratelimit"
	"github.com/mohammednazmy/VoiceAssist-sub005/internal/pkg/relay/session"
	"github.com/mohammednazmy/VoiceAssist-sub005/internal/pkg/relay/upstream"
)

// RealtimeSocketController handles the /api/realtime endpoint: it
// authorizes the handshake, upgrades to WebSocket, and runs the session
// until the connection dies.
type RealtimeSocketController struct {
	gate         *auth.Gate
	store        repository.ConversationStore
	registry     *realtime.Registry
	limiter      *ratelimit.Limiter
	upstream     *upstream.Client
	model        string
	persistUC    *usecase.PersistMessageUseCase
	dedup        cacheport.Cache
	logger       zerolog.Logger
	pingInterval time.Duration
}

// SocketDeps wires the controller. Everything shared across sessions
// (registry, limiter, dedup cache, upstream client) comes in here once.
type SocketDeps struct {
	Gate         *auth.Gate
	Store        repository.ConversationStore
	Registry     *realtime.Registry
	Limiter      *ratelimit.Limiter
	Upstream     *upstream.Client
	Model        string
	Persist      *usecase.PersistMessageUseCase
	Dedup        cacheport.Cache
	Logger       zerolog.Logger
	PingInterval time.Duration
}

func NewRealtimeSocketController(deps SocketDeps) *RealtimeSocketController {
	return &RealtimeSocketController{
		gate:         deps.Gate,
		store:        deps.Store,
		registry:     deps.Registry,
		limiter:      deps.Limiter,
		upstream:     deps.Upstream,
		model:        deps.Model,
		persistUC:    deps.Persist,
		dedup:        deps.Dedup,
		logger:       deps.Logger,
		pingInterval: deps.PingInterval,
	}
}

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Browsers send credentials via query token, not cookies, so
		// cross-origin upgrades carry no ambient authority.
		return true
	},
}

// Handle authorizes and upgrades the connection, then blocks for its
// lifetime. Both query parameters are required; any auth failure rejects
// the handshake before upgrading, so no session is ever created for it.
func (ctl *RealtimeSocketController) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		conversationID := c.Query("conversationId")
		token := c.Query("token")
		if conversationID == "" || token == "" {
			ctl.rejectHandshake(c, "conversationId and token are required")
			return
		}

		identity, err := ctl.gate.Verify(token)
		if err != nil {
			ctl.rejectHandshake(c, "invalid or expired token")
			return
		}

		owned, err := ctl.store.Authorize(c.Request.Context(), identity.UserID, conversationID)
		if err != nil {
			ctl.logger.Error().Err(err).Msg("ownership check failed")
			ctl.rejectHandshake(c, "authorization unavailable")
			return
		}
		if !owned {
			ctl.rejectHandshake(c, "conversation does not belong to user")
			return
		}

		ws, err := wsUpgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			// Upgrade already wrote the response; nothing more to do.
			return
		}

		conn := realtime.NewConnection(identity.UserID, conversationID, ws)
		sess := session.New(conn, session.Deps{
			Registry:     ctl.registry,
			Limiter:      ctl.limiter,
			Streamer:     upstream.NewRelay(ctl.upstream, ctl.model),
			Persist:      ctl.persistUC,
			Dedup:        ctl.dedup,
			Logger:       ctl.logger,
			PingInterval: ctl.pingInterval,
		})
		sess.Run(c.Request.Context())
	}
}

func (ctl *RealtimeSocketController) rejectHandshake(c *gin.Context, message string) {
	c.JSON(http.StatusUnauthorized, gin.H{
		"error": gin.H{
			"code":    protocol.CodeAuthFailed,
			"message": message,
		},
	})
}
