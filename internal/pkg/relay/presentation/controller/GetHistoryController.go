package controller

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mohammednazmy/VoiceAssist-sub005/internal/pkg/relay/application/usecase"
	"github.com/mohammednazmy/VoiceAssist-sub005/internal/pkg/relay/auth"
	relay "github.com/mohammednazmy/VoiceAssist-sub005/internal/pkg/relay/domain"
	repository "github.com/mohammednazmy/VoiceAssist-sub005/internal/pkg/relay/persistence/repository/port"
)

// GetHistoryController serves recent conversation history over REST.
// This is the read path the realtime relay deliberately does not use.
type GetHistoryController struct {
	gate      *auth.Gate
	historyUC *usecase.GetHistoryUseCase
	timeout   time.Duration
}

func NewGetHistoryController(gate *auth.Gate, store repository.ConversationStore) *GetHistoryController {
	return &GetHistoryController{
		gate:      gate,
		historyUC: usecase.NewGetHistoryUseCase(store),
		timeout:   5 * time.Second,
	}
}

func (ctl *GetHistoryController) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		identity, err := ctl.gate.Verify(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			return
		}

		limit := 50
		if v := c.Query("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 200 {
				limit = n
			}
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), ctl.timeout)
		defer cancel()

		msgs, err := ctl.historyUC.Execute(ctx, usecase.GetHistoryInput{
			UserID:         identity.UserID,
			ConversationID: c.Param("conversationId"),
			Limit:          limit,
		})
		switch {
		case errors.Is(err, relay.ErrNotOwner):
			c.JSON(http.StatusForbidden, gin.H{"error": "conversation does not belong to user"})
		case errors.Is(err, usecase.ErrPersistence):
			c.JSON(http.StatusInternalServerError, gin.H{"error": "history unavailable"})
		case err != nil:
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusOK, gin.H{"messages": msgs})
		}
	}
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if after, ok := strings.CutPrefix(header, "Bearer "); ok {
		return after
	}
	return ""
}
