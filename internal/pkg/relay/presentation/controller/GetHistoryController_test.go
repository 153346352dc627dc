package controller

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohammednazmy/VoiceAssist-sub005/internal/pkg/relay/auth"
	relay "github.com/mohammednazmy/VoiceAssist-sub005/internal/pkg/relay/domain"
)

func historyRequest(t *testing.T, store *stubStore, token string, query string) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ctl := NewGetHistoryController(auth.NewGate(testSecret), store)
	r := gin.New()
	r.GET("/api/v1/conversations/:conversationId/messages", ctl.Handle())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/conversations/c1/messages"+query, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestGetHistoryReturnsMessages(t *testing.T) {
	store := &stubStore{
		owner: "u1",
		history: []relay.Message{
			{ID: "m1", ConversationID: "c1", Role: relay.RoleUser, Content: "Hello", CreatedAt: time.UnixMilli(1000)},
			{ID: "a1", ConversationID: "c1", Role: relay.RoleAssistant, Content: "Hi there", CreatedAt: time.UnixMilli(2000)},
		},
	}

	w := historyRequest(t, store, mintToken(t, "u1"), "")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Messages []relay.Message `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Messages, 2)
	assert.Equal(t, "m1", body.Messages[0].ID)
	assert.Equal(t, relay.RoleAssistant, body.Messages[1].Role)
}

func TestGetHistoryUnauthorized(t *testing.T) {
	store := &stubStore{owner: "u1"}

	assert.Equal(t, http.StatusUnauthorized, historyRequest(t, store, "", "").Code)
	assert.Equal(t, http.StatusUnauthorized, historyRequest(t, store, "garbage", "").Code)
}

func TestGetHistoryForbiddenForNonOwner(t *testing.T) {
	store := &stubStore{owner: "u1"}

	w := historyRequest(t, store, mintToken(t, "u2"), "")
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestGetHistoryStoreFailure(t *testing.T) {
	store := &stubStore{owner: "u1", readErr: errors.New("db down")}

	w := historyRequest(t, store, mintToken(t, "u1"), "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
