package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/mohamedazimal27/rag-docmind/internal/app"
	"github.com/mohamedazimal27/rag-docmind/internal/model"
	"github.com/mohamedazimal27/rag-docmind/internal/transport/http/response"
)

// Asker answers questions and serves the transcript.
type Asker interface {
	Ask(ctx context.Context, input app.AskInput) (string, error)
	History(ctx context.Context, userID uint, limit int) ([]model.Message, error)
}

var askErrorRules = []errorRule{
	{target: app.ErrInvalidInput, status: http.StatusBadRequest, code: response.CodeBadRequest},
	{target: app.ErrQuestionEmpty, status: http.StatusBadRequest, code: response.CodeBadRequest},
}

type ChatHandler struct {
	chatService Asker
}

type AskRequest struct {
	Question string `json:"question" binding:"required,max=4000"`
}

func NewChatHandler(chatService Asker) *ChatHandler {
	return &ChatHandler{chatService: chatService}
}

func (h *ChatHandler) Ask(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	var req AskRequest
	if !bindJSON(c, &req) {
		return
	}

	answer, err := h.chatService.Ask(c.Request.Context(), app.AskInput{
		UserID:   userID,
		Question: req.Question,
	})
	if err != nil {
		writeError(c, err, askErrorRules, "ask failed")
		return
	}

	response.OK(c, gin.H{"answer": answer})
}

func (h *ChatHandler) GetHistory(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	limit := 50
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}

	history, err := h.chatService.History(c.Request.Context(), userID, limit)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "get history failed")
		return
	}

	response.OK(c, history)
}
