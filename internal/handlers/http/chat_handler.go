package http

import (
	"net/http"
	"strconv"
	"time"

	"streamcast/internal/core/domain"
	"streamcast/internal/core/ports"
	"streamcast/internal/infrastructure/middleware"
	apperrors "streamcast/pkg/errors"

	"github.com/gin-gonic/gin"
)

type ChatResponse struct {
	ChatID    int64           `json:"chat_id"`
	StreamID  domain.StreamID `json:"stream_id"`
	UserID    domain.UserID   `json:"user_id"`
	Username  string          `json:"username"`
	Message   string          `json:"chat"`
	CreatedAt time.Time       `json:"created_at"`
}

func toChatResponse(chat *domain.Chat) ChatResponse {
	return ChatResponse{
		ChatID:    chat.ID,
		StreamID:  chat.StreamID,
		UserID:    chat.UserID,
		Username:  chat.Username,
		Message:   chat.Message,
		CreatedAt: chat.CreatedAt,
	}
}

type PostChatRequest struct {
	StreamID int64  `json:"stream_id"`
	Message  string `json:"chat"`
}

type ChatHandler struct {
	catalog  ports.CatalogService
	resolver ports.SessionResolver
}

var _ ports.RouteRegistrar = (*ChatHandler)(nil)

func NewChatHandler(catalog ports.CatalogService, resolver ports.SessionResolver) *ChatHandler {
	return &ChatHandler{
		catalog:  catalog,
		resolver: resolver,
	}
}

func (h *ChatHandler) RegisterRoutes(group *gin.RouterGroup) {
	group.GET("/chats", h.Latest)
	group.POST("/chats", middleware.AuthMiddleware(h.resolver), h.Post)
}

// Latest returns the newest chats of ?stream_id=, newest first.
func (h *ChatHandler) Latest(c *gin.Context) {
	streamID, err := strconv.ParseInt(c.Query("stream_id"), 10, 64)
	if err != nil {
		_ = c.Error(apperrors.NewInvalidInputError("stream_id must be an integer").WithContext("field", "stream_id"))
		return
	}

	chats, err := h.catalog.LatestChats(c.Request.Context(), domain.StreamID(streamID))
	if err != nil {
		_ = c.Error(err)
		return
	}

	out := make([]ChatResponse, 0, len(chats))
	for _, chat := range chats {
		out = append(out, toChatResponse(chat))
	}
	c.JSON(http.StatusOK, gin.H{"chats": out})
}

// Post stores a chat from the authenticated user.
func (h *ChatHandler) Post(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		_ = c.Error(apperrors.NewUnauthorizedError("authentication required"))
		return
	}

	var req PostChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperrors.NewInvalidInputError("invalid request body"))
		return
	}

	chat, err := h.catalog.PostChat(c.Request.Context(), userID, domain.StreamID(req.StreamID), req.Message)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, toChatResponse(chat))
}
