package http

import (
	"net/http"
	"time"

	"streamcast/internal/core/domain"
	"streamcast/internal/core/ports"
	"streamcast/pkg/config"

	"github.com/gin-gonic/gin"
	webrtc "github.com/pion/webrtc/v3"
)

type StreamResponse struct {
	StreamID  domain.StreamID `json:"stream_id"`
	UserID    domain.UserID   `json:"user_id"`
	Username  string          `json:"username"`
	Title     string          `json:"stream_title"`
	Thumbnail string          `json:"thumbnail"`
	Live      bool            `json:"is_live"`
	CreatedAt time.Time       `json:"created_at"`
	EndedAt   *time.Time      `json:"ended_at,omitempty"`
}

func toStreamResponses(streams []*domain.Stream) []StreamResponse {
	out := make([]StreamResponse, 0, len(streams))
	for _, s := range streams {
		out = append(out, StreamResponse{
			StreamID:  s.ID,
			UserID:    s.UserID,
			Username:  s.Username,
			Title:     s.Title,
			Thumbnail: s.Thumbnail,
			Live:      s.Live,
			CreatedAt: s.CreatedAt,
			EndedAt:   s.EndedAt,
		})
	}
	return out
}

type StreamHandler struct {
	catalog    ports.CatalogService
	iceServers []webrtc.ICEServer
}

var _ ports.RouteRegistrar = (*StreamHandler)(nil)

func NewStreamHandler(catalog ports.CatalogService, iceServers []webrtc.ICEServer) *StreamHandler {
	return &StreamHandler{
		catalog:    catalog,
		iceServers: iceServers,
	}
}

func (h *StreamHandler) RegisterRoutes(group *gin.RouterGroup) {
	group.GET("/streams/live", h.ListLive)
	group.GET("/streams/search", h.Search)
	group.GET("/ice-servers", h.ICEServers)
}

func (h *StreamHandler) ListLive(c *gin.Context) {
	streams, err := h.catalog.ListLive(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"streams": toStreamResponses(streams)})
}

func (h *StreamHandler) Search(c *gin.Context) {
	streams, err := h.catalog.Search(c.Request.Context(), c.Query("q"))
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"streams": toStreamResponses(streams)})
}

// ICEServers tells clients which STUN/TURN servers to hand to their peer
// connections before they start negotiating.
func (h *StreamHandler) ICEServers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ice_servers": h.iceServers})
}

func ICEServersFromConfig(servers []config.ICEServer) []webrtc.ICEServer {
	out := make([]webrtc.ICEServer, 0, len(servers))
	for _, s := range servers {
		server := webrtc.ICEServer{URLs: s.URLs}
		if s.Username != "" {
			server.Username = s.Username
			server.Credential = s.Credential
			server.CredentialType = webrtc.ICECredentialTypePassword
		}
		out = append(out, server)
	}
	return out
}
