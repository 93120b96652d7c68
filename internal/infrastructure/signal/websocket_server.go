package signal

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"streamcast/internal/core/domain"
	"streamcast/internal/core/ports"
	rlog "streamcast/pkg/logger"
	"streamcast/pkg/tracing"
	"streamcast/pkg/validation"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// SignalMessage is the envelope of every frame in both directions.
type SignalMessage struct {
	Type    string          `json:"type"`
	Target  domain.SocketID `json:"target,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type IdentityPayload struct {
	UserID *int64 `json:"user_id,omitempty"`
	Token  string `json:"token,omitempty"`
}

type WatchStreamPayload struct {
	StreamID int64 `json:"stream_id"`
}

type StartStreamPayload struct {
	Title     string `json:"title"`
	Thumbnail string `json:"thumbnail"`
}

type Options struct {
	PingInterval   time.Duration
	PongTimeout    time.Duration
	WriteTimeout   time.Duration
	ReadLimit      int64
	SendBuffer     int
	MessageRate    float64
	MessageBurst   int
	AllowedOrigins []string
}

func DefaultOptions() Options {
	return Options{
		PingInterval: 30 * time.Second,
		PongTimeout:  60 * time.Second,
		WriteTimeout: 10 * time.Second,
		ReadLimit:    64 * 1024,
		SendBuffer:   256,
		MessageRate:  50,
		MessageBurst: 100,
	}
}

type WebSocketServer struct {
	signal ports.SignalService
	hub    *Hub
	opts   Options

	upgrader websocket.Upgrader
	// admitMu orders admissions against Shutdown: a socket is either
	// refused or registered before CloseAll runs.
	admitMu sync.Mutex
	active  sync.WaitGroup
	closing atomic.Bool

	logger *zap.SugaredLogger
}

func NewWebSocketServer(signal ports.SignalService, hub *Hub, opts Options, logger *zap.SugaredLogger) *WebSocketServer {
	s := &WebSocketServer{
		signal: signal,
		hub:    hub,
		opts:   opts,
		logger: logger,
	}
	s.upgrader = websocket.Upgrader{
		CheckOrigin:     s.checkOrigin,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
	return s
}

// checkOrigin allows every origin when none are configured.
func (s *WebSocketServer) checkOrigin(r *http.Request) bool {
	if len(s.opts.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	for _, allowed := range s.opts.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

func (s *WebSocketServer) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.closing.Load() {
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Errorw("websocket upgrade failed", "error", err)
		return
	}

	socketID, c, ok := s.admit(conn)
	if !ok {
		_ = conn.Close()
		return
	}
	defer s.active.Done()

	ctx := rlog.WithSocketID(context.Background(), socketID)
	go s.hub.writePump(c, s.opts.PingInterval, s.opts.WriteTimeout)
	s.hub.Send(socketID, domain.EventConnected, domain.SocketPayload{SocketID: socketID})

	defer func() {
		s.hub.unregister(socketID)
		s.signal.Disconnect(ctx, socketID)
		_ = conn.Close()
	}()

	conn.SetReadLimit(s.opts.ReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(s.opts.PongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.opts.PongTimeout))
	})

	limiter := rate.NewLimiter(rate.Limit(s.opts.MessageRate), s.opts.MessageBurst)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Infow("error reading message from socket", "socket_id", socketID, "error", err)
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(s.opts.PongTimeout))

		if !limiter.Allow() {
			s.sendError(socketID, "rate limit exceeded")
			continue
		}

		var msg SignalMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.sendError(socketID, "malformed message")
			continue
		}

		if err := s.dispatch(ctx, socketID, msg); err != nil {
			session, _ := s.signal.Session(socketID)
			s.logger.Infow("error handling message from socket",
				"socket_id", socketID,
				"type", msg.Type,
				"roles", session.Roles(),
				"error", err,
			)
			s.sendError(socketID, err.Error())
		}
	}
}

// admit registers an upgraded connection unless the server is closing. On
// success the caller owns one count on active.
func (s *WebSocketServer) admit(conn *websocket.Conn) (domain.SocketID, *client, bool) {
	s.admitMu.Lock()
	defer s.admitMu.Unlock()

	if s.closing.Load() {
		return "", nil, false
	}
	s.active.Add(1)
	socketID := s.signal.Connect(context.Background())
	return socketID, s.hub.register(socketID, conn), true
}

// dispatch wraps handleMessage in a span so store calls made for the frame
// are traced under it.
func (s *WebSocketServer) dispatch(ctx context.Context, socketID domain.SocketID, msg SignalMessage) error {
	ctx, span := tracing.TraceSignal(ctx, msg.Type, string(socketID))
	defer span.End()

	err := s.handleMessage(ctx, socketID, msg)
	tracing.RecordError(ctx, err)
	return err
}

func (s *WebSocketServer) handleMessage(ctx context.Context, socketID domain.SocketID, msg SignalMessage) error {
	if msg.Type == "" {
		return fmt.Errorf("message type is required")
	}

	switch msg.Type {
	case domain.EventIdentityAnnounce:
		return s.handleIdentity(ctx, socketID, msg)
	case domain.EventBecomeBroadcaster:
		s.signal.BecomeBroadcaster(ctx, socketID)
		return nil
	case domain.EventWatcherReady:
		s.signal.WatcherReady(ctx, socketID)
		return nil
	case domain.EventWatchStream:
		return s.handleWatchStream(ctx, socketID, msg)
	case domain.EventStartStream:
		return s.handleStartStream(ctx, socketID, msg)
	case domain.EventStopStream:
		s.signal.StopStream(ctx, socketID)
		return nil
	case string(domain.SignalOffer), string(domain.SignalAnswer), string(domain.SignalCandidate):
		return s.handleRelay(ctx, socketID, msg)
	default:
		return fmt.Errorf("unknown message type: %s", msg.Type)
	}
}

func (s *WebSocketServer) handleIdentity(ctx context.Context, socketID domain.SocketID, msg SignalMessage) error {
	var payload IdentityPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return fmt.Errorf("invalid identity payload: %w", err)
	}

	switch {
	case payload.Token != "":
		return s.signal.AnnounceToken(ctx, socketID, payload.Token)
	case payload.UserID != nil:
		return s.signal.AnnounceIdentity(ctx, socketID, domain.UserID(*payload.UserID))
	default:
		return fmt.Errorf("user_id or token is required")
	}
}

func (s *WebSocketServer) handleWatchStream(ctx context.Context, socketID domain.SocketID, msg SignalMessage) error {
	var payload WatchStreamPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return fmt.Errorf("invalid watch-stream payload: %w", err)
	}

	// unknown ids still get watcher-accepted
	s.signal.WatchStream(ctx, socketID, domain.StreamID(payload.StreamID))
	return nil
}

func (s *WebSocketServer) handleStartStream(ctx context.Context, socketID domain.SocketID, msg SignalMessage) error {
	var payload StartStreamPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return fmt.Errorf("invalid start-stream payload: %w", err)
	}
	title := strings.TrimSpace(payload.Title)
	if err := validation.ValidateStreamTitle(title); err != nil {
		s.dropStartStream(socketID, err)
		return nil
	}
	if err := validation.ValidateThumbnail(payload.Thumbnail); err != nil {
		s.dropStartStream(socketID, err)
		return nil
	}

	s.signal.StartStream(ctx, socketID, title, payload.Thumbnail)
	return nil
}

// dropStartStream ignores a start-stream the store would not accept. The
// peer gets no reply, the same as a start-stream without identity.
func (s *WebSocketServer) dropStartStream(socketID domain.SocketID, err error) {
	s.logger.Infow("start-stream rejected", "socket_id", socketID, "error", err)
}

func (s *WebSocketServer) handleRelay(ctx context.Context, socketID domain.SocketID, msg SignalMessage) error {
	if err := validation.ValidateSocketID(string(msg.Target)); err != nil {
		return fmt.Errorf("invalid target: %w", err)
	}
	if len(msg.Payload) == 0 {
		return fmt.Errorf("%s payload is required", msg.Type)
	}

	return s.signal.Relay(ctx, domain.SignalKind(msg.Type), socketID, msg.Target, msg.Payload)
}

func (s *WebSocketServer) sendError(socketID domain.SocketID, message string) {
	s.hub.Send(socketID, domain.EventError, domain.ErrorPayload{Message: message})
}

func (s *WebSocketServer) HealthCheck(w http.ResponseWriter, r *http.Request) {
	stats := s.signal.Stats()

	status := "healthy"
	if s.closing.Load() {
		status = "shutting_down"
	}

	response := map[string]interface{}{
		"status":       status,
		"timestamp":    time.Now().Unix(),
		"connections":  s.hub.Count(),
		"broadcasters": stats.Broadcasters,
		"viewers":      stats.Viewers,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// Shutdown refuses new sockets, closes the open ones and waits for their
// teardown to finish or ctx to expire.
func (s *WebSocketServer) Shutdown(ctx context.Context) error {
	s.admitMu.Lock()
	s.closing.Store(true)
	s.admitMu.Unlock()
	s.hub.CloseAll()

	done := make(chan struct{})
	go func() {
		s.active.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
