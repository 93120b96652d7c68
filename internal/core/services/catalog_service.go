package services

import (
	"context"
	"strings"
	"time"

	"streamcast/internal/core/domain"
	"streamcast/internal/core/ports"
	"streamcast/pkg/cache"
	apperrors "streamcast/pkg/errors"
	"streamcast/pkg/utils"
	"streamcast/pkg/validation"

	"go.uber.org/zap"
)

const (
	SearchLimit = 20
	ChatLimit   = 10

	liveKey      = "streams:live"
	searchPrefix = "streams:search:"
)

// CatalogService reads and writes the persisted records behind the HTTP API.
// Stream listings are cached briefly and dropped whenever a stream starts or
// ends, locally or on another instance.
type CatalogService struct {
	catalog ports.StreamCatalog
	chats   ports.ChatRepository
	cache   *cache.Cache[[]*domain.Stream]
	logger  *zap.SugaredLogger
}

var (
	_ ports.CatalogService = (*CatalogService)(nil)
	_ ports.EventPublisher = (*CatalogService)(nil)
)

func NewCatalogService(catalog ports.StreamCatalog, chats ports.ChatRepository, cacheTTL time.Duration, logger *zap.SugaredLogger) *CatalogService {
	return &CatalogService{
		catalog: catalog,
		chats:   chats,
		cache:   cache.New[[]*domain.Stream](cacheTTL),
		logger:  logger,
	}
}

func (s *CatalogService) ListLive(ctx context.Context) ([]*domain.Stream, error) {
	return s.cache.GetOrLoad(ctx, liveKey, s.catalog.ListLive)
}

// Search matches live and ended streams by title prefix, live ones first.
func (s *CatalogService) Search(ctx context.Context, query string) ([]*domain.Stream, error) {
	query = strings.TrimSpace(query)
	if err := validation.ValidateSearchQuery(query); err != nil {
		return nil, apperrors.NewInvalidInputError(err.Error()).WithContext("field", "q")
	}

	return s.cache.GetOrLoad(ctx, searchPrefix+query, func(ctx context.Context) ([]*domain.Stream, error) {
		return s.catalog.SearchByTitle(ctx, query, SearchLimit)
	})
}

// LatestChats returns the newest messages of a stream, newest first.
func (s *CatalogService) LatestChats(ctx context.Context, streamID domain.StreamID) ([]*domain.Chat, error) {
	if err := validation.ValidateStreamID(int64(streamID)); err != nil {
		return nil, apperrors.NewInvalidInputError(err.Error()).WithContext("field", "stream_id")
	}
	return s.chats.Latest(ctx, streamID, ChatLimit)
}

func (s *CatalogService) PostChat(ctx context.Context, userID domain.UserID, streamID domain.StreamID, message string) (*domain.Chat, error) {
	if err := validation.ValidateStreamID(int64(streamID)); err != nil {
		return nil, apperrors.NewInvalidInputError(err.Error()).WithContext("field", "stream_id")
	}
	message = utils.SanitizeString(message)
	if err := validation.ValidateChatMessage(message); err != nil {
		return nil, apperrors.NewInvalidInputError(err.Error()).WithContext("field", "message")
	}

	chat := &domain.Chat{
		StreamID: streamID,
		UserID:   userID,
		Message:  message,
	}
	if err := s.chats.Insert(ctx, chat); err != nil {
		return nil, err
	}

	s.logger.Debugw("chat posted",
		"stream_id", streamID,
		"user_id", userID,
		"chat_id", chat.ID,
	)
	return chat, nil
}

// Publish drops cached listings when a stream starts or ends.
func (s *CatalogService) Publish(ctx context.Context, event domain.LifecycleEvent) error {
	switch event.Type {
	case domain.LifecycleStreamStarted, domain.LifecycleStreamEnded:
		s.cache.InvalidatePrefix("streams:")
	}
	return nil
}

func (s *CatalogService) Stop() {
	s.cache.Stop()
}
