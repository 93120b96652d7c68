package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"streamcast/internal/core/domain"
)

// MemoryStore keeps streams and chats in process memory. It serves local
// development and tests and loses everything on restart.
type MemoryStore struct {
	streams   map[domain.StreamID]*domain.Stream
	chats     map[domain.StreamID][]*domain.Chat
	usernames map[domain.UserID]string
	nextID    domain.StreamID
	nextChat  int64
	mu        sync.RWMutex

	now func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		streams:   make(map[domain.StreamID]*domain.Stream),
		chats:     make(map[domain.StreamID][]*domain.Chat),
		usernames: make(map[domain.UserID]string),
		now:       time.Now,
	}
}

// SetUsername records the display name joined into listings.
func (r *MemoryStore) SetUsername(userID domain.UserID, username string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.usernames[userID] = username
}

func (r *MemoryStore) CreateStream(ctx context.Context, userID domain.UserID, title, thumbnail string) (domain.StreamID, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	r.streams[r.nextID] = &domain.Stream{
		ID:        r.nextID,
		UserID:    userID,
		Title:     title,
		Thumbnail: thumbnail,
		Live:      true,
		CreatedAt: r.now(),
	}
	return r.nextID, nil
}

func (r *MemoryStore) MarkStreamsEnded(ctx context.Context, userID domain.UserID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, stream := range r.streams {
		if stream.UserID == userID && stream.Live {
			r.end(stream)
		}
	}
	return nil
}

func (r *MemoryStore) MarkStreamEnded(ctx context.Context, streamID domain.StreamID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stream, exists := r.streams[streamID]
	if !exists {
		return domain.ErrStreamNotFound
	}
	if stream.Live {
		r.end(stream)
	}
	return nil
}

func (r *MemoryStore) ListLive(ctx context.Context) ([]*domain.Stream, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	live := make([]*domain.Stream, 0)
	for _, stream := range r.streams {
		if stream.Live {
			live = append(live, r.view(stream))
		}
	}
	sort.Slice(live, func(i, j int) bool { return live[i].ID > live[j].ID })
	return live, nil
}

func (r *MemoryStore) SearchByTitle(ctx context.Context, prefix string, limit int) ([]*domain.Stream, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	found := make([]*domain.Stream, 0)
	for _, stream := range r.streams {
		if strings.HasPrefix(stream.Title, prefix) {
			found = append(found, r.view(stream))
		}
	}
	sort.Slice(found, func(i, j int) bool {
		if found[i].Live != found[j].Live {
			return found[i].Live
		}
		return found[i].ID > found[j].ID
	})
	if limit > 0 && len(found) > limit {
		found = found[:limit]
	}
	return found, nil
}

func (r *MemoryStore) Insert(ctx context.Context, chat *domain.Chat) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.streams[chat.StreamID]; !exists {
		return domain.ErrStreamNotFound
	}

	r.nextChat++
	chat.ID = r.nextChat
	chat.CreatedAt = r.now()
	stored := *chat
	r.chats[chat.StreamID] = append(r.chats[chat.StreamID], &stored)
	return nil
}

// Latest returns the newest chats first.
func (r *MemoryStore) Latest(ctx context.Context, streamID domain.StreamID, limit int) ([]*domain.Chat, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := r.chats[streamID]
	out := make([]*domain.Chat, 0, len(all))
	for i := len(all) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		c := *all[i]
		c.Username = r.usernames[c.UserID]
		out = append(out, &c)
	}
	return out, nil
}

func (r *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (r *MemoryStore) Close() {}

func (r *MemoryStore) end(stream *domain.Stream) {
	ended := r.now()
	stream.Live = false
	stream.EndedAt = &ended
}

// view returns a copy so callers never share state with the store.
func (r *MemoryStore) view(stream *domain.Stream) *domain.Stream {
	s := *stream
	s.Username = r.usernames[s.UserID]
	return &s
}
