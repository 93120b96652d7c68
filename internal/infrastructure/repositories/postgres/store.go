package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"streamcast/internal/core/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const foreignKeyViolation = "23503"

// Store persists streams and chats in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) CreateStream(ctx context.Context, userID domain.UserID, title, thumbnail string) (domain.StreamID, error) {
	const q = `INSERT INTO streams (streamer_id, stream_title, thumbnail, is_live)
		VALUES ($1, $2, $3, TRUE)
		RETURNING stream_id`
	var id int64
	if err := s.pool.QueryRow(ctx, q, int64(userID), title, thumbnail).Scan(&id); err != nil {
		return 0, fmt.Errorf("insert stream: %w", err)
	}
	return domain.StreamID(id), nil
}

// MarkStreamsEnded ends every live stream of the user.
func (s *Store) MarkStreamsEnded(ctx context.Context, userID domain.UserID) error {
	const q = `UPDATE streams SET is_live = FALSE, ended_at = NOW()
		WHERE streamer_id = $1 AND is_live`
	if _, err := s.pool.Exec(ctx, q, int64(userID)); err != nil {
		return fmt.Errorf("end streams for user %d: %w", userID, err)
	}
	return nil
}

func (s *Store) MarkStreamEnded(ctx context.Context, streamID domain.StreamID) error {
	const q = `UPDATE streams SET is_live = FALSE, ended_at = NOW()
		WHERE stream_id = $1 AND is_live`
	if _, err := s.pool.Exec(ctx, q, int64(streamID)); err != nil {
		return fmt.Errorf("end stream %d: %w", streamID, err)
	}
	return nil
}

const streamColumns = `s.stream_id, s.streamer_id, COALESCE(u.username, ''), s.stream_title,
	s.thumbnail, s.is_live, s.created_at, s.ended_at`

func (s *Store) ListLive(ctx context.Context) ([]*domain.Stream, error) {
	q := `SELECT ` + streamColumns + `
		FROM streams s
		LEFT JOIN users u ON u.user_id = s.streamer_id
		WHERE s.is_live
		ORDER BY s.stream_id DESC`
	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list live streams: %w", err)
	}
	return collectStreams(rows)
}

// SearchByTitle returns streams whose title starts with prefix.
func (s *Store) SearchByTitle(ctx context.Context, prefix string, limit int) ([]*domain.Stream, error) {
	q := `SELECT ` + streamColumns + `
		FROM streams s
		LEFT JOIN users u ON u.user_id = s.streamer_id
		WHERE s.stream_title LIKE $1 ESCAPE '\'
		ORDER BY s.is_live DESC, s.stream_id DESC
		LIMIT $2`
	rows, err := s.pool.Query(ctx, q, escapeLike(prefix)+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("search streams: %w", err)
	}
	return collectStreams(rows)
}

func (s *Store) Insert(ctx context.Context, chat *domain.Chat) error {
	const q = `INSERT INTO chats (stream_id, user_id, chat)
		VALUES ($1, $2, $3)
		RETURNING chat_id, created_at`
	err := s.pool.QueryRow(ctx, q, int64(chat.StreamID), int64(chat.UserID), chat.Message).
		Scan(&chat.ID, &chat.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation {
			return domain.ErrStreamNotFound
		}
		return fmt.Errorf("insert chat: %w", err)
	}
	return nil
}

// Latest returns the newest chats of a stream, newest first.
func (s *Store) Latest(ctx context.Context, streamID domain.StreamID, limit int) ([]*domain.Chat, error) {
	const q = `SELECT c.chat_id, c.stream_id, c.user_id, COALESCE(u.username, ''), c.chat, c.created_at
		FROM chats c
		LEFT JOIN users u ON u.user_id = c.user_id
		WHERE c.stream_id = $1
		ORDER BY c.chat_id DESC
		LIMIT $2`
	rows, err := s.pool.Query(ctx, q, int64(streamID), limit)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	defer rows.Close()

	chats := make([]*domain.Chat, 0, limit)
	for rows.Next() {
		var (
			c        domain.Chat
			sid, uid int64
		)
		if err := rows.Scan(&c.ID, &sid, &uid, &c.Username, &c.Message, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan chat: %w", err)
		}
		c.StreamID = domain.StreamID(sid)
		c.UserID = domain.UserID(uid)
		chats = append(chats, &c)
	}
	return chats, rows.Err()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) Close() {
	s.pool.Close()
}

func collectStreams(rows pgx.Rows) ([]*domain.Stream, error) {
	defer rows.Close()

	streams := make([]*domain.Stream, 0)
	for rows.Next() {
		var (
			st         domain.Stream
			id, userID int64
		)
		if err := rows.Scan(&id, &userID, &st.Username, &st.Title, &st.Thumbnail, &st.Live, &st.CreatedAt, &st.EndedAt); err != nil {
			return nil, fmt.Errorf("scan stream: %w", err)
		}
		st.ID = domain.StreamID(id)
		st.UserID = domain.UserID(userID)
		streams = append(streams, &st)
	}
	return streams, rows.Err()
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
