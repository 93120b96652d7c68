package domain

import (
	"time"
)

type StreamID int64

type Stream struct {
	ID        StreamID
	UserID    UserID
	Username  string
	Title     string
	Thumbnail string
	Live      bool
	CreatedAt time.Time
	EndedAt   *time.Time
}

type Chat struct {
	ID        int64
	StreamID  StreamID
	UserID    UserID
	Username  string
	Message   string
	CreatedAt time.Time
}
