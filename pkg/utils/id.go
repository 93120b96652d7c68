package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"streamcast/internal/core/domain"

	"github.com/google/uuid"
)

// NewSocketID returns a fresh random socket id.
func NewSocketID() domain.SocketID {
	return domain.SocketID(uuid.NewString())
}

// GenerateRequestID generates a unique request ID
func GenerateRequestID() string {
	timestamp := time.Now().UnixNano()
	b := make([]byte, 4)
	rand.Read(b)
	return fmt.Sprintf("req_%d_%s", timestamp, hex.EncodeToString(b))
}
