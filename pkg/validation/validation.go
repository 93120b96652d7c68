package validation

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	MaxTitleLength       = 100
	MaxThumbnailLength   = 512
	MaxChatLength        = 500
	MaxSearchQueryLength = 100
	MaxSocketIDLength    = 64
)

var (
	// SocketIDRegex validates socket ID format
	SocketIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

	// ThumbnailRegex accepts a bare file name produced by the upload service
	ThumbnailRegex = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)
)

// ValidateStreamTitle validates stream title
func ValidateStreamTitle(title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return fmt.Errorf("stream title is required")
	}
	if !utf8.ValidString(title) {
		return fmt.Errorf("stream title contains invalid characters")
	}
	return ValidateStringLength(title, 1, MaxTitleLength, "stream title")
}

// ValidateThumbnail accepts an empty value, an http(s) URL or an uploaded file name.
func ValidateThumbnail(thumbnail string) error {
	if thumbnail == "" {
		return nil
	}
	if len(thumbnail) > MaxThumbnailLength {
		return fmt.Errorf("thumbnail is too long (max %d characters)", MaxThumbnailLength)
	}
	if strings.Contains(thumbnail, "://") {
		return ValidateURL(thumbnail)
	}
	if strings.Contains(thumbnail, "..") || !ThumbnailRegex.MatchString(thumbnail) {
		return fmt.Errorf("invalid thumbnail name")
	}
	return nil
}

func ValidateChatMessage(message string) error {
	if err := ValidateNonEmptyString(message, "message"); err != nil {
		return err
	}
	return ValidateStringLength(message, 1, MaxChatLength, "message")
}

func ValidateSearchQuery(query string) error {
	if err := ValidateNonEmptyString(query, "query"); err != nil {
		return err
	}
	return ValidateStringLength(query, 1, MaxSearchQueryLength, "query")
}

// ValidateSocketID validates socket ID
func ValidateSocketID(socketID string) error {
	if socketID == "" {
		return fmt.Errorf("socket ID is required")
	}
	if len(socketID) > MaxSocketIDLength {
		return fmt.Errorf("socket ID is too long (max %d characters)", MaxSocketIDLength)
	}
	if !SocketIDRegex.MatchString(socketID) {
		return fmt.Errorf("invalid socket ID format")
	}
	return nil
}

// ValidateStreamID validates a numeric stream id
func ValidateStreamID(streamID int64) error {
	if streamID <= 0 {
		return fmt.Errorf("stream ID must be positive")
	}
	return nil
}

// ValidateURL validates URL format
func ValidateURL(urlStr string) error {
	if urlStr == "" {
		return fmt.Errorf("URL is required")
	}
	u, err := url.Parse(urlStr)
	if err != nil {
		return fmt.Errorf("invalid URL format: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid URL scheme (must be http or https)")
	}
	if u.Host == "" {
		return fmt.Errorf("URL must have a host")
	}
	return nil
}

// ValidateNonEmptyString validates that string is not empty after trimming
func ValidateNonEmptyString(s, fieldName string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return fmt.Errorf("%s is required", fieldName)
	}
	return nil
}

// ValidateStringLength validates string length
func ValidateStringLength(s string, min, max int, fieldName string) error {
	length := utf8.RuneCountInString(s)
	if length < min {
		return fmt.Errorf("%s must be at least %d characters", fieldName, min)
	}
	if length > max {
		return fmt.Errorf("%s is too long (max %d characters)", fieldName, max)
	}
	return nil
}
