package validation

import (
	"strings"
	"testing"
)

func TestValidateStreamTitle(t *testing.T) {
	tests := []struct {
		name    string
		title   string
		wantErr bool
	}{
		{"valid title", "Chess", false},
		{"unicode title", "Шахматы вечером", false},
		{"empty", "", true},
		{"whitespace only", "   ", true},
		{"too long", strings.Repeat("a", MaxTitleLength+1), true},
		{"max length", strings.Repeat("a", MaxTitleLength), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateStreamTitle(tt.title)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateStreamTitle() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateThumbnail(t *testing.T) {
	tests := []struct {
		name      string
		thumbnail string
		wantErr   bool
	}{
		{"empty", "", false},
		{"file name", "thumb-1699.png", false},
		{"url", "https://cdn.example.com/t.png", false},
		{"ftp url", "ftp://cdn.example.com/t.png", true},
		{"path traversal", "../../etc/passwd", true},
		{"too long", strings.Repeat("a", MaxThumbnailLength+1), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateThumbnail(tt.thumbnail)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateThumbnail() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateChatMessage(t *testing.T) {
	if err := ValidateChatMessage("hi"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := ValidateChatMessage(" "); err == nil {
		t.Error("expected error for blank message")
	}
	if err := ValidateChatMessage(strings.Repeat("x", MaxChatLength+1)); err == nil {
		t.Error("expected error for long message")
	}
}

func TestValidateSearchQuery(t *testing.T) {
	if err := ValidateSearchQuery("che"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := ValidateSearchQuery(""); err == nil {
		t.Error("expected error for empty query")
	}
}

func TestValidateSocketID(t *testing.T) {
	tests := []struct {
		name     string
		socketID string
		wantErr  bool
	}{
		{"uuid", "0b6f0a5e-6f43-4b2c-9d8e-6d1f1c2a3b4c", false},
		{"empty", "", true},
		{"invalid chars", "abc def", true},
		{"too long", strings.Repeat("a", MaxSocketIDLength+1), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSocketID(tt.socketID)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateSocketID() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateStreamID(t *testing.T) {
	if err := ValidateStreamID(7); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := ValidateStreamID(0); err == nil {
		t.Error("expected error for zero id")
	}
}
