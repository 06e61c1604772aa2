// Package metadata writes a JSON sidecar next to each downloaded media file
// so the library stays searchable without re-opening the gallery.
package metadata

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gallerygrab/pkg/gallery"
	"gallerygrab/pkg/storage"
)

// MediaMetadata represents all recorded facts about a downloaded media file
type MediaMetadata struct {
	// Core identifiers
	FileID   string `json:"file_id"`
	MediaRef string `json:"media_ref,omitempty"`

	// Fingerprint source fields as extracted from the detail view
	Timestamp string `json:"timestamp"`
	Prompt    string `json:"prompt,omitempty"`

	// File properties
	FileSize int64  `json:"file_size"`
	Checksum string `json:"checksum"`

	DownloadedAt time.Time `json:"downloaded_at"`
}

// ForItem builds sidecar metadata for a saved download
func ForItem(item gallery.Item, saved storage.SavedFile) *MediaMetadata {
	return &MediaMetadata{
		FileID:       saved.FileID,
		MediaRef:     item.MediaRef,
		Timestamp:    item.Timestamp,
		Prompt:       item.PromptText,
		FileSize:     saved.Size,
		Checksum:     saved.Checksum,
		DownloadedAt: time.Now(),
	}
}

// Save writes the metadata to a JSON file next to the media file
func (m *MediaMetadata) Save(mediaPath string) error {
	metadataPath := mediaPath + ".json"

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	if err := os.WriteFile(metadataPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write metadata file: %w", err)
	}

	return nil
}

// Load reads metadata from a media file's JSON sidecar
func Load(mediaPath string) (*MediaMetadata, error) {
	metadataPath := mediaPath + ".json"

	data, err := os.ReadFile(metadataPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata file: %w", err)
	}

	var meta MediaMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}

	return &meta, nil
}

// GetFormattedPrompt returns a truncated prompt for display
func (m *MediaMetadata) GetFormattedPrompt(maxLength int) string {
	if m.Prompt == "" {
		return ""
	}

	prompt := m.Prompt
	if len(prompt) > maxLength {
		prompt = prompt[:maxLength-3] + "..."
	}

	return prompt
}

// MetadataExists checks if a sidecar exists for a media file
func MetadataExists(mediaPath string) bool {
	_, err := os.Stat(mediaPath + ".json")
	return err == nil
}

// CleanOrphanedMetadata removes sidecars whose media file is gone
func CleanOrphanedMetadata(directory string) error {
	return filepath.Walk(directory, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if filepath.Ext(path) == ".json" && len(path) > 5 {
			mediaPath := path[:len(path)-5]

			if _, err := os.Stat(mediaPath); os.IsNotExist(err) {
				if err := os.Remove(path); err != nil {
					return fmt.Errorf("failed to remove orphaned metadata %s: %w", path, err)
				}
			}
		}

		return nil
	})
}
