package metadata

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"xmediagrab/pkg/discovery"
)

// FileName is the manifest written into every destination directory
const FileName = "manifest.json"

// Manifest describes one run's downloads
type Manifest struct {
	// Core identifiers
	RunID     string    `json:"run_id"`
	User      string    `json:"user"`
	CreatedAt time.Time `json:"created_at"`

	// Discovery and download totals
	Stats      discovery.Stats `json:"stats"`
	Downloaded int             `json:"downloaded"`
	Skipped    int             `json:"skipped"`
	Failed     int             `json:"failed"`
	Files      []FileEntry     `json:"files"`
}

// FileEntry represents one discovered image and what happened to it
type FileEntry struct {
	// Core identifiers
	Index     int    `json:"index"`
	URL       string `json:"url"`
	SourceURL string `json:"source_url,omitempty"`
	Name      string `json:"name,omitempty"`

	// Outcome
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`

	// Media properties
	FileSize int64 `json:"file_size,omitempty"`
	Width    int   `json:"width,omitempty"`
	Height   int   `json:"height,omitempty"`

	// Timestamps
	DownloadedAt time.Time `json:"downloaded_at,omitempty"`
}

// Marshal renders the manifest as indented JSON
func (m *Manifest) Marshal() ([]byte, error) {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal manifest: %w", err)
	}
	return data, nil
}

// Load reads the manifest from dir
func Load(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, FileName))
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal manifest: %w", err)
	}

	return &m, nil
}

// Exists checks if dir holds a manifest
func Exists(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, FileName))
	return err == nil
}

// Entry returns the entry for a 1-based index
func (m *Manifest) Entry(index int) (FileEntry, bool) {
	for _, f := range m.Files {
		if f.Index == index {
			return f, true
		}
	}
	return FileEntry{}, false
}

// Missing lists entries recorded as saved whose file is gone from dir
func (m *Manifest) Missing(dir string) []FileEntry {
	var out []FileEntry
	for _, f := range m.Files {
		if f.Name == "" || f.Status == "failed" {
			continue
		}
		if _, err := os.Stat(filepath.Join(dir, f.Name)); os.IsNotExist(err) {
			out = append(out, f)
		}
	}
	return out
}

// GetAspectRatio returns the aspect ratio of an entry as a string
func (f FileEntry) GetAspectRatio() string {
	if f.Height == 0 {
		return "unknown"
	}

	ratio := float64(f.Width) / float64(f.Height)

	switch {
	case ratio > 1.7 && ratio < 1.8:
		return "16:9"
	case ratio > 1.3 && ratio < 1.4:
		return "4:3"
	case ratio > 0.9 && ratio < 1.1:
		return "1:1"
	case ratio > 0.55 && ratio < 0.57:
		return "9:16"
	case ratio > 0.74 && ratio < 0.76:
		return "3:4"
	default:
		return fmt.Sprintf("%.2f:1", ratio)
	}
}
