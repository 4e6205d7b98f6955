package checkpoint

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"xmediagrab/pkg/discovery"
	"xmediagrab/pkg/logger"
)

// Version is the current checkpoint file format
const Version = 1

// Checkpoint records the outcome of discovery for one user so the download
// phase can be repeated without scrolling the timeline again
type Checkpoint struct {
	RunID           string               `json:"run_id"`
	User            string               `json:"user"`
	URLs            []string             `json:"urls"`
	Stats           discovery.Stats      `json:"stats"`
	Reason          discovery.StopReason `json:"reason"`
	Complete        bool                 `json:"complete"`
	OutputDir       string               `json:"output_dir,omitempty"`
	Downloaded      map[int]string       `json:"downloaded"` // index -> file name
	TotalDownloaded int                  `json:"total_downloaded"`
	CreatedAt       time.Time            `json:"created_at"`
	UpdatedAt       time.Time            `json:"updated_at"`
	Version         int                  `json:"version"`
}

// Pending returns the 1-based indices of URLs without a recorded download
func (cp *Checkpoint) Pending() []int {
	var out []int
	for i := range cp.URLs {
		if _, ok := cp.Downloaded[i+1]; !ok {
			out = append(out, i+1)
		}
	}
	return out
}

// Manager handles checkpoint operations for one user
type Manager struct {
	checkpointPath string
	logger         logger.Logger
}

// NewManager creates a checkpoint manager. An empty dir selects the
// platform data directory.
func NewManager(dir, user string, log logger.Logger) (*Manager, error) {
	if user == "" {
		return nil, fmt.Errorf("checkpoint needs a user")
	}
	if dir == "" {
		dataDir, err := getDataDirectory()
		if err != nil {
			return nil, fmt.Errorf("failed to get data directory: %w", err)
		}
		dir = filepath.Join(dataDir, "checkpoints")
	}
	// Create checkpoints directory if it doesn't exist
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoints directory: %w", err)
	}
	if log == nil {
		log = logger.GetLogger()
	}

	return &Manager{
		checkpointPath: filepath.Join(dir, fmt.Sprintf("%s.checkpoint.json", user)),
		logger:         log,
	}, nil
}

// Path returns the checkpoint file location
func (m *Manager) Path() string {
	return m.checkpointPath
}

// Create starts a new checkpoint, keeping the previous one as a backup
func (m *Manager) Create(runID, user string) (*Checkpoint, error) {
	if err := m.BackupCheckpoint(); err != nil {
		m.logger.WithError(err).Warn("Could not back up previous checkpoint")
	}

	now := time.Now()
	checkpoint := &Checkpoint{
		RunID:      runID,
		User:       user,
		Downloaded: make(map[int]string),
		CreatedAt:  now,
		UpdatedAt:  now,
		Version:    Version,
	}

	if err := m.Save(checkpoint); err != nil {
		return nil, fmt.Errorf("failed to save initial checkpoint: %w", err)
	}

	m.logger.InfoWithFields("Checkpoint created", map[string]interface{}{
		"user":   user,
		"run_id": runID,
		"path":   m.checkpointPath,
	})

	return checkpoint, nil
}

// Load reads the checkpoint. It returns nil, nil when none exists.
func (m *Manager) Load() (*Checkpoint, error) {
	file, err := os.Open(m.checkpointPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open checkpoint file: %w", err)
	}
	defer file.Close()

	var checkpoint Checkpoint
	if err := json.NewDecoder(file).Decode(&checkpoint); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint: %w", err)
	}
	if checkpoint.Version > Version {
		return nil, fmt.Errorf("checkpoint version %d is newer than supported version %d", checkpoint.Version, Version)
	}
	if checkpoint.Downloaded == nil {
		checkpoint.Downloaded = make(map[int]string)
	}

	m.logger.DebugWithFields("Checkpoint loaded", map[string]interface{}{
		"user":       checkpoint.User,
		"run_id":     checkpoint.RunID,
		"urls":       len(checkpoint.URLs),
		"downloaded": checkpoint.TotalDownloaded,
	})

	return &checkpoint, nil
}

// Save writes the checkpoint to disk atomically
func (m *Manager) Save(checkpoint *Checkpoint) error {
	checkpoint.UpdatedAt = time.Now()

	// Create temporary file
	tempPath := m.checkpointPath + ".tmp"
	file, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("failed to create temporary checkpoint file: %w", err)
	}

	// Write checkpoint data
	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(checkpoint); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}

	// Ensure data is written to disk
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to sync checkpoint file: %w", err)
	}

	if err := file.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close checkpoint file: %w", err)
	}

	// Atomically replace the old checkpoint file
	if err := os.Rename(tempPath, m.checkpointPath); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to replace checkpoint file: %w", err)
	}

	m.logger.DebugWithFields("Checkpoint saved", map[string]interface{}{
		"user":       checkpoint.User,
		"urls":       len(checkpoint.URLs),
		"downloaded": checkpoint.TotalDownloaded,
	})

	return nil
}

// RecordDiscovery stores a discovery result. A canceled run is saved too
// but marked incomplete.
func (m *Manager) RecordDiscovery(checkpoint *Checkpoint, result discovery.Result) error {
	checkpoint.URLs = append([]string(nil), result.URLs...)
	checkpoint.Stats = result.Stats
	checkpoint.Reason = result.Reason
	checkpoint.Complete = result.Reason != discovery.ReasonCanceled
	return m.Save(checkpoint)
}

// RecordDownloads marks indices as saved under the given file names
func (m *Manager) RecordDownloads(checkpoint *Checkpoint, dir string, files map[int]string) error {
	checkpoint.OutputDir = dir
	for index, name := range files {
		checkpoint.Downloaded[index] = name
	}
	checkpoint.TotalDownloaded = len(checkpoint.Downloaded)
	return m.Save(checkpoint)
}

// Delete removes the checkpoint file
func (m *Manager) Delete() error {
	if err := os.Remove(m.checkpointPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}

	m.logger.Info("Checkpoint deleted")
	return nil
}

// Exists checks if a checkpoint file exists
func (m *Manager) Exists() bool {
	_, err := os.Stat(m.checkpointPath)
	return err == nil
}

// GetCheckpointInfo returns a summary of the checkpoint, or nil when none
// exists
func (m *Manager) GetCheckpointInfo() (map[string]interface{}, error) {
	checkpoint, err := m.Load()
	if err != nil {
		return nil, err
	}
	if checkpoint == nil {
		return nil, nil
	}

	return map[string]interface{}{
		"user":             checkpoint.User,
		"run_id":           checkpoint.RunID,
		"urls":             len(checkpoint.URLs),
		"complete":         checkpoint.Complete,
		"total_downloaded": checkpoint.TotalDownloaded,
		"created_at":       checkpoint.CreatedAt,
		"updated_at":       checkpoint.UpdatedAt,
		"age":              time.Since(checkpoint.UpdatedAt),
	}, nil
}

// BackupCheckpoint copies the current checkpoint next to itself
func (m *Manager) BackupCheckpoint() error {
	if !m.Exists() {
		return nil
	}

	backupPath := m.checkpointPath + ".backup"

	src, err := os.Open(m.checkpointPath)
	if err != nil {
		return fmt.Errorf("failed to open checkpoint for backup: %w", err)
	}
	defer src.Close()

	dst, err := os.Create(backupPath)
	if err != nil {
		return fmt.Errorf("failed to create backup file: %w", err)
	}
	defer dst.Close()

	// Copy checkpoint file to backup
	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("failed to copy checkpoint to backup: %w", err)
	}

	m.logger.Debug("Checkpoint backed up")
	return nil
}

// getDataDirectory returns the appropriate data directory for the current OS
func getDataDirectory() (string, error) {
	var dataDir string

	switch runtime.GOOS {
	case "linux":
		// Use XDG_DATA_HOME if set, otherwise ~/.local/share
		if xdgDataHome := os.Getenv("XDG_DATA_HOME"); xdgDataHome != "" {
			dataDir = filepath.Join(xdgDataHome, "xmediagrab")
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			dataDir = filepath.Join(home, ".local", "share", "xmediagrab")
		}
	case "darwin":
		// macOS: ~/Library/Application Support
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dataDir = filepath.Join(home, "Library", "Application Support", "xmediagrab")
	case "windows":
		// Windows: %APPDATA%
		appData := os.Getenv("APPDATA")
		if appData == "" {
			return "", fmt.Errorf("APPDATA environment variable not set")
		}
		dataDir = filepath.Join(appData, "xmediagrab")
	default:
		return "", fmt.Errorf("unsupported operating system: %s", runtime.GOOS)
	}

	// Create the data directory if it doesn't exist
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}

	return dataDir, nil
}
