package storage

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
)

// DefaultPattern names downloaded files by discovery order
const DefaultPattern = "image_{index}.{ext}"

// Manager handles file storage operations and duplicate detection for one
// destination directory
type Manager struct {
	outputDir string
	pattern   string
	overwrite bool
	existing  map[string]bool
	mu        sync.RWMutex
}

// NewManager creates the output directory if needed and indexes the files
// already in it. An empty pattern means DefaultPattern.
func NewManager(outputDir, pattern string, overwrite bool) (*Manager, error) {
	if pattern == "" {
		pattern = DefaultPattern
	}
	if !strings.Contains(pattern, "{index}") {
		return nil, fmt.Errorf("file name pattern %q has no {index} placeholder", pattern)
	}
	// Create output directory if it doesn't exist
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	manager := &Manager{
		outputDir: outputDir,
		pattern:   pattern,
		overwrite: overwrite,
		existing:  make(map[string]bool),
	}

	// Scan existing files for skip detection
	if err := manager.scanExistingFiles(); err != nil {
		return nil, fmt.Errorf("failed to scan existing files: %w", err)
	}

	return manager, nil
}

// scanExistingFiles records the files that already match the pattern
func (m *Manager) scanExistingFiles() error {
	entries, err := os.ReadDir(m.outputDir)
	if err != nil {
		return fmt.Errorf("failed to read directory: %w", err)
	}

	re := m.patternRegexp()
	for _, entry := range entries {
		if !entry.IsDir() && re.MatchString(entry.Name()) {
			m.existing[entry.Name()] = true
		}
	}

	return nil
}

func (m *Manager) patternRegexp() *regexp.Regexp {
	quoted := regexp.QuoteMeta(m.pattern)
	quoted = strings.ReplaceAll(quoted, `\{index\}`, `\d+`)
	quoted = strings.ReplaceAll(quoted, `\{ext\}`, `[A-Za-z0-9]+`)
	return regexp.MustCompile("^" + quoted + "$")
}

// FileName renders the pattern for a 1-based index and extension
func (m *Manager) FileName(index int, ext string) string {
	name := strings.ReplaceAll(m.pattern, "{index}", strconv.Itoa(index))
	return strings.ReplaceAll(name, "{ext}", strings.TrimPrefix(ext, "."))
}

// Path returns the absolute location of name inside the output directory
func (m *Manager) Path(name string) string {
	return filepath.Join(m.outputDir, name)
}

// ShouldSkip reports whether name exists and overwriting is disabled
func (m *Manager) ShouldSkip(name string) bool {
	if m.overwrite {
		return false
	}
	return m.Exists(name)
}

// Exists checks if a file with the given name has already been written
func (m *Manager) Exists(name string) bool {
	// Check in-memory map first
	m.mu.RLock()
	known := m.existing[name]
	m.mu.RUnlock()
	if known {
		return true
	}

	// Double-check file existence
	if _, err := os.Stat(m.Path(name)); err == nil {
		// Update cache if file exists
		m.mu.Lock()
		m.existing[name] = true
		m.mu.Unlock()
		return true
	}

	return false
}

// Save writes r to name through a temporary file and an atomic rename.
// It returns the number of bytes written.
func (m *Manager) Save(r io.Reader, name string) (int64, error) {
	filename := m.Path(name)

	// Create temporary file first
	out, err := os.CreateTemp(m.outputDir, "."+name+".*.tmp")
	if err != nil {
		return 0, fmt.Errorf("failed to create temporary file: %w", err)
	}
	tempFile := out.Name()

	// Copy data
	n, err := io.Copy(out, r)
	closeErr := out.Close()

	if err != nil {
		os.Remove(tempFile)
		return 0, fmt.Errorf("failed to save image data: %w", err)
	}

	if closeErr != nil {
		os.Remove(tempFile)
		return 0, fmt.Errorf("failed to close file: %w", closeErr)
	}

	if err := os.Chmod(tempFile, 0644); err != nil {
		os.Remove(tempFile)
		return 0, fmt.Errorf("failed to set file mode: %w", err)
	}

	// Atomic rename
	if err := os.Rename(tempFile, filename); err != nil {
		os.Remove(tempFile)
		return 0, fmt.Errorf("failed to rename temporary file: %w", err)
	}

	// Update downloaded map
	m.mu.Lock()
	m.existing[name] = true
	m.mu.Unlock()

	return n, nil
}

// WriteFile atomically replaces name with data
func (m *Manager) WriteFile(name string, data []byte) error {
	_, err := m.Save(bytes.NewReader(data), name)
	return err
}

// GetOutputDir returns the output directory path
func (m *Manager) GetOutputDir() string {
	return m.outputDir
}

// GetDownloadedCount returns the number of files matching the pattern
func (m *Manager) GetDownloadedCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	re := m.patternRegexp()
	count := 0
	for name := range m.existing {
		if re.MatchString(name) {
			count++
		}
	}
	return count
}
