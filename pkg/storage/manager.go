package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// SavedFile describes one media file persisted to the library.
type SavedFile struct {
	FileID   string
	Path     string
	Size     int64
	Checksum string
}

// Manager handles media file persistence and duplicate detection
type Manager struct {
	outputDir   string
	storedFiles map[string]bool
	mu          sync.RWMutex
}

// NewManager creates a new storage manager rooted at outputDir
func NewManager(outputDir string) (*Manager, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	manager := &Manager{
		outputDir:   outputDir,
		storedFiles: make(map[string]bool),
	}

	// Scan existing files for duplicate detection
	if err := manager.scanExistingFiles(); err != nil {
		return nil, fmt.Errorf("failed to scan existing files: %w", err)
	}

	return manager, nil
}

// scanExistingFiles indexes the output directory so files saved by earlier
// runs are recognized without re-downloading
func (m *Manager) scanExistingFiles() error {
	entries, err := os.ReadDir(m.outputDir)
	if err != nil {
		return fmt.Errorf("failed to read directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) == ".tmp" {
			continue
		}
		m.storedFiles[entry.Name()] = true
	}

	return nil
}

// IsStored checks if a file with the given identifier is already in the library
func (m *Manager) IsStored(fileID string) bool {
	m.mu.RLock()
	cached := m.storedFiles[fileID]
	m.mu.RUnlock()
	if cached {
		return true
	}

	// In-flight temp files are not library content, same as in the
	// startup scan.
	if filepath.Ext(fileID) == ".tmp" {
		return false
	}

	// Double-check file existence
	if _, err := os.Stat(filepath.Join(m.outputDir, fileID)); err == nil {
		m.mu.Lock()
		m.storedFiles[fileID] = true
		m.mu.Unlock()
		return true
	}

	return false
}

// SaveMedia streams media data into the library under fileID. The write goes
// through a temporary file and an atomic rename so a crash never leaves a
// partial file behind.
func (m *Manager) SaveMedia(r io.Reader, fileID string) (SavedFile, error) {
	filename := filepath.Join(m.outputDir, fileID)

	tempFile := filename + ".tmp"
	out, err := os.Create(tempFile)
	if err != nil {
		return SavedFile{}, fmt.Errorf("failed to create temporary file: %w", err)
	}

	hash := xxhash.New()
	size, err := io.Copy(io.MultiWriter(out, hash), r)
	closeErr := out.Close()

	if err != nil {
		os.Remove(tempFile)
		return SavedFile{}, fmt.Errorf("failed to save media data: %w", err)
	}

	if closeErr != nil {
		os.Remove(tempFile)
		return SavedFile{}, fmt.Errorf("failed to close file: %w", closeErr)
	}

	// Atomic rename
	if err := os.Rename(tempFile, filename); err != nil {
		os.Remove(tempFile)
		return SavedFile{}, fmt.Errorf("failed to rename temporary file: %w", err)
	}

	m.mu.Lock()
	m.storedFiles[fileID] = true
	m.mu.Unlock()

	return SavedFile{
		FileID:   fileID,
		Path:     filename,
		Size:     size,
		Checksum: fmt.Sprintf("%016x", hash.Sum64()),
	}, nil
}

// Ingest moves a file the browser already wrote to disk into the library,
// hashing it on the way. Used for downloads triggered through the page's own
// download control, where the browser picks the temporary location.
func (m *Manager) Ingest(srcPath, fileID string) (SavedFile, error) {
	src, err := os.Open(srcPath)
	if err != nil {
		return SavedFile{}, fmt.Errorf("failed to open downloaded file: %w", err)
	}

	saved, err := m.SaveMedia(src, fileID)
	closeErr := src.Close()
	if err != nil {
		return SavedFile{}, err
	}
	if closeErr != nil {
		return SavedFile{}, fmt.Errorf("failed to close downloaded file: %w", closeErr)
	}

	if err := os.Remove(srcPath); err != nil {
		return saved, fmt.Errorf("failed to remove browser download: %w", err)
	}
	return saved, nil
}

// GetOutputDir returns the library directory path
func (m *Manager) GetOutputDir() string {
	return m.outputDir
}

// GetStoredCount returns the number of files in the library
func (m *Manager) GetStoredCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.storedFiles)
}
