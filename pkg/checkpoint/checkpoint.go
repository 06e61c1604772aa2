// Package checkpoint persists the append-only log of downloaded items. The
// log doubles as the resume state: loading it at startup tells the crawl
// exactly which fingerprints are already on disk, so there is no separate
// resume command or cursor.
package checkpoint

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"gallerygrab/pkg/fingerprint"
	"gallerygrab/pkg/logger"
)

// IncompleteFileID is the reserved file-identifier value marking an entry
// whose download started but never completed. Such entries are kept for
// audit and excluded from duplicate membership, so the item is retried on
// the next run and a fresh entry is appended when it finally succeeds.
const IncompleteFileID = "-"

// fieldSep keeps the log line-oriented and diffable. Tabs never survive the
// whitespace normalization applied to fingerprint fields.
const fieldSep = "\t"

// Entry is one record in the checkpoint log
type Entry struct {
	Timestamp    string
	PromptPrefix string
	FileID       string
	DownloadedAt time.Time
}

// Fingerprint recomputes the identity key for the entry. Fields are stored
// post-normalization, so this agrees with live computations.
func (e Entry) Fingerprint() fingerprint.Fingerprint {
	return fingerprint.Compute(e.Timestamp, e.PromptPrefix)
}

// Incomplete reports whether the entry marks a failed mid-download attempt
func (e Entry) Incomplete() bool {
	return e.FileID == IncompleteFileID
}

func (e Entry) encode() string {
	return strings.Join([]string{
		e.Timestamp,
		e.PromptPrefix,
		e.FileID,
		e.DownloadedAt.UTC().Format(time.RFC3339),
	}, fieldSep)
}

func decodeEntry(line string) (Entry, error) {
	parts := strings.Split(line, fieldSep)
	if len(parts) != 4 {
		return Entry{}, fmt.Errorf("expected 4 fields, got %d", len(parts))
	}

	downloadedAt, err := time.Parse(time.RFC3339, parts[3])
	if err != nil {
		return Entry{}, fmt.Errorf("bad completion time %q: %w", parts[3], err)
	}
	if parts[0] == "" {
		return Entry{}, fmt.Errorf("empty timestamp field")
	}

	return Entry{
		Timestamp:    parts[0],
		PromptPrefix: parts[1],
		FileID:       parts[2],
		DownloadedAt: downloadedAt,
	}, nil
}

// Log is the checkpoint store. Appends are serialized by a mutex; the file
// is opened O_APPEND and synced after each write so a crash never interleaves
// partial records from this process.
type Log struct {
	path   string
	logger logger.Logger

	mu        sync.Mutex
	file      *os.File
	complete  map[fingerprint.Fingerprint]Entry
	latest    *Entry
	skipped   int
	lineCount int
}

// Open opens (creating if needed) the checkpoint log at path and loads its
// contents. Malformed lines are skipped with a warning, never fatal: corrupt
// history must not block new downloads.
func Open(path string) (*Log, error) {
	log := logger.GetLogger().WithField("checkpoint", path)

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoint directory: %w", err)
	}

	l := &Log{
		path:     path,
		logger:   log,
		complete: make(map[fingerprint.Fingerprint]Entry),
	}

	if err := l.load(); err != nil {
		return nil, err
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoint log: %w", err)
	}
	l.file = file

	l.logger.InfoWithFields("checkpoint log loaded", map[string]interface{}{
		"entries":   l.lineCount,
		"complete":  len(l.complete),
		"malformed": l.skipped,
	})

	return l, nil
}

// OpenForGallery opens the checkpoint log for a named gallery in the
// per-user data directory.
func OpenForGallery(gallery string) (*Log, error) {
	dataDir, err := dataDirectory()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory: %w", err)
	}
	return Open(filepath.Join(dataDir, "checkpoints", gallery+".checkpoint.log"))
}

func (l *Log) load() error {
	file, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // First run, empty log.
		}
		return fmt.Errorf("failed to open checkpoint log: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}

		entry, err := decodeEntry(line)
		if err != nil {
			// A corrupt trailing line usually means the process died
			// mid-write. Either way the record is unusable.
			l.skipped++
			l.logger.WarnWithFields("skipping malformed checkpoint line", map[string]interface{}{
				"line":  lineNo,
				"error": err.Error(),
			})
			continue
		}

		l.lineCount++
		l.latest = &entry
		if !entry.Incomplete() {
			// Later entries for the same fingerprint win: a retry after an
			// incomplete attempt overwrites it in the membership set.
			l.complete[entry.Fingerprint()] = entry
		}
	}

	return scanner.Err()
}

// Contains reports whether a completed download exists for the fingerprint.
// Incomplete entries never count as duplicates.
func (l *Log) Contains(fp fingerprint.Fingerprint) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.complete[fp]
	return ok
}

// Fingerprints returns the membership set of completed downloads
func (l *Log) Fingerprints() map[fingerprint.Fingerprint]Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make(map[fingerprint.Fingerprint]Entry, len(l.complete))
	for k, v := range l.complete {
		out[k] = v
	}
	return out
}

// Latest returns the most recently appended entry, or nil for an empty log.
// The latest entry seeds boundary search on a resumed run.
func (l *Log) Latest() *Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.latest == nil {
		return nil
	}
	entry := *l.latest
	return &entry
}

// Count returns the number of completed downloads in the log
func (l *Log) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.complete)
}

// Append records a completed download. Single writer; the append is flushed
// to disk before returning.
func (l *Log) Append(entry Entry) error {
	if entry.FileID == "" {
		return fmt.Errorf("entry file ID is required")
	}
	if entry.DownloadedAt.IsZero() {
		entry.DownloadedAt = time.Now()
	}
	entry.Timestamp = normalizeField(entry.Timestamp)
	entry.PromptPrefix = fingerprint.Prefix(entry.PromptPrefix)

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.write(entry); err != nil {
		return err
	}

	l.latest = &entry
	if !entry.Incomplete() {
		l.complete[entry.Fingerprint()] = entry
	}
	return nil
}

// AppendIncomplete records a download that failed after being triggered, so
// a later run retries the item instead of treating it as done.
func (l *Log) AppendIncomplete(timestamp, prompt string) error {
	return l.Append(Entry{
		Timestamp:    timestamp,
		PromptPrefix: prompt,
		FileID:       IncompleteFileID,
		DownloadedAt: time.Now(),
	})
}

func (l *Log) write(entry Entry) error {
	if l.file == nil {
		return fmt.Errorf("checkpoint log is closed")
	}
	if _, err := l.file.WriteString(entry.encode() + "\n"); err != nil {
		return fmt.Errorf("failed to append checkpoint entry: %w", err)
	}
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync checkpoint log: %w", err)
	}
	return nil
}

// Close closes the underlying log file
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// Path returns the log file location
func (l *Log) Path() string {
	return l.path
}

func normalizeField(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// dataDirectory returns the appropriate data directory for the current OS
func dataDirectory() (string, error) {
	var dataDir string

	switch runtime.GOOS {
	case "linux":
		if xdgDataHome := os.Getenv("XDG_DATA_HOME"); xdgDataHome != "" {
			dataDir = filepath.Join(xdgDataHome, "gallerygrab")
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			dataDir = filepath.Join(home, ".local", "share", "gallerygrab")
		}
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dataDir = filepath.Join(home, "Library", "Application Support", "gallerygrab")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			return "", fmt.Errorf("APPDATA environment variable not set")
		}
		dataDir = filepath.Join(appData, "gallerygrab")
	default:
		return "", fmt.Errorf("unsupported operating system: %s", runtime.GOOS)
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}

	return dataDir, nil
}
