// Package datastore persists a single JSON document to disk: atomic
// write-and-rename, checksum-based skipping of unchanged saves, rotating
// backups and quarantine of unreadable files.
package datastore

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	// ErrNotFound is returned by Load when no snapshot exists yet.
	ErrNotFound = errors.New("snapshot not found")
	// ErrCorrupt is returned by Load when the snapshot is not a JSON object.
	ErrCorrupt = errors.New("snapshot is corrupt")
)

// Config holds configuration options for a Snapshot.
type Config struct {
	FilePath    string
	BackupCount int // Number of backup files to keep
	Logger      zerolog.Logger
}

// DefaultConfig returns a default configuration
func DefaultConfig(filePath string) Config {
	return Config{
		FilePath:    filePath,
		BackupCount: 3,
		Logger:      zerolog.Nop(),
	}
}

// Snapshot is the on-disk home of one JSON document.
type Snapshot struct {
	mu           sync.Mutex
	file         string
	config       Config
	lastChecksum string
}

// New creates a Snapshot, making sure the parent directory exists.
func New(config Config) (*Snapshot, error) {
	if config.FilePath == "" {
		return nil, fmt.Errorf("file path cannot be empty")
	}

	dir := filepath.Dir(config.FilePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	return &Snapshot{file: config.FilePath, config: config}, nil
}

// Path returns the snapshot file location.
func (s *Snapshot) Path() string { return s.file }

// Load reads the document. A file that exists but cannot be decoded is
// moved aside so the next Save does not overwrite it.
func (s *Snapshot) Load() (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.file)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil || doc == nil {
		quarantined := s.quarantine()
		return nil, fmt.Errorf("%w (moved to %q): %v", ErrCorrupt, quarantined, err)
	}

	s.lastChecksum = calculateChecksum(data)
	return doc, nil
}

// Save writes the document. Unchanged content is not rewritten.
func (s *Snapshot) Save(doc map[string]any) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	checksum := calculateChecksum(data)
	if checksum == s.lastChecksum {
		return nil
	}

	if s.config.BackupCount > 0 {
		if err := s.createBackup(); err != nil {
			s.config.Logger.Warn().Err(err).Msg("failed to create backup")
		}
	}

	if err := s.writeFileAtomic(data); err != nil {
		return err
	}

	if err := s.verifyFile(checksum); err != nil {
		return fmt.Errorf("file verification failed: %w", err)
	}

	s.lastChecksum = checksum
	return nil
}

// writeFileAtomic performs atomic file write using temporary file and rename
func (s *Snapshot) writeFileAtomic(data []byte) error {
	tmpFile := s.file + ".tmp"

	file, err := os.OpenFile(tmpFile, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open temp file: %w", err)
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(tmpFile)
		return fmt.Errorf("failed to write to temp file: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tmpFile)
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	file.Close()

	if err := os.Rename(tmpFile, s.file); err != nil {
		os.Remove(tmpFile)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	return nil
}

func (s *Snapshot) verifyFile(expected string) error {
	actual, err := os.ReadFile(s.file)
	if err != nil {
		return fmt.Errorf("failed to read file for verification: %w", err)
	}
	if calculateChecksum(actual) != expected {
		return fmt.Errorf("file checksum mismatch")
	}
	return nil
}

// createBackup copies the current file to a timestamped backup
func (s *Snapshot) createBackup() error {
	src, err := os.Open(s.file)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	defer src.Close()

	backupFile := fmt.Sprintf("%s.backup.%s", s.file, time.Now().Format("20060102_150405.000"))
	dst, err := os.Create(backupFile)
	if err != nil {
		return err
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return err
	}

	s.cleanupOldBackups()
	return nil
}

// cleanupOldBackups removes old backup files beyond the configured limit
func (s *Snapshot) cleanupOldBackups() {
	matches, err := filepath.Glob(s.file + ".backup.*")
	if err != nil || len(matches) <= s.config.BackupCount {
		return
	}

	// the timestamp suffix sorts chronologically
	sort.Strings(matches)
	for _, path := range matches[:len(matches)-s.config.BackupCount] {
		os.Remove(path)
	}
}

func (s *Snapshot) quarantine() string {
	target := fmt.Sprintf("%s.corrupt.%s", s.file, time.Now().Format("20060102_150405"))
	if err := os.Rename(s.file, target); err != nil {
		s.config.Logger.Error().Err(err).Str("file", s.file).Msg("failed to move corrupt snapshot aside")
		return ""
	}
	s.lastChecksum = ""
	return target
}

func calculateChecksum(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}
