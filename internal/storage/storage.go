// Package storage keeps uploaded media on local disk for as long as an
// analysis needs it.
package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"media-forensics-service/internal/models"
)

const filePrefix = "media-"

// TempStore writes uploads to files under one directory
type TempStore struct {
	baseDir string
	logger  *zap.Logger
}

// NewTempStore creates the store, creating baseDir if needed
func NewTempStore(baseDir string, logger *zap.Logger) (*TempStore, error) {
	if baseDir == "" {
		baseDir = filepath.Join(os.TempDir(), "media-forensics")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &TempStore{
		baseDir: baseDir,
		logger:  logger,
	}, nil
}

// Dir returns the directory files are written to
func (s *TempStore) Dir() string {
	return s.baseDir
}

// Save copies r into a new file named after id. At most limit bytes are
// accepted; larger input is removed and reported as a validation error.
func (s *TempStore) Save(id string, r io.Reader, limit int64) (*TempFile, error) {
	path := filepath.Join(s.baseDir, filePrefix+id)
	if filepath.Dir(filepath.Clean(path)) != filepath.Clean(s.baseDir) {
		return nil, fmt.Errorf("invalid media id %q: path traversal detected", id)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}

	written, copyErr := io.Copy(f, io.LimitReader(r, limit+1))
	closeErr := f.Close()

	if copyErr == nil && written > limit {
		copyErr = &models.DetectionError{
			Kind:    models.ErrorKindValidation,
			Message: fmt.Sprintf("file exceeds the %d byte limit", limit),
			Err:     ErrTooLarge,
		}
	}
	if err := errors.Join(copyErr, closeErr); err != nil {
		if removeErr := os.Remove(path); removeErr != nil && !os.IsNotExist(removeErr) {
			s.logger.Warn("Failed to remove rejected upload", zap.String("path", path), zap.Error(removeErr))
		}
		return nil, err
	}

	return &TempFile{path: path, size: written}, nil
}

// ErrTooLarge marks uploads over the size limit
var ErrTooLarge = errors.New("file too large")

// Purge removes files left behind by an earlier process
func (s *TempStore) Purge() (int, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return 0, fmt.Errorf("failed to read directory: %w", err)
	}

	removed := 0
	var result *multierror.Error
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), filePrefix) {
			continue
		}
		if err := os.Remove(filepath.Join(s.baseDir, entry.Name())); err != nil && !os.IsNotExist(err) {
			result = multierror.Append(result, err)
			continue
		}
		removed++
	}
	return removed, result.ErrorOrNil()
}

// TempFile is a MediaContent backed by a file that is deleted on Release
type TempFile struct {
	path string
	size int64

	once sync.Once
	err  error
}

// Path returns the location of the file
func (f *TempFile) Path() string {
	return f.path
}

// Size returns the number of bytes stored
func (f *TempFile) Size() int64 {
	return f.size
}

func (f *TempFile) Open() (io.ReadCloser, error) {
	file, err := os.Open(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("media already released: %s", filepath.Base(f.path))
		}
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	return file, nil
}

// Release deletes the file. Later calls return the first result.
func (f *TempFile) Release() error {
	f.once.Do(func() {
		if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
			f.err = fmt.Errorf("failed to remove file: %w", err)
		}
	})
	return f.err
}
