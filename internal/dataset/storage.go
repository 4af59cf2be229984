package dataset

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// FileStorage holds uploaded bytes between acceptance and pipeline completion
type FileStorage interface {
	Store(ctx context.Context, data []byte, originalName string) (string, error)
	GetReader(ctx context.Context, storedName string) (io.ReadCloser, error)
	Delete(ctx context.Context, storedName string) error
	Exists(ctx context.Context, storedName string) (bool, error)
}

// LocalFileStorage implements FileStorage using a local directory
type LocalFileStorage struct {
	basePath string
}

// NewLocalFileStorage creates a new local file storage rooted at basePath
func NewLocalFileStorage(basePath string) *LocalFileStorage {
	return &LocalFileStorage{basePath: basePath}
}

// StoredName builds the storage-internal name excel-<unix millis>-<8 hex><ext>
func StoredName(originalName string, now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	ext := strings.ToLower(filepath.Ext(originalName))
	return fmt.Sprintf("excel-%d-%s%s", now.UnixMilli(), suffix, ext)
}

func (s *LocalFileStorage) path(storedName string) (string, error) {
	if storedName == "" || filepath.Base(storedName) != storedName || storedName == "." || storedName == ".." {
		return "", fmt.Errorf("invalid stored file name %q", storedName)
	}
	return filepath.Join(s.basePath, storedName), nil
}

// Store writes data under a fresh unique name and returns that name
func (s *LocalFileStorage) Store(ctx context.Context, data []byte, originalName string) (string, error) {
	if err := os.MkdirAll(s.basePath, 0o755); err != nil {
		return "", fmt.Errorf("failed to create storage directory: %w", err)
	}

	storedName := StoredName(originalName, time.Now())
	filePath, err := s.path(storedName)
	if err != nil {
		return "", err
	}

	// O_EXCL keeps a name collision from overwriting another upload
	f, err := os.OpenFile(filePath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return "", fmt.Errorf("failed to create destination file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(filePath) // Clean up on failure
		return "", fmt.Errorf("failed to write file contents: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(filePath)
		return "", fmt.Errorf("failed to close destination file: %w", err)
	}

	return storedName, nil
}

// GetReader returns a reader for the stored file
func (s *LocalFileStorage) GetReader(ctx context.Context, storedName string) (io.ReadCloser, error) {
	filePath, err := s.path(storedName)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	return file, nil
}

// Delete removes a file from storage; a missing file is not an error
func (s *LocalFileStorage) Delete(ctx context.Context, storedName string) error {
	filePath, err := s.path(storedName)
	if err != nil {
		return err
	}
	if err := os.Remove(filePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// Exists checks if a file exists in storage
func (s *LocalFileStorage) Exists(ctx context.Context, storedName string) (bool, error) {
	filePath, err := s.path(storedName)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(filePath)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check file existence: %w", err)
	}
	return true, nil
}
