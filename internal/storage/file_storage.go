// Package storage keeps attachment bodies on the local filesystem.
package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/welldanyogia/webrana-confchat/internal/attachment"
)

// Storage errors
var (
	ErrPathTraversal = errors.New("path traversal detected")
	ErrFileNotFound  = errors.New("file not found")
	ErrFileTooLarge  = errors.New("file exceeds size limit")
)

// FileStorage stores attachment bodies. Paths returned by Save are relative
// to the storage root and are what ChatAttachment.FilePath records.
type FileStorage interface {
	Save(filename string, content io.Reader) (path string, size int64, err error)
	Get(filePath string) (io.ReadCloser, error)
	Delete(filePath string) error
}

type localStorage struct {
	root    string
	maxSize int64
}

// NewLocalStorage roots a FileStorage at basePath, creating it if needed.
// Each stored file is capped at the attachment size limit.
func NewLocalStorage(basePath string) (FileStorage, error) {
	root, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("invalid storage path: %w", err)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &localStorage{root: root, maxSize: attachment.MaxFileSize}, nil
}

// resolve maps a stored relative path to an absolute one under root.
// Anything that could name the root itself or leave it is rejected.
func (s *localStorage) resolve(rel string) (string, error) {
	local := filepath.Clean(filepath.FromSlash(rel))
	if local == "." || !filepath.IsLocal(local) || strings.ContainsAny(local, `:\`) {
		return "", ErrPathTraversal
	}
	return filepath.Join(s.root, local), nil
}

// storedExtension keeps a short lowercase extension from the original name so
// files on disk stay recognisable. The original name itself is never used.
func storedExtension(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if len(ext) > 8 || strings.ContainsAny(ext, `/\: `) {
		return ""
	}
	return ext
}

// Save stores content under a fresh UUID name, sharded by its first two
// characters, and returns the relative path and byte count. Content over
// the size limit is rejected and the partial file removed.
func (s *localStorage) Save(filename string, content io.Reader) (string, int64, error) {
	name := uuid.NewString() + storedExtension(filename)
	rel := name[:2] + "/" + name

	full, err := s.resolve(rel)
	if err != nil {
		return "", 0, err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", 0, fmt.Errorf("failed to create subdirectory: %w", err)
	}

	written, err := s.writeCapped(full, content)
	if err != nil {
		_ = os.Remove(full)
		return "", 0, err
	}
	return rel, written, nil
}

func (s *localStorage) writeCapped(full string, content io.Reader) (int64, error) {
	file, err := os.OpenFile(full, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return 0, fmt.Errorf("failed to create file: %w", err)
	}

	written, copyErr := io.Copy(file, io.LimitReader(content, s.maxSize+1))
	closeErr := file.Close()
	switch {
	case copyErr != nil:
		return 0, fmt.Errorf("failed to write file: %w", copyErr)
	case written > s.maxSize:
		return 0, ErrFileTooLarge
	case closeErr != nil:
		return 0, fmt.Errorf("failed to write file: %w", closeErr)
	}
	return written, nil
}

// Get opens a stored file for reading
func (s *localStorage) Get(filePath string) (io.ReadCloser, error) {
	full, err := s.resolve(filePath)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(full)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrFileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	return file, nil
}

// Delete removes a stored file. A file that is already gone is not an error.
func (s *localStorage) Delete(filePath string) error {
	full, err := s.resolve(filePath)
	if err != nil {
		return err
	}

	if err := os.Remove(full); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}
