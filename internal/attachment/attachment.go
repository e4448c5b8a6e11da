// Package attachment implements the chat attachment pipeline: the allow-list,
// count and size limits, display classification and size formatting. The
// client uses it to pre-validate a selection before upload; the server runs
// the same checks again and is the final authority.
package attachment

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// Limits applied to every chat message.
const (
	MaxFiles          = 5
	MaxFileSize int64 = 5 * 1024 * 1024
)

// FileType buckets MIME types for display (icon selection).
type FileType string

const (
	FileTypeImage    FileType = "image"
	FileTypePDF      FileType = "pdf"
	FileTypeDocument FileType = "document"
)

// AllowedMIMETypes is the upload allow-list.
var AllowedMIMETypes = map[string]bool{
	"image/jpeg":      true,
	"image/jpg":       true,
	"image/png":       true,
	"image/gif":       true,
	"image/webp":      true,
	"application/pdf": true,
}

// Validation errors
var (
	ErrTooManyFiles    = errors.New("too many files")
	ErrTypeNotAllowed  = errors.New("file type not allowed")
	ErrFileTooLarge    = errors.New("file exceeds size limit")
	ErrContentMismatch = errors.New("file content does not match an allowed type")
)

// TooManyFilesMessage is shown when a selection exceeds MaxFiles.
var TooManyFilesMessage = fmt.Sprintf("Maximum %d files allowed per message", MaxFiles)

// File describes one selected file. Open is only needed for upload.
type File struct {
	Name     string
	MIMEType string
	Size     int64
	Open     func() (io.ReadCloser, error)
}

// FileError is a rejection of a single file.
type FileError struct {
	FileName string
	Err      error
}

func (e *FileError) Error() string {
	switch {
	case errors.Is(e.Err, ErrTypeNotAllowed):
		return fmt.Sprintf("%s: file type not allowed. Only images and PDFs are accepted", e.FileName)
	case errors.Is(e.Err, ErrFileTooLarge):
		return fmt.Sprintf("%s: file exceeds %dMB limit", e.FileName, MaxFileSize/(1024*1024))
	case errors.Is(e.Err, ErrContentMismatch):
		return fmt.Sprintf("%s: file content does not match its declared type", e.FileName)
	default:
		return fmt.Sprintf("%s: %v", e.FileName, e.Err)
	}
}

func (e *FileError) Unwrap() error {
	return e.Err
}

// Selection is the outcome of ValidateSelection.
type Selection struct {
	Accepted []File
	Rejected []*FileError
	// Message is the first rejection reason, empty when everything passed.
	Message string
}

// OK reports whether every file was accepted.
func (s Selection) OK() bool {
	return s.Message == ""
}

// NormalizeMIMEType lowercases a media type and strips its parameters.
func NormalizeMIMEType(mimeType string) string {
	mimeType = strings.TrimSpace(mimeType)
	if parsed, _, err := mime.ParseMediaType(mimeType); err == nil {
		return strings.ToLower(parsed)
	}
	return strings.ToLower(mimeType)
}

// IsAllowedType reports whether mimeType is on the allow-list.
func IsAllowedType(mimeType string) bool {
	return AllowedMIMETypes[NormalizeMIMEType(mimeType)]
}

// Validate checks a single file against the type allow-list and size limit.
// The size boundary is inclusive.
func Validate(name, mimeType string, size int64) error {
	if !IsAllowedType(mimeType) {
		return &FileError{FileName: name, Err: ErrTypeNotAllowed}
	}
	if size > MaxFileSize {
		return &FileError{FileName: name, Err: ErrFileTooLarge}
	}
	return nil
}

// ValidateSelection filters a batch of selected files. A batch over MaxFiles
// is rejected as a whole. Otherwise each file is checked on its own and only
// the first rejection is reported in Message.
func ValidateSelection(files []File) Selection {
	if len(files) > MaxFiles {
		return Selection{Message: TooManyFilesMessage}
	}

	sel := Selection{Accepted: make([]File, 0, len(files))}
	for _, f := range files {
		if err := Validate(f.Name, f.MIMEType, f.Size); err != nil {
			var fe *FileError
			if errors.As(err, &fe) {
				sel.Rejected = append(sel.Rejected, fe)
			}
			if sel.Message == "" {
				sel.Message = err.Error()
			}
			continue
		}
		sel.Accepted = append(sel.Accepted, f)
	}
	return sel
}

// Classify buckets a MIME type for display. Unknown types fall back to
// document; this has no bearing on the upload allow-list.
func Classify(mimeType string) FileType {
	mimeType = NormalizeMIMEType(mimeType)
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return FileTypeImage
	case mimeType == "application/pdf":
		return FileTypePDF
	default:
		return FileTypeDocument
	}
}

// FormatSize renders a byte count the way the chat panel shows it,
// e.g. 2097152 -> "2.00 MB".
func FormatSize(bytes int64) string {
	switch {
	case bytes < 1024:
		return fmt.Sprintf("%d B", bytes)
	case bytes < 1024*1024:
		return fmt.Sprintf("%.2f KB", float64(bytes)/1024)
	default:
		return fmt.Sprintf("%.2f MB", float64(bytes)/(1024*1024))
	}
}

// Sniff detects the content type of r from its leading bytes.
func Sniff(r io.Reader) (string, error) {
	mt, err := mimetype.DetectReader(r)
	if err != nil {
		return "", fmt.Errorf("failed to detect content type: %w", err)
	}
	return NormalizeMIMEType(mt.String()), nil
}

// ContentAllowed reports whether sniffed content is one of the allowed types.
func ContentAllowed(sniffed string) bool {
	if IsAllowedType(sniffed) {
		return true
	}
	mt := mimetype.Lookup(sniffed)
	if mt == nil {
		return false
	}
	for allowed := range AllowedMIMETypes {
		if mt.Is(allowed) {
			return true
		}
	}
	return false
}

// FromPath builds a File for a file on disk, detecting its MIME type from
// content.
func FromPath(path string) (File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return File{}, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if info.IsDir() {
		return File{}, fmt.Errorf("%s is a directory", path)
	}

	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return File{}, fmt.Errorf("failed to detect type of %s: %w", path, err)
	}

	return File{
		Name:     filepath.Base(path),
		MIMEType: NormalizeMIMEType(mt.String()),
		Size:     info.Size(),
		Open: func() (io.ReadCloser, error) {
			return os.Open(path)
		},
	}, nil
}
