package attachment

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")

func imageFiles(n int, size int64) []File {
	files := make([]File, n)
	for i := range files {
		files[i] = File{Name: fmt.Sprintf("photo-%d.png", i), MIMEType: "image/png", Size: size}
	}
	return files
}

func TestValidateSelection_TooManyFiles(t *testing.T) {
	sel := ValidateSelection(imageFiles(6, 1024*1024))

	assert.Empty(t, sel.Accepted)
	assert.Equal(t, "Maximum 5 files allowed per message", sel.Message)
	assert.False(t, sel.OK())
}

func TestValidateSelection_AllValid(t *testing.T) {
	for n := 0; n <= MaxFiles; n++ {
		t.Run(fmt.Sprintf("%d files", n), func(t *testing.T) {
			sel := ValidateSelection(imageFiles(n, 1024))
			assert.Len(t, sel.Accepted, n)
			assert.True(t, sel.OK())
			assert.Empty(t, sel.Rejected)
		})
	}
}

func TestValidateSelection_TypeRejection(t *testing.T) {
	tests := []struct {
		name string
		file File
	}{
		{"plain text tiny", File{Name: "notes.txt", MIMEType: "text/plain", Size: 1}},
		{"plain text empty", File{Name: "empty.txt", MIMEType: "text/plain", Size: 0}},
		{"executable", File{Name: "notes.exe", MIMEType: "application/x-msdownload", Size: 100}},
		{"unknown", File{Name: "blob", MIMEType: "", Size: 100}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sel := ValidateSelection([]File{tt.file})
			assert.Empty(t, sel.Accepted)
			assert.Contains(t, sel.Message, tt.file.Name)
			assert.Contains(t, sel.Message, "file type not allowed")
			require.Len(t, sel.Rejected, 1)
			assert.ErrorIs(t, sel.Rejected[0], ErrTypeNotAllowed)
		})
	}
}

func TestValidateSelection_SizeBoundary(t *testing.T) {
	exact := File{Name: "exact.png", MIMEType: "image/png", Size: 5 * 1024 * 1024}
	over := File{Name: "over.png", MIMEType: "image/png", Size: 5*1024*1024 + 1}

	sel := ValidateSelection([]File{exact})
	assert.Len(t, sel.Accepted, 1)
	assert.True(t, sel.OK())

	sel = ValidateSelection([]File{over})
	assert.Empty(t, sel.Accepted)
	assert.Equal(t, "over.png: file exceeds 5MB limit", sel.Message)
	require.Len(t, sel.Rejected, 1)
	assert.ErrorIs(t, sel.Rejected[0], ErrFileTooLarge)
}

func TestValidateSelection_ReportsFirstRejectionOnly(t *testing.T) {
	files := []File{
		{Name: "ok.pdf", MIMEType: "application/pdf", Size: 10},
		{Name: "first.exe", MIMEType: "application/octet-stream", Size: 10},
		{Name: "second.png", MIMEType: "image/png", Size: MaxFileSize + 1},
	}

	sel := ValidateSelection(files)

	require.Len(t, sel.Accepted, 1)
	assert.Equal(t, "ok.pdf", sel.Accepted[0].Name)
	assert.Len(t, sel.Rejected, 2)
	assert.Contains(t, sel.Message, "first.exe")
	assert.NotContains(t, sel.Message, "second.png")
}

func TestIsAllowedType_NormalizesParameters(t *testing.T) {
	assert.True(t, IsAllowedType("IMAGE/PNG"))
	assert.True(t, IsAllowedType("application/pdf; name=paper.pdf"))
	assert.True(t, IsAllowedType("image/jpg"))
	assert.False(t, IsAllowedType("image/svg+xml"))
	assert.False(t, IsAllowedType("text/plain; charset=utf-8"))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		mime string
		want FileType
	}{
		{"image/png", FileTypeImage},
		{"image/svg+xml", FileTypeImage},
		{"application/pdf", FileTypePDF},
		{"application/msword", FileTypeDocument},
		{"", FileTypeDocument},
		{"weird", FileTypeDocument},
	}

	for _, tt := range tests {
		t.Run(tt.mime, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.mime))
		})
	}
}

func TestFormatSize(t *testing.T) {
	assert.Equal(t, "0 B", FormatSize(0))
	assert.Equal(t, "1023 B", FormatSize(1023))
	assert.Equal(t, "1.00 KB", FormatSize(1024))
	assert.Equal(t, "1.50 KB", FormatSize(1536))
	assert.Equal(t, "2.00 MB", FormatSize(2*1024*1024))
	assert.Equal(t, "5.00 MB", FormatSize(MaxFileSize))
}

func TestSniff(t *testing.T) {
	sniffed, err := Sniff(bytes.NewReader(pngHeader))
	require.NoError(t, err)
	assert.Equal(t, "image/png", sniffed)
	assert.True(t, ContentAllowed(sniffed))

	sniffed, err = Sniff(bytes.NewReader([]byte("%PDF-1.4\n%âãÏÓ\n")))
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", sniffed)
	assert.True(t, ContentAllowed(sniffed))

	sniffed, err = Sniff(bytes.NewReader([]byte("just some notes")))
	require.NoError(t, err)
	assert.Equal(t, "text/plain", sniffed)
	assert.False(t, ContentAllowed(sniffed))
}

func TestFromPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "figure.png")
	require.NoError(t, os.WriteFile(path, pngHeader, 0o644))

	f, err := FromPath(path)
	require.NoError(t, err)
	assert.Equal(t, "figure.png", f.Name)
	assert.Equal(t, "image/png", f.MIMEType)
	assert.Equal(t, int64(len(pngHeader)), f.Size)

	rc, err := f.Open()
	require.NoError(t, err)
	defer rc.Close()

	_, err = FromPath(dir)
	assert.Error(t, err)

	_, err = FromPath(filepath.Join(dir, "missing.png"))
	assert.Error(t, err)
}
