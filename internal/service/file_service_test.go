package service

import (
	"strings"
	"testing"

	"doc-verifier/pkg/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestFileService(maxMB int) *FileService {
	return NewFileService(&config.WidgetConfig{
		AcceptedFileTypes: []string{".pdf", ".jpg", ".jpeg", ".png"},
		MaxFileSizeMB:     maxMB,
	}, zap.NewNop())
}

func TestInspectImage(t *testing.T) {
	s := newTestFileService(1)

	ref, err := s.Inspect("scans/Statement.PNG", []byte("\x89PNG\r\n\x1a\n"))
	require.NoError(t, err)
	assert.Equal(t, "Statement.PNG", ref.Name)
	assert.Equal(t, int64(8), ref.Size)
	assert.Equal(t, "image/png", ref.MimeType)
	assert.True(t, strings.HasPrefix(ref.Fingerprint, "blake2b-256:"))
	assert.Len(t, ref.Fingerprint, len("blake2b-256:")+64)
	assert.Zero(t, ref.PageCount)

	again, err := s.Inspect("other.png", []byte("\x89PNG\r\n\x1a\n"))
	require.NoError(t, err)
	assert.Equal(t, ref.Fingerprint, again.Fingerprint)
}

func TestInspectRejects(t *testing.T) {
	s := newTestFileService(1)

	tests := []struct {
		name    string
		file    string
		content []byte
	}{
		{"unsupported extension", "statement.docx", []byte("data")},
		{"no extension", "statement", []byte("data")},
		{"empty", "statement.jpg", nil},
		{"too large", "statement.jpg", make([]byte, 1024*1024+1)},
		{"broken pdf", "statement.pdf", []byte("not a pdf at all")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Inspect(tt.file, tt.content)
			assert.ErrorIs(t, err, ErrInvalidFile)
		})
	}
}
