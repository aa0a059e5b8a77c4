package service

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"doc-verifier/internal/models"
	"doc-verifier/pkg/config"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"
)

var ErrInvalidFile = errors.New("invalid file")

// FileService enforces the host's file rules before a document reaches the
// state machine.
type FileService struct {
	accepted []string
	maxBytes int64
	logger   *zap.Logger
}

func NewFileService(cfg *config.WidgetConfig, logger *zap.Logger) *FileService {
	api.DisableConfigDir()
	return &FileService{
		accepted: cfg.AcceptedFileTypes,
		maxBytes: int64(cfg.MaxFileSizeMB) * 1024 * 1024,
		logger:   logger,
	}
}

// Inspect validates the selected file and describes it. PDFs are parsed to
// make sure they open and to record the page count.
func (s *FileService) Inspect(fileName string, content []byte) (*models.FileRef, error) {
	ext := strings.ToLower(filepath.Ext(fileName))
	if !s.isAccepted(ext) {
		return nil, fmt.Errorf("%w: unsupported file type %q (supported: %s)", ErrInvalidFile, ext, strings.Join(s.accepted, ", "))
	}
	if len(content) == 0 {
		return nil, fmt.Errorf("%w: file is empty", ErrInvalidFile)
	}
	if s.maxBytes > 0 && int64(len(content)) > s.maxBytes {
		return nil, fmt.Errorf("%w: file exceeds %d MB", ErrInvalidFile, s.maxBytes/(1024*1024))
	}

	sum := blake2b.Sum256(content)
	ref := &models.FileRef{
		Name:        filepath.Base(fileName),
		Size:        int64(len(content)),
		MimeType:    detectMimeType(fileName),
		Fingerprint: "blake2b-256:" + hex.EncodeToString(sum[:]),
	}

	if ext == ".pdf" {
		pages, err := pdfPageCount(content)
		if err != nil {
			s.logger.Warn("Rejected unreadable PDF", zap.String("file", fileName), zap.Error(err))
			return nil, fmt.Errorf("%w: failed to read PDF: %v", ErrInvalidFile, err)
		}
		ref.PageCount = pages
	}

	return ref, nil
}

func (s *FileService) isAccepted(ext string) bool {
	for _, a := range s.accepted {
		if a == ext {
			return true
		}
	}
	return false
}

func pdfPageCount(content []byte) (int, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return api.PageCount(bytes.NewReader(content), conf)
}
