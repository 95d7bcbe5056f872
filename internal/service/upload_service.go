package service

import (
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/videoweave/api/internal/media"
	"github.com/videoweave/api/internal/model"
)

// UploadService persists user-provided media files and answers lookups
// against the upload store.
type UploadService struct {
	store   *media.DiskStore
	maxSize int64
}

func NewUploadService(store *media.DiskStore, maxSize int64) *UploadService {
	return &UploadService{store: store, maxSize: maxSize}
}

// MaxSize returns the per-file upload limit in bytes.
func (s *UploadService) MaxSize() int64 { return s.maxSize }

// SaveFile stores one uploaded file under a fresh file id. The extension must
// belong to a supported media type and size must not exceed the limit.
func (s *UploadService) SaveFile(filename string, size int64, r io.Reader) (*model.UploadResponse, error) {
	if filename == "" {
		return nil, fmt.Errorf("missing filename")
	}
	if size > s.maxSize {
		return nil, fmt.Errorf("file %q exceeds the %d byte limit", filename, s.maxSize)
	}
	ext := strings.ToLower(filepath.Ext(filename))
	if !media.AllowedExtension(ext) {
		return nil, fmt.Errorf("unsupported file extension %q", ext)
	}

	file, err := s.store.Save(uuid.New().String(), filename, r)
	if err != nil {
		return nil, err
	}

	contentType := mime.TypeByExtension(ext)
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return &model.UploadResponse{
		FileID:   file.FileID,
		Filename: filename,
		Size:     file.Size,
		Type:     contentType,
	}, nil
}

// FileInfo describes a stored file.
func (s *UploadService) FileInfo(fileID string) (*model.FileInfoResponse, error) {
	file, err := s.store.Resolve(fileID)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(file.Path)
	if err != nil {
		return nil, err
	}
	return &model.FileInfoResponse{
		FileID:    file.FileID,
		Filename:  filepath.Base(file.Path),
		Size:      file.Size,
		Type:      file.Type,
		CreatedAt: info.ModTime().UTC(),
	}, nil
}

// Delete removes a stored file.
func (s *UploadService) Delete(fileID string) error {
	return s.store.Delete(fileID)
}
