package media

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/videoweave/api/internal/model"
)

// Extension allow-lists per media category.
var (
	videoExtensions = map[string]bool{
		".mp4": true, ".avi": true, ".mov": true, ".mkv": true,
		".flv": true, ".wmv": true, ".webm": true, ".m4v": true,
	}
	imageExtensions = map[string]bool{
		".jpg": true, ".jpeg": true, ".png": true, ".gif": true,
		".bmp": true, ".tiff": true, ".webp": true,
	}
	audioExtensions = map[string]bool{
		".mp3": true, ".wav": true, ".aac": true, ".ogg": true,
		".flac": true, ".m4a": true, ".wma": true,
	}
)

// TypeForExtension maps a file extension to its media category.
func TypeForExtension(ext string) (model.MediaType, bool) {
	ext = strings.ToLower(ext)
	switch {
	case videoExtensions[ext]:
		return model.MediaTypeVideo, true
	case imageExtensions[ext]:
		return model.MediaTypeImage, true
	case audioExtensions[ext]:
		return model.MediaTypeAudio, true
	}
	return "", false
}

// AllowedExtension reports whether ext is uploadable at all.
func AllowedExtension(ext string) bool {
	_, ok := TypeForExtension(ext)
	return ok
}

// DiskStore keeps uploaded files on the local file system, one file per id
// named <file_id>.<original extension>.
type DiskStore struct {
	dir string
}

// NewDiskStore creates a store rooted at dir, creating it if needed.
func NewDiskStore(dir string) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &DiskStore{dir: dir}, nil
}

// Dir returns the store's root directory.
func (s *DiskStore) Dir() string { return s.dir }

// Save writes the content of r under fileID, keeping the original extension.
func (s *DiskStore) Save(fileID, origName string, r io.Reader) (*model.UploadedFile, error) {
	ext := strings.ToLower(filepath.Ext(origName))
	mediaType, ok := TypeForExtension(ext)
	if !ok {
		return nil, fmt.Errorf("file type %q is not allowed", ext)
	}

	path := filepath.Join(s.dir, fileID+ext)
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create file: %w", err)
	}
	defer f.Close()

	size, err := io.Copy(f, r)
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("write file: %w", err)
	}

	return &model.UploadedFile{
		FileID: fileID,
		Path:   path,
		Type:   mediaType,
		Size:   size,
	}, nil
}

// Resolve looks up an uploaded file by id. Fails with NotFound when no file
// with that id exists.
func (s *DiskStore) Resolve(fileID string) (*model.UploadedFile, error) {
	matches, err := filepath.Glob(filepath.Join(s.dir, fileID+".*"))
	if err != nil || len(matches) == 0 {
		return nil, resolutionErrorf(KindNotFound, fileID, "no uploaded file with this id")
	}

	path := matches[0]
	info, err := os.Stat(path)
	if err != nil {
		return nil, resolutionErrorf(KindNotFound, fileID, "stat: %v", err)
	}

	mediaType, _ := TypeForExtension(filepath.Ext(path))
	return &model.UploadedFile{
		FileID: fileID,
		Path:   path,
		Type:   mediaType,
		Size:   info.Size(),
	}, nil
}

// Delete removes the file stored under fileID.
func (s *DiskStore) Delete(fileID string) error {
	f, err := s.Resolve(fileID)
	if err != nil {
		return err
	}
	return os.Remove(f.Path)
}
