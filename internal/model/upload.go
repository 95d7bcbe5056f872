package model

import "time"

// UploadedFile describes a file held by the upload store.
type UploadedFile struct {
	FileID string    `json:"file_id"`
	Path   string    `json:"-"`
	Type   MediaType `json:"type"`
	Size   int64     `json:"size"`
}

// MediaDescriptor is a resolved media reference: a concrete local file with
// known size and, for time-based media, probed duration.
type MediaDescriptor struct {
	Source   string    `json:"source"`
	Path     string    `json:"path"`
	Type     MediaType `json:"type"`
	Size     int64     `json:"size"`
	Duration float64   `json:"duration,omitempty"`
}

// UploadResponse is returned per uploaded file.
type UploadResponse struct {
	FileID   string `json:"file_id"`
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
	Type     string `json:"type"`
}

// FileInfoResponse describes an uploaded file on lookup.
type FileInfoResponse struct {
	FileID    string    `json:"file_id"`
	Filename  string    `json:"filename"`
	Size      int64     `json:"size"`
	Type      MediaType `json:"type"`
	CreatedAt time.Time `json:"created_at"`
}
