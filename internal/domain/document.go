package domain

import "time"

// Document source constants
const (
	DocumentSourceUpload = "upload"
	DocumentSourceURL    = "url"
	DocumentSourceFolder = "folder"
)

// Document is a file uploaded into a store
type Document struct {
	Filename  string    `json:"filename"`
	FileType  string    `json:"file_type"`
	FileSize  int64     `json:"file_size"`
	Source    string    `json:"source"`
	SourceURL string    `json:"source_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// FetchedFile is a file downloaded from a cloud drive link
type FetchedFile struct {
	Path      string `json:"path"`
	Filename  string `json:"filename"`
	Size      int64  `json:"size"`
	SourceURL string `json:"source_url"`
}

// DriveLinkKind identifies the kind of resource a cloud drive link points to
type DriveLinkKind string

// Drive link kinds
const (
	DriveDocument     DriveLinkKind = "document"
	DriveSpreadsheet  DriveLinkKind = "spreadsheet"
	DrivePresentation DriveLinkKind = "presentation"
	DriveFile         DriveLinkKind = "file"
	DriveFolder       DriveLinkKind = "folder"
)

// DriveLink is a cloud drive link found in user text
type DriveLink struct {
	URL  string        `json:"url"`
	ID   string        `json:"id"`
	Kind DriveLinkKind `json:"kind"`
}
