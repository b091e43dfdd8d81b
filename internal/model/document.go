package model

import "time"

// Document represents one published HTML file.
// This is a pure domain model with no database-specific dependencies or tags.
// The content itself lives in object storage under StorageKey; the record only
// carries metadata.
type Document struct {
	ID string `json:"id"`
	// Filename is the display name. It always ends in ".html" once persisted
	// and doubles as the title in view/embed renderings and oEmbed responses.
	Filename string `json:"filename"`
	// StorageKey is the object-store key assigned at upload time. It is
	// immutable: renaming a document never moves the blob.
	StorageKey string    `json:"storage_key"`
	Size       int64     `json:"size"`
	CreatedAt  time.Time `json:"created_at"`
}
