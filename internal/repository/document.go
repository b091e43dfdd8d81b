package repository

import (
	"context"

	"quickembed/internal/model"
)

// DocumentRepository defines data access for document records using SQL queries only.
// No business logic here — strictly persistence operations.
type DocumentRepository interface {
	// Create inserts a new document record.
	// The caller provides all fields (ID, StorageKey, CreatedAt); nothing is generated by the DB.
	// Returns the stored document.
	Create(ctx context.Context, doc *model.Document) (*model.Document, error)

	// FindByID returns a document by its ID. Returns sql.ErrNoRows when absent.
	FindByID(ctx context.Context, id string) (*model.Document, error)

	// List returns all documents ordered by creation time, newest first.
	List(ctx context.Context) ([]model.Document, error)

	// UpdateFilename changes the display name of a document and returns the
	// updated record. Returns sql.ErrNoRows when no row matches the ID.
	// The storage key is never updated.
	UpdateFilename(ctx context.Context, id, filename string) (*model.Document, error)

	// Delete removes a document by ID. It returns nil if the row was deleted or did not exist.
	Delete(ctx context.Context, id string) error
}
