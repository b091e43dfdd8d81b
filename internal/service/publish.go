package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"quickembed/internal/model"
	"quickembed/internal/repository"
	"quickembed/internal/storage"
)

// storageKeyPrefix namespaces all uploaded blobs in the bucket.
const storageKeyPrefix = "html-files/"

const htmlExt = ".html"

var unsafeKeyChars = regexp.MustCompile(`[^a-zA-Z0-9.-]`)

// PublishingService defines the use cases for publishing documents. It owns
// the protocol that keeps the metadata record and the stored blob in sync.
type PublishingService interface {
	// Upload stores the content as a blob, then inserts the metadata record.
	// The blob is written first: an orphaned blob is reclaimable, a record
	// pointing at a missing blob is not. If the record insert fails, the
	// just-written blob is deleted as a compensating action.
	Upload(ctx context.Context, r io.Reader, originalFilename string, size int64) (*model.Document, error)

	// Rename updates the display name only. Names without the .html suffix
	// get it appended. Renaming to the current name is an idempotent no-op.
	Rename(ctx context.Context, id, newFilename string) (*model.Document, error)

	// Delete removes the blob and then the record. A blob-delete failure is
	// logged and does not keep the record alive; a dangling, still-resolvable
	// record is worse than an orphaned blob.
	Delete(ctx context.Context, id string) error

	// Get returns a single document by its ID.
	Get(ctx context.Context, id string) (*model.Document, error)

	// List returns all documents, newest first.
	List(ctx context.Context) ([]model.Document, error)
}

// publishingService is a concrete implementation of PublishingService.
type publishingService struct {
	store    storage.Storage
	repo     repository.DocumentRepository
	maxBytes int64
	newID    func() string
}

// NewPublishingService constructs a new PublishingService. maxBytes is the
// upload size ceiling in bytes.
func NewPublishingService(store storage.Storage, repo repository.DocumentRepository, maxBytes int64) PublishingService {
	return &publishingService{
		store:    store,
		repo:     repo,
		maxBytes: maxBytes,
		newID:    uuid.NewString,
	}
}

// sanitizeFilename replaces every character outside [A-Za-z0-9.-] with '_'
// so the name is safe to use inside an object key.
func sanitizeFilename(name string) string {
	return unsafeKeyChars.ReplaceAllString(name, "_")
}

func (s *publishingService) Upload(ctx context.Context, r io.Reader, originalFilename string, size int64) (*model.Document, error) {
	if r == nil {
		return nil, fmt.Errorf("%w: no file provided", ErrInvalidFileType)
	}
	if !strings.HasSuffix(originalFilename, htmlExt) {
		return nil, ErrInvalidFileType
	}
	if size > s.maxBytes {
		return nil, fmt.Errorf("%w: max size is %d bytes", ErrFileTooLarge, s.maxBytes)
	}

	id := s.newID()
	filename := sanitizeFilename(originalFilename)
	key := storageKeyPrefix + id + "_" + filename

	// Blob first. If this fails nothing was persisted anywhere.
	if _, err := s.store.Put(ctx, key, r, storage.PutObjectOptions{
		Size:        size,
		ContentType: "text/html",
		Metadata: map[string]string{
			"original-filename": originalFilename,
		},
	}); err != nil {
		return nil, fmt.Errorf("%w: upload blob: %v", ErrStoreUnavailable, err)
	}

	doc := &model.Document{
		ID:         id,
		Filename:   filename,
		StorageKey: key,
		Size:       size,
		CreatedAt:  time.Now().UTC(),
	}
	stored, err := s.repo.Create(ctx, doc)
	if err != nil {
		// Compensating action: remove the just-written blob so no orphan
		// survives a failed insert. Attempted exactly once; if it also
		// fails the orphan is logged, not retried.
		if delErr := s.store.Delete(ctx, key); delErr != nil {
			logOrphan(key, delErr)
		}
		return nil, fmt.Errorf("%w: insert record: %v", ErrStoreUnavailable, err)
	}
	return stored, nil
}

func (s *publishingService) Rename(ctx context.Context, id, newFilename string) (*model.Document, error) {
	if id == "" {
		return nil, ErrNotFound
	}
	name := strings.TrimSpace(newFilename)
	if name == "" {
		return nil, ErrInvalidFilename
	}
	if !strings.HasSuffix(name, htmlExt) {
		name += htmlExt
	}

	doc, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: find record: %v", ErrStoreUnavailable, err)
	}
	if doc.Filename == name {
		return doc, nil
	}

	updated, err := s.repo.UpdateFilename(ctx, id, name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Row vanished between read and update; concurrent delete won.
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: update record: %v", ErrStoreUnavailable, err)
	}
	return updated, nil
}

func (s *publishingService) Delete(ctx context.Context, id string) error {
	if id == "" {
		return ErrNotFound
	}
	doc, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("%w: find record: %v", ErrStoreUnavailable, err)
	}

	// Best effort: a failed blob delete leaves an orphan, which is tolerable.
	// The record is removed regardless so the public handle stops resolving.
	if err := s.store.Delete(ctx, doc.StorageKey); err != nil {
		logOrphan(doc.StorageKey, err)
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("%w: delete record: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (s *publishingService) Get(ctx context.Context, id string) (*model.Document, error) {
	if id == "" {
		return nil, ErrNotFound
	}
	doc, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: find record: %v", ErrStoreUnavailable, err)
	}
	return doc, nil
}

func (s *publishingService) List(ctx context.Context) ([]model.Document, error) {
	docs, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: list records: %v", ErrStoreUnavailable, err)
	}
	return docs, nil
}

// logOrphan emits a one-line JSON warning about a blob left behind in object
// storage. Orphans are reclaimable by an out-of-band sweep.
func logOrphan(key string, err error) {
	entry := map[string]any{
		"ts":          time.Now().UTC().Format(time.RFC3339Nano),
		"level":       "warn",
		"msg":         "orphaned_blob",
		"storage_key": key,
		"error":       err.Error(),
	}
	if b, mErr := json.Marshal(entry); mErr == nil {
		log.SetFlags(0)
		log.Println(string(b))
	}
}
