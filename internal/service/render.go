package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"html"
	"io"

	"quickembed/internal/model"
	"quickembed/internal/repository"
	"quickembed/internal/storage"
)

// embedShell is the host document wrapped around embedded content. The reset
// style makes the content fill its frame; the title carries the filename.
// The stored content is spliced in verbatim — it is the user's own HTML and
// must not be escaped.
const embedShell = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>%s</title>
  <style>
    body {
      margin: 0;
      padding: 0;
      overflow: auto;
      font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, Oxygen, Ubuntu, sans-serif;
      min-height: 100vh;
    }
    html, body {
      height: 100%%;
    }
    * {
      box-sizing: border-box;
    }
  </style>
</head>
<body>
  %s
</body>
</html>`

// RenderingService produces the two public renderings of a document: the raw
// "view" bytes and the sandbox-wrapped "embed" document. Both are pure reads.
type RenderingService interface {
	// View returns the stored content unchanged, with its record.
	View(ctx context.Context, id string) ([]byte, *model.Document, error)
	// Embed returns the content wrapped in a minimal host document intended
	// for cross-origin iframing.
	Embed(ctx context.Context, id string) ([]byte, *model.Document, error)
}

type renderingService struct {
	store storage.Storage
	repo  repository.DocumentRepository
}

// NewRenderingService constructs a new RenderingService.
func NewRenderingService(store storage.Storage, repo repository.DocumentRepository) RenderingService {
	return &renderingService{store: store, repo: repo}
}

// fetch resolves the record and downloads the blob. Either lookup failing is
// reported as not found: a record without a blob must not resolve.
func (s *renderingService) fetch(ctx context.Context, id string) ([]byte, *model.Document, error) {
	if id == "" {
		return nil, nil, ErrNotFound
	}
	doc, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, fmt.Errorf("%w: find record: %v", ErrStoreUnavailable, err)
	}

	rc, _, err := s.store.Get(ctx, doc.StorageKey)
	if err != nil {
		return nil, nil, ErrNotFound
	}
	defer rc.Close()

	content, err := io.ReadAll(rc)
	if err != nil {
		return nil, nil, ErrNotFound
	}
	return content, doc, nil
}

func (s *renderingService) View(ctx context.Context, id string) ([]byte, *model.Document, error) {
	return s.fetch(ctx, id)
}

func (s *renderingService) Embed(ctx context.Context, id string) ([]byte, *model.Document, error) {
	content, doc, err := s.fetch(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	title := doc.Filename
	if title == "" {
		title = "Embedded Content"
	}
	wrapped := fmt.Sprintf(embedShell, html.EscapeString(title), content)
	return []byte(wrapped), doc, nil
}
