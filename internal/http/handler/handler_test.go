package handler

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"quickembed/internal/config"
	"quickembed/internal/model"
	"quickembed/internal/oembed"
	repoMocks "quickembed/internal/repository/mocks"
	"quickembed/internal/service"
	serviceMocks "quickembed/internal/service/mocks"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const testBaseURL = "https://host.example"

func TestHealthCheck(t *testing.T) {
	db, dbMock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	app := fiber.New()
	app.Get("/health", HealthCheck(db))

	t.Run("healthy", func(t *testing.T) {
		dbMock.ExpectPing().WillReturnError(nil)

		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var body map[string]string
		json.NewDecoder(resp.Body).Decode(&body)
		assert.Equal(t, "healthy", body["status"])
	})

	t.Run("unhealthy", func(t *testing.T) {
		dbMock.ExpectPing().WillReturnError(errors.New("db error"))

		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

		var body errorPayload
		json.NewDecoder(resp.Body).Decode(&body)
		assert.Equal(t, "SERVICE_UNAVAILABLE", body.Error.Code)
	})
}

func TestLivenessProbe(t *testing.T) {
	app := fiber.New()
	app.Get("/healthz", LivenessProbe())

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	resp, _ := app.Test(req)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func multipartBody(t *testing.T, filename, content string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", filename)
	require.NoError(t, err)
	part.Write([]byte(content))
	writer.Close()
	return body, writer.FormDataContentType()
}

func TestUploadFile(t *testing.T) {
	mockSvc := new(serviceMocks.MockPublishingService)
	app := fiber.New()
	app.Post("/upload", UploadFile(mockSvc, testBaseURL))

	t.Run("success", func(t *testing.T) {
		body, contentType := multipartBody(t, "a.html", "<h1>hi</h1>")

		id := uuid.New().String()
		expectedDoc := &model.Document{ID: id, Filename: "a.html", Size: 11}
		mockSvc.On("Upload", mock.Anything, mock.Anything, "a.html", int64(11)).Return(expectedDoc, nil).Once()

		req := httptest.NewRequest(http.MethodPost, "/upload", body)
		req.Header.Set("Content-Type", contentType)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusCreated, resp.StatusCode)

		var result fileResponse
		json.NewDecoder(resp.Body).Decode(&result)
		assert.Equal(t, id, result.ID)
		assert.Equal(t, testBaseURL+"/view/"+id, result.ViewURL)
		mockSvc.AssertExpectations(t)
	})

	t.Run("no file", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/upload", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		var res errorPayload
		json.NewDecoder(resp.Body).Decode(&res)
		assert.Equal(t, "FILE_REQUIRED", res.Error.Code)
	})

	t.Run("wrong file type", func(t *testing.T) {
		body, contentType := multipartBody(t, "a.txt", "hello")

		mockSvc.On("Upload", mock.Anything, mock.Anything, "a.txt", int64(5)).
			Return(nil, service.ErrInvalidFileType).Once()

		req := httptest.NewRequest(http.MethodPost, "/upload", body)
		req.Header.Set("Content-Type", contentType)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		var res errorPayload
		json.NewDecoder(resp.Body).Decode(&res)
		assert.Equal(t, "INVALID_FILE_TYPE", res.Error.Code)
		mockSvc.AssertExpectations(t)
	})

	t.Run("too large", func(t *testing.T) {
		body, contentType := multipartBody(t, "a.html", "hello")

		mockSvc.On("Upload", mock.Anything, mock.Anything, "a.html", int64(5)).
			Return(nil, service.ErrFileTooLarge).Once()

		req := httptest.NewRequest(http.MethodPost, "/upload", body)
		req.Header.Set("Content-Type", contentType)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
		var res errorPayload
		json.NewDecoder(resp.Body).Decode(&res)
		assert.Equal(t, "FILE_TOO_LARGE", res.Error.Code)
		mockSvc.AssertExpectations(t)
	})

	t.Run("store failure", func(t *testing.T) {
		body, contentType := multipartBody(t, "a.html", "hello")

		mockSvc.On("Upload", mock.Anything, mock.Anything, "a.html", int64(5)).
			Return(nil, service.ErrStoreUnavailable).Once()

		req := httptest.NewRequest(http.MethodPost, "/upload", body)
		req.Header.Set("Content-Type", contentType)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
		mockSvc.AssertExpectations(t)
	})
}

func TestListFiles(t *testing.T) {
	mockSvc := new(serviceMocks.MockPublishingService)
	app := fiber.New()
	app.Get("/files", ListFiles(mockSvc, testBaseURL))

	t.Run("success", func(t *testing.T) {
		docs := []model.Document{
			{ID: "id-2", Filename: "b.html", Size: 20},
			{ID: "id-1", Filename: "a.html", Size: 10},
		}
		mockSvc.On("List", mock.Anything).Return(docs, nil).Once()

		req := httptest.NewRequest(http.MethodGet, "/files", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var result []fileResponse
		json.NewDecoder(resp.Body).Decode(&result)
		require.Len(t, result, 2)
		assert.Equal(t, "id-2", result[0].ID)
		assert.Equal(t, testBaseURL+"/view/id-2", result[0].ViewURL)
		mockSvc.AssertExpectations(t)
	})

	t.Run("empty list is an empty array", func(t *testing.T) {
		mockSvc.On("List", mock.Anything).Return([]model.Document{}, nil).Once()

		req := httptest.NewRequest(http.MethodGet, "/files", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		raw, _ := io.ReadAll(resp.Body)
		assert.JSONEq(t, "[]", string(raw))
	})

	t.Run("service error", func(t *testing.T) {
		mockSvc.On("List", mock.Anything).Return(nil, service.ErrStoreUnavailable).Once()

		req := httptest.NewRequest(http.MethodGet, "/files", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
		mockSvc.AssertExpectations(t)
	})
}

func TestRenameFile(t *testing.T) {
	mockSvc := new(serviceMocks.MockPublishingService)
	app := fiber.New()
	app.Put("/files/:id/rename", RenameFile(mockSvc, testBaseURL))

	t.Run("success", func(t *testing.T) {
		updated := &model.Document{ID: "id-1", Filename: "report.html"}
		mockSvc.On("Rename", mock.Anything, "id-1", "report").Return(updated, nil).Once()

		body := bytes.NewBufferString(`{"filename":"report"}`)
		req := httptest.NewRequest(http.MethodPut, "/files/id-1/rename", body)
		req.Header.Set("Content-Type", "application/json")
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var result fileResponse
		json.NewDecoder(resp.Body).Decode(&result)
		assert.Equal(t, "report.html", result.Filename)
		mockSvc.AssertExpectations(t)
	})

	t.Run("invalid body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPut, "/files/id-1/rename", bytes.NewBufferString("{"))
		req.Header.Set("Content-Type", "application/json")
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		var res errorPayload
		json.NewDecoder(resp.Body).Decode(&res)
		assert.Equal(t, "INVALID_BODY", res.Error.Code)
	})

	t.Run("empty filename", func(t *testing.T) {
		mockSvc.On("Rename", mock.Anything, "id-1", "").
			Return(nil, service.ErrInvalidFilename).Once()

		body := bytes.NewBufferString(`{"filename":""}`)
		req := httptest.NewRequest(http.MethodPut, "/files/id-1/rename", body)
		req.Header.Set("Content-Type", "application/json")
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		var res errorPayload
		json.NewDecoder(resp.Body).Decode(&res)
		assert.Equal(t, "INVALID_FILENAME", res.Error.Code)
		mockSvc.AssertExpectations(t)
	})

	t.Run("not found", func(t *testing.T) {
		mockSvc.On("Rename", mock.Anything, "missing", "report").
			Return(nil, service.ErrNotFound).Once()

		body := bytes.NewBufferString(`{"filename":"report"}`)
		req := httptest.NewRequest(http.MethodPut, "/files/missing/rename", body)
		req.Header.Set("Content-Type", "application/json")
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		mockSvc.AssertExpectations(t)
	})
}

func TestDeleteFile(t *testing.T) {
	mockSvc := new(serviceMocks.MockPublishingService)
	app := fiber.New()
	app.Delete("/files/:id", DeleteFile(mockSvc))

	t.Run("success", func(t *testing.T) {
		mockSvc.On("Delete", mock.Anything, "id-1").Return(nil).Once()

		req := httptest.NewRequest(http.MethodDelete, "/files/id-1", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
		mockSvc.AssertExpectations(t)
	})

	t.Run("not found", func(t *testing.T) {
		mockSvc.On("Delete", mock.Anything, "missing").Return(service.ErrNotFound).Once()

		req := httptest.NewRequest(http.MethodDelete, "/files/missing", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		var res errorPayload
		json.NewDecoder(resp.Body).Decode(&res)
		assert.Equal(t, "NOT_FOUND", res.Error.Code)
		mockSvc.AssertExpectations(t)
	})
}

func TestViewFile(t *testing.T) {
	mockSvc := new(serviceMocks.MockRenderingService)
	app := fiber.New()
	app.Get("/view/:id", ViewFile(mockSvc))

	t.Run("serves raw content with framing headers", func(t *testing.T) {
		content := []byte("<h1>hello</h1>")
		doc := &model.Document{ID: "id-1", Filename: "a.html"}
		mockSvc.On("View", mock.Anything, "id-1").Return(content, doc, nil).Once()

		req := httptest.NewRequest(http.MethodGet, "/view/id-1", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "text/html; charset=utf-8", resp.Header.Get("Content-Type"))
		assert.Equal(t, "ALLOWALL", resp.Header.Get("X-Frame-Options"))
		assert.Equal(t, "frame-ancestors *;", resp.Header.Get("Content-Security-Policy"))
		assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))

		raw, _ := io.ReadAll(resp.Body)
		assert.Equal(t, content, raw)
		mockSvc.AssertExpectations(t)
	})

	t.Run("not found", func(t *testing.T) {
		mockSvc.On("View", mock.Anything, "missing").Return(nil, nil, service.ErrNotFound).Once()

		req := httptest.NewRequest(http.MethodGet, "/view/missing", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		mockSvc.AssertExpectations(t)
	})
}

func TestEmbedFile(t *testing.T) {
	mockSvc := new(serviceMocks.MockRenderingService)
	app := fiber.New()
	app.Get("/embed/:id", EmbedFile(mockSvc, 3600))

	t.Run("serves wrapped content with caching", func(t *testing.T) {
		content := []byte("<!DOCTYPE html><html><body>wrapped</body></html>")
		doc := &model.Document{ID: "id-1", Filename: "a.html"}
		mockSvc.On("Embed", mock.Anything, "id-1").Return(content, doc, nil).Once()

		req := httptest.NewRequest(http.MethodGet, "/embed/id-1", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "ALLOWALL", resp.Header.Get("X-Frame-Options"))
		assert.Equal(t, "frame-ancestors *;", resp.Header.Get("Content-Security-Policy"))
		assert.Equal(t, "public, max-age=3600", resp.Header.Get("Cache-Control"))
		mockSvc.AssertExpectations(t)
	})

	t.Run("not found", func(t *testing.T) {
		mockSvc.On("Embed", mock.Anything, "missing").Return(nil, nil, service.ErrNotFound).Once()

		req := httptest.NewRequest(http.MethodGet, "/embed/missing", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		mockSvc.AssertExpectations(t)
	})
}

func newTestNegotiator(repo *repoMocks.MockDocumentRepository) *oembed.Negotiator {
	return oembed.NewNegotiator(config.OEmbedConfig{
		ProviderName:  "Quick Embedder",
		AuthorName:    "Quick Embedder User",
		DefaultWidth:  800,
		DefaultHeight: 600,
		MaxWidth:      1920,
		MaxHeight:     1080,
		CacheAgeSec:   3600,
	}, testBaseURL, repo)
}

func TestOEmbed(t *testing.T) {
	t.Run("json by default", func(t *testing.T) {
		mRepo := new(repoMocks.MockDocumentRepository)
		mRepo.On("FindByID", mock.Anything, "abc-123").
			Return(&model.Document{ID: "abc-123", Filename: "report.html"}, nil)

		app := fiber.New()
		app.Get("/oembed", OEmbed(newTestNegotiator(mRepo)))

		req := httptest.NewRequest(http.MethodGet, "/oembed?url=https%3A%2F%2Fhost.example%2Fview%2Fabc-123", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, resp.Header.Get("Content-Type"), "application/json")
		assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "GET", resp.Header.Get("Access-Control-Allow-Methods"))

		var doc oembed.Document
		json.NewDecoder(resp.Body).Decode(&doc)
		assert.Equal(t, "1.0", doc.Version)
		assert.Equal(t, "report.html", doc.Title)
		assert.Equal(t, 800, doc.Width)
	})

	t.Run("xml on request", func(t *testing.T) {
		mRepo := new(repoMocks.MockDocumentRepository)
		mRepo.On("FindByID", mock.Anything, "abc-123").
			Return(&model.Document{ID: "abc-123", Filename: "report.html"}, nil)

		app := fiber.New()
		app.Get("/oembed", OEmbed(newTestNegotiator(mRepo)))

		req := httptest.NewRequest(http.MethodGet, "/oembed?format=xml&url=https%3A%2F%2Fhost.example%2Fview%2Fabc-123", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "application/xml", resp.Header.Get("Content-Type"))

		raw, _ := io.ReadAll(resp.Body)
		assert.Contains(t, string(raw), "<oembed>")
		assert.Contains(t, string(raw), "<![CDATA[")
	})

	t.Run("missing url parameter", func(t *testing.T) {
		app := fiber.New()
		app.Get("/oembed", OEmbed(newTestNegotiator(new(repoMocks.MockDocumentRepository))))

		req := httptest.NewRequest(http.MethodGet, "/oembed", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		// Errors carry the permissive CORS headers too.
		assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
		var res errorPayload
		json.NewDecoder(resp.Body).Decode(&res)
		assert.Equal(t, "URL_REQUIRED", res.Error.Code)
	})

	t.Run("unmatchable url", func(t *testing.T) {
		app := fiber.New()
		app.Get("/oembed", OEmbed(newTestNegotiator(new(repoMocks.MockDocumentRepository))))

		req := httptest.NewRequest(http.MethodGet, "/oembed?url=https%3A%2F%2Fhost.example%2Fabout", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		var res errorPayload
		json.NewDecoder(resp.Body).Decode(&res)
		assert.Equal(t, "INVALID_URL", res.Error.Code)
	})

	t.Run("unknown id keeps CORS headers on the 404", func(t *testing.T) {
		mRepo := new(repoMocks.MockDocumentRepository)
		mRepo.On("FindByID", mock.Anything, "abc123").Return(nil, sql.ErrNoRows)

		app := fiber.New()
		app.Get("/oembed", OEmbed(newTestNegotiator(mRepo)))

		req := httptest.NewRequest(http.MethodGet, "/oembed?format=xml&url=https%3A%2F%2Fhost.example%2Fview%2Fabc123", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "GET", resp.Header.Get("Access-Control-Allow-Methods"))
	})
}

func TestRouting(t *testing.T) {
	app := fiber.New(fiber.Config{
		ErrorHandler: ErrorHandler(),
	})

	pubSvc := new(serviceMocks.MockPublishingService)
	renderSvc := new(serviceMocks.MockRenderingService)
	cfg := &config.AppConfig{
		PublicBaseURL: testBaseURL,
		OEmbed:        config.OEmbedConfig{CacheAgeSec: 3600},
	}
	RegisterRoutes(app, nil, pubSvc, renderSvc, newTestNegotiator(new(repoMocks.MockDocumentRepository)), cfg)

	t.Run("not found route", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/non-existent", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		var res errorPayload
		json.NewDecoder(resp.Body).Decode(&res)
		assert.Equal(t, "NOT_FOUND", res.Error.Code)
	})

	t.Run("method not allowed", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/files", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
		var res errorPayload
		json.NewDecoder(resp.Body).Decode(&res)
		assert.Equal(t, "METHOD_NOT_ALLOWED", res.Error.Code)
	})
}
