package handler

import (
	"context"
	"database/sql"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"quickembed/internal/config"
	"quickembed/internal/model"
	"quickembed/internal/oembed"
	"quickembed/internal/service"
)

// fileResponse is a document plus its derived public view URL.
type fileResponse struct {
	model.Document
	ViewURL string `json:"view_url"`
}

func toFileResponse(doc *model.Document, baseURL string) fileResponse {
	return fileResponse{
		Document: *doc,
		ViewURL:  baseURL + "/view/" + doc.ID,
	}
}

// setFramingHeaders marks a response as embeddable by any origin. The view
// and embed routes exist to be iframed by untrusted third-party pages, so the
// standard clickjacking protection is disabled for these routes only.
func setFramingHeaders(c *fiber.Ctx) {
	c.Set("X-Frame-Options", "ALLOWALL")
	c.Set("Content-Security-Policy", "frame-ancestors *;")
	c.Set("Access-Control-Allow-Origin", "*")
	c.Set("Access-Control-Allow-Methods", "GET")
}

// setCORSHeaders marks a response as readable by any origin, GET only. The
// oEmbed document is a public discovery artifact consumed by third-party
// crawlers; success and error responses both carry these.
func setCORSHeaders(c *fiber.Ctx) {
	c.Set("Access-Control-Allow-Origin", "*")
	c.Set("Access-Control-Allow-Methods", "GET")
}

// HealthCheck reports readiness by pinging the database.
func HealthCheck(db *sql.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			return writeError(c, fiber.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "dependency unavailable")
		}
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "healthy"})
	}
}

// LivenessProbe is a trivial liveness endpoint.
func LivenessProbe() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	}
}

// UploadFile accepts a multipart upload (field name: file) and publishes it.
func UploadFile(svc service.PublishingService, baseURL string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		fh, err := c.FormFile("file")
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "FILE_REQUIRED", "file is required")
		}

		f, err := fh.Open()
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "FILE_OPEN_ERROR", "cannot open uploaded file")
		}
		defer f.Close()

		doc, err := svc.Upload(c.UserContext(), f, fh.Filename, fh.Size)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(toFileResponse(doc, baseURL))
	}
}

// ListFiles returns all published documents, newest first, with view URLs.
func ListFiles(svc service.PublishingService, baseURL string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		docs, err := svc.List(c.UserContext())
		if err != nil {
			return writeServiceError(c, err)
		}
		out := make([]fileResponse, 0, len(docs))
		for i := range docs {
			out = append(out, toFileResponse(&docs[i], baseURL))
		}
		return c.JSON(out)
	}
}

// renameRequest is the body of PUT /files/:id/rename.
type renameRequest struct {
	Filename string `json:"filename"`
}

// RenameFile updates a document's display name. The blob is never touched.
func RenameFile(svc service.PublishingService, baseURL string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req renameRequest
		if err := c.BodyParser(&req); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_BODY", "invalid request body")
		}

		doc, err := svc.Rename(c.UserContext(), c.Params("id"), req.Filename)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(toFileResponse(doc, baseURL))
	}
}

// DeleteFile removes a document and its stored content.
func DeleteFile(svc service.PublishingService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := svc.Delete(c.UserContext(), c.Params("id")); err != nil {
			return writeServiceError(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// ViewFile serves the raw stored content for direct display.
func ViewFile(svc service.RenderingService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		content, _, err := svc.View(c.UserContext(), c.Params("id"))
		if err != nil {
			return writeServiceError(c, err)
		}
		setFramingHeaders(c)
		c.Set(fiber.HeaderContentType, "text/html; charset=utf-8")
		return c.Send(content)
	}
}

// EmbedFile serves the sandbox-wrapped rendering intended for iframes.
// Content is immutable after upload, so responses are cacheable.
func EmbedFile(svc service.RenderingService, cacheAgeSec int) fiber.Handler {
	return func(c *fiber.Ctx) error {
		content, _, err := svc.Embed(c.UserContext(), c.Params("id"))
		if err != nil {
			return writeServiceError(c, err)
		}
		setFramingHeaders(c)
		c.Set(fiber.HeaderContentType, "text/html; charset=utf-8")
		c.Set(fiber.HeaderCacheControl, "public, max-age="+strconv.Itoa(cacheAgeSec))
		return c.Send(content)
	}
}

// OEmbed answers oEmbed discovery requests in JSON (default) or XML.
func OEmbed(neg *oembed.Negotiator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		// Discovery responses, including errors, are world-readable.
		setCORSHeaders(c)

		rawURL := c.Query("url")
		if rawURL == "" {
			return writeError(c, fiber.StatusBadRequest, "URL_REQUIRED", "URL parameter is required")
		}

		doc, err := neg.Resolve(c.UserContext(), rawURL, c.Query("maxwidth"), c.Query("maxheight"))
		if err != nil {
			return writeServiceError(c, err)
		}

		if c.Query("format", "json") == "xml" {
			out, err := doc.XML()
			if err != nil {
				return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
			}
			c.Set(fiber.HeaderContentType, "application/xml")
			return c.Send(out)
		}
		return c.JSON(doc)
	}
}

// RegisterRoutes attaches HTTP routes to the provided Fiber app.
func RegisterRoutes(app *fiber.App, db *sql.DB, pubSvc service.PublishingService, renderSvc service.RenderingService, neg *oembed.Negotiator, cfg *config.AppConfig) {
	app.Get("/health", HealthCheck(db))
	app.Get("/healthz", LivenessProbe())

	app.Post("/upload", UploadFile(pubSvc, cfg.PublicBaseURL))
	app.Get("/files", ListFiles(pubSvc, cfg.PublicBaseURL))
	app.Put("/files/:id/rename", RenameFile(pubSvc, cfg.PublicBaseURL))
	app.Delete("/files/:id", DeleteFile(pubSvc))

	app.Get("/view/:id", ViewFile(renderSvc))
	app.Get("/embed/:id", EmbedFile(renderSvc, cfg.OEmbed.CacheAgeSec))
	app.Get("/oembed", OEmbed(neg))
}
