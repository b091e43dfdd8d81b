// Package oembed implements the provider side of the oEmbed discovery
// protocol (https://oembed.com): given a public view or embed URL it emits a
// JSON or XML document describing an embeddable iframe for that content.
package oembed

import (
	"context"
	"database/sql"
	"encoding/xml"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"quickembed/internal/config"
	"quickembed/internal/repository"
	"quickembed/internal/service"
)

// ErrInvalidURL is returned when the url parameter does not contain a view or
// embed path with a recognizable document ID.
var ErrInvalidURL = errors.New("invalid URL format")

// routePattern accepts both /view/{id} and /embed/{id} paths. IDs are UUIDs,
// so alphanumerics and hyphens cover the full alphabet.
var routePattern = regexp.MustCompile(`/(view|embed)/([a-zA-Z0-9-]+)`)

// sandboxTokens is the restrictive-but-functional allowance set for the
// embedded iframe. Anything not listed stays blocked.
const sandboxTokens = "allow-scripts allow-same-origin allow-popups allow-forms allow-modals allow-downloads"

// Document is a single oEmbed response. Width and Height are the effective
// (clamped) dimensions, mirrored inside the HTML snippet.
type Document struct {
	Version      string `json:"version"`
	Type         string `json:"type"`
	ProviderName string `json:"provider_name"`
	ProviderURL  string `json:"provider_url"`
	Title        string `json:"title"`
	AuthorName   string `json:"author_name"`
	AuthorURL    string `json:"author_url"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	HTML         string `json:"html"`
	CacheAge     int    `json:"cache_age,omitempty"`
}

// xmlDocument mirrors Document for XML output. The html element is wrapped in
// CDATA so the iframe markup survives without entity escaping.
type xmlDocument struct {
	XMLName      xml.Name `xml:"oembed"`
	Version      string   `xml:"version"`
	Type         string   `xml:"type"`
	ProviderName string   `xml:"provider_name"`
	ProviderURL  string   `xml:"provider_url"`
	Title        string   `xml:"title"`
	AuthorName   string   `xml:"author_name"`
	AuthorURL    string   `xml:"author_url"`
	Width        int      `xml:"width"`
	Height       int      `xml:"height"`
	HTML         cdata    `xml:"html"`
	CacheAge     int      `xml:"cache_age,omitempty"`
}

type cdata struct {
	Value string `xml:",cdata"`
}

// XML serializes the document as a fixed-schema oEmbed XML response.
func (d *Document) XML() ([]byte, error) {
	out, err := xml.MarshalIndent(&xmlDocument{
		Version:      d.Version,
		Type:         d.Type,
		ProviderName: d.ProviderName,
		ProviderURL:  d.ProviderURL,
		Title:        d.Title,
		AuthorName:   d.AuthorName,
		AuthorURL:    d.AuthorURL,
		Width:        d.Width,
		Height:       d.Height,
		HTML:         cdata{Value: d.HTML},
		CacheAge:     d.CacheAge,
	}, "", "  ")
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), out...), nil
}

// Negotiator resolves public URLs into oEmbed documents. It is stateless;
// every call is computed from the current document record.
type Negotiator struct {
	cfg     config.OEmbedConfig
	baseURL string
	repo    repository.DocumentRepository
}

// NewNegotiator constructs a Negotiator. baseURL is the public origin used
// for provider/author URLs and as the prefix of the embed URL.
func NewNegotiator(cfg config.OEmbedConfig, baseURL string, repo repository.DocumentRepository) *Negotiator {
	return &Negotiator{cfg: cfg, baseURL: strings.TrimRight(baseURL, "/"), repo: repo}
}

// Resolve translates a view/embed URL into an oEmbed document. maxWidth and
// maxHeight are the raw query values; non-numeric or absent values fall back
// to the configured defaults, numeric values are clamped to the configured
// maximums. The iframe always targets the embed route, never view, so
// consumers get the sandboxed rendering.
func (n *Negotiator) Resolve(ctx context.Context, rawURL, maxWidth, maxHeight string) (*Document, error) {
	match := routePattern.FindStringSubmatch(rawURL)
	if match == nil {
		return nil, ErrInvalidURL
	}
	id := match[2]

	doc, err := n.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, service.ErrNotFound
		}
		return nil, fmt.Errorf("%w: find record: %v", service.ErrStoreUnavailable, err)
	}

	width := clampDimension(maxWidth, n.cfg.DefaultWidth, n.cfg.MaxWidth)
	height := clampDimension(maxHeight, n.cfg.DefaultHeight, n.cfg.MaxHeight)

	embedURL := n.baseURL + "/embed/" + id
	iframe := fmt.Sprintf(
		`<iframe src="%s" width="%d" height="%d" frameborder="0" sandbox="%s" loading="lazy" allowfullscreen style="width: 100%%;"></iframe>`,
		embedURL, width, height, sandboxTokens,
	)

	return &Document{
		Version:      "1.0",
		Type:         "rich",
		ProviderName: n.cfg.ProviderName,
		ProviderURL:  n.baseURL,
		Title:        doc.Filename,
		AuthorName:   n.cfg.AuthorName,
		AuthorURL:    n.baseURL,
		Width:        width,
		Height:       height,
		HTML:         iframe,
		CacheAge:     n.cfg.CacheAgeSec,
	}, nil
}

// clampDimension parses a requested dimension and bounds it. Absent,
// non-numeric, or non-positive values yield the default.
func clampDimension(raw string, def, max int) int {
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return def
	}
	if v > max {
		return max
	}
	return v
}
