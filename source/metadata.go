package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/JohannesKaufmann/html-to-markdown/plugin"
	readability "github.com/go-shiori/go-readability"
	"golang.org/x/net/html"
)

// defaultMaxContentSize bounds fetched description documents.
const defaultMaxContentSize = 2 * 1024 * 1024 // 2MB

// Metadata is the resolved off-chain content for a proposal.
type Metadata struct {
	// Title from the document, if one could be extracted.
	Title string

	// Body is the description text, as markdown for HTML sources.
	Body string
}

// MetadataFetcher resolves description links to proposal text. Realms
// proposals usually link to a gist, forum post, or JSON document rather than
// storing the full text on-chain.
type MetadataFetcher struct {
	httpClient *http.Client
	converter  *md.Converter
	maxSize    int64
	logger     *slog.Logger
}

// NewMetadataFetcher creates a fetcher with the given timeout.
func NewMetadataFetcher(timeout time.Duration, logger *slog.Logger) *MetadataFetcher {
	if logger == nil {
		logger = slog.Default()
	}
	converter := md.NewConverter("", true, nil)
	converter.Use(plugin.GitHubFlavored())

	return &MetadataFetcher{
		httpClient: &http.Client{Timeout: timeout},
		converter:  converter,
		maxSize:    defaultMaxContentSize,
		logger:     logger,
	}
}

// Fetch retrieves and extracts the document behind a description link.
func (f *MetadataFetcher) Fetch(ctx context.Context, link string) (*Metadata, error) {
	parsed, err := url.Parse(link)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return nil, fmt.Errorf("unsupported description link %q", link)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "text/html,application/json;q=0.9,text/plain;q=0.8,*/*;q=0.5")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", link, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: HTTP %d", link, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > f.maxSize {
		return nil, fmt.Errorf("description document too large (exceeds %d bytes)", f.maxSize)
	}

	contentType := resp.Header.Get("Content-Type")
	switch {
	case strings.Contains(contentType, "application/json"):
		return parseJSONMetadata(body)
	case strings.Contains(contentType, "text/html"):
		return f.parseHTMLMetadata(body, parsed)
	default:
		return &Metadata{Body: strings.TrimSpace(string(body))}, nil
	}
}

// parseJSONMetadata handles the {"title": ..., "description": ...} documents
// some DAOs publish.
func parseJSONMetadata(body []byte) (*Metadata, error) {
	var doc struct {
		Title       string `json:"title"`
		Description string `json:"description"`
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("parse JSON metadata: %w", err)
	}
	return &Metadata{
		Title: doc.Title,
		Body:  doc.Description,
	}, nil
}

// parseHTMLMetadata extracts the readable article content and converts it
// to markdown.
func (f *MetadataFetcher) parseHTMLMetadata(body []byte, pageURL *url.URL) (*Metadata, error) {
	article, err := readability.FromReader(bytes.NewReader(body), pageURL)
	if err != nil {
		// Not every page is an article; convert the raw HTML instead.
		f.logger.Debug("Readability extraction failed, converting full page",
			"url", pageURL.String(), "error", err)
		markdown, convErr := f.converter.ConvertString(string(body))
		if convErr != nil {
			return nil, fmt.Errorf("convert HTML: %w", convErr)
		}
		return &Metadata{
			Title: pageTitle(body),
			Body:  strings.TrimSpace(markdown),
		}, nil
	}

	markdown, err := f.converter.ConvertString(article.Content)
	if err != nil {
		return nil, fmt.Errorf("convert HTML: %w", err)
	}

	return &Metadata{
		Title: strings.TrimSpace(article.Title),
		Body:  strings.TrimSpace(markdown),
	}, nil
}

// pageTitle extracts the <title> element from an HTML document.
func pageTitle(body []byte) string {
	tokenizer := html.NewTokenizer(bytes.NewReader(body))
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return ""
		case html.StartTagToken:
			name, _ := tokenizer.TagName()
			if string(name) == "title" && tokenizer.Next() == html.TextToken {
				return strings.TrimSpace(string(tokenizer.Text()))
			}
		}
	}
}

// Enrich fills a proposal's body from its description link, leaving the
// proposal untouched when the link is absent or cannot be resolved. A dead
// link must not block analysis of the on-chain content.
func (f *MetadataFetcher) Enrich(ctx context.Context, title, link string) (string, string) {
	if link == "" {
		return title, ""
	}

	meta, err := f.Fetch(ctx, link)
	if err != nil {
		f.logger.Warn("Failed to resolve description link",
			"link", link, "error", err)
		return title, ""
	}

	if meta.Title != "" && title == "" {
		title = meta.Title
	}
	return title, meta.Body
}
