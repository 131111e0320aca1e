package importer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/go-shiori/go-readability"

	"feedloft/app/model"
)

// maxArticleBytes bounds how much of a response body is read.
const maxArticleBytes = 4 << 20

// ArticleImporter fetches a page, extracts its main content, and stores
// it as markdown with an optional generated summary. It serves article,
// website, and tweet items.
type ArticleImporter struct {
	httpClient   *http.Client
	sanitizer    *Sanitizer
	summarizer   *HierarchicalSummarizer
	userAgent    string
	fetchTimeout time.Duration
}

func NewArticleImporter(httpClient *http.Client, sanitizer *Sanitizer, summarizer *HierarchicalSummarizer, userAgent string, fetchTimeout time.Duration) *ArticleImporter {
	return &ArticleImporter{
		httpClient:   httpClient,
		sanitizer:    sanitizer,
		summarizer:   summarizer,
		userAgent:    userAgent,
		fetchTimeout: fetchTimeout,
	}
}

func (i *ArticleImporter) Import(ctx context.Context, item model.FeedItem) (*Result, error) {
	data, err := i.fetchPage(ctx, item.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch page: %w", err)
	}

	pageURL, err := url.Parse(item.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse item url: %w", err)
	}

	article, err := readability.FromReader(strings.NewReader(string(data)), pageURL)
	if err != nil {
		return nil, fmt.Errorf("failed to extract content: %w", err)
	}
	if article.Content == "" {
		return nil, fmt.Errorf("no content extracted from page")
	}

	sanitized := i.sanitizer.Run(article.Content)
	markdown, err := htmltomarkdown.ConvertString(sanitized)
	if err != nil {
		return nil, fmt.Errorf("failed to convert content to markdown: %w", err)
	}
	markdown = strings.TrimSpace(markdown)

	result := &Result{
		Update: ItemUpdate{Content: &markdown},
		// Plain websites are expected to change between visits.
		Refetch: item.Type == model.FeedItemTypeWebsite,
	}
	if item.Title == "" && article.Title != "" {
		title := article.Title
		result.Update.Title = &title
	}

	if i.summarizer != nil {
		summary, err := i.summarizer.Run(ctx, markdown)
		if err != nil {
			// A missing summary does not fail the import.
			slog.Warn("Summarization failed", "item_id", item.ID, "error", err)
		} else if summary != "" {
			result.Update.Summary = &summary
		}
	}

	slog.Debug("Article content imported", "item_id", item.ID, "url", item.URL, "content_length", len(markdown))
	return result, nil
}

func (i *ArticleImporter) fetchPage(ctx context.Context, pageURL string) ([]byte, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, i.fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(timeoutCtx, "GET", pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", i.userAgent)

	resp, err := i.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP error: %d %s", resp.StatusCode, resp.Status)
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.Contains(strings.ToLower(contentType), "text/html") {
		return nil, fmt.Errorf("content type is not HTML: %s", contentType)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxArticleBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return data, nil
}
