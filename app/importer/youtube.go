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

	"feedloft/app/model"
)

// TranscriptFetcher retrieves the transcript text for a video id.
type TranscriptFetcher interface {
	Fetch(ctx context.Context, videoID string) (string, error)
}

// HTTPTranscriptFetcher calls a transcript API over HTTP.
type HTTPTranscriptFetcher struct {
	httpClient *http.Client
	baseURL    string
	timeout    time.Duration
}

var _ TranscriptFetcher = (*HTTPTranscriptFetcher)(nil)

func NewHTTPTranscriptFetcher(httpClient *http.Client, baseURL string, timeout time.Duration) *HTTPTranscriptFetcher {
	return &HTTPTranscriptFetcher{httpClient: httpClient, baseURL: baseURL, timeout: timeout}
}

func (f *HTTPTranscriptFetcher) Fetch(ctx context.Context, videoID string) (string, error) {
	if f.baseURL == "" {
		return "", fmt.Errorf("transcript API is not configured")
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	endpoint := fmt.Sprintf("%s/transcript?video_id=%s", strings.TrimRight(f.baseURL, "/"), url.QueryEscape(videoID))
	req, err := http.NewRequestWithContext(timeoutCtx, "GET", endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch transcript: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("transcript API error: %d %s", resp.StatusCode, resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read transcript body: %w", err)
	}

	return string(data), nil
}

// WriteFileFunc stores a side file produced during an import.
type WriteFileFunc func(ctx context.Context, path string, content []byte, contentType string) error

// YouTubeImporter fetches a video transcript, archives it as a side
// file, and stores it as the item content. A transcript that is not
// available yet leaves the item failed and retryable.
type YouTubeImporter struct {
	transcripts TranscriptFetcher
	summarizer  *HierarchicalSummarizer
	writeFile   WriteFileFunc
}

func NewYouTubeImporter(transcripts TranscriptFetcher, summarizer *HierarchicalSummarizer, writeFile WriteFileFunc) *YouTubeImporter {
	return &YouTubeImporter{transcripts: transcripts, summarizer: summarizer, writeFile: writeFile}
}

func (i *YouTubeImporter) Import(ctx context.Context, item model.FeedItem) (*Result, error) {
	videoID, err := ExtractVideoID(item.URL)
	if err != nil {
		return nil, err
	}

	transcript, err := i.transcripts.Fetch(ctx, videoID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch transcript: %w", err)
	}
	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		return nil, fmt.Errorf("transcript for video %s is empty", videoID)
	}

	path := fmt.Sprintf("transcripts/%s.txt", item.ID)
	if err := i.writeFile(ctx, path, []byte(transcript), "text/plain; charset=utf-8"); err != nil {
		return nil, fmt.Errorf("failed to archive transcript: %w", err)
	}

	result := &Result{Update: ItemUpdate{Content: &transcript}}

	if i.summarizer != nil {
		summary, err := i.summarizer.Run(ctx, transcript)
		if err != nil {
			slog.Warn("Summarization failed", "item_id", item.ID, "error", err)
		} else if summary != "" {
			result.Update.Summary = &summary
		}
	}

	slog.Debug("Video transcript imported", "item_id", item.ID, "video_id", videoID, "transcript_length", len(transcript))
	return result, nil
}

// ExtractVideoID pulls the video id out of a watch or short-form url.
func ExtractVideoID(videoURL string) (string, error) {
	parsed, err := url.Parse(videoURL)
	if err != nil {
		return "", fmt.Errorf("failed to parse video url: %w", err)
	}

	switch {
	case strings.HasSuffix(parsed.Host, "youtu.be"):
		if id := strings.Trim(parsed.Path, "/"); id != "" {
			return id, nil
		}
	case strings.Contains(parsed.Host, "youtube.com"):
		if id := parsed.Query().Get("v"); id != "" {
			return id, nil
		}
		if rest, ok := strings.CutPrefix(parsed.Path, "/shorts/"); ok {
			if id := strings.Trim(rest, "/"); id != "" {
				return id, nil
			}
		}
	}

	return "", fmt.Errorf("no video id found in url %q", videoURL)
}
