package importer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"feedloft/app/model"
)

const xkcdBaseURL = "https://xkcd.com"

// XKCDImporter fetches comic metadata from the xkcd JSON endpoint.
type XKCDImporter struct {
	httpClient *http.Client
	baseURL    string
	timeout    time.Duration
}

func NewXKCDImporter(httpClient *http.Client, timeout time.Duration) *XKCDImporter {
	return &XKCDImporter{httpClient: httpClient, baseURL: xkcdBaseURL, timeout: timeout}
}

// WithBaseURL points the importer at a different host, used by tests.
func (i *XKCDImporter) WithBaseURL(baseURL string) *XKCDImporter {
	i.baseURL = strings.TrimRight(baseURL, "/")
	return i
}

type xkcdInfo struct {
	Num        int    `json:"num"`
	Title      string `json:"title"`
	SafeTitle  string `json:"safe_title"`
	Img        string `json:"img"`
	Alt        string `json:"alt"`
	Transcript string `json:"transcript"`
}

func (i *XKCDImporter) Import(ctx context.Context, item model.FeedItem) (*Result, error) {
	number, err := ExtractComicNumber(item.URL)
	if err != nil {
		return nil, err
	}

	info, err := i.fetchComicInfo(ctx, number)
	if err != nil {
		return nil, err
	}

	payload := &model.XKCDPayload{
		Number:   info.Num,
		ImageURL: info.Img,
		AltText:  info.Alt,
	}
	if err := payload.Validate(); err != nil {
		return nil, fmt.Errorf("comic %d metadata is invalid: %w", number, err)
	}

	title := info.SafeTitle
	if title == "" {
		title = info.Title
	}
	itemType := model.FeedItemTypeXKCD

	result := &Result{
		Update: ItemUpdate{
			Title:    &title,
			ItemType: &itemType,
			XKCD:     payload,
		},
	}
	if info.Transcript != "" {
		transcript := info.Transcript
		result.Update.Content = &transcript
	}

	slog.Debug("Comic metadata imported", "item_id", item.ID, "comic", info.Num)
	return result, nil
}

func (i *XKCDImporter) fetchComicInfo(ctx context.Context, number int) (*xkcdInfo, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()

	endpoint := fmt.Sprintf("%s/%d/info.0.json", i.baseURL, number)
	req, err := http.NewRequestWithContext(timeoutCtx, "GET", endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := i.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch comic info: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("comic info HTTP error: %d %s", resp.StatusCode, resp.Status)
	}

	var info xkcdInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("failed to decode comic info: %w", err)
	}

	return &info, nil
}

// ExtractComicNumber reads the comic number out of an xkcd permalink
// such as https://xkcd.com/927/.
func ExtractComicNumber(comicURL string) (int, error) {
	parsed, err := url.Parse(comicURL)
	if err != nil {
		return 0, fmt.Errorf("failed to parse comic url: %w", err)
	}

	for _, segment := range strings.Split(parsed.Path, "/") {
		if segment == "" {
			continue
		}
		number, err := strconv.Atoi(segment)
		if err == nil && number > 0 {
			return number, nil
		}
	}

	return 0, fmt.Errorf("no comic number found in url %q", comicURL)
}
