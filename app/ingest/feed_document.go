package ingest

import (
	"bytes"
	"fmt"

	"github.com/mmcdole/gofeed"
)

// ParsePushDocument normalizes a raw RSS/Atom document, the form hubs
// deliver when they fat-ping the feed itself instead of a JSON payload.
// The returned feed url comes from the document's self link when it
// carries one.
func ParsePushDocument(data []byte) (string, []PushItem, error) {
	parsed, err := gofeed.NewParser().Parse(bytes.NewReader(data))
	if err != nil {
		return "", nil, fmt.Errorf("failed to parse feed document: %w", err)
	}

	feedURL := parsed.FeedLink

	items := make([]PushItem, 0, len(parsed.Items))
	for _, entry := range parsed.Items {
		pushItem := PushItem{
			ID:           entry.GUID,
			Title:        entry.Title,
			Summary:      entry.Description,
			PermalinkURL: entry.Link,
		}
		if entry.PublishedParsed != nil {
			pushItem.Published = entry.PublishedParsed.Unix()
		}
		if entry.UpdatedParsed != nil {
			pushItem.Updated = entry.UpdatedParsed.Unix()
		}
		items = append(items, pushItem)
	}

	return feedURL, items, nil
}
