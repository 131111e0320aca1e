// Package ingest turns external references to content into feed items in
// the import pipeline: push webhook entries, manual saves, bulk history
// imports, and interval feed ticks all land here.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"feedloft/app/database"
	"feedloft/app/events"
	"feedloft/app/model"
)

// PushItem is one entry of a push-content webhook payload.
type PushItem struct {
	ID           string `json:"id"`
	Published    int64  `json:"published"`
	Updated      int64  `json:"updated"`
	Title        string `json:"title"`
	Summary      string `json:"summary"`
	PermalinkURL string `json:"permalinkUrl"`
}

type Service struct {
	subs     database.SubscriptionStore
	items    database.ItemStore
	queue    database.QueueStore
	recorder *events.Recorder
	clock    func() time.Time
}

func NewService(subs database.SubscriptionStore, items database.ItemStore,
	queue database.QueueStore, recorder *events.Recorder) *Service {
	return &Service{
		subs:     subs,
		items:    items,
		queue:    queue,
		recorder: recorder,
		clock:    func() time.Time { return time.Now().UTC() },
	}
}

// WithClock substitutes the time source, used by tests.
func (s *Service) WithClock(clock func() time.Time) *Service {
	s.clock = clock
	return s
}

// IngestPushItems fans one webhook delivery out to every account with an
// active subscription to the feed url. Replaying the same payload
// creates nothing new.
func (s *Service) IngestPushItems(ctx context.Context, feedURL string, pushItems []PushItem) (int, error) {
	subs, err := s.subs.GetActiveSubscriptionsByIdentity(ctx, model.FeedSourceTypeRSS, feedURL)
	if err != nil {
		return 0, err
	}
	// YouTube channel subscriptions share the channel id as identity, so
	// a delivery on the channel feed url reaches them as well.
	if channelID := model.YouTubeChannelIDFromFeedURL(feedURL); channelID != "" {
		ytSubs, err := s.subs.GetActiveSubscriptionsByIdentity(ctx, model.FeedSourceTypeYouTubeChannel, channelID)
		if err != nil {
			return 0, err
		}
		subs = append(subs, ytSubs...)
	}
	if len(subs) == 0 {
		slog.Debug("Push delivery for url with no active subscribers", "url", feedURL)
		return 0, nil
	}

	created := 0
	for _, sub := range subs {
		for _, pushItem := range pushItems {
			wasCreated, err := s.ingestForSubscription(ctx, sub, pushItem)
			if err != nil {
				return created, err
			}
			if wasCreated {
				created++
			}
		}
	}

	slog.Info("Push delivery ingested", "url", feedURL, "items", len(pushItems), "subscribers", len(subs), "created", created)
	return created, nil
}

func (s *Service) ingestForSubscription(ctx context.Context, sub model.UserFeedSubscription, pushItem PushItem) (bool, error) {
	itemURL := pushItem.PermalinkURL
	if itemURL == "" {
		return false, model.NewValidationError("push item", "permalink url is required")
	}
	externalID := pushItem.ID
	if externalID == "" {
		externalID = itemURL
	}

	var source model.FeedSource
	switch sub.SourceType {
	case model.FeedSourceTypeRSS:
		source = model.NewRSSFeedSource(sub.ID)
	case model.FeedSourceTypeYouTubeChannel:
		source = model.NewYouTubeChannelFeedSource(sub.ID)
	default:
		return false, fmt.Errorf("source type %q cannot receive push deliveries", sub.SourceType)
	}

	now := s.clock()
	item := model.FeedItem{
		ID:          model.NewFeedItemID(),
		AccountID:   sub.AccountID,
		Source:      source,
		Type:        ClassifyURL(itemURL),
		URL:         itemURL,
		Title:       pushItem.Title,
		Summary:     pushItem.Summary,
		ExternalID:  externalID,
		ImportState: model.NewImportState(now),
		CreatedTime: now, LastUpdatedTime: now,
	}

	return s.createItem(ctx, item)
}

// IngestManualSave stores a url saved from the PWA or browser extension.
// Saving the same url twice is a no-op.
func (s *Service) IngestManualSave(ctx context.Context, accountID model.AccountID, rawURL string, source model.FeedSource) (*model.FeedItem, bool, error) {
	itemURL, err := model.ParseURL(rawURL)
	if err != nil {
		return nil, false, err
	}
	if source.Type.HasSubscription() {
		return nil, false, model.NewValidationError("feed source", "manual saves require a manual source type")
	}

	now := s.clock()
	item := model.FeedItem{
		ID:          model.NewFeedItemID(),
		AccountID:   accountID,
		Source:      source,
		Type:        ClassifyURL(itemURL),
		URL:         itemURL,
		ImportState: model.NewImportState(now),
		CreatedTime: now, LastUpdatedTime: now,
	}

	created, err := s.createItem(ctx, item)
	if err != nil {
		return nil, false, err
	}
	if !created {
		// Surface the item the save deduplicated against, not the
		// discarded candidate.
		existing, err := s.items.GetItemByDedupKey(ctx, accountID, item.DedupKey())
		if err != nil {
			return nil, false, err
		}
		if existing == nil {
			return nil, false, fmt.Errorf("item for %s exists but could not be loaded", itemURL)
		}
		return existing, false, nil
	}

	return &item, true, nil
}

// PocketEntry is one row of a Pocket history export.
type PocketEntry struct {
	URL       string `json:"url"`
	Title     string `json:"title"`
	TimeAdded int64  `json:"time_added"`
}

// IngestPocketExport bulk-creates items for a Pocket history export and
// reports how many were new.
func (s *Service) IngestPocketExport(ctx context.Context, accountID model.AccountID, entries []PocketEntry) (int, error) {
	created := 0
	for _, entry := range entries {
		itemURL, err := model.ParseURL(entry.URL)
		if err != nil {
			slog.Warn("Skipping malformed pocket entry", "url", entry.URL, "error", err)
			continue
		}

		now := s.clock()
		item := model.FeedItem{
			ID:          model.NewFeedItemID(),
			AccountID:   accountID,
			Source:      model.NewPocketExportFeedSource(),
			Type:        ClassifyURL(itemURL),
			URL:         itemURL,
			Title:       entry.Title,
			ImportState: model.NewImportState(now),
			CreatedTime: now, LastUpdatedTime: now,
		}

		wasCreated, err := s.createItem(ctx, item)
		if err != nil {
			return created, err
		}
		if wasCreated {
			created++
		}
	}

	slog.Info("Pocket export ingested", "account", accountID, "entries", len(entries), "created", created)
	return created, nil
}

// IngestIntervalTick emits the periodic item for a due interval
// subscription and advances its tick.
func (s *Service) IngestIntervalTick(ctx context.Context, sub model.UserFeedSubscription) error {
	if sub.SourceType != model.FeedSourceTypeInterval {
		return model.NewValidationError("subscription", "interval tick requires an interval subscription")
	}

	source, err := model.NewIntervalFeedSource(sub.ID, sub.IntervalSeconds)
	if err != nil {
		return err
	}

	now := s.clock()
	item := model.FeedItem{
		ID:          model.NewFeedItemID(),
		AccountID:   sub.AccountID,
		Source:      source,
		Type:        model.FeedItemTypeWebsite,
		URL:         fmt.Sprintf("feedloft://interval/%s/%d", sub.ID, now.Unix()),
		Title:       fmt.Sprintf("Interval check-in (%s)", now.Format(time.RFC3339)),
		ExternalID:  fmt.Sprintf("tick-%d", now.Unix()),
		ImportState: model.NewImportState(now),
		CreatedTime: now, LastUpdatedTime: now,
	}

	if _, err := s.createItem(ctx, item); err != nil {
		return err
	}

	return s.subs.TouchSubscription(ctx, sub.ID, now)
}

// createItem writes the item and its import queue entry, logging the
// item-added event only when the item is actually new.
func (s *Service) createItem(ctx context.Context, item model.FeedItem) (bool, error) {
	created, err := s.items.InsertItem(ctx, item)
	if err != nil {
		return false, err
	}
	if !created {
		slog.Debug("Feed item already exists", "account", item.AccountID, "url", item.URL)
		return false, nil
	}

	queueItem := model.ImportQueueItem{
		ID:          model.NewImportQueueItemID(),
		FeedItemID:  item.ID,
		AccountID:   item.AccountID,
		URL:         item.URL,
		Status:      model.ImportQueueStatusQueued,
		CreatedTime: s.clock(),
	}
	if err := s.queue.EnqueueImport(ctx, queueItem); err != nil {
		return true, err
	}

	if err := s.recorder.RecordFeedItemAction(ctx, item.AccountID, item.ID, "item_added"); err != nil {
		slog.Warn("Failed to record item event", "item", item.ID, "error", err)
	}

	return true, nil
}

// ClassifyURL picks the content type an importer will be dispatched on.
func ClassifyURL(itemURL string) model.FeedItemType {
	lowered := strings.ToLower(itemURL)
	switch {
	case strings.Contains(lowered, "youtube.com/watch") || strings.Contains(lowered, "youtu.be/"):
		return model.FeedItemTypeVideo
	case strings.Contains(lowered, "xkcd.com"):
		return model.FeedItemTypeXKCD
	case strings.Contains(lowered, "twitter.com/") || strings.Contains(lowered, "//x.com/"):
		return model.FeedItemTypeTweet
	case strings.HasPrefix(lowered, "feedloft://"):
		return model.FeedItemTypeWebsite
	default:
		return model.FeedItemTypeArticle
	}
}
