// Package importer runs the enrichment pipeline: it claims queued feed
// items, dispatches them to a per-type importer, and records the
// terminal state. Exactly one worker wins the claim for any item; the
// losers treat the entry as already handled.
package importer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"feedloft/app/database"
	"feedloft/app/events"
	"feedloft/app/model"
)

// ItemUpdate carries enrichment output back onto the feed item. Nil
// fields are left untouched.
type ItemUpdate struct {
	Title    *string
	Summary  *string
	Content  *string
	ItemType *model.FeedItemType
	XKCD     *model.XKCDPayload
}

// Result is what a per-type importer produces. Refetch schedules the
// item for another pass after completion.
type Result struct {
	Update  ItemUpdate
	Refetch bool
}

// Importer enriches one feed item. Returning an error marks the item
// failed and retryable.
type Importer interface {
	Import(ctx context.Context, item model.FeedItem) (*Result, error)
}

// Service is the pipeline dispatcher.
type Service struct {
	items    database.ItemStore
	queue    database.QueueStore
	recorder *events.Recorder

	article  Importer
	video    Importer
	xkcd     Importer
	interval Importer

	clock func() time.Time
}

func NewService(items database.ItemStore, queue database.QueueStore, recorder *events.Recorder,
	article, video, xkcd, interval Importer) *Service {
	return &Service{
		items:    items,
		queue:    queue,
		recorder: recorder,
		article:  article,
		video:    video,
		xkcd:     xkcd,
		interval: interval,
		clock:    func() time.Time { return time.Now().UTC() },
	}
}

// WithClock substitutes the time source, used by tests.
func (s *Service) WithClock(clock func() time.Time) *Service {
	s.clock = clock
	return s
}

// ProcessQueueItem drives one queue entry to a terminal state. The
// entry is deleted in every terminal path; a failed item stays
// retryable through its own should_fetch gate, not through the queue.
func (s *Service) ProcessQueueItem(ctx context.Context, queueItem model.ImportQueueItem) error {
	item, err := s.items.GetItem(ctx, queueItem.FeedItemID)
	if err != nil {
		return fmt.Errorf("failed to load feed item: %w", err)
	}
	if item == nil {
		slog.Warn("Queue entry references a missing item", "feed_item_id", queueItem.FeedItemID)
		return s.queue.DeleteImport(ctx, queueItem.ID)
	}

	claimed, err := s.items.ClaimItemForImport(ctx, item.ID, s.clock())
	if err != nil {
		return fmt.Errorf("failed to claim feed item: %w", err)
	}
	if !claimed {
		// Another worker got here first, or the item is not fetchable.
		slog.Debug("Feed item already claimed", "feed_item_id", item.ID)
		return s.queue.DeleteImport(ctx, queueItem.ID)
	}

	result, importErr := s.dispatch(ctx, *item)
	if importErr != nil {
		message := fmt.Sprintf("import failed for %s item: %s", item.Type, importErr.Error())
		if err := s.items.FailItemImport(ctx, item.ID, s.clock(), message); err != nil {
			return fmt.Errorf("failed to record import failure: %w", err)
		}
		slog.Error("Import failed", "feed_item_id", item.ID, "type", item.Type, "error", importErr)
		return s.queue.DeleteImport(ctx, queueItem.ID)
	}

	if result != nil && result.Update != (ItemUpdate{}) {
		update := database.ItemContentUpdate{
			FeedItemID: item.ID,
			Title:      result.Update.Title,
			Summary:    result.Update.Summary,
			Content:    result.Update.Content,
			ItemType:   result.Update.ItemType,
			XKCD:       result.Update.XKCD,
		}
		if err := s.items.UpdateItemContent(ctx, update); err != nil {
			return fmt.Errorf("failed to store enrichment results: %w", err)
		}
	}

	refetch := result != nil && result.Refetch
	if err := s.items.CompleteItemImport(ctx, item.ID, s.clock(), refetch); err != nil {
		return fmt.Errorf("failed to complete import: %w", err)
	}

	if err := s.recorder.RecordFeedItemAction(ctx, item.AccountID, item.ID, "item_imported"); err != nil {
		slog.Warn("Failed to record import event", "feed_item_id", item.ID, "error", err)
	}

	slog.Debug("Import completed", "feed_item_id", item.ID, "type", item.Type, "refetch", refetch)
	return s.queue.DeleteImport(ctx, queueItem.ID)
}

func (s *Service) dispatch(ctx context.Context, item model.FeedItem) (*Result, error) {
	if item.Source.Type == model.FeedSourceTypeInterval {
		return s.interval.Import(ctx, item)
	}

	switch item.Type {
	case model.FeedItemTypeArticle, model.FeedItemTypeWebsite, model.FeedItemTypeTweet:
		return s.article.Import(ctx, item)
	case model.FeedItemTypeVideo:
		return s.video.Import(ctx, item)
	case model.FeedItemTypeXKCD:
		return s.xkcd.Import(ctx, item)
	default:
		return nil, fmt.Errorf("no importer for item type %q", item.Type)
	}
}
