package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"feedloft/app/database"
	"feedloft/app/model"
)

// importScanBatchSize caps how many queue entries one scan picks up.
const importScanBatchSize = 50

type ImportScanTask struct {
	Task
	queueRepo database.QueueStore
	itemRepo  database.ItemStore
	processor QueueProcessorInterface
}

func NewImportScanTask(queueRepo database.QueueStore, itemRepo database.ItemStore, processor QueueProcessorInterface) *ImportScanTask {
	return &ImportScanTask{
		Task:      NewTask(TaskTypeImportScan),
		queueRepo: queueRepo,
		itemRepo:  itemRepo,
		processor: processor,
	}
}

func (t *ImportScanTask) Execute(ctx context.Context) error {

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	queueItems, err := t.queueRepo.GetPendingImports(ctx, importScanBatchSize)
	if err != nil {
		return fmt.Errorf("failed to get pending imports: %w", err)
	}

	successCount := 0
	errorCount := 0

	for _, queueItem := range queueItems {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := t.processor.ProcessQueueItem(ctx, queueItem); err != nil {
			slog.Error("Failed to process queue item", "queue_id", queueItem.ID, "feed_item_id", queueItem.FeedItemID, "error", err)
			errorCount++
		} else {
			successCount++
		}
	}

	// Items waiting on a retry or a scheduled refresh have no queue
	// entry anymore; re-enqueue and process them here so an open fetch
	// gate always drains.
	refetchable, err := t.itemRepo.ListRefetchableItems(ctx, importScanBatchSize)
	if err != nil {
		return fmt.Errorf("failed to list refetchable items: %w", err)
	}

	for _, item := range refetchable {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		queueItem := model.ImportQueueItem{
			ID:          model.NewImportQueueItemID(),
			FeedItemID:  item.ID,
			AccountID:   item.AccountID,
			URL:         item.URL,
			Status:      model.ImportQueueStatusQueued,
			CreatedTime: time.Now().UTC(),
		}
		if err := t.queueRepo.EnqueueImport(ctx, queueItem); err != nil {
			slog.Error("Failed to re-enqueue refetchable item", "feed_item_id", item.ID, "error", err)
			errorCount++
			continue
		}
		if err := t.processor.ProcessQueueItem(ctx, queueItem); err != nil {
			slog.Error("Failed to process refetchable item", "feed_item_id", item.ID, "error", err)
			errorCount++
		} else {
			successCount++
		}
	}

	if successCount == 0 && errorCount == 0 {
		slog.Debug("No pending imports")
		return nil
	}

	slog.Info("Task completed",
		"type", t.GetType(),
		"duration", t.GetDuration(),
		"success", successCount,
		"errors", errorCount)

	return nil
}
