package database

import (
	"context"
	"fmt"

	"feedloft/app/model"
)

// QueueRepository handles database operations for the import queue.
type QueueRepository struct {
	db *DB
}

var _ QueueStore = (*QueueRepository)(nil)

func NewQueueRepository(db *DB) *QueueRepository {
	return &QueueRepository{db: db}
}

func (r *QueueRepository) EnqueueImport(ctx context.Context, item model.ImportQueueItem) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO import_queue (id, feed_item_id, account_id, url, status, created_time)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (feed_item_id) DO NOTHING
	`, string(item.ID), string(item.FeedItemID), string(item.AccountID),
		item.URL, string(item.Status), item.CreatedTime)

	if err != nil {
		return fmt.Errorf("failed to enqueue import: %w", err)
	}

	return nil
}

func (r *QueueRepository) GetPendingImports(ctx context.Context, limit int) ([]model.ImportQueueItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, feed_item_id, account_id, url, status, created_time
		FROM import_queue
		WHERE status = $1
		ORDER BY created_time
		LIMIT $2
	`, string(model.ImportQueueStatusQueued), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get pending imports: %w", err)
	}
	defer rows.Close()

	var items []model.ImportQueueItem
	for rows.Next() {
		var item model.ImportQueueItem
		var id, feedItemID, accountID, status string
		err := rows.Scan(&id, &feedItemID, &accountID, &item.URL, &status, &item.CreatedTime)
		if err != nil {
			return nil, fmt.Errorf("failed to scan import queue row: %w", err)
		}
		item.ID = model.ImportQueueItemID(id)
		item.FeedItemID = model.FeedItemID(feedItemID)
		item.AccountID = model.AccountID(accountID)
		item.Status = model.ImportQueueStatus(status)
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating import queue rows: %w", err)
	}

	return items, nil
}

func (r *QueueRepository) DeleteImport(ctx context.Context, id model.ImportQueueItemID) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM import_queue WHERE id = $1`, string(id))
	if err != nil {
		return fmt.Errorf("failed to delete import queue item: %w", err)
	}
	return nil
}

func (r *QueueRepository) ListQueueRefs(ctx context.Context, accountID model.AccountID) ([]Ref, error) {
	return listRefs(ctx, r.db, CollectionImportQueue, `
		SELECT id FROM import_queue WHERE account_id = $1
	`, string(accountID))
}
