package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"feedloft/app/model"
)

// ItemRepository handles database operations for feed items, including
// the import state machine's persisted transitions.
type ItemRepository struct {
	db *DB
}

var _ ItemStore = (*ItemRepository)(nil)

func NewItemRepository(db *DB) *ItemRepository {
	return &ItemRepository{db: db}
}

const itemColumns = `id, account_id, feed_source, item_type, url, title, summary, content,
	external_id, xkcd_payload, import_status, should_fetch,
	last_import_requested_time, import_started_time, last_successful_import_time,
	import_failed_time, error_message, created_time, last_updated_time`

func (r *ItemRepository) scanItem(scanner interface {
	Scan(dest ...interface{}) error
}) (model.FeedItem, error) {
	var row itemRow
	var xkcd sql.NullString
	err := scanner.Scan(
		&row.ID, &row.AccountID, &row.FeedSource, &row.ItemType, &row.URL,
		&row.Title, &row.Summary, &row.Content, &row.ExternalID, &xkcd,
		&row.ImportStatus, &row.ShouldFetch, &row.LastImportRequestedTime,
		&row.ImportStartedTime, &row.LastSuccessfulImportTime,
		&row.ImportFailedTime, &row.ErrorMessage, &row.CreatedTime,
		&row.LastUpdatedTime,
	)
	if err != nil {
		return model.FeedItem{}, err
	}
	if xkcd.Valid {
		row.XKCDPayload = []byte(xkcd.String)
	}
	return itemFromRow(row)
}

// InsertItem writes the item unless one already exists for its dedup key.
// A duplicate push of the same external item is a no-op.
func (r *ItemRepository) InsertItem(ctx context.Context, item model.FeedItem) (bool, error) {
	row, err := itemToRow(item)
	if err != nil {
		return false, err
	}

	var xkcd interface{}
	if len(row.XKCDPayload) > 0 {
		xkcd = row.XKCDPayload
	}

	result, err := r.db.ExecContext(ctx, `
		INSERT INTO feed_items (
			id, account_id, feed_source, item_type, url, title, summary, content,
			external_id, xkcd_payload, dedup_key, import_status, should_fetch,
			last_import_requested_time, import_started_time,
			last_successful_import_time, import_failed_time, error_message,
			created_time, last_updated_time
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
		ON CONFLICT (account_id, dedup_key) DO NOTHING
	`, row.ID, row.AccountID, row.FeedSource, row.ItemType, row.URL, row.Title,
		row.Summary, row.Content, row.ExternalID, xkcd, row.DedupKey,
		row.ImportStatus, row.ShouldFetch, row.LastImportRequestedTime,
		row.ImportStartedTime, row.LastSuccessfulImportTime,
		row.ImportFailedTime, row.ErrorMessage, row.CreatedTime,
		row.LastUpdatedTime)

	if err != nil {
		return false, fmt.Errorf("failed to insert feed item: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}

	return affected > 0, nil
}

func (r *ItemRepository) GetItem(ctx context.Context, id model.FeedItemID) (*model.FeedItem, error) {
	item, err := r.scanItem(r.db.QueryRowContext(ctx, `
		SELECT `+itemColumns+` FROM feed_items WHERE id = $1
	`, string(id)))

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get feed item: %w", err)
	}

	return &item, nil
}

// GetItemByDedupKey resolves the item an insert deduplicated against.
func (r *ItemRepository) GetItemByDedupKey(ctx context.Context, accountID model.AccountID, dedupKey string) (*model.FeedItem, error) {
	item, err := r.scanItem(r.db.QueryRowContext(ctx, `
		SELECT `+itemColumns+` FROM feed_items
		WHERE account_id = $1 AND dedup_key = $2
	`, string(accountID), dedupKey))

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get feed item by dedup key: %w", err)
	}

	return &item, nil
}

// ListRefetchableItems picks up items waiting on a retry or a scheduled
// refresh once their import queue entry is gone.
func (r *ItemRepository) ListRefetchableItems(ctx context.Context, limit int) ([]model.FeedItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+itemColumns+` FROM feed_items
		WHERE should_fetch = true AND import_status != $1
		ORDER BY last_import_requested_time
		LIMIT $2
	`, string(model.ImportStatusProcessing), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list refetchable items: %w", err)
	}
	defer rows.Close()

	var items []model.FeedItem
	for rows.Next() {
		item, err := r.scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan feed item row: %w", err)
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating feed item rows: %w", err)
	}

	return items, nil
}

// ClaimItemForImport performs the exclusive claim as one conditional
// update against the persisted should_fetch gate. Two concurrent callers
// cannot both observe rows affected.
func (r *ItemRepository) ClaimItemForImport(ctx context.Context, id model.FeedItemID, now time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE feed_items
		SET import_status = $2, should_fetch = false, import_started_time = $3,
		    import_failed_time = NULL, error_message = '', last_updated_time = $3
		WHERE id = $1 AND should_fetch = true
	`, string(id), string(model.ImportStatusProcessing), now)
	if err != nil {
		return false, fmt.Errorf("failed to claim feed item: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}

	return affected > 0, nil
}

func (r *ItemRepository) CompleteItemImport(ctx context.Context, id model.FeedItemID, now time.Time, refetch bool) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE feed_items
		SET import_status = $2, should_fetch = $3,
		    last_successful_import_time = $4, import_failed_time = NULL,
		    error_message = '', last_updated_time = $4
		WHERE id = $1 AND import_status = $5
	`, string(id), string(model.ImportStatusCompleted), refetch, now,
		string(model.ImportStatusProcessing))
	if err != nil {
		return fmt.Errorf("failed to complete feed item import: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("feed item %s is not processing", id)
	}

	return nil
}

// FailItemImport records the error and re-opens the should_fetch gate.
// The prior last_successful_import_time is left untouched.
func (r *ItemRepository) FailItemImport(ctx context.Context, id model.FeedItemID, now time.Time, message string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE feed_items
		SET import_status = $2, should_fetch = true, import_failed_time = $3,
		    error_message = $4, last_updated_time = $3
		WHERE id = $1 AND import_status = $5
	`, string(id), string(model.ImportStatusFailed), now, message,
		string(model.ImportStatusProcessing))
	if err != nil {
		return fmt.Errorf("failed to fail feed item import: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("feed item %s is not processing", id)
	}

	return nil
}

// RequestItemImport re-opens the should_fetch gate for a manual retry.
// last_import_requested_time only ever advances.
func (r *ItemRepository) RequestItemImport(ctx context.Context, id model.FeedItemID, now time.Time) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE feed_items
		SET import_status = $4,
		    should_fetch = true,
		    last_import_requested_time = GREATEST(last_import_requested_time, $2),
		    last_updated_time = $2
		WHERE id = $1 AND import_status != $3
	`, string(id), now, string(model.ImportStatusProcessing), string(model.ImportStatusNew))
	if err != nil {
		return fmt.Errorf("failed to request feed item import: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return model.NewNotFoundError("feed item", string(id))
	}

	return nil
}

func (r *ItemRepository) UpdateItemContent(ctx context.Context, update ItemContentUpdate) error {
	set := "last_updated_time = NOW()"
	args := []interface{}{string(update.FeedItemID)}
	next := 2

	appendSet := func(column string, value interface{}) {
		set += fmt.Sprintf(", %s = $%d", column, next)
		args = append(args, value)
		next++
	}

	if update.Title != nil {
		appendSet("title", *update.Title)
	}
	if update.Summary != nil {
		appendSet("summary", *update.Summary)
	}
	if update.Content != nil {
		appendSet("content", *update.Content)
	}
	if update.ItemType != nil {
		appendSet("item_type", string(*update.ItemType))
	}
	if update.XKCD != nil {
		payload, err := encodeXKCDPayload(update.XKCD)
		if err != nil {
			return err
		}
		appendSet("xkcd_payload", payload)
	}

	result, err := r.db.ExecContext(ctx,
		"UPDATE feed_items SET "+set+" WHERE id = $1", args...)
	if err != nil {
		return fmt.Errorf("failed to update feed item content: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return model.NewNotFoundError("feed item", string(update.FeedItemID))
	}

	return nil
}

func (r *ItemRepository) CountItemsByStatus(ctx context.Context) (map[model.ImportStatus]int, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT import_status, COUNT(*) FROM feed_items GROUP BY import_status
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to count items by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[model.ImportStatus]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan status count: %w", err)
		}
		parsed, err := model.ParseImportStatus(status)
		if err != nil {
			return nil, err
		}
		counts[parsed] = count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating status counts: %w", err)
	}

	return counts, nil
}

func (r *ItemRepository) ListItemRefs(ctx context.Context, accountID model.AccountID) ([]Ref, error) {
	return listRefs(ctx, r.db, CollectionFeedItems, `
		SELECT id FROM feed_items WHERE account_id = $1
	`, string(accountID))
}
