package database

import (
	"context"
	"fmt"

	"feedloft/app/model"
)

// EventLogRepository appends to and reads from the append-only event log.
// There is no update path; the only delete is account wipeout, which goes
// through the batch writer.
type EventLogRepository struct {
	db *DB
}

var _ EventLogStore = (*EventLogRepository)(nil)

func NewEventLogRepository(db *DB) *EventLogRepository {
	return &EventLogRepository{db: db}
}

func (r *EventLogRepository) AppendEvent(ctx context.Context, item model.EventLogItem) error {
	row, err := eventToRow(item)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO event_log (id, account_id, event_type, action, feed_item_id, subscription_id, created_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, row.ID, row.AccountID, row.EventType, row.Action, row.FeedItemID,
		row.SubscriptionID, row.CreatedTime)

	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}

	return nil
}

func (r *EventLogRepository) ListEvents(ctx context.Context, accountID model.AccountID, limit int) ([]model.EventLogItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, account_id, event_type, action, feed_item_id, subscription_id, created_time
		FROM event_log
		WHERE account_id = $1
		ORDER BY created_time
		LIMIT $2
	`, string(accountID), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	var items []model.EventLogItem
	for rows.Next() {
		var row eventRow
		err := rows.Scan(&row.ID, &row.AccountID, &row.EventType, &row.Action,
			&row.FeedItemID, &row.SubscriptionID, &row.CreatedTime)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event row: %w", err)
		}
		item, err := eventFromRow(row)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating event rows: %w", err)
	}

	return items, nil
}

func (r *EventLogRepository) ListEventRefs(ctx context.Context, accountID model.AccountID) ([]Ref, error) {
	return listRefs(ctx, r.db, CollectionEventLog, `
		SELECT id FROM event_log WHERE account_id = $1
	`, string(accountID))
}
