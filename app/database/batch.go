package database

import (
	"context"
	"fmt"
)

// listRefs collects document refs for one collection with a single-column
// id query.
func listRefs(ctx context.Context, db *DB, collection, query string, args ...interface{}) ([]Ref, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s refs: %w", collection, err)
	}
	defer rows.Close()

	var refs []Ref
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan %s ref: %w", collection, err)
		}
		refs = append(refs, Ref{Collection: collection, ID: id})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating %s refs: %w", collection, err)
	}

	return refs, nil
}

// deleteStatements maps collection names to their delete statements.
// Only collections owned by an account appear here.
var deleteStatements = map[string]string{
	CollectionSubscriptions: `DELETE FROM user_feed_subscriptions WHERE id = $1`,
	CollectionFeedItems:     `DELETE FROM feed_items WHERE id = $1`,
	CollectionImportQueue:   `DELETE FROM import_queue WHERE id = $1`,
	CollectionEventLog:      `DELETE FROM event_log WHERE id = $1`,
	CollectionAccounts:      `DELETE FROM accounts WHERE id = $1`,
}

// BatchDeleter commits one batch of deletions in a single transaction.
type BatchDeleter struct {
	db *DB
}

var _ BatchWriter = (*BatchDeleter)(nil)

func NewBatchDeleter(db *DB) *BatchDeleter {
	return &BatchDeleter{db: db}
}

// DeleteBatch deletes every ref in one transaction. Batches over
// MaxBatchOps are refused outright; chunking is the caller's job.
func (b *BatchDeleter) DeleteBatch(ctx context.Context, refs []Ref) error {
	if len(refs) == 0 {
		return nil
	}
	if len(refs) > MaxBatchOps {
		return fmt.Errorf("batch of %d refs exceeds limit of %d", len(refs), MaxBatchOps)
	}

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin batch transaction: %w", err)
	}
	defer tx.Rollback()

	for _, ref := range refs {
		statement, ok := deleteStatements[ref.Collection]
		if !ok {
			return fmt.Errorf("unknown collection %q in batch", ref.Collection)
		}
		if _, err := tx.ExecContext(ctx, statement, ref.ID); err != nil {
			return fmt.Errorf("failed to delete %s/%s: %w", ref.Collection, ref.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit batch: %w", err)
	}

	return nil
}
