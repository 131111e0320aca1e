package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"feedloft/app/model"
)

// SubscriptionRepository handles database operations for user feed
// subscriptions.
type SubscriptionRepository struct {
	db *DB
}

var _ SubscriptionStore = (*SubscriptionRepository)(nil)

func NewSubscriptionRepository(db *DB) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

const subscriptionColumns = `id, account_id, source_type, url, channel_id, interval_seconds,
	is_active, delivery_schedule, unsubscribed_time, created_time, last_updated_time`

func (r *SubscriptionRepository) scanSubscription(scanner interface {
	Scan(dest ...interface{}) error
}) (model.UserFeedSubscription, error) {
	var row subscriptionRow
	err := scanner.Scan(
		&row.ID, &row.AccountID, &row.SourceType, &row.URL, &row.ChannelID,
		&row.IntervalSeconds, &row.IsActive, &row.DeliverySchedule,
		&row.UnsubscribedTime, &row.CreatedTime, &row.LastUpdatedTime,
	)
	if err != nil {
		return model.UserFeedSubscription{}, err
	}
	return subscriptionFromRow(row)
}

func (r *SubscriptionRepository) GetSubscription(ctx context.Context, id model.UserFeedSubscriptionID) (*model.UserFeedSubscription, error) {
	sub, err := r.scanSubscription(r.db.QueryRowContext(ctx, `
		SELECT `+subscriptionColumns+`
		FROM user_feed_subscriptions
		WHERE id = $1
	`, string(id)))

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}

	return &sub, nil
}

// identityClause matches a subscription's external identity column for
// its source type.
func identityClause(sourceType model.FeedSourceType) (string, error) {
	switch sourceType {
	case model.FeedSourceTypeRSS:
		return "url = $2", nil
	case model.FeedSourceTypeYouTubeChannel:
		return "channel_id = $2", nil
	default:
		return "", fmt.Errorf("source type %q has no shared external identity", sourceType)
	}
}

func (r *SubscriptionRepository) GetSubscriptionByIdentity(ctx context.Context, accountID model.AccountID, sourceType model.FeedSourceType, identity string) (*model.UserFeedSubscription, error) {
	clause, err := identityClause(sourceType)
	if err != nil {
		return nil, err
	}

	sub, err := r.scanSubscription(r.db.QueryRowContext(ctx, `
		SELECT `+subscriptionColumns+`
		FROM user_feed_subscriptions
		WHERE source_type = $1 AND `+clause+` AND account_id = $3
		ORDER BY created_time DESC
		LIMIT 1
	`, string(sourceType), identity, string(accountID)))

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription by identity: %w", err)
	}

	return &sub, nil
}

func (r *SubscriptionRepository) GetActiveSubscriptionsByIdentity(ctx context.Context, sourceType model.FeedSourceType, identity string) ([]model.UserFeedSubscription, error) {
	clause, err := identityClause(sourceType)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+subscriptionColumns+`
		FROM user_feed_subscriptions
		WHERE source_type = $1 AND `+clause+` AND is_active = true
	`, string(sourceType), identity)
	if err != nil {
		return nil, fmt.Errorf("failed to get active subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []model.UserFeedSubscription
	for rows.Next() {
		sub, err := r.scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan subscription row: %w", err)
		}
		subs = append(subs, sub)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating subscription rows: %w", err)
	}

	return subs, nil
}

func (r *SubscriptionRepository) CountActiveSubscribers(ctx context.Context, sourceType model.FeedSourceType, identity string) (int, error) {
	clause, err := identityClause(sourceType)
	if err != nil {
		return 0, err
	}

	var count int
	err = r.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM user_feed_subscriptions
		WHERE source_type = $1 AND `+clause+` AND is_active = true
	`, string(sourceType), identity).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count active subscribers: %w", err)
	}

	return count, nil
}

func (r *SubscriptionRepository) InsertSubscription(ctx context.Context, sub model.UserFeedSubscription) error {
	row, err := subscriptionToRow(sub)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO user_feed_subscriptions (
			id, account_id, source_type, url, channel_id, interval_seconds,
			is_active, delivery_schedule, unsubscribed_time, created_time, last_updated_time
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, row.ID, row.AccountID, row.SourceType, row.URL, row.ChannelID,
		row.IntervalSeconds, row.IsActive, row.DeliverySchedule,
		row.UnsubscribedTime, row.CreatedTime, row.LastUpdatedTime)

	if err != nil {
		return fmt.Errorf("failed to insert subscription: %w", err)
	}

	return nil
}

// SetSubscriptionActive flips the lifecycle flag, keeping the
// unsubscribed_time invariant: set exactly when inactive.
func (r *SubscriptionRepository) SetSubscriptionActive(ctx context.Context, id model.UserFeedSubscriptionID, active bool, now time.Time) error {
	var unsubscribedTime sql.NullTime
	if !active {
		unsubscribedTime = sql.NullTime{Time: now, Valid: true}
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE user_feed_subscriptions
		SET is_active = $2, unsubscribed_time = $3, last_updated_time = $4
		WHERE id = $1
	`, string(id), active, unsubscribedTime, now)
	if err != nil {
		return fmt.Errorf("failed to set subscription active state: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return model.NewNotFoundError("user feed subscription", string(id))
	}

	return nil
}

// GetDueIntervalSubscriptions returns active interval subscriptions whose
// period has elapsed since their last update.
func (r *SubscriptionRepository) GetDueIntervalSubscriptions(ctx context.Context, now time.Time) ([]model.UserFeedSubscription, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+subscriptionColumns+`
		FROM user_feed_subscriptions
		WHERE source_type = $1
		  AND is_active = true
		  AND last_updated_time + make_interval(secs => interval_seconds) <= $2
		LIMIT 100
	`, string(model.FeedSourceTypeInterval), now)
	if err != nil {
		return nil, fmt.Errorf("failed to get due interval subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []model.UserFeedSubscription
	for rows.Next() {
		sub, err := r.scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan subscription row: %w", err)
		}
		subs = append(subs, sub)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating subscription rows: %w", err)
	}

	return subs, nil
}

// TouchSubscription bumps last_updated_time, used to advance an interval
// subscription's next tick.
func (r *SubscriptionRepository) TouchSubscription(ctx context.Context, id model.UserFeedSubscriptionID, now time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE user_feed_subscriptions SET last_updated_time = $2 WHERE id = $1
	`, string(id), now)
	if err != nil {
		return fmt.Errorf("failed to touch subscription: %w", err)
	}
	return nil
}

func (r *SubscriptionRepository) ListSubscriptionRefs(ctx context.Context, accountID model.AccountID) ([]Ref, error) {
	return listRefs(ctx, r.db, CollectionSubscriptions, `
		SELECT id FROM user_feed_subscriptions WHERE account_id = $1
	`, string(accountID))
}
