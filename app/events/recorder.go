// Package events records account-visible actions to the append-only
// event log. It is write-only from the pipeline's point of view; undo
// reconstruction happens elsewhere.
package events

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"feedloft/app/database"
	"feedloft/app/model"
)

type Recorder struct {
	store database.EventLogStore
	clock func() time.Time
}

func NewRecorder(store database.EventLogStore) *Recorder {
	return &Recorder{store: store, clock: func() time.Time { return time.Now().UTC() }}
}

// WithClock substitutes the time source, used by tests.
func (r *Recorder) WithClock(clock func() time.Time) *Recorder {
	r.clock = clock
	return r
}

func (r *Recorder) RecordSubscription(ctx context.Context, accountID model.AccountID, subscriptionID model.UserFeedSubscriptionID, action string) error {
	event := model.NewSubscriptionEvent(accountID, subscriptionID, action, r.clock())
	if err := r.store.AppendEvent(ctx, event); err != nil {
		return fmt.Errorf("failed to record subscription event: %w", err)
	}
	slog.Debug("Event recorded", "type", event.EventType, "action", action, "account", accountID)
	return nil
}

func (r *Recorder) RecordFeedItemAction(ctx context.Context, accountID model.AccountID, itemID model.FeedItemID, action string) error {
	event := model.NewFeedItemActionEvent(accountID, itemID, action, r.clock())
	if err := r.store.AppendEvent(ctx, event); err != nil {
		return fmt.Errorf("failed to record feed item event: %w", err)
	}
	slog.Debug("Event recorded", "type", event.EventType, "action", action, "account", accountID)
	return nil
}
