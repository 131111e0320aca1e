package model

import (
	"fmt"
	"time"
)

type EventType string

const (
	EventTypeFeedItemAction       EventType = "feed_item_action"
	EventTypeUserFeedSubscription EventType = "user_feed_subscription"
)

func ParseEventType(raw string) (EventType, error) {
	switch EventType(raw) {
	case EventTypeFeedItemAction:
		return EventTypeFeedItemAction, nil
	case EventTypeUserFeedSubscription:
		return EventTypeUserFeedSubscription, nil
	default:
		return "", NewValidationError("event type", fmt.Sprintf("unknown value %q", raw))
	}
}

// EventLogItem is one append-only record of an account-visible action.
// FeedItemID is set for feed_item_action events, SubscriptionID for
// user_feed_subscription events.
type EventLogItem struct {
	ID             EventLogItemID
	AccountID      AccountID
	EventType      EventType
	Action         string
	FeedItemID     *FeedItemID
	SubscriptionID *UserFeedSubscriptionID
	CreatedTime    time.Time
}

func NewFeedItemActionEvent(accountID AccountID, itemID FeedItemID, action string, now time.Time) EventLogItem {
	return EventLogItem{
		ID:          NewEventLogItemID(),
		AccountID:   accountID,
		EventType:   EventTypeFeedItemAction,
		Action:      action,
		FeedItemID:  &itemID,
		CreatedTime: now,
	}
}

func NewSubscriptionEvent(accountID AccountID, subscriptionID UserFeedSubscriptionID, action string, now time.Time) EventLogItem {
	return EventLogItem{
		ID:             NewEventLogItemID(),
		AccountID:      accountID,
		EventType:      EventTypeUserFeedSubscription,
		Action:         action,
		SubscriptionID: &subscriptionID,
		CreatedTime:    now,
	}
}

func (e *EventLogItem) Validate() error {
	if e.ID == "" {
		return NewValidationError("event log item", "id is required")
	}
	if e.AccountID == "" {
		return NewValidationError("event log item", "account id is required")
	}
	if e.Action == "" {
		return NewValidationError("event log item", "action is required")
	}
	switch e.EventType {
	case EventTypeFeedItemAction:
		if e.FeedItemID == nil {
			return NewValidationError("event log item", "feed item action events must carry a feed item id")
		}
	case EventTypeUserFeedSubscription:
		if e.SubscriptionID == nil {
			return NewValidationError("event log item", "subscription events must carry a subscription id")
		}
	default:
		return NewValidationError("event log item", fmt.Sprintf("unknown event type %q", e.EventType))
	}
	return nil
}
