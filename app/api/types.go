package api

import (
	"context"
	"time"

	"feedloft/app/database"
	"feedloft/app/ingest"
	"feedloft/app/model"
	"feedloft/app/subscription"
)

type SubscriptionManagerInterface interface {
	CreateAccount(ctx context.Context, rawUID, rawEmail string) (*model.Account, error)
	SubscribeAccountToURL(ctx context.Context, accountID model.AccountID, rawURL string) (*model.UserFeedSubscription, error)
	CreateIntervalSubscription(ctx context.Context, accountID model.AccountID, intervalSeconds int) (*model.UserFeedSubscription, error)
	UnsubscribeAccountFromURL(ctx context.Context, accountID model.AccountID, rawURL string) error
	UnsubscribeFromURL(ctx context.Context, rawURL string) error
	HandleSubscriptionChange(ctx context.Context, before, after *model.UserFeedSubscription) error
	WipeoutAccount(ctx context.Context, accountID model.AccountID) error
}

var _ SubscriptionManagerInterface = (*subscription.Manager)(nil)

type IngestorInterface interface {
	IngestPushItems(ctx context.Context, feedURL string, pushItems []ingest.PushItem) (int, error)
	IngestManualSave(ctx context.Context, accountID model.AccountID, rawURL string, source model.FeedSource) (*model.FeedItem, bool, error)
	IngestPocketExport(ctx context.Context, accountID model.AccountID, entries []ingest.PocketEntry) (int, error)
}

var _ IngestorInterface = (*ingest.Service)(nil)

type Handler struct {
	manager    SubscriptionManagerInterface
	ingestor   IngestorInterface
	items      database.ItemStore
	pushSecret string
}

// pushPayload is the push provider's fat-ping delivery format.
type pushPayload struct {
	Status struct {
		Code int    `json:"code"`
		Feed string `json:"feed"`
	} `json:"status"`
	Title   string            `json:"title"`
	Updated int64             `json:"updated"`
	ID      string            `json:"id"`
	Items   []ingest.PushItem `json:"items"`
}

// subscriptionDocument is the wire form of a subscription in the
// subscription-changed webhook.
type subscriptionDocument struct {
	ID               string                  `json:"id"`
	AccountID        string                  `json:"account_id"`
	SourceType       string                  `json:"source_type"`
	URL              string                  `json:"url,omitempty"`
	ChannelID        string                  `json:"channel_id,omitempty"`
	IntervalSeconds  int                     `json:"interval_seconds,omitempty"`
	IsActive         bool                    `json:"is_active"`
	DeliverySchedule *model.DeliverySchedule `json:"delivery_schedule,omitempty"`
	UnsubscribedTime *time.Time              `json:"unsubscribed_time,omitempty"`
}

func (d *subscriptionDocument) toModel() (*model.UserFeedSubscription, error) {
	if d == nil {
		return nil, nil
	}
	sourceType, err := model.ParseFeedSourceType(d.SourceType)
	if err != nil {
		return nil, err
	}
	sub := &model.UserFeedSubscription{
		ID:               model.UserFeedSubscriptionID(d.ID),
		AccountID:        model.AccountID(d.AccountID),
		SourceType:       sourceType,
		URL:              d.URL,
		ChannelID:        d.ChannelID,
		IntervalSeconds:  d.IntervalSeconds,
		IsActive:         d.IsActive,
		UnsubscribedTime: d.UnsubscribedTime,
	}
	if d.DeliverySchedule != nil {
		sub.DeliverySchedule = *d.DeliverySchedule
	}
	return sub, nil
}

type subscriptionChangedPayload struct {
	Before *subscriptionDocument `json:"before"`
	After  *subscriptionDocument `json:"after"`
}
