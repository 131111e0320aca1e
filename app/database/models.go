package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"feedloft/app/model"
)

// Collection names, shared by repositories and the wipeout batcher.
const (
	CollectionAccounts      = "accounts"
	CollectionSubscriptions = "user_feed_subscriptions"
	CollectionFeedItems     = "feed_items"
	CollectionImportQueue   = "import_queue"
	CollectionEventLog      = "event_log"
)

// subscriptionRow is the flat storage shape of UserFeedSubscription.
// Tagged unions are stored as JSONB columns.
type subscriptionRow struct {
	ID               string
	AccountID        string
	SourceType       string
	URL              string
	ChannelID        string
	IntervalSeconds  int
	IsActive         bool
	DeliverySchedule []byte
	UnsubscribedTime sql.NullTime
	CreatedTime      time.Time
	LastUpdatedTime  time.Time
}

func subscriptionToRow(sub model.UserFeedSubscription) (subscriptionRow, error) {
	if err := sub.Validate(); err != nil {
		return subscriptionRow{}, err
	}
	schedule, err := json.Marshal(sub.DeliverySchedule)
	if err != nil {
		return subscriptionRow{}, fmt.Errorf("failed to encode delivery schedule: %w", err)
	}
	row := subscriptionRow{
		ID:               string(sub.ID),
		AccountID:        string(sub.AccountID),
		SourceType:       string(sub.SourceType),
		URL:              sub.URL,
		ChannelID:        sub.ChannelID,
		IntervalSeconds:  sub.IntervalSeconds,
		IsActive:         sub.IsActive,
		DeliverySchedule: schedule,
		CreatedTime:      sub.CreatedTime,
		LastUpdatedTime:  sub.LastUpdatedTime,
	}
	if sub.UnsubscribedTime != nil {
		row.UnsubscribedTime = sql.NullTime{Time: *sub.UnsubscribedTime, Valid: true}
	}
	return row, nil
}

func subscriptionFromRow(row subscriptionRow) (model.UserFeedSubscription, error) {
	sourceType, err := model.ParseFeedSourceType(row.SourceType)
	if err != nil {
		return model.UserFeedSubscription{}, err
	}
	var schedule model.DeliverySchedule
	if err := json.Unmarshal(row.DeliverySchedule, &schedule); err != nil {
		return model.UserFeedSubscription{}, fmt.Errorf("failed to decode delivery schedule: %w", err)
	}
	sub := model.UserFeedSubscription{
		ID:               model.UserFeedSubscriptionID(row.ID),
		AccountID:        model.AccountID(row.AccountID),
		SourceType:       sourceType,
		URL:              row.URL,
		ChannelID:        row.ChannelID,
		IntervalSeconds:  row.IntervalSeconds,
		IsActive:         row.IsActive,
		DeliverySchedule: schedule,
		CreatedTime:      row.CreatedTime,
		LastUpdatedTime:  row.LastUpdatedTime,
	}
	if row.UnsubscribedTime.Valid {
		t := row.UnsubscribedTime.Time
		sub.UnsubscribedTime = &t
	}
	if err := sub.Validate(); err != nil {
		return model.UserFeedSubscription{}, err
	}
	return sub, nil
}

// itemRow is the flat storage shape of FeedItem.
type itemRow struct {
	ID                       string
	AccountID                string
	FeedSource               []byte
	ItemType                 string
	URL                      string
	Title                    string
	Summary                  string
	Content                  string
	ExternalID               string
	XKCDPayload              []byte
	DedupKey                 string
	ImportStatus             string
	ShouldFetch              bool
	LastImportRequestedTime  time.Time
	ImportStartedTime        sql.NullTime
	LastSuccessfulImportTime sql.NullTime
	ImportFailedTime         sql.NullTime
	ErrorMessage             string
	CreatedTime              time.Time
	LastUpdatedTime          time.Time
}

func itemToRow(item model.FeedItem) (itemRow, error) {
	if err := item.Validate(); err != nil {
		return itemRow{}, err
	}
	source, err := json.Marshal(item.Source)
	if err != nil {
		return itemRow{}, fmt.Errorf("failed to encode feed source: %w", err)
	}
	row := itemRow{
		ID:                      string(item.ID),
		AccountID:               string(item.AccountID),
		FeedSource:              source,
		ItemType:                string(item.Type),
		URL:                     item.URL,
		Title:                   item.Title,
		Summary:                 item.Summary,
		Content:                 item.Content,
		ExternalID:              item.ExternalID,
		DedupKey:                item.DedupKey(),
		ImportStatus:            string(item.ImportState.Status),
		ShouldFetch:             item.ImportState.ShouldFetch,
		LastImportRequestedTime: item.ImportState.LastImportRequestedTime,
		ErrorMessage:            item.ImportState.ErrorMessage,
		CreatedTime:             item.CreatedTime,
		LastUpdatedTime:         item.LastUpdatedTime,
	}
	if item.XKCD != nil {
		payload, err := json.Marshal(item.XKCD)
		if err != nil {
			return itemRow{}, fmt.Errorf("failed to encode xkcd payload: %w", err)
		}
		row.XKCDPayload = payload
	}
	if t := item.ImportState.ImportStartedTime; t != nil {
		row.ImportStartedTime = sql.NullTime{Time: *t, Valid: true}
	}
	if t := item.ImportState.LastSuccessfulImportTime; t != nil {
		row.LastSuccessfulImportTime = sql.NullTime{Time: *t, Valid: true}
	}
	if t := item.ImportState.ImportFailedTime; t != nil {
		row.ImportFailedTime = sql.NullTime{Time: *t, Valid: true}
	}
	return row, nil
}

func itemFromRow(row itemRow) (model.FeedItem, error) {
	var source model.FeedSource
	if err := json.Unmarshal(row.FeedSource, &source); err != nil {
		return model.FeedItem{}, fmt.Errorf("failed to decode feed source: %w", err)
	}
	itemType, err := model.ParseFeedItemType(row.ItemType)
	if err != nil {
		return model.FeedItem{}, err
	}
	status, err := model.ParseImportStatus(row.ImportStatus)
	if err != nil {
		return model.FeedItem{}, err
	}
	item := model.FeedItem{
		ID:         model.FeedItemID(row.ID),
		AccountID:  model.AccountID(row.AccountID),
		Source:     source,
		Type:       itemType,
		URL:        row.URL,
		Title:      row.Title,
		Summary:    row.Summary,
		Content:    row.Content,
		ExternalID: row.ExternalID,
		ImportState: model.ImportState{
			Status:                  status,
			ShouldFetch:             row.ShouldFetch,
			LastImportRequestedTime: row.LastImportRequestedTime,
			ErrorMessage:            row.ErrorMessage,
		},
		CreatedTime:     row.CreatedTime,
		LastUpdatedTime: row.LastUpdatedTime,
	}
	if len(row.XKCDPayload) > 0 {
		var payload model.XKCDPayload
		if err := json.Unmarshal(row.XKCDPayload, &payload); err != nil {
			return model.FeedItem{}, fmt.Errorf("failed to decode xkcd payload: %w", err)
		}
		item.XKCD = &payload
	}
	if row.ImportStartedTime.Valid {
		t := row.ImportStartedTime.Time
		item.ImportState.ImportStartedTime = &t
	}
	if row.LastSuccessfulImportTime.Valid {
		t := row.LastSuccessfulImportTime.Time
		item.ImportState.LastSuccessfulImportTime = &t
	}
	if row.ImportFailedTime.Valid {
		t := row.ImportFailedTime.Time
		item.ImportState.ImportFailedTime = &t
	}
	return item, nil
}

func encodeXKCDPayload(payload *model.XKCDPayload) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode xkcd payload: %w", err)
	}
	return data, nil
}

// eventRow is the flat storage shape of EventLogItem.
type eventRow struct {
	ID             string
	AccountID      string
	EventType      string
	Action         string
	FeedItemID     sql.NullString
	SubscriptionID sql.NullString
	CreatedTime    time.Time
}

func eventToRow(item model.EventLogItem) (eventRow, error) {
	if err := item.Validate(); err != nil {
		return eventRow{}, err
	}
	row := eventRow{
		ID:          string(item.ID),
		AccountID:   string(item.AccountID),
		EventType:   string(item.EventType),
		Action:      item.Action,
		CreatedTime: item.CreatedTime,
	}
	if item.FeedItemID != nil {
		row.FeedItemID = sql.NullString{String: string(*item.FeedItemID), Valid: true}
	}
	if item.SubscriptionID != nil {
		row.SubscriptionID = sql.NullString{String: string(*item.SubscriptionID), Valid: true}
	}
	return row, nil
}

func eventFromRow(row eventRow) (model.EventLogItem, error) {
	eventType, err := model.ParseEventType(row.EventType)
	if err != nil {
		return model.EventLogItem{}, err
	}
	item := model.EventLogItem{
		ID:          model.EventLogItemID(row.ID),
		AccountID:   model.AccountID(row.AccountID),
		EventType:   eventType,
		Action:      row.Action,
		CreatedTime: row.CreatedTime,
	}
	if row.FeedItemID.Valid {
		id := model.FeedItemID(row.FeedItemID.String)
		item.FeedItemID = &id
	}
	if row.SubscriptionID.Valid {
		id := model.UserFeedSubscriptionID(row.SubscriptionID.String)
		item.SubscriptionID = &id
	}
	if err := item.Validate(); err != nil {
		return model.EventLogItem{}, err
	}
	return item, nil
}
