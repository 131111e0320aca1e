package model

import (
	"encoding/json"
	"fmt"
)

// FeedSourceType is the closed set of places content can come from.
type FeedSourceType string

const (
	FeedSourceTypeRSS            FeedSourceType = "rss"
	FeedSourceTypeYouTubeChannel FeedSourceType = "youtube_channel"
	FeedSourceTypeInterval       FeedSourceType = "interval"
	FeedSourceTypePWA            FeedSourceType = "pwa"
	FeedSourceTypeExtension      FeedSourceType = "extension"
	FeedSourceTypePocketExport   FeedSourceType = "pocket_export"
)

func ParseFeedSourceType(raw string) (FeedSourceType, error) {
	switch FeedSourceType(raw) {
	case FeedSourceTypeRSS:
		return FeedSourceTypeRSS, nil
	case FeedSourceTypeYouTubeChannel:
		return FeedSourceTypeYouTubeChannel, nil
	case FeedSourceTypeInterval:
		return FeedSourceTypeInterval, nil
	case FeedSourceTypePWA:
		return FeedSourceTypePWA, nil
	case FeedSourceTypeExtension:
		return FeedSourceTypeExtension, nil
	case FeedSourceTypePocketExport:
		return FeedSourceTypePocketExport, nil
	default:
		return "", NewValidationError("feed source type", fmt.Sprintf("unknown value %q", raw))
	}
}

// HasSubscription reports whether the source type is backed by a
// UserFeedSubscription. Manual and batch sources are not.
func (t FeedSourceType) HasSubscription() bool {
	switch t {
	case FeedSourceTypeRSS, FeedSourceTypeYouTubeChannel, FeedSourceTypeInterval:
		return true
	case FeedSourceTypePWA, FeedSourceTypeExtension, FeedSourceTypePocketExport:
		return false
	default:
		return false
	}
}

// PushCapable reports whether the source type delivers through the
// external push provider. Interval feeds tick locally.
func (t FeedSourceType) PushCapable() bool {
	switch t {
	case FeedSourceTypeRSS, FeedSourceTypeYouTubeChannel:
		return true
	default:
		return false
	}
}

// FeedSource identifies where a feed item came from. Immutable once
// created. Subscription-backed variants carry the subscription id;
// the interval variant also carries its period.
type FeedSource struct {
	Type                   FeedSourceType
	UserFeedSubscriptionID UserFeedSubscriptionID
	IntervalSeconds        int
}

func NewRSSFeedSource(subscriptionID UserFeedSubscriptionID) FeedSource {
	return FeedSource{Type: FeedSourceTypeRSS, UserFeedSubscriptionID: subscriptionID}
}

func NewYouTubeChannelFeedSource(subscriptionID UserFeedSubscriptionID) FeedSource {
	return FeedSource{Type: FeedSourceTypeYouTubeChannel, UserFeedSubscriptionID: subscriptionID}
}

func NewIntervalFeedSource(subscriptionID UserFeedSubscriptionID, intervalSeconds int) (FeedSource, error) {
	if intervalSeconds < 1 {
		return FeedSource{}, NewValidationError("interval seconds", "must be at least 1")
	}
	return FeedSource{
		Type:                   FeedSourceTypeInterval,
		UserFeedSubscriptionID: subscriptionID,
		IntervalSeconds:        intervalSeconds,
	}, nil
}

func NewPWAFeedSource() FeedSource {
	return FeedSource{Type: FeedSourceTypePWA}
}

func NewExtensionFeedSource() FeedSource {
	return FeedSource{Type: FeedSourceTypeExtension}
}

func NewPocketExportFeedSource() FeedSource {
	return FeedSource{Type: FeedSourceTypePocketExport}
}

func (s FeedSource) Validate() error {
	switch s.Type {
	case FeedSourceTypeRSS, FeedSourceTypeYouTubeChannel:
		if s.UserFeedSubscriptionID == "" {
			return NewValidationError("feed source", "subscription id is required")
		}
		return nil
	case FeedSourceTypeInterval:
		if s.UserFeedSubscriptionID == "" {
			return NewValidationError("feed source", "subscription id is required")
		}
		if s.IntervalSeconds < 1 {
			return NewValidationError("feed source", "interval seconds must be at least 1")
		}
		return nil
	case FeedSourceTypePWA, FeedSourceTypeExtension, FeedSourceTypePocketExport:
		if s.UserFeedSubscriptionID != "" {
			return NewValidationError("feed source", "manual sources carry no subscription id")
		}
		return nil
	default:
		return NewValidationError("feed source", fmt.Sprintf("unknown type %q", s.Type))
	}
}

type feedSourceJSON struct {
	Type                   string `json:"type"`
	UserFeedSubscriptionID string `json:"user_feed_subscription_id,omitempty"`
	IntervalSeconds        int    `json:"interval_seconds,omitempty"`
}

func (s FeedSource) MarshalJSON() ([]byte, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(feedSourceJSON{
		Type:                   string(s.Type),
		UserFeedSubscriptionID: string(s.UserFeedSubscriptionID),
		IntervalSeconds:        s.IntervalSeconds,
	})
}

func (s *FeedSource) UnmarshalJSON(data []byte) error {
	var raw feedSourceJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to decode feed source: %w", err)
	}
	sourceType, err := ParseFeedSourceType(raw.Type)
	if err != nil {
		return err
	}
	decoded := FeedSource{
		Type:                   sourceType,
		UserFeedSubscriptionID: UserFeedSubscriptionID(raw.UserFeedSubscriptionID),
		IntervalSeconds:        raw.IntervalSeconds,
	}
	if err := decoded.Validate(); err != nil {
		return err
	}
	*s = decoded
	return nil
}
