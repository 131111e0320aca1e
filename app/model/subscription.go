package model

import (
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"
)

// DeliveryScheduleType is the closed set of delivery schedule shapes.
type DeliveryScheduleType string

const (
	DeliveryScheduleNever              DeliveryScheduleType = "never"
	DeliveryScheduleImmediate          DeliveryScheduleType = "immediate"
	DeliveryScheduleDaysAndTimesOfWeek DeliveryScheduleType = "days_and_times_of_week"
	DeliveryScheduleEveryNHours        DeliveryScheduleType = "every_n_hours"
)

func ParseDeliveryScheduleType(raw string) (DeliveryScheduleType, error) {
	switch DeliveryScheduleType(raw) {
	case DeliveryScheduleNever:
		return DeliveryScheduleNever, nil
	case DeliveryScheduleImmediate:
		return DeliveryScheduleImmediate, nil
	case DeliveryScheduleDaysAndTimesOfWeek:
		return DeliveryScheduleDaysAndTimesOfWeek, nil
	case DeliveryScheduleEveryNHours:
		return DeliveryScheduleEveryNHours, nil
	default:
		return "", NewValidationError("delivery schedule type", fmt.Sprintf("unknown value %q", raw))
	}
}

var timeOfDayPattern = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]$`)

// DeliverySchedule controls when items from a subscription are surfaced.
// Days and TimesOfDay apply only to the days_and_times_of_week variant,
// EveryNHours only to its namesake.
type DeliverySchedule struct {
	Type        DeliveryScheduleType
	Days        []time.Weekday
	TimesOfDay  []string
	EveryNHours int
}

func NewImmediateDeliverySchedule() DeliverySchedule {
	return DeliverySchedule{Type: DeliveryScheduleImmediate}
}

func NewNeverDeliverySchedule() DeliverySchedule {
	return DeliverySchedule{Type: DeliveryScheduleNever}
}

func NewDaysAndTimesOfWeekDeliverySchedule(days []time.Weekday, timesOfDay []string) (DeliverySchedule, error) {
	schedule := DeliverySchedule{
		Type:       DeliveryScheduleDaysAndTimesOfWeek,
		Days:       days,
		TimesOfDay: timesOfDay,
	}
	if err := schedule.Validate(); err != nil {
		return DeliverySchedule{}, err
	}
	return schedule, nil
}

func NewEveryNHoursDeliverySchedule(hours int) (DeliverySchedule, error) {
	schedule := DeliverySchedule{Type: DeliveryScheduleEveryNHours, EveryNHours: hours}
	if err := schedule.Validate(); err != nil {
		return DeliverySchedule{}, err
	}
	return schedule, nil
}

func (s DeliverySchedule) Validate() error {
	switch s.Type {
	case DeliveryScheduleNever, DeliveryScheduleImmediate:
		if len(s.Days) != 0 || len(s.TimesOfDay) != 0 || s.EveryNHours != 0 {
			return NewValidationError("delivery schedule", "variant carries no parameters")
		}
		return nil
	case DeliveryScheduleDaysAndTimesOfWeek:
		if len(s.Days) == 0 {
			return NewValidationError("delivery schedule", "at least one day is required")
		}
		for _, day := range s.Days {
			if day < time.Sunday || day > time.Saturday {
				return NewValidationError("delivery schedule", fmt.Sprintf("invalid weekday %d", day))
			}
		}
		if len(s.TimesOfDay) == 0 {
			return NewValidationError("delivery schedule", "at least one time of day is required")
		}
		for _, tod := range s.TimesOfDay {
			if !timeOfDayPattern.MatchString(tod) {
				return NewValidationError("delivery schedule", fmt.Sprintf("invalid time of day %q, expected HH:MM", tod))
			}
		}
		return nil
	case DeliveryScheduleEveryNHours:
		if s.EveryNHours < 1 {
			return NewValidationError("delivery schedule", "hours must be at least 1")
		}
		return nil
	default:
		return NewValidationError("delivery schedule", fmt.Sprintf("unknown type %q", s.Type))
	}
}

type deliveryScheduleJSON struct {
	Type        string   `json:"type"`
	Days        []int    `json:"days,omitempty"`
	TimesOfDay  []string `json:"times_of_day,omitempty"`
	EveryNHours int      `json:"every_n_hours,omitempty"`
}

func (s DeliverySchedule) MarshalJSON() ([]byte, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	raw := deliveryScheduleJSON{
		Type:        string(s.Type),
		TimesOfDay:  s.TimesOfDay,
		EveryNHours: s.EveryNHours,
	}
	for _, day := range s.Days {
		raw.Days = append(raw.Days, int(day))
	}
	return json.Marshal(raw)
}

func (s *DeliverySchedule) UnmarshalJSON(data []byte) error {
	var raw deliveryScheduleJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to decode delivery schedule: %w", err)
	}
	scheduleType, err := ParseDeliveryScheduleType(raw.Type)
	if err != nil {
		return err
	}
	decoded := DeliverySchedule{
		Type:        scheduleType,
		TimesOfDay:  raw.TimesOfDay,
		EveryNHours: raw.EveryNHours,
	}
	for _, day := range raw.Days {
		decoded.Days = append(decoded.Days, time.Weekday(day))
	}
	if err := decoded.Validate(); err != nil {
		return err
	}
	*s = decoded
	return nil
}

// UserFeedSubscription ties an account to one external feed identity.
// At most one active subscription exists per (account, identity);
// UnsubscribedTime is set exactly when IsActive is false.
type UserFeedSubscription struct {
	ID               UserFeedSubscriptionID
	AccountID        AccountID
	SourceType       FeedSourceType
	URL              string
	ChannelID        string
	IntervalSeconds  int
	IsActive         bool
	DeliverySchedule DeliverySchedule
	UnsubscribedTime *time.Time
	CreatedTime      time.Time
	LastUpdatedTime  time.Time
}

// YouTubeChannelIDFromFeedURL extracts the channel id from a YouTube
// channel feed url, or returns "" when the url is not one.
func YouTubeChannelIDFromFeedURL(feedURL string) string {
	parsed, err := url.Parse(feedURL)
	if err != nil {
		return ""
	}
	host := strings.TrimPrefix(parsed.Hostname(), "www.")
	if host != "youtube.com" || parsed.Path != "/feeds/videos.xml" {
		return ""
	}
	return parsed.Query().Get("channel_id")
}

// YouTubeChannelFeedURL is the canonical feed url for a channel id,
// used for push provider registration.
func YouTubeChannelFeedURL(channelID string) string {
	return "https://www.youtube.com/feeds/videos.xml?channel_id=" + url.QueryEscape(channelID)
}

// ExternalIdentity is the key a subscription shares with every other
// subscription to the same upstream feed, across accounts.
func (s *UserFeedSubscription) ExternalIdentity() string {
	switch s.SourceType {
	case FeedSourceTypeRSS:
		return s.URL
	case FeedSourceTypeYouTubeChannel:
		return s.ChannelID
	case FeedSourceTypeInterval:
		return fmt.Sprintf("interval:%d:%s", s.IntervalSeconds, s.AccountID)
	default:
		return ""
	}
}

func (s *UserFeedSubscription) Validate() error {
	if s.ID == "" {
		return NewValidationError("user feed subscription", "id is required")
	}
	if s.AccountID == "" {
		return NewValidationError("user feed subscription", "account id is required")
	}
	if !s.SourceType.HasSubscription() {
		return NewValidationError("user feed subscription", fmt.Sprintf("source type %q is not subscription-backed", s.SourceType))
	}
	switch s.SourceType {
	case FeedSourceTypeRSS:
		if s.URL == "" {
			return NewValidationError("user feed subscription", "url is required for rss")
		}
	case FeedSourceTypeYouTubeChannel:
		if s.ChannelID == "" {
			return NewValidationError("user feed subscription", "channel id is required for youtube")
		}
	case FeedSourceTypeInterval:
		if s.IntervalSeconds < 1 {
			return NewValidationError("user feed subscription", "interval seconds must be at least 1")
		}
	}
	if err := s.DeliverySchedule.Validate(); err != nil {
		return err
	}
	if s.IsActive && s.UnsubscribedTime != nil {
		return NewValidationError("user feed subscription", "active subscription must not carry unsubscribed time")
	}
	if !s.IsActive && s.UnsubscribedTime == nil {
		return NewValidationError("user feed subscription", "inactive subscription must carry unsubscribed time")
	}
	return nil
}
