package model

import (
	"net/mail"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// AccountID is the opaque identifier assigned by the auth provider.
type AccountID string

func ParseAccountID(raw string) (AccountID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", NewValidationError("account id", "must not be empty")
	}
	if len(trimmed) > 128 {
		return "", NewValidationError("account id", "exceeds 128 characters")
	}
	if strings.ContainsAny(trimmed, " \t\n/") {
		return "", NewValidationError("account id", "contains illegal characters")
	}
	return AccountID(trimmed), nil
}

func (id AccountID) String() string {
	return string(id)
}

type FeedItemID string

func NewFeedItemID() FeedItemID {
	return FeedItemID(uuid.NewString())
}

func ParseFeedItemID(raw string) (FeedItemID, error) {
	parsed, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", NewValidationError("feed item id", "not a valid UUID")
	}
	return FeedItemID(parsed.String()), nil
}

func (id FeedItemID) String() string {
	return string(id)
}

type UserFeedSubscriptionID string

func NewUserFeedSubscriptionID() UserFeedSubscriptionID {
	return UserFeedSubscriptionID(uuid.NewString())
}

func ParseUserFeedSubscriptionID(raw string) (UserFeedSubscriptionID, error) {
	parsed, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", NewValidationError("user feed subscription id", "not a valid UUID")
	}
	return UserFeedSubscriptionID(parsed.String()), nil
}

func (id UserFeedSubscriptionID) String() string {
	return string(id)
}

type ImportQueueItemID string

func NewImportQueueItemID() ImportQueueItemID {
	return ImportQueueItemID(uuid.NewString())
}

func (id ImportQueueItemID) String() string {
	return string(id)
}

type EventLogItemID string

func NewEventLogItemID() EventLogItemID {
	return EventLogItemID(uuid.NewString())
}

func (id EventLogItemID) String() string {
	return string(id)
}

// ParseEmail validates an email address and returns its normalized form.
func ParseEmail(raw string) (string, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(raw))
	if err != nil {
		return "", NewValidationError("email", "not a valid address")
	}
	return addr.Address, nil
}

// ParseURL validates an absolute http(s) URL and returns its canonical form.
func ParseURL(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", NewValidationError("url", "must not be empty")
	}
	parsed, err := url.Parse(trimmed)
	if err != nil {
		return "", NewValidationError("url", "malformed")
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", NewValidationError("url", "scheme must be http or https")
	}
	if parsed.Host == "" {
		return "", NewValidationError("url", "missing host")
	}
	return parsed.String(), nil
}

// Account is the owner of every other entity.
type Account struct {
	ID          AccountID
	Email       string
	CreatedTime time.Time
}
