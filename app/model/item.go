package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

type ImportStatus string

const (
	ImportStatusNew        ImportStatus = "new"
	ImportStatusProcessing ImportStatus = "processing"
	ImportStatusFailed     ImportStatus = "failed"
	ImportStatusCompleted  ImportStatus = "completed"
)

func ParseImportStatus(raw string) (ImportStatus, error) {
	switch ImportStatus(raw) {
	case ImportStatusNew:
		return ImportStatusNew, nil
	case ImportStatusProcessing:
		return ImportStatusProcessing, nil
	case ImportStatusFailed:
		return ImportStatusFailed, nil
	case ImportStatusCompleted:
		return ImportStatusCompleted, nil
	default:
		return "", NewValidationError("import status", fmt.Sprintf("unknown value %q", raw))
	}
}

// ImportState is the per-item import lifecycle. ShouldFetch is the single
// source of truth for "does this item need (re)import"; the persisted flag
// is what claims race on, never a cached copy.
type ImportState struct {
	Status                   ImportStatus
	ShouldFetch              bool
	LastImportRequestedTime  time.Time
	ImportStartedTime        *time.Time
	LastSuccessfulImportTime *time.Time
	ImportFailedTime         *time.Time
	ErrorMessage             string
}

func NewImportState(now time.Time) ImportState {
	return ImportState{
		Status:                  ImportStatusNew,
		ShouldFetch:             true,
		LastImportRequestedTime: now,
	}
}

// Claim moves the state into processing. The persisted claim is an atomic
// conditional update in the item store; this method mirrors the same
// precondition for in-memory use and tests.
func (s ImportState) Claim(now time.Time) (ImportState, error) {
	if !s.ShouldFetch {
		return s, fmt.Errorf("item is not eligible for import (should_fetch is false)")
	}
	claimed := s
	claimed.Status = ImportStatusProcessing
	claimed.ShouldFetch = false
	claimed.ImportStartedTime = &now
	claimed.ImportFailedTime = nil
	claimed.ErrorMessage = ""
	return claimed, nil
}

// Complete records a successful import. refetch schedules a future
// re-import for content types that refresh periodically.
func (s ImportState) Complete(now time.Time, refetch bool) (ImportState, error) {
	if s.Status != ImportStatusProcessing {
		return s, fmt.Errorf("cannot complete import from status %q", s.Status)
	}
	completed := s
	completed.Status = ImportStatusCompleted
	completed.ShouldFetch = refetch
	completed.LastSuccessfulImportTime = &now
	completed.ImportFailedTime = nil
	completed.ErrorMessage = ""
	return completed, nil
}

// Fail records an import error. The item stays retryable and any prior
// successful import time is preserved.
func (s ImportState) Fail(now time.Time, message string) (ImportState, error) {
	if s.Status != ImportStatusProcessing {
		return s, fmt.Errorf("cannot fail import from status %q", s.Status)
	}
	if message == "" {
		message = "unknown import error"
	}
	failed := s
	failed.Status = ImportStatusFailed
	failed.ShouldFetch = true
	failed.ImportFailedTime = &now
	failed.ErrorMessage = message
	return failed, nil
}

// RequestImport marks the item for a manual retry or scheduled refresh.
// A request while an import is in flight is a no-op, matching the
// persisted transition. LastImportRequestedTime never moves backwards.
func (s ImportState) RequestImport(now time.Time) ImportState {
	if s.Status == ImportStatusProcessing {
		return s
	}
	requested := s
	requested.Status = ImportStatusNew
	requested.ShouldFetch = true
	requested.ImportStartedTime = nil
	if now.After(requested.LastImportRequestedTime) {
		requested.LastImportRequestedTime = now
	}
	return requested
}

func (s ImportState) Validate() error {
	switch s.Status {
	case ImportStatusNew:
		if !s.ShouldFetch {
			return NewValidationError("import state", "new items must have should_fetch set")
		}
	case ImportStatusProcessing:
		if s.ShouldFetch {
			return NewValidationError("import state", "processing items must not have should_fetch set")
		}
		if s.ImportStartedTime == nil {
			return NewValidationError("import state", "processing items must carry import started time")
		}
	case ImportStatusFailed:
		if s.ImportFailedTime == nil {
			return NewValidationError("import state", "failed items must carry import failed time")
		}
		if s.ErrorMessage == "" {
			return NewValidationError("import state", "failed items must carry an error message")
		}
	case ImportStatusCompleted:
		if s.LastSuccessfulImportTime == nil {
			return NewValidationError("import state", "completed items must carry last successful import time")
		}
	default:
		return NewValidationError("import state", fmt.Sprintf("unknown status %q", s.Status))
	}
	return nil
}

type FeedItemType string

const (
	FeedItemTypeArticle FeedItemType = "article"
	FeedItemTypeVideo   FeedItemType = "video"
	FeedItemTypeTweet   FeedItemType = "tweet"
	FeedItemTypeXKCD    FeedItemType = "xkcd"
	FeedItemTypeWebsite FeedItemType = "website"
)

func ParseFeedItemType(raw string) (FeedItemType, error) {
	switch FeedItemType(raw) {
	case FeedItemTypeArticle:
		return FeedItemTypeArticle, nil
	case FeedItemTypeVideo:
		return FeedItemTypeVideo, nil
	case FeedItemTypeTweet:
		return FeedItemTypeTweet, nil
	case FeedItemTypeXKCD:
		return FeedItemTypeXKCD, nil
	case FeedItemTypeWebsite:
		return FeedItemTypeWebsite, nil
	default:
		return "", NewValidationError("feed item type", fmt.Sprintf("unknown value %q", raw))
	}
}

// XKCDPayload carries comic metadata written by the xkcd importer.
type XKCDPayload struct {
	Number   int    `json:"number"`
	ImageURL string `json:"image_url"`
	AltText  string `json:"alt_text"`
}

func (p *XKCDPayload) Validate() error {
	if p.Number <= 0 {
		return NewValidationError("xkcd payload", "comic number must be positive")
	}
	if p.ImageURL == "" {
		return NewValidationError("xkcd payload", "image url is required")
	}
	return nil
}

// FeedItem is one normalized unit of ingested content.
type FeedItem struct {
	ID              FeedItemID
	AccountID       AccountID
	Source          FeedSource
	Type            FeedItemType
	URL             string
	Title           string
	Summary         string
	Content         string
	ExternalID      string
	XKCD            *XKCDPayload
	ImportState     ImportState
	CreatedTime     time.Time
	LastUpdatedTime time.Time
}

// DedupKey is the identity a feed item is created-once under: the
// (subscription, external item id) pair for subscription-backed sources,
// the (account, url) pair for manual and batch sources.
func (i *FeedItem) DedupKey() string {
	if i.Source.Type.HasSubscription() {
		return ContentHash(string(i.Source.UserFeedSubscriptionID), i.ExternalID)
	}
	return ContentHash(string(i.AccountID), i.URL)
}

func (i *FeedItem) Validate() error {
	if i.ID == "" {
		return NewValidationError("feed item", "id is required")
	}
	if i.AccountID == "" {
		return NewValidationError("feed item", "account id is required")
	}
	if i.URL == "" {
		return NewValidationError("feed item", "url is required")
	}
	if _, err := ParseFeedItemType(string(i.Type)); err != nil {
		return err
	}
	if err := i.Source.Validate(); err != nil {
		return err
	}
	return i.ImportState.Validate()
}

// ContentHash produces a stable identity hash over its parts. Parts are
// NFC-normalized first so byte-different but canonically equal titles
// and urls dedup to the same key.
func ContentHash(parts ...string) string {
	for i, part := range parts {
		parts[i] = norm.NFC.String(part)
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

// ImportQueueStatus tracks an import queue entry's short life.
type ImportQueueStatus string

const (
	ImportQueueStatusQueued     ImportQueueStatus = "queued"
	ImportQueueStatusProcessing ImportQueueStatus = "processing"
)

// ImportQueueItem is the ephemeral work record between ingestion and
// enrichment. Created by the webhook path, deleted by the pipeline.
type ImportQueueItem struct {
	ID          ImportQueueItemID
	FeedItemID  FeedItemID
	AccountID   AccountID
	URL         string
	Status      ImportQueueStatus
	CreatedTime time.Time
}
