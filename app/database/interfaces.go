package database

import (
	"context"
	"time"

	"feedloft/app/model"
)

// Ref points at one stored document for batched deletion.
type Ref struct {
	Collection string
	ID         string
}

// MaxBatchOps is the hard limit the store enforces on a single batch
// write. Callers chunk larger workloads and commit chunks sequentially.
const MaxBatchOps = 500

type AccountStore interface {
	CreateAccount(ctx context.Context, account model.Account) error
	GetAccount(ctx context.Context, id model.AccountID) (*model.Account, error)
	DeleteAccount(ctx context.Context, id model.AccountID) error
}

type SubscriptionStore interface {
	GetSubscription(ctx context.Context, id model.UserFeedSubscriptionID) (*model.UserFeedSubscription, error)
	// GetSubscriptionByIdentity returns the newest subscription for the
	// (account, identity) pair regardless of active state, or nil.
	GetSubscriptionByIdentity(ctx context.Context, accountID model.AccountID, sourceType model.FeedSourceType, identity string) (*model.UserFeedSubscription, error)
	GetActiveSubscriptionsByIdentity(ctx context.Context, sourceType model.FeedSourceType, identity string) ([]model.UserFeedSubscription, error)
	CountActiveSubscribers(ctx context.Context, sourceType model.FeedSourceType, identity string) (int, error)
	InsertSubscription(ctx context.Context, sub model.UserFeedSubscription) error
	SetSubscriptionActive(ctx context.Context, id model.UserFeedSubscriptionID, active bool, now time.Time) error
	GetDueIntervalSubscriptions(ctx context.Context, now time.Time) ([]model.UserFeedSubscription, error)
	TouchSubscription(ctx context.Context, id model.UserFeedSubscriptionID, now time.Time) error
	ListSubscriptionRefs(ctx context.Context, accountID model.AccountID) ([]Ref, error)
}

// ItemContentUpdate carries enrichment results back onto a feed item.
// Nil fields are left untouched.
type ItemContentUpdate struct {
	FeedItemID model.FeedItemID
	Title      *string
	Summary    *string
	Content    *string
	ItemType   *model.FeedItemType
	XKCD       *model.XKCDPayload
}

type ItemStore interface {
	// InsertItem stores the item unless one already exists for its dedup
	// key; created reports whether a row was written.
	InsertItem(ctx context.Context, item model.FeedItem) (created bool, err error)
	GetItem(ctx context.Context, id model.FeedItemID) (*model.FeedItem, error)
	GetItemByDedupKey(ctx context.Context, accountID model.AccountID, dedupKey string) (*model.FeedItem, error)
	// ListRefetchableItems returns items whose fetch gate is open and
	// that hold no processing claim, oldest request first.
	ListRefetchableItems(ctx context.Context, limit int) ([]model.FeedItem, error)
	// ClaimItemForImport is the atomic conditional claim: it flips the
	// persisted should_fetch gate and reports whether this caller won.
	ClaimItemForImport(ctx context.Context, id model.FeedItemID, now time.Time) (bool, error)
	CompleteItemImport(ctx context.Context, id model.FeedItemID, now time.Time, refetch bool) error
	FailItemImport(ctx context.Context, id model.FeedItemID, now time.Time, message string) error
	RequestItemImport(ctx context.Context, id model.FeedItemID, now time.Time) error
	UpdateItemContent(ctx context.Context, update ItemContentUpdate) error
	CountItemsByStatus(ctx context.Context) (map[model.ImportStatus]int, error)
	ListItemRefs(ctx context.Context, accountID model.AccountID) ([]Ref, error)
}

type QueueStore interface {
	// EnqueueImport is idempotent per feed item: re-enqueueing an already
	// queued item is a no-op.
	EnqueueImport(ctx context.Context, item model.ImportQueueItem) error
	GetPendingImports(ctx context.Context, limit int) ([]model.ImportQueueItem, error)
	DeleteImport(ctx context.Context, id model.ImportQueueItemID) error
	ListQueueRefs(ctx context.Context, accountID model.AccountID) ([]Ref, error)
}

type EventLogStore interface {
	AppendEvent(ctx context.Context, item model.EventLogItem) error
	ListEvents(ctx context.Context, accountID model.AccountID, limit int) ([]model.EventLogItem, error)
	ListEventRefs(ctx context.Context, accountID model.AccountID) ([]Ref, error)
}

// BatchWriter commits one batch of deletions atomically, refusing
// batches over MaxBatchOps.
type BatchWriter interface {
	DeleteBatch(ctx context.Context, refs []Ref) error
}
