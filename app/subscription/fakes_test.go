package subscription

import (
	"context"
	"fmt"
	"sync"
	"time"

	"feedloft/app/database"
	"feedloft/app/model"
)

// fakeStores is an in-memory stand-in for the database package, shared
// by the manager tests.
type fakeStores struct {
	mu       sync.Mutex
	accounts map[model.AccountID]model.Account
	subs     map[model.UserFeedSubscriptionID]model.UserFeedSubscription
	items    map[model.FeedItemID]model.FeedItem
	queue    map[model.ImportQueueItemID]model.ImportQueueItem
	events   []model.EventLogItem

	batches     [][]database.Ref
	failBatchAt int // 1-based index of the batch to fail, 0 = never
}

func newFakeStores() *fakeStores {
	return &fakeStores{
		accounts: make(map[model.AccountID]model.Account),
		subs:     make(map[model.UserFeedSubscriptionID]model.UserFeedSubscription),
		items:    make(map[model.FeedItemID]model.FeedItem),
		queue:    make(map[model.ImportQueueItemID]model.ImportQueueItem),
	}
}

func (f *fakeStores) CreateAccount(ctx context.Context, account model.Account) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accounts[account.ID] = account
	return nil
}

func (f *fakeStores) GetAccount(ctx context.Context, id model.AccountID) (*model.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if account, ok := f.accounts[id]; ok {
		return &account, nil
	}
	return nil, nil
}

func (f *fakeStores) DeleteAccount(ctx context.Context, id model.AccountID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.accounts, id)
	return nil
}

func (f *fakeStores) GetSubscription(ctx context.Context, id model.UserFeedSubscriptionID) (*model.UserFeedSubscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if sub, ok := f.subs[id]; ok {
		return &sub, nil
	}
	return nil, nil
}

func identityOf(sub model.UserFeedSubscription, sourceType model.FeedSourceType) string {
	if sub.SourceType != sourceType {
		return ""
	}
	return sub.ExternalIdentity()
}

func (f *fakeStores) GetSubscriptionByIdentity(ctx context.Context, accountID model.AccountID, sourceType model.FeedSourceType, identity string) (*model.UserFeedSubscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var newest *model.UserFeedSubscription
	for _, sub := range f.subs {
		sub := sub
		if sub.AccountID != accountID || identityOf(sub, sourceType) != identity {
			continue
		}
		if newest == nil || sub.CreatedTime.After(newest.CreatedTime) {
			newest = &sub
		}
	}
	return newest, nil
}

func (f *fakeStores) GetActiveSubscriptionsByIdentity(ctx context.Context, sourceType model.FeedSourceType, identity string) ([]model.UserFeedSubscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []model.UserFeedSubscription
	for _, sub := range f.subs {
		if sub.IsActive && identityOf(sub, sourceType) == identity {
			result = append(result, sub)
		}
	}
	return result, nil
}

func (f *fakeStores) CountActiveSubscribers(ctx context.Context, sourceType model.FeedSourceType, identity string) (int, error) {
	subs, _ := f.GetActiveSubscriptionsByIdentity(ctx, sourceType, identity)
	return len(subs), nil
}

func (f *fakeStores) InsertSubscription(ctx context.Context, sub model.UserFeedSubscription) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs[sub.ID] = sub
	return nil
}

func (f *fakeStores) SetSubscriptionActive(ctx context.Context, id model.UserFeedSubscriptionID, active bool, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	sub, ok := f.subs[id]
	if !ok {
		return model.NewNotFoundError("user feed subscription", string(id))
	}
	sub.IsActive = active
	if active {
		sub.UnsubscribedTime = nil
	} else {
		sub.UnsubscribedTime = &now
	}
	sub.LastUpdatedTime = now
	f.subs[id] = sub
	return nil
}

func (f *fakeStores) GetDueIntervalSubscriptions(ctx context.Context, now time.Time) ([]model.UserFeedSubscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var due []model.UserFeedSubscription
	for _, sub := range f.subs {
		if sub.SourceType != model.FeedSourceTypeInterval || !sub.IsActive {
			continue
		}
		if sub.LastUpdatedTime.Add(time.Duration(sub.IntervalSeconds) * time.Second).Before(now) {
			due = append(due, sub)
		}
	}
	return due, nil
}

func (f *fakeStores) TouchSubscription(ctx context.Context, id model.UserFeedSubscriptionID, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if sub, ok := f.subs[id]; ok {
		sub.LastUpdatedTime = now
		f.subs[id] = sub
	}
	return nil
}

func (f *fakeStores) ListSubscriptionRefs(ctx context.Context, accountID model.AccountID) ([]database.Ref, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var refs []database.Ref
	for id, sub := range f.subs {
		if sub.AccountID == accountID {
			refs = append(refs, database.Ref{Collection: database.CollectionSubscriptions, ID: string(id)})
		}
	}
	return refs, nil
}

func (f *fakeStores) InsertItem(ctx context.Context, item model.FeedItem) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.items {
		if existing.AccountID == item.AccountID && existing.DedupKey() == item.DedupKey() {
			return false, nil
		}
	}
	f.items[item.ID] = item
	return true, nil
}

func (f *fakeStores) GetItem(ctx context.Context, id model.FeedItemID) (*model.FeedItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if item, ok := f.items[id]; ok {
		return &item, nil
	}
	return nil, nil
}

func (f *fakeStores) GetItemByDedupKey(ctx context.Context, accountID model.AccountID, dedupKey string) (*model.FeedItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, item := range f.items {
		item := item
		if item.AccountID == accountID && item.DedupKey() == dedupKey {
			return &item, nil
		}
	}
	return nil, nil
}

func (f *fakeStores) ListRefetchableItems(ctx context.Context, limit int) ([]model.FeedItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []model.FeedItem
	for _, item := range f.items {
		if len(result) >= limit {
			break
		}
		if item.ImportState.ShouldFetch && item.ImportState.Status != model.ImportStatusProcessing {
			result = append(result, item)
		}
	}
	return result, nil
}

func (f *fakeStores) ClaimItemForImport(ctx context.Context, id model.FeedItemID, now time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.items[id]
	if !ok || !item.ImportState.ShouldFetch {
		return false, nil
	}
	claimed, err := item.ImportState.Claim(now)
	if err != nil {
		return false, nil
	}
	item.ImportState = claimed
	f.items[id] = item
	return true, nil
}

func (f *fakeStores) CompleteItemImport(ctx context.Context, id model.FeedItemID, now time.Time, refetch bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.items[id]
	if !ok {
		return model.NewNotFoundError("feed item", string(id))
	}
	completed, err := item.ImportState.Complete(now, refetch)
	if err != nil {
		return err
	}
	item.ImportState = completed
	f.items[id] = item
	return nil
}

func (f *fakeStores) FailItemImport(ctx context.Context, id model.FeedItemID, now time.Time, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.items[id]
	if !ok {
		return model.NewNotFoundError("feed item", string(id))
	}
	failed, err := item.ImportState.Fail(now, message)
	if err != nil {
		return err
	}
	item.ImportState = failed
	f.items[id] = item
	return nil
}

func (f *fakeStores) RequestItemImport(ctx context.Context, id model.FeedItemID, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.items[id]
	if !ok {
		return model.NewNotFoundError("feed item", string(id))
	}
	item.ImportState = item.ImportState.RequestImport(now)
	f.items[id] = item
	return nil
}

func (f *fakeStores) UpdateItemContent(ctx context.Context, update database.ItemContentUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.items[update.FeedItemID]
	if !ok {
		return model.NewNotFoundError("feed item", string(update.FeedItemID))
	}
	if update.Title != nil {
		item.Title = *update.Title
	}
	if update.Summary != nil {
		item.Summary = *update.Summary
	}
	if update.Content != nil {
		item.Content = *update.Content
	}
	if update.ItemType != nil {
		item.Type = *update.ItemType
	}
	if update.XKCD != nil {
		item.XKCD = update.XKCD
	}
	f.items[update.FeedItemID] = item
	return nil
}

func (f *fakeStores) CountItemsByStatus(ctx context.Context) (map[model.ImportStatus]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	counts := make(map[model.ImportStatus]int)
	for _, item := range f.items {
		counts[item.ImportState.Status]++
	}
	return counts, nil
}

func (f *fakeStores) ListItemRefs(ctx context.Context, accountID model.AccountID) ([]database.Ref, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var refs []database.Ref
	for id, item := range f.items {
		if item.AccountID == accountID {
			refs = append(refs, database.Ref{Collection: database.CollectionFeedItems, ID: string(id)})
		}
	}
	return refs, nil
}

func (f *fakeStores) EnqueueImport(ctx context.Context, item model.ImportQueueItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.queue {
		if existing.FeedItemID == item.FeedItemID {
			return nil
		}
	}
	f.queue[item.ID] = item
	return nil
}

func (f *fakeStores) GetPendingImports(ctx context.Context, limit int) ([]model.ImportQueueItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var items []model.ImportQueueItem
	for _, item := range f.queue {
		if len(items) >= limit {
			break
		}
		items = append(items, item)
	}
	return items, nil
}

func (f *fakeStores) DeleteImport(ctx context.Context, id model.ImportQueueItemID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.queue, id)
	return nil
}

func (f *fakeStores) ListQueueRefs(ctx context.Context, accountID model.AccountID) ([]database.Ref, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var refs []database.Ref
	for id, item := range f.queue {
		if item.AccountID == accountID {
			refs = append(refs, database.Ref{Collection: database.CollectionImportQueue, ID: string(id)})
		}
	}
	return refs, nil
}

func (f *fakeStores) AppendEvent(ctx context.Context, item model.EventLogItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, item)
	return nil
}

func (f *fakeStores) ListEvents(ctx context.Context, accountID model.AccountID, limit int) ([]model.EventLogItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var items []model.EventLogItem
	for _, event := range f.events {
		if event.AccountID == accountID && len(items) < limit {
			items = append(items, event)
		}
	}
	return items, nil
}

func (f *fakeStores) ListEventRefs(ctx context.Context, accountID model.AccountID) ([]database.Ref, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var refs []database.Ref
	for _, event := range f.events {
		if event.AccountID == accountID {
			refs = append(refs, database.Ref{Collection: database.CollectionEventLog, ID: string(event.ID)})
		}
	}
	return refs, nil
}

func (f *fakeStores) DeleteBatch(ctx context.Context, refs []database.Ref) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(refs) > database.MaxBatchOps {
		return fmt.Errorf("batch of %d refs exceeds limit of %d", len(refs), database.MaxBatchOps)
	}
	f.batches = append(f.batches, refs)
	if f.failBatchAt > 0 && len(f.batches) == f.failBatchAt {
		return fmt.Errorf("simulated batch failure")
	}
	for _, ref := range refs {
		switch ref.Collection {
		case database.CollectionSubscriptions:
			delete(f.subs, model.UserFeedSubscriptionID(ref.ID))
		case database.CollectionFeedItems:
			delete(f.items, model.FeedItemID(ref.ID))
		case database.CollectionImportQueue:
			delete(f.queue, model.ImportQueueItemID(ref.ID))
		case database.CollectionEventLog:
			kept := f.events[:0]
			for _, event := range f.events {
				if string(event.ID) != ref.ID {
					kept = append(kept, event)
				}
			}
			f.events = kept
		}
	}
	return nil
}

// fakeProvider counts push provider calls.
type fakeProvider struct {
	mu               sync.Mutex
	subscribeCalls   []string
	unsubscribeCalls []string
	subscribeErr     error
}

func (p *fakeProvider) Subscribe(ctx context.Context, feedURL string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.subscribeErr != nil {
		return p.subscribeErr
	}
	p.subscribeCalls = append(p.subscribeCalls, feedURL)
	return nil
}

func (p *fakeProvider) Unsubscribe(ctx context.Context, feedURL string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.unsubscribeCalls = append(p.unsubscribeCalls, feedURL)
	return nil
}
