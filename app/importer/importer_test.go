package importer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"feedloft/app/database"
	"feedloft/app/events"
	"feedloft/app/model"
)

type memItemStore struct {
	mu    sync.Mutex
	items map[model.FeedItemID]model.FeedItem
}

func newMemItemStore() *memItemStore {
	return &memItemStore{items: map[model.FeedItemID]model.FeedItem{}}
}

func (m *memItemStore) put(item model.FeedItem) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[item.ID] = item
}

func (m *memItemStore) get(id model.FeedItemID) model.FeedItem {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.items[id]
}

func (m *memItemStore) InsertItem(_ context.Context, item model.FeedItem) (bool, error) {
	m.put(item)
	return true, nil
}

func (m *memItemStore) GetItem(_ context.Context, id model.FeedItemID) (*model.FeedItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if item, ok := m.items[id]; ok {
		return &item, nil
	}
	return nil, nil
}

func (m *memItemStore) GetItemByDedupKey(_ context.Context, accountID model.AccountID, dedupKey string) (*model.FeedItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, item := range m.items {
		item := item
		if item.AccountID == accountID && item.DedupKey() == dedupKey {
			return &item, nil
		}
	}
	return nil, nil
}

func (m *memItemStore) ListRefetchableItems(_ context.Context, limit int) ([]model.FeedItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []model.FeedItem
	for _, item := range m.items {
		if len(result) >= limit {
			break
		}
		if item.ImportState.ShouldFetch && item.ImportState.Status != model.ImportStatusProcessing {
			result = append(result, item)
		}
	}
	return result, nil
}

func (m *memItemStore) ClaimItemForImport(_ context.Context, id model.FeedItemID, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[id]
	if !ok {
		return false, nil
	}
	claimed, err := item.ImportState.Claim(now)
	if err != nil {
		return false, nil
	}
	item.ImportState = claimed
	m.items[id] = item
	return true, nil
}

func (m *memItemStore) CompleteItemImport(_ context.Context, id model.FeedItemID, now time.Time, refetch bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	item := m.items[id]
	completed, err := item.ImportState.Complete(now, refetch)
	if err != nil {
		return err
	}
	item.ImportState = completed
	m.items[id] = item
	return nil
}

func (m *memItemStore) FailItemImport(_ context.Context, id model.FeedItemID, now time.Time, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	item := m.items[id]
	failed, err := item.ImportState.Fail(now, message)
	if err != nil {
		return err
	}
	item.ImportState = failed
	m.items[id] = item
	return nil
}

func (m *memItemStore) RequestItemImport(_ context.Context, id model.FeedItemID, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	item := m.items[id]
	item.ImportState = item.ImportState.RequestImport(now)
	m.items[id] = item
	return nil
}

func (m *memItemStore) UpdateItemContent(_ context.Context, update database.ItemContentUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	item := m.items[update.FeedItemID]
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
	m.items[update.FeedItemID] = item
	return nil
}

func (m *memItemStore) CountItemsByStatus(_ context.Context) (map[model.ImportStatus]int, error) {
	return nil, nil
}

func (m *memItemStore) ListItemRefs(_ context.Context, accountID model.AccountID) ([]database.Ref, error) {
	return nil, nil
}

type memQueueStore struct {
	mu      sync.Mutex
	entries map[model.ImportQueueItemID]model.ImportQueueItem
}

func newMemQueueStore() *memQueueStore {
	return &memQueueStore{entries: map[model.ImportQueueItemID]model.ImportQueueItem{}}
}

func (m *memQueueStore) EnqueueImport(_ context.Context, item model.ImportQueueItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[item.ID] = item
	return nil
}

func (m *memQueueStore) GetPendingImports(_ context.Context, limit int) ([]model.ImportQueueItem, error) {
	return nil, nil
}

func (m *memQueueStore) DeleteImport(_ context.Context, id model.ImportQueueItemID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, id)
	return nil
}

func (m *memQueueStore) ListQueueRefs(_ context.Context, accountID model.AccountID) ([]database.Ref, error) {
	return nil, nil
}

func (m *memQueueStore) size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

type memEventLog struct {
	mu     sync.Mutex
	events []model.EventLogItem
}

func (m *memEventLog) AppendEvent(_ context.Context, item model.EventLogItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, item)
	return nil
}

func (m *memEventLog) ListEvents(_ context.Context, accountID model.AccountID, limit int) ([]model.EventLogItem, error) {
	return nil, nil
}

func (m *memEventLog) ListEventRefs(_ context.Context, accountID model.AccountID) ([]database.Ref, error) {
	return nil, nil
}

type stubImporter struct {
	result *Result
	err    error
	calls  int
}

func (s *stubImporter) Import(_ context.Context, _ model.FeedItem) (*Result, error) {
	s.calls++
	return s.result, s.err
}

type dispatchEnv struct {
	service  *Service
	items    *memItemStore
	queue    *memQueueStore
	log      *memEventLog
	article  *stubImporter
	video    *stubImporter
	xkcd     *stubImporter
	interval *stubImporter
	now      time.Time
}

func newDispatchEnv(t *testing.T) *dispatchEnv {
	t.Helper()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	content := "enriched content"
	env := &dispatchEnv{
		items:    newMemItemStore(),
		queue:    newMemQueueStore(),
		log:      &memEventLog{},
		article:  &stubImporter{result: &Result{Update: ItemUpdate{Content: &content}}},
		video:    &stubImporter{result: &Result{}},
		xkcd:     &stubImporter{result: &Result{}},
		interval: &stubImporter{result: &Result{Refetch: true}},
		now:      now,
	}
	recorder := events.NewRecorder(env.log).WithClock(clock)
	env.service = NewService(env.items, env.queue, recorder,
		env.article, env.video, env.xkcd, env.interval).WithClock(clock)
	return env
}

func (e *dispatchEnv) addQueuedItem(t *testing.T, itemType model.FeedItemType, source model.FeedSource) (model.FeedItem, model.ImportQueueItem) {
	t.Helper()
	item := model.FeedItem{
		ID:          model.NewFeedItemID(),
		AccountID:   "acct-1",
		Source:      source,
		Type:        itemType,
		URL:         "https://example.com/post",
		ImportState: model.NewImportState(e.now),
		CreatedTime: e.now, LastUpdatedTime: e.now,
	}
	e.items.put(item)

	queueItem := model.ImportQueueItem{
		ID:          model.NewImportQueueItemID(),
		FeedItemID:  item.ID,
		AccountID:   item.AccountID,
		URL:         item.URL,
		Status:      model.ImportQueueStatusQueued,
		CreatedTime: e.now,
	}
	require.NoError(t, e.queue.EnqueueImport(context.Background(), queueItem))
	return item, queueItem
}

func TestProcessQueueItemCompletesArticle(t *testing.T) {
	env := newDispatchEnv(t)
	item, queueItem := env.addQueuedItem(t, model.FeedItemTypeArticle, model.NewPWAFeedSource())

	require.NoError(t, env.service.ProcessQueueItem(context.Background(), queueItem))

	stored := env.items.get(item.ID)
	assert.Equal(t, model.ImportStatusCompleted, stored.ImportState.Status)
	assert.False(t, stored.ImportState.ShouldFetch)
	assert.Equal(t, "enriched content", stored.Content)
	require.NotNil(t, stored.ImportState.LastSuccessfulImportTime)
	assert.Equal(t, 0, env.queue.size(), "queue entry is removed after completion")
	require.Len(t, env.log.events, 1)
	assert.Equal(t, 1, env.article.calls)
}

func TestProcessQueueItemSecondCallerIsNoOp(t *testing.T) {
	env := newDispatchEnv(t)
	item, queueItem := env.addQueuedItem(t, model.FeedItemTypeArticle, model.NewPWAFeedSource())

	claimed, err := env.items.ClaimItemForImport(context.Background(), item.ID, env.now)
	require.NoError(t, err)
	require.True(t, claimed)

	require.NoError(t, env.service.ProcessQueueItem(context.Background(), queueItem))
	assert.Equal(t, 0, env.article.calls, "losing the claim must not run the importer")
	assert.Equal(t, 0, env.queue.size(), "queue entry is still cleaned up")
}

func TestProcessQueueItemImporterFailure(t *testing.T) {
	env := newDispatchEnv(t)
	env.article.err = errors.New("connection reset")
	item, queueItem := env.addQueuedItem(t, model.FeedItemTypeArticle, model.NewPWAFeedSource())

	require.NoError(t, env.service.ProcessQueueItem(context.Background(), queueItem))

	stored := env.items.get(item.ID)
	assert.Equal(t, model.ImportStatusFailed, stored.ImportState.Status)
	assert.True(t, stored.ImportState.ShouldFetch, "failed items stay retryable")
	assert.Contains(t, stored.ImportState.ErrorMessage, "import failed for article item")
	assert.Contains(t, stored.ImportState.ErrorMessage, "connection reset")
	assert.Equal(t, 0, env.queue.size())
	assert.Empty(t, env.log.events, "no import event for a failed import")
}

func TestProcessQueueItemRetryAfterFailure(t *testing.T) {
	env := newDispatchEnv(t)
	env.article.err = errors.New("connection reset")
	item, queueItem := env.addQueuedItem(t, model.FeedItemTypeArticle, model.NewPWAFeedSource())

	require.NoError(t, env.service.ProcessQueueItem(context.Background(), queueItem))
	require.Equal(t, model.ImportStatusFailed, env.items.get(item.ID).ImportState.Status)

	// The upstream recovers; a fresh queue entry for the same item must
	// drive it through a second attempt.
	env.article.err = nil
	retryQueueItem := model.ImportQueueItem{
		ID:          model.NewImportQueueItemID(),
		FeedItemID:  item.ID,
		AccountID:   item.AccountID,
		URL:         item.URL,
		Status:      model.ImportQueueStatusQueued,
		CreatedTime: env.now,
	}
	require.NoError(t, env.queue.EnqueueImport(context.Background(), retryQueueItem))
	require.NoError(t, env.service.ProcessQueueItem(context.Background(), retryQueueItem))

	stored := env.items.get(item.ID)
	assert.Equal(t, model.ImportStatusCompleted, stored.ImportState.Status)
	assert.Empty(t, stored.ImportState.ErrorMessage)
	assert.Equal(t, 2, env.article.calls)
	assert.Equal(t, 0, env.queue.size())
}

func TestProcessQueueItemMissingItem(t *testing.T) {
	env := newDispatchEnv(t)
	queueItem := model.ImportQueueItem{
		ID:         model.NewImportQueueItemID(),
		FeedItemID: model.NewFeedItemID(),
		AccountID:  "acct-1",
		Status:     model.ImportQueueStatusQueued,
	}
	require.NoError(t, env.queue.EnqueueImport(context.Background(), queueItem))

	require.NoError(t, env.service.ProcessQueueItem(context.Background(), queueItem))
	assert.Equal(t, 0, env.queue.size())
}

func TestProcessQueueItemDispatchByType(t *testing.T) {
	env := newDispatchEnv(t)
	subID := model.NewUserFeedSubscriptionID()

	_, videoQueue := env.addQueuedItem(t, model.FeedItemTypeVideo, model.NewYouTubeChannelFeedSource(subID))
	_, xkcdQueue := env.addQueuedItem(t, model.FeedItemTypeXKCD, model.NewExtensionFeedSource())
	require.NoError(t, env.service.ProcessQueueItem(context.Background(), videoQueue))
	require.NoError(t, env.service.ProcessQueueItem(context.Background(), xkcdQueue))

	assert.Equal(t, 1, env.video.calls)
	assert.Equal(t, 1, env.xkcd.calls)
	assert.Equal(t, 0, env.article.calls)
}

func TestProcessQueueItemIntervalSourceWinsOverType(t *testing.T) {
	env := newDispatchEnv(t)
	subID := model.NewUserFeedSubscriptionID()
	source, err := model.NewIntervalFeedSource(subID, 3600)
	require.NoError(t, err)

	item, queueItem := env.addQueuedItem(t, model.FeedItemTypeWebsite, source)
	require.NoError(t, env.service.ProcessQueueItem(context.Background(), queueItem))

	assert.Equal(t, 1, env.interval.calls)
	assert.Equal(t, 0, env.article.calls)

	stored := env.items.get(item.ID)
	assert.Equal(t, model.ImportStatusCompleted, stored.ImportState.Status)
	assert.True(t, stored.ImportState.ShouldFetch, "interval items are re-fetched after completion")
}

func TestProcessQueueItemUnknownType(t *testing.T) {
	env := newDispatchEnv(t)
	item, queueItem := env.addQueuedItem(t, model.FeedItemType("podcast"), model.NewPWAFeedSource())

	require.NoError(t, env.service.ProcessQueueItem(context.Background(), queueItem))

	stored := env.items.get(item.ID)
	assert.Equal(t, model.ImportStatusFailed, stored.ImportState.Status)
	assert.Contains(t, stored.ImportState.ErrorMessage, "no importer")
}
