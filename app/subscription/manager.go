// Package subscription manages the lifecycle of an account's feed
// subscriptions: subscribing to urls, unsubscribing, and full account
// wipeout.
package subscription

import (
	"context"
	"log/slog"
	"time"

	"feedloft/app/database"
	"feedloft/app/events"
	"feedloft/app/model"
	"feedloft/app/push"
)

type Manager struct {
	accounts database.AccountStore
	subs     database.SubscriptionStore
	items    database.ItemStore
	queue    database.QueueStore
	eventLog database.EventLogStore
	recorder *events.Recorder
	provider push.Provider
	locks    *push.KeyedLock
	batch    database.BatchWriter
	clock    func() time.Time
}

func NewManager(accounts database.AccountStore, subs database.SubscriptionStore,
	items database.ItemStore, queue database.QueueStore,
	eventLog database.EventLogStore, recorder *events.Recorder,
	provider push.Provider, batch database.BatchWriter) *Manager {
	return &Manager{
		accounts: accounts,
		subs:     subs,
		items:    items,
		queue:    queue,
		eventLog: eventLog,
		recorder: recorder,
		provider: provider,
		locks:    push.NewKeyedLock(),
		batch:    batch,
		clock:    func() time.Time { return time.Now().UTC() },
	}
}

// WithClock substitutes the time source, used by tests.
func (m *Manager) WithClock(clock func() time.Time) *Manager {
	m.clock = clock
	return m
}

// CreateAccount registers a new account keyed by the auth provider uid.
func (m *Manager) CreateAccount(ctx context.Context, rawUID, rawEmail string) (*model.Account, error) {
	accountID, err := model.ParseAccountID(rawUID)
	if err != nil {
		return nil, err
	}
	email, err := model.ParseEmail(rawEmail)
	if err != nil {
		return nil, err
	}

	account := model.Account{ID: accountID, Email: email, CreatedTime: m.clock()}
	if err := m.accounts.CreateAccount(ctx, account); err != nil {
		return nil, err
	}

	slog.Info("Account created", "account", accountID)
	return &account, nil
}

// SubscribeAccountToURL subscribes the account to an RSS feed url,
// registering push delivery before any subscription state is written.
// Re-subscribing an already-active url returns the existing subscription.
func (m *Manager) SubscribeAccountToURL(ctx context.Context, accountID model.AccountID, rawURL string) (*model.UserFeedSubscription, error) {
	feedURL, err := model.ParseURL(rawURL)
	if err != nil {
		return nil, err
	}

	account, err := m.accounts.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, model.NewNotFoundError("account", string(accountID))
	}

	sourceType, identity := classifyFeedURL(feedURL)

	// Provider registration for the same feed is serialized across
	// accounts.
	unlock := m.locks.Lock(identity)
	defer unlock()

	existing, err := m.subs.GetSubscriptionByIdentity(ctx, accountID, sourceType, identity)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.IsActive {
		slog.Debug("Account already subscribed", "account", accountID, "url", feedURL)
		return existing, nil
	}

	// Subscribe is only as successful as both steps: the provider must
	// accept the registration before the subscription row is written.
	if err := m.provider.Subscribe(ctx, feedURL); err != nil {
		return nil, err
	}

	now := m.clock()
	var sub *model.UserFeedSubscription
	if existing != nil {
		if err := m.subs.SetSubscriptionActive(ctx, existing.ID, true, now); err != nil {
			return nil, err
		}
		reactivated := *existing
		reactivated.IsActive = true
		reactivated.UnsubscribedTime = nil
		reactivated.LastUpdatedTime = now
		sub = &reactivated
	} else {
		created := model.UserFeedSubscription{
			ID:               model.NewUserFeedSubscriptionID(),
			AccountID:        accountID,
			SourceType:       sourceType,
			URL:              feedURL,
			ChannelID:        model.YouTubeChannelIDFromFeedURL(feedURL),
			IsActive:         true,
			DeliverySchedule: model.NewImmediateDeliverySchedule(),
			CreatedTime:      now,
			LastUpdatedTime:  now,
		}
		if err := m.subs.InsertSubscription(ctx, created); err != nil {
			return nil, err
		}
		sub = &created
	}

	if err := m.recorder.RecordSubscription(ctx, accountID, sub.ID, "subscribed"); err != nil {
		slog.Warn("Failed to record subscription event", "account", accountID, "error", err)
	}

	slog.Info("Account subscribed", "account", accountID, "url", feedURL, "subscription", sub.ID)
	return sub, nil
}

// CreateIntervalSubscription subscribes the account to a timer feed that
// produces one item every intervalSeconds. Interval feeds have no
// external delivery mechanism, so no provider call is made.
func (m *Manager) CreateIntervalSubscription(ctx context.Context, accountID model.AccountID, intervalSeconds int) (*model.UserFeedSubscription, error) {
	if intervalSeconds < 1 {
		return nil, model.NewValidationError("interval seconds", "must be at least 1")
	}

	account, err := m.accounts.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, model.NewNotFoundError("account", string(accountID))
	}

	now := m.clock()
	sub := model.UserFeedSubscription{
		ID:               model.NewUserFeedSubscriptionID(),
		AccountID:        accountID,
		SourceType:       model.FeedSourceTypeInterval,
		IntervalSeconds:  intervalSeconds,
		IsActive:         true,
		DeliverySchedule: model.NewImmediateDeliverySchedule(),
		CreatedTime:      now,
		LastUpdatedTime:  now,
	}
	if err := m.subs.InsertSubscription(ctx, sub); err != nil {
		return nil, err
	}

	if err := m.recorder.RecordSubscription(ctx, accountID, sub.ID, "subscribed"); err != nil {
		slog.Warn("Failed to record subscription event", "account", accountID, "error", err)
	}

	return &sub, nil
}

// UnsubscribeAccountFromURL deactivates the account's subscription to the
// url and deregisters push delivery once no active subscriber remains.
// Unsubscribing twice is a no-op.
func (m *Manager) UnsubscribeAccountFromURL(ctx context.Context, accountID model.AccountID, rawURL string) error {
	feedURL, err := model.ParseURL(rawURL)
	if err != nil {
		return err
	}

	sourceType, identity := classifyFeedURL(feedURL)
	sub, err := m.subs.GetSubscriptionByIdentity(ctx, accountID, sourceType, identity)
	if err != nil {
		return err
	}
	if sub == nil || !sub.IsActive {
		slog.Debug("No active subscription to unsubscribe", "account", accountID, "url", feedURL)
		return nil
	}

	if err := m.subs.SetSubscriptionActive(ctx, sub.ID, false, m.clock()); err != nil {
		return err
	}

	if err := m.recorder.RecordSubscription(ctx, accountID, sub.ID, "unsubscribed"); err != nil {
		slog.Warn("Failed to record unsubscribe event", "account", accountID, "error", err)
	}

	return m.DeregisterIfUnused(ctx, sourceType, identity)
}

// UnsubscribeFromURL deactivates every account's subscription to the url
// and deregisters push delivery.
func (m *Manager) UnsubscribeFromURL(ctx context.Context, rawURL string) error {
	feedURL, err := model.ParseURL(rawURL)
	if err != nil {
		return err
	}

	sourceType, identity := classifyFeedURL(feedURL)
	subs, err := m.subs.GetActiveSubscriptionsByIdentity(ctx, sourceType, identity)
	if err != nil {
		return err
	}

	now := m.clock()
	for _, sub := range subs {
		if err := m.subs.SetSubscriptionActive(ctx, sub.ID, false, now); err != nil {
			return err
		}
		if err := m.recorder.RecordSubscription(ctx, sub.AccountID, sub.ID, "unsubscribed"); err != nil {
			slog.Warn("Failed to record unsubscribe event", "account", sub.AccountID, "error", err)
		}
	}

	return m.DeregisterIfUnused(ctx, sourceType, identity)
}

// classifyFeedURL resolves a feed url to its subscription source type
// and shared external identity. YouTube channel feeds are keyed on the
// channel id so the same channel dedups across url spellings.
func classifyFeedURL(feedURL string) (model.FeedSourceType, string) {
	if channelID := model.YouTubeChannelIDFromFeedURL(feedURL); channelID != "" {
		return model.FeedSourceTypeYouTubeChannel, channelID
	}
	return model.FeedSourceTypeRSS, feedURL
}

// DeregisterIfUnused removes the push registration for an external feed
// identity once no active subscriber remains. Source types without an
// external delivery mechanism are a no-op success.
func (m *Manager) DeregisterIfUnused(ctx context.Context, sourceType model.FeedSourceType, identity string) error {
	if !sourceType.PushCapable() {
		return nil
	}
	if identity == "" {
		return model.NewValidationError("feed identity", "must not be empty")
	}

	unlock := m.locks.Lock(identity)
	defer unlock()

	remaining, err := m.subs.CountActiveSubscribers(ctx, sourceType, identity)
	if err != nil {
		return err
	}
	if remaining > 0 {
		slog.Debug("Push registration still in use", "identity", identity, "subscribers", remaining)
		return nil
	}

	// The provider is registered on feed urls; youtube identities are
	// channel ids and map back to the canonical channel feed url.
	target := identity
	if sourceType == model.FeedSourceTypeYouTubeChannel {
		target = model.YouTubeChannelFeedURL(identity)
	}
	if err := m.provider.Unsubscribe(ctx, target); err != nil {
		return err
	}

	slog.Info("Push registration removed", "identity", identity)
	return nil
}

// HandleSubscriptionChange reacts to a modified subscription document.
// Only the fresh transition into inactive triggers deregistration; every
// other diff is a no-op so replays and unrelated writes are harmless.
func (m *Manager) HandleSubscriptionChange(ctx context.Context, before, after *model.UserFeedSubscription) error {
	if before == nil || after == nil {
		return model.NewValidationError("subscription change", "both before and after are required")
	}
	if !before.IsActive || after.IsActive {
		return nil
	}

	return m.DeregisterIfUnused(ctx, after.SourceType, after.ExternalIdentity())
}

// WipeoutAccount deletes everything the account owns. Deletions are
// chunked to the store's batch limit and committed strictly
// sequentially; a failed batch stops the run and surfaces how far it
// got, leaving the wipeout resumable.
func (m *Manager) WipeoutAccount(ctx context.Context, accountID model.AccountID) error {
	var refs []database.Ref

	subRefs, err := m.subs.ListSubscriptionRefs(ctx, accountID)
	if err != nil {
		return err
	}
	refs = append(refs, subRefs...)

	itemRefs, err := m.items.ListItemRefs(ctx, accountID)
	if err != nil {
		return err
	}
	refs = append(refs, itemRefs...)

	queueRefs, err := m.queue.ListQueueRefs(ctx, accountID)
	if err != nil {
		return err
	}
	refs = append(refs, queueRefs...)

	eventRefs, err := m.eventLog.ListEventRefs(ctx, accountID)
	if err != nil {
		return err
	}
	refs = append(refs, eventRefs...)

	batches := chunkRefs(refs, database.MaxBatchOps)
	for i, batch := range batches {
		if err := m.batch.DeleteBatch(ctx, batch); err != nil {
			return &model.PartialBatchFailure{
				BatchesCompleted: i,
				BatchesTotal:     len(batches),
				Err:              err,
			}
		}
	}

	if err := m.accounts.DeleteAccount(ctx, accountID); err != nil {
		return err
	}

	slog.Info("Account wiped out", "account", accountID, "documents", len(refs), "batches", len(batches))
	return nil
}

// chunkRefs splits refs into batches of at most size.
func chunkRefs(refs []database.Ref, size int) [][]database.Ref {
	if size < 1 {
		size = 1
	}
	var batches [][]database.Ref
	for len(refs) > 0 {
		n := size
		if len(refs) < n {
			n = len(refs)
		}
		batches = append(batches, refs[:n])
		refs = refs[n:]
	}
	return batches
}
