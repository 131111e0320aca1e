package api

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"feedloft/app/database"
	"feedloft/app/ingest"
	"feedloft/app/model"
)

// maxPushBodyBytes bounds how much of a raw feed document is read.
const maxPushBodyBytes = 2 << 20

func NewHandler(manager SubscriptionManagerInterface, ingestor IngestorInterface,
	items database.ItemStore, pushSecret string) *Handler {
	return &Handler{
		manager:    manager,
		ingestor:   ingestor,
		items:      items,
		pushSecret: pushSecret,
	}
}

// HandlePush receives a push-content delivery and fans it out to
// subscribed accounts. Hubs deliver either the JSON fat-ping shape or
// the raw feed document itself. Replayed deliveries are absorbed
// silently.
func (h *Handler) HandlePush(c *gin.Context) {
	var feedURL string
	var items []ingest.PushItem

	contentType := c.ContentType()
	if strings.Contains(contentType, "xml") {
		data, err := io.ReadAll(io.LimitReader(c.Request.Body, maxPushBodyBytes))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read push body"})
			return
		}
		feedURL, items, err = ingest.ParsePushDocument(data)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid feed document"})
			return
		}
	} else {
		var payload pushPayload
		if err := c.ShouldBindJSON(&payload); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid push payload"})
			return
		}
		feedURL = payload.Status.Feed
		items = payload.Items
	}

	if feedURL == "" {
		feedURL = c.Query("url")
	}
	if feedURL == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "feed url missing from payload"})
		return
	}

	created, err := h.ingestor.IngestPushItems(c.Request.Context(), feedURL, items)
	if err != nil {
		h.writeError(c, "ingest_push", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": len(items), "created": created})
}

// HandleSubscriptionChanged receives a before/after document pair and
// deregisters the push provider on active-to-inactive transitions.
func (h *Handler) HandleSubscriptionChanged(c *gin.Context) {
	var payload subscriptionChangedPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid subscription-changed payload"})
		return
	}

	before, err := payload.Before.toModel()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	after, err := payload.After.toModel()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.manager.HandleSubscriptionChange(c.Request.Context(), before, after); err != nil {
		h.writeError(c, "subscription_changed", err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *Handler) CreateAccount(c *gin.Context) {
	var body struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid account payload"})
		return
	}

	account, err := h.manager.CreateAccount(c.Request.Context(), body.ID, body.Email)
	if err != nil {
		h.writeError(c, "create_account", err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"id": account.ID, "email": account.Email})
}

func (h *Handler) Subscribe(c *gin.Context) {
	var body struct {
		URL string `json:"url"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid subscription payload"})
		return
	}

	sub, err := h.manager.SubscribeAccountToURL(c.Request.Context(), model.AccountID(c.Param("id")), body.URL)
	if err != nil {
		h.writeError(c, "subscribe", err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"id":          sub.ID,
		"source_type": sub.SourceType,
		"url":         sub.URL,
		"is_active":   sub.IsActive,
	})
}

func (h *Handler) CreateIntervalSubscription(c *gin.Context) {
	var body struct {
		IntervalSeconds int `json:"interval_seconds"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid interval payload"})
		return
	}

	sub, err := h.manager.CreateIntervalSubscription(c.Request.Context(), model.AccountID(c.Param("id")), body.IntervalSeconds)
	if err != nil {
		h.writeError(c, "create_interval_subscription", err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"id":               sub.ID,
		"source_type":      sub.SourceType,
		"interval_seconds": sub.IntervalSeconds,
		"is_active":        sub.IsActive,
	})
}

func (h *Handler) Unsubscribe(c *gin.Context) {
	var body struct {
		URL string `json:"url"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid unsubscribe payload"})
		return
	}

	if err := h.manager.UnsubscribeAccountFromURL(c.Request.Context(), model.AccountID(c.Param("id")), body.URL); err != nil {
		h.writeError(c, "unsubscribe", err)
		return
	}

	c.Status(http.StatusNoContent)
}

// UnsubscribeAll deactivates every account's subscription to a url,
// used when an upstream feed shuts down.
func (h *Handler) UnsubscribeAll(c *gin.Context) {
	var body struct {
		URL string `json:"url"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid unsubscribe payload"})
		return
	}

	if err := h.manager.UnsubscribeFromURL(c.Request.Context(), body.URL); err != nil {
		h.writeError(c, "unsubscribe_all", err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *Handler) WipeoutAccount(c *gin.Context) {
	err := h.manager.WipeoutAccount(c.Request.Context(), model.AccountID(c.Param("id")))
	if err != nil {
		var partial *model.PartialBatchFailure
		if errors.As(err, &partial) {
			// The wipeout is resumable: the client retries and already
			// deleted batches are simply gone.
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":             "wipeout incomplete",
				"batches_completed": partial.BatchesCompleted,
				"batches_total":     partial.BatchesTotal,
			})
			return
		}
		h.writeError(c, "wipeout_account", err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *Handler) SaveItem(c *gin.Context) {
	var body struct {
		AccountID string `json:"account_id"`
		URL       string `json:"url"`
		Source    string `json:"source"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid item payload"})
		return
	}

	var source model.FeedSource
	switch body.Source {
	case "", string(model.FeedSourceTypePWA):
		source = model.NewPWAFeedSource()
	case string(model.FeedSourceTypeExtension):
		source = model.NewExtensionFeedSource()
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "source must be pwa or extension"})
		return
	}

	item, created, err := h.ingestor.IngestManualSave(c.Request.Context(), model.AccountID(body.AccountID), body.URL, source)
	if err != nil {
		h.writeError(c, "save_item", err)
		return
	}

	status := http.StatusCreated
	if !created {
		status = http.StatusOK
	}
	c.JSON(status, gin.H{"id": item.ID, "type": item.Type, "created": created})
}

// RefetchItem re-opens the fetch gate for a manual retry.
func (h *Handler) RefetchItem(c *gin.Context) {
	itemID, err := model.ParseFeedItemID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.items.RequestItemImport(c.Request.Context(), itemID, time.Now().UTC()); err != nil {
		h.writeError(c, "refetch_item", err)
		return
	}

	c.Status(http.StatusAccepted)
}

func (h *Handler) ImportPocket(c *gin.Context) {
	var body struct {
		AccountID string               `json:"account_id"`
		Entries   []ingest.PocketEntry `json:"entries"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid pocket import payload"})
		return
	}

	created, err := h.ingestor.IngestPocketExport(c.Request.Context(), model.AccountID(body.AccountID), body.Entries)
	if err != nil {
		h.writeError(c, "import_pocket", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": len(body.Entries), "created": created})
}

func (h *Handler) GetHealth(c *gin.Context) {
	health := map[string]interface{}{
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	if counts, err := h.items.CountItemsByStatus(c.Request.Context()); err == nil {
		total := 0
		for _, n := range counts {
			total += n
		}
		health["items"] = total
	}

	c.JSON(http.StatusOK, health)
}

func (h *Handler) GetStats(c *gin.Context) {
	counts, err := h.items.CountItemsByStatus(c.Request.Context())
	if err != nil {
		h.writeError(c, "get_stats", err)
		return
	}

	byStatus := map[string]int{}
	for status, n := range counts {
		byStatus[string(status)] = n
	}

	c.JSON(http.StatusOK, gin.H{"items_by_status": byStatus})
}

// writeError maps domain errors onto HTTP statuses.
func (h *Handler) writeError(c *gin.Context, operation string, err error) {
	switch {
	case model.IsValidationError(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case model.IsNotFoundError(err):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case model.IsExternalProviderError(err):
		slog.Error("Provider error", "operation", operation, "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "upstream provider error"})
	default:
		slog.Error("Internal error", "operation", operation, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
