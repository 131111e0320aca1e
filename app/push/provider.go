// Package push talks to the external push provider that delivers
// new-content webhooks for subscribed feed urls.
package push

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"feedloft/app/model"
)

// Provider registers and deregisters webhook delivery for a feed url.
// Both operations are idempotent on the provider side: subscribing an
// already-subscribed url and unsubscribing an unknown url succeed.
type Provider interface {
	Subscribe(ctx context.Context, feedURL string) error
	Unsubscribe(ctx context.Context, feedURL string) error
}

// Client is the HTTP implementation against a hub-style push provider.
type Client struct {
	httpClient  *http.Client
	endpoint    string
	callbackURL string
	secret      string
	userAgent   string
}

var _ Provider = (*Client)(nil)

func NewClient(httpClient *http.Client, endpoint, callbackURL, secret, userAgent string) *Client {
	return &Client{
		httpClient:  httpClient,
		endpoint:    endpoint,
		callbackURL: callbackURL,
		secret:      secret,
		userAgent:   userAgent,
	}
}

func (c *Client) Subscribe(ctx context.Context, feedURL string) error {
	return c.send(ctx, "subscribe", feedURL)
}

func (c *Client) Unsubscribe(ctx context.Context, feedURL string) error {
	return c.send(ctx, "unsubscribe", feedURL)
}

func (c *Client) send(ctx context.Context, mode, feedURL string) error {
	form := url.Values{}
	form.Set("hub.mode", mode)
	form.Set("hub.topic", feedURL)
	form.Set("hub.callback", c.callbackURL)
	if c.secret != "" {
		form.Set("hub.secret", c.secret)
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(timeoutCtx, "POST", c.endpoint,
		strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", mode, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return model.NewExternalProviderError("push", fmt.Errorf("%s %s: %w", mode, feedURL, err))
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	// 409 means the url is already in the requested state; treat as the
	// idempotent no-op the lifecycle manager expects.
	if resp.StatusCode == http.StatusConflict {
		return nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return model.NewExternalProviderError("push",
			fmt.Errorf("%s %s: HTTP %d", mode, feedURL, resp.StatusCode))
	}

	return nil
}
