package graph

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// Subscriptions live at most a few days on the provider side; 2 days stays
// comfortably under the ceiling and is also the renewal extension.
const subscriptionLifetime = 48 * time.Hour

// Subscription is a Graph change-notification subscription.
type Subscription struct {
	ID                 string `json:"id"`
	Resource           string `json:"resource"`
	ChangeType         string `json:"changeType"`
	NotificationURL    string `json:"notificationUrl"`
	ClientState        string `json:"clientState"`
	ExpirationDateTime string `json:"expirationDateTime"`
}

// CreateSubscription registers a push subscription for new messages in the
// user's Inbox. Graph validates notificationURL with a handshake before
// accepting, so the webhook endpoint must already be reachable.
func (c *Client) CreateSubscription(ctx context.Context, userEmail, notificationURL, clientState string) (*Subscription, error) {
	payload := map[string]interface{}{
		"changeType":          "created",
		"notificationUrl":     notificationURL,
		"resource":            fmt.Sprintf("users/%s/mailFolders/Inbox/messages", userEmail),
		"expirationDateTime":  time.Now().UTC().Add(subscriptionLifetime).Format(time.RFC3339),
		"clientState":         clientState,
		"includeResourceData": false,
	}

	var sub Subscription
	if err := c.do(ctx, http.MethodPost, "/subscriptions", nil, payload, &sub); err != nil {
		return nil, fmt.Errorf("create subscription: %w", err)
	}
	return &sub, nil
}

// RenewSubscription extends a subscription's expiry by the fixed lifetime.
func (c *Client) RenewSubscription(ctx context.Context, subscriptionID string) (*Subscription, error) {
	payload := map[string]string{
		"expirationDateTime": time.Now().UTC().Add(subscriptionLifetime).Format(time.RFC3339),
	}

	var sub Subscription
	path := "/subscriptions/" + subscriptionID
	if err := c.do(ctx, http.MethodPatch, path, nil, payload, &sub); err != nil {
		return nil, fmt.Errorf("renew subscription %s: %w", subscriptionID, err)
	}
	return &sub, nil
}

// ListSubscriptions returns all subscriptions owned by this credential.
func (c *Client) ListSubscriptions(ctx context.Context) ([]Subscription, error) {
	var list struct {
		Value []Subscription `json:"value"`
	}
	if err := c.do(ctx, http.MethodGet, "/subscriptions", nil, nil, &list); err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	return list.Value, nil
}
