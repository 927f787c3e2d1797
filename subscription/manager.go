package subscription

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/ailab-unisabana/mail-organizer/graph"
)

// API is the slice of the Graph client the manager needs.
type API interface {
	CreateSubscription(ctx context.Context, userEmail, notificationURL, clientState string) (*graph.Subscription, error)
	RenewSubscription(ctx context.Context, subscriptionID string) (*graph.Subscription, error)
	ListSubscriptions(ctx context.Context) ([]graph.Subscription, error)
}

// RetryPolicy bounds subscription-creation retries. The delay before attempt
// n is BaseDelay × n. Sleep is injectable for tests; nil means time.Sleep.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Sleep       func(time.Duration)
}

// DefaultRetryPolicy matches the provider's practical startup window: the
// webhook may not be reachable the instant the process boots.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 5,
		BaseDelay:   5 * time.Second,
	}
}

func (p RetryPolicy) wait(attempt int) {
	sleep := p.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}
	sleep(p.BaseDelay * time.Duration(attempt))
}

// Manager owns the lifecycle of the single push subscription targeting the
// inbox: creation at startup and renewal on demand. Renewal is triggered by
// an external scheduler hitting /renew rather than an in-process timer, so
// the schedule survives restarts.
type Manager struct {
	api         API
	userEmail   string
	clientState string
	policy      RetryPolicy

	mu      sync.Mutex
	current *graph.Subscription
}

// NewManager creates a subscription manager for one mailbox.
func NewManager(api API, userEmail, clientState string, policy RetryPolicy) *Manager {
	return &Manager{
		api:         api,
		userEmail:   userEmail,
		clientState: clientState,
		policy:      policy,
	}
}

// Create registers the inbox subscription, retrying with linear backoff.
// Exhausting all attempts returns the last error; the caller decides whether
// to keep running without push delivery.
func (m *Manager) Create(ctx context.Context, notificationURL string) (*graph.Subscription, error) {
	var lastErr error
	for attempt := 1; attempt <= m.policy.MaxAttempts; attempt++ {
		log.Printf("Subscription attempt %d/%d...", attempt, m.policy.MaxAttempts)

		sub, err := m.api.CreateSubscription(ctx, m.userEmail, notificationURL, m.clientState)
		if err == nil {
			log.Printf("Subscribed! ID: %s, expires: %s", sub.ID, sub.ExpirationDateTime)
			m.mu.Lock()
			m.current = sub
			m.mu.Unlock()
			return sub, nil
		}

		lastErr = err
		log.Printf("Error creating subscription (attempt %d): %v", attempt, err)
		if attempt < m.policy.MaxAttempts {
			m.policy.wait(attempt)
		}
	}
	return nil, lastErr
}

// Current returns the subscription created by this process, or nil.
func (m *Manager) Current() *graph.Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// RenewAll renews every subscription owned by this credential and returns
// how many succeeded. One failed renewal does not block the others.
func (m *Manager) RenewAll(ctx context.Context) int {
	subs, err := m.api.ListSubscriptions(ctx)
	if err != nil {
		log.Printf("Error listing subscriptions for renewal: %v", err)
		return 0
	}

	renewed := 0
	for _, sub := range subs {
		log.Printf("Renewing subscription %s (expires %s)...", sub.ID, sub.ExpirationDateTime)
		if _, err := m.api.RenewSubscription(ctx, sub.ID); err != nil {
			log.Printf("Error renewing subscription %s: %v", sub.ID, err)
			continue
		}
		renewed++
	}
	return renewed
}
