package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/sync/singleflight"
)

const (
	tokenCacheKey = "graph_token"

	// Tokens this close to expiry are treated as expired so a request never
	// leaves with a token that dies in flight.
	tokenExpirySkew = 60 * time.Second
)

// AuthError marks a failed credential acquisition. A job that hits one aborts;
// transient Graph errors do not use this type.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string { return "graph auth: " + e.Err.Error() }
func (e *AuthError) Unwrap() error { return e.Err }

// TokenSource supplies bearer tokens for Graph calls.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// TokenConfig holds the app-only (client credentials) settings. TokenURL is
// derived from TenantID when empty.
type TokenConfig struct {
	TenantID     string
	ClientID     string
	ClientSecret string
	TokenURL     string
}

type cachedToken struct {
	AccessToken string    `json:"access_token"`
	Expiry      time.Time `json:"expiry"`
}

// TokenManager acquires application tokens for Microsoft Graph and caches
// them in Redis. The cache is shared read-mostly by every job; refreshing is
// single-flight so concurrent jobs never race multiple refreshes.
type TokenManager struct {
	conf        *clientcredentials.Config
	redisClient *redis.Client
	group       singleflight.Group
	now         func() time.Time
}

// NewTokenManager creates a token manager for the given Azure AD application.
func NewTokenManager(cfg TokenConfig, redisClient *redis.Client) *TokenManager {
	tokenURL := cfg.TokenURL
	if tokenURL == "" {
		tokenURL = fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/token", cfg.TenantID)
	}
	return &TokenManager{
		conf: &clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     tokenURL,
			Scopes:       []string{"https://graph.microsoft.com/.default"},
		},
		redisClient: redisClient,
		now:         time.Now,
	}
}

// AccessToken returns a valid bearer token, from cache when possible.
func (tm *TokenManager) AccessToken(ctx context.Context) (string, error) {
	if token := tm.cached(ctx); token != "" {
		return token, nil
	}

	v, err, _ := tm.group.Do(tokenCacheKey, func() (interface{}, error) {
		// A waiter may arrive just after the winner stored a fresh token.
		if token := tm.cached(ctx); token != "" {
			return token, nil
		}

		log.Println("No valid Graph token cached, acquiring new one...")
		tok, err := tm.conf.Token(ctx)
		if err != nil {
			return nil, err
		}
		tm.store(ctx, tok)
		return tok.AccessToken, nil
	})
	if err != nil {
		return "", &AuthError{Err: err}
	}
	return v.(string), nil
}

func (tm *TokenManager) cached(ctx context.Context) string {
	data, err := tm.redisClient.Get(ctx, tokenCacheKey).Result()
	if err == redis.Nil {
		return ""
	}
	if err != nil {
		log.Printf("Warning: failed to read cached Graph token: %v", err)
		return ""
	}

	var tok cachedToken
	if err := json.Unmarshal([]byte(data), &tok); err != nil {
		log.Printf("Warning: corrupt cached Graph token: %v", err)
		return ""
	}
	if tm.now().After(tok.Expiry.Add(-tokenExpirySkew)) {
		return ""
	}
	return tok.AccessToken
}

func (tm *TokenManager) store(ctx context.Context, tok *oauth2.Token) {
	data, err := json.Marshal(cachedToken{
		AccessToken: tok.AccessToken,
		Expiry:      tok.Expiry,
	})
	if err != nil {
		log.Printf("Warning: failed to marshal Graph token: %v", err)
		return
	}

	ttl := time.Until(tok.Expiry)
	if ttl <= 0 {
		return
	}
	if err := tm.redisClient.Set(ctx, tokenCacheKey, data, ttl).Err(); err != nil {
		log.Printf("Warning: failed to cache Graph token: %v", err)
	}
}
