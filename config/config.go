package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all runtime settings. Values come from the environment (a .env
// file is loaded by main before this runs).
type Config struct {
	// Microsoft Graph / Azure AD
	TenantID     string
	ClientID     string
	ClientSecret string
	TargetEmail  string

	// Shared secret embedded in subscriptions and echoed back in notifications
	ClientState string

	// Public base URL the provider POSTs notifications to. Empty means no
	// subscription is created at startup (e.g. first boot on Cloud Run).
	WebhookURL string

	// LLM backends
	GroqAPIKey          string
	GoogleAPIKey        string
	SignatureModel      string
	ClassificationModel string
	VisionModel         string

	Port        string
	RedisURL    string
	RulesPath   string
	DedupWindow time.Duration
}

// CategoryRule maps an LLM category name to a slash-delimited mail folder path.
type CategoryRule struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	FolderName  string `json:"folder_name"`
}

// Rules is the read-only classification configuration loaded from config.json.
type Rules struct {
	Categories   []CategoryRule `json:"categories"`
	Instructions []string       `json:"llm_instructions"`
}

// Load builds a Config from environment variables, applying defaults where
// the variable is unset.
func Load() *Config {
	return &Config{
		TenantID:            getEnv("TENANT_ID", ""),
		ClientID:            getEnv("CLIENT_ID", ""),
		ClientSecret:        getEnv("CLIENT_SECRET", ""),
		TargetEmail:         getEnv("TARGET_EMAIL", ""),
		ClientState:         getEnv("CLIENT_STATE", "secretClientState"),
		WebhookURL:          getEnv("WEBHOOK_URL", ""),
		GroqAPIKey:          getEnv("GROQ_API_KEY", ""),
		GoogleAPIKey:        getEnv("GOOGLE_API_KEY", ""),
		SignatureModel:      getEnv("SIGNATURE_MODEL", "openai/gpt-oss-20b"),
		ClassificationModel: getEnv("CLASSIFICATION_MODEL", "openai/gpt-oss-120b"),
		VisionModel:         getEnv("VISION_MODEL", "gemini-2.0-flash-lite"),
		Port:                getEnv("PORT", "8000"),
		RedisURL:            getEnv("REDIS_URL", "localhost:6379"),
		RulesPath:           getEnv("CONFIG_PATH", "config.json"),
		DedupWindow:         getEnvAsDuration("DEDUP_WINDOW", 300*time.Second),
	}
}

// Validate checks the settings that the service cannot run without.
func (c *Config) Validate() error {
	if c.TargetEmail == "" {
		return fmt.Errorf("TARGET_EMAIL is required")
	}
	if c.TenantID == "" || c.ClientID == "" || c.ClientSecret == "" {
		return fmt.Errorf("TENANT_ID, CLIENT_ID and CLIENT_SECRET are required")
	}
	return nil
}

// LoadRules reads the category configuration from a JSON file.
func LoadRules(path string) (*Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file %s: %w", path, err)
	}
	var rules Rules
	if err := json.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("parse rules file %s: %w", path, err)
	}
	return &rules, nil
}

// FolderFor maps a category name to its configured folder path. Exact name
// match only; unknown or empty categories map to "" (leave in Inbox).
func (r *Rules) FolderFor(category string) string {
	if category == "" {
		return ""
	}
	for _, cat := range r.Categories {
		if cat.Name == category {
			return cat.FolderName
		}
	}
	return ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		if secs, err := strconv.Atoi(value); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultValue
}
