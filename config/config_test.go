package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeRulesFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadRules(t *testing.T) {
	path := writeRulesFile(t, `{
		"categories": [
			{"name": "DIA", "description": "Institutional announcements", "folder_name": "Inbox/DIA"},
			{"name": "Billing", "description": "Invoices and payments", "folder_name": "Inbox/Billing"}
		],
		"llm_instructions": ["You are an email classifier."]
	}`)

	rules, err := LoadRules(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rules.Categories) != 2 {
		t.Fatalf("expected 2 categories, got %d", len(rules.Categories))
	}
	if rules.Categories[0].FolderName != "Inbox/DIA" {
		t.Errorf("unexpected folder %q", rules.Categories[0].FolderName)
	}
	if len(rules.Instructions) != 1 {
		t.Errorf("expected 1 instruction, got %d", len(rules.Instructions))
	}
}

func TestLoadRulesMissingFile(t *testing.T) {
	if _, err := LoadRules(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadRulesInvalidJSON(t *testing.T) {
	path := writeRulesFile(t, "{not json")
	if _, err := LoadRules(path); err == nil {
		t.Error("expected error for invalid JSON")
	}
}

func TestFolderFor(t *testing.T) {
	rules := &Rules{
		Categories: []CategoryRule{
			{Name: "DIA", FolderName: "Inbox/DIA"},
			{Name: "Billing", FolderName: "Inbox/Billing"},
		},
	}

	tests := []struct {
		category string
		want     string
	}{
		{"DIA", "Inbox/DIA"},
		{"Billing", "Inbox/Billing"},
		{"dia", ""},
		{"Unknown", ""},
		{"", ""},
	}
	for _, tc := range tests {
		if got := rules.FolderFor(tc.category); got != tc.want {
			t.Errorf("FolderFor(%q) = %q, want %q", tc.category, got, tc.want)
		}
	}
}

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"CLIENT_STATE", "PORT", "DEDUP_WINDOW", "SIGNATURE_MODEL"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	cfg := Load()
	if cfg.ClientState != "secretClientState" {
		t.Errorf("unexpected default clientState %q", cfg.ClientState)
	}
	if cfg.Port != "8000" {
		t.Errorf("unexpected default port %q", cfg.Port)
	}
	if cfg.DedupWindow != 300*time.Second {
		t.Errorf("unexpected default dedup window %v", cfg.DedupWindow)
	}
	if cfg.SignatureModel == "" {
		t.Error("signature model default missing")
	}
}

func TestLoadDedupWindowFromSeconds(t *testing.T) {
	t.Setenv("DEDUP_WINDOW", "120")
	if cfg := Load(); cfg.DedupWindow != 120*time.Second {
		t.Errorf("expected 120s, got %v", cfg.DedupWindow)
	}

	t.Setenv("DEDUP_WINDOW", "2m")
	if cfg := Load(); cfg.DedupWindow != 2*time.Minute {
		t.Errorf("expected 2m, got %v", cfg.DedupWindow)
	}
}

func TestValidate(t *testing.T) {
	cfg := &Config{
		TenantID:     "tenant",
		ClientID:     "client",
		ClientSecret: "secret",
		TargetEmail:  "user@example.com",
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	cfg.TargetEmail = ""
	if err := cfg.Validate(); err == nil {
		t.Error("expected error without target email")
	}

	cfg.TargetEmail = "user@example.com"
	cfg.ClientSecret = ""
	if err := cfg.Validate(); err == nil {
		t.Error("expected error without client secret")
	}
}
