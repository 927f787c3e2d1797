package routing

import (
	"reflect"
	"testing"

	"github.com/ailab-unisabana/mail-organizer/config"
	"github.com/ailab-unisabana/mail-organizer/triage"
)

func testRules() *config.Rules {
	return &config.Rules{
		Categories: []config.CategoryRule{
			{Name: "DIA", Description: "PhD program emails", FolderName: "Inbox/DIA"},
			{Name: "Financial", Description: "Invoices and receipts", FolderName: "Inbox/Invoices"},
			{Name: "Important", Description: "Needs human review", FolderName: "Inbox/Important"},
		},
	}
}

func TestRouteCategorizedActionable(t *testing.T) {
	result := triage.Result{
		Category:     "DIA",
		IsActionable: true,
		TaskTitle:    "Review PhD",
		Summary:      "Summary",
	}

	decision := Route(result, testRules(), "PhD application")

	if decision.FolderPath != "Inbox/DIA" {
		t.Errorf("expected folder Inbox/DIA, got %q", decision.FolderPath)
	}
	if decision.Task == nil {
		t.Fatal("expected a task")
	}
	if decision.Task.Title != "Review PhD" {
		t.Errorf("expected task title 'Review PhD', got %q", decision.Task.Title)
	}
	if decision.Task.ListName != "DIA" {
		t.Errorf("expected list DIA from leaf folder segment, got %q", decision.Task.ListName)
	}
	if decision.Task.Content != "Source Email: PhD application\nSummary: Summary" {
		t.Errorf("unexpected task content: %q", decision.Task.Content)
	}
}

func TestRouteNoCategoryNotActionable(t *testing.T) {
	result := triage.Result{Category: "", IsActionable: false}

	decision := Route(result, testRules(), "hello")

	if decision.FolderPath != "" {
		t.Errorf("expected no folder, got %q", decision.FolderPath)
	}
	if decision.Task != nil {
		t.Error("expected no task")
	}
}

func TestRouteNoCategoryActionableDefaultTitle(t *testing.T) {
	result := triage.Result{
		Category:     "",
		IsActionable: true,
		TaskTitle:    "",
		Summary:      "needs a reply",
	}

	decision := Route(result, testRules(), "Budget question")

	if decision.FolderPath != "" {
		t.Errorf("expected no folder, got %q", decision.FolderPath)
	}
	if decision.Task == nil {
		t.Fatal("expected a task")
	}
	if decision.Task.Title != "Follow up: Budget question" {
		t.Errorf("expected fallback title, got %q", decision.Task.Title)
	}
	if decision.Task.ListName != "" {
		t.Errorf("expected default list, got %q", decision.Task.ListName)
	}
}

func TestRouteUnknownCategoryLeavesMessage(t *testing.T) {
	result := triage.Result{Category: "Nonexistent", IsActionable: false}

	decision := Route(result, testRules(), "x")
	if decision.FolderPath != "" {
		t.Errorf("unknown category should not resolve a folder, got %q", decision.FolderPath)
	}
}

func TestRouteDueDatePassthrough(t *testing.T) {
	result := triage.Result{
		Category:     "Financial",
		IsActionable: true,
		TaskTitle:    "Pay invoice",
		DueDate:      "2026-09-15",
	}

	decision := Route(result, testRules(), "Invoice #42")
	if decision.Task == nil {
		t.Fatal("expected a task")
	}
	if decision.Task.DueDate != "2026-09-15" {
		t.Errorf("expected due date passthrough, got %q", decision.Task.DueDate)
	}
	if decision.Task.ListName != "Invoices" {
		t.Errorf("expected list Invoices, got %q", decision.Task.ListName)
	}
}

func TestRouteDeterministic(t *testing.T) {
	result := triage.Result{
		Category:     "DIA",
		IsActionable: true,
		TaskTitle:    "Review PhD",
		DueDate:      "2026-01-01",
		Summary:      "Summary",
	}
	rules := testRules()

	first := Route(result, rules, "subject")
	for i := 0; i < 10; i++ {
		if got := Route(result, rules, "subject"); !reflect.DeepEqual(first, got) {
			t.Fatalf("route is not deterministic: %+v vs %+v", first, got)
		}
	}
}
