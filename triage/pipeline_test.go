package triage

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/ailab-unisabana/mail-organizer/config"
)

// fakeChat answers cleanup and classification calls separately, recording
// what the classification stage was asked.
type fakeChat struct {
	cleanupReply  string
	cleanupErr    error
	classifyReply string
	classifyErr   error

	classifyInput string
	calls         int
}

func (f *fakeChat) Complete(_ context.Context, req ChatRequest) (string, error) {
	f.calls++
	if req.JSONMode {
		f.classifyInput = req.User
		return f.classifyReply, f.classifyErr
	}
	if f.cleanupErr != nil {
		return "", f.cleanupErr
	}
	if f.cleanupReply != "" {
		return f.cleanupReply, nil
	}
	return req.User, nil
}

type fakeVision struct {
	failFor map[string]bool
}

func (f *fakeVision) Describe(_ context.Context, img ImageInput) (string, error) {
	if f.failFor[img.Name] {
		return "", errors.New("vision backend down")
	}
	return "a chart showing quarterly numbers", nil
}

func testPipeline(chat ChatCompleter, vision ImageDescriber) *Pipeline {
	rules := &config.Rules{
		Categories: []config.CategoryRule{
			{Name: "Work", Description: "Work related", FolderName: "Inbox/Work"},
		},
		Instructions: []string{"You are a helpful assistant.", "Classify emails."},
	}
	cfg := &config.Config{
		SignatureModel:      "openai/gpt-oss-20b",
		ClassificationModel: "openai/gpt-oss-120b",
	}
	return NewPipeline(chat, vision, rules, cfg)
}

func TestAnalyzeHappyPath(t *testing.T) {
	chat := &fakeChat{
		classifyReply: `{"category":"Work","is_actionable":true,"task_title":"Review chart","due_date":"2026-09-01","summary":"Review the chart"}`,
	}
	p := testPipeline(chat, nil)

	result := p.Analyze(context.Background(), "Meeting Update", "Please review the chart.", nil)

	if result.Category != "Work" {
		t.Errorf("expected category Work, got %q", result.Category)
	}
	if !result.IsActionable {
		t.Error("expected actionable result")
	}
	if result.TaskTitle != "Review chart" {
		t.Errorf("unexpected task title %q", result.TaskTitle)
	}
	if result.DueDate != "2026-09-01" {
		t.Errorf("unexpected due date %q", result.DueDate)
	}
}

func TestAnalyzeClassificationFailureFallsBack(t *testing.T) {
	chat := &fakeChat{classifyErr: errors.New("model unavailable")}
	p := testPipeline(chat, nil)

	result := p.Analyze(context.Background(), "subject", "body", nil)

	if result.Category != "Important" {
		t.Errorf("expected fallback category Important, got %q", result.Category)
	}
	if result.IsActionable {
		t.Error("fallback must not be actionable")
	}
	if result.Summary != "Error analyzing email (LLM failure)." {
		t.Errorf("unexpected fallback summary %q", result.Summary)
	}
}

func TestAnalyzeMalformedJSONFallsBack(t *testing.T) {
	chat := &fakeChat{classifyReply: "this is not json at all"}
	p := testPipeline(chat, nil)

	result := p.Analyze(context.Background(), "subject", "body", nil)
	if result.Category != "Important" {
		t.Errorf("expected fallback category Important, got %q", result.Category)
	}
}

func TestAnalyzeNullCategory(t *testing.T) {
	chat := &fakeChat{
		classifyReply: `{"category":null,"is_actionable":false,"task_title":null,"due_date":null,"summary":"nothing to do"}`,
	}
	p := testPipeline(chat, nil)

	result := p.Analyze(context.Background(), "subject", "body", nil)
	if result.Category != "" {
		t.Errorf("null category should decode empty, got %q", result.Category)
	}
	if result.IsActionable {
		t.Error("expected not actionable")
	}
}

func TestCleanupFailureUsesRawBody(t *testing.T) {
	chat := &fakeChat{
		cleanupErr:    errors.New("cleanup model down"),
		classifyReply: `{"category":null,"is_actionable":false,"summary":"s"}`,
	}
	p := testPipeline(chat, nil)

	p.Analyze(context.Background(), "subject", "raw body with signature", nil)

	if !strings.Contains(chat.classifyInput, "raw body with signature") {
		t.Error("classification should have received the raw body after cleanup failure")
	}
}

func TestImageFailureIsolated(t *testing.T) {
	chat := &fakeChat{
		classifyReply: `{"category":null,"is_actionable":false,"summary":"s"}`,
	}
	vision := &fakeVision{failFor: map[string]bool{"bad.png": true}}
	p := testPipeline(chat, vision)

	images := []ImageInput{
		{Name: "good.png", ContentType: "image/png", Data: "aGVsbG8="},
		{Name: "bad.png", ContentType: "image/png", Data: "aGVsbG8="},
	}
	p.Analyze(context.Background(), "subject", "body", images)

	if !strings.Contains(chat.classifyInput, "[Image: good.png] Description: a chart showing quarterly numbers") {
		t.Error("expected description of the good image in the prompt")
	}
	if !strings.Contains(chat.classifyInput, "[Image: bad.png] (Error generating description)") {
		t.Error("expected placeholder for the failed image in the prompt")
	}
}

func TestBodyTruncationBoundary(t *testing.T) {
	chat := &fakeChat{
		classifyReply: `{"category":null,"is_actionable":false,"summary":"s"}`,
	}
	p := testPipeline(chat, nil)

	long := strings.Repeat("a", 16000)
	p.Analyze(context.Background(), "s", long, nil)

	if !strings.Contains(chat.classifyInput, bodyTruncationMarker) {
		t.Error("16k body should carry the truncation marker")
	}
	bodyStart := strings.Index(chat.classifyInput, "Body:\n") + len("Body:\n")
	bodyEnd := strings.Index(chat.classifyInput, bodyTruncationMarker)
	if got := bodyEnd - bodyStart; got > maxBodyChars {
		t.Errorf("truncated body is %d chars, want <= %d", got, maxBodyChars)
	}

	chat.classifyInput = ""
	short := strings.Repeat("b", 14000)
	p.Analyze(context.Background(), "s", short, nil)
	if strings.Contains(chat.classifyInput, bodyTruncationMarker) {
		t.Error("14k body must not be truncated")
	}
	if !strings.Contains(chat.classifyInput, short) {
		t.Error("14k body should pass through untouched")
	}
}

func TestTotalPromptCeiling(t *testing.T) {
	chat := &fakeChat{
		classifyReply: `{"category":null,"is_actionable":false,"summary":"s"}`,
	}
	p := testPipeline(chat, nil)

	subject := strings.Repeat("s", 8000)
	body := strings.Repeat("a", 14500)
	p.Analyze(context.Background(), subject, body, nil)

	if !strings.HasSuffix(chat.classifyInput, totalTruncationMarker) {
		t.Error("assembled prompt over 20k should end with the total truncation marker")
	}
	if len(chat.classifyInput) > maxPromptChars+len(totalTruncationMarker) {
		t.Errorf("assembled prompt is %d chars, want <= %d", len(chat.classifyInput), maxPromptChars+len(totalTruncationMarker))
	}
}

func TestBuildClassificationPromptIncludesCategories(t *testing.T) {
	p := testPipeline(&fakeChat{}, nil)

	prompt := p.buildClassificationPrompt()
	for _, want := range []string{
		"You are a helpful assistant.",
		"- Work: Work related",
		`set "category" to null`,
		"Return ONLY valid JSON.",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestParseClassificationFences(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantCat string
		wantErr bool
	}{
		{
			name:    "plain JSON",
			content: `{"category":"Work","is_actionable":false,"summary":"s"}`,
			wantCat: "Work",
		},
		{
			name:    "fenced JSON",
			content: "```json\n{\"category\":\"Work\",\"is_actionable\":false,\"summary\":\"s\"}\n```",
			wantCat: "Work",
		},
		{
			name:    "broken JSON",
			content: `{"category":`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := parseClassification(tt.content)
			if tt.wantErr {
				if err == nil {
					t.Error("expected parse error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if result.Category != tt.wantCat {
				t.Errorf("expected category %q, got %q", tt.wantCat, result.Category)
			}
		})
	}
}

func TestAnalyzeEmptyBodySkipsCleanup(t *testing.T) {
	chat := &fakeChat{
		classifyReply: `{"category":null,"is_actionable":false,"summary":"s"}`,
	}
	p := testPipeline(chat, nil)

	p.Analyze(context.Background(), "subject only", "", nil)
	if chat.calls != 1 {
		t.Errorf("empty body should skip the cleanup call, got %d calls", chat.calls)
	}
	if !strings.Contains(chat.classifyInput, "Subject: subject only") {
		t.Error("classification prompt should contain the subject")
	}
}
