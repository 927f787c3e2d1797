package triage

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/ailab-unisabana/mail-organizer/config"
)

const (
	maxBodyChars   = 15000
	maxPromptChars = 20000

	bodyTruncationMarker  = "\n...(truncated)..."
	totalTruncationMarker = "\n...(truncated total)..."

	cleanupSystemPrompt = "You are an email preprocessing assistant. " +
		"Your task is to identify the signature in the provided email body and remove it. " +
		"Return ONLY the email body content without the signature. " +
		"Do not summarize or change the tone. Just output the clean text."
)

// Pipeline runs the three analysis stages for one email: signature cleanup,
// image description, classification. Each stage degrades independently;
// Analyze always returns a structurally valid Result.
type Pipeline struct {
	chat   ChatCompleter
	vision ImageDescriber
	rules  *config.Rules

	signatureModel      string
	classificationModel string
}

// NewPipeline wires the pipeline to its model backends and category rules.
// vision may be nil, in which case attachments are ignored.
func NewPipeline(chat ChatCompleter, vision ImageDescriber, rules *config.Rules, cfg *config.Config) *Pipeline {
	return &Pipeline{
		chat:                chat,
		vision:              vision,
		rules:               rules,
		signatureModel:      cfg.SignatureModel,
		classificationModel: cfg.ClassificationModel,
	}
}

// Analyze classifies one email. It never fails past this boundary: any model
// error collapses into a stage fallback, and a classification failure yields
// the safe "Important" result so the message lands in a human-reviewed bucket.
func (p *Pipeline) Analyze(ctx context.Context, subject, body string, images []ImageInput) Result {
	cleaned := p.cleanBody(ctx, body)
	descriptions := p.describeImages(ctx, images)

	if len(cleaned) > maxBodyChars {
		cleaned = cleaned[:maxBodyChars] + bodyTruncationMarker
	}

	full := fmt.Sprintf("Subject: %s\n\nBody:\n%s\n\nImage Descriptions:\n%s",
		subject, cleaned, strings.Join(descriptions, "\n\n"))
	if len(full) > maxPromptChars {
		full = full[:maxPromptChars] + totalTruncationMarker
	}

	return p.classify(ctx, full)
}

// cleanBody asks a fast model to strip the signature. Any failure falls back
// to the original body so this stage can never block the pipeline.
func (p *Pipeline) cleanBody(ctx context.Context, body string) string {
	if body == "" {
		return ""
	}

	cleaned, err := p.chat.Complete(ctx, ChatRequest{
		Model:       p.signatureModel,
		System:      cleanupSystemPrompt,
		User:        body,
		Temperature: 0.1,
		MaxTokens:   1024,
	})
	if err != nil {
		log.Printf("Signature cleanup failed, using raw body: %v", err)
		return body
	}
	return strings.TrimSpace(cleaned)
}

// describeImages runs the vision stage over each attachment independently.
// One bad image produces a placeholder for that image only.
func (p *Pipeline) describeImages(ctx context.Context, images []ImageInput) []string {
	if p.vision == nil || len(images) == 0 {
		return nil
	}

	log.Printf("Describing %d image attachment(s)", len(images))
	descriptions := make([]string, 0, len(images))
	for _, img := range images {
		desc, err := p.vision.Describe(ctx, img)
		if err != nil {
			log.Printf("Error describing image %s: %v", img.Name, err)
			descriptions = append(descriptions, fmt.Sprintf("[Image: %s] (Error generating description)", img.Name))
			continue
		}
		descriptions = append(descriptions, fmt.Sprintf("[Image: %s] Description: %s", img.Name, desc))
	}
	return descriptions
}

func (p *Pipeline) classify(ctx context.Context, content string) Result {
	raw, err := p.chat.Complete(ctx, ChatRequest{
		Model:       p.classificationModel,
		System:      p.buildClassificationPrompt(),
		User:        content,
		Temperature: 0.3,
		MaxTokens:   1000,
		JSONMode:    true,
	})
	if err != nil {
		log.Printf("Classification stage failed: %v", err)
		return fallbackResult()
	}

	result, err := parseClassification(raw)
	if err != nil {
		log.Printf("Failed to parse classification response: %v (content: %s)", err, raw)
		return fallbackResult()
	}
	return result
}

// buildClassificationPrompt assembles the system prompt from the configured
// instructions and category definitions.
func (p *Pipeline) buildClassificationPrompt() string {
	var sb strings.Builder
	sb.WriteString(strings.Join(p.rules.Instructions, "\n"))
	sb.WriteString("\n\nAllowed Categories:\n")
	for _, cat := range p.rules.Categories {
		sb.WriteString(fmt.Sprintf("- %s: %s\n", cat.Name, cat.Description))
	}
	sb.WriteString(`
Instructions:
- Analyze the email content and assign it to ONE of the allowed categories.
- If you are UNSURE or if the email does not fit any category clearly, set "category" to null. Do NOT guess.
- Determine if the email requires a manual action/task from the user.

Return ONLY valid JSON.
Structure:
{
    "category": "category_name_or_null",
    "is_actionable": boolean,
    "task_title": "string or null",
    "due_date": "YYYY-MM-DD or null",
    "summary": "short summary including insight from images if relevant"
}`)
	return sb.String()
}

// parseClassification decodes the model's JSON answer, tolerating markdown
// code fences around it.
func parseClassification(content string) (Result, error) {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```json")
		content = strings.TrimPrefix(content, "```")
		content = strings.TrimSuffix(content, "```")
		content = strings.TrimSpace(content)
	}

	var result Result
	if err := json.Unmarshal([]byte(content), &result); err != nil {
		return Result{}, err
	}
	return result, nil
}

func fallbackResult() Result {
	return Result{
		Category:     "Important",
		IsActionable: false,
		Summary:      "Error analyzing email (LLM failure).",
	}
}
