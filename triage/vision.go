package triage

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	genlang "google.golang.org/api/generativelanguage/v1beta"
	"google.golang.org/api/option"
)

const visionPrompt = "Describe this image in detail for the purpose of email context analysis. " +
	"Focus on identifying text, people, objects, and the general mood."

// ImageDescriber turns an image attachment into a text description.
type ImageDescriber interface {
	Describe(ctx context.Context, img ImageInput) (string, error)
}

// GeminiDescriber uses the Gemini vision model to describe attachments.
type GeminiDescriber struct {
	service *genlang.Service
	model   string
}

// NewGeminiDescriber builds a describer for the given model name
// (e.g. "gemini-2.0-flash-lite").
func NewGeminiDescriber(ctx context.Context, apiKey, model string) (*GeminiDescriber, error) {
	service, err := genlang.NewService(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create generativelanguage service: %w", err)
	}
	return &GeminiDescriber{
		service: service,
		model:   "models/" + model,
	}, nil
}

// Describe submits one image together with the fixed vision prompt. The
// payload must be valid base64; a corrupt attachment fails here rather than
// at the provider.
func (d *GeminiDescriber) Describe(ctx context.Context, img ImageInput) (string, error) {
	if img.Data == "" {
		return "", errors.New("attachment has no content")
	}
	if _, err := base64.StdEncoding.DecodeString(img.Data); err != nil {
		return "", fmt.Errorf("decode attachment %s: %w", img.Name, err)
	}

	req := &genlang.GenerateContentRequest{
		Contents: []*genlang.Content{{
			Parts: []*genlang.Part{
				{Text: visionPrompt},
				{InlineData: &genlang.Blob{
					MimeType: img.ContentType,
					Data:     img.Data,
				}},
			},
		}},
	}

	resp, err := d.service.Models.GenerateContent(d.model, req).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("generate content for %s: %w", img.Name, err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", errors.New("vision model returned no content")
	}
	return strings.TrimSpace(resp.Candidates[0].Content.Parts[0].Text), nil
}
