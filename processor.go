package main

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/ailab-unisabana/mail-organizer/config"
	"github.com/ailab-unisabana/mail-organizer/dedup"
	"github.com/ailab-unisabana/mail-organizer/graph"
	"github.com/ailab-unisabana/mail-organizer/routing"
	"github.com/ailab-unisabana/mail-organizer/triage"
)

// jobTimeout bounds one background job end to end, LLM calls included.
const jobTimeout = 5 * time.Minute

// Mailbox is the slice of the Graph client the processor needs.
type Mailbox interface {
	GetMessage(ctx context.Context, userEmail, messageID string) (*graph.Message, error)
	GetUnreadMessages(ctx context.Context, userEmail string) ([]graph.Message, error)
	GetImageAttachments(ctx context.Context, userEmail, messageID string) ([]graph.Attachment, error)
	MoveMessage(ctx context.Context, userEmail, messageID, folderPath string) error
	CreateTask(ctx context.Context, userEmail string, req graph.TaskRequest) (*graph.Task, error)
}

// Analyzer classifies one email.
type Analyzer interface {
	Analyze(ctx context.Context, subject, body string, images []triage.ImageInput) triage.Result
}

// Processor runs the per-message triage job: dedup, fetch, analyze, route,
// then move the message and create its follow-up task.
type Processor struct {
	cfg      *config.Config
	rules    *config.Rules
	mailbox  Mailbox
	pipeline Analyzer
	cache    *dedup.Cache
}

// NewProcessor wires the processor to its backends.
func NewProcessor(cfg *config.Config, rules *config.Rules, mailbox Mailbox, pipeline Analyzer, cache *dedup.Cache) *Processor {
	return &Processor{
		cfg:      cfg,
		rules:    rules,
		mailbox:  mailbox,
		pipeline: pipeline,
		cache:    cache,
	}
}

// Dispatch schedules a notification for background processing and returns
// immediately so the webhook handler can respond within the provider's window.
func (p *Processor) Dispatch(n Notification) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()
		p.run(ctx, n.ResourceData.ID)
	}()
}

// ProcessUnread sweeps the current unread inbox through the same job path as
// push notifications and returns how many messages it picked up. Messages
// already handled inside the dedup window are skipped by run.
func (p *Processor) ProcessUnread(ctx context.Context) int {
	messages, err := p.mailbox.GetUnreadMessages(ctx, p.cfg.TargetEmail)
	if err != nil {
		log.Printf("Error fetching unread messages: %v", err)
		return 0
	}

	log.Printf("Unread sweep found %d message(s)", len(messages))
	for _, msg := range messages {
		id := msg.ID
		go func() {
			jobCtx, cancel := context.WithTimeout(context.Background(), jobTimeout)
			defer cancel()
			p.run(jobCtx, id)
		}()
	}
	return len(messages)
}

// run is one triage job. Every step logs under a job ID so interleaved jobs
// stay readable.
func (p *Processor) run(ctx context.Context, messageID string) {
	jobID := uuid.NewString()[:8]

	if messageID == "" {
		log.Printf("[%s] Notification without message ID, skipping", jobID)
		return
	}
	if !p.cache.ShouldProcess(messageID) {
		log.Printf("[%s] Message %s already processed recently, skipping", jobID, messageID)
		return
	}

	msg, err := p.mailbox.GetMessage(ctx, p.cfg.TargetEmail, messageID)
	if err != nil {
		var authErr *graph.AuthError
		if errors.As(err, &authErr) {
			log.Printf("[%s] Authentication failed, aborting job: %v", jobID, err)
			return
		}
		log.Printf("[%s] Error fetching message %s: %v", jobID, messageID, err)
		return
	}
	log.Printf("[%s] Processing '%s' from %s", jobID, msg.Subject, msg.From.EmailAddress.Address)

	images := p.fetchImages(ctx, jobID, msg)
	result := p.pipeline.Analyze(ctx, msg.Subject, msg.Body.Content, images)
	log.Printf("[%s] Classified as category=%q actionable=%t", jobID, result.Category, result.IsActionable)

	decision := routing.Route(result, p.rules, msg.Subject)

	if decision.FolderPath != "" {
		if err := p.mailbox.MoveMessage(ctx, p.cfg.TargetEmail, msg.ID, decision.FolderPath); err != nil {
			log.Printf("[%s] Error moving message to %s: %v", jobID, decision.FolderPath, err)
		} else {
			log.Printf("[%s] Moved message to %s", jobID, decision.FolderPath)
		}
	}

	if decision.Task != nil {
		req := graph.TaskRequest{
			Title:     decision.Task.Title,
			Content:   decision.Task.Content,
			ListName:  decision.Task.ListName,
			DueDate:   decision.Task.DueDate,
			MessageID: msg.ID,
		}
		if _, err := p.mailbox.CreateTask(ctx, p.cfg.TargetEmail, req); err != nil {
			log.Printf("[%s] Error creating task: %v", jobID, err)
		}
	}

	log.Printf("[%s] Done", jobID)
}

// fetchImages loads image attachments when the message has any. An attachment
// fetch failure degrades to text-only analysis.
func (p *Processor) fetchImages(ctx context.Context, jobID string, msg *graph.Message) []triage.ImageInput {
	if !msg.HasAttachments {
		return nil
	}

	attachments, err := p.mailbox.GetImageAttachments(ctx, p.cfg.TargetEmail, msg.ID)
	if err != nil {
		log.Printf("[%s] Error fetching attachments, continuing without images: %v", jobID, err)
		return nil
	}

	images := make([]triage.ImageInput, 0, len(attachments))
	for _, att := range attachments {
		images = append(images, triage.ImageInput{
			Name:        att.Name,
			ContentType: att.ContentType,
			Data:        att.ContentBytes,
		})
	}
	return images
}
