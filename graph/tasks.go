package graph

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"
)

// TaskRequest describes a To Do task to create. ListName empty targets the
// account's default list. DueDate is an ISO date (YYYY-MM-DD) or empty.
// MessageID ties the task to its source email for duplicate detection.
type TaskRequest struct {
	Title     string
	Content   string
	ListName  string
	DueDate   string
	MessageID string
}

// Task is a created (or pre-existing) To Do task.
type Task struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type taskList struct {
	ID                string `json:"id"`
	DisplayName       string `json:"displayName"`
	WellknownListName string `json:"wellknownListName"`
}

// CreateTask creates a task in the requested list, falling back to the
// default list when the named list cannot be obtained. If a task for the same
// source message already exists in the target list, that task is returned and
// no duplicate is created.
func (c *Client) CreateTask(ctx context.Context, userEmail string, req TaskRequest) (*Task, error) {
	var listID string
	if req.ListName != "" {
		id, err := c.getOrCreateTaskListID(ctx, userEmail, req.ListName)
		if err != nil {
			log.Printf("Warning: could not use list '%s', falling back to default: %v", req.ListName, err)
		} else {
			listID = id
		}
	}
	if listID == "" {
		id, err := c.defaultTaskListID(ctx, userEmail)
		if err != nil {
			return nil, fmt.Errorf("resolve default task list: %w", err)
		}
		listID = id
	}

	if req.MessageID != "" {
		existing, err := c.findTaskByMessageID(ctx, userEmail, listID, req.MessageID)
		if err != nil {
			log.Printf("Warning: duplicate-task check failed, creating anyway: %v", err)
		} else if existing != nil {
			log.Printf("Task for message %s already exists (id: %s), skipping creation", req.MessageID, existing.ID)
			return existing, nil
		}
	}

	content := req.Content
	if req.MessageID != "" {
		content += fmt.Sprintf("\n\nMetadata:\nMessageID: %s", req.MessageID)
	}

	payload := map[string]interface{}{
		"title": req.Title,
		"body": map[string]string{
			"content":     content,
			"contentType": "text",
		},
	}

	if req.DueDate != "" {
		// Noon UTC is safe common ground for a date-only deadline.
		payload["dueDateTime"] = map[string]string{
			"dateTime": req.DueDate + "T12:00:00",
			"timeZone": "UTC",
		}

		if reminder, ok := reminderFor(req.DueDate); ok {
			payload["reminderDateTime"] = map[string]string{
				"dateTime": reminder,
				"timeZone": "UTC",
			}
		} else {
			log.Printf("Invalid due date %q, skipping reminder", req.DueDate)
		}
	}

	var created Task
	path := fmt.Sprintf("/users/%s/todo/lists/%s/tasks", userEmail, listID)
	if err := c.do(ctx, http.MethodPost, path, nil, payload, &created); err != nil {
		return nil, fmt.Errorf("create task %q: %w", req.Title, err)
	}
	log.Printf("Created task: '%s' in list (id: %s)", req.Title, listID)
	return &created, nil
}

// reminderFor returns a reminder timestamp 2 days before the due date at
// 14:00 UTC, or ok=false when the due date does not parse.
func reminderFor(dueDate string) (string, bool) {
	due, err := time.Parse("2006-01-02", dueDate)
	if err != nil {
		return "", false
	}
	reminder := due.AddDate(0, 0, -2).Add(14 * time.Hour)
	return reminder.Format("2006-01-02T15:04:05"), true
}

// findTaskByMessageID scans a list for a task whose body carries the
// MessageID metadata marker.
func (c *Client) findTaskByMessageID(ctx context.Context, userEmail, listID, messageID string) (*Task, error) {
	var list struct {
		Value []struct {
			ID    string `json:"id"`
			Title string `json:"title"`
			Body  struct {
				Content string `json:"content"`
			} `json:"body"`
		} `json:"value"`
	}
	path := fmt.Sprintf("/users/%s/todo/lists/%s/tasks", userEmail, listID)
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &list); err != nil {
		return nil, err
	}

	marker := "MessageID: " + messageID
	for _, task := range list.Value {
		if strings.Contains(task.Body.Content, marker) {
			return &Task{ID: task.ID, Title: task.Title}, nil
		}
	}
	return nil, nil
}

func (c *Client) listTaskLists(ctx context.Context, userEmail string) ([]taskList, error) {
	var list struct {
		Value []taskList `json:"value"`
	}
	path := fmt.Sprintf("/users/%s/todo/lists", userEmail)
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &list); err != nil {
		return nil, fmt.Errorf("fetch task lists: %w", err)
	}
	return list.Value, nil
}

// getOrCreateTaskListID resolves a To Do list by display name, creating it
// when absent. Find-before-create keeps this idempotent.
func (c *Client) getOrCreateTaskListID(ctx context.Context, userEmail, name string) (string, error) {
	lists, err := c.listTaskLists(ctx, userEmail)
	if err != nil {
		return "", err
	}
	for _, lst := range lists {
		if lst.DisplayName == name {
			return lst.ID, nil
		}
	}

	log.Printf("Task list '%s' not found, creating...", name)
	var created taskList
	path := fmt.Sprintf("/users/%s/todo/lists", userEmail)
	if err := c.do(ctx, http.MethodPost, path, nil, map[string]string{"displayName": name}, &created); err != nil {
		return "", fmt.Errorf("create task list %s: %w", name, err)
	}
	return created.ID, nil
}

// defaultTaskListID finds the account's wellknown default list, falling back
// to the first list available.
func (c *Client) defaultTaskListID(ctx context.Context, userEmail string) (string, error) {
	lists, err := c.listTaskLists(ctx, userEmail)
	if err != nil {
		return "", err
	}
	for _, lst := range lists {
		if lst.WellknownListName == "default" {
			return lst.ID, nil
		}
	}
	if len(lists) > 0 {
		return lists[0].ID, nil
	}
	return "", fmt.Errorf("no task lists available")
}
