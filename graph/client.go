package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultBaseURL = "https://graph.microsoft.com/v1.0"

// Client is a thin wrapper around the Microsoft Graph REST API covering the
// operations the organizer needs: reading mail, moving it between folders,
// creating To Do tasks and managing webhook subscriptions.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource
}

// NewClient creates a Graph client using tokens from the given source.
func NewClient(tokens TokenSource) *Client {
	return &Client{
		baseURL: defaultBaseURL,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		tokens: tokens,
	}
}

// Message is an email as returned by Graph, limited to the fields the
// pipeline consumes.
type Message struct {
	ID               string      `json:"id"`
	Subject          string      `json:"subject"`
	Body             MessageBody `json:"body"`
	From             Recipient   `json:"from"`
	ReceivedDateTime string      `json:"receivedDateTime"`
	HasAttachments   bool        `json:"hasAttachments"`
}

type MessageBody struct {
	ContentType string `json:"contentType"`
	Content     string `json:"content"`
}

type Recipient struct {
	EmailAddress EmailAddress `json:"emailAddress"`
}

type EmailAddress struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

// Attachment is an image file attachment. ContentBytes is base64 as Graph
// returns it.
type Attachment struct {
	Name         string `json:"name"`
	ContentType  string `json:"contentType"`
	ContentBytes string `json:"contentBytes"`
}

const messageSelectFields = "id,subject,body,from,receivedDateTime,hasAttachments"

// GetMessage fetches a single message by ID.
func (c *Client) GetMessage(ctx context.Context, userEmail, messageID string) (*Message, error) {
	query := url.Values{"$select": {messageSelectFields}}

	var msg Message
	path := fmt.Sprintf("/users/%s/messages/%s", userEmail, messageID)
	if err := c.do(ctx, http.MethodGet, path, query, nil, &msg); err != nil {
		return nil, fmt.Errorf("fetch message %s: %w", messageID, err)
	}
	return &msg, nil
}

// GetUnreadMessages fetches the 10 most recent unread messages in the Inbox,
// newest first.
func (c *Client) GetUnreadMessages(ctx context.Context, userEmail string) ([]Message, error) {
	query := url.Values{
		"$filter":  {"isRead eq false"},
		"$top":     {"10"},
		"$select":  {messageSelectFields},
		"$orderby": {"receivedDateTime desc"},
	}

	var list struct {
		Value []Message `json:"value"`
	}
	path := fmt.Sprintf("/users/%s/mailFolders/Inbox/messages", userEmail)
	if err := c.do(ctx, http.MethodGet, path, query, nil, &list); err != nil {
		return nil, fmt.Errorf("fetch unread messages: %w", err)
	}
	return list.Value, nil
}

// GetImageAttachments fetches a message's file attachments, keeping only
// images.
func (c *Client) GetImageAttachments(ctx context.Context, userEmail, messageID string) ([]Attachment, error) {
	var list struct {
		Value []struct {
			ODataType    string `json:"@odata.type"`
			Name         string `json:"name"`
			ContentType  string `json:"contentType"`
			ContentBytes string `json:"contentBytes"`
		} `json:"value"`
	}
	path := fmt.Sprintf("/users/%s/messages/%s/attachments", userEmail, messageID)
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &list); err != nil {
		return nil, fmt.Errorf("fetch attachments for %s: %w", messageID, err)
	}

	var images []Attachment
	for _, att := range list.Value {
		if att.ODataType != "#microsoft.graph.fileAttachment" {
			continue
		}
		if !strings.HasPrefix(att.ContentType, "image/") {
			continue
		}
		images = append(images, Attachment{
			Name:         att.Name,
			ContentType:  att.ContentType,
			ContentBytes: att.ContentBytes,
		})
	}
	return images, nil
}

// MoveMessage moves a message into the folder at the given slash-delimited
// path, creating missing folders along the way.
func (c *Client) MoveMessage(ctx context.Context, userEmail, messageID, folderPath string) error {
	folderID, err := c.resolveFolderID(ctx, userEmail, folderPath)
	if err != nil {
		return fmt.Errorf("resolve folder %s: %w", folderPath, err)
	}

	payload := map[string]string{"destinationId": folderID}
	path := fmt.Sprintf("/users/%s/messages/%s/move", userEmail, messageID)
	if err := c.do(ctx, http.MethodPost, path, nil, payload, nil); err != nil {
		return fmt.Errorf("move message %s: %w", messageID, err)
	}
	return nil
}

// resolveFolderID walks a folder path one segment at a time from the mailbox
// root, finding each segment by display name and creating it when absent.
// Find-before-create keeps repeated routing idempotent.
func (c *Client) resolveFolderID(ctx context.Context, userEmail, folderPath string) (string, error) {
	currentID := "msgfolderroot"
	for _, segment := range strings.Split(folderPath, "/") {
		foundID, err := c.findChildFolder(ctx, userEmail, currentID, segment)
		if err != nil {
			return "", err
		}
		if foundID == "" {
			foundID, err = c.createChildFolder(ctx, userEmail, currentID, segment)
			if err != nil {
				return "", err
			}
		}
		currentID = foundID
	}
	return currentID, nil
}

func (c *Client) findChildFolder(ctx context.Context, userEmail, parentID, name string) (string, error) {
	query := url.Values{
		"$filter": {fmt.Sprintf("displayName eq '%s'", name)},
		"$select": {"id"},
	}

	var list struct {
		Value []struct {
			ID string `json:"id"`
		} `json:"value"`
	}
	path := fmt.Sprintf("/users/%s/mailFolders/%s/childFolders", userEmail, parentID)
	if err := c.do(ctx, http.MethodGet, path, query, nil, &list); err != nil {
		return "", fmt.Errorf("find folder %s: %w", name, err)
	}
	if len(list.Value) == 0 {
		return "", nil
	}
	return list.Value[0].ID, nil
}

func (c *Client) createChildFolder(ctx context.Context, userEmail, parentID, name string) (string, error) {
	var created struct {
		ID string `json:"id"`
	}
	path := fmt.Sprintf("/users/%s/mailFolders/%s/childFolders", userEmail, parentID)
	if err := c.do(ctx, http.MethodPost, path, nil, map[string]string{"displayName": name}, &created); err != nil {
		return "", fmt.Errorf("create folder %s: %w", name, err)
	}
	return created.ID, nil
}

// do performs one Graph call, attaching a fresh token and decoding the JSON
// response into out when non-nil.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	token, err := c.tokens.AccessToken(ctx)
	if err != nil {
		return err
	}

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, string(respBody))
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response from %s: %w", path, err)
	}
	return nil
}
