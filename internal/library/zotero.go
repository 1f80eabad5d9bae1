package library

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
)

// ZoteroClient implements Client against a Zotero-compatible web API
type ZoteroClient struct {
	baseURL   string
	apiKey    string
	http      *http.Client
	converter *md.Converter
}

// NewZoteroClient creates a new client for the given library
func NewZoteroClient(cfg Config) (*ZoteroClient, error) {
	base, err := cleanEndpoint(cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint: %w", err)
	}
	if cfg.UserID == "" {
		return nil, fmt.Errorf("user id is required")
	}

	return &ZoteroClient{
		baseURL:   fmt.Sprintf("%s/users/%s", base, cfg.UserID),
		apiKey:    cfg.APIKey,
		http:      &http.Client{Timeout: 60 * time.Second},
		converter: md.NewConverter("", true, nil),
	}, nil
}

// cleanEndpoint validates the endpoint URL and strips a trailing slash
func cleanEndpoint(endpoint string) (string, error) {
	if endpoint == "" {
		return "", fmt.Errorf("endpoint cannot be empty")
	}
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		return "", fmt.Errorf("endpoint must include http:// or https://")
	}
	if _, err := url.Parse(endpoint); err != nil {
		return "", fmt.Errorf("failed to parse endpoint URL: %w", err)
	}
	return strings.TrimRight(endpoint, "/"), nil
}

// itemJSON mirrors the wire shape of a library item
type itemJSON struct {
	Key  string `json:"key"`
	Data struct {
		ItemType    string `json:"itemType"`
		Title       string `json:"title"`
		ParentItem  string `json:"parentItem"`
		ContentType string `json:"contentType"`
		Note        string `json:"note"`
		Tags        []struct {
			Tag string `json:"tag"`
		} `json:"tags"`
	} `json:"data"`
}

func (j itemJSON) toItem() Item {
	item := Item{
		Key:         j.Key,
		ItemType:    j.Data.ItemType,
		Title:       j.Data.Title,
		ParentKey:   j.Data.ParentItem,
		ContentType: j.Data.ContentType,
	}
	for _, t := range j.Data.Tags {
		item.Tags = append(item.Tags, t.Tag)
	}
	return item
}

// ListCollectionItems lists one page of top-level items, ordered by date added
func (c *ZoteroClient) ListCollectionItems(ctx context.Context, collectionID string, offset, limit int) ([]Item, error) {
	path := "/items/top"
	if collectionID != "" {
		path = fmt.Sprintf("/collections/%s/items/top", collectionID)
	}

	// Fixed sort keeps ordering stable across pages within one scan
	query := url.Values{}
	query.Set("start", fmt.Sprintf("%d", offset))
	query.Set("limit", fmt.Sprintf("%d", limit))
	query.Set("sort", "dateAdded")
	query.Set("direction", "asc")

	var raw []itemJSON
	if err := c.getJSON(ctx, path+"?"+query.Encode(), &raw); err != nil {
		return nil, err
	}

	items := make([]Item, 0, len(raw))
	for _, j := range raw {
		items = append(items, j.toItem())
	}
	return items, nil
}

// GetItemChildren returns the child items of an item
func (c *ZoteroClient) GetItemChildren(ctx context.Context, itemID string) ([]Item, error) {
	var raw []itemJSON
	if err := c.getJSON(ctx, fmt.Sprintf("/items/%s/children", itemID), &raw); err != nil {
		return nil, err
	}

	items := make([]Item, 0, len(raw))
	for _, j := range raw {
		items = append(items, j.toItem())
	}
	return items, nil
}

// GetItemContent fetches the text content of an item's first readable
// attachment. PDF attachments are read through the fulltext endpoint; HTML
// snapshots are downloaded and converted to markdown. Returns nil when the
// item has nothing retrievable.
func (c *ZoteroClient) GetItemContent(ctx context.Context, itemID string) (*Content, error) {
	var parent itemJSON
	if err := c.getJSON(ctx, fmt.Sprintf("/items/%s", itemID), &parent); err != nil {
		return nil, err
	}
	item := parent.toItem()

	children, err := c.GetItemChildren(ctx, itemID)
	if err != nil {
		return nil, err
	}

	for _, child := range children {
		if child.ItemType != "attachment" {
			continue
		}

		var text string
		switch child.ContentType {
		case "application/pdf", "text/plain":
			text, err = c.fulltext(ctx, child.Key)
		case "text/html":
			text, err = c.snapshotMarkdown(ctx, child.Key)
		default:
			continue
		}
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(text) == "" {
			continue
		}

		return &Content{Text: text, Title: item.Title, Tags: item.Tags}, nil
	}

	// No readable attachment: a defined outcome, not an error
	return nil, nil
}

// fulltextJSON mirrors the fulltext endpoint response
type fulltextJSON struct {
	Content string `json:"content"`
}

// fulltext returns the indexed text of an attachment, or "" when the
// library has not indexed it (404).
func (c *ZoteroClient) fulltext(ctx context.Context, attachmentKey string) (string, error) {
	var ft fulltextJSON
	err := c.getJSON(ctx, fmt.Sprintf("/items/%s/fulltext", attachmentKey), &ft)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return "", nil
		}
		return "", err
	}
	return ft.Content, nil
}

// snapshotMarkdown downloads an HTML snapshot and converts it to markdown
func (c *ZoteroClient) snapshotMarkdown(ctx context.Context, attachmentKey string) (string, error) {
	body, err := c.getRaw(ctx, fmt.Sprintf("/items/%s/file", attachmentKey))
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return "", nil
		}
		return "", err
	}

	text, err := c.converter.ConvertString(string(body))
	if err != nil {
		return "", fmt.Errorf("converting snapshot to markdown: %w", err)
	}
	return text, nil
}

// noteCreateJSON is the write shape for a new child note
type noteCreateJSON struct {
	ItemType   string              `json:"itemType"`
	ParentItem string              `json:"parentItem"`
	Note       string              `json:"note"`
	Tags       []map[string]string `json:"tags"`
}

// createResponseJSON mirrors the multi-object write response
type createResponseJSON struct {
	Successful map[string]itemJSON `json:"successful"`
	Failed     map[string]struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"failed"`
}

// CreateNote attaches a note to the item in one write call
func (c *ZoteroClient) CreateNote(ctx context.Context, itemID, body string, tags []string) (string, error) {
	note := noteCreateJSON{
		ItemType:   "note",
		ParentItem: itemID,
		Note:       body,
	}
	for _, tag := range tags {
		note.Tags = append(note.Tags, map[string]string{"tag": tag})
	}

	payload, err := json.Marshal([]noteCreateJSON{note})
	if err != nil {
		return "", fmt.Errorf("marshaling note: %w", err)
	}

	respBody, err := c.post(ctx, "/items", payload)
	if err != nil {
		return "", err
	}

	var resp createResponseJSON
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", fmt.Errorf("parsing write response: %w", err)
	}
	for _, f := range resp.Failed {
		return "", &APIError{StatusCode: f.Code, URL: c.baseURL + "/items", Message: f.Message}
	}
	for _, created := range resp.Successful {
		return created.Key, nil
	}
	return "", fmt.Errorf("write response contained no created item")
}

// AddTags merges the given tags into the item's existing tag set
func (c *ZoteroClient) AddTags(ctx context.Context, itemID string, tags []string) error {
	var current itemJSON
	if err := c.getJSON(ctx, fmt.Sprintf("/items/%s", itemID), &current); err != nil {
		return err
	}

	existing := make(map[string]bool, len(current.Data.Tags))
	merged := current.Data.Tags
	for _, t := range current.Data.Tags {
		existing[t.Tag] = true
	}
	for _, tag := range tags {
		if !existing[tag] {
			merged = append(merged, struct {
				Tag string `json:"tag"`
			}{Tag: tag})
		}
	}

	payload, err := json.Marshal(map[string]any{"tags": merged})
	if err != nil {
		return fmt.Errorf("marshaling tags: %w", err)
	}

	return c.patch(ctx, fmt.Sprintf("/items/%s", itemID), payload)
}

func (c *ZoteroClient) getJSON(ctx context.Context, path string, out any) error {
	body, err := c.getRaw(ctx, path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("parsing response from %s: %w", path, err)
	}
	return nil
}

func (c *ZoteroClient) getRaw(ctx context.Context, path string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, path, nil)
}

func (c *ZoteroClient) post(ctx context.Context, path string, payload []byte) ([]byte, error) {
	return c.do(ctx, http.MethodPost, path, payload)
}

func (c *ZoteroClient) patch(ctx context.Context, path string, payload []byte) error {
	_, err := c.do(ctx, http.MethodPatch, path, payload)
	return err
}

func (c *ZoteroClient) do(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	fullURL := c.baseURL + path

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, reader)
	if err != nil {
		return nil, fmt.Errorf("building request for %s: %w", fullURL, err)
	}
	if c.apiKey != "" {
		req.Header.Set("Zotero-API-Key", c.apiKey)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting %s: %w", fullURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response from %s: %w", fullURL, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			URL:        fullURL,
			Message:    strings.TrimSpace(string(body)),
		}
	}

	return body, nil
}
