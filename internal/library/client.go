package library

import (
	"context"
	"fmt"
)

// Client defines the interface for reference-library operations
type Client interface {
	// ListCollectionItems returns one page of items in stable order.
	// An empty collectionID means the whole library.
	ListCollectionItems(ctx context.Context, collectionID string, offset, limit int) ([]Item, error)

	// GetItemChildren returns the child items (attachments, notes) of an item.
	GetItemChildren(ctx context.Context, itemID string) ([]Item, error)

	// GetItemContent returns the retrievable text content of an item.
	// A nil Content with a nil error means the item has no content; that is
	// a defined outcome, not a failure.
	GetItemContent(ctx context.Context, itemID string) (*Content, error)

	// CreateNote attaches a note to an item in a single call and returns
	// the created note's key.
	CreateNote(ctx context.Context, itemID, body string, tags []string) (string, error)

	// AddTags adds tags to an item, keeping the ones already present.
	AddTags(ctx context.Context, itemID string, tags []string) error
}

// Item contains item metadata as returned by the library
type Item struct {
	Key         string
	ItemType    string
	Title       string
	Tags        []string
	ContentType string
	ParentKey   string
}

// IsPrimary reports whether the item is a top-level bibliographic entry
// rather than a note or attachment.
func (i Item) IsPrimary() bool {
	return i.ItemType != "note" && i.ItemType != "attachment" && i.ParentKey == ""
}

// Content is the retrievable text of an item
type Content struct {
	Text  string
	Title string
	Tags  []string
}

// APIError represents a non-2xx response from the library API
type APIError struct {
	StatusCode int
	URL        string
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("library API error %d on %s: %s", e.StatusCode, e.URL, e.Message)
	}
	return fmt.Sprintf("library API error %d on %s", e.StatusCode, e.URL)
}

// Config contains library client configuration
type Config struct {
	Endpoint string
	APIKey   string
	UserID   string
}
