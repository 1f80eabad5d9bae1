package scanner

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"lib2notes/internal/library"
)

// fakeClient serves canned items for scan tests
type fakeClient struct {
	items        []library.Item
	children     map[string][]library.Item
	childrenErr  map[string]error
	listCalls    []listCall
	childrenGets []string
}

type listCall struct {
	collection string
	offset     int
	limit      int
}

func (f *fakeClient) ListCollectionItems(ctx context.Context, collectionID string, offset, limit int) ([]library.Item, error) {
	f.listCalls = append(f.listCalls, listCall{collectionID, offset, limit})
	if offset >= len(f.items) {
		return nil, nil
	}
	end := offset + limit
	if end > len(f.items) {
		end = len(f.items)
	}
	return f.items[offset:end], nil
}

func (f *fakeClient) GetItemChildren(ctx context.Context, itemID string) ([]library.Item, error) {
	f.childrenGets = append(f.childrenGets, itemID)
	if err := f.childrenErr[itemID]; err != nil {
		return nil, err
	}
	return f.children[itemID], nil
}

func (f *fakeClient) GetItemContent(ctx context.Context, itemID string) (*library.Content, error) {
	return nil, errors.New("not used in scan tests")
}

func (f *fakeClient) CreateNote(ctx context.Context, itemID, body string, tags []string) (string, error) {
	return "", errors.New("not used in scan tests")
}

func (f *fakeClient) AddTags(ctx context.Context, itemID string, tags []string) error {
	return errors.New("not used in scan tests")
}

func paper(key string, tags ...string) library.Item {
	return library.Item{Key: key, ItemType: "journalArticle", Title: "Title " + key, Tags: tags}
}

func pdfAttachment(key string) library.Item {
	return library.Item{Key: key, ItemType: "attachment", ContentType: "application/pdf", ParentKey: "parent"}
}

func newTestScanner(t *testing.T, client *fakeClient, cfg Config) *Scanner {
	t.Helper()
	s, err := New(client, NewDedupDetector("summarized", nil), cfg, zap.NewNop())
	require.NoError(t, err)
	return s
}

func TestScanStopsAtTreatedLimit(t *testing.T) {
	// Items #1..#10; #1 and #3 carry the processed marker; only #2, #4,
	// #6 have the required attachment. With treated_limit=2 the scan must
	// return [#2, #4] having examined #1..#4 only.
	client := &fakeClient{children: map[string][]library.Item{}, childrenErr: map[string]error{}}
	for i := 1; i <= 10; i++ {
		key := fmt.Sprintf("item-%d", i)
		if i == 1 || i == 3 {
			client.items = append(client.items, paper(key, "summarized"))
		} else {
			client.items = append(client.items, paper(key))
		}
		if i == 2 || i == 4 || i == 6 {
			client.children[key] = []library.Item{pdfAttachment(key + "-pdf")}
		}
	}

	s := newTestScanner(t, client, Config{
		ScanLimit:         10,
		TreatedLimit:      2,
		PageSize:          50,
		RequireAttachment: "application/pdf",
	})

	result, err := s.Scan(context.Background())
	require.NoError(t, err)

	require.Len(t, result.Candidates, 2)
	assert.Equal(t, "item-2", result.Candidates[0].ID)
	assert.Equal(t, "item-4", result.Candidates[1].ID)
	assert.Equal(t, 4, result.Scanned, "scan must stop at treated limit before items 5-10")
	assert.Equal(t, 2, result.Excluded.AlreadyProcessed)
}

func TestScanStopsAtScanLimit(t *testing.T) {
	client := &fakeClient{}
	for i := 1; i <= 20; i++ {
		client.items = append(client.items, paper(fmt.Sprintf("item-%d", i), "summarized"))
	}

	s := newTestScanner(t, client, Config{ScanLimit: 5, TreatedLimit: 10, PageSize: 3})

	result, err := s.Scan(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 5, result.Scanned)
	assert.Empty(t, result.Candidates)
	assert.Equal(t, 5, result.Excluded.AlreadyProcessed)
}

func TestScanExcludesNonPrimaryItems(t *testing.T) {
	client := &fakeClient{items: []library.Item{
		{Key: "n1", ItemType: "note"},
		{Key: "a1", ItemType: "attachment", ContentType: "application/pdf"},
		paper("item-1"),
	}}

	s := newTestScanner(t, client, Config{ScanLimit: 10, TreatedLimit: 10, PageSize: 10})

	result, err := s.Scan(context.Background())
	require.NoError(t, err)

	require.Len(t, result.Candidates, 1)
	assert.Equal(t, "item-1", result.Candidates[0].ID)
	assert.Equal(t, 2, result.Excluded.NonPrimary)
}

func TestScanChildrenErrorExcludesItemOnly(t *testing.T) {
	client := &fakeClient{
		items: []library.Item{paper("item-1"), paper("item-2")},
		children: map[string][]library.Item{
			"item-2": {pdfAttachment("item-2-pdf")},
		},
		childrenErr: map[string]error{
			"item-1": &library.APIError{StatusCode: 503, URL: "u"},
		},
	}

	s := newTestScanner(t, client, Config{
		ScanLimit:         10,
		TreatedLimit:      10,
		PageSize:          10,
		RequireAttachment: "application/pdf",
	})

	result, err := s.Scan(context.Background())
	require.NoError(t, err, "a children failure must not abort the scan")

	require.Len(t, result.Candidates, 1)
	assert.Equal(t, "item-2", result.Candidates[0].ID)
	assert.Equal(t, 1, result.Excluded.AttachmentUnknown)
}

func TestScanPaginatesDeterministically(t *testing.T) {
	client := &fakeClient{}
	for i := 1; i <= 7; i++ {
		client.items = append(client.items, paper(fmt.Sprintf("item-%d", i)))
	}

	s := newTestScanner(t, client, Config{ScanLimit: 7, TreatedLimit: 7, PageSize: 3})

	result, err := s.Scan(context.Background())
	require.NoError(t, err)

	require.Len(t, result.Candidates, 7)
	for i, c := range result.Candidates {
		assert.Equal(t, fmt.Sprintf("item-%d", i+1), c.ID, "candidate order must match listing order")
	}

	require.Len(t, client.listCalls, 3)
	assert.Equal(t, listCall{"", 0, 3}, client.listCalls[0])
	assert.Equal(t, listCall{"", 3, 3}, client.listCalls[1])
	assert.Equal(t, listCall{"", 6, 1}, client.listCalls[2])
}

func TestScanNoAttachmentRequirementSkipsChildrenFetch(t *testing.T) {
	client := &fakeClient{items: []library.Item{paper("item-1")}}

	s := newTestScanner(t, client, Config{ScanLimit: 10, TreatedLimit: 10, PageSize: 10})

	result, err := s.Scan(context.Background())
	require.NoError(t, err)

	require.Len(t, result.Candidates, 1)
	assert.False(t, result.Candidates[0].HasAttachment)
	assert.Empty(t, client.childrenGets, "children are only fetched when an attachment is required")
}

func TestDedupDetector(t *testing.T) {
	t.Run("matches processed marker tag", func(t *testing.T) {
		d := NewDedupDetector("summarized", nil)
		assert.True(t, d.Processed("x", []string{"biology", "summarized"}))
		assert.False(t, d.Processed("x", []string{"biology"}))
		assert.False(t, d.Processed("x", nil))
	})

	t.Run("matches known-processed ids", func(t *testing.T) {
		d := NewDedupDetector("summarized", []string{"item-7"})
		assert.True(t, d.Processed("item-7", nil))
		assert.False(t, d.Processed("item-8", nil))
	})

	t.Run("empty marker never matches tags", func(t *testing.T) {
		d := NewDedupDetector("", nil)
		assert.False(t, d.Processed("x", []string{"summarized"}))
	})
}
