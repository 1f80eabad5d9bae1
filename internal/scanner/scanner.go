package scanner

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"lib2notes/internal/library"
)

// Candidate is an item selected as eligible for processing in this run
type Candidate struct {
	ID            string
	Title         string
	Tags          []string
	HasAttachment bool
}

// Exclusions breaks down how many raw items each filter removed
type Exclusions struct {
	NonPrimary        int
	AlreadyProcessed  int
	MissingAttachment int
	AttachmentUnknown int
}

// Result is the output of one scan pass
type Result struct {
	Candidates []Candidate
	Scanned    int
	Excluded   Exclusions
}

// Config controls one scan pass
type Config struct {
	// CollectionID scopes the scan; empty means the whole library.
	CollectionID string

	// ScanLimit caps how many raw items are examined.
	ScanLimit int

	// TreatedLimit caps how many candidates are returned.
	TreatedLimit int

	// PageSize is the offset/limit batch size for listing.
	PageSize int

	// RequireAttachment, when non-empty, keeps only items that have a
	// child attachment with this content type.
	RequireAttachment string
}

// Scanner discovers eligible items by paginating the source collection and
// applying filters cheapest-first.
type Scanner struct {
	client library.Client
	dedup  *DedupDetector
	logger *zap.Logger
	cfg    Config
}

// New creates a scanner
func New(client library.Client, dedup *DedupDetector, cfg Config, logger *zap.Logger) (*Scanner, error) {
	if cfg.ScanLimit <= 0 {
		return nil, fmt.Errorf("scan limit must be positive")
	}
	if cfg.TreatedLimit <= 0 {
		return nil, fmt.Errorf("treated limit must be positive")
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 50
	}

	return &Scanner{
		client: client,
		dedup:  dedup,
		logger: logger,
		cfg:    cfg,
	}, nil
}

// Scan paginates the collection in deterministic order and returns candidates
// in that order, stopping once ScanLimit raw items have been examined or
// TreatedLimit candidates have been accumulated, whichever happens first.
// Read-only; the only failure modes are listing errors and cancellation.
func (s *Scanner) Scan(ctx context.Context) (*Result, error) {
	result := &Result{}
	offset := 0

	for result.Scanned < s.cfg.ScanLimit && len(result.Candidates) < s.cfg.TreatedLimit {
		pageSize := s.cfg.PageSize
		if remaining := s.cfg.ScanLimit - result.Scanned; remaining < pageSize {
			pageSize = remaining
		}

		items, err := s.client.ListCollectionItems(ctx, s.cfg.CollectionID, offset, pageSize)
		if err != nil {
			return nil, fmt.Errorf("listing items at offset %d: %w", offset, err)
		}
		if len(items) == 0 {
			break
		}
		offset += len(items)

		for _, item := range items {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if result.Scanned >= s.cfg.ScanLimit || len(result.Candidates) >= s.cfg.TreatedLimit {
				break
			}
			result.Scanned++

			if !item.IsPrimary() {
				result.Excluded.NonPrimary++
				continue
			}

			if s.dedup.Processed(item.Key, item.Tags) {
				result.Excluded.AlreadyProcessed++
				continue
			}

			hasAttachment := false
			if s.cfg.RequireAttachment != "" {
				has, err := s.hasAttachment(ctx, item.Key)
				if err != nil {
					// The children call can fail independently of the
					// item. Unknown attachment state excludes the item
					// from this pass; the scan itself goes on.
					s.logger.Warn("Could not determine attachment state, excluding item",
						zap.String("item_id", item.Key),
						zap.Error(err),
					)
					result.Excluded.AttachmentUnknown++
					continue
				}
				if !has {
					result.Excluded.MissingAttachment++
					continue
				}
				hasAttachment = true
			}

			result.Candidates = append(result.Candidates, Candidate{
				ID:            item.Key,
				Title:         item.Title,
				Tags:          item.Tags,
				HasAttachment: hasAttachment,
			})
		}
	}

	s.logger.Info("Scan finished",
		zap.Int("scanned", result.Scanned),
		zap.Int("candidates", len(result.Candidates)),
		zap.Int("excluded_non_primary", result.Excluded.NonPrimary),
		zap.Int("excluded_already_processed", result.Excluded.AlreadyProcessed),
		zap.Int("excluded_missing_attachment", result.Excluded.MissingAttachment),
		zap.Int("excluded_attachment_unknown", result.Excluded.AttachmentUnknown),
	)

	return result, nil
}

func (s *Scanner) hasAttachment(ctx context.Context, itemID string) (bool, error) {
	children, err := s.client.GetItemChildren(ctx, itemID)
	if err != nil {
		return false, err
	}
	for _, child := range children {
		if child.ItemType == "attachment" && child.ContentType == s.cfg.RequireAttachment {
			return true, nil
		}
	}
	return false, nil
}
