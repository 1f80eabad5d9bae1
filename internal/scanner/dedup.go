package scanner

// DedupDetector decides whether an item has already been processed, from
// metadata alone. It is shared between the scanner and the orchestrator so
// both apply the same definition of "already processed". No network calls.
type DedupDetector struct {
	marker string
	known  map[string]bool
}

// NewDedupDetector creates a detector for the given processed-marker tag.
// knownIDs is an optional set of externally known processed item ids.
func NewDedupDetector(marker string, knownIDs []string) *DedupDetector {
	known := make(map[string]bool, len(knownIDs))
	for _, id := range knownIDs {
		known[id] = true
	}
	return &DedupDetector{marker: marker, known: known}
}

// Processed reports whether the tags carry the processed marker or the item
// id is in the known-processed set.
func (d *DedupDetector) Processed(itemID string, tags []string) bool {
	if d.known[itemID] {
		return true
	}
	if d.marker == "" {
		return false
	}
	for _, tag := range tags {
		if tag == d.marker {
			return true
		}
	}
	return false
}
