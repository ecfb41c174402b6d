package entity

// Document is the full OCR text of one source unit (a page or a file).
// Documents are never mutated after a TextSource produces them.
type Document struct {
	Name     string `json:"name"`
	OrderKey int    `json:"order_key"`
	Page     int    `json:"page,omitempty"` // 1-based page within Name, 0 when the file is one unit
	Format   string `json:"format"`
	Text     string `json:"-"`
}

// DocumentResult is what one reconstruction strategy produced for one document.
type DocumentResult struct {
	Document  string
	Records   []Record
	Streams   FieldStreams
	Dropped   map[string]int // block drop reason -> count
	Ambiguous int            // blocks whose location fallback had several candidates
}

// DroppedTotal sums the drop counters.
func (r DocumentResult) DroppedTotal() int {
	n := 0
	for _, c := range r.Dropped {
		n += c
	}
	return n
}
