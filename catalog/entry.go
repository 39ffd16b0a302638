// Package catalog holds the gallery's image catalog: the reduction of remote
// media records into renderable entries, and the cache that serves them.
package catalog

import (
	"strings"
	"time"
)

// DefaultMaxResults is the ceiling on records requested from the remote search.
const DefaultMaxResults = 400

// Entry is one renderable image derived from a remote media record.
type Entry struct {
	ID              int     `json:"id"`
	PublicID        string  `json:"public_id"`
	Format          string  `json:"format"`
	Width           int     `json:"width"`
	Height          int     `json:"height"`
	ParentFolder    string  `json:"parent_folder,omitempty"`
	AspectRatio     float64 `json:"aspect_ratio,omitempty"`
	BlurPlaceholder string  `json:"blur_placeholder,omitempty"`
}

// Record is a raw media record as returned by the remote search. Pointer
// fields distinguish a missing value from zero.
type Record struct {
	PublicID    string   `json:"public_id"`
	Format      string   `json:"format"`
	Width       *int     `json:"width"`
	Height      *int     `json:"height"`
	AssetFolder string   `json:"asset_folder"`
	Folder      string   `json:"folder"`
	AspectRatio *float64 `json:"aspect_ratio"`
}

// Query describes one remote search.
type Query struct {
	Expression string
	SortField  string
	Descending bool
	MaxResults int
}

// NewQuery returns the search used to populate the catalog: every image under
// folder, sorted by public id descending so enumeration order is stable.
func NewQuery(folder string, maxResults int) Query {
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	expr := "resource_type:image"
	if f := strings.Trim(folder, "/ "); f != "" {
		expr = "folder:" + f + "/*"
	}
	return Query{
		Expression: expr,
		SortField:  "public_id",
		Descending: true,
		MaxResults: maxResults,
	}
}

// Reduce converts raw records into entries. IDs are the record's position in
// records; malformed records (no public id, or no positive height) are
// dropped without renumbering, so surviving IDs may be sparse.
func Reduce(records []Record) (entries []Entry, skipped int) {
	entries = make([]Entry, 0, len(records))
	for i, r := range records {
		if r.PublicID == "" || r.Height == nil || *r.Height <= 0 {
			skipped++
			continue
		}
		e := Entry{
			ID:           i,
			PublicID:     r.PublicID,
			Format:       r.Format,
			Height:       *r.Height,
			ParentFolder: r.AssetFolder,
		}
		if r.Width != nil {
			e.Width = *r.Width
		}
		if e.ParentFolder == "" {
			e.ParentFolder = r.Folder
		}
		if r.AspectRatio != nil {
			e.AspectRatio = *r.AspectRatio
		}
		entries = append(entries, e)
	}
	return entries, skipped
}

// Catalog is one populated snapshot of the remote image set. It is read-only
// once published by the Cache.
type Catalog struct {
	Entries         []Entry
	Skipped         int
	PreviewFailures int
	FetchedAt       time.Time

	index map[int]int
}

func newCatalog(entries []Entry, skipped, previewFailures int, fetchedAt time.Time) *Catalog {
	idx := make(map[int]int, len(entries))
	for i, e := range entries {
		idx[e.ID] = i
	}
	return &Catalog{
		Entries:         entries,
		Skipped:         skipped,
		PreviewFailures: previewFailures,
		FetchedAt:       fetchedAt,
		index:           idx,
	}
}

// Len returns the number of entries.
func (c *Catalog) Len() int {
	return len(c.Entries)
}

// Position returns the index into Entries of the entry with the given ID,
// or -1 if there is none.
func (c *Catalog) Position(id int) int {
	if pos, ok := c.index[id]; ok {
		return pos
	}
	return -1
}

// Find looks up an entry by ID.
func (c *Catalog) Find(id int) (Entry, bool) {
	pos := c.Position(id)
	if pos < 0 {
		return Entry{}, false
	}
	return c.Entries[pos], true
}
