package catalog

import (
	"fmt"
	"strings"
)

// Category is a display bucket selected by a substring of ParentFolder.
type Category struct {
	Label string
	Match string
}

// ParseCategories parses "Label=match,Label=match". A bare "match" uses the
// match as its own label.
func ParseCategories(s string) ([]Category, error) {
	var cats []Category
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		label, match, ok := strings.Cut(part, "=")
		if !ok {
			match = label
		}
		label, match = strings.TrimSpace(label), strings.TrimSpace(match)
		if match == "" {
			return nil, fmt.Errorf("category %q: empty match", part)
		}
		if label == "" {
			label = match
		}
		cats = append(cats, Category{Label: label, Match: match})
	}
	return cats, nil
}

// FilterByFolders returns the entries whose ParentFolder contains any of
// matches, in catalog order. No matches means no filtering.
func FilterByFolders(entries []Entry, matches []string) []Entry {
	var active []string
	for _, m := range matches {
		if m != "" {
			active = append(active, m)
		}
	}
	if len(active) == 0 {
		return entries
	}
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		for _, m := range active {
			if strings.Contains(e.ParentFolder, m) {
				out = append(out, e)
				break
			}
		}
	}
	return out
}
