package gallery

import (
	"html/template"
	"math"
	"net/url"
	"path"
	"strings"

	"github.com/eringen/gallery/catalog"
	"github.com/eringen/gallery/views"
)

// Delivery widths for grid tiles and the full-size photo view.
const (
	ThumbWidth = 720
	FullWidth  = 2560
)

// BuildURL joins a base URL with path segments, ensuring a trailing slash.
func BuildURL(base string, pathSegments ...string) string {
	u, err := url.Parse(base)
	if err != nil {
		return base
	}
	u.Path = path.Join(u.Path, path.Join(pathSegments...))
	if len(pathSegments) > 0 && !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	return u.String()
}

func (a *App) photos(entries []catalog.Entry) []views.Photo {
	out := make([]views.Photo, 0, len(entries))
	for _, e := range entries {
		out = append(out, a.photo(e))
	}
	return out
}

func (a *App) photo(e catalog.Entry) views.Photo {
	p := views.Photo{
		ID:          e.ID,
		PublicID:    e.PublicID,
		ThumbURL:    a.Images.ImageURL(ThumbWidth, e.PublicID, e.Format),
		FullURL:     a.Images.ImageURL(FullWidth, e.PublicID, e.Format),
		Width:       e.Width,
		Height:      e.Height,
		Folder:      e.ParentFolder,
		ThumbHeight: thumbHeight(e),
	}
	// Only trust placeholders that are inline images.
	if strings.HasPrefix(e.BlurPlaceholder, "data:image/") {
		p.Blur = template.URL(e.BlurPlaceholder)
	}
	return p
}

// thumbHeight is the height of the ThumbWidth rendition, falling back to a
// 3:2 landscape box when the dimensions are unknown.
func thumbHeight(e catalog.Entry) int {
	ratio := e.AspectRatio
	if ratio <= 0 && e.Width > 0 && e.Height > 0 {
		ratio = float64(e.Width) / float64(e.Height)
	}
	if ratio <= 0 {
		return ThumbWidth * 2 / 3
	}
	return int(math.Round(ThumbWidth / ratio))
}

func (a *App) categoryOptions(selected []string) []views.Category {
	out := make([]views.Category, 0, len(a.categories))
	for _, cat := range a.categories {
		checked := false
		for _, s := range selected {
			if s == cat.Match {
				checked = true
				break
			}
		}
		out = append(out, views.Category{Label: cat.Label, Match: cat.Match, Checked: checked})
	}
	return out
}
