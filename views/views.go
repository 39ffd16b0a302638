// Package views renders the gallery's HTML pages. Pages are html/template
// files embedded in the binary and exposed as templ components, so the
// handlers only ever deal with templ.Component.
package views

import (
	"embed"
	"html/template"
	"net/url"
	"strconv"

	"github.com/a-h/templ"
)

//go:embed templates/*.html
var templateFS embed.FS

// Site carries the per-site values every page needs.
type Site struct {
	Name        string
	URL         string
	Description string
	Author      string
	Intro       template.HTML // already sanitized, see SanitizeIntro
}

// Photo is one image prepared for display.
type Photo struct {
	ID          int
	PublicID    string
	ThumbURL    string       // 720px wide
	FullURL     string       // 2560px wide
	Blur        template.URL // data URL, may be empty
	Width       int
	Height      int
	Folder      string
	ThumbHeight int // height of the 720px rendition
}

// Category is one filter checkbox.
type Category struct {
	Label   string
	Match   string
	Checked bool
}

// HomePage is the grid of every (filtered) photo.
type HomePage struct {
	Site       Site
	Photos     []Photo
	Categories []Category
	Lightbox   *Photo // set when ?photoId names a photo in the grid
	Filter     url.Values
	FetchedAgo string
	JSONLD     template.JS
}

// PhotoPage is the single-photo carousel view.
type PhotoPage struct {
	Site     Site
	Photo    Photo
	Position int // 1-based
	Total    int
	Prev     *Photo
	Next     *Photo
	PageURL  string
}

// ErrorPage is rendered for 404, 500 and 503 responses.
type ErrorPage struct {
	Site    Site
	Status  int
	Title   string
	Message string
}

var (
	homeTmpl  = parse("home.html")
	photoTmpl = parse("photo.html")
	errorTmpl = parse("error.html")
)

func parse(page string) *template.Template {
	return template.Must(template.New("layout.html").
		Funcs(funcs).
		ParseFS(templateFS, "templates/layout.html", "templates/"+page))
}

var funcs = template.FuncMap{
	"photoPath": PhotoPath,
	"gridHref":  gridHref,
}

// PhotoPath is the canonical path of a photo page.
func PhotoPath(id int) string {
	return "/p/" + strconv.Itoa(id) + "/"
}

// gridHref links back to the grid with the current filter kept. A
// non-negative photoID opens the lightbox on that photo.
func gridHref(filter url.Values, photoID int) string {
	q := url.Values{}
	for _, f := range filter["folder"] {
		q.Add("folder", f)
	}
	if photoID >= 0 {
		q.Set("photoId", strconv.Itoa(photoID))
	}
	if len(q) == 0 {
		return "/"
	}
	return "/?" + q.Encode()
}

// Home renders the grid page.
func Home(p HomePage) templ.Component {
	return templ.FromGoHTML(homeTmpl, p)
}

// PhotoView renders the carousel page.
func PhotoView(p PhotoPage) templ.Component {
	return templ.FromGoHTML(photoTmpl, p)
}

// Error renders a status page.
func Error(p ErrorPage) templ.Component {
	return templ.FromGoHTML(errorTmpl, p)
}
