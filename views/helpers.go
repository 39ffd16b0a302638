package views

import (
	"html/template"
	"net/url"
	"path"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/microcosm-cc/bluemonday"
)

var introPolicy = bluemonday.UGCPolicy()

// SanitizeIntro strips anything but basic formatting and links from the
// configured intro blurb.
func SanitizeIntro(raw string) template.HTML {
	return template.HTML(introPolicy.Sanitize(strings.TrimSpace(raw)))
}

// buildURL joins path segments onto a base URL, ensuring a trailing slash.
func buildURL(base string, pathSegments ...string) string {
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

// GalleryJsonLD produces a Schema.org ImageGallery JSON-LD block listing
// every photo on the page.
func GalleryJsonLD(site Site, photos []Photo) template.JS {
	images := make([]map[string]any, 0, len(photos))
	for _, p := range photos {
		images = append(images, map[string]any{
			"@type":      "ImageObject",
			"contentUrl": p.FullURL,
			"thumbnail":  p.ThumbURL,
			"url":        strings.TrimSuffix(site.URL, "/") + PhotoPath(p.ID),
			"width":      p.Width,
			"height":     p.Height,
		})
	}
	data := map[string]any{
		"@context": "https://schema.org",
		"@type":    "ImageGallery",
		"name":     site.Name,
		"url":      buildURL(site.URL),
		"image":    images,
	}
	if site.Description != "" {
		data["description"] = site.Description
	}
	if site.Author != "" {
		data["author"] = map[string]string{
			"@type": "Person",
			"name":  site.Author,
		}
	}
	// ConfigStd escapes <, > and & so the block cannot close its script tag.
	b, err := sonic.ConfigStd.Marshal(data)
	if err != nil {
		return "{}"
	}
	return template.JS(b)
}
