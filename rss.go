package gallery

import (
	"encoding/xml"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/eringen/gallery/catalog"
)

type rssXML struct {
	XMLName xml.Name   `xml:"rss"`
	Version string     `xml:"version,attr"`
	Channel rssChannel `xml:"channel"`
}

type rssChannel struct {
	Title         string    `xml:"title"`
	Link          string    `xml:"link"`
	Description   string    `xml:"description"`
	LastBuildDate string    `xml:"lastBuildDate,omitempty"`
	Items         []rssItem `xml:"item"`
}

type rssItem struct {
	Title     string       `xml:"title"`
	Link      string       `xml:"link"`
	Category  string       `xml:"category,omitempty"`
	PubDate   string       `xml:"pubDate"`
	GUID      string       `xml:"guid"`
	Enclosure rssEnclosure `xml:"enclosure"`
}

type rssEnclosure struct {
	URL    string `xml:"url,attr"`
	Length int    `xml:"length,attr"`
	Type   string `xml:"type,attr"`
}

func (a *App) renderRSS(c echo.Context, cat *catalog.Catalog) error {
	base := a.Config.URL
	pubDate := cat.FetchedAt.UTC().Format(time.RFC1123Z)
	items := make([]rssItem, 0, cat.Len())
	for _, e := range cat.Entries {
		photoURL := BuildURL(base, "p", strconv.Itoa(e.ID))
		items = append(items, rssItem{
			Title:    path.Base(e.PublicID),
			Link:     photoURL,
			Category: e.ParentFolder,
			PubDate:  pubDate,
			GUID:     photoURL,
			Enclosure: rssEnclosure{
				URL:  a.Images.ImageURL(FullWidth, e.PublicID, e.Format),
				Type: mimeType(e.Format),
			},
		})
	}
	feed := rssXML{
		Version: "2.0",
		Channel: rssChannel{
			Title:         a.Config.Name,
			Link:          base,
			Description:   a.Config.Description,
			LastBuildDate: pubDate,
			Items:         items,
		},
	}
	c.Response().Header().Set(echo.HeaderContentType, "application/rss+xml; charset=utf-8")
	c.Response().WriteHeader(http.StatusOK)
	if _, err := c.Response().Write([]byte(xml.Header)); err != nil {
		return err
	}
	return xml.NewEncoder(c.Response()).Encode(feed)
}

func mimeType(format string) string {
	switch f := strings.ToLower(format); f {
	case "jpg", "jpeg", "":
		return "image/jpeg"
	case "svg":
		return "image/svg+xml"
	default:
		return "image/" + f
	}
}
