package gallery

import (
	"encoding/xml"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/eringen/gallery/catalog"
)

type sitemapURLSet struct {
	XMLName    xml.Name     `xml:"urlset"`
	XMLNS      string       `xml:"xmlns,attr"`
	XMLNSImage string       `xml:"xmlns:image,attr"`
	URLs       []sitemapURL `xml:"url"`
}

type sitemapURL struct {
	Loc     string        `xml:"loc"`
	LastMod string        `xml:"lastmod,omitempty"`
	Image   *sitemapImage `xml:"image:image,omitempty"`
}

type sitemapImage struct {
	Loc string `xml:"image:loc"`
}

func (a *App) renderSitemap(c echo.Context, cat *catalog.Catalog) error {
	base := a.Config.URL
	lastMod := cat.FetchedAt.UTC().Format("2006-01-02")
	urls := make([]sitemapURL, 0, cat.Len()+1)
	urls = append(urls, sitemapURL{Loc: BuildURL(base), LastMod: lastMod})
	for _, e := range cat.Entries {
		urls = append(urls, sitemapURL{
			Loc:     BuildURL(base, "p", strconv.Itoa(e.ID)),
			LastMod: lastMod,
			Image:   &sitemapImage{Loc: a.Images.ImageURL(FullWidth, e.PublicID, e.Format)},
		})
	}
	sitemap := sitemapURLSet{
		XMLNS:      "http://www.sitemaps.org/schemas/sitemap/0.9",
		XMLNSImage: "http://www.google.com/schemas/sitemap-image/1.1",
		URLs:       urls,
	}
	c.Response().Header().Set(echo.HeaderContentType, "application/xml; charset=utf-8")
	c.Response().WriteHeader(http.StatusOK)
	if _, err := c.Response().Write([]byte(xml.Header)); err != nil {
		return err
	}
	return xml.NewEncoder(c.Response()).Encode(sitemap)
}
