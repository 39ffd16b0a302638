package gallery

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/eringen/gallery/catalog"
	"github.com/eringen/gallery/views"
)

func (a *App) handleHome(c echo.Context) error {
	cat, err := a.Catalog.Catalog(c.Request().Context())
	if err != nil {
		return err
	}
	folders := c.QueryParams()["folder"]
	photos := a.photos(catalog.FilterByFolders(cat.Entries, folders))

	page := views.HomePage{
		Site:       a.site,
		Photos:     photos,
		Categories: a.categoryOptions(folders),
		Filter:     url.Values{"folder": folders},
		FetchedAgo: humanize.Time(cat.FetchedAt),
		JSONLD:     views.GalleryJsonLD(a.site, photos),
	}
	// An unknown or malformed photoId just shows the grid.
	if raw := c.QueryParam("photoId"); raw != "" {
		if id, err := strconv.Atoi(raw); err == nil {
			if e, ok := cat.Find(id); ok {
				p := a.photo(e)
				page.Lightbox = &p
			}
		}
	}
	return Render(c, a.Views.Home(page))
}

func (a *App) handlePhoto(c echo.Context) error {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return fmt.Errorf("%w: %q", catalog.ErrNotFound, c.Param("id"))
	}
	cat, err := a.Catalog.Catalog(c.Request().Context())
	if err != nil {
		return err
	}
	pos := cat.Position(id)
	if pos < 0 {
		return fmt.Errorf("%w: id %d", catalog.ErrNotFound, id)
	}

	page := views.PhotoPage{
		Site:     a.site,
		Photo:    a.photo(cat.Entries[pos]),
		Position: pos + 1,
		Total:    cat.Len(),
		PageURL:  BuildURL(a.Config.URL, "p", strconv.Itoa(id)),
	}
	if pos > 0 {
		p := a.photo(cat.Entries[pos-1])
		page.Prev = &p
	}
	if pos < cat.Len()-1 {
		p := a.photo(cat.Entries[pos+1])
		page.Next = &p
	}
	return Render(c, a.Views.Photo(page))
}

type catalogResponse struct {
	Count     int             `json:"count"`
	FetchedAt time.Time       `json:"fetched_at"`
	Entries   []catalog.Entry `json:"entries"`
}

func (a *App) handleAPICatalog(c echo.Context) error {
	cat, err := a.Catalog.Catalog(c.Request().Context())
	if err != nil {
		return err
	}
	entries := catalog.FilterByFolders(cat.Entries, c.QueryParams()["folder"])
	return c.JSON(http.StatusOK, catalogResponse{
		Count:     len(entries),
		FetchedAt: cat.FetchedAt,
		Entries:   entries,
	})
}

type statusResponse struct {
	Warm            bool       `json:"warm"`
	Entries         int        `json:"entries"`
	Skipped         int        `json:"skipped"`
	PreviewFailures int        `json:"preview_failures"`
	FetchedAt       *time.Time `json:"fetched_at,omitempty"`
	Age             string     `json:"age,omitempty"`
	AgeSeconds      float64    `json:"age_seconds,omitempty"`
}

// handleAPIStatus reports on the cached catalog without triggering a fetch.
func (a *App) handleAPIStatus(c echo.Context) error {
	cat := a.Catalog.Peek()
	if cat == nil {
		return c.JSON(http.StatusOK, statusResponse{})
	}
	fetched := cat.FetchedAt
	return c.JSON(http.StatusOK, statusResponse{
		Warm:            true,
		Entries:         cat.Len(),
		Skipped:         cat.Skipped,
		PreviewFailures: cat.PreviewFailures,
		FetchedAt:       &fetched,
		Age:             humanize.Time(fetched),
		AgeSeconds:      time.Since(fetched).Seconds(),
	})
}

func (a *App) handleHealth(c echo.Context) error {
	state := "cold"
	if a.Catalog.Peek() != nil {
		state = "warm"
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok", "catalog": state})
}

func (a *App) handleSitemap(c echo.Context) error {
	cat, err := a.Catalog.Catalog(c.Request().Context())
	if err != nil {
		return err
	}
	return a.renderSitemap(c, cat)
}

func (a *App) handleFeed(c echo.Context) error {
	cat, err := a.Catalog.Catalog(c.Request().Context())
	if err != nil {
		return err
	}
	return a.renderRSS(c, cat)
}

func (a *App) handleFavicon(c echo.Context) error {
	return c.File(a.Config.StaticDir + "/favicon.svg")
}

func (a *App) handleRobots(c echo.Context) error {
	body := "User-agent: *\nAllow: /\nDisallow: /api/\n\nSitemap: " +
		strings.TrimSuffix(a.Config.URL, "/") + "/sitemap.xml\n"
	return c.String(http.StatusOK, body)
}

func (a *App) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	var he *echo.HTTPError
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, catalog.ErrFetchFailed):
		code = http.StatusServiceUnavailable
	case errors.As(err, &he):
		code = he.Code
	}

	path := c.Request().URL.Path
	if code >= 500 {
		a.Log.Error("server error",
			zap.Int("status", code),
			zap.String("path", path),
			zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			zap.Error(err))
	}
	if code == http.StatusServiceUnavailable {
		c.Response().Header().Set("Retry-After", "30")
	}

	if strings.HasPrefix(path, "/api/") {
		if he == nil {
			he = echo.NewHTTPError(code, http.StatusText(code))
		}
		_ = c.JSON(code, map[string]any{"error": he.Message})
		return
	}

	page := views.ErrorPage{Site: a.site, Status: code}
	switch {
	case code == http.StatusNotFound && strings.HasPrefix(path, "/p/"):
		page.Title, page.Message = "Photo not found", "There is no photo with that number in the gallery."
	case code == http.StatusNotFound:
		page.Title, page.Message = "Page not found", "The page you are looking for does not exist."
	case code == http.StatusServiceUnavailable:
		page.Title, page.Message = "Gallery unavailable", "The photo library could not be reached. Please try again shortly."
	case code >= 500:
		page.Title, page.Message = "Something went wrong", "An unexpected error occurred."
	default:
		a.Echo.DefaultHTTPErrorHandler(err, c)
		return
	}
	_ = RenderStatus(c, code, a.Views.Error(page))
}
