package gallery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eringen/gallery/catalog"
)

type fakeSource struct {
	mu      sync.Mutex
	records []catalog.Record
	err     error
	calls   int
}

func (f *fakeSource) Search(context.Context, catalog.Query) ([]catalog.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.records, f.err
}

type fakeImages struct{}

func (fakeImages) ImageURL(width int, publicID, format string) string {
	return fmt.Sprintf("https://img.test/w_%d/%s.%s", width, publicID, format)
}

type failing struct{ n int }

func (e failing) Error() string { return "remote down" }
func (e failing) Attempts() int { return e.n }

func intp(v int) *int { return &v }

// Three records: id 0 street, id 1 malformed, id 2 portraits.
func testRecords() []catalog.Record {
	return []catalog.Record{
		{PublicID: "g/c", Format: "jpg", Width: intp(1200), Height: intp(800), AssetFolder: "g/street"},
		{PublicID: "g/b", Format: "png", Width: intp(10)},
		{PublicID: "g/a", Format: "jpg", Width: intp(400), Height: intp(600), AssetFolder: "g/portraits"},
	}
}

func newTestApp(t *testing.T, src *fakeSource, opts ...Option) *App {
	t.Helper()
	cfg := Config{
		Name:         "Field Notes",
		URL:          "https://photos.example.com",
		Intro:        "<p>Hello</p>",
		Categories:   "Street=street,Portraits=portraits",
		APIRateLimit: "100/m",
	}
	cfg.Cloudinary.CloudName = "demo"
	cache := catalog.New(src, nil, catalog.Options{})
	app, err := New(cfg, cache, fakeImages{}, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })
	return app
}

func get(app *App, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	app.Echo.ServeHTTP(rec, req)
	return rec
}

func TestHomeListsEveryWellFormedPhoto(t *testing.T) {
	app := newTestApp(t, &fakeSource{records: testRecords()})

	rec := get(app, "/")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()

	assert.Contains(t, body, "https://img.test/w_720/g/c.jpg")
	assert.Contains(t, body, "https://img.test/w_720/g/a.jpg")
	assert.NotContains(t, body, "g/b.png")
	assert.Contains(t, body, `href="/?photoId=2"`)
	assert.Contains(t, body, "<p>Hello</p>")
	assert.Contains(t, body, "Portraits")
	assert.Equal(t, "public, max-age=3600", rec.Header().Get("Cache-Control"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

func TestHomeFiltersByFolder(t *testing.T) {
	app := newTestApp(t, &fakeSource{records: testRecords()})

	body := get(app, "/?folder=portraits").Body.String()
	assert.Contains(t, body, "g/a.jpg")
	assert.NotContains(t, body, "g/c.jpg")
	assert.Contains(t, body, `value="portraits" checked`)

	body = get(app, "/?folder=portraits&folder=street").Body.String()
	assert.Contains(t, body, "g/a.jpg")
	assert.Contains(t, body, "g/c.jpg")
}

func TestHomeLightbox(t *testing.T) {
	app := newTestApp(t, &fakeSource{records: testRecords()})

	body := get(app, "/?photoId=2").Body.String()
	assert.Contains(t, body, "lightbox")
	assert.Contains(t, body, "https://img.test/w_2560/g/a.jpg")
	assert.Contains(t, body, `href="/p/2/"`)

	rec := get(app, "/?photoId=1")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), `class="lightbox"`)
}

func TestPhotoPage(t *testing.T) {
	app := newTestApp(t, &fakeSource{records: testRecords()})

	rec := get(app, "/p/2/")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `<meta property="og:image" content="https://img.test/w_2560/g/a.jpg">`)
	assert.Contains(t, body, "2 of 2")
	assert.Contains(t, body, `href="/p/0/" rel="prev"`)
	assert.NotContains(t, body, `rel="next"`)
	assert.Contains(t, body, "https://photos.example.com/p/2/")
}

func TestPhotoPageRedirectsToTrailingSlash(t *testing.T) {
	app := newTestApp(t, &fakeSource{records: testRecords()})

	rec := get(app, "/p/2")
	assert.Equal(t, http.StatusMovedPermanently, rec.Code)
	assert.Equal(t, "/p/2/", rec.Header().Get("Location"))
}

func TestPhotoNotFound(t *testing.T) {
	app := newTestApp(t, &fakeSource{records: testRecords()})

	for _, path := range []string{"/p/1/", "/p/99/", "/p/abc/", "/p/-1/"} {
		t.Run(path, func(t *testing.T) {
			rec := get(app, path)
			assert.Equal(t, http.StatusNotFound, rec.Code)
			assert.Contains(t, rec.Body.String(), "Photo not found")
		})
	}

	rec := get(app, "/nope/")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "Page not found")
}

func TestFetchFailureIsServiceUnavailable(t *testing.T) {
	src := &fakeSource{err: failing{n: 3}}
	app := newTestApp(t, src)

	rec := get(app, "/")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "30", rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), "Gallery unavailable")

	rec = get(app, "/api/catalog")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")

	// Failures are not cached: the next request recovers.
	src.mu.Lock()
	src.err = nil
	src.records = testRecords()
	src.mu.Unlock()
	assert.Equal(t, http.StatusOK, get(app, "/").Code)
}

func TestAPICatalog(t *testing.T) {
	app := newTestApp(t, &fakeSource{records: testRecords()})

	rec := get(app, "/api/catalog?folder=street")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Count   int             `json:"count"`
		Entries []catalog.Entry `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Count)
	require.Len(t, resp.Entries, 1)
	assert.Equal(t, 0, resp.Entries[0].ID)
	assert.Equal(t, "g/c", resp.Entries[0].PublicID)
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
}

func TestAPIStatusDoesNotFetch(t *testing.T) {
	src := &fakeSource{records: testRecords()}
	app := newTestApp(t, src)

	var status statusResponse
	rec := get(app, "/api/catalog/status")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.False(t, status.Warm)
	assert.Zero(t, src.calls)

	get(app, "/")
	rec = get(app, "/api/catalog/status")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.True(t, status.Warm)
	assert.Equal(t, 2, status.Entries)
	assert.Equal(t, 1, status.Skipped)
	assert.NotEmpty(t, status.Age)
	assert.Equal(t, 1, src.calls)
}

func TestAPIRateLimit(t *testing.T) {
	src := &fakeSource{records: testRecords()}
	cfg := Config{APIRateLimit: "2/m"}
	cfg.Cloudinary.CloudName = "demo"
	app, err := New(cfg, catalog.New(src, nil, catalog.Options{}), fakeImages{})
	require.NoError(t, err)
	defer app.Close()

	assert.Equal(t, http.StatusOK, get(app, "/api/catalog").Code)
	assert.Equal(t, http.StatusOK, get(app, "/api/catalog").Code)
	rec := get(app, "/api/catalog")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, rec.Body.String(), "rate limit exceeded")

	// Pages are not limited.
	assert.Equal(t, http.StatusOK, get(app, "/").Code)
}

func TestSitemap(t *testing.T) {
	app := newTestApp(t, &fakeSource{records: testRecords()})

	rec := get(app, "/sitemap.xml")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.HasPrefix(body, "<?xml"))
	assert.Contains(t, body, "<loc>https://photos.example.com</loc>")
	assert.Contains(t, body, "<loc>https://photos.example.com/p/0/</loc>")
	assert.Contains(t, body, "<loc>https://photos.example.com/p/2/</loc>")
	assert.NotContains(t, body, "/p/1/")
	assert.Contains(t, body, "<image:loc>https://img.test/w_2560/g/a.jpg</image:loc>")
}

func TestFeed(t *testing.T) {
	app := newTestApp(t, &fakeSource{records: testRecords()})

	rec := get(app, "/feed.xml")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/rss+xml")
	body := rec.Body.String()
	assert.Contains(t, body, "<title>Field Notes</title>")
	assert.Contains(t, body, `<enclosure url="https://img.test/w_2560/g/c.jpg" length="0" type="image/jpeg"></enclosure>`)
	assert.Contains(t, body, "<guid>https://photos.example.com/p/2/</guid>")
}

func TestRobotsAndHealth(t *testing.T) {
	app := newTestApp(t, &fakeSource{records: testRecords()})

	rec := get(app, "/robots.txt")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Sitemap: https://photos.example.com/sitemap.xml")

	rec = get(app, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","catalog":"cold"}`, rec.Body.String())
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
}

func TestMetricsEndpoint(t *testing.T) {
	app := newTestApp(t, &fakeSource{records: testRecords()})
	get(app, "/")

	rec := get(app, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "gallery_http_requests_total")
}

func TestCustomViewsAndRoutes(t *testing.T) {
	app := newTestApp(t, &fakeSource{records: testRecords()},
		WithViews(DefaultViews()),
		WithCustomRoutes(func(a *App) {
			a.Echo.GET("/about/", func(c echo.Context) error {
				return c.String(http.StatusOK, "about")
			})
		}))

	rec := get(app, "/about/")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "about", rec.Body.String())
}

func TestNewRejectsBadCategories(t *testing.T) {
	cfg := Config{Categories: "Street="}
	_, err := New(cfg, catalog.New(&fakeSource{}, nil, catalog.Options{}), fakeImages{})
	assert.Error(t, err)
	assert.False(t, errors.Is(err, catalog.ErrFetchFailed))
}
