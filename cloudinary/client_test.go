package cloudinary

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eringen/gallery/catalog"
)

const searchFixture = `{
  "total_count": 3,
  "resources": [
    {"public_id": "gallery/c", "format": "jpg", "width": 1200, "height": 800, "asset_folder": "gallery/street", "aspect_ratio": 1.5},
    {"public_id": "gallery/b", "format": "png", "width": 600, "height": null, "asset_folder": "gallery/street"},
    {"public_id": "gallery/a", "format": "jpg", "width": 400, "height": 600, "folder": "gallery/portraits"}
  ]
}`

func testClient(t *testing.T, url string) *Client {
	t.Helper()
	c, err := New(Config{
		CloudName:    "demo",
		APIKey:       "key",
		APISecret:    "secret",
		APIBase:      url,
		DeliveryBase: url,
		RetryWait:    time.Millisecond,
		RetryMaxWait: 5 * time.Millisecond,
	}, nil)
	require.NoError(t, err)
	return c
}

func TestNewRequiresCloudName(t *testing.T) {
	_, err := New(Config{}, nil)
	assert.ErrorIs(t, err, ErrMissingCloudName)
}

func TestSearch(t *testing.T) {
	var got searchRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1_1/demo/resources/search", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "key", user)
		assert.Equal(t, "secret", pass)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(searchFixture))
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	recs, err := c.Search(context.Background(), catalog.NewQuery("gallery", 0))
	require.NoError(t, err)

	assert.Equal(t, "folder:gallery/*", got.Expression)
	assert.Equal(t, 400, got.MaxResults)
	assert.Equal(t, []map[string]string{{"public_id": "desc"}}, got.SortBy)

	require.Len(t, recs, 3)
	assert.Equal(t, "gallery/c", recs[0].PublicID)
	require.NotNil(t, recs[0].Height)
	assert.Equal(t, 800, *recs[0].Height)
	assert.Nil(t, recs[1].Height)
	assert.Equal(t, "gallery/portraits", recs[2].Folder)

	entries, skipped := catalog.Reduce(recs)
	assert.Equal(t, 1, skipped)
	require.Len(t, entries, 2)
	assert.Equal(t, 0, entries[0].ID)
	assert.Equal(t, 2, entries[1].ID)
}

func TestSearchRequiresCredentials(t *testing.T) {
	c, err := New(Config{CloudName: "demo"}, nil)
	require.NoError(t, err)
	_, err = c.Search(context.Background(), catalog.NewQuery("", 0))
	assert.ErrorIs(t, err, ErrMissingCredentials)
}

func TestSearchRetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(searchFixture))
	}))
	defer srv.Close()

	recs, err := testClient(t, srv.URL).Search(context.Background(), catalog.NewQuery("gallery", 0))
	require.NoError(t, err)
	assert.Len(t, recs, 3)
	assert.EqualValues(t, 3, hits.Load())
}

func TestSearchRetriesHungAttempt(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(searchFixture))
	}))
	defer srv.Close()

	c, err := New(Config{
		CloudName:    "demo",
		APIKey:       "key",
		APISecret:    "secret",
		APIBase:      srv.URL,
		Timeout:      50 * time.Millisecond,
		RetryWait:    time.Millisecond,
		RetryMaxWait: 5 * time.Millisecond,
	}, nil)
	require.NoError(t, err)

	recs, err := c.Search(context.Background(), catalog.NewQuery("gallery", 0))
	require.NoError(t, err)
	assert.Len(t, recs, 3)
	assert.EqualValues(t, 2, hits.Load())
}

func TestSearchGivesUpAfterMaxAttempts(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"backend exploded"}}`))
	}))
	defer srv.Close()

	_, err := testClient(t, srv.URL).Search(context.Background(), catalog.NewQuery("gallery", 0))
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
	assert.Equal(t, "backend exploded", apiErr.Message)
	assert.Equal(t, 3, apiErr.Attempts())
	assert.True(t, apiErr.Temporary())
	assert.EqualValues(t, 3, hits.Load())
}

func TestSearchDoesNotRetryClientErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"Invalid api_key"}}`))
	}))
	defer srv.Close()

	_, err := testClient(t, srv.URL).Search(context.Background(), catalog.NewQuery("gallery", 0))
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Contains(t, apiErr.Error(), "Invalid api_key")
	assert.False(t, apiErr.Temporary())
	assert.EqualValues(t, 1, hits.Load())
}

func TestPreview(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 32, 16))
	for x := 0; x < 32; x++ {
		for y := 0; y < 16; y++ {
			img.Set(x, y, color.RGBA{R: 200, G: uint8(y * 10), B: 40, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))

	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(buf.Bytes())
	}))
	defer srv.Close()

	data, err := testClient(t, srv.URL).Preview(context.Background(), "gallery/a", "jpg")
	require.NoError(t, err)
	assert.Equal(t, "/demo/image/upload/f_jpg,w_8,q_70/gallery/a.jpg", path)
	assert.True(t, strings.HasPrefix(data, "data:image/jpeg;base64,"))
}

func TestPreviewNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Cld-Error", "Resource not found")
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := testClient(t, srv.URL).Preview(context.Background(), "gallery/missing", "jpg")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "Resource not found", apiErr.Message)
}

func TestImageURL(t *testing.T) {
	c, err := New(Config{CloudName: "demo"}, nil)
	require.NoError(t, err)

	assert.Equal(t,
		"https://res.cloudinary.com/demo/image/upload/c_scale,w_720/gallery/street/shot%201.jpg",
		c.ImageURL(720, "gallery/street/shot 1", "jpg"))
	assert.Equal(t,
		"https://cdn.example.com/demo/image/upload/x.png",
		ImageURL("https://cdn.example.com/", "demo", "", "x", "png"))
}
