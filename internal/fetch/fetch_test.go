package fetch

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"newscrunch/internal/config"
)

func testConfig() config.Collector {
	return config.Collector{
		UserAgent:       "test-agent",
		FetchTimeout:    5 * time.Second,
		ImageGetTimeout: 2 * time.Second,
	}
}

func TestHomepageLinks(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><body>
			<a href="/news/one">One</a>
			<a href="/news/two">Two</a>
			<a href="/news/one">One again</a>
			<a href="https://other.example.org/elsewhere">External</a>
			<a href="mailto:tips@example.com">Mail</a>
		</body></html>`))
	}))
	defer srv.Close()

	c := NewClient(testConfig())
	links, err := c.HomepageLinks(context.Background(), srv.URL)
	require.NoError(t, err)

	assert.Equal(t, []string{srv.URL + "/news/one", srv.URL + "/news/two"}, links)
	assert.Equal(t, "test-agent", gotUA)
}

func TestHomepageLinksBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(testConfig())
	_, err := c.HomepageLinks(context.Background(), srv.URL)
	assert.Error(t, err)
}

func TestRegistrableDomain(t *testing.T) {
	assert.Equal(t, "example.com", registrableDomain("www.example.com"))
	assert.Equal(t, "example.com", registrableDomain("edition.example.com"))
	assert.Equal(t, "smh.com.au", registrableDomain("www.smh.com.au"))
	assert.Equal(t, "telegraph.co.uk", registrableDomain("www.telegraph.co.uk"))
}

func servePNG(t *testing.T, w, h int) *httptest.Server {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))))
	return httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "image/png")
		_, _ = rw.Write(buf.Bytes())
	}))
}

func TestScreenImageAccepts(t *testing.T) {
	srv := servePNG(t, 640, 480)
	defer srv.Close()

	c := NewClient(testConfig())
	info, ok := c.ScreenImage(context.Background(), srv.URL)
	require.True(t, ok)
	assert.Equal(t, 640, info.Width)
	assert.Equal(t, 480, info.Height)
	assert.Equal(t, "png", info.Format)
}

func TestScreenImageRejectsSmall(t *testing.T) {
	srv := servePNG(t, 64, 64)
	defer srv.Close()

	c := NewClient(testConfig())
	_, ok := c.ScreenImage(context.Background(), srv.URL)
	assert.False(t, ok)
}

func TestScreenImageRejectsNonImage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html></html>"))
	}))
	defer srv.Close()

	c := NewClient(testConfig())
	_, ok := c.ScreenImage(context.Background(), srv.URL)
	assert.False(t, ok)
}
