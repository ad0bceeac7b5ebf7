package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"newscrunch/internal/config"
	"newscrunch/internal/persistence"
)

func newTestServer(t *testing.T, store *persistence.MemoryStore) *Server {
	t.Helper()
	srv := New(store, config.Server{Host: "127.0.0.1", Port: 0})
	require.NoError(t, srv.assembler.Refresh(context.Background()))
	return srv
}

func doRequest(t *testing.T, srv *Server, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t, persistence.NewMemoryStore())
	rec := doRequest(t, srv, http.MethodGet, "/health")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}

func TestStoriesEmptyWithoutReadyDigest(t *testing.T) {
	srv := newTestServer(t, persistence.NewMemoryStore())
	rec := doRequest(t, srv, http.MethodGet, "/stories")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestStoriesServed(t *testing.T) {
	store := persistence.NewMemoryStore()
	seedReadyDigest(t, store, 5)
	seedStory(t, store, 5, 3, 4, 0, "election")
	seedStory(t, store, 5, 5, 6, 0, "flood")

	srv := newTestServer(t, store)
	rec := doRequest(t, srv, http.MethodGet, "/stories")
	require.Equal(t, http.StatusOK, rec.Code)

	var stories []StoryView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stories))
	require.Len(t, stories, 2)
	assert.Equal(t, "flood", stories[0].Title)
	assert.Equal(t, "election", stories[1].Title)
}

func TestStoryByID(t *testing.T) {
	store := persistence.NewMemoryStore()
	seedReadyDigest(t, store, 2)
	id := seedStory(t, store, 2, 3, 3, 0, "strike")

	srv := newTestServer(t, store)
	rec := doRequest(t, srv, http.MethodGet, "/story/"+strconv.Itoa(id))
	require.Equal(t, http.StatusOK, rec.Code)

	var story StoryView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &story))
	assert.Equal(t, "strike", story.Title)
	assert.Len(t, story.Articles, 3)
}

func TestStoryNotFound(t *testing.T) {
	srv := newTestServer(t, persistence.NewMemoryStore())

	rec := doRequest(t, srv, http.MethodGet, "/story/42")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(t, srv, http.MethodGet, "/story/notanumber")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRefreshEndpointPicksUpNewDigest(t *testing.T) {
	store := persistence.NewMemoryStore()
	srv := newTestServer(t, store)

	rec := doRequest(t, srv, http.MethodGet, "/api/status")
	var status map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, false, status["ready"])

	seedReadyDigest(t, store, 7)
	seedStory(t, store, 7, 3, 3, 0, "merger")

	rec = doRequest(t, srv, http.MethodPost, "/refresh")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, srv, http.MethodGet, "/api/status")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, true, status["ready"])
	assert.Equal(t, float64(7), status["digest_id"])
	assert.Equal(t, float64(1), status["stories"])
}
