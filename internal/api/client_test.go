package api

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEdition(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/edition", r.URL.Path)
		w.Write([]byte(`{"edition":"premium","premium_unlocked":true}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	unlocked, err := c.Edition(context.Background())
	require.NoError(t, err)
	assert.True(t, unlocked)
}

func TestActivateRejectedCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/activate", r.URL.Path)
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"ok":false,"error":"Invalid code"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	res, err := c.Activate(context.Background(), "WRONG")
	require.NoError(t, err, "a rejected code is a result, not a transport error")
	assert.False(t, res.OK)
	assert.Equal(t, "Invalid code", res.Error)
}

func TestSaveSettingsWarnings(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/save", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.Write([]byte(`{"ok":true,"warnings":["Premium TTS not available on Free; using gTTS"]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	res, err := c.SaveSettings(context.Background(), map[string]string{"mode": "vocab"})
	require.NoError(t, err)
	assert.True(t, res.OK)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "gTTS")
}

func TestPostBadJSONBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>proxy error</html>`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	res, err := c.ClearCache(context.Background())
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.Equal(t, "Bad JSON", res.Error)
}

func TestListOutputs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/list-outputs", r.URL.Path)
		w.Write([]byte(`{"items":[{"name":"frames","is_dir":true},{"name":"vocab_a1.mp4","is_dir":false}]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	items, err := c.ListOutputs(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.True(t, items[0].IsDir)
	assert.Equal(t, "vocab_a1.mp4", items[1].Name)
}

func TestTextFilesQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/text-files", r.URL.Path)
		assert.Equal(t, "scenario", r.URL.Query().Get("mode"))
		assert.Equal(t, "B1", r.URL.Query().Get("level"))
		w.Write([]byte(`{"files":["cafe.txt","airport.txt"]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	files, err := c.TextFiles(context.Background(), "scenario", "B1")
	require.NoError(t, err)
	assert.Equal(t, []string{"cafe.txt", "airport.txt"}, files)
}

func TestRunOncePlainText(t *testing.T) {
	const log = "[INFO] using input file x.txt\n[TTS] ok lang=en\n[DONE] All done.\n"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/run-once", r.URL.Path)
		w.Write([]byte(log))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	got, err := c.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, log, got)
}

func TestFetchOutputEscapesName(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/out/my%20video.mp4", r.URL.EscapedPath())
		w.Write([]byte("mp4-bytes"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	var buf bytes.Buffer
	require.NoError(t, c.FetchOutput(context.Background(), "my video.mp4", &buf))
	assert.Equal(t, "mp4-bytes", buf.String())
}

func TestGetJSONNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down for maintenance", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	_, err := c.Edition(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestBaseURLTrimsTrailingSlash(t *testing.T) {
	c := NewClient("http://127.0.0.1:5000/", 0)
	assert.Equal(t, "http://127.0.0.1:5000", c.BaseURL())
}
