package filesearch

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/liliang-cn/storerouter/internal/config"
	"github.com/liliang-cn/storerouter/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c := New(config.GeminiConfig{APIKey: "test-key", BaseURL: srv.URL, Timeout: 5 * time.Second}, zap.NewNop())
	c.pollInterval = 10 * time.Millisecond
	return c
}

func TestCreateStore(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1beta/fileSearchStores", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-goog-api-key"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Dubrovka", body["displayName"])

		io.WriteString(w, `{"name":"fileSearchStores/dubrovka-1","displayName":"Dubrovka"}`)
	}))

	name, err := c.CreateStore(context.Background(), "Dubrovka")
	require.NoError(t, err)
	assert.Equal(t, "fileSearchStores/dubrovka-1", name)
}

func TestListStoresPaginates(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("pageToken") == "" {
			io.WriteString(w, `{"fileSearchStores":[{"name":"fileSearchStores/a","displayName":"A"}],"nextPageToken":"p2"}`)
			return
		}
		io.WriteString(w, `{"fileSearchStores":[{"name":"fileSearchStores/b","displayName":"B"}]}`)
	}))

	stores, err := c.ListStores(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []domain.RemoteStore{
		{Name: "fileSearchStores/a", DisplayName: "A"},
		{Name: "fileSearchStores/b", DisplayName: "B"},
	}, stores)
}

func TestDeleteStoreIgnoresNotFound(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "true", r.URL.Query().Get("force"))
		w.WriteHeader(http.StatusNotFound)
		io.WriteString(w, `{"error":{"message":"gone"}}`)
	}))

	assert.NoError(t, c.DeleteStore(context.Background(), "fileSearchStores/a"))
}

func TestAskRetriesTransientFailureOnce(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		assert.Equal(t, "/v1beta/models/gemini-flash:generateContent", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "fileSearchStores/a", gjson.GetBytes(body, "tools.0.fileSearch.fileSearchStoreNames.0").String())
		io.WriteString(w, `{"candidates":[{"content":{"parts":[{"text":"Deadline is "},{"text":"May 5."}]},
			"groundingMetadata":{"groundingChunks":[
				{"retrievedContext":{"title":"tz.pdf"}},
				{"retrievedContext":{"title":"tz.pdf"}},
				{"retrievedContext":{"title":"prices.xlsx"}}]}}]}`)
	}))

	answer, err := c.Ask(context.Background(), AskRequest{
		Stores: []string{"fileSearchStores/a"}, Model: "gemini-flash", Prompt: "deadline?", IncludeSources: true,
	})
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, "Deadline is May 5.", answer.Text)
	assert.Equal(t, []string{"tz.pdf", "prices.xlsx"}, answer.Sources)
}

func TestAskDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"error":{"message":"bad model"}}`)
	}))

	_, err := c.Ask(context.Background(), AskRequest{Stores: []string{"s"}, Model: "m", Prompt: "q"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad model")
	assert.Equal(t, int32(1), calls.Load())
}

func TestAskWithoutKey(t *testing.T) {
	c := New(config.GeminiConfig{BaseURL: "http://127.0.0.1:1"}, zap.NewNop())
	_, err := c.Ask(context.Background(), AskRequest{Stores: []string{"s"}, Model: "m", Prompt: "q"})
	assert.ErrorIs(t, err, domain.ErrBackendUnavailable)
}

func TestUploadFileWaitsForOperation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tz.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4 test"), 0644))

	var polls atomic.Int32
	mux := http.NewServeMux()
	var srvURL string
	mux.HandleFunc("/upload/v1beta/fileSearchStores/a:uploadToFileSearchStore", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "start", r.Header.Get("X-Goog-Upload-Command"))
		assert.Equal(t, "application/pdf", r.Header.Get("X-Goog-Upload-Header-Content-Type"))
		w.Header().Set("X-Goog-Upload-URL", srvURL+"/resumable/session-1")
	})
	mux.HandleFunc("/resumable/session-1", func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		assert.Equal(t, "%PDF-1.4 test", string(data))
		io.WriteString(w, `{"name":"fileSearchStores/a/upload/operations/op1","done":false}`)
	})
	mux.HandleFunc("/v1beta/fileSearchStores/a/upload/operations/op1", func(w http.ResponseWriter, r *http.Request) {
		if polls.Add(1) < 2 {
			io.WriteString(w, `{"name":"fileSearchStores/a/upload/operations/op1","done":false}`)
			return
		}
		io.WriteString(w, `{"name":"fileSearchStores/a/upload/operations/op1","done":true}`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	srvURL = srv.URL

	c := New(config.GeminiConfig{APIKey: "k", BaseURL: srv.URL}, zap.NewNop())
	c.pollInterval = 5 * time.Millisecond

	require.NoError(t, c.UploadFile(context.Background(), "fileSearchStores/a", path, "tz.pdf"))
	assert.Equal(t, int32(2), polls.Load())
}

func TestMimeType(t *testing.T) {
	assert.Equal(t, "application/pdf", MimeType("a/B.PDF"))
	assert.Equal(t, "application/octet-stream", MimeType("noext"))
}
