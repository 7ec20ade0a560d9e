package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/liliang-cn/storerouter/internal/api/chat"
	"github.com/liliang-cn/storerouter/internal/domain"
	"github.com/liliang-cn/storerouter/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

type fakePipeline struct {
	mu          sync.Mutex
	inbound     []domain.Inbound
	files       []domain.InboundFile
	fileContent string
	reply       *domain.Reply
}

func (p *fakePipeline) Handle(ctx context.Context, in domain.Inbound) *domain.Reply {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inbound = append(p.inbound, in)
	return p.reply
}

func (p *fakePipeline) HandleFile(ctx context.Context, in domain.InboundFile) *domain.Reply {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.files = append(p.files, in)
	data, _ := os.ReadFile(in.Path)
	p.fileContent = string(data)
	return domain.Text("File " + in.Filename + " uploaded.")
}

type fakeAdmin struct {
	stores map[string]*domain.Store
	swept  int
}

func newFakeAdmin() *fakeAdmin {
	return &fakeAdmin{stores: make(map[string]*domain.Store)}
}

func (a *fakeAdmin) CreateStore(ctx context.Context, req *domain.CreateStoreRequest) (*domain.Store, error) {
	for _, s := range a.stores {
		if strings.EqualFold(s.Name, req.Name) {
			return nil, domain.ErrDuplicateName
		}
	}
	s := &domain.Store{ID: fmt.Sprintf("id-%d", len(a.stores)+1), Name: req.Name, Description: req.Description}
	a.stores[s.ID] = s
	return s, nil
}

func (a *fakeAdmin) GetStore(ctx context.Context, id string) (*domain.Store, error) {
	return a.stores[id], nil
}

func (a *fakeAdmin) ListStores(ctx context.Context) ([]*domain.Store, error) {
	var out []*domain.Store
	for _, s := range a.stores {
		out = append(out, s)
	}
	return out, nil
}

func (a *fakeAdmin) UpdateStore(ctx context.Context, id string, req *domain.UpdateStoreRequest) (*domain.Store, error) {
	s, ok := a.stores[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if req.Name != "" {
		s.Name = req.Name
	}
	return s, nil
}

func (a *fakeAdmin) DeleteStore(ctx context.Context, id string) error {
	if _, ok := a.stores[id]; !ok {
		return fmt.Errorf("delete %s: %w", id, domain.ErrNotFound)
	}
	delete(a.stores, id)
	return nil
}

func (a *fakeAdmin) ImportStores(ctx context.Context) ([]*domain.Store, error) {
	return []*domain.Store{{ID: "remote", Name: "Imported"}}, nil
}

func (a *fakeAdmin) UploadDocument(ctx context.Context, id string, file *multipart.FileHeader) (*domain.Store, error) {
	s, ok := a.stores[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	s.PutDocument(domain.Document{Filename: file.Filename})
	return s, nil
}

func (a *fakeAdmin) SyncStore(ctx context.Context, id string) (*service.IngestReport, error) {
	if _, ok := a.stores[id]; !ok {
		return nil, domain.ErrNotFound
	}
	return &service.IngestReport{Uploaded: []string{"a.pdf"}}, nil
}

func (a *fakeAdmin) SweepMemory(ctx context.Context) (int, error) {
	return a.swept, nil
}

func (a *fakeAdmin) GetStats(ctx context.Context) (*domain.Stats, error) {
	return &domain.Stats{TotalStores: len(a.stores)}, nil
}

type fakeExports struct {
	dir string
}

func (e *fakeExports) Open(name string) (string, error) {
	if name != filepath.Base(name) {
		return "", domain.ErrInvalidRequest
	}
	path := filepath.Join(e.dir, name)
	if _, err := os.Stat(path); err != nil {
		return "", domain.ErrNotFound
	}
	return path, nil
}

type testServer struct {
	engine   *gin.Engine
	pipeline *fakePipeline
	admin    *fakeAdmin
	exports  *fakeExports
	uploads  string
}

func newTestServer(t *testing.T, apiKey string) *testServer {
	t.Helper()
	ts := &testServer{
		pipeline: &fakePipeline{reply: domain.Text("hello")},
		admin:    newFakeAdmin(),
		exports:  &fakeExports{dir: t.TempDir()},
		uploads:  t.TempDir(),
	}
	ts.engine = SetupRouter(ts.pipeline, ts.admin, ts.exports, RouterConfig{
		APIKey:    apiKey,
		UploadDir: ts.uploads,
	}, zap.NewNop())
	return ts
}

func (ts *testServer) do(method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	ts.engine.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, "secret")

	w := ts.do(http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ok")
}

func TestAuth(t *testing.T) {
	ts := newTestServer(t, "secret")

	tests := []struct {
		name    string
		headers []string
		want    int
	}{
		{"missing key", nil, http.StatusUnauthorized},
		{"wrong key", []string{"X-API-Key", "nope"}, http.StatusUnauthorized},
		{"header key", []string{"X-API-Key", "secret"}, http.StatusOK},
		{"bearer token", []string{"Authorization", "Bearer secret"}, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ts.do(http.MethodGet, "/api/admin/stats", nil, tt.headers...)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestCORSPreflight(t *testing.T) {
	ts := newTestServer(t, "")

	w := ts.do(http.MethodOptions, "/api/chat/message", nil, "Origin", "https://example.com")

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://example.com", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestChatMessage(t *testing.T) {
	ts := newTestServer(t, "")
	ts.pipeline.reply = &domain.Reply{
		Messages:    []string{"[Contracts]\n\nanswer"},
		Attachments: []domain.Attachment{{Name: "Contracts_20260101_120000.pdf", Path: "/srv/exports/x.pdf", Format: "pdf"}},
	}

	w := ts.do(http.MethodPost, "/api/chat/message", gin.H{"user_id": 42, "text": "what is the deadline?"})

	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[chat.ReplyResponse](t, w)
	assert.Equal(t, []string{"[Contracts]\n\nanswer"}, resp.Messages)
	require.Len(t, resp.Attachments, 1)
	assert.Equal(t, "/api/chat/exports/Contracts_20260101_120000.pdf", resp.Attachments[0].URL)
	assert.NotContains(t, w.Body.String(), "/srv/exports")

	require.Len(t, ts.pipeline.inbound, 1)
	assert.Equal(t, int64(42), ts.pipeline.inbound[0].UserID)
	assert.Equal(t, "what is the deadline?", ts.pipeline.inbound[0].Text)
}

func TestChatMessage_InvalidBody(t *testing.T) {
	ts := newTestServer(t, "")

	w := ts.do(http.MethodPost, "/api/chat/message", gin.H{"user_id": 42})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, ts.pipeline.inbound)
}

func TestChatFile(t *testing.T) {
	ts := newTestServer(t, "")

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("user_id", "1"))
	require.NoError(t, mw.WriteField("caption", "Contracts"))
	part, err := mw.CreateFormFile("file", "terms.pdf")
	require.NoError(t, err)
	_, err = part.Write([]byte("pdf bytes"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/chat/file", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	ts.engine.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, ts.pipeline.files, 1)
	in := ts.pipeline.files[0]
	assert.Equal(t, int64(1), in.UserID)
	assert.Equal(t, "Contracts", in.Caption)
	assert.Equal(t, "terms.pdf", in.Filename)
	assert.Equal(t, "pdf bytes", ts.pipeline.fileContent)

	// staged file is removed after handling
	_, err = os.Stat(in.Path)
	assert.True(t, os.IsNotExist(err))
}

func TestChatFile_MissingUser(t *testing.T) {
	ts := newTestServer(t, "")

	w := ts.do(http.MethodPost, "/api/chat/file", nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestExportDownload(t *testing.T) {
	ts := newTestServer(t, "")
	require.NoError(t, os.WriteFile(filepath.Join(ts.exports.dir, "report.pdf"), []byte("%PDF"), 0644))

	w := ts.do(http.MethodGet, "/api/chat/exports/report.pdf", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "%PDF", w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Disposition"), "attachment")

	w = ts.do(http.MethodGet, "/api/chat/exports/missing.pdf", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdminStores(t *testing.T) {
	ts := newTestServer(t, "")

	w := ts.do(http.MethodPost, "/api/admin/stores", gin.H{"name": "Contracts", "description": "legal"})
	require.Equal(t, http.StatusCreated, w.Code)
	created := decode[domain.Store](t, w)
	assert.Equal(t, "Contracts", created.Name)

	w = ts.do(http.MethodPost, "/api/admin/stores", gin.H{"name": "contracts"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = ts.do(http.MethodPost, "/api/admin/stores", gin.H{"description": "no name"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(http.MethodGet, "/api/admin/stores", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[struct {
		Stores []domain.Store `json:"stores"`
	}](t, w)
	assert.Len(t, list.Stores, 1)

	w = ts.do(http.MethodGet, "/api/admin/stores/"+created.ID, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = ts.do(http.MethodGet, "/api/admin/stores/unknown", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = ts.do(http.MethodPut, "/api/admin/stores/"+created.ID, gin.H{"name": "Agreements"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Agreements", decode[domain.Store](t, w).Name)

	w = ts.do(http.MethodPost, "/api/admin/stores/"+created.ID+"/sync", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "a.pdf")

	w = ts.do(http.MethodDelete, "/api/admin/stores/"+created.ID, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = ts.do(http.MethodDelete, "/api/admin/stores/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdminUploadDocument(t *testing.T) {
	ts := newTestServer(t, "")
	store, err := ts.admin.CreateStore(context.Background(), &domain.CreateStoreRequest{Name: "Contracts"})
	require.NoError(t, err)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "terms.pdf")
	require.NoError(t, err)
	_, err = part.Write([]byte("pdf bytes"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/admin/stores/"+store.ID+"/documents", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	ts.engine.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Len(t, ts.admin.stores[store.ID].Documents, 1)
}

func TestAdminHousekeeping(t *testing.T) {
	ts := newTestServer(t, "")
	ts.admin.swept = 3

	w := ts.do(http.MethodPost, "/api/admin/memory/sweep", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"removed": 3}`, w.Body.String())

	w = ts.do(http.MethodPost, "/api/admin/stores/import", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Imported")
}
