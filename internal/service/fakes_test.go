package service

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/liliang-cn/storerouter/internal/config"
	"github.com/liliang-cn/storerouter/internal/domain"
	"github.com/liliang-cn/storerouter/internal/filesearch"
	"github.com/liliang-cn/storerouter/internal/llm"
	"github.com/liliang-cn/storerouter/internal/repository"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const adminID int64 = 1

type fakeBackend struct {
	mu          sync.Mutex
	next        int
	stores      map[string]string
	answers     map[string]string
	failing     map[string]error
	asks        []filesearch.AskRequest
	uploads     []string
	deleted     []string
	delay       time.Duration
	inflight    int
	maxInflight int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		stores:  make(map[string]string),
		answers: make(map[string]string),
		failing: make(map[string]error),
	}
}

func (b *fakeBackend) CreateStore(ctx context.Context, displayName string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.next++
	name := fmt.Sprintf("fileSearchStores/s%d", b.next)
	b.stores[name] = displayName
	return name, nil
}

func (b *fakeBackend) DeleteStore(ctx context.Context, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deleted = append(b.deleted, name)
	delete(b.stores, name)
	return nil
}

func (b *fakeBackend) ListStores(ctx context.Context) ([]domain.RemoteStore, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []domain.RemoteStore
	for name, display := range b.stores {
		out = append(out, domain.RemoteStore{Name: name, DisplayName: display})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (b *fakeBackend) UploadFile(ctx context.Context, store, path, displayName string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.uploads = append(b.uploads, store+"/"+displayName)
	return nil
}

func (b *fakeBackend) Ask(ctx context.Context, req filesearch.AskRequest) (*filesearch.Answer, error) {
	b.mu.Lock()
	b.asks = append(b.asks, req)
	b.inflight++
	b.maxInflight = max(b.maxInflight, b.inflight)
	delay := b.delay
	b.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.inflight--
	store := req.Stores[0]
	if err := b.failing[store]; err != nil {
		return nil, err
	}
	return &filesearch.Answer{Text: b.answers[store], Sources: []string{"contract.pdf"}}, nil
}

func (b *fakeBackend) askCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.asks)
}

type fakeGenerator struct {
	mu      sync.Mutex
	calls   []llm.Request
	respond func(req llm.Request) (string, error)
}

func (g *fakeGenerator) Generate(ctx context.Context, req llm.Request) (string, error) {
	g.mu.Lock()
	g.calls = append(g.calls, req)
	respond := g.respond
	g.mu.Unlock()
	if respond == nil {
		return "", fmt.Errorf("no response configured")
	}
	return respond(req)
}

func (g *fakeGenerator) callsWith(system string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, c := range g.calls {
		if c.System == system {
			n++
		}
	}
	return n
}

type fakeWeb struct {
	answer string
}

func (w *fakeWeb) SearchWeb(ctx context.Context, model, prompt string) (string, error) {
	return w.answer, nil
}

type fakeExporter struct {
	contents []string
}

func (e *fakeExporter) Render(format, content, title, question, storeName string) (*domain.Attachment, error) {
	e.contents = append(e.contents, content)
	name := title + "." + format
	return &domain.Attachment{Name: name, Path: filepath.Join("/tmp", name), Format: format}, nil
}

// classifierJSON builds classifier JSON with sensible defaults
func classifierJSON(fields map[string]any) string {
	out := map[string]any{
		"query_type":       "single",
		"optimized_prompt": "question",
		"action":           "none",
		"confidence":       0.9,
		"complexity":       "medium",
	}
	for k, v := range fields {
		out[k] = v
	}
	b, _ := json.Marshal(out)
	return string(b)
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		Admin:   config.AdminConfig{UserID: adminID},
		Storage: config.StorageConfig{Documents: filepath.Join(dir, "documents"), Exports: filepath.Join(dir, "exports")},
		Gemini:  config.GeminiConfig{ModelFlash: "flash", ModelPro: "pro"},
		Pipeline: config.PipelineConfig{
			ConfidenceThreshold: 0.6,
			FanoutConcurrency:   5,
			QueryTimeout:        5 * time.Second,
			RouterMaxResults:    3,
			MessageLimit:        4000,
		},
		Memory: config.MemoryConfig{Backend: "sqlite", MaxMessages: 5, RetentionDays: 7},
		Wizard: config.WizardConfig{TTL: time.Minute},
	}
}

type harness struct {
	cfg           *config.Config
	backend       *fakeBackend
	gen           *fakeGenerator
	web           *fakeWeb
	exporter      *fakeExporter
	registry      *Registry
	selections    *repository.SelectionRepository
	conversations *repository.ConversationRepository
	sessions      *Sessions
	wizard        *Wizard
	pipeline      *Pipeline
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWithConfig(t, testConfig(t))
}

func newHarnessWithConfig(t *testing.T, cfg *config.Config) *harness {
	t.Helper()

	db, err := repository.NewDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := zap.NewNop()
	h := &harness{
		cfg:           cfg,
		backend:       newFakeBackend(),
		gen:           &fakeGenerator{},
		web:           &fakeWeb{answer: "web answer"},
		exporter:      &fakeExporter{},
		selections:    repository.NewSelectionRepository(db),
		conversations: repository.NewConversationRepository(db, cfg.Memory.MaxMessages),
		sessions:      NewSessions(cfg.Wizard.TTL),
	}
	h.wizard = NewWizard(h.sessions)

	h.registry = NewRegistry(repository.NewStoreRepository(db), h.selections, h.backend, cfg, logger)
	memory := NewMemoryService(h.conversations, logger)
	ingest := NewIngestService(h.registry, nil, cfg, logger)
	exports := NewExportService(h.exporter, h.sessions)
	actions := NewActionService(cfg, h.registry, h.selections, memory, h.sessions, h.wizard, ingest, exports, logger)

	h.pipeline = NewPipeline(PipelineDeps{
		Config:     cfg,
		Registry:   h.registry,
		Classifier: NewClassifier(h.gen, cfg, logger),
		Router:     NewRouter(h.registry, h.gen, cfg, logger),
		Memory:     memory,
		Selections: h.selections,
		Actions:    actions,
		Sessions:   h.sessions,
		Wizard:     h.wizard,
		Ingest:     ingest,
		Exports:    exports,
		Web:        h.web,
		Generator:  h.gen,
		Logger:     logger,
	})
	return h
}

func (h *harness) addStore(t *testing.T, name, answer string) *domain.Store {
	t.Helper()
	store, err := h.registry.Create(context.Background(), name, "")
	require.NoError(t, err)
	h.backend.mu.Lock()
	h.backend.answers[store.RemoteName] = answer
	h.backend.mu.Unlock()
	return store
}

// classifyAs makes every classifier call return raw and routes to the first listed name
func (h *harness) classifyAs(raw string) {
	h.gen.mu.Lock()
	defer h.gen.mu.Unlock()
	h.gen.respond = func(req llm.Request) (string, error) {
		switch req.System {
		case classifierSystemPrompt:
			return raw, nil
		case compareSystemPrompt:
			return "SYNTHESIS", nil
		}
		return `{"selected": [], "reasoning": "none"}`, nil
	}
}

func (h *harness) send(t *testing.T, userID int64, text string) *domain.Reply {
	t.Helper()
	reply := h.pipeline.Handle(context.Background(), domain.Inbound{UserID: userID, Text: text})
	require.NotNil(t, reply)
	require.NotEmpty(t, reply.Messages)
	return reply
}
