package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/liliang-cn/storerouter/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

func TestQueryManyParallelIsolatesFailures(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	cfg := testConfig(t)
	cfg.Pipeline.FanoutConcurrency = 2
	backend := newFakeBackend()
	backend.delay = 20 * time.Millisecond
	r := NewRegistry(nil, nil, backend, cfg, zap.NewNop())

	stores := []*domain.Store{
		{ID: "1", RemoteName: "r1", Name: "Delta"},
		{ID: "2", RemoteName: "r2", Name: "Alpha"},
		{ID: "3", RemoteName: "r3", Name: "Charlie"},
		{ID: "4", RemoteName: "r4", Name: "Bravo"},
		{ID: "5", RemoteName: "r5", Name: "Echo"},
	}
	backend.answers["r1"] = "delta answer"
	backend.answers["r3"] = "charlie answer"
	backend.answers["r5"] = "echo answer"
	backend.failing["r2"] = errors.New("unavailable")

	results := r.QueryManyParallel(context.Background(), stores, "q", domain.ComplexitySimple)
	require.Len(t, results, 5)

	var names []string
	for _, res := range results {
		names = append(names, res.StoreName)
	}
	assert.Equal(t, []string{"Charlie", "Delta", "Echo", "Alpha", "Bravo"}, names)
	assert.True(t, results[0].HasResult())
	assert.Error(t, results[3].Err)
	assert.NoError(t, results[4].Err)
	assert.False(t, results[4].HasResult())

	assert.Equal(t, 5, backend.askCount())
	assert.LessOrEqual(t, backend.maxInflight, 2)
}

func TestQueryAppendsSources(t *testing.T) {
	backend := newFakeBackend()
	backend.answers["r1"] = "answer"
	r := NewRegistry(nil, nil, backend, testConfig(t), zap.NewNop())
	store := &domain.Store{ID: "1", RemoteName: "r1", Name: "A"}

	text, err := r.Query(context.Background(), store, "q", domain.ComplexityMedium, QueryOptions{IncludeSources: true})
	require.NoError(t, err)
	assert.Equal(t, "answer\n\nSources: contract.pdf", text)

	text, err = r.Query(context.Background(), store, "q", domain.ComplexityMedium, QueryOptions{})
	require.NoError(t, err)
	assert.Equal(t, "answer", text)
	assert.Equal(t, storeSystemPrompt, backend.asks[0].System)
}

func TestModelFor(t *testing.T) {
	r := NewRegistry(nil, nil, newFakeBackend(), testConfig(t), zap.NewNop())
	assert.Equal(t, "flash", r.ModelFor(domain.ComplexitySimple))
	assert.Equal(t, "flash", r.ModelFor(domain.ComplexityMedium))
	assert.Equal(t, "pro", r.ModelFor(domain.ComplexityComplex))
}

func TestRegistryCatalog(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.registry.Create(ctx, "  ", "")
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)

	a, err := h.registry.Create(ctx, "Dubrovka", " tender ")
	require.NoError(t, err)
	assert.Equal(t, "tender", a.Description)
	assert.Equal(t, "Dubrovka", h.backend.stores[a.RemoteName])

	_, err = h.registry.Create(ctx, "DUBROVKA", "")
	assert.ErrorIs(t, err, domain.ErrDuplicateName)

	b, err := h.registry.Create(ctx, "Mitino", "")
	require.NoError(t, err)

	_, err = h.registry.UpdateMetadata(ctx, b.ID, domain.UpdateStoreRequest{Name: "dubrovka"})
	assert.ErrorIs(t, err, domain.ErrDuplicateName)

	renamed, err := h.registry.UpdateMetadata(ctx, a.ID, domain.UpdateStoreRequest{Name: "Dubrovka 2026"})
	require.NoError(t, err)
	assert.Equal(t, "Dubrovka 2026", renamed.Name)
	assert.Equal(t, "tender", renamed.Description)

	updated, err := h.registry.SetSync(ctx, b.ID, []string{"https://drive.google.com/drive/folders/x"}, true)
	require.NoError(t, err)
	assert.True(t, updated.AutoSync)

	require.NoError(t, h.registry.MarkSynced(ctx, b.ID, time.Now()))
	got, err := h.registry.FindByID(ctx, b.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastSync)

	err = h.registry.Delete(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestImportRemote(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.addStore(t, "Dubrovka", "")

	h.backend.stores["fileSearchStores/remote1"] = "Khimki"
	h.backend.stores["fileSearchStores/remote2"] = "Dubrovka"

	imported, err := h.registry.ImportRemote(ctx)
	require.NoError(t, err)
	require.Len(t, imported, 2)
	assert.Equal(t, "Khimki", imported[0].Name)
	assert.Equal(t, "Dubrovka (remote2)", imported[1].Name)

	again, err := h.registry.ImportRemote(ctx)
	require.NoError(t, err)
	assert.Empty(t, again)

	all, err := h.registry.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}
