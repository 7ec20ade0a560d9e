package service

import (
	"context"
	"mime/multipart"
	"time"

	"github.com/liliang-cn/storerouter/internal/domain"
)

// AdminService handles admin operations
type AdminService struct {
	registry   *Registry
	ingest     *IngestService
	selections SelectionStore
	memory     ConversationStore
	retention  time.Duration
}

// NewAdminService creates a new admin service
func NewAdminService(
	registry *Registry,
	ingest *IngestService,
	selections SelectionStore,
	memory ConversationStore,
	retention time.Duration,
) *AdminService {
	return &AdminService{
		registry:   registry,
		ingest:     ingest,
		selections: selections,
		memory:     memory,
		retention:  retention,
	}
}

// Store operations

func (s *AdminService) CreateStore(ctx context.Context, req *domain.CreateStoreRequest) (*domain.Store, error) {
	return s.registry.Create(ctx, req.Name, req.Description)
}

func (s *AdminService) GetStore(ctx context.Context, id string) (*domain.Store, error) {
	return s.registry.FindByID(ctx, id)
}

func (s *AdminService) ListStores(ctx context.Context) ([]*domain.Store, error) {
	return s.registry.List(ctx)
}

func (s *AdminService) UpdateStore(ctx context.Context, id string, req *domain.UpdateStoreRequest) (*domain.Store, error) {
	return s.registry.UpdateMetadata(ctx, id, *req)
}

func (s *AdminService) DeleteStore(ctx context.Context, id string) error {
	return s.registry.Delete(ctx, id)
}

func (s *AdminService) ImportStores(ctx context.Context) ([]*domain.Store, error) {
	return s.registry.ImportRemote(ctx)
}

// Document operations

func (s *AdminService) UploadDocument(ctx context.Context, id string, file *multipart.FileHeader) (*domain.Store, error) {
	store, err := s.requireStore(ctx, id)
	if err != nil {
		return nil, err
	}

	saved, err := s.ingest.SaveUpload(store.ID, file)
	if err != nil {
		return nil, err
	}
	if err := s.ingest.UploadLocal(ctx, store, *saved); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *AdminService) SyncStore(ctx context.Context, id string) (*IngestReport, error) {
	store, err := s.requireStore(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.ingest.SyncStore(ctx, store)
}

// Memory

func (s *AdminService) SweepMemory(ctx context.Context) (int, error) {
	return s.memory.Sweep(ctx, time.Now().Add(-s.retention))
}

// Stats

func (s *AdminService) GetStats(ctx context.Context) (*domain.Stats, error) {
	stores, err := s.registry.List(ctx)
	if err != nil {
		return nil, err
	}
	var docCount int
	for _, store := range stores {
		docCount += len(store.Documents)
	}

	selections, _ := s.selections.Count(ctx)
	memory, _ := s.memory.Stats(ctx)

	return &domain.Stats{
		TotalStores:    len(stores),
		TotalDocuments: docCount,
		Selections:     selections,
		Memory:         memory,
	}, nil
}

func (s *AdminService) requireStore(ctx context.Context, id string) (*domain.Store, error) {
	store, err := s.registry.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if store == nil {
		return nil, domain.ErrNotFound
	}
	return store, nil
}
