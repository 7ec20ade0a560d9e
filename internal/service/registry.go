package service

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/liliang-cn/storerouter/internal/config"
	"github.com/liliang-cn/storerouter/internal/domain"
	"github.com/liliang-cn/storerouter/internal/filesearch"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const storeSystemPrompt = `You answer questions using only the documents of this knowledge store.
Be precise and cite concrete figures, dates and names from the documents.
If the documents contain nothing relevant, say that the information was not found.
Answer in the language of the question.`

// QueryOptions tunes a single store query
type QueryOptions struct {
	IncludeSources bool
}

// Registry manages the store catalog and queries the hosted search backend
type Registry struct {
	repo        StoreRepo
	selections  SelectionStore
	backend     SearchBackend
	flashModel  string
	proModel    string
	concurrency int
	timeout     time.Duration
	logger      *zap.Logger
}

// NewRegistry creates a new store registry
func NewRegistry(
	repo StoreRepo,
	selections SelectionStore,
	backend SearchBackend,
	cfg *config.Config,
	logger *zap.Logger,
) *Registry {
	return &Registry{
		repo:        repo,
		selections:  selections,
		backend:     backend,
		flashModel:  cfg.Gemini.ModelFlash,
		proModel:    cfg.Gemini.ModelPro,
		concurrency: max(cfg.Pipeline.FanoutConcurrency, 1),
		timeout:     cfg.Pipeline.QueryTimeout,
		logger:      logger.Named("registry"),
	}
}

// ModelFor returns the model tier used for the given complexity
func (r *Registry) ModelFor(c domain.Complexity) string {
	if c == domain.ComplexityComplex {
		return r.proModel
	}
	return r.flashModel
}

// Catalog operations

// Create registers a new store in the backend and in the local catalog
func (r *Registry) Create(ctx context.Context, name, description string) (*domain.Store, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("store name is required: %w", domain.ErrInvalidRequest)
	}

	existing, err := r.repo.GetByName(name)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("store %q already exists: %w", name, domain.ErrDuplicateName)
	}

	remote, err := r.backend.CreateStore(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to create backend store: %w", err)
	}

	store := &domain.Store{
		RemoteName:  remote,
		Name:        name,
		Description: strings.TrimSpace(description),
	}
	if err := r.repo.Create(store); err != nil {
		// Do not leave an orphan behind in the backend
		if derr := r.backend.DeleteStore(ctx, remote); derr != nil {
			r.logger.Warn("failed to roll back backend store", zap.String("remote", remote), zap.Error(derr))
		}
		return nil, fmt.Errorf("failed to save store: %w", err)
	}

	r.logger.Info("store created", zap.String("id", store.ID), zap.String("name", name))
	return store, nil
}

// FindByName returns the store with exactly this name, ignoring case
func (r *Registry) FindByName(ctx context.Context, name string) (*domain.Store, error) {
	return r.repo.GetByName(strings.TrimSpace(name))
}

// FindByID returns the store with the given id or nil
func (r *Registry) FindByID(ctx context.Context, id string) (*domain.Store, error) {
	return r.repo.Get(id)
}

// List returns all stores in creation order
func (r *Registry) List(ctx context.Context) ([]*domain.Store, error) {
	return r.repo.List()
}

// Delete removes the store from the backend and the catalog and drops every selection of it
func (r *Registry) Delete(ctx context.Context, id string) error {
	store, err := r.repo.Get(id)
	if err != nil {
		return err
	}
	if store == nil {
		return fmt.Errorf("store not found: %s: %w", id, domain.ErrNotFound)
	}

	if err := r.backend.DeleteStore(ctx, store.RemoteName); err != nil {
		return fmt.Errorf("failed to delete backend store: %w", err)
	}
	if err := r.repo.Delete(id); err != nil {
		return err
	}
	if err := r.selections.ClearForStore(ctx, id); err != nil {
		r.logger.Warn("failed to clear selections", zap.String("store", id), zap.Error(err))
	}

	r.logger.Info("store deleted", zap.String("id", id), zap.String("name", store.Name))
	return nil
}

// UpdateMetadata renames a store or changes its description
func (r *Registry) UpdateMetadata(ctx context.Context, id string, req domain.UpdateStoreRequest) (*domain.Store, error) {
	store, err := r.repo.Get(id)
	if err != nil {
		return nil, err
	}
	if store == nil {
		return nil, fmt.Errorf("store not found: %s: %w", id, domain.ErrNotFound)
	}

	if name := strings.TrimSpace(req.Name); name != "" && name != store.Name {
		other, err := r.repo.GetByName(name)
		if err != nil {
			return nil, err
		}
		if other != nil && other.ID != store.ID {
			return nil, fmt.Errorf("store %q already exists: %w", name, domain.ErrDuplicateName)
		}
		store.Name = name
	}
	if req.Description != "" {
		store.Description = strings.TrimSpace(req.Description)
	}

	if err := r.repo.Update(store); err != nil {
		return nil, err
	}
	return store, nil
}

// SetSync replaces the sync URLs of a store
func (r *Registry) SetSync(ctx context.Context, id string, urls []string, auto bool) (*domain.Store, error) {
	store, err := r.repo.Get(id)
	if err != nil {
		return nil, err
	}
	if store == nil {
		return nil, fmt.Errorf("store not found: %s: %w", id, domain.ErrNotFound)
	}

	store.SyncURLs = urls
	store.AutoSync = auto && len(urls) > 0
	if err := r.repo.Update(store); err != nil {
		return nil, err
	}
	return store, nil
}

// MarkSynced records the time of the last successful sync
func (r *Registry) MarkSynced(ctx context.Context, id string, at time.Time) error {
	store, err := r.repo.Get(id)
	if err != nil {
		return err
	}
	if store == nil {
		return fmt.Errorf("store not found: %s: %w", id, domain.ErrNotFound)
	}
	at = at.UTC()
	store.LastSync = &at
	return r.repo.Update(store)
}

// UploadDocument uploads a local file into the store and records it in the catalog
func (r *Registry) UploadDocument(ctx context.Context, store *domain.Store, file domain.FetchedFile, source string) error {
	if err := r.backend.UploadFile(ctx, store.RemoteName, file.Path, file.Filename); err != nil {
		return fmt.Errorf("failed to upload %s: %w", file.Filename, err)
	}

	// Re-read so concurrent metadata edits are not overwritten
	fresh, err := r.repo.Get(store.ID)
	if err != nil {
		return err
	}
	if fresh == nil {
		return fmt.Errorf("store not found: %s: %w", store.ID, domain.ErrNotFound)
	}

	fresh.PutDocument(domain.Document{
		Filename:  file.Filename,
		FileType:  DetectFileType(file.Filename),
		FileSize:  file.Size,
		Source:    source,
		SourceURL: file.SourceURL,
		CreatedAt: time.Now().UTC(),
	})
	if err := r.repo.Update(fresh); err != nil {
		return err
	}
	*store = *fresh

	r.logger.Info("document uploaded",
		zap.String("store", store.Name),
		zap.String("file", filepath.Base(file.Filename)),
		zap.String("source", source))
	return nil
}

// ImportRemote adds backend stores missing from the local catalog and returns them
func (r *Registry) ImportRemote(ctx context.Context) ([]*domain.Store, error) {
	remotes, err := r.backend.ListStores(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list backend stores: %w", err)
	}

	var imported []*domain.Store
	for _, rs := range remotes {
		known, err := r.repo.GetByRemoteName(rs.Name)
		if err != nil {
			return imported, err
		}
		if known != nil {
			continue
		}

		name := rs.DisplayName
		if name == "" {
			name = rs.Name
		}
		if dup, err := r.repo.GetByName(name); err != nil {
			return imported, err
		} else if dup != nil {
			name = fmt.Sprintf("%s (%s)", name, strings.TrimPrefix(rs.Name, "fileSearchStores/"))
		}

		store := &domain.Store{RemoteName: rs.Name, Name: name}
		if err := r.repo.Create(store); err != nil {
			return imported, err
		}
		imported = append(imported, store)
	}

	if len(imported) > 0 {
		r.logger.Info("imported backend stores", zap.Int("count", len(imported)))
	}
	return imported, nil
}

// Retrieval

// Query asks a single store. An empty answer is returned as "" without error.
func (r *Registry) Query(
	ctx context.Context,
	store *domain.Store,
	prompt string,
	complexity domain.Complexity,
	opts QueryOptions,
) (string, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	answer, err := r.backend.Ask(ctx, filesearch.AskRequest{
		Stores:         []string{store.RemoteName},
		Model:          r.ModelFor(complexity),
		Prompt:         prompt,
		System:         storeSystemPrompt,
		IncludeSources: opts.IncludeSources,
	})
	if err != nil {
		return "", err
	}

	text := strings.TrimSpace(answer.Text)
	if text != "" && opts.IncludeSources && len(answer.Sources) > 0 {
		text += "\n\nSources: " + strings.Join(answer.Sources, ", ")
	}
	return text, nil
}

// QueryManyParallel asks every store concurrently. A failing store does not
// affect the others. Results with an answer come first, then by store name.
func (r *Registry) QueryManyParallel(
	ctx context.Context,
	stores []*domain.Store,
	prompt string,
	complexity domain.Complexity,
) []domain.StoreAnswer {
	results := make([]domain.StoreAnswer, len(stores))

	var g errgroup.Group
	g.SetLimit(r.concurrency)
	for i, store := range stores {
		g.Go(func() error {
			answer, err := r.Query(ctx, store, prompt, complexity, QueryOptions{})
			if err != nil {
				r.logger.Warn("store query failed", zap.String("store", store.Name), zap.Error(err))
			}
			results[i] = domain.StoreAnswer{
				StoreID:   store.ID,
				StoreName: store.Name,
				Answer:    answer,
				Err:       err,
			}
			return nil
		})
	}
	_ = g.Wait()

	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i].HasResult(), results[j].HasResult()
		if a != b {
			return a
		}
		return results[i].StoreName < results[j].StoreName
	})
	return results
}
