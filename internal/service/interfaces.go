package service

import (
	"context"
	"time"

	"github.com/liliang-cn/storerouter/internal/domain"
	"github.com/liliang-cn/storerouter/internal/filesearch"
	"github.com/liliang-cn/storerouter/internal/llm"
)

// Generator produces text for a single prompt
type Generator interface {
	Generate(ctx context.Context, req llm.Request) (string, error)
}

// WebSearcher answers a prompt from the open web
type WebSearcher interface {
	SearchWeb(ctx context.Context, model, prompt string) (string, error)
}

// SearchBackend is the hosted document-search service
type SearchBackend interface {
	CreateStore(ctx context.Context, displayName string) (string, error)
	DeleteStore(ctx context.Context, name string) error
	ListStores(ctx context.Context) ([]domain.RemoteStore, error)
	UploadFile(ctx context.Context, store, path, displayName string) error
	Ask(ctx context.Context, req filesearch.AskRequest) (*filesearch.Answer, error)
}

// StoreRepo persists the store catalog
type StoreRepo interface {
	Create(store *domain.Store) error
	Get(id string) (*domain.Store, error)
	GetByName(name string) (*domain.Store, error)
	GetByRemoteName(remoteName string) (*domain.Store, error)
	List() ([]*domain.Store, error)
	Update(store *domain.Store) error
	Delete(id string) error
}

// ConversationStore keeps a bounded history per (user, scope)
type ConversationStore interface {
	Append(ctx context.Context, userID int64, scope, role, content string) error
	Recent(ctx context.Context, userID int64, scope string) ([]domain.Turn, error)
	Clear(ctx context.Context, userID int64, scope string) error
	Sweep(ctx context.Context, cutoff time.Time) (int, error)
	Stats(ctx context.Context) (domain.MemoryStats, error)
}

// SelectionStore persists each user's active store
type SelectionStore interface {
	Get(ctx context.Context, userID int64) (*domain.Selection, error)
	Set(ctx context.Context, userID int64, storeID string) error
	Clear(ctx context.Context, userID int64) error
	ClearForStore(ctx context.Context, storeID string) error
	Count(ctx context.Context) (int, error)
}

// StoreRegistry is the store catalog plus the retrieval calls against it
type StoreRegistry interface {
	Create(ctx context.Context, name, description string) (*domain.Store, error)
	FindByName(ctx context.Context, name string) (*domain.Store, error)
	FindByID(ctx context.Context, id string) (*domain.Store, error)
	List(ctx context.Context) ([]*domain.Store, error)
	Delete(ctx context.Context, id string) error
	UpdateMetadata(ctx context.Context, id string, req domain.UpdateStoreRequest) (*domain.Store, error)
	Query(ctx context.Context, store *domain.Store, prompt string, complexity domain.Complexity, opts QueryOptions) (string, error)
	QueryManyParallel(ctx context.Context, stores []*domain.Store, prompt string, complexity domain.Complexity) []domain.StoreAnswer
	UploadDocument(ctx context.Context, store *domain.Store, file domain.FetchedFile, source string) error
	SetSync(ctx context.Context, id string, urls []string, auto bool) (*domain.Store, error)
	MarkSynced(ctx context.Context, id string, at time.Time) error
}

// Exporter renders an answer into a file
type Exporter interface {
	Render(format, content, title, question, storeName string) (*domain.Attachment, error)
}

// DriveFetcher downloads files behind cloud drive links
type DriveFetcher interface {
	ExtractLinks(text string) []domain.DriveLink
	Fetch(ctx context.Context, link domain.DriveLink, destDir string) (*domain.FetchedFile, error)
	FolderName(ctx context.Context, folderID string) (string, error)
	FetchFolder(ctx context.Context, folderID, destDir string) ([]domain.FetchedFile, error)
}
