package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/liliang-cn/storerouter/internal/config"
	"github.com/liliang-cn/storerouter/internal/domain"
	"github.com/liliang-cn/storerouter/internal/matcher"
	"go.uber.org/zap"
)

// ActionService executes control actions on behalf of a chat user
type ActionService struct {
	cfg        *config.Config
	registry   StoreRegistry
	selections SelectionStore
	memory     *MemoryService
	sessions   *Sessions
	wizard     *Wizard
	ingest     *IngestService
	exports    *ExportService
	logger     *zap.Logger
}

// NewActionService creates a new action service
func NewActionService(
	cfg *config.Config,
	registry StoreRegistry,
	selections SelectionStore,
	memory *MemoryService,
	sessions *Sessions,
	wizard *Wizard,
	ingest *IngestService,
	exports *ExportService,
	logger *zap.Logger,
) *ActionService {
	return &ActionService{
		cfg:        cfg,
		registry:   registry,
		selections: selections,
		memory:     memory,
		sessions:   sessions,
		wizard:     wizard,
		ingest:     ingest,
		exports:    exports,
		logger:     logger.Named("actions"),
	}
}

// Dispatch runs the action. Admin-only actions are refused for other users.
func (a *ActionService) Dispatch(ctx context.Context, userID int64, action domain.Action, args domain.ActionArgs) *domain.Reply {
	if action.AdminOnly() && !a.cfg.IsAdmin(userID) {
		return domain.Text(MsgAdminOnly)
	}
	a.logger.Info("action", zap.Int64("user", userID), zap.String("action", string(action)))

	switch action {
	case domain.ActionHelp:
		return domain.Text(helpText(a.cfg.IsAdmin(userID)))
	case domain.ActionListStores:
		return a.listStores(ctx, userID)
	case domain.ActionSelectStore:
		return a.selectStore(ctx, userID, args.StoreName)
	case domain.ActionUnselect:
		return a.unselect(ctx, userID)
	case domain.ActionStatus:
		return a.status(ctx, userID)
	case domain.ActionClearMemory:
		if err := a.memory.Clear(ctx, userID); err != nil {
			return domain.Text(ErrorMessage(err))
		}
		return domain.Text("Conversation memory cleared.")
	case domain.ActionExport:
		return a.export(userID, args.Format)
	case domain.ActionAddStore:
		if strings.TrimSpace(args.StoreName) == "" {
			a.wizard.Start(userID)
			return domain.Text("Send the name of the new store. Send /cancel to abort.")
		}
		return a.CreateStore(ctx, userID, args.StoreName, args.Description)
	case domain.ActionDeleteStore:
		return a.deleteStore(ctx, userID, args.StoreName)
	case domain.ActionRenameStore:
		return a.renameStore(ctx, args.OldName, args.NewName)
	case domain.ActionSetSync:
		return a.setSync(ctx, userID, args.StoreName, args.URLs)
	case domain.ActionSyncNow:
		return a.syncNow(ctx, userID, args.StoreName)
	case domain.ActionUploadURL:
		return a.uploadURL(ctx, userID, args.StoreName, args.URLs)
	case domain.ActionUploadFile:
		return a.armUpload(ctx, userID, args.StoreName)
	}
	return domain.Text(helpText(a.cfg.IsAdmin(userID)))
}

// CreateStore creates a store and reports the result
func (a *ActionService) CreateStore(ctx context.Context, userID int64, name, description string) *domain.Reply {
	if !a.cfg.IsAdmin(userID) {
		return domain.Text(MsgAdminOnly)
	}
	store, err := a.registry.Create(ctx, name, description)
	if errors.Is(err, domain.ErrDuplicateName) {
		return domain.Text(fmt.Sprintf("A store named %q already exists.", strings.TrimSpace(name)))
	}
	if err != nil {
		return domain.Text(ErrorMessage(err))
	}
	return &domain.Reply{
		Messages: []string{fmt.Sprintf("Store %q created.\nUpload documents with /upload %s or /uploadurl %s | <links>.",
			store.Name, store.Name, store.Name)},
		Choices: []domain.Choice{{Label: "Select " + store.Name, Command: "/select " + store.Name}},
	}
}

func (a *ActionService) listStores(ctx context.Context, userID int64) *domain.Reply {
	catalog, err := a.registry.List(ctx)
	if err != nil {
		return domain.Text(ErrorMessage(err))
	}
	if len(catalog) == 0 {
		return domain.Text(MsgNoStores)
	}

	var activeID string
	if sel, err := a.selections.Get(ctx, userID); err == nil && sel != nil {
		activeID = sel.StoreID
	}

	var sb strings.Builder
	sb.WriteString("Stores:")
	reply := &domain.Reply{}
	for i, s := range catalog {
		mark := ""
		if s.ID == activeID {
			mark = " (active)"
		}
		fmt.Fprintf(&sb, "\n%d. %s%s, %d documents", i+1, s.Name, mark, len(s.Documents))
		if s.Description != "" {
			sb.WriteString("\n   " + s.Description)
		}
		reply.Choices = append(reply.Choices, domain.Choice{Label: s.Name, Command: "/select " + s.Name})
	}
	reply.Messages = []string{sb.String()}
	return reply
}

func (a *ActionService) selectStore(ctx context.Context, userID int64, name string) *domain.Reply {
	if strings.TrimSpace(name) == "" {
		return a.listStores(ctx, userID)
	}
	store, msg := a.resolve(ctx, userID, name)
	if store == nil {
		return domain.Text(msg)
	}
	if err := a.selections.Set(ctx, userID, store.ID); err != nil {
		return domain.Text(ErrorMessage(err))
	}
	return domain.Text(fmt.Sprintf("Active store: %s", store.Name))
}

func (a *ActionService) unselect(ctx context.Context, userID int64) *domain.Reply {
	if err := a.selections.Clear(ctx, userID); err != nil {
		return domain.Text(ErrorMessage(err))
	}
	return domain.Text("Store selection cleared. Questions will be routed automatically.")
}

func (a *ActionService) status(ctx context.Context, userID int64) *domain.Reply {
	catalog, err := a.registry.List(ctx)
	if err != nil {
		return domain.Text(ErrorMessage(err))
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Stores: %d", len(catalog))

	sel, err := a.selections.Get(ctx, userID)
	if err != nil || sel == nil || sel.StoreName == "" {
		sb.WriteString("\nActive store: none (automatic routing)")
	} else {
		fmt.Fprintf(&sb, "\nActive store: %s", sel.StoreName)
		for _, s := range catalog {
			if s.ID != sel.StoreID {
				continue
			}
			fmt.Fprintf(&sb, "\nDocuments: %d", len(s.Documents))
			if s.LastSync != nil {
				fmt.Fprintf(&sb, "\nLast sync: %s", s.LastSync.Format("2006-01-02 15:04"))
			}
		}
	}
	if a.exports.HasAnswer(userID) {
		sb.WriteString("\nLast answer available for /export")
	}
	return domain.Text(sb.String())
}

func (a *ActionService) export(userID int64, format string) *domain.Reply {
	if !a.exports.HasAnswer(userID) {
		return domain.Text("Nothing to export yet. Ask a question first.")
	}
	format = ParseFormat(format)
	if format == "" {
		return &domain.Reply{Messages: []string{"Choose the export format:"}, Choices: exportChoices()}
	}
	att, err := a.exports.ExportLast(userID, format)
	if err != nil {
		return domain.Text(ErrorMessage(err))
	}
	return &domain.Reply{
		Messages:    []string{"Export ready: " + att.Name},
		Attachments: []domain.Attachment{*att},
	}
}

func (a *ActionService) deleteStore(ctx context.Context, userID int64, name string) *domain.Reply {
	store, msg := a.resolveExact(ctx, name)
	if store == nil {
		return domain.Text(msg)
	}
	if err := a.registry.Delete(ctx, store.ID); err != nil {
		return domain.Text(ErrorMessage(err))
	}
	return domain.Text(fmt.Sprintf("Store %q deleted.", store.Name))
}

func (a *ActionService) renameStore(ctx context.Context, oldName, newName string) *domain.Reply {
	if strings.TrimSpace(oldName) == "" || strings.TrimSpace(newName) == "" {
		return domain.Text("Usage: /rename <old name> -> <new name>")
	}
	store, msg := a.resolveExact(ctx, oldName)
	if store == nil {
		return domain.Text(msg)
	}
	before := store.Name
	updated, err := a.registry.UpdateMetadata(ctx, store.ID, domain.UpdateStoreRequest{Name: newName})
	if errors.Is(err, domain.ErrDuplicateName) {
		return domain.Text(fmt.Sprintf("A store named %q already exists.", strings.TrimSpace(newName)))
	}
	if err != nil {
		return domain.Text(ErrorMessage(err))
	}
	return domain.Text(fmt.Sprintf("Store renamed: %s -> %s", before, updated.Name))
}

func (a *ActionService) setSync(ctx context.Context, userID int64, name string, urls []string) *domain.Reply {
	store, msg := a.resolve(ctx, userID, name)
	if store == nil {
		return domain.Text(msg)
	}
	if len(urls) == 0 {
		return domain.Text("Usage: /setsync <store> | <links>")
	}
	updated, err := a.registry.SetSync(ctx, store.ID, urls, true)
	if err != nil {
		return domain.Text(ErrorMessage(err))
	}
	return domain.Text(fmt.Sprintf("Sync configured for %s: %d links.", updated.Name, len(updated.SyncURLs)))
}

func (a *ActionService) syncNow(ctx context.Context, userID int64, name string) *domain.Reply {
	store, msg := a.resolve(ctx, userID, name)
	if store == nil {
		return domain.Text(msg)
	}
	report, err := a.ingest.SyncStore(ctx, store)
	if err != nil {
		return domain.Text(ErrorMessage(err))
	}
	return domain.Text(fmt.Sprintf("Sync of %s finished.\n%s", store.Name, report.Summary()))
}

func (a *ActionService) uploadURL(ctx context.Context, userID int64, name string, urls []string) *domain.Reply {
	store, msg := a.resolve(ctx, userID, name)
	if store == nil {
		return domain.Text(msg)
	}
	if len(urls) == 0 {
		return domain.Text("Usage: /uploadurl <store> | <links>")
	}
	report, err := a.ingest.UploadURLs(ctx, store, urls)
	if err != nil {
		return domain.Text(ErrorMessage(err))
	}
	return domain.Text(fmt.Sprintf("Upload to %s finished.\n%s", store.Name, report.Summary()))
}

func (a *ActionService) armUpload(ctx context.Context, userID int64, name string) *domain.Reply {
	store, msg := a.resolve(ctx, userID, name)
	if store == nil {
		return domain.Text(msg)
	}
	a.sessions.SetPendingUpload(userID, store.ID)
	return domain.Text(fmt.Sprintf("Send the file now. It will be uploaded to %s. Send /cancel to abort.", store.Name))
}

// resolve finds the named store, falling back to the user's selection when no name is given
func (a *ActionService) resolve(ctx context.Context, userID int64, name string) (*domain.Store, string) {
	if strings.TrimSpace(name) != "" {
		return a.resolveNamed(ctx, name)
	}
	sel, err := a.selections.Get(ctx, userID)
	if err != nil {
		return nil, ErrorMessage(err)
	}
	if sel == nil {
		return nil, "Specify the store name or select a store first."
	}
	store, err := a.registry.FindByID(ctx, sel.StoreID)
	if err != nil {
		return nil, ErrorMessage(err)
	}
	if store == nil {
		return nil, "Specify the store name or select a store first."
	}
	return store, ""
}

// resolveExact finds a store by its exact name, ignoring case. Delete and
// rename never fall back to fuzzy matching.
func (a *ActionService) resolveExact(ctx context.Context, name string) (*domain.Store, string) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, "Specify the store name."
	}
	store, err := a.registry.FindByName(ctx, name)
	if err != nil {
		return nil, ErrorMessage(err)
	}
	if store == nil {
		return nil, "Store not found: " + name
	}
	return store, ""
}

// resolveNamed prefers an exact name and falls back to fuzzy matching
func (a *ActionService) resolveNamed(ctx context.Context, name string) (*domain.Store, string) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, "Specify the store name."
	}
	store, err := a.registry.FindByName(ctx, name)
	if err != nil {
		return nil, ErrorMessage(err)
	}
	if store != nil {
		return store, ""
	}
	catalog, err := a.registry.List(ctx)
	if err != nil {
		return nil, ErrorMessage(err)
	}
	if s, ok := matcher.Best(name, catalog, storeName); ok {
		return s, ""
	}
	return nil, "Store not found: " + name
}

func helpText(admin bool) string {
	var sb strings.Builder
	sb.WriteString(`Ask a question in plain text and it is routed to the right knowledge store.

/list - list stores
/select <store> - answer from one store
/unselect - route automatically again
/status - current state
/clear - forget the conversation
/ask <question> - ask without command detection
/think <question> - ask with the stronger model
/compare <store A> | <store B> | <topic> - compare two stores
/export [pdf|docx] [question] - export the last or a new answer
/cancel - abort the current dialog`)
	if admin {
		sb.WriteString(`

Administration:
/add [name | description] - create a store
/delete <store> - delete a store
/rename <old> -> <new> - rename a store
/upload <store> - then send a file
/uploadurl <store> | <links> - upload from drive links
/setsync <store> | <links> - set links for periodic sync
/syncnow [store] - sync now
A message with a drive folder link creates a store from the folder.`)
	}
	return sb.String()
}
