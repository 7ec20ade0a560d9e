package service

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"

	"github.com/liliang-cn/storerouter/internal/config"
	"github.com/liliang-cn/storerouter/internal/domain"
	"github.com/liliang-cn/storerouter/internal/drive"
	"github.com/liliang-cn/storerouter/internal/intent"
	"github.com/liliang-cn/storerouter/internal/llm"
	"github.com/liliang-cn/storerouter/internal/matcher"
	"go.uber.org/zap"
)

// PipelineDeps are the collaborators of the message pipeline. Web and
// Generator may be nil when no model is configured.
type PipelineDeps struct {
	Config     *config.Config
	Registry   StoreRegistry
	Classifier *Classifier
	Router     *Router
	Memory     *MemoryService
	Selections SelectionStore
	Actions    *ActionService
	Sessions   *Sessions
	Wizard     *Wizard
	Ingest     *IngestService
	Exports    *ExportService
	Web        WebSearcher
	Generator  Generator
	Logger     *zap.Logger
}

// Pipeline turns inbound chat messages into replies
type Pipeline struct {
	cfg        *config.Config
	registry   StoreRegistry
	classifier *Classifier
	router     *Router
	memory     *MemoryService
	selections SelectionStore
	actions    *ActionService
	sessions   *Sessions
	wizard     *Wizard
	ingest     *IngestService
	exports    *ExportService
	web        WebSearcher
	gen        Generator
	logger     *zap.Logger
}

// NewPipeline creates a new message pipeline
func NewPipeline(d PipelineDeps) *Pipeline {
	return &Pipeline{
		cfg:        d.Config,
		registry:   d.Registry,
		classifier: d.Classifier,
		router:     d.Router,
		memory:     d.Memory,
		selections: d.Selections,
		actions:    d.Actions,
		sessions:   d.Sessions,
		wizard:     d.Wizard,
		ingest:     d.Ingest,
		exports:    d.Exports,
		web:        d.Web,
		gen:        d.Generator,
		logger:     d.Logger.Named("pipeline"),
	}
}

type answerOptions struct {
	questionOnly bool
	forceComplex bool
	export       bool
	exportFormat string
}

type answerResult struct {
	text      string
	storeName string
	scope     string
	final     bool
}

// Handle processes one text message. It never returns nil and never panics.
func (p *Pipeline) Handle(ctx context.Context, in domain.Inbound) (reply *domain.Reply) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("panic while handling message",
				zap.Int64("user", in.UserID),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
			reply = domain.Text(MsgInternalError)
		}
	}()

	if !p.cfg.IsAllowed(in.UserID) {
		return domain.Text(MsgAccessDenied)
	}
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return domain.Text(helpText(p.cfg.IsAdmin(in.UserID)))
	}

	p.logger.Info("message", zap.Int64("user", in.UserID), zap.Int("length", len([]rune(text))))

	if cmd, ok := parseCommand(text); ok {
		return p.finish(p.handleCommand(ctx, in.UserID, cmd))
	}
	if p.wizard.Active(in.UserID) {
		return p.finish(p.continueWizard(ctx, in.UserID, text))
	}
	if p.cfg.IsAdmin(in.UserID) && drive.HasFolderLink(text) {
		return p.finish(p.ingestFolders(ctx, text))
	}
	return p.finish(p.answer(ctx, in.UserID, text, answerOptions{}))
}

// HandleFile uploads a received document into the target store
func (p *Pipeline) HandleFile(ctx context.Context, in domain.InboundFile) (reply *domain.Reply) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("panic while handling file", zap.Int64("user", in.UserID), zap.Any("panic", r))
			reply = domain.Text(MsgInternalError)
		}
	}()

	if !p.cfg.IsAllowed(in.UserID) {
		return domain.Text(MsgAccessDenied)
	}
	if !p.cfg.IsAdmin(in.UserID) {
		return domain.Text(MsgAdminOnly)
	}

	store, msg := p.uploadTarget(ctx, in)
	if store == nil {
		return domain.Text(msg)
	}

	file := domain.FetchedFile{Path: in.Path, Filename: in.Filename, Size: in.Size}
	if err := p.ingest.UploadLocal(ctx, store, file); err != nil {
		if errors.Is(err, domain.ErrInvalidRequest) {
			return domain.Text(fmt.Sprintf("Unsupported file type: %s", in.Filename))
		}
		return domain.Text(ErrorMessage(err))
	}
	p.sessions.ClearPendingUpload(in.UserID)
	return domain.Text(fmt.Sprintf("File %s uploaded to %s.", in.Filename, store.Name))
}

// uploadTarget resolves the caption, then the pending upload, then the selection
func (p *Pipeline) uploadTarget(ctx context.Context, in domain.InboundFile) (*domain.Store, string) {
	if caption := intent.CleanStoreName(in.Caption); caption != "" {
		catalog, err := p.registry.List(ctx)
		if err != nil {
			return nil, ErrorMessage(err)
		}
		if s, ok := matcher.Best(caption, catalog, storeName); ok {
			return s, ""
		}
		return nil, "Store not found: " + caption
	}

	if id, ok := p.sessions.PendingUpload(in.UserID); ok {
		if s, err := p.registry.FindByID(ctx, id); err == nil && s != nil {
			return s, ""
		}
	}
	if sel, err := p.selections.Get(ctx, in.UserID); err == nil && sel != nil {
		if s, err := p.registry.FindByID(ctx, sel.StoreID); err == nil && s != nil {
			return s, ""
		}
	}
	return nil, "Specify the store: send /upload <store> first or put the store name in the caption."
}

func (p *Pipeline) continueWizard(ctx context.Context, userID int64, text string) *domain.Reply {
	step := p.wizard.Advance(userID, text)
	switch step.State {
	case WizardAwaitingName:
		return domain.Text("Send the name of the new store.")
	case WizardAwaitingDescription:
		return domain.Text(fmt.Sprintf("Now send a description for %q, or - to skip.", step.Name))
	case WizardDone:
		return p.actions.CreateStore(ctx, userID, step.Name, step.Description)
	}
	// Session expired between checks; treat the text as a question
	return p.answer(ctx, userID, text, answerOptions{})
}

func (p *Pipeline) ingestFolders(ctx context.Context, text string) *domain.Reply {
	reports, err := p.ingest.IngestFolders(ctx, text)
	if err != nil {
		return domain.Text(ErrorMessage(err))
	}

	var msgs []string
	for _, r := range reports {
		if r.Err != nil {
			msgs = append(msgs, fmt.Sprintf("Folder %s: %s", r.StoreName, ErrorMessage(r.Err)))
			continue
		}
		verb := "updated"
		if r.Created {
			verb = "created"
		}
		msgs = append(msgs, fmt.Sprintf("Store %s %s from the folder.\n%s", r.StoreName, verb, r.Report.Summary()))
	}
	if len(msgs) == 0 {
		return domain.Text("No drive folders found in the message.")
	}
	return &domain.Reply{Messages: msgs}
}

// answer runs classification, action resolution and the category branch
func (p *Pipeline) answer(ctx context.Context, userID int64, question string, opts answerOptions) *domain.Reply {
	catalog, err := p.registry.List(ctx)
	if err != nil {
		return domain.Text(ErrorMessage(err))
	}

	history := p.memory.History(ctx, userID, domain.GlobalScope)
	cq := p.classifier.Classify(ctx, question, catalog, history)
	if opts.forceComplex {
		cq.Complexity = domain.ComplexityComplex
	}

	if !opts.questionOnly {
		action, args := p.resolveAction(cq, question)
		if action == domain.ActionExport && strings.TrimSpace(args.Question) != "" {
			// "export <question>": answer the new question, then export it
			return p.answer(ctx, userID, args.Question, answerOptions{
				questionOnly: true,
				export:       true,
				exportFormat: ParseFormat(args.Format),
			})
		}
		if action != domain.ActionNone {
			return p.actions.Dispatch(ctx, userID, action, args)
		}
	}

	var res *answerResult
	switch cq.Category {
	case domain.CategoryWebSearch:
		res, err = p.webSearch(ctx, cq)
	case domain.CategoryMultistore:
		res, err = p.multistore(ctx, catalog, cq)
	case domain.CategoryCompare:
		res, err = p.compare(ctx, catalog, cq.CompareStores[0], cq.CompareStores[1], cq.CompareTopic, cq.Complexity)
	default:
		res, err = p.singleStore(ctx, userID, question, catalog, cq)
	}
	if err != nil {
		p.logger.Warn("answer failed", zap.Int64("user", userID), zap.String("category", string(cq.Category)), zap.Error(err))
		return domain.Text(ErrorMessage(err))
	}
	if res.final {
		return domain.Text(res.text)
	}

	p.memory.Record(ctx, userID, domain.GlobalScope, question, res.text)
	if res.scope != "" {
		p.memory.Record(ctx, userID, res.scope, question, res.text)
	}
	p.exports.Remember(userID, question, res.text, res.storeName)

	reply := domain.Text(res.text)
	if opts.export {
		if opts.exportFormat == "" {
			reply.Choices = exportChoices()
		} else if att, err := p.exports.ExportLast(userID, opts.exportFormat); err != nil {
			reply.Messages = append(reply.Messages, ErrorMessage(err))
		} else {
			reply.Attachments = append(reply.Attachments, *att)
		}
	}
	return reply
}

// resolveAction prefers a confident classifier action, then the heuristics
func (p *Pipeline) resolveAction(cq *domain.ClassifiedQuery, question string) (domain.Action, domain.ActionArgs) {
	if cq.Action != domain.ActionNone && cq.Confidence >= p.cfg.Pipeline.ConfidenceThreshold {
		return cq.Action, cq.ActionArgs
	}
	return intent.Infer(question)
}

func (p *Pipeline) singleStore(
	ctx context.Context,
	userID int64,
	question string,
	catalog []*domain.Store,
	cq *domain.ClassifiedQuery,
) (*answerResult, error) {
	if len(catalog) == 0 {
		return nil, domain.ErrNoStores
	}

	target := p.pickTarget(ctx, userID, question, catalog, cq)
	if target == nil {
		stores, rationale, err := p.router.Route(ctx, question, p.cfg.Pipeline.RouterMaxResults)
		if err != nil {
			return nil, err
		}
		target = stores[0]
		p.logger.Debug("routed",
			zap.String("store", target.Name),
			zap.Int("candidates", len(stores)),
			zap.String("rationale", rationale))
	}

	prompt := p.memory.Context(ctx, userID, target.ID) + cq.Prompt
	answer, err := p.registry.Query(ctx, target, prompt, cq.Complexity, QueryOptions{
		IncludeSources: cq.IncludeSources || cq.Category == domain.CategorySources,
	})
	if err != nil {
		return nil, err
	}
	if answer == "" {
		return &answerResult{text: fmt.Sprintf("No answer from store %s.", target.Name), final: true}, nil
	}

	return &answerResult{
		text:      fmt.Sprintf("[%s]\n\n%s", target.Name, answer),
		storeName: target.Name,
		scope:     target.ID,
	}, nil
}

// pickTarget resolves the classifier target, then a name in the text, then the selection
func (p *Pipeline) pickTarget(
	ctx context.Context,
	userID int64,
	question string,
	catalog []*domain.Store,
	cq *domain.ClassifiedQuery,
) *domain.Store {
	name := cq.TargetStore
	if name == "" {
		name = intent.TargetHint(question)
	}
	if name != "" {
		if s, ok := matcher.Best(name, catalog, storeName); ok {
			return s
		}
	}

	sel, err := p.selections.Get(ctx, userID)
	if err != nil || sel == nil {
		return nil
	}
	for _, s := range catalog {
		if s.ID == sel.StoreID {
			return s
		}
	}
	// Stale selection of a store that no longer exists
	if err := p.selections.Clear(ctx, userID); err != nil {
		p.logger.Warn("failed to clear stale selection", zap.Int64("user", userID), zap.Error(err))
	}
	return nil
}

func (p *Pipeline) multistore(ctx context.Context, catalog []*domain.Store, cq *domain.ClassifiedQuery) (*answerResult, error) {
	if len(catalog) == 0 {
		return nil, domain.ErrNoStores
	}

	answers := p.registry.QueryManyParallel(ctx, catalog, cq.Prompt, cq.Complexity)
	var parts []string
	for _, a := range answers {
		if !a.HasResult() || IsNotFound(a.Answer) {
			continue
		}
		parts = append(parts, fmt.Sprintf("[%s]\n%s", a.StoreName, a.Answer))
	}
	if len(parts) == 0 {
		return &answerResult{text: MsgNothingFound}, nil
	}
	return &answerResult{text: strings.Join(parts, "\n\n")}, nil
}

// compare resolves both names before any retrieval and synthesizes the two answers
func (p *Pipeline) compare(
	ctx context.Context,
	catalog []*domain.Store,
	nameA, nameB, topic string,
	complexity domain.Complexity,
) (*answerResult, error) {
	if len(catalog) == 0 {
		return nil, domain.ErrNoStores
	}
	a, ok := matcher.Best(nameA, catalog, storeName)
	if !ok {
		return &answerResult{text: "Store not found: " + nameA, final: true}, nil
	}
	b, ok := matcher.Best(nameB, catalog, storeName)
	if !ok {
		return &answerResult{text: "Store not found: " + nameB, final: true}, nil
	}
	if a.ID == b.ID {
		return &answerResult{text: "Choose two different stores to compare.", final: true}, nil
	}
	if topic == "" {
		topic = "general overview"
	}

	answers := p.registry.QueryManyParallel(ctx, []*domain.Store{a, b}, compareQuestion(topic), complexity)
	byID := make(map[string]domain.StoreAnswer, len(answers))
	for _, ans := range answers {
		byID[ans.StoreID] = ans
	}
	ansA, ansB := byID[a.ID], byID[b.ID]
	if !ansA.HasResult() && !ansB.HasResult() {
		return &answerResult{text: MsgNothingFound, final: true}, nil
	}

	body := fmt.Sprintf("[%s]\n%s\n\n[%s]\n%s", a.Name, answerOrGap(ansA), b.Name, answerOrGap(ansB))
	if p.gen != nil {
		synthesis, err := p.gen.Generate(ctx, llm.Request{
			Model:       p.cfg.Gemini.ModelPro,
			System:      compareSystemPrompt,
			Prompt:      comparePrompt(topic, ansA, ansB),
			Temperature: 0.3,
			MaxTokens:   4096,
		})
		if err != nil {
			p.logger.Warn("comparison synthesis failed", zap.Error(err))
		} else if strings.TrimSpace(synthesis) != "" {
			body = strings.TrimSpace(synthesis)
		}
	}

	return &answerResult{
		text:      fmt.Sprintf("Comparison: %s vs %s\nTopic: %s\n\n%s", a.Name, b.Name, topic, body),
		storeName: a.Name + " vs " + b.Name,
	}, nil
}

func (p *Pipeline) compareCommand(ctx context.Context, userID int64, nameA, nameB, topic string) *domain.Reply {
	catalog, err := p.registry.List(ctx)
	if err != nil {
		return domain.Text(ErrorMessage(err))
	}
	res, err := p.compare(ctx, catalog, nameA, nameB, topic, domain.ComplexityComplex)
	if err != nil {
		return domain.Text(ErrorMessage(err))
	}
	if !res.final {
		question := fmt.Sprintf("Compare %s and %s: %s", nameA, nameB, topic)
		p.memory.Record(ctx, userID, domain.GlobalScope, question, res.text)
		p.exports.Remember(userID, question, res.text, res.storeName)
	}
	return domain.Text(res.text)
}

func (p *Pipeline) webSearch(ctx context.Context, cq *domain.ClassifiedQuery) (*answerResult, error) {
	if p.web == nil {
		return &answerResult{text: MsgWebUnavailable, final: true}, nil
	}
	model := p.cfg.Gemini.ModelFlash
	if cq.Complexity == domain.ComplexityComplex {
		model = p.cfg.Gemini.ModelPro
	}
	answer, err := p.web.SearchWeb(ctx, model, cq.Prompt)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(answer) == "" {
		return &answerResult{text: MsgNothingFound, final: true}, nil
	}
	return &answerResult{text: "[Web search]\n\n" + answer, storeName: "Web search"}, nil
}

// finish splits long messages for the transport
func (p *Pipeline) finish(reply *domain.Reply) *domain.Reply {
	if reply == nil {
		return domain.Text(MsgInternalError)
	}
	var out []string
	for _, m := range reply.Messages {
		out = append(out, Chunk(m, p.cfg.Pipeline.MessageLimit)...)
	}
	reply.Messages = out
	return reply
}
