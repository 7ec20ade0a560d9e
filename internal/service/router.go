package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/liliang-cn/storerouter/internal/config"
	"github.com/liliang-cn/storerouter/internal/domain"
	"github.com/liliang-cn/storerouter/internal/llm"
	"github.com/liliang-cn/storerouter/internal/matcher"
	"go.uber.org/zap"
)

// Router picks the stores most likely to answer a question
type Router struct {
	registry   StoreRegistry
	gen        Generator
	model      string
	maxResults int
	logger     *zap.Logger
}

// NewRouter creates a router. gen may be nil, in which case the first stores
// of the catalog are chosen.
func NewRouter(registry StoreRegistry, gen Generator, cfg *config.Config, logger *zap.Logger) *Router {
	return &Router{
		registry:   registry,
		gen:        gen,
		model:      cfg.Gemini.ModelFlash,
		maxResults: cfg.Pipeline.RouterMaxResults,
		logger:     logger.Named("router"),
	}
}

type routeDecision struct {
	Selected  []string `json:"selected"`
	Reasoning string   `json:"reasoning"`
}

// Route returns between one and maxResults stores plus a short rationale.
// A non-positive maxResults uses the configured limit. When the model cannot
// decide, the first maxResults stores in catalog order are returned.
// It fails only when the catalog cannot be read or is empty.
func (r *Router) Route(ctx context.Context, question string, maxResults int) ([]*domain.Store, string, error) {
	catalog, err := r.registry.List(ctx)
	if err != nil {
		return nil, "", err
	}
	if len(catalog) == 0 {
		return nil, "", domain.ErrNoStores
	}
	if maxResults <= 0 {
		maxResults = max(r.maxResults, 1)
	}
	if len(catalog) == 1 {
		return catalog, "only one store available", nil
	}

	fallback := func(reason string) ([]*domain.Store, string, error) {
		r.logger.Debug("routing fallback", zap.String("reason", reason))
		return catalog[:min(maxResults, len(catalog))], "fallback: " + reason, nil
	}

	if r.gen == nil {
		return fallback("model not configured")
	}

	raw, err := r.gen.Generate(ctx, llm.Request{
		Model:       r.model,
		System:      routerSystemPrompt,
		Prompt:      routerPrompt(question, catalog, maxResults),
		Temperature: 0.1,
		MaxTokens:   512,
		JSON:        true,
	})
	if err != nil {
		return fallback(err.Error())
	}

	decision, err := parseRouteDecision(raw)
	if err != nil {
		return fallback(err.Error())
	}

	var selected []*domain.Store
	seen := make(map[string]bool)
	for _, name := range decision.Selected {
		store, ok := matcher.Best(name, catalog, storeName)
		if !ok || seen[store.ID] {
			continue
		}
		seen[store.ID] = true
		selected = append(selected, store)
		if len(selected) == maxResults {
			break
		}
	}
	if len(selected) == 0 {
		return fallback("no selected name matched the catalog")
	}
	return selected, decision.Reasoning, nil
}

// parseRouteDecision accepts either a decision object or a bare array of names
func parseRouteDecision(raw string) (*routeDecision, error) {
	body, ok := llm.ExtractJSON(raw)
	if !ok {
		return nil, fmt.Errorf("no JSON in response")
	}

	var d routeDecision
	if body[0] == '[' {
		if err := json.Unmarshal([]byte(body), &d.Selected); err != nil {
			return nil, fmt.Errorf("failed to decode store list: %w", err)
		}
		return &d, nil
	}
	if err := json.Unmarshal([]byte(body), &d); err != nil {
		return nil, fmt.Errorf("failed to decode routing decision: %w", err)
	}
	return &d, nil
}
