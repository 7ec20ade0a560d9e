package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/liliang-cn/storerouter/internal/config"
	"github.com/liliang-cn/storerouter/internal/domain"
	"github.com/liliang-cn/storerouter/internal/llm"
	"go.uber.org/zap"
)

// Classifier turns a user message into a validated ClassifiedQuery
type Classifier struct {
	gen    Generator
	model  string
	logger *zap.Logger
}

// NewClassifier creates a classifier. gen may be nil, in which case every
// message gets the fallback classification.
func NewClassifier(gen Generator, cfg *config.Config, logger *zap.Logger) *Classifier {
	return &Classifier{
		gen:    gen,
		model:  cfg.Gemini.ModelPro,
		logger: logger.Named("classifier"),
	}
}

// Classify never fails: any model or parse problem yields domain.FallbackQuery
func (c *Classifier) Classify(ctx context.Context, question string, catalog []*domain.Store, history string) *domain.ClassifiedQuery {
	if c.gen == nil {
		return domain.FallbackQuery(question)
	}

	raw, err := c.gen.Generate(ctx, llm.Request{
		Model:       c.model,
		System:      classifierSystemPrompt,
		Prompt:      classifierPrompt(question, catalog, history),
		Temperature: 0.1,
		MaxTokens:   1024,
		JSON:        true,
	})
	if err != nil {
		c.logger.Warn("classification failed", zap.Error(err))
		return domain.FallbackQuery(question)
	}

	q, err := ParseClassification(raw, question)
	if err != nil {
		c.logger.Warn("invalid classification", zap.Error(err), zap.String("raw", Truncate(raw, 300)))
		return domain.FallbackQuery(question)
	}

	c.logger.Debug("classified",
		zap.String("category", string(q.Category)),
		zap.String("action", string(q.Action)),
		zap.Float64("confidence", q.Confidence),
		zap.String("target", q.TargetStore))
	return q
}

type classification struct {
	QueryType       *string         `json:"query_type"`
	OptimizedPrompt *string         `json:"optimized_prompt"`
	UserIntent      string          `json:"user_intent"`
	IncludeSources  *bool           `json:"include_sources"`
	TargetStore     *string         `json:"target_store"`
	CompareStores   []string        `json:"compare_stores"`
	CompareTopic    *string         `json:"compare_topic"`
	Action          *string         `json:"action"`
	ActionArgs      json.RawMessage `json:"action_args"`
	Confidence      *float64        `json:"confidence"`
	Complexity      *string         `json:"complexity"`
}

// ParseClassification validates model output against the classification schema.
// Required: query_type, optimized_prompt, confidence. Optional fields default
// to action "none", complexity "medium" and no sources.
func ParseClassification(raw, question string) (*domain.ClassifiedQuery, error) {
	body, ok := llm.ExtractJSON(raw)
	if !ok || !strings.HasPrefix(body, "{") {
		return nil, fmt.Errorf("no JSON object in response")
	}

	var wire classification
	dec := json.NewDecoder(bytes.NewReader([]byte(body)))
	if err := dec.Decode(&wire); err != nil {
		return nil, fmt.Errorf("failed to decode classification: %w", err)
	}

	if wire.QueryType == nil {
		return nil, fmt.Errorf("query_type is missing")
	}
	category := domain.Category(*wire.QueryType)
	if !category.Valid() {
		return nil, fmt.Errorf("unknown query_type %q", *wire.QueryType)
	}

	if wire.OptimizedPrompt == nil || strings.TrimSpace(*wire.OptimizedPrompt) == "" {
		return nil, fmt.Errorf("optimized_prompt is missing")
	}

	if wire.Confidence == nil {
		return nil, fmt.Errorf("confidence is missing")
	}
	if *wire.Confidence < 0 || *wire.Confidence > 1 {
		return nil, fmt.Errorf("confidence %v out of range", *wire.Confidence)
	}

	complexity := domain.ComplexityMedium
	if wire.Complexity != nil {
		complexity = domain.Complexity(*wire.Complexity)
		if !complexity.Valid() {
			return nil, fmt.Errorf("unknown complexity %q", *wire.Complexity)
		}
	}

	action := domain.ActionNone
	if wire.Action != nil && *wire.Action != "" {
		action = domain.Action(*wire.Action)
		if !action.Valid() {
			return nil, fmt.Errorf("unknown action %q", *wire.Action)
		}
	}

	var args domain.ActionArgs
	if trimmed := bytes.TrimSpace(wire.ActionArgs); len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null")) {
		if trimmed[0] != '{' {
			return nil, fmt.Errorf("action_args must be an object")
		}
		if err := json.Unmarshal(trimmed, &args); err != nil {
			return nil, fmt.Errorf("invalid action_args: %w", err)
		}
	}

	q := &domain.ClassifiedQuery{
		Category:   category,
		Prompt:     strings.TrimSpace(*wire.OptimizedPrompt),
		UserIntent: wire.UserIntent,
		Action:     action,
		ActionArgs: args,
		Confidence: *wire.Confidence,
		Complexity: complexity,
	}
	if wire.IncludeSources != nil {
		q.IncludeSources = *wire.IncludeSources
	}
	if wire.TargetStore != nil {
		q.TargetStore = nullableName(*wire.TargetStore)
	}
	if wire.CompareTopic != nil {
		q.CompareTopic = strings.TrimSpace(*wire.CompareTopic)
	}

	if category == domain.CategoryCompare {
		var names []string
		for _, n := range wire.CompareStores {
			if n = nullableName(n); n != "" {
				names = append(names, n)
			}
		}
		if len(names) != 2 {
			return nil, fmt.Errorf("compare needs exactly two stores, got %d", len(names))
		}
		q.CompareStores = names
		if q.CompareTopic == "" {
			q.CompareTopic = question
		}
	}

	return q, nil
}

// nullableName maps the "no store" spellings models produce to ""
func nullableName(s string) string {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "", "null", "none", "nil", "n/a":
		return ""
	}
	return s
}
