package service

import (
	"fmt"
	"strings"

	"github.com/liliang-cn/storerouter/internal/domain"
)

const classifierSystemPrompt = `You classify messages sent to a bot that answers questions from named knowledge stores.
Reply with a single JSON object and nothing else:
{
  "query_type": "single" | "multistore" | "web_search" | "compare" | "sources",
  "optimized_prompt": "the question rewritten for document search, self-contained, same language as the user",
  "user_intent": "short description of what the user wants",
  "include_sources": true | false,
  "target_store": "exact store name from the catalog" | null,
  "compare_stores": ["store A", "store B"] | null,
  "compare_topic": "topic of the comparison" | null,
  "action": "none" | "list_stores" | "select_store" | "status" | "clear_memory" | "export" | "add_store" | "delete_store" | "rename_store" | "set_sync" | "sync_now" | "upload_url" | "upload_file" | "help",
  "action_args": {"store_name": "", "old_name": "", "new_name": "", "description": "", "urls": [], "format": "pdf|docx", "question": ""} | null,
  "confidence": 0.0-1.0,
  "complexity": "simple" | "medium" | "complex"
}
Rules:
- "single": a question about one store. Set target_store when the user names or clearly implies one.
- "multistore": the question must be answered across all stores ("in which store", "everywhere", "all projects").
- "web_search": the answer needs the internet, not the stores.
- "compare": two stores are compared. compare_stores must hold exactly two names.
- "sources": the user explicitly asks for the documents or sources behind an answer.
- action is "none" for ordinary questions. Use an action only for explicit control requests.
- For "export" with a new question put the question in action_args.question.
- Resolve pronouns and follow-ups using the previous conversation.
- complexity "complex" is for analysis, calculations or multi-step reasoning.
Handle user input variations:
- Transliteration: "дубровка" = "Dubrovka", "майприорити" = "MYPRIORITY". Map such names to the catalog.
- Typos, misspellings and colloquialisms: understand the intent and correct them in optimized_prompt.
- Mixed Russian and English in one message.
Rules for optimized_prompt:
1. Fix all errors and typos.
2. Expand the question and add the context it needs.
3. Ask for concrete data: figures, dates, volumes, requirements.
4. Ask for a structured, detailed answer with sections.
5. Keep the user's language.`

const routerSystemPrompt = `You choose which knowledge stores can answer a question.
Reply with JSON only: {"selected": ["store name", ...], "reasoning": "one sentence"}.
Use names exactly as listed. Order by relevance.
Handle user input variations:
- Transliteration: "майприорити" = "MYPRIORITY", "дубровка" = "Dubrovka", "гранель" = "Granel".
- Typos and misspellings: understand the intent even with errors.
- Partial names: "приорити" matches "MYPRIORITY".
- Mixed languages and any letter case.
- Numbers such as "295" or "6.2" are project identifiers.
If no store seems relevant, return an empty list.`

const compareSystemPrompt = `You compare two knowledge stores using the answers each store gave on the same topic.
Produce a structured comparison: similarities, differences and a short conclusion.
Use only the facts given. Answer in the language of the topic.`

// formatCatalog renders stores as a numbered list for prompts
func formatCatalog(stores []*domain.Store) string {
	if len(stores) == 0 {
		return "(no stores)"
	}
	var sb strings.Builder
	for i, s := range stores {
		fmt.Fprintf(&sb, "%d. %s", i+1, s.Name)
		if s.Description != "" {
			sb.WriteString(": " + s.Description)
		}
		fmt.Fprintf(&sb, " (%d documents)\n", len(s.Documents))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func classifierPrompt(question string, catalog []*domain.Store, history string) string {
	if history == "" {
		history = "Previous conversation: (none)"
	}
	return fmt.Sprintf("Stores:\n%s\n\n%s\n\nMessage:\n%s", formatCatalog(catalog), history, question)
}

func routerPrompt(question string, catalog []*domain.Store, maxResults int) string {
	return fmt.Sprintf("Stores:\n%s\n\nSelect at most %d stores for the question:\n%s",
		formatCatalog(catalog), maxResults, question)
}

func comparePrompt(topic string, a, b domain.StoreAnswer) string {
	return fmt.Sprintf("Topic: %s\n\n=== %s ===\n%s\n\n=== %s ===\n%s",
		topic, a.StoreName, answerOrGap(a), b.StoreName, answerOrGap(b))
}

func compareQuestion(topic string) string {
	return fmt.Sprintf("Give a detailed, structured answer about: %s", topic)
}

func answerOrGap(a domain.StoreAnswer) string {
	if !a.HasResult() {
		return "(no information)"
	}
	return a.Answer
}
