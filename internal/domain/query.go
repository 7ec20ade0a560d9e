package domain

// Category is the coarse kind of a user question
type Category string

// Query categories
const (
	CategorySingle     Category = "single"
	CategoryMultistore Category = "multistore"
	CategoryWebSearch  Category = "web_search"
	CategoryCompare    Category = "compare"
	CategorySources    Category = "sources"
)

// Complexity selects the model tier used to answer
type Complexity string

// Complexity levels
const (
	ComplexitySimple  Complexity = "simple"
	ComplexityMedium  Complexity = "medium"
	ComplexityComplex Complexity = "complex"
)

// Action is a control operation requested in natural language or by command
type Action string

// Actions recognized by the classifier and the heuristics
const (
	ActionNone        Action = "none"
	ActionListStores  Action = "list_stores"
	ActionSelectStore Action = "select_store"
	ActionStatus      Action = "status"
	ActionClearMemory Action = "clear_memory"
	ActionExport      Action = "export"
	ActionAddStore    Action = "add_store"
	ActionDeleteStore Action = "delete_store"
	ActionRenameStore Action = "rename_store"
	ActionSetSync     Action = "set_sync"
	ActionSyncNow     Action = "sync_now"
	ActionUploadURL   Action = "upload_url"
	ActionUploadFile  Action = "upload_file"
	ActionHelp        Action = "help"
)

// ActionUnselect clears the active store. It is reachable by command only.
const ActionUnselect Action = "unselect"

var categories = map[Category]bool{
	CategorySingle: true, CategoryMultistore: true, CategoryWebSearch: true,
	CategoryCompare: true, CategorySources: true,
}

var complexities = map[Complexity]bool{
	ComplexitySimple: true, ComplexityMedium: true, ComplexityComplex: true,
}

var actions = map[Action]bool{
	ActionNone: true, ActionListStores: true, ActionSelectStore: true, ActionStatus: true,
	ActionClearMemory: true, ActionExport: true, ActionAddStore: true, ActionDeleteStore: true,
	ActionRenameStore: true, ActionSetSync: true, ActionSyncNow: true, ActionUploadURL: true,
	ActionUploadFile: true, ActionHelp: true,
}

// Valid reports whether c is a known category
func (c Category) Valid() bool { return categories[c] }

// Valid reports whether c is a known complexity
func (c Complexity) Valid() bool { return complexities[c] }

// Valid reports whether a is one of the classifier-visible actions
func (a Action) Valid() bool { return actions[a] }

// AdminOnly reports whether the action mutates the catalog
func (a Action) AdminOnly() bool {
	switch a {
	case ActionAddStore, ActionDeleteStore, ActionRenameStore, ActionSetSync,
		ActionSyncNow, ActionUploadURL, ActionUploadFile:
		return true
	}
	return false
}

// ActionArgs carries the typed arguments of an action
type ActionArgs struct {
	StoreName   string   `json:"store_name,omitempty"`
	OldName     string   `json:"old_name,omitempty"`
	NewName     string   `json:"new_name,omitempty"`
	Description string   `json:"description,omitempty"`
	URLs        []string `json:"urls,omitempty"`
	Format      string   `json:"format,omitempty"`
	Question    string   `json:"question,omitempty"`
}

// ClassifiedQuery is the validated result of classifying a user message
type ClassifiedQuery struct {
	Category       Category   `json:"query_type"`
	Prompt         string     `json:"optimized_prompt"`
	UserIntent     string     `json:"user_intent,omitempty"`
	IncludeSources bool       `json:"include_sources"`
	TargetStore    string     `json:"target_store,omitempty"`
	CompareStores  []string   `json:"compare_stores,omitempty"`
	CompareTopic   string     `json:"compare_topic,omitempty"`
	Action         Action     `json:"action"`
	ActionArgs     ActionArgs `json:"action_args"`
	Confidence     float64    `json:"confidence"`
	Complexity     Complexity `json:"complexity"`
}

// FallbackQuery is the classification used whenever the model output cannot be trusted
func FallbackQuery(question string) *ClassifiedQuery {
	return &ClassifiedQuery{
		Category:   CategorySingle,
		Prompt:     question,
		Action:     ActionNone,
		Confidence: 0,
		Complexity: ComplexityMedium,
	}
}
