package domain

import "time"

// GlobalScope is the conversation scope shared across all stores
const GlobalScope = "global"

// Conversation roles
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one remembered conversation message
type Turn struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// MemoryStats summarizes stored conversation memory
type MemoryStats struct {
	Users    int `json:"users"`
	Scopes   int `json:"scopes"`
	Messages int `json:"messages"`
}

// Selection is a user's persisted active store
type Selection struct {
	UserID    int64     `json:"user_id"`
	StoreID   string    `json:"store_id"`
	StoreName string    `json:"store_name"`
	UpdatedAt time.Time `json:"updated_at"`
}
