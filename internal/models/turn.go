// ABOUTME: Turn is optional prior conversation context supplied by a caller
// ABOUTME: Treated as opaque prompt context, never persisted by the core
package models

// Conversation roles
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one prior message in a conversation
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
