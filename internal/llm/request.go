// Package llm adapts hosted embedding and completion models to the small
// request shape the responder builds.
package llm

// Role is the author of a conversation turn as seen by the model.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one prior message of the conversation.
type Turn struct {
	Role Role
	Text string
}

// Request is a single completion call: a fixed instruction, the ordered
// conversation ending with the turn to answer, and sampling bounds.
type Request struct {
	System      string
	History     []Turn
	MaxTokens   int
	Temperature float64
}
