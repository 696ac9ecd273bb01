package pipeline

import (
	"sync"

	"github.com/travelbuddy-ai/buddy-core/core/llms"
)

// Conversation is the ordered message history sent to the model. The system
// prompt is always message zero. Writers append whole messages; tool result
// messages always directly follow the assistant message that requested
// them, which the chat-completions contract requires.
type Conversation struct {
	mu       sync.Mutex
	messages []llms.Message
}

func NewConversation(systemPrompt string) *Conversation {
	return &Conversation{
		messages: []llms.Message{{Role: llms.RoleSystem, Content: systemPrompt}},
	}
}

func (c *Conversation) AppendUser(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, llms.Message{Role: llms.RoleUser, Content: text})
}

func (c *Conversation) AppendAssistant(text string) {
	if text == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, llms.Message{Role: llms.RoleAssistant, Content: text})
}

// AppendAssistantToolCalls records an assistant turn that requested tools,
// with whatever content streamed alongside the calls.
func (c *Conversation) AppendAssistantToolCalls(content string, toolCalls []llms.ToolCall) {
	if len(toolCalls) == 0 {
		c.AppendAssistant(content)
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, llms.Message{
		Role:      llms.RoleAssistant,
		Content:   content,
		ToolCalls: toolCalls,
	})
}

func (c *Conversation) AppendToolResult(callID, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, llms.Message{
		Role:       llms.RoleTool,
		Content:    text,
		ToolCallID: callID,
	})
}

// Snapshot returns a copy of the history safe to hand to a model request.
func (c *Conversation) Snapshot() []llms.Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	snapshot := make([]llms.Message, len(c.messages))
	copy(snapshot, c.messages)
	return snapshot
}

func (c *Conversation) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.messages)
}
