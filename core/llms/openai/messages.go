package openai

import (
	"github.com/invopop/jsonschema"
	"github.com/travelbuddy-ai/buddy-core/core/llms"
)

type messageRole string

const (
	messageRoleSystem    messageRole = "system"
	messageRoleUser      messageRole = "user"
	messageRoleAssistant messageRole = "assistant"
	messageRoleTool      messageRole = "tool"
)

type message struct {
	Role       messageRole `json:"role"`
	Content    string      `json:"content"`
	ToolCalls  []toolCall  `json:"tool_calls,omitempty"`
	ToolCallID string      `json:"tool_call_id,omitempty"`
}

type toolCall struct {
	Index    *int             `json:"index,omitempty"`
	ID       string           `json:"id,omitempty"`
	Type     string           `json:"type,omitempty"`
	Function toolCallFunction `json:"function"`
}

type toolCallFunction struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

type tool struct {
	Type     string       `json:"type"`
	Function toolFunction `json:"function"`
}

type toolFunction struct {
	Name        string             `json:"name"`
	Description string             `json:"description,omitempty"`
	Parameters  *jsonschema.Schema `json:"parameters,omitempty"`
}

func toWireMessages(conversation []llms.Message) []message {
	var messages []message
	for _, msg := range conversation {
		switch msg.Role {
		case llms.RoleSystem:
			messages = append(messages, message{Role: messageRoleSystem, Content: msg.Content})

		case llms.RoleUser:
			messages = append(messages, message{Role: messageRoleUser, Content: msg.Content})

		case llms.RoleAssistant:
			wireMsg := message{Role: messageRoleAssistant, Content: msg.Content}
			for _, call := range msg.ToolCalls {
				wireMsg.ToolCalls = append(wireMsg.ToolCalls, toolCall{
					ID:   call.ID,
					Type: "function",
					Function: toolCallFunction{
						Name:      call.Name,
						Arguments: call.Arguments,
					},
				})
			}
			messages = append(messages, wireMsg)

		case llms.RoleTool:
			messages = append(messages, message{
				Role:       messageRoleTool,
				Content:    msg.Content,
				ToolCallID: msg.ToolCallID,
			})
		}
	}
	return messages
}
