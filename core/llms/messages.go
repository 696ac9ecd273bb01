package llms

// Role describes who a conversation message is from.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is a single message in a conversation. The ordered sequence of
// messages forms the conversation history handed to the model.
type Message struct {
	Role    Role
	Content string

	// ToolCalls is set on assistant messages that request tool execution.
	ToolCalls []ToolCall
	// ToolCallID links a tool-role message to the call it answers.
	ToolCallID string
}

// ToolCall is a structured request from the model to invoke an external
// capability, plus its eventual textual outcome.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
	Response  string

	// Cancellable marks whether an interruption may abort the call. Calls
	// with external side effects run to completion regardless of interrupts
	// so remote state stays consistent.
	Cancellable bool
}

// Response is the assembled result of one model generation.
type Response struct {
	Content   string
	ToolCalls []ToolCall
}
