package llm

import "context"

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one role-tagged entry of a chat conversation.
type Message struct {
	Role    Role
	Content string
}

func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

func AssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// Result is either a successful reply text or a human-readable failure
// reason. The zero value is a failure with an empty reason.
type Result struct {
	text   string
	reason string
	ok     bool
}

func Ok(text string) Result {
	return Result{text: text, ok: true}
}

func Fail(reason string) Result {
	return Result{reason: reason}
}

func (r Result) OK() bool {
	return r.ok
}

// Text returns the reply of a successful result.
func (r Result) Text() string {
	return r.text
}

// Reason returns the failure reason of an unsuccessful result.
func (r Result) Reason() string {
	return r.reason
}

// Client sends an ordered conversation to a chat-completion model.
type Client interface {
	Complete(ctx context.Context, messages []Message) Result
}

// ClientFunc adapts a plain function to Client.
type ClientFunc func(ctx context.Context, messages []Message) Result

func (f ClientFunc) Complete(ctx context.Context, messages []Message) Result {
	return f(ctx, messages)
}
