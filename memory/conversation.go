package memory

// Roles a Message may carry.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one conversation entry. ToolName tags assistant messages that
// carry a tool result; IsError marks results of failed calls.
type Message struct {
	Role     string `json:"role"`
	Text     string `json:"text,omitempty"`
	ToolName string `json:"tool_name,omitempty"`
	IsError  bool   `json:"is_error,omitempty"`
}

// UserMessage returns a user message with the given text.
func UserMessage(text string) Message {
	return Message{Role: RoleUser, Text: text}
}

// AssistantMessage returns an assistant message with the given text.
func AssistantMessage(text string) Message {
	return Message{Role: RoleAssistant, Text: text}
}

// Conversation is an append-only ordered sequence of messages. Entries are
// never mutated after Append; a new query starts a new Conversation.
type Conversation struct {
	msgs []Message
}

// NewConversation returns a conversation seeded with msgs.
func NewConversation(seed ...Message) *Conversation {
	c := &Conversation{msgs: make([]Message, 0, len(seed)+8)}
	c.msgs = append(c.msgs, seed...)
	return c
}

// Append adds m to the end of the conversation.
func (c *Conversation) Append(m Message) {
	c.msgs = append(c.msgs, m)
}

// Len returns the number of messages.
func (c *Conversation) Len() int { return len(c.msgs) }

// Messages returns a copy of the messages, oldest first.
func (c *Conversation) Messages() []Message {
	out := make([]Message, len(c.msgs))
	copy(out, c.msgs)
	return out
}

// SegmentKind distinguishes the two kinds of model output.
type SegmentKind int

const (
	SegmentText SegmentKind = iota
	SegmentToolUse
)

func (k SegmentKind) String() string {
	switch k {
	case SegmentText:
		return "text"
	case SegmentToolUse:
		return "tool_use"
	default:
		return "unknown"
	}
}

// Segment is one element of a reasoning-engine reply, in emission order.
// Text is set for text segments; ToolName and Arguments for tool-use
// segments. ToolUseID is the engine's id for the request, if any.
type Segment struct {
	Kind      SegmentKind
	Text      string
	ToolUseID string
	ToolName  string
	Arguments map[string]any
}

// TextSegment returns a text segment.
func TextSegment(text string) Segment {
	return Segment{Kind: SegmentText, Text: text}
}

// ToolUseSegment returns a tool-use segment.
func ToolUseSegment(name string, args map[string]any) Segment {
	return Segment{Kind: SegmentToolUse, ToolName: name, Arguments: args}
}
