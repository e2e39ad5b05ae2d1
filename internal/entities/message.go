package entities

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// ChatMessage is a single role-tagged turn sent to the completion endpoint.
type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// AdvisoryReply is the answer to a free-form chat question.
type AdvisoryReply struct {
	Message     string   `json:"message"`
	Suggestions []string `json:"suggestions"` // At most 3, never nil
}
