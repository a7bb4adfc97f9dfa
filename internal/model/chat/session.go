package chat

// NewConversationTitle is the placeholder title the backend stores for
// sessions that were never named.
const NewConversationTitle = "새 대화"

// Session is one conversation thread owned by a user.
type Session struct {
	ID        ID     `json:"sessionId"`
	Title     string `json:"title"`
	StartTime Time   `json:"startTime,omitzero"`

	// Preview is derived client-side from the latest message.
	Preview string `json:"preview,omitempty"`
}

// Untitled reports whether the title is blank or the placeholder.
func (s Session) Untitled() bool {
	return isBlank(s.Title) || s.Title == NewConversationTitle
}
