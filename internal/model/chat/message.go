package chat

import "strings"

// Sender tags the author of a message.
type Sender string

const (
	SenderUser Sender = "USER"
	SenderAI   Sender = "AI"
)

// PlaceholderContent is shown in the local AI message while an answer is
// being produced.
const PlaceholderContent = "AI가 응답을 생성하는 중입니다..."

// Message is one turn in a session.
type Message struct {
	ID        ID     `json:"messageId"`
	Sender    Sender `json:"sender"`
	Content   string `json:"content"`
	Timestamp Time   `json:"timestamp,omitzero"`

	// Pending marks a local placeholder that has not been stored by the backend.
	Pending bool            `json:"isPending,omitempty"`
	Detail  *ResponseDetail `json:"aiResponseDetail,omitempty"`
}

// ResponseDetail carries the metadata the backend keeps for AI answers.
type ResponseDetail struct {
	EconomicDataUsed      string `json:"economicDataUsed,omitempty"`
	SourceCitations       string `json:"sourceCitations,omitempty"`
	RelatedChartsMetadata string `json:"relatedChartsMetadata,omitempty"`
	RelatedReports        string `json:"relatedReports,omitempty"`
	RagModelVersion       string `json:"ragModelVersion,omitempty"`
}

// IsAnswer reports whether m is a stored AI answer rather than the local
// placeholder.
func (m Message) IsAnswer() bool {
	return m.Sender == SenderAI && !m.Pending && m.Content != PlaceholderContent
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
