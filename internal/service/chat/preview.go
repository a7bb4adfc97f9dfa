package chat

import (
	"slices"
	"strings"

	"github.com/zhouzirui/roboadvisor/client/internal/model/chat"
)

const (
	PreviewMaxRunes = 10
	PreviewEllipsis = "..."
)

// Summarize shortens content to PreviewMaxRunes characters.
func Summarize(content string) string {
	runes := []rune(content)
	if len(runes) <= PreviewMaxRunes {
		return content
	}
	return string(runes[:PreviewMaxRunes]) + PreviewEllipsis
}

// DisplayTitle picks the label shown in the session list: the stored title,
// else the preview of the latest message, else the placeholder title.
func DisplayTitle(session chat.Session) string {
	if !session.Untitled() {
		return session.Title
	}
	if strings.TrimSpace(session.Preview) != "" {
		return session.Preview
	}
	return chat.NewConversationTitle
}

// SortSessions returns a copy ordered newest first by numeric id. Ids that do
// not start with digits rank as zero. Ties keep server order.
func SortSessions(sessions []chat.Session) []chat.Session {
	sorted := slices.Clone(sessions)
	slices.SortStableFunc(sorted, func(a, b chat.Session) int {
		ra, rb := sessionRank(a.ID), sessionRank(b.ID)
		switch {
		case ra > rb:
			return -1
		case ra < rb:
			return 1
		default:
			return 0
		}
	})
	return sorted
}

// sessionRank parses the leading integer of id, the way the web client did
// with parseInt(id, 10) || 0.
func sessionRank(id chat.ID) int64 {
	s := strings.TrimSpace(id.String())
	negative := false
	if s != "" && (s[0] == '-' || s[0] == '+') {
		negative = s[0] == '-'
		s = s[1:]
	}

	var n int64
	digits := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			break
		}
		if n > (1<<62)/10 {
			break
		}
		n = n*10 + int64(r-'0')
		digits++
	}
	if digits == 0 {
		return 0
	}
	if negative {
		return -n
	}
	return n
}
