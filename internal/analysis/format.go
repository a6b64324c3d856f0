package analysis

import (
	"fmt"
	"strings"

	"github.com/tjfontaine/sidebar-gate/internal/core/domain"
)

const noMessages = "No messages found in conversation."

// FormatMessage renders one message as a From/Subject/Time/Content block.
func FormatMessage(m domain.Message) string {
	from := "Unknown"
	if m.From != nil {
		switch {
		case m.From.Name != "":
			from = m.From.Name
		case m.From.Address != "":
			from = m.From.Address
		}
	}
	subject := m.Subject
	if subject == "" {
		subject = "No subject"
	}
	content := m.Body
	if content == "" {
		content = m.Preview
	}
	var ts string
	if t := m.Delivered(); !t.IsZero() {
		ts = t.Format("2006-01-02 15:04 MST")
	}
	return fmt.Sprintf("From: %s\nSubject: %s\nTime: %s\nContent: %s\n\n", from, subject, ts, content)
}

// FormatConversation joins the message blocks with a separator line.
func FormatConversation(messages []domain.Message) string {
	if len(messages) == 0 {
		return noMessages
	}
	blocks := make([]string, len(messages))
	for i, m := range messages {
		blocks[i] = FormatMessage(m)
	}
	return strings.Join(blocks, "---\n\n")
}
