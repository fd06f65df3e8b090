package agent

import (
	"fmt"
	"html"
	"strings"

	"github.com/local/waclaw/internal/store"
)

// FormatXMLMessage renders one message element. Attribute values and text
// content are HTML-escaped so raw chat text cannot break the payload.
func FormatXMLMessage(sender, timestamp, content string) string {
	return fmt.Sprintf(`<message sender="%s" time="%s">%s</message>`,
		html.EscapeString(sender), html.EscapeString(timestamp), html.EscapeString(content))
}

// FormatXMLMessages renders a message batch as the user-prompt payload.
func FormatXMLMessages(messages []store.Message) string {
	lines := make([]string, 0, len(messages))
	for _, m := range messages {
		lines = append(lines, FormatXMLMessage(m.Sender, m.Timestamp, m.Text))
	}
	return "<messages>\n" + strings.Join(lines, "\n") + "\n</messages>"
}
