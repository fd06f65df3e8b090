// Package agent holds the bridge's agent-facing surface: the reply
// allowlist filter, the XML batch payload, prompt construction and the
// dispatcher collaborator that turns prompts into agent output.
package agent

import (
	"regexp"
	"strings"
)

var replyRE = regexp.MustCompile(`(?s)<reply>(.*?)</reply>`)

// ExtractReply pulls the allowlisted reply text out of raw agent output.
//
// Agent output mixes tool-call narration and internal reasoning with
// user-facing text; only spans wrapped in <reply> tags may reach the
// chat. Spans are trimmed, empty spans dropped, and the remainder joined
// with single newlines. Returns "" when nothing survives.
func ExtractReply(raw string) string {
	matches := replyRE.FindAllStringSubmatch(raw, -1)
	var spans []string
	for _, m := range matches {
		if s := strings.TrimSpace(m[1]); s != "" {
			spans = append(spans, s)
		}
	}
	return strings.Join(spans, "\n")
}
