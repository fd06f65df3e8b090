package agent

import (
	"fmt"
	"strings"

	"github.com/local/waclaw/internal/routing"
	"github.com/local/waclaw/internal/store"
)

// BuildSystemPrompt composes an agent's system prompt for a chat: the
// reply-tag discipline, the silence-by-default posture and, for
// multi-agent chats, an awareness block that forbids agent-to-agent
// dialogue. The hard-mention directive deliberately lives in the user
// prompt, not here: system prompts are baked into the session at
// creation and ignored on resume.
func BuildSystemPrompt(agent routing.Agent, chatJID string, otherAgents []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s, an ambient participant in a WhatsApp chat (%s).\n\n", agent.Name, chatJID)
	b.WriteString("When you choose to reply, wrap your ENTIRE reply in `<reply>` tags. Text " +
		"outside these tags will NOT be delivered to the chat. Tool-call reasoning " +
		"and internal notes must NOT be wrapped in `<reply>` tags.\n\n")
	b.WriteString("You observe conversations silently. In the vast majority of batches, you " +
		"should produce NO text output. Err heavily toward silence.\n" +
		"Only reply when: (a) you are directly addressed by name or @mention, " +
		"(b) there is clear factual misinformation that no one has corrected, or " +
		"(c) you have crucial missing knowledge that would significantly help the " +
		"conversation.\n" +
		"Do NOT volunteer opinions, make small talk, or interject with tangential " +
		"information. If you choose not to reply, produce no text output at all — " +
		"do not explain why you are staying silent.\n" +
		"You may use tools silently (e.g., writing notes, updating files) even " +
		"when you choose not to reply. Tool use without a reply is normal and expected.\n" +
		"People may refer to you by name in various forms — your full name, " +
		"shortened, with or without @, with punctuation, or even inflected/declined " +
		"forms in non-English languages. When someone addresses you by any variation " +
		"of your name, treat it as a direct address and reply.")

	if len(otherAgents) > 0 {
		fmt.Fprintf(&b, "\n\nThis is a multi-agent group. Other AI agents in this chat: %s.\n",
			strings.Join(otherAgents, ", "))
		b.WriteString("Messages prefixed with [AgentName]: are from another AI agent.\n" +
			"Do NOT respond to another agent's messages — even if they address you.\n" +
			"Only after a human participant sends a message should you consider\n" +
			"whether to speak. Never engage in agent-to-agent dialogue.")
	}
	return b.String()
}

// HardMentionDirective is appended to the user prompt when the batch
// hard-mentions the agent.
const HardMentionDirective = "This batch contains a direct @mention of your name " +
	"— you MUST reply using `<reply>` tags.\n\n"

// BuildUserPrompt composes the user prompt: the XML-serialized batch
// plus, for hard-mentioned agents, the mandatory-reply directive.
func BuildUserPrompt(messages []store.Message, hardMention bool) string {
	var b strings.Builder
	b.WriteString("New message batch from WhatsApp chat:\n\n")
	b.WriteString(FormatXMLMessages(messages))
	b.WriteString("\n\n")
	if hardMention {
		b.WriteString(HardMentionDirective)
	}
	b.WriteString("Decide whether to reply, use tools silently, or do nothing.")
	return b.String()
}
