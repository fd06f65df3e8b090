package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/local/waclaw/internal/store"
)

// DefaultModel is used when neither the agent config nor the request
// names a model.
const DefaultModel = "claude-sonnet-4-5"

const maxReplyTokens = 2048

// maxHistoryTurns bounds how much stored history is replayed per call.
const maxHistoryTurns = 20

// Request carries one batch dispatch to an agent.
type Request struct {
	// Prompt is the user prompt (XML batch + directives).
	Prompt string
	// ChannelPrefix scopes the conversation, e.g. "wa-ressu".
	ChannelPrefix string
	// ChannelID is the chat identifier.
	ChannelID string
	// Store is the agent's store (session bookkeeping lives here).
	Store *store.Store
	// DataDir is the agent's working directory.
	DataDir string
	// SystemPrompt is the agent persona (see BuildSystemPrompt).
	SystemPrompt string
	// Model overrides the dispatcher default when non-empty.
	Model string
}

// Result is the dispatcher's output for one request.
type Result struct {
	FullText  string
	SessionID string
}

// Dispatcher turns a prompt into raw agent output. The bridge treats it
// as opaque; resumption is keyed off ChannelPrefix+ChannelID alone.
type Dispatcher interface {
	Dispatch(ctx context.Context, req Request) (Result, error)
}

// Claude dispatches prompts to the Anthropic API. Conversations resume
// by replaying the newest stored turns for the conversation name; a
// stable session id is recorded alongside for external consumers.
type Claude struct {
	client anthropic.Client
}

// NewClaude creates a Claude dispatcher with the given API key.
func NewClaude(apiKey string) *Claude {
	return &Claude{client: anthropic.NewClient(option.WithAPIKey(apiKey))}
}

// Dispatch implements Dispatcher.
func (c *Claude) Dispatch(ctx context.Context, req Request) (Result, error) {
	conversation := req.ChannelPrefix + "-" + req.ChannelID

	sessionID, ok, err := req.Store.ConversationSession(conversation)
	if err != nil {
		return Result{}, err
	}
	if !ok {
		sessionID = uuid.NewString()
	}

	model := req.Model
	if model == "" {
		model = DefaultModel
	}

	turns, err := req.Store.ConversationTurns(conversation, maxHistoryTurns)
	if err != nil {
		return Result{}, err
	}

	msg, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: maxReplyTokens,
		System:    []anthropic.TextBlockParam{{Text: req.SystemPrompt}},
		Messages:  buildMessages(turns, req.Prompt),
	})
	if err != nil {
		return Result{}, fmt.Errorf("dispatch to %s: %w", conversation, err)
	}

	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	fullText := b.String()

	if err := req.Store.AppendConversationTurn(conversation, "user", req.Prompt); err != nil {
		log.Warn().Err(err).Str("conversation", conversation).Msg("recording user turn")
	}
	if fullText != "" {
		if err := req.Store.AppendConversationTurn(conversation, "assistant", fullText); err != nil {
			log.Warn().Err(err).Str("conversation", conversation).Msg("recording assistant turn")
		}
	}
	if err := req.Store.SaveConversationSession(conversation, sessionID, req.DataDir); err != nil {
		log.Warn().Err(err).Str("conversation", conversation).Msg("saving conversation session")
	}

	return Result{FullText: fullText, SessionID: sessionID}, nil
}

// buildMessages converts stored history plus the new prompt into the API
// message list, oldest turn first.
func buildMessages(turns []store.Turn, prompt string) []anthropic.MessageParam {
	msgs := make([]anthropic.MessageParam, 0, len(turns)+1)
	for _, t := range turns {
		block := anthropic.NewTextBlock(t.Content)
		if t.Role == "assistant" {
			msgs = append(msgs, anthropic.NewAssistantMessage(block))
		} else {
			msgs = append(msgs, anthropic.NewUserMessage(block))
		}
	}
	return append(msgs, anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)))
}
