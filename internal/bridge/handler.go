package bridge

import (
	"strings"

	"github.com/rs/zerolog/log"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"

	"github.com/local/waclaw/internal/batch"
	"github.com/local/waclaw/internal/metrics"
	"github.com/local/waclaw/internal/routing"
	"github.com/local/waclaw/internal/store"
)

// Handler ingests inbound WhatsApp messages: persists them, advances the
// ingestion cursors, and feeds the batch accumulator.
type Handler struct {
	store  *store.Store
	routes *routing.Config
	acc    *batch.Accumulator
	rec    *metrics.Recorder
	self   func() types.JID
}

// NewHandler wires the inbound pipeline. self reports the authenticated
// account's JID (zero until the first connect).
func NewHandler(st *store.Store, routes *routing.Config, acc *batch.Accumulator, rec *metrics.Recorder, self func() types.JID) *Handler {
	return &Handler{store: st, routes: routes, acc: acc, rec: rec, self: self}
}

// HandleMessage processes one inbound message event. Malformed or
// uninteresting events are dropped; persistence failures are logged and
// the event discarded so the connection survives.
func (h *Handler) HandleMessage(evt *events.Message) {
	chat := evt.Info.Chat
	if chat == types.StatusBroadcastJID {
		return
	}
	if evt.Info.Timestamp.IsZero() {
		log.Debug().Str("chat", chat.String()).Msg("dropping message with zero timestamp")
		return
	}

	text := strings.TrimSpace(extractText(evt.Message))
	if text == "" {
		return
	}

	sender := evt.Info.PushName
	if sender == "" {
		sender = evt.Info.Sender.User
	}
	ts := store.FormatTimestamp(evt.Info.Timestamp)
	chatJID := chat.String()

	if err := h.store.AppendMessage(chatJID, sender, text, ts, evt.Info.IsFromMe); err != nil {
		log.Error().Err(err).Str("chat", chatJID).Msg("persisting message")
		return
	}
	if err := h.store.UpdateChatLastTimestamp(chatJID, ts); err != nil {
		log.Error().Err(err).Str("chat", chatJID).Msg("updating chat cursor")
		return
	}
	if err := h.store.UpdateGlobalCursor(ts); err != nil {
		log.Error().Err(err).Msg("updating global cursor")
		return
	}

	chatType := "direct"
	if evt.Info.IsGroup {
		chatType = "group"
	}
	h.rec.IncIngested(chatType)

	if evt.Info.IsFromMe {
		return
	}

	selfChat := false
	if self := h.self(); !self.IsEmpty() {
		selfChat = chat.ToNonAD() == self.ToNonAD()
	}
	hard := selfChat || len(routing.FindHardMentions(text, h.routes.AllTriggerNames())) > 0

	log.Debug().
		Str("chat", chatJID).
		Str("sender", sender).
		Bool("hard", hard).
		Str("text", truncate(text, 50)).
		Msg("ingested message")

	if hard {
		h.acc.FlushNow(chatJID)
	} else {
		h.acc.Add(chatJID)
	}
}

// extractText pulls the text body out of a message, preferring plain
// text, then extended text, then image/video/document captions.
func extractText(msg *waE2E.Message) string {
	if msg == nil {
		return ""
	}
	if t := msg.GetConversation(); t != "" {
		return t
	}
	if t := msg.GetExtendedTextMessage().GetText(); t != "" {
		return t
	}
	if t := msg.GetImageMessage().GetCaption(); t != "" {
		return t
	}
	if t := msg.GetVideoMessage().GetCaption(); t != "" {
		return t
	}
	if t := msg.GetDocumentWithCaptionMessage().GetMessage().GetDocumentMessage().GetCaption(); t != "" {
		return t
	}
	return ""
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
