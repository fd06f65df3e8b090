package bridge

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"google.golang.org/protobuf/proto"
)

// maxChunkLen is the outbound message split size. WhatsApp tolerates
// much larger messages, but long texts render badly on phones.
const maxChunkLen = 4096

// Typing controls the composing indicator for a chat.
type Typing interface {
	StartTyping(jid types.JID)
	StopTyping(jid types.JID)
}

// ClientSender sends text messages through a whatsmeow client, splitting
// long texts into chunks and managing per-chat typing indicators.
type ClientSender struct {
	client *whatsmeow.Client

	typingMu   sync.Mutex
	typingStop map[string]chan struct{}
}

// NewClientSender wraps a connected (or connecting) whatsmeow client.
func NewClientSender(client *whatsmeow.Client) *ClientSender {
	return &ClientSender{
		client:     client,
		typingStop: make(map[string]chan struct{}),
	}
}

// SendText delivers text to the given JID, splitting at maxChunkLen.
// The first failed chunk aborts the rest.
func (s *ClientSender) SendText(ctx context.Context, to types.JID, text string) error {
	for _, chunk := range splitMessage(text, maxChunkLen) {
		msg := &waE2E.Message{Conversation: proto.String(chunk)}
		if _, err := s.client.SendMessage(ctx, to, msg); err != nil {
			return fmt.Errorf("send to %s: %w", to, err)
		}
	}
	return nil
}

// StartTyping begins (or resets) a continuous "composing" presence for a
// chat. WhatsApp expires the indicator after ~10s, so it is refreshed on
// a ticker until StopTyping is called or a 5 minute cap elapses.
func (s *ClientSender) StartTyping(jid types.JID) {
	key := jid.String()
	s.typingMu.Lock()
	if stop, ok := s.typingStop[key]; ok {
		close(stop)
	}
	stop := make(chan struct{})
	s.typingStop[key] = stop
	s.typingMu.Unlock()

	go func() {
		ctx := context.Background()
		_ = s.client.SendChatPresence(ctx, jid, types.ChatPresenceComposing, types.ChatPresenceMediaText)

		ticker := time.NewTicker(8 * time.Second)
		defer ticker.Stop()
		timeout := time.NewTimer(5 * time.Minute)
		defer timeout.Stop()

		for {
			select {
			case <-stop:
				_ = s.client.SendChatPresence(ctx, jid, types.ChatPresencePaused, types.ChatPresenceMediaText)
				return
			case <-timeout.C:
				return
			case <-ticker.C:
				_ = s.client.SendChatPresence(ctx, jid, types.ChatPresenceComposing, types.ChatPresenceMediaText)
			}
		}
	}()
}

// StopTyping cancels the typing indicator for the given chat.
func (s *ClientSender) StopTyping(jid types.JID) {
	s.typingMu.Lock()
	defer s.typingMu.Unlock()
	key := jid.String()
	if stop, ok := s.typingStop[key]; ok {
		close(stop)
		delete(s.typingStop, key)
	}
}

// StopAllTyping cancels all active typing indicators.
func (s *ClientSender) StopAllTyping() {
	s.typingMu.Lock()
	defer s.typingMu.Unlock()
	for _, stop := range s.typingStop {
		close(stop)
	}
	s.typingStop = make(map[string]chan struct{})
}

// splitMessage breaks text into chunks of at most limit runes, preferring
// to break at the last newline, then the last space, inside the window.
func splitMessage(text string, limit int) []string {
	runes := []rune(text)
	if len(runes) <= limit {
		return []string{text}
	}

	var chunks []string
	for len(runes) > limit {
		cut := limit
		window := runes[:limit]
		if i := lastIndexRune(window, '\n'); i > 0 {
			cut = i
		} else if i := lastIndexRune(window, ' '); i > 0 {
			cut = i
		}
		chunks = append(chunks, strings.TrimSpace(string(runes[:cut])))
		runes = runes[cut:]
		for len(runes) > 0 && (runes[0] == '\n' || runes[0] == ' ') {
			runes = runes[1:]
		}
	}
	if len(runes) > 0 {
		chunks = append(chunks, string(runes))
	}
	return chunks
}

func lastIndexRune(runes []rune, r rune) int {
	for i := len(runes) - 1; i >= 0; i-- {
		if runes[i] == r {
			return i
		}
	}
	return -1
}
