// Package queue buffers outbound WhatsApp sends across disconnects.
package queue

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
	"go.mau.fi/whatsmeow/types"
)

// Sender delivers a text message to a chat. The bridge's whatsmeow client
// satisfies this; tests substitute a mock.
type Sender interface {
	SendText(ctx context.Context, to types.JID, text string) error
}

type queued struct {
	jid  types.JID
	text string
}

// Queue is a FIFO of outbound messages plus the connection flag. Sends
// while disconnected, and sends that fail, are buffered; Flush drains the
// buffer on reconnect. Safe to call from any goroutine.
type Queue struct {
	mu        sync.Mutex
	items     []queued
	connected bool
}

// New returns an empty, disconnected queue.
func New() *Queue {
	return &Queue{}
}

// SetConnected records the connection state. The lifecycle supervisor
// calls Flush after flipping this to true.
func (q *Queue) SetConnected(connected bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.connected = connected
}

// Connected reports the current connection flag.
func (q *Queue) Connected() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.connected
}

// Len returns the number of buffered messages.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Send delivers text to jid, buffering it when disconnected or when the
// send fails. Successful sends are not buffered.
func (q *Queue) Send(ctx context.Context, sender Sender, jid types.JID, text string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.sendLocked(ctx, sender, jid, text)
}

func (q *Queue) sendLocked(ctx context.Context, sender Sender, jid types.JID, text string) {
	if !q.connected {
		q.items = append(q.items, queued{jid: jid, text: text})
		log.Info().Str("jid", jid.User).Int("len", len(text)).Int("queued", len(q.items)).
			Msg("message queued while disconnected")
		return
	}
	if err := sender.SendText(ctx, jid, text); err != nil {
		q.items = append(q.items, queued{jid: jid, text: text})
		log.Warn().Err(err).Str("jid", jid.User).Int("queued", len(q.items)).
			Msg("send failed, message queued")
		return
	}
	log.Info().Str("jid", jid.User).Int("len", len(text)).Msg("message sent")
}

// Flush drains the messages buffered at entry, oldest first. A send that
// fails re-enqueues its message, so the loop is bounded by the snapshot
// length to avoid spinning on a persistently failing target.
func (q *Queue) Flush(ctx context.Context, sender Sender) {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.items)
	if n == 0 {
		return
	}
	log.Info().Int("count", n).Msg("flushing outbound queue")
	for i := 0; i < n; i++ {
		item := q.items[0]
		q.items = q.items[1:]
		q.sendLocked(ctx, sender, item.jid, item.text)
	}
}
