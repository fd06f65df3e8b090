package bridge

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"go.mau.fi/whatsmeow/types"

	"github.com/local/waclaw/internal/metrics"
	"github.com/local/waclaw/internal/queue"
	"github.com/local/waclaw/internal/routing"
	"github.com/local/waclaw/internal/store"
)

// pollInterval is how often the delivery poller scans for pending rows.
const pollInterval = 10 * time.Second

// Poller drains agent-enqueued deliveries from every known store and
// sends them out through the outbound queue. Agents that want to speak
// outside a batch flush (timers, background tasks) enqueue rows in
// their own store; the poller is the only consumer.
type Poller struct {
	stores *store.Registry
	routes *routing.Config
	out    *queue.Queue
	sender queue.Sender
	rec    *metrics.Recorder
}

// NewPoller wires the delivery poller.
func NewPoller(stores *store.Registry, routes *routing.Config, out *queue.Queue, sender queue.Sender, rec *metrics.Recorder) *Poller {
	return &Poller{stores: stores, routes: routes, out: out, sender: sender, rec: rec}
}

// Run scans every pollInterval until ctx is cancelled. An in-progress
// tick always runs to completion.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

// tick scans all known stores. Private stores of routed agents are
// opened on demand first, so rows enqueued before a restart are found
// without waiting for that agent to be dispatched again. One store's
// failure never blocks the rest.
func (p *Poller) tick(ctx context.Context) {
	for _, a := range p.routes.Agents {
		if a.DataDir == "" {
			continue
		}
		if _, err := p.stores.ForAgent(a.Name, a.DataDir); err != nil {
			log.Warn().Err(err).Str("agent", a.Name).Msg("opening agent store")
		}
	}
	for _, st := range p.stores.All() {
		if err := p.drain(ctx, st); err != nil {
			log.Warn().Err(err).Str("store", st.Path()).Msg("delivery scan failed")
		}
	}
}

func (p *Poller) drain(ctx context.Context, st *store.Store) error {
	pending, err := st.PendingDeliveries("wa")
	if err != nil {
		return err
	}
	for _, d := range pending {
		a, chat, ok := p.routes.ParseConversation(d.Conversation)
		if !ok {
			// Legacy conversation names predate agent scoping: wa-{jid}.
			chat = strings.TrimPrefix(d.Conversation, "wa-")
			a = p.routes.Agents[p.routes.DefaultAgent]
			log.Warn().Str("conversation", d.Conversation).Msg("legacy conversation name, using default agent")
		}

		jid, err := types.ParseJID(chat)
		if err != nil {
			log.Warn().Err(err).Str("conversation", d.Conversation).Msg("undeliverable conversation")
			if err := st.MarkFailed(d.ID, "send failed"); err != nil {
				log.Error().Err(err).Int64("id", d.ID).Msg("marking delivery failed")
			}
			p.rec.IncDelivery("failed")
			continue
		}

		text := d.Message
		if p.routes.IsMulti(chat) {
			text = "[" + a.Name + "]: " + text
		}

		p.out.Send(ctx, p.sender, jid, text)
		p.rec.IncSend("poller")
		if err := st.MarkDelivered(d.ID); err != nil {
			log.Error().Err(err).Int64("id", d.ID).Msg("marking delivery done")
			continue
		}
		p.rec.IncDelivery("delivered")
		log.Info().Str("chat", chat).Str("agent", a.Name).Msg("delivered queued message")
	}
	return nil
}
