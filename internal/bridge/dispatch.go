package bridge

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"go.mau.fi/whatsmeow/types"

	"github.com/local/waclaw/internal/agent"
	"github.com/local/waclaw/internal/metrics"
	"github.com/local/waclaw/internal/queue"
	"github.com/local/waclaw/internal/routing"
	"github.com/local/waclaw/internal/store"
)

// OutboundSender is what the dispatch path needs from the client: text
// delivery plus the typing indicator.
type OutboundSender interface {
	queue.Sender
	Typing
}

// Orchestrator runs one batch flush end to end: load the unseen
// messages, fan out to every agent routed to the chat, enqueue replies,
// and advance the agent cursor.
type Orchestrator struct {
	routes     *routing.Config
	stores     *store.Registry
	dispatcher agent.Dispatcher
	out        *queue.Queue
	sender     OutboundSender
	dataDir    string
	rec        *metrics.Recorder
}

// NewOrchestrator wires the dispatch path. dataDir is the working
// directory for agents without a private one.
func NewOrchestrator(routes *routing.Config, stores *store.Registry, dispatcher agent.Dispatcher, out *queue.Queue, sender OutboundSender, dataDir string, rec *metrics.Recorder) *Orchestrator {
	return &Orchestrator{
		routes:     routes,
		stores:     stores,
		dispatcher: dispatcher,
		out:        out,
		sender:     sender,
		dataDir:    dataDir,
		rec:        rec,
	}
}

// Flush is the batch accumulator's callback. hard marks a flush forced
// by a direct mention or self-chat message.
//
// One agent's failure never blocks the rest, and the agent cursor is
// advanced once after every agent has run, so a crash mid-loop replays
// the whole batch to everyone.
func (o *Orchestrator) Flush(chatJID string, hard bool) {
	ctx := context.Background()

	msgs, err := o.stores.Bridge().MessagesSinceAgentCursor(chatJID)
	if err != nil {
		log.Error().Err(err).Str("chat", chatJID).Msg("loading batch")
		return
	}
	if len(msgs) == 0 {
		return
	}

	jid, err := types.ParseJID(chatJID)
	if err != nil {
		log.Error().Err(err).Str("chat", chatJID).Msg("invalid chat jid")
		return
	}

	kind := "ambient"
	if hard {
		kind = "hard"
	}
	o.rec.IncFlush(kind)

	// When a batch mentions specific agents by name, only those agents
	// get the mandatory-reply directive; the rest see an ambient batch.
	var mentioned []string
	if hard {
		var all strings.Builder
		for _, m := range msgs {
			all.WriteString(m.Text)
			all.WriteByte('\n')
		}
		mentioned = routing.FindHardMentions(all.String(), o.routes.AllTriggerNames())
	}

	agents := o.routes.AgentsFor(chatJID)
	multi := len(agents) > 1

	log.Info().
		Str("chat", chatJID).
		Int("messages", len(msgs)).
		Int("agents", len(agents)).
		Str("kind", kind).
		Strs("mentioned", mentioned).
		Msg("dispatching batch")

	for _, a := range agents {
		agentHard := hard && (len(mentioned) == 0 || containsName(mentioned, a.Name))

		var others []string
		if multi {
			for _, b := range agents {
				if b.Name != a.Name {
					others = append(others, b.Name)
				}
			}
		}

		agentStore, err := o.stores.ForAgent(a.Name, a.DataDir)
		if err != nil {
			log.Error().Err(err).Str("agent", a.Name).Msg("opening agent store")
			continue
		}
		dataDir := a.DataDir
		if dataDir == "" {
			dataDir = o.dataDir
		}

		o.sender.StartTyping(jid)
		start := time.Now()
		res, err := o.dispatcher.Dispatch(ctx, agent.Request{
			Prompt:        agent.BuildUserPrompt(msgs, agentHard),
			ChannelPrefix: "wa-" + strings.ToLower(a.Name),
			ChannelID:     chatJID,
			Store:         agentStore,
			DataDir:       dataDir,
			SystemPrompt:  agent.BuildSystemPrompt(a, chatJID, others),
			Model:         a.Model,
		})
		o.sender.StopTyping(jid)
		o.rec.ObserveDispatch(a.Name, err, time.Since(start))
		if err != nil {
			log.Error().Err(err).Str("agent", a.Name).Str("chat", chatJID).Msg("agent dispatch failed")
			continue
		}

		reply := agent.ExtractReply(res.FullText)
		if reply == "" {
			log.Debug().Str("agent", a.Name).Str("chat", chatJID).Msg("agent stayed silent")
			continue
		}
		if multi {
			reply = "[" + a.Name + "]: " + reply
		}
		o.out.Send(ctx, o.sender, jid, reply)
		o.rec.IncSend("dispatch")
	}

	last := msgs[len(msgs)-1].Timestamp
	if err := o.stores.Bridge().UpdateAgentCursor(chatJID, last); err != nil {
		log.Error().Err(err).Str("chat", chatJID).Msg("advancing agent cursor")
	}
}

func containsName(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}
