// Package bridge connects a WhatsApp account to Claude agents: inbound
// messages are persisted and batched, batches are dispatched to the
// agents routed to each chat, and agent replies flow back out through a
// reconnect-safe outbound queue.
package bridge

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	_ "modernc.org/sqlite"

	"github.com/local/waclaw/internal/agent"
	"github.com/local/waclaw/internal/batch"
	"github.com/local/waclaw/internal/config"
	"github.com/local/waclaw/internal/metrics"
	"github.com/local/waclaw/internal/queue"
	"github.com/local/waclaw/internal/routing"
	"github.com/local/waclaw/internal/store"
)

// Bridge owns the WhatsApp connection and everything hanging off it.
type Bridge struct {
	client *whatsmeow.Client
	sender *ClientSender
	out    *queue.Queue
	acc    *batch.Accumulator
	stores *store.Registry

	handler *Handler
	poller  *Poller

	mu         sync.Mutex
	selfJID    types.JID
	pollCancel context.CancelFunc
}

// New builds a bridge from configuration. Fails if the device has never
// been paired; run the auth command first.
func New(ctx context.Context, cfg config.Settings, routes *routing.Config, dispatcher agent.Dispatcher, logger zerolog.Logger) (*Bridge, error) {
	client, err := newClient(ctx, cfg, NewClientLogger(logger))
	if err != nil {
		return nil, err
	}
	if client.Store.ID == nil {
		return nil, fmt.Errorf("whatsapp not authenticated - run 'waclaw auth' first")
	}

	bridgeStore, err := store.Open(cfg.SessionDB)
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}

	b := &Bridge{
		client: client,
		sender: NewClientSender(client),
		out:    queue.New(),
		stores: store.NewRegistry(bridgeStore),
	}

	rec := metrics.NewRecorder()
	orch := NewOrchestrator(routes, b.stores, dispatcher, b.out, b.sender, filepath.Dir(cfg.SessionDB), rec)
	b.acc = batch.New(cfg.BatchWindow, orch.Flush)
	b.handler = NewHandler(bridgeStore, routes, b.acc, rec, b.SelfJID)
	b.poller = NewPoller(b.stores, routes, b.out, b.sender, rec)

	client.AddEventHandler(b.handleEvent)
	return b, nil
}

// Run connects and blocks until ctx is cancelled, then tears down.
func (b *Bridge) Run(ctx context.Context) error {
	if err := b.client.Connect(); err != nil {
		return fmt.Errorf("connect to whatsapp: %w", err)
	}
	log.Info().Str("self", b.client.Store.ID.User).Msg("bridge running")

	<-ctx.Done()

	log.Info().Msg("shutting down")
	b.mu.Lock()
	if b.pollCancel != nil {
		b.pollCancel()
		b.pollCancel = nil
	}
	b.mu.Unlock()
	b.acc.Stop()
	b.sender.StopAllTyping()
	b.client.Disconnect()
	b.stores.Close()
	return nil
}

// SelfJID returns the authenticated account's JID, zero before the
// first successful connect.
func (b *Bridge) SelfJID() types.JID {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.selfJID
}

func (b *Bridge) handleEvent(evt interface{}) {
	switch v := evt.(type) {
	case *events.QR:
		log.Warn().Msg("pairing required - run 'waclaw auth' to scan the QR code")
	case *events.Connected, *events.PushNameSetting:
		b.onConnected()
	case *events.Disconnected:
		b.onDisconnected("connection lost")
	case *events.LoggedOut:
		log.Error().Msg("device logged out - run 'waclaw auth' to re-pair")
		b.onDisconnected("logged out")
	case *events.Message:
		b.handler.HandleMessage(v)
	}
}

func (b *Bridge) onConnected() {
	ctx := context.Background()

	// Required for the composing indicator to be visible to peers.
	if err := b.client.SendPresence(ctx, types.PresenceAvailable); err != nil {
		log.Warn().Err(err).Msg("sending available presence")
	}

	b.mu.Lock()
	if id := b.client.Store.ID; id != nil {
		b.selfJID = *id
	}
	if b.pollCancel == nil {
		pollCtx, cancel := context.WithCancel(context.Background())
		b.pollCancel = cancel
		go b.poller.Run(pollCtx)
	}
	b.mu.Unlock()

	b.out.SetConnected(true)
	b.out.Flush(ctx, b.sender)
	log.Info().Msg("connected")
}

func (b *Bridge) onDisconnected(reason string) {
	b.out.SetConnected(false)
	b.mu.Lock()
	if b.pollCancel != nil {
		b.pollCancel()
		b.pollCancel = nil
	}
	b.mu.Unlock()
	log.Warn().Str("reason", reason).Int("queued", b.out.Len()).Msg("disconnected")
}

// newClient opens the whatsmeow device store under cfg.AuthDir and
// builds a client for its first (usually only) device.
func newClient(ctx context.Context, cfg config.Settings, waLogger waLog.Logger) (*whatsmeow.Client, error) {
	if err := os.MkdirAll(cfg.AuthDir, 0o700); err != nil {
		return nil, fmt.Errorf("create auth dir: %w", err)
	}
	dsn := "file:" + filepath.Join(cfg.AuthDir, "whatsapp.db") +
		"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	container, err := sqlstore.New(ctx, "sqlite", dsn, waLogger)
	if err != nil {
		return nil, fmt.Errorf("open device store: %w", err)
	}
	deviceStore, err := container.GetFirstDevice(ctx)
	if err != nil {
		return nil, fmt.Errorf("get device: %w", err)
	}
	return whatsmeow.NewClient(deviceStore, waLogger), nil
}
