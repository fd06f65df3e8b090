package bridge

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.mau.fi/whatsmeow/types"

	"github.com/local/waclaw/internal/agent"
	"github.com/local/waclaw/internal/metrics"
	"github.com/local/waclaw/internal/store"
)

// testRecorder is shared across the package's tests: prometheus metrics
// register with the default registry and may only do so once per binary.
var testRecorder = metrics.NewRecorder()

type sentText struct {
	to   types.JID
	text string
}

type fakeSender struct {
	mu     sync.Mutex
	sent   []sentText
	typing []string
	fail   bool
}

func (f *fakeSender) SendText(ctx context.Context, to types.JID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("socket closed")
	}
	f.sent = append(f.sent, sentText{to: to, text: text})
	return nil
}

func (f *fakeSender) StartTyping(jid types.JID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.typing = append(f.typing, "on:"+jid.String())
}

func (f *fakeSender) StopTyping(jid types.JID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.typing = append(f.typing, "off:"+jid.String())
}

func (f *fakeSender) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.sent))
	for i, s := range f.sent {
		out[i] = s.text
	}
	return out
}

// fakeDispatcher returns canned output per conversation prefix and
// records every request it sees.
type fakeDispatcher struct {
	mu      sync.Mutex
	calls   []agent.Request
	replies map[string]string
	errFor  map[string]error
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, req agent.Request) (agent.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	if err := f.errFor[req.ChannelPrefix]; err != nil {
		return agent.Result{}, err
	}
	return agent.Result{FullText: f.replies[req.ChannelPrefix], SessionID: "s"}, nil
}

func (f *fakeDispatcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "bridge.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func seedMessage(t *testing.T, st *store.Store, chat, sender string, ts time.Time, text string) string {
	t.Helper()
	stamp := store.FormatTimestamp(ts)
	require.NoError(t, st.AppendMessage(chat, sender, text, stamp, false))
	require.NoError(t, st.UpdateChatLastTimestamp(chat, stamp))
	return stamp
}
