package bridge

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/local/waclaw/internal/queue"
	"github.com/local/waclaw/internal/routing"
	"github.com/local/waclaw/internal/store"
)

const testDefaultDataDir = "/srv/waclaw"

func newTestOrchestrator(t *testing.T, routes *routing.Config, d *fakeDispatcher, f *fakeSender) (*Orchestrator, *store.Store) {
	t.Helper()
	st := openTestStore(t)
	out := queue.New()
	out.SetConnected(true)
	return NewOrchestrator(routes, store.NewRegistry(st), d, out, f, testDefaultDataDir, testRecorder), st
}

func TestFlush_SingleAgentAdvancesCursor(t *testing.T) {
	d := &fakeDispatcher{replies: map[string]string{}}
	f := &fakeSender{}
	orch, st := newTestOrchestrator(t, routing.Single("Andy"), d, f)

	chat := "123@s.whatsapp.net"
	ts := seedMessage(t, st, chat, "Bob", time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC), "hello")

	orch.Flush(chat, false)

	require.Equal(t, 1, d.callCount())
	assert.Contains(t, d.calls[0].Prompt, "hello")
	assert.NotContains(t, d.calls[0].Prompt, "MUST reply")
	assert.Equal(t, "wa-andy", d.calls[0].ChannelPrefix)

	_, agentCursor, err := st.ChatCursors(chat)
	require.NoError(t, err)
	assert.Equal(t, ts, agentCursor)

	// Batch consumed: a second flush sees nothing and stays quiet.
	orch.Flush(chat, false)
	assert.Equal(t, 1, d.callCount())
}

func TestFlush_HardMentionDirective(t *testing.T) {
	d := &fakeDispatcher{replies: map[string]string{}}
	orch, st := newTestOrchestrator(t, routing.Single("Andy"), d, &fakeSender{})

	chat := "123@s.whatsapp.net"
	seedMessage(t, st, chat, "Bob", time.Now(), "@Andy check this")

	orch.Flush(chat, true)

	require.Equal(t, 1, d.callCount())
	assert.Contains(t, d.calls[0].Prompt, "MUST reply")
}

func TestFlush_MultiAgentPrefixing(t *testing.T) {
	routes := &routing.Config{
		DefaultAgent: "Ressu",
		Agents: map[string]routing.Agent{
			"Ressu": {Name: "Ressu"},
			"Tyko":  {Name: "Tyko"},
		},
		Routes: map[string][]string{"120363@g.us": {"Ressu", "Tyko"}},
	}
	d := &fakeDispatcher{replies: map[string]string{
		"wa-ressu": "<reply>Hi</reply>",
		"wa-tyko":  "<reply>Hello</reply>",
	}}
	f := &fakeSender{}
	orch, st := newTestOrchestrator(t, routes, d, f)

	seedMessage(t, st, "120363@g.us", "Bob", time.Now(), "morning all")
	orch.Flush("120363@g.us", false)

	assert.Equal(t, []string{"[Ressu]: Hi", "[Tyko]: Hello"}, f.texts())
}

func TestFlush_PerAgentHardMentionFilter(t *testing.T) {
	routes := &routing.Config{
		DefaultAgent: "Ressu",
		Agents: map[string]routing.Agent{
			"Ressu": {Name: "Ressu"},
			"Tyko":  {Name: "Tyko"},
		},
		Routes: map[string][]string{"120365@g.us": {"Ressu", "Tyko"}},
	}
	d := &fakeDispatcher{replies: map[string]string{}}
	orch, st := newTestOrchestrator(t, routes, d, &fakeSender{})

	seedMessage(t, st, "120365@g.us", "Bob", time.Now(), "@Tyko what?")
	orch.Flush("120365@g.us", true)

	require.Equal(t, 2, d.callCount())
	byPrefix := map[string]string{}
	for _, call := range d.calls {
		byPrefix[call.ChannelPrefix] = call.Prompt
	}
	assert.NotContains(t, byPrefix["wa-ressu"], "MUST reply")
	assert.Contains(t, byPrefix["wa-tyko"], "MUST reply")
}

func TestFlush_DispatchErrorContinues(t *testing.T) {
	routes := &routing.Config{
		DefaultAgent: "Ressu",
		Agents: map[string]routing.Agent{
			"Ressu": {Name: "Ressu"},
			"Tyko":  {Name: "Tyko"},
		},
		Routes: map[string][]string{"120363@g.us": {"Ressu", "Tyko"}},
	}
	d := &fakeDispatcher{
		replies: map[string]string{"wa-tyko": "<reply>still here</reply>"},
		errFor:  map[string]error{"wa-ressu": errors.New("api overloaded")},
	}
	f := &fakeSender{}
	orch, st := newTestOrchestrator(t, routes, d, f)

	ts := seedMessage(t, st, "120363@g.us", "Bob", time.Now(), "hi")
	orch.Flush("120363@g.us", false)

	assert.Equal(t, 2, d.callCount())
	assert.Equal(t, []string{"[Tyko]: still here"}, f.texts())

	_, agentCursor, err := st.ChatCursors("120363@g.us")
	require.NoError(t, err)
	assert.Equal(t, ts, agentCursor, "cursor advances even when one agent fails")
}

func TestFlush_SilentAgentSendsNothing(t *testing.T) {
	d := &fakeDispatcher{replies: map[string]string{
		"wa-andy": "I will quietly take a note of this.",
	}}
	f := &fakeSender{}
	orch, st := newTestOrchestrator(t, routing.Single("Andy"), d, f)

	seedMessage(t, st, "123@s.whatsapp.net", "Bob", time.Now(), "hmm")
	orch.Flush("123@s.whatsapp.net", false)

	assert.Empty(t, f.texts())
}

func TestFlush_TypingBracketsDispatch(t *testing.T) {
	d := &fakeDispatcher{replies: map[string]string{}}
	f := &fakeSender{}
	orch, st := newTestOrchestrator(t, routing.Single("Andy"), d, f)

	seedMessage(t, st, "123@s.whatsapp.net", "Bob", time.Now(), "hi")
	orch.Flush("123@s.whatsapp.net", false)

	assert.Equal(t, []string{"on:123@s.whatsapp.net", "off:123@s.whatsapp.net"}, f.typing)
}

func TestFlush_DataDirFallsBackToDefault(t *testing.T) {
	tykoDir := t.TempDir()
	routes := &routing.Config{
		DefaultAgent: "Ressu",
		Agents: map[string]routing.Agent{
			"Ressu": {Name: "Ressu"},
			"Tyko":  {Name: "Tyko", DataDir: tykoDir},
		},
		Routes: map[string][]string{"120363@g.us": {"Ressu", "Tyko"}},
	}
	d := &fakeDispatcher{replies: map[string]string{}}
	orch, st := newTestOrchestrator(t, routes, d, &fakeSender{})

	seedMessage(t, st, "120363@g.us", "Bob", time.Now(), "hi")
	orch.Flush("120363@g.us", false)

	require.Equal(t, 2, d.callCount())
	byPrefix := map[string]string{}
	for _, call := range d.calls {
		byPrefix[call.ChannelPrefix] = call.DataDir
	}
	assert.Equal(t, testDefaultDataDir, byPrefix["wa-ressu"])
	assert.Equal(t, tykoDir, byPrefix["wa-tyko"])
}

func TestFlush_EmptyBatchIsNoop(t *testing.T) {
	d := &fakeDispatcher{replies: map[string]string{}}
	orch, _ := newTestOrchestrator(t, routing.Single("Andy"), d, &fakeSender{})

	orch.Flush("123@s.whatsapp.net", false)
	assert.Zero(t, d.callCount())
}

func TestFlush_MultiAgentSystemPromptListsOthers(t *testing.T) {
	routes := &routing.Config{
		DefaultAgent: "Ressu",
		Agents: map[string]routing.Agent{
			"Ressu": {Name: "Ressu"},
			"Tyko":  {Name: "Tyko"},
		},
		Routes: map[string][]string{"120363@g.us": {"Ressu", "Tyko"}},
	}
	d := &fakeDispatcher{replies: map[string]string{}}
	orch, st := newTestOrchestrator(t, routes, d, &fakeSender{})

	seedMessage(t, st, "120363@g.us", "Bob", time.Now(), "hi")
	orch.Flush("120363@g.us", false)

	require.Equal(t, 2, d.callCount())
	for _, call := range d.calls {
		switch call.ChannelPrefix {
		case "wa-ressu":
			assert.Contains(t, call.SystemPrompt, "Tyko")
		case "wa-tyko":
			assert.Contains(t, call.SystemPrompt, "Ressu")
		}
		assert.Contains(t, call.SystemPrompt, "multi-agent group")
	}
}
