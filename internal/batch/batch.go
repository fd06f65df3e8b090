// Package batch schedules per-chat message batch flushes.
//
// The first message in a chat's batch starts a debounce timer; later
// messages inside the window do not reset it. Hard events (self-chat,
// hard mention) flush immediately. A per-chat single-flight guard keeps
// at most one flush callback running per chat; a flush requested while
// one is running is collapsed into a pending-reflush bit that schedules
// one fresh timer after the current flush completes.
//
// The accumulator only owns timers and locks. The message store is the
// source of truth for batch content: a batch is whatever is newer than
// the chat's agent cursor at flush time.
package batch

import (
	"sync"
	"time"
)

// FlushFunc handles one batch flush. hard marks self-chat or hard-mention
// triggered flushes.
type FlushFunc func(chatJID string, hard bool)

// Accumulator tracks per-chat debounce timers.
type Accumulator struct {
	window time.Duration
	flush  FlushFunc

	mu      sync.Mutex
	timers  map[string]*time.Timer
	running map[string]bool
	pending map[string]bool
}

// New creates an accumulator flushing through fn after window of quiet.
func New(window time.Duration, fn FlushFunc) *Accumulator {
	return &Accumulator{
		window:  window,
		flush:   fn,
		timers:  make(map[string]*time.Timer),
		running: make(map[string]bool),
		pending: make(map[string]bool),
	}
}

// Add schedules a flush for the chat. The first call starts the window
// timer; calls while a timer is armed are no-ops (debounce, not
// throttle). Calls while the chat is mid-flush set the pending-reflush
// bit instead.
func (a *Accumulator) Add(chatJID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.running[chatJID] {
		a.pending[chatJID] = true
		return
	}
	if _, ok := a.timers[chatJID]; ok {
		return
	}
	a.timers[chatJID] = time.AfterFunc(a.window, func() { a.timerExpired(chatJID) })
}

// FlushNow cancels the chat's timer, if any, and flushes immediately with
// hard=true. Non-blocking: the flush runs on its own goroutine.
func (a *Accumulator) FlushNow(chatJID string) {
	a.mu.Lock()
	if t, ok := a.timers[chatJID]; ok {
		t.Stop()
		delete(a.timers, chatJID)
	}
	a.mu.Unlock()
	go a.doFlush(chatJID, true)
}

// Stop cancels all armed timers. In-flight flushes run to completion.
func (a *Accumulator) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for chat, t := range a.timers {
		t.Stop()
		delete(a.timers, chat)
	}
}

func (a *Accumulator) timerExpired(chatJID string) {
	a.mu.Lock()
	delete(a.timers, chatJID)
	a.mu.Unlock()
	a.doFlush(chatJID, false)
}

func (a *Accumulator) doFlush(chatJID string, hard bool) {
	a.mu.Lock()
	if a.running[chatJID] {
		// Single-flight: fold this request into one rescheduled flush.
		a.pending[chatJID] = true
		a.mu.Unlock()
		return
	}
	a.running[chatJID] = true
	a.mu.Unlock()

	a.flush(chatJID, hard)

	a.mu.Lock()
	delete(a.running, chatJID)
	if a.pending[chatJID] {
		delete(a.pending, chatJID)
		if _, ok := a.timers[chatJID]; !ok {
			a.timers[chatJID] = time.AfterFunc(a.window, func() { a.timerExpired(chatJID) })
		}
	}
	a.mu.Unlock()
}
