package bridge

import (
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
)

func TestObjectiveQueue(t *testing.T) {
	q := NewObjectiveQueue(nil)

	a := q.Add("Research competitors")
	b := q.Add("Write summary")
	if a.ID != 1 || b.ID != 2 {
		t.Fatalf("expected ids 1 and 2, got %d and %d", a.ID, b.ID)
	}

	next, ok := q.Next()
	if !ok || next.ID != 1 || next.Status != ObjectiveWorking {
		t.Fatalf("expected #1 working, got %+v", next)
	}
	// A working objective stays current until completed.
	if again, _ := q.Next(); again.ID != 1 {
		t.Errorf("expected #1 again, got #%d", again.ID)
	}

	if !q.Complete(1) {
		t.Fatal("complete #1")
	}
	if next, _ := q.Next(); next.ID != 2 {
		t.Errorf("expected #2, got #%d", next.ID)
	}
	if q.Complete(99) {
		t.Error("unknown id must not complete")
	}

	c := q.Counts()
	if c != (ObjectiveCounts{Working: 1, Done: 1, Total: 2}) {
		t.Errorf("unexpected counts %+v", c)
	}

	q.Clear()
	if len(q.List()) != 0 {
		t.Error("clear empties the queue")
	}
	if o := q.Add("fresh"); o.ID != 1 {
		t.Errorf("clear resets ids, got #%d", o.ID)
	}
}

func TestObjectiveQueueConcurrentComplete(t *testing.T) {
	q := NewObjectiveQueue(nil)
	q.Add("only")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() { defer wg.Done(); q.Next() }()
		go func() { defer wg.Done(); q.Complete(1) }()
	}
	wg.Wait()
	q.Complete(1)

	if got := q.List()[0].Status; got != ObjectiveDone {
		t.Errorf("expected done, got %s", got)
	}
	if _, ok := q.Next(); ok {
		t.Error("a done objective is never picked again")
	}
}

func TestObjectiveCommands(t *testing.T) {
	h := newHarness(t, nil)
	chat := jid(ownerNumber)

	if got := h.send(ownerNumber, "/objective list"); !strings.HasPrefix(got, "📋 No objectives set.") {
		t.Errorf("got %q", got)
	}
	if got := h.send(ownerNumber, "/goal add Research competitors"); got != "✅ *Objective added* (#1)\n\n_Research competitors_" {
		t.Errorf("got %q", got)
	}
	h.send(ownerNumber, "/objective add Draft the report")

	// First tick works on #1 with tools enabled.
	h.b.proactiveTick("whatsapp", chat)
	tick := h.out.lastTo(chat)
	if !strings.HasPrefix(tick, "🤖 *Jarvis Check-in* (02:05 PM)\n\n📋 *Working on:* Research competitors\n\n") {
		t.Errorf("unexpected check-in %q", tick)
	}
	call := h.chat.last()
	if !call.Tools || call.Turns[0].Content != "Progress update on objective: Research competitors" {
		t.Errorf("unexpected progress call %+v", call)
	}

	want := "*📋 Objectives*\n\n🔄 #1: Research competitors\n⏳ #2: Draft the report"
	if got := h.send(ownerNumber, "/objective list"); got != want {
		t.Errorf("got %q", got)
	}

	if got := h.send(ownerNumber, "/objective complete 1"); got != "✅ Objective #1 marked complete" {
		t.Errorf("got %q", got)
	}
	if got := h.send(ownerNumber, "/objective done 7"); got != "❌ Objective #7 not found" {
		t.Errorf("got %q", got)
	}

	h.b.proactiveTick("whatsapp", chat)
	if tick := h.out.lastTo(chat); !strings.Contains(tick, "📋 *Working on:* Draft the report") {
		t.Errorf("second tick should move to #2, got %q", tick)
	}

	h.send(ownerNumber, "/objective complete 2")
	h.b.proactiveTick("whatsapp", chat)
	tick = h.out.lastTo(chat)
	if !strings.Contains(tick, "📊 *Objectives:* 2/2 complete") ||
		!strings.HasSuffix(tick, "_No active objectives. Use /objective add to give me work!_") {
		t.Errorf("expected status summary, got %q", tick)
	}

	if got := h.send(ownerNumber, "/objective clear"); got != "🗑️ All objectives cleared" {
		t.Errorf("got %q", got)
	}
}

func TestCheckInProgressFailure(t *testing.T) {
	h := newHarness(t, nil)
	h.chat.reply = func(chatCall) (string, error) { return "", errors.New("API error: 502") }
	h.b.objectives.Add("Ship it")

	h.b.proactiveTick("whatsapp", jid(ownerNumber))

	tick := h.out.lastTo(jid(ownerNumber))
	if !strings.Contains(tick, "📋 *Working on:* Ship it") || !strings.Contains(tick, "API error: 502") {
		t.Errorf("got %q", tick)
	}
}

func entryDelay(t *testing.T, s *ProactiveScheduler, chatID string) time.Duration {
	t.Helper()
	s.mu.Lock()
	e, ok := s.entries[chatID]
	s.mu.Unlock()
	if !ok {
		t.Fatalf("no entry for %s", chatID)
	}
	sched, ok := s.cron.Entry(e.id).Schedule.(cron.ConstantDelaySchedule)
	if !ok {
		t.Fatalf("unexpected schedule type %T", s.cron.Entry(e.id).Schedule)
	}
	return sched.Delay
}

func TestProactiveScheduler(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("enable twice keeps one entry", func(t *testing.T) {
		s := NewProactiveScheduler(30, func(string, string) {}, logger)
		if err := s.Enable("whatsapp", "chat-1", 0); err != nil {
			t.Fatal(err)
		}
		if err := s.Enable("whatsapp", "chat-1", 0); err != nil {
			t.Fatal(err)
		}
		if n := len(s.cron.Entries()); n != 1 {
			t.Errorf("expected 1 cron entry, got %d", n)
		}
		if d := entryDelay(t, s, "chat-1"); d != 30*time.Minute {
			t.Errorf("expected 30m, got %s", d)
		}
	})

	t.Run("interval re-arms enabled chat", func(t *testing.T) {
		s := NewProactiveScheduler(30, func(string, string) {}, logger)
		s.Enable("whatsapp", "chat-1", 0)
		if err := s.SetInterval("chat-1", 15); err != nil {
			t.Fatal(err)
		}
		if n := len(s.cron.Entries()); n != 1 {
			t.Errorf("expected 1 cron entry, got %d", n)
		}
		if d := entryDelay(t, s, "chat-1"); d != 15*time.Minute {
			t.Errorf("expected 15m, got %s", d)
		}
	})

	t.Run("interval on disabled chat is remembered", func(t *testing.T) {
		s := NewProactiveScheduler(30, func(string, string) {}, logger)
		s.SetInterval("chat-1", 45)
		if s.Enabled("chat-1") || len(s.cron.Entries()) != 0 {
			t.Error("SetInterval must not enable")
		}
		s.Enable("whatsapp", "chat-1", 0)
		if d := entryDelay(t, s, "chat-1"); d != 45*time.Minute {
			t.Errorf("expected 45m, got %s", d)
		}
	})

	t.Run("range checked", func(t *testing.T) {
		s := NewProactiveScheduler(30, func(string, string) {}, logger)
		for _, m := range []int{3, 121} {
			if err := s.SetInterval("chat-1", m); !errors.Is(err, errInterval) {
				t.Errorf("%d: expected range error, got %v", m, err)
			}
		}
		if err := s.Enable("whatsapp", "chat-1", 200); !errors.Is(err, errInterval) {
			t.Errorf("expected range error, got %v", err)
		}
	})

	t.Run("disable is idempotent", func(t *testing.T) {
		s := NewProactiveScheduler(30, func(string, string) {}, logger)
		s.Enable("whatsapp", "chat-1", 0)
		if !s.Disable("chat-1") {
			t.Error("first disable reports true")
		}
		if s.Disable("chat-1") {
			t.Error("second disable is a no-op")
		}
		if len(s.cron.Entries()) != 0 {
			t.Error("entry must be removed")
		}
	})
}

func TestProactiveCommands(t *testing.T) {
	h := newHarness(t, nil)
	chat := jid(ownerNumber)

	want := "✅ *Proactive mode enabled*\n\nI'll message you every 30 minutes with updates."
	if got := h.send(ownerNumber, "/proactive on"); got != want {
		t.Errorf("got %q", got)
	}
	h.send(ownerNumber, "/auto on")
	if n := len(h.b.proactive.cron.Entries()); n != 1 {
		t.Errorf("expected one timer after enabling twice, got %d", n)
	}

	if got := h.send(ownerNumber, "/proactive interval 3"); got != intervalRangeReply {
		t.Errorf("got %q", got)
	}
	if got := h.send(ownerNumber, "/proactive interval abc"); got != intervalRangeReply {
		t.Errorf("got %q", got)
	}
	if got := h.send(ownerNumber, "/proactive interval 15"); got != "✅ Interval set to 15 minutes" {
		t.Errorf("got %q", got)
	}
	if d := entryDelay(t, h.b.proactive, chat); d != 15*time.Minute {
		t.Errorf("expected re-armed 15m timer, got %s", d)
	}

	status := h.send(ownerNumber, "/proactive status")
	for _, line := range []string{"*🤖 Proactive Status*", "Mode: ✅ Enabled", "Interval: 15 minutes", "Active chats: 1"} {
		if !strings.Contains(status, line) {
			t.Errorf("status missing %q: %q", line, status)
		}
	}

	if got := h.send(ownerNumber, "/proactive off"); got != "⏸️ *Proactive mode disabled*" {
		t.Errorf("got %q", got)
	}
	if got := h.send(ownerNumber, "/proactive off"); got != "⏸️ *Proactive mode disabled*" {
		t.Errorf("disabling twice is harmless, got %q", got)
	}
	if h.b.proactive.Enabled(chat) {
		t.Error("proactive mode still enabled")
	}
}
