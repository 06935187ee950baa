package channels

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// stubChannel is a minimal text-only channel.
type stubChannel struct {
	name      string
	connected bool
	connErr   error
	in        chan *IncomingMessage

	mu   sync.Mutex
	sent []string
}

func newStub(name string) *stubChannel {
	return &stubChannel{name: name, in: make(chan *IncomingMessage, 4)}
}

func (s *stubChannel) Name() string { return s.name }

func (s *stubChannel) Connect(context.Context) error {
	if s.connErr != nil {
		return s.connErr
	}
	s.connected = true
	return nil
}

func (s *stubChannel) Disconnect() error {
	s.connected = false
	return nil
}

func (s *stubChannel) Send(_ context.Context, to string, msg *OutgoingMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, to+":"+msg.Content)
	return nil
}

func (s *stubChannel) Receive() <-chan *IncomingMessage { return s.in }
func (s *stubChannel) IsConnected() bool                { return s.connected }
func (s *stubChannel) Health() HealthStatus             { return HealthStatus{Connected: s.connected} }

func TestManager(t *testing.T) {
	t.Run("merges inbound and routes replies", func(t *testing.T) {
		m := NewManager(nil)
		ch := newStub("test")
		if err := m.Register(ch); err != nil {
			t.Fatal(err)
		}
		if err := m.Register(newStub("test")); err == nil {
			t.Error("duplicate registration must fail")
		}
		if err := m.Start(context.Background()); err != nil {
			t.Fatalf("start: %v", err)
		}
		defer m.Stop()

		ch.in <- &IncomingMessage{ID: "1", Channel: "test", Text: "hi"}
		select {
		case msg := <-m.Messages():
			if msg.Text != "hi" {
				t.Errorf("unexpected message %+v", msg)
			}
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for merged message")
		}

		if err := m.Send(context.Background(), "test", "chat", &OutgoingMessage{Content: "yo"}); err != nil {
			t.Fatalf("send: %v", err)
		}
		if len(ch.sent) != 1 || ch.sent[0] != "chat:yo" {
			t.Errorf("unexpected sent %v", ch.sent)
		}
	})

	t.Run("optional capabilities", func(t *testing.T) {
		m := NewManager(nil)
		m.Register(newStub("plain"))
		m.Start(context.Background())
		defer m.Stop()

		ctx := context.Background()
		if err := m.SendReaction(ctx, "plain", "c", "m", "✅"); err != nil {
			t.Errorf("reaction on plain channel should be ignored, got %v", err)
		}
		if err := m.MarkRead(ctx, "plain", "c", []string{"m"}); err != nil {
			t.Errorf("receipt on plain channel should be ignored, got %v", err)
		}
		if err := m.SendMedia(ctx, "plain", "c", &MediaMessage{}); !errors.Is(err, ErrMediaNotSupported) {
			t.Errorf("expected ErrMediaNotSupported, got %v", err)
		}
		if err := m.Send(ctx, "missing", "c", &OutgoingMessage{}); !errors.Is(err, ErrChannelNotFound) {
			t.Errorf("expected ErrChannelNotFound, got %v", err)
		}
	})

	t.Run("fails when nothing connects", func(t *testing.T) {
		m := NewManager(nil)
		bad := newStub("bad")
		bad.connErr = errors.New("boom")
		m.Register(bad)
		if err := m.Start(context.Background()); err == nil {
			t.Error("expected error when no channel connects")
		}
		if m.IsConnected("bad") {
			t.Error("bad channel must not report connected")
		}
	})
}
