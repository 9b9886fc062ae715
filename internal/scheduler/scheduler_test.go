package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/user/pdfbot/internal/session"
	"github.com/user/pdfbot/internal/types"
)

type mockGateway struct {
	mu    sync.Mutex
	texts map[types.ChatID][]string
}

func (m *mockGateway) ResolveFileURL(context.Context, string) (string, error) { return "", nil }
func (m *mockGateway) FetchBytes(context.Context, string) ([]byte, error)    { return nil, nil }
func (m *mockGateway) SendDocument(context.Context, types.ChatID, string, []byte) error {
	return nil
}

func (m *mockGateway) SendText(_ context.Context, chatID types.ChatID, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.texts == nil {
		m.texts = map[types.ChatID][]string{}
	}
	m.texts[chatID] = append(m.texts[chatID], text)
	return nil
}

func TestSweepExpiresAndNotifies(t *testing.T) {
	store := session.New(session.Limits{})
	gw := &mockGateway{}
	sw := New(store, gw, 50*time.Millisecond)

	if err := store.Append(10, "old.pdf", []byte("x")); err != nil {
		t.Fatal(err)
	}
	time.Sleep(80 * time.Millisecond)
	if err := store.Append(20, "fresh.pdf", []byte("y")); err != nil {
		t.Fatal(err)
	}

	sw.Sweep()

	if n := store.Size(10); n != 0 {
		t.Errorf("idle session still holds %d documents", n)
	}
	if n := store.Size(20); n != 1 {
		t.Errorf("fresh session lost documents: %d", n)
	}
	gw.mu.Lock()
	defer gw.mu.Unlock()
	if len(gw.texts[10]) != 1 {
		t.Errorf("chat 10 got %d notices, want 1", len(gw.texts[10]))
	}
	if len(gw.texts[20]) != 0 {
		t.Errorf("fresh chat was notified: %v", gw.texts[20])
	}
}

func TestSweepNoSessions(t *testing.T) {
	store := session.New(session.Limits{})
	gw := &mockGateway{}
	New(store, gw, time.Hour).Sweep()

	gw.mu.Lock()
	defer gw.mu.Unlock()
	if len(gw.texts) != 0 {
		t.Errorf("sweep of empty store sent notices: %v", gw.texts)
	}
}
