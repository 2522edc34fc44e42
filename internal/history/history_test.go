package history

import (
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestGet_EmptyForUnknownUser(t *testing.T) {
	s := openTestStore(t)
	msgs, err := s.Get("nobody")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("expected empty history, got %d messages", len(msgs))
	}
}

func TestPutGet_RoundTrip(t *testing.T) {
	s := openTestStore(t)

	msgs := []Message{
		NewMessage("user", "what is the refund policy?"),
		NewMessage("assistant", "refunds take five business days"),
	}
	if err := s.Put("user-1", msgs, 20); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, err := s.Get("user-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if len(got) != 2 || got[0].Role != "user" || got[1].Role != "assistant" {
		t.Errorf("unexpected history: %+v", got)
	}
}

func TestPut_TrimsToLimit(t *testing.T) {
	s := openTestStore(t)

	var msgs []Message
	for i := 0; i < 30; i++ {
		msgs = append(msgs, NewMessage("user", "turn"))
	}
	if err := s.Put("user-1", msgs, 20); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, err := s.Get("user-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if len(got) != 20 {
		t.Errorf("expected 20 trailing turns, got %d", len(got))
	}
}
