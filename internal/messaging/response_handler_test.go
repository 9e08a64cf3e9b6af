package messaging

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/BTreeMap/WorkLog/internal/flow"
	"github.com/BTreeMap/WorkLog/internal/models"
	"github.com/BTreeMap/WorkLog/internal/store"
	"github.com/BTreeMap/WorkLog/internal/twiliowhatsapp"
)

type turnCall struct {
	userID string
	in     flow.Input
}

type fakeTurns struct {
	mu     sync.Mutex
	calls  []turnCall
	prompt flow.Prompt
	err    error
}

func (f *fakeTurns) HandleTurn(ctx context.Context, userID string, in flow.Input) (flow.Prompt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, turnCall{userID: userID, in: in})
	return f.prompt, f.err
}

func (f *fakeTurns) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func newTestDedup(t *testing.T) store.DedupRepo {
	t.Helper()
	dir, err := os.MkdirTemp("", "worklog_messaging_test_")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	s, err := store.NewSQLiteStore(store.WithSQLiteDSN(filepath.Join(dir, "test.db")))
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestProcessResponse_RepliesWithRenderedPrompt(t *testing.T) {
	mock := twiliowhatsapp.NewMockClient()
	svc := NewTwilioService(mock)
	turns := &fakeTurns{prompt: flow.Prompt{Text: "Pick a date", Choices: []flow.Choice{{ID: "d1", Label: "Today"}}}}
	rh := NewResponseHandler(svc, turns)

	err := rh.ProcessResponse(context.Background(), models.Response{From: "whatsapp:+15551234567", Body: "hi", Selection: "x"})
	if err != nil {
		t.Fatalf("ProcessResponse failed: %v", err)
	}
	if len(turns.calls) != 1 {
		t.Fatalf("expected 1 turn, got %d", len(turns.calls))
	}
	call := turns.calls[0]
	if call.userID != "15551234567" || call.in.Text != "hi" || call.in.Selection != "x" {
		t.Errorf("unexpected turn call: %+v", call)
	}
	sent := mock.Sent()
	if len(sent) != 1 {
		t.Fatalf("expected 1 reply, got %d", len(sent))
	}
	if sent[0].Body != "Pick a date\n\n1. Today" {
		t.Errorf("unexpected reply %q", sent[0].Body)
	}
}

func TestProcessResponse_TurnErrorStillReplies(t *testing.T) {
	mock := twiliowhatsapp.NewMockClient()
	svc := NewTwilioService(mock)
	turns := &fakeTurns{err: errors.New("boom")}
	rh := NewResponseHandler(svc, turns)

	if err := rh.ProcessResponse(context.Background(), models.Response{From: "+15551234567", Body: "hi"}); err == nil {
		t.Fatal("expected the turn error to be returned")
	}
	sent := mock.Sent()
	if len(sent) != 1 || sent[0].Body != FallbackMessage {
		t.Fatalf("expected fallback reply, got %+v", sent)
	}
}

func TestProcessResponse_InvalidSender(t *testing.T) {
	svc := NewTwilioService(twiliowhatsapp.NewMockClient())
	turns := &fakeTurns{}
	rh := NewResponseHandler(svc, turns)
	if err := rh.ProcessResponse(context.Background(), models.Response{From: "abc", Body: "hi"}); err == nil {
		t.Fatal("expected error for invalid sender")
	}
	if turns.count() != 0 {
		t.Error("turn should not run for an invalid sender")
	}
}

func TestProcessResponse_Dedup(t *testing.T) {
	mock := twiliowhatsapp.NewMockClient()
	svc := NewTwilioService(mock)
	turns := &fakeTurns{prompt: flow.Prompt{Text: "ok"}}
	rh := NewResponseHandler(svc, turns, WithDedup(newTestDedup(t)))
	ctx := context.Background()

	resp := models.Response{From: "+15551234567", Body: "hi", MessageID: "SM1"}
	for i := 0; i < 2; i++ {
		if err := rh.ProcessResponse(ctx, resp); err != nil {
			t.Fatalf("ProcessResponse %d failed: %v", i, err)
		}
	}
	if turns.count() != 1 {
		t.Fatalf("expected duplicate to be skipped, got %d turns", turns.count())
	}
	resp.MessageID = ""
	if err := rh.ProcessResponse(ctx, resp); err != nil {
		t.Fatalf("ProcessResponse failed: %v", err)
	}
	if turns.count() != 2 {
		t.Fatalf("messages without id are never deduplicated, got %d turns", turns.count())
	}
}

func TestRun_ExitsOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreTopFunction("database/sql.(*DB).connectionOpener"))

	mock := twiliowhatsapp.NewMockClient()
	svc := NewTwilioService(mock)
	turns := &fakeTurns{prompt: flow.Prompt{Text: "ok"}}
	rh := NewResponseHandler(svc, turns)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		rh.Run(ctx)
		close(done)
	}()

	if !svc.emitResponse(models.Response{From: "+15551234567", Body: "hi"}) {
		t.Fatal("emitResponse failed")
	}
	deadline := time.Now().Add(2 * time.Second)
	for turns.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if turns.count() != 1 {
		t.Fatalf("expected 1 processed turn, got %d", turns.count())
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not exit after cancel")
	}
}

func TestRun_ExitsOnStop(t *testing.T) {
	defer goleak.VerifyNone(t)

	svc := NewTwilioService(twiliowhatsapp.NewMockClient())
	rh := NewResponseHandler(svc, &fakeTurns{})
	done := make(chan struct{})
	go func() {
		rh.Run(context.Background())
		close(done)
	}()
	if err := svc.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not exit after Stop")
	}
}

func TestRenderer(t *testing.T) {
	p := flow.Prompt{Text: "Choose", Choices: []flow.Choice{
		{ID: "a", Label: "North"}, {ID: "b", Label: "South"}, {ID: "c", Label: "East"},
	}}

	if got := NewRenderer(0).Render(p); got != "Choose\n\n1. North\n2. South\n3. East" {
		t.Errorf("unlimited render = %q", got)
	}
	got := NewRenderer(2).Render(p)
	if !strings.HasSuffix(got, "2. South\n...and 1 more, type a name to find it.") {
		t.Errorf("clamped render = %q", got)
	}
	if strings.Contains(got, "East") {
		t.Errorf("clamped render should hide East: %q", got)
	}
	if got := NewRenderer(5).Render(flow.Prompt{Text: "Done"}); got != "Done" {
		t.Errorf("render without choices = %q", got)
	}
}

func TestCanonicalizePhone(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"+1 (555) 123-4567", "15551234567", false},
		{"15551234567", "15551234567", false},
		{"", "", true},
		{"abc", "", true},
		{"12345", "", true},
	}
	for _, tt := range tests {
		got, err := CanonicalizePhone(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("CanonicalizePhone(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("CanonicalizePhone(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
