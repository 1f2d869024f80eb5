package notifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"PriceSentinel/internal/model"
)

type fakeTelegram struct {
	mu       sync.Mutex
	failures int
	chats    []string
	texts    []string
}

func (f *fakeTelegram) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures > 0 {
		f.failures--
		http.Error(w, `{"ok":false}`, http.StatusTooManyRequests)
		return
	}
	var body map[string]string
	json.NewDecoder(r.Body).Decode(&body)
	f.chats = append(f.chats, body["chat_id"])
	f.texts = append(f.texts, body["text"])
	w.Write([]byte(`{"ok":true}`))
}

func newTestNotifier(t *testing.T, fake *fakeTelegram) *TelegramNotifier {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	n := NewTelegramNotifier("token", "ops-chat", "")
	n.apiBase = srv.URL
	n.MaxRetries = 1
	return n
}

func TestDeliver_Routing(t *testing.T) {
	tests := []struct {
		recipient string
		want      string
	}{
		{"", "ops-chat"},
		{"pricing@example.com", "pricing-chat"},
		{"someone@example.com", "ops-chat"},
	}
	for _, tt := range tests {
		t.Run(tt.recipient, func(t *testing.T) {
			fake := &fakeTelegram{}
			n := newTestNotifier(t, fake)
			n.Recipients = map[string]string{"pricing@example.com": "pricing-chat"}

			if err := n.Deliver(context.Background(), model.Alert{Type: model.AlertRuleConflict, Recipient: tt.recipient, Message: "x"}); err != nil {
				t.Fatalf("deliver: %v", err)
			}
			if len(fake.chats) != 1 || fake.chats[0] != tt.want {
				t.Errorf("sent to %v, want %s", fake.chats, tt.want)
			}
		})
	}
}

func TestSendWithRetry(t *testing.T) {
	fake := &fakeTelegram{failures: 1}
	n := newTestNotifier(t, fake)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := n.SendWithRetry(ctx, "ops-chat", "hello", 1); err != nil {
		t.Fatalf("expected success after one retry: %v", err)
	}
	if len(fake.texts) != 1 {
		t.Errorf("expected one delivered message, got %d", len(fake.texts))
	}

	fake.failures = 5
	if err := n.SendWithRetry(ctx, "ops-chat", "hello", 0); err == nil {
		t.Error("expected an error once retries are exhausted")
	}
}

func TestFormatAlert(t *testing.T) {
	msg := FormatAlert(model.Alert{
		Type:               model.AlertStockoutRisk,
		Severity:           model.SeverityCritical,
		ProductIDs:         []string{"sku-1"},
		LocationID:         "store-<7>",
		Message:            "runs out in 6h",
		RecommendedActions: []string{"reorder 40 units"},
		Occurrences:        4,
		CreatedAt:          time.Date(2026, 9, 14, 9, 30, 0, 0, time.UTC),
	})
	for _, want := range []string{"Stockout risk", "sku-1", "store-&lt;7&gt;", "Seen 4 times", "reorder 40 units", "2026-09-14 09:30"} {
		if !strings.Contains(msg, want) {
			t.Errorf("message missing %q:\n%s", want, msg)
		}
	}
}
