package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"shipping-bot/internal/rating"
)

func sampleNote() Notification {
	return Notification{
		Destination: "allemagne",
		CountryCode: "DE",
		CountryName: "Allemagne",
		WeightKg:    decimal.RequireFromString("2"),
		Offers: []rating.Offer{
			{
				CarrierName: "Spring GDS", ServiceLabel: "Tracked",
				Freight: decimal.RequireFromString("24.20"), Surcharges: decimal.RequireFromString("1.21"),
				Total: decimal.RequireFromString("25.41"), Currency: "EUR",
			},
			{
				CarrierName: "Colis Prive", ServiceLabel: "Colis EU",
				Freight: decimal.RequireFromString("30"), Total: decimal.RequireFromString("30"), Currency: "EUR",
				Suspended: true, Warning: "Service suspended",
			},
		},
		Warnings:    []string{"ups: timeout"},
		RequestedAt: time.Now(),
	}
}

func TestTelegramNotifierSuccess(t *testing.T) {
	received := make(map[string]string)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/bottoken/sendMessage") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decode body: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, zerolog.Nop())
	if err := notifier.Notify(context.Background(), sampleNote()); err != nil {
		t.Fatalf("notify: %v", err)
	}

	if received["chat_id"] != "chat" {
		t.Fatalf("unexpected chat_id: %#v", received)
	}
	if !strings.Contains(received["text"], "Allemagne (DE)") {
		t.Fatalf("text missing destination: %q", received["text"])
	}
}

func TestTelegramNotifierError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false, "description": "chat not found"})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, zerolog.Nop())
	err := notifier.Notify(context.Background(), sampleNote())
	if err == nil || !strings.Contains(err.Error(), "chat not found") {
		t.Fatalf("expected ok=false error, got %v", err)
	}
}

func TestTelegramNotifierHTTPStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, zerolog.Nop())
	if err := notifier.Notify(context.Background(), sampleNote()); err == nil {
		t.Fatal("502 should fail")
	}
}

func TestRenderMessage(t *testing.T) {
	text := RenderMessage(sampleNote())

	for _, want := range []string{
		"Shipping quotes: 2kg -> Allemagne (DE)",
		"1. Spring GDS Tracked: 25.41 EUR (freight 24.20, surcharges +1.21)",
		"2. Colis Prive Colis EU: 30.00 EUR SUSPENDED",
		"   ! Service suspended",
		"Note: ups: timeout",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("message missing %q:\n%s", want, text)
		}
	}

	empty := RenderMessage(Notification{Destination: "mars", WeightKg: decimal.NewFromInt(1)})
	if !strings.Contains(empty, "No carrier available") || !strings.Contains(empty, "-> mars") {
		t.Fatalf("unexpected empty message %q", empty)
	}
}
