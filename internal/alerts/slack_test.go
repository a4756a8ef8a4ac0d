package alerts

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"dlmm-lp-bot/internal/config"

	"go.uber.org/zap"
)

func TestSlackSendDisabled(t *testing.T) {
	cfg := config.AlertsConfig{Enabled: false}
	client := newSlack(cfg, zap.NewNop(), "http://unused", nil)
	if err := client.Send(context.Background(), "hello"); err != nil {
		t.Fatalf("expected nil error when disabled, got %v", err)
	}
}

func TestSlackSendMissingConfig(t *testing.T) {
	cfg := config.AlertsConfig{Enabled: true}
	client := newSlack(cfg, zap.NewNop(), "http://unused", nil)
	if err := client.Send(context.Background(), "hello"); err == nil {
		t.Fatalf("expected error for missing token/channel")
	}
}

func TestSlackSendPostsMessage(t *testing.T) {
	var gotPath, gotAuth string
	var gotPayload map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotPayload); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	cfg := config.AlertsConfig{Enabled: true, Token: "xoxb-token", Channel: "C123"}
	client := newSlack(cfg, zap.NewNop(), server.URL, server.Client())
	if err := client.Send(context.Background(), "hello"); err != nil {
		t.Fatalf("expected send success, got %v", err)
	}
	if gotPath != "/chat.postMessage" {
		t.Fatalf("expected path /chat.postMessage, got %s", gotPath)
	}
	if gotAuth != "Bearer xoxb-token" {
		t.Fatalf("expected bearer auth, got %q", gotAuth)
	}
	if gotPayload["channel"] != "C123" {
		t.Fatalf("expected channel C123, got %q", gotPayload["channel"])
	}
}

func TestSlackSendAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":false,"error":"channel_not_found"}`))
	}))
	defer server.Close()

	cfg := config.AlertsConfig{Enabled: true, Token: "t", Channel: "C123"}
	client := newSlack(cfg, zap.NewNop(), server.URL, server.Client())
	err := client.Send(context.Background(), "hello")
	if err == nil || !strings.Contains(err.Error(), "channel_not_found") {
		t.Fatalf("expected channel_not_found error, got %v", err)
	}
}

func TestSlackErrorNeverPanicsOnSendFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	cfg := config.AlertsConfig{Enabled: true, Token: "t", Channel: "C123"}
	client := newSlack(cfg, zap.NewNop(), server.URL, server.Client())
	client.Error(context.Background(), "rebalance failed", errors.New("boom"), map[string]string{"pair": "jup/sol"})
}
