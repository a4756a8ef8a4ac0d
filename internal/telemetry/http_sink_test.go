package telemetry

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"dlmm-lp-bot/internal/config"

	"go.uber.org/zap"
)

func TestHTTPSinkPostsGzipJSON(t *testing.T) {
	var gotName, gotAuth, gotEncoding string
	var gotEvent SwapEvent
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotName = r.URL.Query().Get("name")
		gotAuth = r.Header.Get("Authorization")
		gotEncoding = r.Header.Get("Content-Encoding")
		gz, err := gzip.NewReader(r.Body)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		payload, err := io.ReadAll(gz)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if err := json.Unmarshal(payload, &gotEvent); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	sink := NewHTTPSink(config.TelemetryConfig{URL: server.URL, Token: "tok"}, zap.NewNop())
	event := Event{Type: EventSwaps, Payload: SwapEvent{Pair: "jup/sol", TransactionID: "sig1", FinalBaseRawAmount: 42}}
	if err := sink.LogEvent(context.Background(), event); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotName != "swaps" {
		t.Fatalf("expected name swaps, got %q", gotName)
	}
	if gotAuth != "Bearer tok" {
		t.Fatalf("expected bearer auth, got %q", gotAuth)
	}
	if gotEncoding != "gzip" {
		t.Fatalf("expected gzip encoding, got %q", gotEncoding)
	}
	if gotEvent.Pair != "jup/sol" || gotEvent.FinalBaseRawAmount != 42 {
		t.Fatalf("unexpected event payload: %+v", gotEvent)
	}
}

func TestHTTPSinkRejectsNon2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	sink := NewHTTPSink(config.TelemetryConfig{URL: server.URL, Token: "bad"}, zap.NewNop())
	if err := sink.LogEvent(context.Background(), Event{Type: EventPositions, Payload: PositionEvent{}}); err == nil {
		t.Fatalf("expected error for forbidden response")
	}
}

func TestMultiSinkReturnsFirstError(t *testing.T) {
	okSink := sinkFunc(func(ctx context.Context, event Event) error { return nil })
	failSink := sinkFunc(func(ctx context.Context, event Event) error { return context.DeadlineExceeded })
	called := 0
	countSink := sinkFunc(func(ctx context.Context, event Event) error {
		called++
		return nil
	})
	multi := Multi{okSink, failSink, countSink}
	err := multi.LogEvent(context.Background(), Event{Type: EventSwaps})
	if err != context.DeadlineExceeded {
		t.Fatalf("expected first error, got %v", err)
	}
	if called != 1 {
		t.Fatalf("expected all sinks attempted, called=%d", called)
	}
}

type sinkFunc func(ctx context.Context, event Event) error

func (f sinkFunc) LogEvent(ctx context.Context, event Event) error { return f(ctx, event) }
