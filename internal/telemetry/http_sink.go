package telemetry

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"dlmm-lp-bot/internal/config"

	"go.uber.org/zap"
)

// HTTPSink posts gzip-compressed JSON events to an ingestion endpoint
// (tinybird-style events API).
type HTTPSink struct {
	url    string
	token  string
	client *http.Client
	log    *zap.Logger
}

func NewHTTPSink(cfg config.TelemetryConfig, log *zap.Logger) *HTTPSink {
	return &HTTPSink{
		url:    strings.TrimRight(cfg.URL, "/"),
		token:  cfg.Token,
		client: &http.Client{Timeout: 10 * time.Second},
		log:    log,
	}
}

func (s *HTTPSink) LogEvent(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(payload); err != nil {
		return err
	}
	if err := gz.Close(); err != nil {
		return err
	}
	url := fmt.Sprintf("%s/v0/events?name=%s", s.url, event.Type)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Content-Encoding", "gzip")
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("telemetry post failed: http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}
