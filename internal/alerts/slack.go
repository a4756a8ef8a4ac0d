package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"dlmm-lp-bot/internal/config"

	"go.uber.org/zap"
)

const slackBaseURL = "https://slack.com/api"

type Slack struct {
	enabled bool
	token   string
	channel string
	baseURL string
	client  *http.Client
	log     *zap.Logger
}

func NewSlack(cfg config.AlertsConfig, log *zap.Logger) *Slack {
	return newSlack(cfg, log, slackBaseURL, &http.Client{Timeout: 10 * time.Second})
}

func newSlack(cfg config.AlertsConfig, log *zap.Logger, baseURL string, client *http.Client) *Slack {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Slack{
		enabled: cfg.Enabled,
		token:   strings.TrimSpace(cfg.Token),
		channel: strings.TrimSpace(cfg.Channel),
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		log:     log,
	}
}

func (s *Slack) Send(ctx context.Context, message string) error {
	if !s.enabled {
		return nil
	}
	if s.token == "" || s.channel == "" {
		return errors.New("slack token and channel are required")
	}
	if strings.TrimSpace(message) == "" {
		return errors.New("slack message is empty")
	}
	payload := map[string]string{
		"channel": s.channel,
		"text":    message,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	url := s.baseURL + "/chat.postMessage"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.token)
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("slack send failed: http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var result struct {
		OK    bool   `json:"ok"`
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil {
		if !result.OK {
			desc := strings.TrimSpace(result.Error)
			if desc == "" {
				desc = "unknown slack error"
			}
			return fmt.Errorf("slack send failed: %s", desc)
		}
	}
	return nil
}

// Error logs the failure and posts it to the alert channel. A failing post is
// itself only logged; it must never crash the caller.
func (s *Slack) Error(ctx context.Context, message string, err error, fields map[string]string) {
	zapFields := []zap.Field{zap.Error(err)}
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		zapFields = append(zapFields, zap.String(key, fields[key]))
	}
	s.log.Error(message, zapFields...)

	var b strings.Builder
	b.WriteString(":rotating_light: ")
	b.WriteString(message)
	for _, key := range keys {
		fmt.Fprintf(&b, "\n%s: %s", key, fields[key])
	}
	if err != nil {
		fmt.Fprintf(&b, "\nerror: %v", err)
	}
	if sendErr := s.Send(ctx, b.String()); sendErr != nil {
		s.log.Warn("alert send failed", zap.Error(sendErr))
	}
}
