package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"dlmm-lp-bot/internal/config"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

// Stream consumes a Hermes-style price websocket and feeds the dispatcher
// with the latest sample set after every update.
type Stream struct {
	cfg        config.FeedConfig
	dispatcher *Dispatcher
	log        *zap.Logger
}

func NewStream(cfg config.FeedConfig, dispatcher *Dispatcher, log *zap.Logger) *Stream {
	return &Stream{cfg: cfg, dispatcher: dispatcher, log: log}
}

type priceUpdate struct {
	Type      string `json:"type"`
	PriceFeed struct {
		ID    string `json:"id"`
		Price struct {
			Price string `json:"price"`
			Expo  int    `json:"expo"`
		} `json:"price"`
	} `json:"price_feed"`
}

// Run connects, subscribes to the dispatcher's feed ids and pumps updates
// until the context is done. Connection drops reconnect after the configured
// delay; the attempt counter resets on the first successful message, so only
// consecutive failures count against the limit.
func (s *Stream) Run(ctx context.Context) error {
	latest := make(map[string]Sample)
	attempts := 0
	for {
		if err := s.runOnce(ctx, latest, &attempts); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			attempts++
			if attempts > s.cfg.MaxReconnects {
				return fmt.Errorf("price stream gave up after %d reconnects: %w", s.cfg.MaxReconnects, err)
			}
			s.log.Warn("price stream disconnected, reconnecting",
				zap.Int("attempt", attempts),
				zap.Error(err))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.cfg.ReconnectDelay):
			}
		}
	}
}

func (s *Stream) runOnce(ctx context.Context, latest map[string]Sample, attempts *int) error {
	conn, _, err := websocket.Dial(ctx, s.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", s.cfg.URL, err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	subscribe, err := json.Marshal(map[string]any{
		"type": "subscribe",
		"ids":  s.dispatcher.FeedIDs(),
	})
	if err != nil {
		return err
	}
	if err := conn.Write(ctx, websocket.MessageText, subscribe); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		var update priceUpdate
		if err := json.Unmarshal(data, &update); err != nil {
			s.log.Warn("unparseable feed message", zap.Error(err))
			continue
		}
		if update.Type != "price_update" {
			continue
		}
		*attempts = 0
		sample, err := resolveSample(update)
		if err != nil {
			s.log.Warn("bad price update", zap.Error(err))
			continue
		}
		latest[sample.ID] = sample
		s.dispatcher.Dispatch(ctx, snapshot(latest))
	}
}

func resolveSample(update priceUpdate) (Sample, error) {
	raw, err := strconv.ParseFloat(update.PriceFeed.Price.Price, 64)
	if err != nil {
		return Sample{}, fmt.Errorf("parse price %q: %w", update.PriceFeed.Price.Price, err)
	}
	return Sample{
		ID:    NormalizeID(update.PriceFeed.ID),
		Price: raw * math.Pow(10, float64(update.PriceFeed.Price.Expo)),
	}, nil
}

func snapshot(latest map[string]Sample) map[string]Sample {
	out := make(map[string]Sample, len(latest))
	for id, sample := range latest {
		out[id] = sample
	}
	return out
}
