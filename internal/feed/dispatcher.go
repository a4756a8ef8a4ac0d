package feed

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

// Sample is one resolved price from the feed, already scaled by its exponent.
type Sample struct {
	ID    string
	Price float64
}

// Consumer receives resolved prices for its pair. One feed id means the price
// is used directly; two mean the pair price is the base/quote ratio.
type Consumer interface {
	Pair() string
	FeedIDs() []string
	HandleTick(ctx context.Context, price float64) error
}

// Dispatcher fans price batches out to registered consumers. A missing feed
// entry skips only the consumers that need it; a consumer error never blocks
// the others.
type Dispatcher struct {
	consumers []Consumer
	log       *zap.Logger
}

func NewDispatcher(log *zap.Logger) *Dispatcher {
	return &Dispatcher{log: log}
}

func (d *Dispatcher) Register(consumer Consumer) {
	d.consumers = append(d.consumers, consumer)
}

// FeedIDs returns the normalized union of all registered consumers' feed ids.
func (d *Dispatcher) FeedIDs() []string {
	seen := make(map[string]struct{})
	var ids []string
	for _, consumer := range d.consumers {
		for _, id := range consumer.FeedIDs() {
			id = NormalizeID(id)
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	return ids
}

// Dispatch resolves each consumer's price from the batch and delivers the
// ticks in detached goroutines. It never waits for a tick to finish: one
// consumer mid-rebalance must not hold up price delivery to the others, and
// the consumer's own busy flag sheds ticks it cannot take.
func (d *Dispatcher) Dispatch(ctx context.Context, batch map[string]Sample) {
	for _, consumer := range d.consumers {
		price, ok := d.resolve(consumer, batch)
		if !ok {
			continue
		}
		go func(consumer Consumer, price float64) {
			if err := consumer.HandleTick(ctx, price); err != nil {
				d.log.Error("tick failed",
					zap.String("pair", consumer.Pair()),
					zap.Error(err))
			}
		}(consumer, price)
	}
}

func (d *Dispatcher) resolve(consumer Consumer, batch map[string]Sample) (float64, bool) {
	ids := consumer.FeedIDs()
	samples := make([]Sample, 0, len(ids))
	for _, id := range ids {
		sample, ok := batch[NormalizeID(id)]
		if !ok {
			d.log.Warn("price feed entry missing",
				zap.String("pair", consumer.Pair()),
				zap.String("feed_id", id))
			return 0, false
		}
		samples = append(samples, sample)
	}
	switch len(samples) {
	case 1:
		return samples[0].Price, true
	case 2:
		if samples[1].Price == 0 {
			d.log.Warn("quote feed price is zero", zap.String("pair", consumer.Pair()))
			return 0, false
		}
		return samples[0].Price / samples[1].Price, true
	default:
		d.log.Warn("unsupported feed id count",
			zap.String("pair", consumer.Pair()),
			zap.Int("count", len(samples)))
		return 0, false
	}
}

// NormalizeID strips the optional 0x prefix and lowercases a hex feed id so
// ids compare equal regardless of the source's formatting.
func NormalizeID(id string) string {
	return strings.ToLower(strings.TrimPrefix(id, "0x"))
}
