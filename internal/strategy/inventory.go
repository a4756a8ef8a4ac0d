package strategy

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"dlmm-lp-bot/internal/jupiter"
	"dlmm-lp-bot/internal/retry"
	"dlmm-lp-bot/internal/telemetry"

	"go.uber.org/zap"
)

type balances struct {
	baseRaw  uint64
	quoteRaw uint64
}

// rebalanceInventory brings the wallet's two sides close to a 50/50 value
// split before liquidity is deposited. It returns the balances to deposit and
// the slot floor subsequent balance reads must respect (the swap's confirmed
// slot when a swap happened, minSlot otherwise).
func (s *Strategy) rebalanceInventory(ctx context.Context, price float64, minSlot uint64) (balances, uint64, error) {
	meta := s.pool.Meta()
	owner := s.signer.PublicKey()
	current, err := s.readBalances(ctx, owner, minSlot)
	if err != nil {
		return balances{}, minSlot, err
	}

	baseValue := float64(current.baseRaw) / math.Pow(10, float64(meta.BaseDecimals)) * price
	quoteValue := float64(current.quoteRaw) / math.Pow(10, float64(meta.QuoteDecimals))
	if baseValue == 0 && quoteValue == 0 {
		return balances{}, minSlot, errors.New("wallet holds neither pool token")
	}
	skew := math.Inf(1)
	if quoteValue > 0 {
		skew = math.Abs(1 - baseValue/quoteValue)
	}
	if skew <= float64(s.cfg.InventorySkewThresholdBps)/10000 {
		return current, minSlot, nil
	}

	// Swap half the value difference out of the heavier side.
	swapValue := math.Abs(baseValue-quoteValue) / 2
	var inputMint, outputMint string
	var inputRaw uint64
	if baseValue > quoteValue {
		inputMint, outputMint = meta.BaseMint, meta.QuoteMint
		inputRaw = uint64(swapValue / price * math.Pow(10, float64(meta.BaseDecimals)))
	} else {
		inputMint, outputMint = meta.QuoteMint, meta.BaseMint
		inputRaw = uint64(swapValue * math.Pow(10, float64(meta.QuoteDecimals)))
	}
	if inputRaw == 0 {
		return current, minSlot, nil
	}
	s.log.Info("rebalancing inventory",
		zap.Float64("skew", skew),
		zap.String("input_mint", inputMint),
		zap.Uint64("input_raw", inputRaw))

	order, err := retry.Do(ctx, quotePolicy, func() (jupiter.Order, error) {
		order, err := s.swapper.GetOrder(ctx, inputMint, outputMint, inputRaw, owner, s.cfg.MaxRebalanceSlippageBps)
		if errors.Is(err, jupiter.ErrSlippageExceeded) {
			return jupiter.Order{}, retry.Permanent(err)
		}
		return order, err
	})
	if err != nil {
		return current, minSlot, fmt.Errorf("quote inventory swap: %w", err)
	}
	result, err := s.swapper.ExecuteOrder(ctx, order, s.signer)
	if err != nil {
		return current, minSlot, fmt.Errorf("execute inventory swap: %w", err)
	}

	slot := result.Slot
	if slot < minSlot {
		slot = minSlot
	}
	fresh, err := s.readBalances(ctx, owner, slot)
	if err != nil {
		return balances{}, slot, fmt.Errorf("re-read balances after swap: %w", err)
	}
	s.metrics.Swaps.Inc()
	s.logEvent(ctx, telemetry.Event{Type: telemetry.EventSwaps, Payload: telemetry.SwapEvent{
		Timestamp:             time.Now().UnixMilli(),
		Pair:                  s.cfg.Pair,
		InitialBaseRawAmount:  current.baseRaw,
		InitialQuoteRawAmount: current.quoteRaw,
		FinalBaseRawAmount:    fresh.baseRaw,
		FinalQuoteRawAmount:   fresh.quoteRaw,
		TransactionID:         result.Signature,
	}})
	return fresh, slot, nil
}

func (s *Strategy) readBalances(ctx context.Context, owner string, minSlot uint64) (balances, error) {
	meta := s.pool.Meta()
	baseRaw, err := s.ledger.GetBalance(ctx, owner, meta.BaseMint, minSlot)
	if err != nil {
		return balances{}, fmt.Errorf("read base balance: %w", err)
	}
	quoteRaw, err := s.ledger.GetBalance(ctx, owner, meta.QuoteMint, minSlot)
	if err != nil {
		return balances{}, fmt.Errorf("read quote balance: %w", err)
	}
	return balances{baseRaw: baseRaw, quoteRaw: quoteRaw}, nil
}
