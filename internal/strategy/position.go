package strategy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"dlmm-lp-bot/internal/dlmm"
	"dlmm-lp-bot/internal/retry"
	"dlmm-lp-bot/internal/solana"
	"dlmm-lp-bot/internal/state"
	"dlmm-lp-bot/internal/telemetry"

	"go.uber.org/zap"
)

// createPosition deposits the full rebalanced inventory into a fresh position
// centered on price. minSlot floors all balance reads so a just-confirmed
// withdrawal or swap is never missed.
func (s *Strategy) createPosition(ctx context.Context, price float64, minSlot uint64) error {
	s.phase = PhaseCreating
	fail := func(err error) error {
		s.phase = PhaseNoPosition
		s.metrics.CreateFailed.Inc()
		return err
	}

	funds, _, err := s.rebalanceInventory(ctx, price, minSlot)
	if err != nil {
		return fail(fmt.Errorf("rebalance inventory: %w", err))
	}

	delta := float64(s.cfg.PriceRangeDeltaBps) / 10000
	minBin := s.pool.BinIDFromPrice(price * (1 - delta))
	maxBin := s.pool.BinIDFromPrice(price * (1 + delta))
	if count := int(maxBin) - int(minBin) + 1; count > dlmm.MaxBinsPerPosition {
		s.phase = PhaseNoPosition
		s.metrics.CreateFailed.Inc()
		s.log.Error("bin range exceeds protocol limit, not opening a position",
			zap.Int("bins", count),
			zap.Int("limit", dlmm.MaxBinsPerPosition),
			zap.Int("price_range_delta_bps", s.cfg.PriceRangeDeltaBps))
		return nil
	}

	positionKey, err := solana.NewKeypair()
	if err != nil {
		return fail(fmt.Errorf("generate position identity: %w", err))
	}
	unsigned, err := s.pool.InitializePositionAndAddLiquidityByStrategy(ctx, dlmm.InitializePositionRequest{
		Owner:          s.signer.PublicKey(),
		PositionPubkey: positionKey.PublicKey(),
		MinBinID:       minBin,
		MaxBinID:       maxBin,
		BaseRawAmount:  funds.baseRaw,
		QuoteRawAmount: funds.quoteRaw,
		Shape:          dlmm.Shape(s.cfg.Shape),
	})
	if err != nil {
		return fail(fmt.Errorf("build create transaction: %w", err))
	}
	signed, err := solana.SignTransaction(unsigned, s.signer, positionKey)
	if err != nil {
		return fail(fmt.Errorf("sign create transaction: %w", err))
	}
	signature, err := s.ledger.SendTransaction(ctx, signed)
	if err != nil {
		return fail(fmt.Errorf("send create transaction: %w", err))
	}
	if _, err := s.ledger.ConfirmTransactions(ctx, []string{signature}); err != nil {
		return fail(fmt.Errorf("confirm create transaction: %w", err))
	}

	position, err := retry.Do(ctx, positionPollPolicy, func() (dlmm.Position, error) {
		positions, err := s.pool.GetPositionsByUserAndOwner(ctx, s.signer.PublicKey())
		if err != nil {
			return dlmm.Position{}, err
		}
		for _, p := range positions {
			if p.Address == positionKey.PublicKey() {
				return p, nil
			}
		}
		return dlmm.Position{}, fmt.Errorf("position %s not indexed yet", positionKey.PublicKey())
	})
	if err != nil {
		return fail(fmt.Errorf("poll new position: %w", err))
	}

	s.position = &position
	s.phase = PhaseActive
	s.metrics.PositionsCreated.Inc()
	if err := state.SavePositionSnapshot(ctx, s.store, state.PositionSnapshot{
		Pair:           s.cfg.Pair,
		Address:        position.Address,
		LowerBinID:     position.LowerBinID,
		UpperBinID:     position.UpperBinID,
		BaseRawAmount:  position.BaseRawAmount,
		QuoteRawAmount: position.QuoteRawAmount,
		OraclePrice:    price,
		UpdatedAtMS:    time.Now().UnixMilli(),
	}); err != nil {
		s.log.Warn("persist position snapshot failed", zap.Error(err))
	}
	s.logEvent(ctx, telemetry.Event{Type: telemetry.EventPositions, Payload: telemetry.PositionEvent{
		Timestamp:      time.Now().UnixMilli(),
		Pair:           s.cfg.Pair,
		PositionAddr:   position.Address,
		LowerBinID:     position.LowerBinID,
		UpperBinID:     position.UpperBinID,
		BaseRawAmount:  position.BaseRawAmount,
		QuoteRawAmount: position.QuoteRawAmount,
		TransactionID:  signature,
		OraclePrice:    price,
	}})
	s.log.Info("opened position",
		zap.String("position", position.Address),
		zap.Int32("lower", position.LowerBinID),
		zap.Int32("upper", position.UpperBinID))
	return nil
}

// rebalancePosition closes the current position and reopens it centered on
// price. The close must fully confirm before any create: the new deposit is
// funded by the withdrawn tokens, observed at the withdrawal's slot.
func (s *Strategy) rebalancePosition(ctx context.Context, price float64) error {
	if s.position == nil {
		s.log.Warn("rebalance requested without an open position")
		return nil
	}
	s.phase = PhaseClosing

	current, err := s.pool.GetPosition(ctx, s.position.Address)
	if err != nil {
		s.phase = PhaseActive
		return fmt.Errorf("read position before close: %w", err)
	}
	unsigned, err := s.pool.RemoveLiquidity(ctx, dlmm.RemoveLiquidityRequest{
		Position: current.Address,
		Owner:    s.signer.PublicKey(),
	})
	if err != nil {
		s.phase = PhaseActive
		return fmt.Errorf("build removal transactions: %w", err)
	}

	signatures := make([]string, 0, len(unsigned))
	for _, tx := range unsigned {
		signed, err := solana.SignTransaction(tx, s.signer)
		if err != nil {
			s.phase = PhaseActive
			return fmt.Errorf("sign removal transaction: %w", err)
		}
		signature, err := s.ledger.SendTransaction(ctx, signed)
		if err != nil {
			s.phase = PhaseActive
			s.metrics.RebalanceFailed.Inc()
			return fmt.Errorf("send removal transaction: %w", err)
		}
		signatures = append(signatures, signature)
	}
	confirmations, err := s.ledger.ConfirmTransactions(ctx, signatures)
	if err != nil {
		s.phase = PhaseActive
		s.metrics.RebalanceFailed.Inc()
		return fmt.Errorf("confirm removal: %w", err)
	}
	var maxSlot uint64
	for _, confirmation := range confirmations {
		if confirmation.Slot > maxSlot {
			maxSlot = confirmation.Slot
		}
	}
	if maxSlot == 0 {
		s.phase = PhaseActive
		s.metrics.RebalanceFailed.Inc()
		return errors.New("removal confirmed without a slot, refusing to create against stale balances")
	}

	s.position = nil
	s.metrics.PositionsClosed.Inc()
	if err := state.ClearPositionSnapshot(ctx, s.store, s.cfg.Pair); err != nil {
		s.log.Warn("clear position snapshot failed", zap.Error(err))
	}
	s.logEvent(ctx, telemetry.Event{Type: telemetry.EventWithdrawals, Payload: telemetry.WithdrawalEvent{
		Timestamp:      time.Now().UnixMilli(),
		Pair:           s.cfg.Pair,
		PositionAddr:   current.Address,
		FeesClaimed:    current.BaseFeeRawAmount + current.QuoteFeeRawAmount,
		BaseRawAmount:  current.BaseRawAmount,
		QuoteRawAmount: current.QuoteRawAmount,
		TransactionIDs: signatures,
	}})
	s.log.Info("closed position",
		zap.String("position", current.Address),
		zap.Uint64("max_slot", maxSlot))

	if err := s.createPosition(ctx, price, maxSlot); err != nil {
		s.metrics.RebalanceFailed.Inc()
		return fmt.Errorf("recreate after close: %w", err)
	}
	s.metrics.Rebalances.Inc()
	return nil
}
