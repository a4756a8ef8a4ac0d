package strategy

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"dlmm-lp-bot/internal/config"
	"dlmm-lp-bot/internal/dlmm"
	"dlmm-lp-bot/internal/jupiter"
	"dlmm-lp-bot/internal/metrics"
	"dlmm-lp-bot/internal/retry"
	"dlmm-lp-bot/internal/solana"
	"dlmm-lp-bot/internal/state"
	"dlmm-lp-bot/internal/telemetry"

	"go.uber.org/zap"
)

// Phase tracks where the strategy is in its lifecycle. Transitions only
// happen under the busy flag, so reads from the owning tick are safe.
type Phase string

const (
	PhaseUninitialized Phase = "uninitialized"
	PhaseNoPosition    Phase = "no_position"
	PhaseActive        Phase = "position_active"
	PhaseClosing       Phase = "closing"
	PhaseCreating      Phase = "creating"
)

var (
	// quotePolicy rides out aggregator outages; a rebalance can afford to
	// wait minutes for a route.
	quotePolicy = retry.Policy{InitialDelay: time.Second, MaxRetries: 30, MaxDelay: 5 * time.Minute}
	// positionPollPolicy covers indexer lag between a confirmed create and
	// the position showing up in the list.
	positionPollPolicy = retry.Policy{InitialDelay: 500 * time.Millisecond, MaxRetries: 10, MaxDelay: 5 * time.Second}
)

// LedgerClient is the chain surface the strategy needs.
type LedgerClient interface {
	SendTransaction(ctx context.Context, signedTxBase64 string) (string, error)
	ConfirmTransactions(ctx context.Context, signatures []string) ([]solana.Confirmation, error)
	GetBalance(ctx context.Context, owner, mint string, minSlot uint64) (uint64, error)
}

// PoolClient is the pool surface the strategy needs.
type PoolClient interface {
	Meta() dlmm.Metadata
	BinIDFromPrice(price float64) int32
	GetPositionsByUserAndOwner(ctx context.Context, owner string) ([]dlmm.Position, error)
	GetPosition(ctx context.Context, address string) (dlmm.Position, error)
	RemoveLiquidity(ctx context.Context, req dlmm.RemoveLiquidityRequest) ([]string, error)
	InitializePositionAndAddLiquidityByStrategy(ctx context.Context, req dlmm.InitializePositionRequest) (string, error)
}

// SwapClient quotes and executes inventory swaps.
type SwapClient interface {
	GetOrder(ctx context.Context, inputMint, outputMint string, rawAmount uint64, taker string, maxSlippageBps int) (jupiter.Order, error)
	ExecuteOrder(ctx context.Context, order jupiter.Order, signer solana.Keypair) (jupiter.ExecuteResult, error)
}

type Alerter interface {
	Error(ctx context.Context, message string, err error, fields map[string]string)
}

type noopAlerter struct{}

func (noopAlerter) Error(context.Context, string, error, map[string]string) {}

// Deps collects the strategy's collaborators.
type Deps struct {
	Pool      PoolClient
	Ledger    LedgerClient
	Swapper   SwapClient
	Signer    solana.Keypair
	Telemetry telemetry.Sink
	Alerts    Alerter
	Metrics   *metrics.Metrics
	Store     state.Store
	Log       *zap.Logger
}

// Strategy manages a single position in a single pool: it holds liquidity in
// a band around the oracle price and re-centers when the price drifts too far
// from the band's midpoint.
type Strategy struct {
	cfg     config.PoolConfig
	pool    PoolClient
	ledger  LedgerClient
	swapper SwapClient
	signer  solana.Keypair
	sink    telemetry.Sink
	alerts  Alerter
	metrics *metrics.Metrics
	store   state.Store
	log     *zap.Logger

	busy     atomic.Bool
	phase    Phase
	position *dlmm.Position
}

func New(cfg config.PoolConfig, deps Deps) *Strategy {
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewNoop()
	}
	if deps.Alerts == nil {
		deps.Alerts = noopAlerter{}
	}
	if deps.Log == nil {
		deps.Log = zap.NewNop()
	}
	return &Strategy{
		cfg:     cfg,
		pool:    deps.Pool,
		ledger:  deps.Ledger,
		swapper: deps.Swapper,
		signer:  deps.Signer,
		sink:    deps.Telemetry,
		alerts:  deps.Alerts,
		metrics: deps.Metrics,
		store:   deps.Store,
		log:     deps.Log.With(zap.String("pair", cfg.Pair)),
		phase:   PhaseUninitialized,
	}
}

func (s *Strategy) Pair() string {
	return s.cfg.Pair
}

func (s *Strategy) FeedIDs() []string {
	return s.cfg.PriceFeeds
}

func (s *Strategy) Phase() Phase {
	return s.phase
}

// HandleTick processes one price sample. Ticks arriving while a previous one
// is still in flight are dropped, not queued.
func (s *Strategy) HandleTick(ctx context.Context, price float64) error {
	return s.safeExecute(ctx, "tick", func(ctx context.Context) error {
		s.metrics.TicksHandled.Inc()
		return s.tick(ctx, price)
	})
}

// safeExecute is the single gate for mutating work: it takes the busy flag,
// releases it on return and reports failures without letting them escape
// unlogged.
func (s *Strategy) safeExecute(ctx context.Context, operation string, fn func(context.Context) error) error {
	if !s.busy.CompareAndSwap(false, true) {
		s.metrics.TicksDropped.Inc()
		return nil
	}
	defer s.busy.Store(false)
	if err := fn(ctx); err != nil {
		s.alerts.Error(ctx, operation+" failed", err, map[string]string{
			"pair":  s.cfg.Pair,
			"phase": string(s.phase),
		})
		return err
	}
	return nil
}

func (s *Strategy) tick(ctx context.Context, price float64) error {
	if s.phase == PhaseUninitialized {
		if err := s.fetchExistingPosition(ctx); err != nil {
			return err
		}
	}
	if s.position == nil {
		return s.createPosition(ctx, price, 0)
	}
	binID := s.pool.BinIDFromPrice(price)
	if !driftedOutOfBand(binID, s.position.LowerBinID, s.position.UpperBinID, s.cfg.RebalanceThresholdBps) {
		return nil
	}
	s.log.Info("price drifted out of band",
		zap.Int32("bin_id", binID),
		zap.Int32("lower", s.position.LowerBinID),
		zap.Int32("upper", s.position.UpperBinID),
		zap.Float64("price", price))
	return s.rebalancePosition(ctx, price)
}

// fetchExistingPosition runs once, on the first tick: the bot may be
// restarting over a live position.
func (s *Strategy) fetchExistingPosition(ctx context.Context) error {
	positions, err := s.pool.GetPositionsByUserAndOwner(ctx, s.signer.PublicKey())
	if err != nil {
		return fmt.Errorf("fetch existing positions: %w", err)
	}
	if len(positions) == 0 {
		s.phase = PhaseNoPosition
		s.log.Info("no existing position found")
		return nil
	}
	position := positions[0]
	s.position = &position
	s.phase = PhaseActive
	s.log.Info("adopted existing position",
		zap.String("position", position.Address),
		zap.Int32("lower", position.LowerBinID),
		zap.Int32("upper", position.UpperBinID))
	return nil
}

// driftedOutOfBand applies the drift rule in integer bin space. The bounds
// are exclusive: sitting exactly on the threshold does not trigger.
func driftedOutOfBand(binID, lower, upper int32, thresholdBps int) bool {
	halfRange := (upper - lower) / 2
	mid := lower + halfRange
	threshold := int32(int64(halfRange) * int64(thresholdBps) / 10000)
	return binID < mid-threshold || binID > mid+threshold
}

func (s *Strategy) logEvent(ctx context.Context, event telemetry.Event) {
	if s.sink == nil {
		return
	}
	if err := s.sink.LogEvent(ctx, event); err != nil {
		s.log.Warn("telemetry event failed",
			zap.String("event_type", string(event.Type)),
			zap.Error(err))
	}
}
