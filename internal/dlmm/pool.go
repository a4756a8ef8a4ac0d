package dlmm

import (
	"context"
	"fmt"

	"dlmm-lp-bot/internal/config"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// Metadata is the static description of a pool: token mints, decimals and the
// geometric bin step.
type Metadata struct {
	Address       string `json:"address"`
	Name          string `json:"name"`
	BaseMint      string `json:"base_mint"`
	QuoteMint     string `json:"quote_mint"`
	BaseDecimals  int    `json:"base_decimals"`
	QuoteDecimals int    `json:"quote_decimals"`
	BinStep       int    `json:"bin_step"`
}

// Position is an open liquidity position as reported by the pool API. Raw
// amounts are in the token's smallest units.
type Position struct {
	Address           string `json:"address"`
	LowerBinID        int32  `json:"lower_bin_id"`
	UpperBinID        int32  `json:"upper_bin_id"`
	BaseRawAmount     uint64 `json:"base_raw_amount,string"`
	QuoteRawAmount    uint64 `json:"quote_raw_amount,string"`
	BaseFeeRawAmount  uint64 `json:"base_fee_raw_amount,string"`
	QuoteFeeRawAmount uint64 `json:"quote_fee_raw_amount,string"`
}

type RemoveLiquidityRequest struct {
	Position string `json:"position"`
	Owner    string `json:"owner"`
	// BpsToRemove is always 10000: positions are closed whole.
	BpsToRemove         int  `json:"bps_to_remove"`
	ShouldClaimAndClose bool `json:"should_claim_and_close"`
}

type InitializePositionRequest struct {
	Owner          string `json:"owner"`
	PositionPubkey string `json:"position_pubkey"`
	MinBinID       int32  `json:"min_bin_id"`
	MaxBinID       int32  `json:"max_bin_id"`
	BaseRawAmount  uint64 `json:"base_raw_amount,string"`
	QuoteRawAmount uint64 `json:"quote_raw_amount,string"`
	Shape          Shape  `json:"shape"`
}

// Pool is a client for one pool on the transaction-builder API. Protocol
// transactions come back unsigned, base64-encoded.
type Pool struct {
	client *resty.Client
	meta   Metadata
	log    *zap.Logger
}

// NewPool fetches the pool metadata once; a pool's mints, decimals and bin
// step never change after creation.
func NewPool(ctx context.Context, cfg config.PoolAPIConfig, address string, log *zap.Logger) (*Pool, error) {
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json")
	var meta Metadata
	resp, err := client.R().
		SetContext(ctx).
		SetResult(&meta).
		Get("/pair/" + address)
	if err != nil {
		return nil, fmt.Errorf("fetch pool %s: %w", address, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("fetch pool %s: http %d: %s", address, resp.StatusCode(), resp.String())
	}
	meta.Address = address
	return &Pool{client: client, meta: meta, log: log}, nil
}

func (p *Pool) Meta() Metadata {
	return p.meta
}

// BinIDFromPrice maps a quote-per-base price onto this pool's bin grid.
func (p *Pool) BinIDFromPrice(price float64) int32 {
	return BinIDFromPrice(price, p.meta.BinStep, p.meta.BaseDecimals, p.meta.QuoteDecimals)
}

// GetPositionsByUserAndOwner lists the owner's open positions in this pool.
func (p *Pool) GetPositionsByUserAndOwner(ctx context.Context, owner string) ([]Position, error) {
	var positions []Position
	resp, err := p.client.R().
		SetContext(ctx).
		SetQueryParam("owner", owner).
		SetResult(&positions).
		Get("/pair/" + p.meta.Address + "/positions")
	if err != nil {
		return nil, fmt.Errorf("list positions: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("list positions: http %d: %s", resp.StatusCode(), resp.String())
	}
	return positions, nil
}

// GetPosition reads a single position, including accrued unclaimed fees.
func (p *Pool) GetPosition(ctx context.Context, address string) (Position, error) {
	var position Position
	resp, err := p.client.R().
		SetContext(ctx).
		SetResult(&position).
		Get("/position/" + address)
	if err != nil {
		return Position{}, fmt.Errorf("get position %s: %w", address, err)
	}
	if resp.IsError() {
		return Position{}, fmt.Errorf("get position %s: http %d: %s", address, resp.StatusCode(), resp.String())
	}
	return position, nil
}

// RemoveLiquidity builds the transactions that withdraw all liquidity, claim
// fees and close the position. Wide positions may need more than one.
func (p *Pool) RemoveLiquidity(ctx context.Context, req RemoveLiquidityRequest) ([]string, error) {
	req.BpsToRemove = 10000
	req.ShouldClaimAndClose = true
	var result struct {
		Transactions []string `json:"transactions"`
	}
	resp, err := p.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&result).
		Post("/pair/" + p.meta.Address + "/remove-liquidity")
	if err != nil {
		return nil, fmt.Errorf("remove liquidity: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("remove liquidity: http %d: %s", resp.StatusCode(), resp.String())
	}
	if len(result.Transactions) == 0 {
		return nil, fmt.Errorf("remove liquidity: no transactions returned")
	}
	return result.Transactions, nil
}

// InitializePositionAndAddLiquidityByStrategy builds the transaction that
// opens a new position account and deposits both sides across the bin range
// with the given distribution shape.
func (p *Pool) InitializePositionAndAddLiquidityByStrategy(ctx context.Context, req InitializePositionRequest) (string, error) {
	var result struct {
		Transaction string `json:"transaction"`
	}
	resp, err := p.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&result).
		Post("/pair/" + p.meta.Address + "/initialize-position")
	if err != nil {
		return "", fmt.Errorf("initialize position: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("initialize position: http %d: %s", resp.StatusCode(), resp.String())
	}
	if result.Transaction == "" {
		return "", fmt.Errorf("initialize position: empty transaction returned")
	}
	return result.Transaction, nil
}
