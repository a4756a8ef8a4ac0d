package jupiter

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"dlmm-lp-bot/internal/config"
	"dlmm-lp-bot/internal/retry"
	"dlmm-lp-bot/internal/solana"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// ErrSlippageExceeded means the aggregator quoted a worse price than the
// configured limit allows. Not transient: retrying the same quote is how bots
// bleed money, so callers must treat it as final.
var ErrSlippageExceeded = errors.New("quoted slippage exceeds limit")

// executePolicy bounds the submit side of a swap. The order itself expires
// quickly, so only short retries are worth anything here.
var executePolicy = retry.Policy{
	InitialDelay: 200 * time.Millisecond,
	MaxRetries:   3,
	MaxDelay:     5 * time.Second,
}

// Order is a quoted swap ready to sign: the unsigned transaction plus the
// quote terms it was priced at.
type Order struct {
	Transaction  string `json:"transaction"`
	RequestID    string `json:"requestId"`
	SlippageBps  int    `json:"slippageBps"`
	InAmount     uint64 `json:"inAmount,string"`
	OutAmount    uint64 `json:"outAmount,string"`
	ErrorMessage string `json:"errorMessage"`
}

// ExecuteResult reports the outcome of a submitted swap.
type ExecuteResult struct {
	Status    string `json:"status"`
	Signature string `json:"signature"`
	Slot      uint64 `json:"slot,string"`
	Error     string `json:"error"`
}

type Client struct {
	client *resty.Client
	log    *zap.Logger
}

func New(cfg config.SwapConfig, log *zap.Logger) *Client {
	return &Client{
		client: resty.New().
			SetBaseURL(cfg.BaseURL).
			SetTimeout(cfg.Timeout).
			SetHeader("Accept", "application/json"),
		log: log,
	}
}

// GetOrder requests a swap quote for the taker. A quote whose slippage
// exceeds maxSlippageBps is rejected here rather than executed at a worse
// price.
func (c *Client) GetOrder(ctx context.Context, inputMint, outputMint string, rawAmount uint64, taker string, maxSlippageBps int) (Order, error) {
	var order Order
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"inputMint":  inputMint,
			"outputMint": outputMint,
			"amount":     strconv.FormatUint(rawAmount, 10),
			"taker":      taker,
		}).
		SetResult(&order).
		Get("/order")
	if err != nil {
		return Order{}, fmt.Errorf("get order: %w", err)
	}
	if resp.IsError() {
		return Order{}, fmt.Errorf("get order: http %d: %s", resp.StatusCode(), resp.String())
	}
	if order.ErrorMessage != "" {
		return Order{}, fmt.Errorf("get order: %s", order.ErrorMessage)
	}
	if order.Transaction == "" {
		return Order{}, fmt.Errorf("get order: no transaction in quote")
	}
	if order.SlippageBps > maxSlippageBps {
		return Order{}, fmt.Errorf("%w: %d bps > %d bps", ErrSlippageExceeded, order.SlippageBps, maxSlippageBps)
	}
	return order, nil
}

// ExecuteOrder signs the quoted transaction and submits it, retrying
// transient submit failures within the order's short validity window.
func (c *Client) ExecuteOrder(ctx context.Context, order Order, signer solana.Keypair) (ExecuteResult, error) {
	signed, err := solana.SignTransaction(order.Transaction, signer)
	if err != nil {
		return ExecuteResult{}, fmt.Errorf("sign swap: %w", err)
	}
	return retry.Do(ctx, executePolicy, func() (ExecuteResult, error) {
		var result ExecuteResult
		resp, err := c.client.R().
			SetContext(ctx).
			SetBody(map[string]string{
				"signedTransaction": signed,
				"requestId":         order.RequestID,
			}).
			SetResult(&result).
			Post("/execute")
		if err != nil {
			return ExecuteResult{}, fmt.Errorf("execute order: %w", err)
		}
		if resp.IsError() {
			return ExecuteResult{}, fmt.Errorf("execute order: http %d: %s", resp.StatusCode(), resp.String())
		}
		if result.Status != "Success" {
			return ExecuteResult{}, fmt.Errorf("execute order: status %s: %s", result.Status, result.Error)
		}
		return result, nil
	})
}
