package solana

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"dlmm-lp-bot/internal/config"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

// NativeMint is the wrapped native token mint; balances of it include the
// wallet's lamports minus a reserved gas buffer.
const NativeMint = "So11111111111111111111111111111111111111112"

// gasReserveLamports is kept back from native balances so the wallet can
// always pay fees and rent (0.05 native).
const gasReserveLamports = 50_000_000

type Client struct {
	readURL        string
	writeURL       string
	wsURL          string
	http           *http.Client
	confirmTimeout time.Duration
	log            *zap.Logger
}

type Confirmation struct {
	Signature string
	Slot      uint64
}

func New(cfg config.RPCConfig, log *zap.Logger) *Client {
	return &Client{
		readURL:        cfg.ReadURL,
		writeURL:       cfg.WriteURL,
		wsURL:          cfg.WSURL,
		http:           &http.Client{Timeout: cfg.Timeout},
		confirmTimeout: cfg.ConfirmTimeout,
		log:            log,
	}
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

func (c *Client) call(ctx context.Context, url, method string, params any) (json.RawMessage, error) {
	payload, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
		"params":  params,
	})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("%s: http %d: %s", method, resp.StatusCode, string(body))
	}
	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return nil, err
	}
	if rpcResp.Error != nil {
		return nil, fmt.Errorf("%s: rpc error %d: %s", method, rpcResp.Error.Code, rpcResp.Error.Message)
	}
	if rpcResp.Result == nil {
		return nil, fmt.Errorf("%s: missing result", method)
	}
	return rpcResp.Result, nil
}

// SendTransaction submits a signed base64 transaction and returns its
// signature.
func (c *Client) SendTransaction(ctx context.Context, signedTxBase64 string) (string, error) {
	result, err := c.call(ctx, c.writeURL, "sendTransaction", []any{
		signedTxBase64,
		map[string]any{
			"encoding":            "base64",
			"skipPreflight":       false,
			"preflightCommitment": "confirmed",
		},
	})
	if err != nil {
		return "", err
	}
	var signature string
	if err := json.Unmarshal(result, &signature); err != nil {
		return "", fmt.Errorf("sendTransaction: decode signature: %w", err)
	}
	return signature, nil
}

// GetBalance returns the raw token balance of owner for the given mint.
// Native mint balances add the wallet lamports minus the gas reserve. minSlot
// forces the read to observe at least that slot, guarding against stale
// pre-withdrawal balances.
func (c *Client) GetBalance(ctx context.Context, owner, mint string, minSlot uint64) (uint64, error) {
	cfg := map[string]any{
		"commitment": "confirmed",
		"encoding":   "jsonParsed",
	}
	if minSlot > 0 {
		cfg["minContextSlot"] = minSlot
	}
	result, err := c.call(ctx, c.readURL, "getTokenAccountsByOwner", []any{
		owner,
		map[string]string{"mint": mint},
		cfg,
	})
	if err != nil {
		return 0, err
	}
	var accounts struct {
		Value []struct {
			Account struct {
				Data struct {
					Parsed struct {
						Info struct {
							TokenAmount struct {
								Amount string `json:"amount"`
							} `json:"tokenAmount"`
						} `json:"info"`
					} `json:"parsed"`
				} `json:"data"`
			} `json:"account"`
		} `json:"value"`
	}
	if err := json.Unmarshal(result, &accounts); err != nil {
		return 0, fmt.Errorf("getTokenAccountsByOwner: decode: %w", err)
	}
	var tokenBalance uint64
	if len(accounts.Value) > 0 {
		amount := accounts.Value[0].Account.Data.Parsed.Info.TokenAmount.Amount
		parsed, err := strconv.ParseUint(amount, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("getTokenAccountsByOwner: parse amount %q: %w", amount, err)
		}
		tokenBalance = parsed
	}
	if mint != NativeMint {
		return tokenBalance, nil
	}
	lamports, err := c.lamportBalance(ctx, owner, minSlot)
	if err != nil {
		return 0, err
	}
	if lamports > gasReserveLamports {
		tokenBalance += lamports - gasReserveLamports
	}
	return tokenBalance, nil
}

func (c *Client) lamportBalance(ctx context.Context, owner string, minSlot uint64) (uint64, error) {
	cfg := map[string]any{"commitment": "confirmed"}
	if minSlot > 0 {
		cfg["minContextSlot"] = minSlot
	}
	result, err := c.call(ctx, c.readURL, "getBalance", []any{owner, cfg})
	if err != nil {
		return 0, err
	}
	var balance struct {
		Value uint64 `json:"value"`
	}
	if err := json.Unmarshal(result, &balance); err != nil {
		return 0, fmt.Errorf("getBalance: decode: %w", err)
	}
	return balance.Value, nil
}

// ConfirmTransactions waits for every signature to confirm, each bounded by
// the configured per-signature timeout. Any failed or timed out signature
// fails the whole call.
func (c *Client) ConfirmTransactions(ctx context.Context, signatures []string) ([]Confirmation, error) {
	if len(signatures) == 0 {
		return nil, errors.New("no signatures to confirm")
	}
	confirmations := make([]Confirmation, len(signatures))
	errs := make([]error, len(signatures))
	var wg sync.WaitGroup
	for i, signature := range signatures {
		wg.Add(1)
		go func(i int, signature string) {
			defer wg.Done()
			slot, err := c.waitForConfirmation(ctx, signature)
			if err != nil {
				errs[i] = fmt.Errorf("confirm %s: %w", signature, err)
				return
			}
			confirmations[i] = Confirmation{Signature: signature, Slot: slot}
		}(i, signature)
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return confirmations, nil
}

type wsNotification struct {
	Method string `json:"method"`
	Result *int64 `json:"result"`
	Params struct {
		Subscription int64 `json:"subscription"`
		Result       struct {
			Context struct {
				Slot uint64 `json:"slot"`
			} `json:"context"`
			Value struct {
				Err any `json:"err"`
			} `json:"value"`
		} `json:"result"`
	} `json:"params"`
}

// waitForConfirmation subscribes to signature notifications over the ws
// endpoint and waits for the confirmation or the timeout. The subscription is
// released on every exit path.
func (c *Client) waitForConfirmation(ctx context.Context, signature string) (uint64, error) {
	waitCtx, cancel := context.WithTimeout(ctx, c.confirmTimeout)
	defer cancel()

	conn, _, err := websocket.Dial(waitCtx, c.wsURL, nil)
	if err != nil {
		return 0, fmt.Errorf("ws dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	subscribe, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "signatureSubscribe",
		"params":  []any{signature, map[string]string{"commitment": "confirmed"}},
	})
	if err != nil {
		return 0, err
	}
	if err := conn.Write(waitCtx, websocket.MessageText, subscribe); err != nil {
		return 0, fmt.Errorf("ws subscribe: %w", err)
	}

	subID := int64(-1)
	defer func() {
		if subID < 0 {
			return
		}
		// The wait context may already be expired; release with its own
		// short deadline so the subscription never leaks.
		releaseCtx, releaseCancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer releaseCancel()
		unsubscribe, err := json.Marshal(map[string]any{
			"jsonrpc": "2.0",
			"id":      2,
			"method":  "signatureUnsubscribe",
			"params":  []int64{subID},
		})
		if err != nil {
			return
		}
		_ = conn.Write(releaseCtx, websocket.MessageText, unsubscribe)
	}()

	for {
		_, data, err := conn.Read(waitCtx)
		if err != nil {
			if waitCtx.Err() != nil {
				return 0, fmt.Errorf("timeout waiting for confirmation: %w", waitCtx.Err())
			}
			return 0, fmt.Errorf("ws read: %w", err)
		}
		var msg wsNotification
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if msg.Result != nil && msg.Method == "" {
			subID = *msg.Result
			continue
		}
		if msg.Method != "signatureNotification" {
			continue
		}
		if subID >= 0 && msg.Params.Subscription != subID {
			continue
		}
		if msg.Params.Result.Value.Err != nil {
			return 0, fmt.Errorf("transaction failed: %v", msg.Params.Result.Value.Err)
		}
		return msg.Params.Result.Context.Slot, nil
	}
}
