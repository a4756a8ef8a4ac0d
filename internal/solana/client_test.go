package solana

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"dlmm-lp-bot/internal/config"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

type rpcHandler func(method string, params []json.RawMessage) (any, *rpcError)

func newRPCServer(t *testing.T, handler rpcHandler) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string            `json:"method"`
			Params []json.RawMessage `json:"params"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		result, rpcErr := handler(req.Method, req.Params)
		resp := map[string]any{"jsonrpc": "2.0", "id": 1}
		if rpcErr != nil {
			resp["error"] = rpcErr
		} else {
			resp["result"] = result
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func newClient(server *httptest.Server, wsURL string, confirmTimeout time.Duration) *Client {
	return New(config.RPCConfig{
		ReadURL:        server.URL,
		WriteURL:       server.URL,
		WSURL:          wsURL,
		Timeout:        5 * time.Second,
		ConfirmTimeout: confirmTimeout,
	}, zap.NewNop())
}

func TestSendTransaction(t *testing.T) {
	server := newRPCServer(t, func(method string, params []json.RawMessage) (any, *rpcError) {
		if method != "sendTransaction" {
			return nil, &rpcError{Code: -32601, Message: "unknown method"}
		}
		return "sig123", nil
	})
	defer server.Close()

	client := newClient(server, "ws://unused", time.Second)
	sig, err := client.SendTransaction(context.Background(), "dHg=")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sig != "sig123" {
		t.Fatalf("expected sig123, got %q", sig)
	}
}

func TestSendTransactionRPCError(t *testing.T) {
	server := newRPCServer(t, func(method string, params []json.RawMessage) (any, *rpcError) {
		return nil, &rpcError{Code: -32002, Message: "blockhash not found"}
	})
	defer server.Close()

	client := newClient(server, "ws://unused", time.Second)
	if _, err := client.SendTransaction(context.Background(), "dHg="); err == nil || !strings.Contains(err.Error(), "blockhash not found") {
		t.Fatalf("expected rpc error, got %v", err)
	}
}

func tokenAccountsResult(amount string) any {
	return map[string]any{
		"value": []any{
			map[string]any{
				"account": map[string]any{
					"data": map[string]any{
						"parsed": map[string]any{
							"info": map[string]any{
								"tokenAmount": map[string]any{"amount": amount},
							},
						},
					},
				},
			},
		},
	}
}

func TestGetBalanceToken(t *testing.T) {
	server := newRPCServer(t, func(method string, params []json.RawMessage) (any, *rpcError) {
		if method != "getTokenAccountsByOwner" {
			return nil, &rpcError{Code: -32601, Message: "unexpected method " + method}
		}
		return tokenAccountsResult("123456"), nil
	})
	defer server.Close()

	client := newClient(server, "ws://unused", time.Second)
	balance, err := client.GetBalance(context.Background(), "owner", "TokenMint1111111111111111111111111111111111", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if balance != 123456 {
		t.Fatalf("expected 123456, got %d", balance)
	}
}

func TestGetBalanceNativeReservesGas(t *testing.T) {
	server := newRPCServer(t, func(method string, params []json.RawMessage) (any, *rpcError) {
		switch method {
		case "getTokenAccountsByOwner":
			return tokenAccountsResult("1000"), nil
		case "getBalance":
			return map[string]any{"value": uint64(150_000_000)}, nil
		default:
			return nil, &rpcError{Code: -32601, Message: "unexpected method " + method}
		}
	})
	defer server.Close()

	client := newClient(server, "ws://unused", time.Second)
	balance, err := client.GetBalance(context.Background(), "owner", NativeMint, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// 1000 wrapped + (150M - 50M reserve) lamports.
	if balance != 100_001_000 {
		t.Fatalf("expected 100001000, got %d", balance)
	}
}

func TestGetBalanceNativeBelowReserve(t *testing.T) {
	server := newRPCServer(t, func(method string, params []json.RawMessage) (any, *rpcError) {
		switch method {
		case "getTokenAccountsByOwner":
			return map[string]any{"value": []any{}}, nil
		case "getBalance":
			return map[string]any{"value": uint64(10_000_000)}, nil
		default:
			return nil, &rpcError{Code: -32601, Message: "unexpected method " + method}
		}
	})
	defer server.Close()

	client := newClient(server, "ws://unused", time.Second)
	balance, err := client.GetBalance(context.Background(), "owner", NativeMint, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if balance != 0 {
		t.Fatalf("expected 0 below gas reserve, got %d", balance)
	}
}

// wsConfirmServer accepts a signature subscription and optionally notifies.
func wsConfirmServer(t *testing.T, notify bool, slot uint64, txErr any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")
		ctx := r.Context()
		_, _, err = conn.Read(ctx)
		if err != nil {
			return
		}
		subResp := `{"jsonrpc":"2.0","id":1,"result":7}`
		if err := conn.Write(ctx, websocket.MessageText, []byte(subResp)); err != nil {
			return
		}
		if notify {
			errJSON := "null"
			if txErr != nil {
				raw, _ := json.Marshal(txErr)
				errJSON = string(raw)
			}
			notification := fmt.Sprintf(`{"jsonrpc":"2.0","method":"signatureNotification","params":{"subscription":7,"result":{"context":{"slot":%d},"value":{"err":%s}}}}`, slot, errJSON)
			if err := conn.Write(ctx, websocket.MessageText, []byte(notification)); err != nil {
				return
			}
		}
		// Hold the connection open for the unsubscribe message.
		_, _, _ = conn.Read(ctx)
	}))
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestConfirmTransactionsSuccess(t *testing.T) {
	rpc := newRPCServer(t, func(method string, params []json.RawMessage) (any, *rpcError) { return nil, nil })
	defer rpc.Close()
	ws := wsConfirmServer(t, true, 321, nil)
	defer ws.Close()

	client := newClient(rpc, wsURL(ws), 5*time.Second)
	confirmations, err := client.ConfirmTransactions(context.Background(), []string{"sig1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(confirmations) != 1 || confirmations[0].Slot != 321 {
		t.Fatalf("expected slot 321, got %+v", confirmations)
	}
}

func TestConfirmTransactionsSignatureError(t *testing.T) {
	rpc := newRPCServer(t, func(method string, params []json.RawMessage) (any, *rpcError) { return nil, nil })
	defer rpc.Close()
	ws := wsConfirmServer(t, true, 100, map[string]any{"InstructionError": []any{0, "Custom"}})
	defer ws.Close()

	client := newClient(rpc, wsURL(ws), 5*time.Second)
	if _, err := client.ConfirmTransactions(context.Background(), []string{"sig1"}); err == nil {
		t.Fatalf("expected error for failed transaction")
	}
}

func TestConfirmTransactionsTimeout(t *testing.T) {
	rpc := newRPCServer(t, func(method string, params []json.RawMessage) (any, *rpcError) { return nil, nil })
	defer rpc.Close()
	ws := wsConfirmServer(t, false, 0, nil)
	defer ws.Close()

	client := newClient(rpc, wsURL(ws), 200*time.Millisecond)
	start := time.Now()
	_, err := client.ConfirmTransactions(context.Background(), []string{"sig1"})
	if err == nil {
		t.Fatalf("expected timeout error")
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("timeout took too long: %v", elapsed)
	}
}

func TestConfirmTransactionsEmpty(t *testing.T) {
	rpc := newRPCServer(t, func(method string, params []json.RawMessage) (any, *rpcError) { return nil, nil })
	defer rpc.Close()
	client := newClient(rpc, "ws://unused", time.Second)
	if _, err := client.ConfirmTransactions(context.Background(), nil); err == nil {
		t.Fatalf("expected error for empty signature list")
	}
}
