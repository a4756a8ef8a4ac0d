package telemetry

import "context"

type EventType string

const (
	EventPositions   EventType = "positions"
	EventWithdrawals EventType = "withdrawals"
	EventSwaps       EventType = "swaps"
)

type PositionEvent struct {
	Timestamp      int64   `json:"timestamp"`
	Pair           string  `json:"pair"`
	PositionAddr   string  `json:"positionAddress"`
	UpperBinID     int32   `json:"upperBinId"`
	LowerBinID     int32   `json:"lowerBinId"`
	QuoteRawAmount uint64  `json:"quoteRawAmount"`
	BaseRawAmount  uint64  `json:"baseRawAmount"`
	TransactionID  string  `json:"transactionId"`
	OraclePrice    float64 `json:"oraclePrice"`
}

type WithdrawalEvent struct {
	Timestamp      int64    `json:"timestamp"`
	Pair           string   `json:"pair"`
	PositionAddr   string   `json:"positionAddress"`
	FeesClaimed    uint64   `json:"feesClaimed"`
	QuoteRawAmount uint64   `json:"quoteRawAmount"`
	BaseRawAmount  uint64   `json:"baseRawAmount"`
	TransactionIDs []string `json:"transactionIds"`
}

type SwapEvent struct {
	Timestamp             int64  `json:"timestamp"`
	Pair                  string `json:"pair"`
	InitialQuoteRawAmount uint64 `json:"initialQuoteRawAmount"`
	InitialBaseRawAmount  uint64 `json:"initialBaseRawAmount"`
	FinalQuoteRawAmount   uint64 `json:"finalQuoteRawAmount"`
	FinalBaseRawAmount    uint64 `json:"finalBaseRawAmount"`
	TransactionID         string `json:"transactionId"`
}

type Event struct {
	Type    EventType
	Payload any
}

// Sink accepts fire-and-forget events. Implementations must not block
// strategy progress; failures are for the caller to log and ignore.
type Sink interface {
	LogEvent(ctx context.Context, event Event) error
}

// Multi fans an event out to several sinks, returning the first error after
// all sinks were attempted.
type Multi []Sink

func (m Multi) LogEvent(ctx context.Context, event Event) error {
	var firstErr error
	for _, sink := range m {
		if err := sink.LogEvent(ctx, event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
