package state

import (
	"context"
	"encoding/base64"

	"github.com/vmihailenco/msgpack/v5"
)

const positionSnapshotPrefix = "position:last:"

// PositionSnapshot is the last position the bot knew about for a pair,
// persisted for crash forensics. The on-chain position list remains the
// source of truth; this is never read back into the strategy.
type PositionSnapshot struct {
	Pair           string  `msgpack:"pair"`
	Address        string  `msgpack:"address"`
	LowerBinID     int32   `msgpack:"lower_bin_id"`
	UpperBinID     int32   `msgpack:"upper_bin_id"`
	BaseRawAmount  uint64  `msgpack:"base_raw_amount"`
	QuoteRawAmount uint64  `msgpack:"quote_raw_amount"`
	OraclePrice    float64 `msgpack:"oracle_price"`
	UpdatedAtMS    int64   `msgpack:"updated_at_ms"`
}

func SavePositionSnapshot(ctx context.Context, store Store, snapshot PositionSnapshot) error {
	if store == nil {
		return nil
	}
	payload, err := msgpack.Marshal(snapshot)
	if err != nil {
		return err
	}
	return store.Set(ctx, positionSnapshotPrefix+snapshot.Pair, base64.StdEncoding.EncodeToString(payload))
}

func LoadPositionSnapshot(ctx context.Context, store Store, pair string) (PositionSnapshot, bool, error) {
	if store == nil {
		return PositionSnapshot{}, false, nil
	}
	raw, ok, err := store.Get(ctx, positionSnapshotPrefix+pair)
	if err != nil || !ok {
		return PositionSnapshot{}, false, err
	}
	payload, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return PositionSnapshot{}, false, err
	}
	var snapshot PositionSnapshot
	if err := msgpack.Unmarshal(payload, &snapshot); err != nil {
		return PositionSnapshot{}, false, err
	}
	return snapshot, true, nil
}

func ClearPositionSnapshot(ctx context.Context, store Store, pair string) error {
	if store == nil {
		return nil
	}
	return store.Delete(ctx, positionSnapshotPrefix+pair)
}
