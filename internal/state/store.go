package state

import "context"

// Store is the bot's durable key/value surface. It holds observational state
// only (last-known position snapshots); the on-chain position list stays the
// source of truth and nothing here is read back into strategy decisions.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Close() error
}
