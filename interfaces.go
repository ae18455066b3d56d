package lottery

import "context"

// Chain exposes the ambient context an operation is evaluated against
type Chain interface {
	// Now returns the current time in unix seconds
	Now() uint64

	// Height returns the current sequence counter (block height)
	Height() uint64

	// Seed returns a value that was unpredictable when tickets for the active draw were sold
	Seed() [32]byte
}

// EntropySource supplies the input from which winning numbers are derived
type EntropySource interface {
	Entropy() [32]byte
}

// Payer moves funds out of the engine.
//
// Transfer is called only after the engine has committed its bookkeeping.
// Implementations that call back into the engine must pass the ctx they
// received, the engine rejects such calls with ErrReentrantCall.
type Payer interface {
	Transfer(ctx context.Context, to Principal, amount Amount) error
}

// Store persists engine state
type Store interface {
	// Commit atomically writes every record in the change set
	Commit(ctx context.Context, cs *Snapshot) error

	// Load reads the full persisted state, returns (nil, nil) when nothing was persisted
	Load(ctx context.Context) (*Snapshot, error)
}

// Locker serializes engine mutations across processes
type Locker interface {
	AcquireLock(ctx context.Context, lockKey, lockValue string) (bool, error)
	ReleaseLock(ctx context.Context, lockKey, lockValue string) (bool, error)
}

// EventSink receives engine events after an operation commits
type EventSink interface {
	Publish(event Event)
}

// Logger defines the interface for logging operations
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
	Debug(msg string, args ...any)
}
