// Package async provides the bounded-concurrency building blocks used across
// snapgloss: a task coordinator, a batch processor, parallel map/for-each,
// debounce/throttle rate limiters, a counting semaphore and a resource pool.
// The primitives are domain-agnostic; they know nothing about documents.
package async

import "errors"

const (
	// DefaultConcurrentLimit bounds simultaneously running work when a caller
	// does not configure its own limit.
	DefaultConcurrentLimit = 4

	// DefaultBatchSize is the number of items per batch when a caller does
	// not configure a chunk size.
	DefaultBatchSize = 10
)

// Sentinel errors for the async package.
var (
	// ErrTimeout is returned when an operation loses the race against its
	// deadline. Distinct from the operation's own failure kinds.
	ErrTimeout = errors.New("operation timed out")

	// ErrDuplicateID is returned when submitting work under an id that is
	// already running or pending.
	ErrDuplicateID = errors.New("duplicate work id")

	// ErrUnknownLease is returned when releasing a pool resource with a lease
	// id the pool did not issue (or has already redeemed).
	ErrUnknownLease = errors.New("unknown resource lease")
)
