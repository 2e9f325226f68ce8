// Package storage provides the transactional persistence port the Entropy
// world core is written against, plus its two implementations:
//   - BadgerEngine: persistent disk-based storage on BadgerDB
//   - MemoryEngine: coarse single-writer in-memory storage for tests and
//     embedded use
//
// The port is deliberately small: key lookups with upsert, per-operation
// transactions, and schema bootstrap. The domain layer opens one
// transaction per request; everything it reads inside that transaction is
// a consistent snapshot (repeatable read or stronger).
//
// Example:
//
//	engine, err := storage.NewBadgerEngine("./data")
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer engine.Close()
//
//	if err := engine.EnsureSchema(ctx); err != nil {
//		log.Fatal(err)
//	}
//
//	txn, _ := engine.Begin(ctx)
//	defer txn.Rollback()
//	node, _ := txn.GetOrInitNode(grid.SITU.Flat())
//	_ = txn.Commit()
package storage

import (
	"context"
	"errors"

	"github.com/entropy-world/entropy/pkg/entity"
	"github.com/entropy-world/entropy/pkg/grid"
)

// Errors shared by all engines.
var (
	// ErrConflict reports a transaction that lost a write race and must
	// be retried by the caller. Surfaces to API clients as a transient
	// backend error.
	ErrConflict = errors.New("storage: transaction conflict")

	// ErrClosed reports an operation on a closed engine or transaction.
	ErrClosed = errors.New("storage: engine is closed")

	// ErrNotFound reports an update against a row that does not exist.
	ErrNotFound = errors.New("storage: record not found")
)

// Engine is the storage handle shared across all request tasks. It must
// be safe for concurrent use; all state flows through transactions.
type Engine interface {
	// Begin opens a read-write transaction with at least repeatable-read
	// isolation.
	Begin(ctx context.Context) (Txn, error)

	// EnsureSchema seeds the origin node. Id allocation is set up when
	// the engine is created. Idempotent.
	EnsureSchema(ctx context.Context) error

	// Close releases the engine; later Begin calls fail with ErrClosed.
	// Transactions that are still open are not rolled back by Close.
	Close() error
}

// Txn is one request's view of the store. Lookups that find nothing
// return (nil, nil); the operation layer maps absence to its own domain
// errors. A transaction that is dropped without Commit is a rollback.
type Txn interface {
	// GetPlayer returns the player by id, or nil when absent.
	GetPlayer(id int32) (*entity.Player, error)

	// FindPlayer returns the player iff the stored credential token
	// equals the supplied one; nil otherwise.
	FindPlayer(id int32, password string) (*entity.Player, error)

	// InsertPlayer appends a new player and returns it with its
	// assigned id.
	InsertPlayer(name, password string) (*entity.Player, error)

	// FindGuest returns the guest by id, or nil when absent.
	FindGuest(gid int32) (*entity.Guest, error)

	// InsertGuest persists a new guest, assigning its id and lazily
	// materializing the node at its position first.
	InsertGuest(g *entity.Guest) (*entity.Guest, error)

	// UpdateGuest persists the full guest row, maintaining the position
	// and master indexes and materializing the target node when the
	// guest moved.
	UpdateGuest(g *entity.Guest) error

	// ListGuestsOfPlayer enumerates the guests mastered by a player.
	ListGuestsOfPlayer(pid int32) ([]*entity.Guest, error)

	// CountGuestsOfPlayer is the scalar count of the above.
	CountGuestsOfPlayer(pid int32) (int64, error)

	// ListGuestsAt enumerates guests at a node, excluding one id.
	ListGuestsAt(pos grid.FlatID, exclude int32) ([]*entity.Guest, error)

	// GetOrInitNode returns the node, inserting a freshly randomized one
	// when absent.
	GetOrInitNode(id grid.FlatID) (*entity.Node, error)

	// UpsertNodeIfAbsent inserts a randomized node iff not present.
	UpsertNodeIfAbsent(id grid.FlatID) error

	// UpdateNode persists the full node row.
	UpdateNode(n *entity.Node) error

	Commit() error
	Rollback() error
}
