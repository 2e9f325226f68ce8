// Package storage - BadgerEngine, the persistent implementation of the
// storage port.
package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"

	"github.com/entropy-world/entropy/pkg/entity"
	"github.com/entropy-world/entropy/pkg/grid"
)

// idSeqBandwidth is how many ids each badger.Sequence leases at a time.
// Crash-dropped leases only leave gaps, never duplicates.
const idSeqBandwidth = 64

// gcInterval paces the value-log garbage collection loop.
const gcInterval = 5 * time.Minute

// BadgerEngine provides persistent storage using BadgerDB.
//
// Badger transactions give snapshot isolation with conflict detection,
// which is strictly stronger than the repeatable-read floor the port
// requires. A transaction that loses a write race fails its Commit with
// ErrConflict; callers treat that as a transient backend error.
//
// Key structure:
//   - player: 0x01 + id        -> JSON(Player)
//   - guest:  0x02 + id        -> JSON(Guest)
//   - node:   0x03 + packed id -> JSON(Node)
//   - pos index:    0x04 + pos + gid    -> nil
//   - master index: 0x05 + master + gid -> nil
//
// Example:
//
//	engine, err := storage.NewBadgerEngine("./data/entropy")
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer engine.Close()
type BadgerEngine struct {
	db *badger.DB

	playerSeq *badger.Sequence
	guestSeq  *badger.Sequence

	mu     sync.RWMutex
	closed bool

	stopGC chan struct{}
	gcDone chan struct{}
}

// BadgerOptions configures the BadgerDB engine.
type BadgerOptions struct {
	// DataDir is the directory for data files. Ignored when InMemory.
	DataDir string

	// InMemory runs BadgerDB without persistence. Useful for testing.
	InMemory bool

	// SyncWrites forces fsync after each write. Slower but more durable.
	SyncWrites bool

	// Logger receives BadgerDB internal logging. Defaults to a quiet
	// logrus adapter.
	Logger badger.Logger
}

// NewBadgerEngine opens a persistent engine in dataDir with defaults.
func NewBadgerEngine(dataDir string) (*BadgerEngine, error) {
	return NewBadgerEngineWithOptions(BadgerOptions{DataDir: dataDir})
}

// NewBadgerEngineWithOptions opens an engine with explicit options.
func NewBadgerEngineWithOptions(opts BadgerOptions) (*BadgerEngine, error) {
	badgerOpts := badger.DefaultOptions(opts.DataDir)
	if opts.InMemory {
		badgerOpts = badger.DefaultOptions("").WithInMemory(true)
	}
	badgerOpts = badgerOpts.WithSyncWrites(opts.SyncWrites)
	if opts.Logger != nil {
		badgerOpts = badgerOpts.WithLogger(opts.Logger)
	} else {
		badgerOpts = badgerOpts.WithLogger(NewBadgerLogger(logrus.StandardLogger()))
	}

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("opening badger at %q: %w", opts.DataDir, err)
	}

	playerSeq, err := db.GetSequence(seqKey("player"), idSeqBandwidth)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("opening player id sequence: %w", err)
	}
	guestSeq, err := db.GetSequence(seqKey("guest"), idSeqBandwidth)
	if err != nil {
		_ = playerSeq.Release()
		_ = db.Close()
		return nil, fmt.Errorf("opening guest id sequence: %w", err)
	}

	e := &BadgerEngine{
		db:        db,
		playerSeq: playerSeq,
		guestSeq:  guestSeq,
		stopGC:    make(chan struct{}),
		gcDone:    make(chan struct{}),
	}
	go e.runGC()
	return e, nil
}

// runGC reclaims value-log space in the background until Close.
func (e *BadgerEngine) runGC() {
	defer close(e.gcDone)
	ticker := time.NewTicker(gcInterval)
	defer ticker.Stop()
	for {
		select {
		case <-e.stopGC:
			return
		case <-ticker.C:
			// Loop while GC keeps finding work; ErrNoRewrite ends it.
			for e.db.RunValueLogGC(0.5) == nil {
			}
		}
	}
}

// Begin opens a read-write snapshot transaction.
func (e *BadgerEngine) Begin(ctx context.Context) (Txn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return nil, ErrClosed
	}
	return &badgerTxn{engine: e, txn: e.db.NewTransaction(true)}, nil
}

// EnsureSchema seeds the origin node. Sequences are initialized at open,
// so this only has to make NodeID(0,0) exist. Idempotent and safe under
// concurrent callers: the upsert retries conflict losses, which can only
// happen once somebody else has done the work.
func (e *BadgerEngine) EnsureSchema(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return e.ensureNodeStandalone(grid.SITU.Flat())
}

// ensureNodeStandalone is an idempotent first-touch upsert in its own
// small transaction, retried on conflict.
func (e *BadgerEngine) ensureNodeStandalone(id grid.FlatID) error {
	for attempt := 0; ; attempt++ {
		err := e.db.Update(func(txn *badger.Txn) error {
			_, err := txn.Get(nodeKey(id))
			if err == nil {
				return nil
			}
			if err != badger.ErrKeyNotFound {
				return err
			}
			return writeNode(txn, entity.NewRandomNode(id))
		})
		if err == nil {
			return nil
		}
		if err == badger.ErrConflict && attempt < 3 {
			continue
		}
		return fmt.Errorf("seeding node %v: %w", id.NodeID(), err)
	}
}

// Close stops the GC loop, releases id leases and closes the database.
func (e *BadgerEngine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	close(e.stopGC)
	<-e.gcDone

	if err := e.playerSeq.Release(); err != nil {
		logrus.WithError(err).Warn("releasing player id sequence")
	}
	if err := e.guestSeq.Release(); err != nil {
		logrus.WithError(err).Warn("releasing guest id sequence")
	}
	return e.db.Close()
}

// nextPlayerID allocates a monotone player id starting at 1.
func (e *BadgerEngine) nextPlayerID() (int32, error) {
	n, err := e.playerSeq.Next()
	if err != nil {
		return 0, fmt.Errorf("allocating player id: %w", err)
	}
	return int32(n) + 1, nil
}

// nextGuestID allocates a monotone guest id starting at 1.
func (e *BadgerEngine) nextGuestID() (int32, error) {
	n, err := e.guestSeq.Next()
	if err != nil {
		return 0, fmt.Errorf("allocating guest id: %w", err)
	}
	return int32(n) + 1, nil
}

// badgerLogger forwards BadgerDB internals to logrus so the store shares
// the process logger: errors and warnings at their own levels, info and
// debug messages at debug level.
type badgerLogger struct {
	log logrus.FieldLogger
}

// NewBadgerLogger adapts a logrus logger to badger.Logger.
func NewBadgerLogger(log logrus.FieldLogger) badger.Logger {
	return &badgerLogger{log: log}
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.log.Errorf("badger: "+format, args...)
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.log.Warnf("badger: "+format, args...)
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.log.Debugf("badger: "+format, args...)
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.log.Debugf("badger: "+format, args...)
}
