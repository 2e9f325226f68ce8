// Package storage - the Badger-backed transaction.
package storage

import (
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/entropy-world/entropy/pkg/entity"
	"github.com/entropy-world/entropy/pkg/grid"
)

// badgerTxn is one request's snapshot view of the store. Reads within the
// transaction are repeatable; committed writes from racing transactions
// are detected at Commit and surfaced as ErrConflict.
type badgerTxn struct {
	engine *BadgerEngine
	txn    *badger.Txn
	done   bool
}

func (t *badgerTxn) GetPlayer(id int32) (*entity.Player, error) {
	data, err := t.get(playerKey(id))
	if err != nil || data == nil {
		return nil, err
	}
	return deserializePlayer(data)
}

func (t *badgerTxn) FindPlayer(id int32, password string) (*entity.Player, error) {
	p, err := t.GetPlayer(id)
	if err != nil || p == nil {
		return nil, err
	}
	if p.Password != password {
		return nil, nil
	}
	return p, nil
}

func (t *badgerTxn) InsertPlayer(name, password string) (*entity.Player, error) {
	id, err := t.engine.nextPlayerID()
	if err != nil {
		return nil, err
	}
	p := &entity.Player{ID: id, Name: name, Password: password}
	data, err := serializePlayer(p)
	if err != nil {
		return nil, fmt.Errorf("serializing player: %w", err)
	}
	if err := t.txn.Set(playerKey(id), data); err != nil {
		return nil, fmt.Errorf("writing player: %w", err)
	}
	return p, nil
}

func (t *badgerTxn) FindGuest(gid int32) (*entity.Guest, error) {
	data, err := t.get(guestKey(gid))
	if err != nil || data == nil {
		return nil, err
	}
	return deserializeGuest(data)
}

func (t *badgerTxn) InsertGuest(g *entity.Guest) (*entity.Guest, error) {
	// The referenced node must exist before the guest row does.
	if err := t.ensureNode(g.Pos); err != nil {
		return nil, err
	}

	id, err := t.engine.nextGuestID()
	if err != nil {
		return nil, err
	}
	stored := *g
	stored.ID = id
	if err := t.writeGuest(&stored); err != nil {
		return nil, err
	}
	if err := t.txn.Set(posIndexKey(stored.Pos, id), nil); err != nil {
		return nil, fmt.Errorf("writing pos index: %w", err)
	}
	if err := t.txn.Set(masterIndexKey(stored.MasterID, id), nil); err != nil {
		return nil, fmt.Errorf("writing master index: %w", err)
	}
	return &stored, nil
}

func (t *badgerTxn) UpdateGuest(g *entity.Guest) error {
	old, err := t.FindGuest(g.ID)
	if err != nil {
		return err
	}
	if old == nil {
		return fmt.Errorf("guest %d: %w", g.ID, ErrNotFound)
	}

	if old.Pos != g.Pos {
		if err := t.ensureNode(g.Pos); err != nil {
			return err
		}
		if err := t.txn.Delete(posIndexKey(old.Pos, g.ID)); err != nil {
			return fmt.Errorf("dropping pos index: %w", err)
		}
		if err := t.txn.Set(posIndexKey(g.Pos, g.ID), nil); err != nil {
			return fmt.Errorf("writing pos index: %w", err)
		}
	}
	if old.MasterID != g.MasterID {
		if err := t.txn.Delete(masterIndexKey(old.MasterID, g.ID)); err != nil {
			return fmt.Errorf("dropping master index: %w", err)
		}
		if err := t.txn.Set(masterIndexKey(g.MasterID, g.ID), nil); err != nil {
			return fmt.Errorf("writing master index: %w", err)
		}
	}
	return t.writeGuest(g)
}

func (t *badgerTxn) ListGuestsOfPlayer(pid int32) ([]*entity.Guest, error) {
	var guests []*entity.Guest
	err := t.scanIndex(masterIndexPrefix(pid), func(gid int32) error {
		g, err := t.FindGuest(gid)
		if err != nil {
			return err
		}
		if g != nil {
			guests = append(guests, g)
		}
		return nil
	})
	return guests, err
}

func (t *badgerTxn) CountGuestsOfPlayer(pid int32) (int64, error) {
	var n int64
	err := t.scanIndex(masterIndexPrefix(pid), func(int32) error {
		n++
		return nil
	})
	return n, err
}

func (t *badgerTxn) ListGuestsAt(pos grid.FlatID, exclude int32) ([]*entity.Guest, error) {
	var guests []*entity.Guest
	err := t.scanIndex(posIndexPrefix(pos), func(gid int32) error {
		if gid == exclude {
			return nil
		}
		g, err := t.FindGuest(gid)
		if err != nil {
			return err
		}
		if g != nil {
			guests = append(guests, g)
		}
		return nil
	})
	return guests, err
}

func (t *badgerTxn) GetOrInitNode(id grid.FlatID) (*entity.Node, error) {
	data, err := t.get(nodeKey(id))
	if err != nil {
		return nil, err
	}
	if data != nil {
		return deserializeNode(data)
	}
	n := entity.NewRandomNode(id)
	if err := writeNode(t.txn, n); err != nil {
		return nil, err
	}
	return n, nil
}

func (t *badgerTxn) UpsertNodeIfAbsent(id grid.FlatID) error {
	return t.ensureNode(id)
}

func (t *badgerTxn) UpdateNode(n *entity.Node) error {
	if len(n.Data) > grid.NodeMaxSize {
		return &entity.OutOfLimitError{Desc: "node data length", LimitType: "u16"}
	}
	return writeNode(t.txn, n)
}

// Commit applies the transaction. A lost write race maps to ErrConflict.
func (t *badgerTxn) Commit() error {
	if t.done {
		return ErrClosed
	}
	t.done = true
	if err := t.txn.Commit(); err != nil {
		if err == badger.ErrConflict {
			return ErrConflict
		}
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// Rollback discards the transaction. Safe to call after Commit.
func (t *badgerTxn) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	t.txn.Discard()
	return nil
}

// get returns the value for key, or nil when the key is absent.
func (t *badgerTxn) get(key []byte) ([]byte, error) {
	item, err := t.txn.Get(key)
	if err == badger.ErrKeyNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %x: %w", key, err)
	}
	return item.ValueCopy(nil)
}

// scanIndex walks one fixed-width index range and yields guest ids.
func (t *badgerTxn) scanIndex(prefix []byte, fn func(gid int32) error) error {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = prefix
	it := t.txn.NewIterator(opts)
	defer it.Close()
	for it.Rewind(); it.Valid(); it.Next() {
		if err := fn(gidFromIndexKey(it.Item().Key())); err != nil {
			return err
		}
	}
	return nil
}

func (t *badgerTxn) ensureNode(id grid.FlatID) error {
	data, err := t.get(nodeKey(id))
	if err != nil {
		return err
	}
	if data != nil {
		return nil
	}
	return writeNode(t.txn, entity.NewRandomNode(id))
}

func (t *badgerTxn) writeGuest(g *entity.Guest) error {
	data, err := serializeGuest(g)
	if err != nil {
		return fmt.Errorf("serializing guest: %w", err)
	}
	if err := t.txn.Set(guestKey(g.ID), data); err != nil {
		return fmt.Errorf("writing guest: %w", err)
	}
	return nil
}

func writeNode(txn *badger.Txn, n *entity.Node) error {
	data, err := serializeNode(n)
	if err != nil {
		return fmt.Errorf("serializing node: %w", err)
	}
	if err := txn.Set(nodeKey(n.ID), data); err != nil {
		return fmt.Errorf("writing node: %w", err)
	}
	return nil
}
