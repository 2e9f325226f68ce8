// Package storage - MemoryEngine, the coarse in-memory implementation of
// the storage port.
package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/entropy-world/entropy/pkg/entity"
	"github.com/entropy-world/entropy/pkg/grid"
)

// MemoryEngine keeps the whole world in maps behind one mutex. Begin
// takes the mutex and holds it until Commit or Rollback, so transactions
// are fully serialized: a single-writer engine, which trivially satisfies
// the repeatable-read requirement and never conflicts.
//
// Use cases: unit tests (no disk I/O) and small embedded worlds.
type MemoryEngine struct {
	mu sync.Mutex

	players map[int32]*entity.Player
	guests  map[int32]*entity.Guest
	nodes   map[grid.FlatID]*entity.Node

	nextPlayerID int32
	nextGuestID  int32

	closed bool
}

// NewMemoryEngine creates an empty in-memory engine.
func NewMemoryEngine() *MemoryEngine {
	return &MemoryEngine{
		players:      make(map[int32]*entity.Player),
		guests:       make(map[int32]*entity.Guest),
		nodes:        make(map[grid.FlatID]*entity.Node),
		nextPlayerID: 1,
		nextGuestID:  1,
	}
}

// Begin acquires the engine lock for the life of the transaction.
func (e *MemoryEngine) Begin(ctx context.Context) (Txn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, ErrClosed
	}
	return &memTxn{
		engine:  e,
		players: make(map[int32]*entity.Player),
		guests:  make(map[int32]*entity.Guest),
		nodes:   make(map[grid.FlatID]*entity.Node),
	}, nil
}

// EnsureSchema seeds the origin node. Idempotent.
func (e *MemoryEngine) EnsureSchema(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	if _, ok := e.nodes[grid.SITU.Flat()]; !ok {
		e.nodes[grid.SITU.Flat()] = entity.NewRandomNode(grid.SITU.Flat())
	}
	return nil
}

// Close marks the engine unusable for new transactions.
func (e *MemoryEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

// memTxn stages writes in its own maps; reads fall through to engine
// state. Commit publishes the staged rows; Rollback drops them. Either
// way the engine lock is released exactly once.
type memTxn struct {
	engine *MemoryEngine

	players map[int32]*entity.Player
	guests  map[int32]*entity.Guest
	nodes   map[grid.FlatID]*entity.Node

	done bool
}

func (t *memTxn) GetPlayer(id int32) (*entity.Player, error) {
	if t.done {
		return nil, ErrClosed
	}
	if p, ok := t.players[id]; ok {
		cp := *p
		return &cp, nil
	}
	if p, ok := t.engine.players[id]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, nil
}

func (t *memTxn) FindPlayer(id int32, password string) (*entity.Player, error) {
	p, err := t.GetPlayer(id)
	if err != nil || p == nil {
		return nil, err
	}
	if p.Password != password {
		return nil, nil
	}
	return p, nil
}

func (t *memTxn) InsertPlayer(name, password string) (*entity.Player, error) {
	if t.done {
		return nil, ErrClosed
	}
	id := t.engine.nextPlayerID
	t.engine.nextPlayerID++
	p := &entity.Player{ID: id, Name: name, Password: password}
	t.players[id] = p
	cp := *p
	return &cp, nil
}

func (t *memTxn) FindGuest(gid int32) (*entity.Guest, error) {
	if t.done {
		return nil, ErrClosed
	}
	if g, ok := t.guests[gid]; ok {
		cp := *g
		return &cp, nil
	}
	if g, ok := t.engine.guests[gid]; ok {
		cp := *g
		return &cp, nil
	}
	return nil, nil
}

func (t *memTxn) InsertGuest(g *entity.Guest) (*entity.Guest, error) {
	if t.done {
		return nil, ErrClosed
	}
	if err := t.UpsertNodeIfAbsent(g.Pos); err != nil {
		return nil, err
	}
	id := t.engine.nextGuestID
	t.engine.nextGuestID++
	stored := *g
	stored.ID = id
	t.guests[id] = &stored
	cp := stored
	return &cp, nil
}

func (t *memTxn) UpdateGuest(g *entity.Guest) error {
	if t.done {
		return ErrClosed
	}
	old, err := t.FindGuest(g.ID)
	if err != nil {
		return err
	}
	if old == nil {
		return fmt.Errorf("guest %d: %w", g.ID, ErrNotFound)
	}
	if err := t.UpsertNodeIfAbsent(g.Pos); err != nil {
		return err
	}
	cp := *g
	t.guests[g.ID] = &cp
	return nil
}

func (t *memTxn) ListGuestsOfPlayer(pid int32) ([]*entity.Guest, error) {
	return t.listGuests(func(g *entity.Guest) bool { return g.MasterID == pid })
}

func (t *memTxn) CountGuestsOfPlayer(pid int32) (int64, error) {
	gs, err := t.ListGuestsOfPlayer(pid)
	return int64(len(gs)), err
}

func (t *memTxn) ListGuestsAt(pos grid.FlatID, exclude int32) ([]*entity.Guest, error) {
	return t.listGuests(func(g *entity.Guest) bool {
		return g.Pos == pos && g.ID != exclude
	})
}

func (t *memTxn) GetOrInitNode(id grid.FlatID) (*entity.Node, error) {
	if t.done {
		return nil, ErrClosed
	}
	if n, ok := t.nodes[id]; ok {
		return copyNode(n), nil
	}
	if n, ok := t.engine.nodes[id]; ok {
		return copyNode(n), nil
	}
	n := entity.NewRandomNode(id)
	t.nodes[id] = copyNode(n)
	return n, nil
}

func (t *memTxn) UpsertNodeIfAbsent(id grid.FlatID) error {
	if t.done {
		return ErrClosed
	}
	if _, ok := t.nodes[id]; ok {
		return nil
	}
	if _, ok := t.engine.nodes[id]; ok {
		return nil
	}
	t.nodes[id] = entity.NewRandomNode(id)
	return nil
}

func (t *memTxn) UpdateNode(n *entity.Node) error {
	if t.done {
		return ErrClosed
	}
	if len(n.Data) > grid.NodeMaxSize {
		return &entity.OutOfLimitError{Desc: "node data length", LimitType: "u16"}
	}
	t.nodes[n.ID] = copyNode(n)
	return nil
}

func (t *memTxn) Commit() error {
	if t.done {
		return ErrClosed
	}
	t.done = true
	for id, p := range t.players {
		t.engine.players[id] = p
	}
	for id, g := range t.guests {
		t.engine.guests[id] = g
	}
	for id, n := range t.nodes {
		t.engine.nodes[id] = n
	}
	t.engine.mu.Unlock()
	return nil
}

func (t *memTxn) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	t.engine.mu.Unlock()
	return nil
}

// listGuests merges committed and staged rows (staged wins) and returns
// matches in id order.
func (t *memTxn) listGuests(match func(*entity.Guest) bool) ([]*entity.Guest, error) {
	if t.done {
		return nil, ErrClosed
	}
	merged := make(map[int32]*entity.Guest, len(t.engine.guests)+len(t.guests))
	for id, g := range t.engine.guests {
		merged[id] = g
	}
	for id, g := range t.guests {
		merged[id] = g
	}

	var out []*entity.Guest
	for _, g := range merged {
		if match(g) {
			cp := *g
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func copyNode(n *entity.Node) *entity.Node {
	return &entity.Node{ID: n.ID, Data: n.Data.Clone()}
}
