package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entropy-world/entropy/pkg/entity"
	"github.com/entropy-world/entropy/pkg/grid"
)

// engines under test: every Engine implementation must satisfy the same
// port contract.
func testEngines(t *testing.T) map[string]Engine {
	t.Helper()
	badger, err := NewBadgerEngineWithOptions(BadgerOptions{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = badger.Close() })

	memory := NewMemoryEngine()
	t.Cleanup(func() { _ = memory.Close() })

	return map[string]Engine{"badger": badger, "memory": memory}
}

func begin(t *testing.T, e Engine) Txn {
	t.Helper()
	txn, err := e.Begin(context.Background())
	require.NoError(t, err)
	return txn
}

func commit(t *testing.T, txn Txn) {
	t.Helper()
	require.NoError(t, txn.Commit())
}

func TestEnsureSchemaSeedsOrigin(t *testing.T) {
	for name, e := range testEngines(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, e.EnsureSchema(ctx))

			txn := begin(t, e)
			n, err := txn.GetOrInitNode(grid.SITU.Flat())
			require.NoError(t, err)
			first := n.Data.Clone()
			commit(t, txn)

			// Idempotent: a second bootstrap must not reroll the origin.
			require.NoError(t, e.EnsureSchema(ctx))
			txn = begin(t, e)
			n, err = txn.GetOrInitNode(grid.SITU.Flat())
			require.NoError(t, err)
			assert.Equal(t, first, n.Data)
			commit(t, txn)
		})
	}
}

func TestPlayerRoundTrip(t *testing.T) {
	for name, e := range testEngines(t) {
		t.Run(name, func(t *testing.T) {
			txn := begin(t, e)
			p, err := txn.InsertPlayer("alice", "token-a")
			require.NoError(t, err)
			assert.Equal(t, int32(1), p.ID)

			p2, err := txn.InsertPlayer("bob", "token-b")
			require.NoError(t, err)
			assert.Equal(t, int32(2), p2.ID)
			commit(t, txn)

			txn = begin(t, e)
			defer txn.Rollback()

			got, err := txn.GetPlayer(1)
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, "alice", got.Name)

			found, err := txn.FindPlayer(1, "token-a")
			require.NoError(t, err)
			require.NotNil(t, found)

			miss, err := txn.FindPlayer(1, "wrong")
			require.NoError(t, err)
			assert.Nil(t, miss, "credential mismatch must read as absence")

			miss, err = txn.FindPlayer(99, "token-a")
			require.NoError(t, err)
			assert.Nil(t, miss)
		})
	}
}

func TestGuestLifecycle(t *testing.T) {
	for name, e := range testEngines(t) {
		t.Run(name, func(t *testing.T) {
			txn := begin(t, e)
			p, err := txn.InsertPlayer("alice", "t")
			require.NoError(t, err)

			g, err := txn.InsertGuest(&entity.Guest{
				Energy:   0,
				Pos:      grid.SITU.Flat(),
				MasterID: p.ID,
			})
			require.NoError(t, err)
			assert.Equal(t, int32(1), g.ID)

			// The referenced node must have been materialized.
			n, err := txn.GetOrInitNode(grid.SITU.Flat())
			require.NoError(t, err)
			require.NotNil(t, n)
			commit(t, txn)

			t.Run("indexes", func(t *testing.T) {
				txn := begin(t, e)
				defer txn.Rollback()

				count, err := txn.CountGuestsOfPlayer(p.ID)
				require.NoError(t, err)
				assert.Equal(t, int64(1), count)

				gs, err := txn.ListGuestsOfPlayer(p.ID)
				require.NoError(t, err)
				require.Len(t, gs, 1)
				assert.Equal(t, g.ID, gs[0].ID)

				at, err := txn.ListGuestsAt(grid.SITU.Flat(), -1)
				require.NoError(t, err)
				assert.Len(t, at, 1)

				at, err = txn.ListGuestsAt(grid.SITU.Flat(), g.ID)
				require.NoError(t, err)
				assert.Empty(t, at, "exclusion must drop the caller")
			})

			t.Run("move updates pos index", func(t *testing.T) {
				dest := grid.FlatFromXY(3, 4)

				txn := begin(t, e)
				moved, err := txn.FindGuest(g.ID)
				require.NoError(t, err)
				moved.Pos = dest
				moved.Energy = 5
				require.NoError(t, txn.UpdateGuest(moved))
				commit(t, txn)

				txn = begin(t, e)
				defer txn.Rollback()

				old, err := txn.ListGuestsAt(grid.SITU.Flat(), -1)
				require.NoError(t, err)
				assert.Empty(t, old)

				now, err := txn.ListGuestsAt(dest, -1)
				require.NoError(t, err)
				require.Len(t, now, 1)
				assert.Equal(t, int64(5), now[0].Energy)

				// Target node lazily materialized by the move.
				destNode, err := txn.GetOrInitNode(dest)
				require.NoError(t, err)
				require.NotNil(t, destNode)
			})

			t.Run("update of unknown guest fails", func(t *testing.T) {
				txn := begin(t, e)
				defer txn.Rollback()
				err := txn.UpdateGuest(&entity.Guest{ID: 999, Pos: grid.SITU.Flat()})
				assert.ErrorIs(t, err, ErrNotFound)
			})
		})
	}
}

func TestNodeUpsertAndUpdate(t *testing.T) {
	for name, e := range testEngines(t) {
		t.Run(name, func(t *testing.T) {
			id := grid.FlatFromXY(-2, 9)

			txn := begin(t, e)
			require.NoError(t, txn.UpsertNodeIfAbsent(id))
			n, err := txn.GetOrInitNode(id)
			require.NoError(t, err)
			before := n.Data.Clone()
			commit(t, txn)

			// Upsert on an existing node is a no-op.
			txn = begin(t, e)
			require.NoError(t, txn.UpsertNodeIfAbsent(id))
			n, err = txn.GetOrInitNode(id)
			require.NoError(t, err)
			assert.Equal(t, before, n.Data)

			// Full-row update persists.
			n.Data = grid.NodeData{1, 2, 3}
			require.NoError(t, txn.UpdateNode(n))
			commit(t, txn)

			txn = begin(t, e)
			defer txn.Rollback()
			n, err = txn.GetOrInitNode(id)
			require.NoError(t, err)
			assert.Equal(t, grid.NodeData{1, 2, 3}, n.Data)
		})
	}
}

func TestUpdateNodeRejectsOversizedData(t *testing.T) {
	for name, e := range testEngines(t) {
		t.Run(name, func(t *testing.T) {
			txn := begin(t, e)
			defer txn.Rollback()
			err := txn.UpdateNode(&entity.Node{
				ID:   grid.SITU.Flat(),
				Data: make(grid.NodeData, grid.NodeMaxSize+1),
			})
			var limit *entity.OutOfLimitError
			assert.ErrorAs(t, err, &limit)
		})
	}
}

func TestRollbackDiscards(t *testing.T) {
	for name, e := range testEngines(t) {
		t.Run(name, func(t *testing.T) {
			txn := begin(t, e)
			_, err := txn.InsertPlayer("ghost", "t")
			require.NoError(t, err)
			require.NoError(t, txn.Rollback())

			txn = begin(t, e)
			defer txn.Rollback()
			p, err := txn.GetPlayer(1)
			require.NoError(t, err)
			assert.Nil(t, p)
		})
	}
}

// Badger-only: two snapshot transactions racing on the same absent node.
// Exactly one commit wins; the loser sees ErrConflict and retries against
// the now-present row.
func TestBadgerFirstTouchConflict(t *testing.T) {
	e, err := NewBadgerEngineWithOptions(BadgerOptions{InMemory: true})
	require.NoError(t, err)
	defer e.Close()

	ctx := context.Background()
	id := grid.FlatFromXY(5, 7)

	txnA, err := e.Begin(ctx)
	require.NoError(t, err)
	txnB, err := e.Begin(ctx)
	require.NoError(t, err)

	nodeA, err := txnA.GetOrInitNode(id)
	require.NoError(t, err)
	_, err = txnB.GetOrInitNode(id)
	require.NoError(t, err)

	require.NoError(t, txnA.Commit())
	assert.ErrorIs(t, txnB.Commit(), ErrConflict)

	// The retry observes the winner's row.
	txnC, err := e.Begin(ctx)
	require.NoError(t, err)
	defer txnC.Rollback()
	nodeC, err := txnC.GetOrInitNode(id)
	require.NoError(t, err)
	assert.Equal(t, nodeA.Data, nodeC.Data)
}

func TestBadgerPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	e, err := NewBadgerEngine(dir)
	require.NoError(t, err)

	txn := begin(t, e)
	p, err := txn.InsertPlayer("alice", "t")
	require.NoError(t, err)
	commit(t, txn)
	require.NoError(t, e.Close())

	e, err = NewBadgerEngine(dir)
	require.NoError(t, err)
	defer e.Close()

	txn = begin(t, e)
	defer txn.Rollback()
	got, err := txn.GetPlayer(p.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "alice", got.Name)

	// Ids stay monotone across restarts.
	txn2 := begin(t, e)
	p2, err := txn2.InsertPlayer("bob", "t")
	require.NoError(t, err)
	assert.Greater(t, p2.ID, p.ID)
	require.NoError(t, txn2.Commit())
}
