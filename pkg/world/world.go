// Package world implements the transactional operation layer of the
// Entropy server: the canonical API every external surface consumes.
//
// Each operation is one storage transaction with the same shape:
// verify credentials, load entities, validate preconditions, apply the
// pure transition from pkg/entity, write back, commit. On any error the
// transaction rolls back and the first error surfaces unchanged.
//
// Example:
//
//	w := world.New(storage.NewMemoryEngine())
//	if err := w.Bootstrap(ctx); err != nil {
//		log.Fatal(err)
//	}
//
//	p, _ := w.Register(ctx, "alice", token)
//	g, _ := w.SpawnGuest(ctx, p.ID, token)
//	g, _ = w.Harvest(ctx, p.ID, token, g.ID, 0)
package world

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/entropy-world/entropy/pkg/entity"
	"github.com/entropy-world/entropy/pkg/grid"
	"github.com/entropy-world/entropy/pkg/storage"
)

// getNodeAttempts bounds the first-touch retry loop in GetNode. Losing a
// concurrent materialization race means somebody else inserted the node,
// so one more read is normally all it takes.
const getNodeAttempts = 3

// World owns the storage engine and exposes the operation API. Safe for
// concurrent use; all state flows through per-operation transactions.
type World struct {
	store storage.Engine
	log   *logrus.Entry
}

// New wraps a storage engine. The caller keeps ownership of the engine's
// lifecycle unless Close is used.
func New(store storage.Engine) *World {
	return &World{
		store: store,
		log:   logrus.WithField("component", "world"),
	}
}

// Store exposes the underlying engine, mainly for embedding scenarios
// and test harnesses that need direct state edits.
func (w *World) Store() storage.Engine {
	return w.store
}

// Bootstrap ensures schema and the seeded origin node. Idempotent.
func (w *World) Bootstrap(ctx context.Context) error {
	return w.store.EnsureSchema(ctx)
}

// Close releases the underlying engine.
func (w *World) Close() error {
	return w.store.Close()
}

// Register creates a player and returns it with its assigned id.
func (w *World) Register(ctx context.Context, name, password string) (*entity.Player, error) {
	var p *entity.Player
	err := w.withTxn(ctx, "register", func(txn storage.Txn) error {
		var err error
		p, err = txn.InsertPlayer(name, password)
		return err
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// PlayerPublic returns the credential-free projection of a player.
// No credential required.
func (w *World) PlayerPublic(ctx context.Context, id int32) (*entity.PublicPlayer, error) {
	var pub entity.PublicPlayer
	err := w.withTxn(ctx, "player_public", func(txn storage.Txn) error {
		p, err := txn.GetPlayer(id)
		if err != nil {
			return err
		}
		if p == nil {
			return &PlayerNotExistError{ID: id}
		}
		pub = p.Public()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &pub, nil
}

// VerifyPlayer checks credentials and returns the full player row.
func (w *World) VerifyPlayer(ctx context.Context, id int32, password string) (*entity.Player, error) {
	var p *entity.Player
	err := w.withTxn(ctx, "verify_player", func(txn storage.Txn) error {
		var err error
		p, err = w.verifyPlayer(txn, id, password)
		return err
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// ListGuest enumerates every guest mastered by the player.
func (w *World) ListGuest(ctx context.Context, id int32, password string) ([]*entity.Guest, error) {
	var gs []*entity.Guest
	err := w.withTxn(ctx, "list_guest", func(txn storage.Txn) error {
		p, err := w.verifyPlayer(txn, id, password)
		if err != nil {
			return err
		}
		gs, err = txn.ListGuestsOfPlayer(p.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return gs, nil
}

// SpawnGuest creates the player's single free guest at the origin.
// Fails with ErrAlreadyHasGuest once the player owns any guest.
func (w *World) SpawnGuest(ctx context.Context, id int32, password string) (*entity.Guest, error) {
	var g *entity.Guest
	err := w.withTxn(ctx, "spawn_guest", func(txn storage.Txn) error {
		p, err := w.verifyPlayer(txn, id, password)
		if err != nil {
			return err
		}
		count, err := txn.CountGuestsOfPlayer(p.ID)
		if err != nil {
			return err
		}
		if count != 0 {
			return ErrAlreadyHasGuest
		}
		g, err = txn.InsertGuest(&entity.Guest{
			Energy:      0,
			Pos:         grid.SITU.Flat(),
			Temperature: 0,
			MasterID:    p.ID,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return g, nil
}

// GetNode returns the node at id, lazily materializing it on first
// touch. Concurrent first-touch races retry, so every caller sees the
// one persisted cell array.
func (w *World) GetNode(ctx context.Context, id grid.NodeID) (*entity.Node, error) {
	var n *entity.Node
	var err error
	for attempt := 0; attempt < getNodeAttempts; attempt++ {
		err = w.withTxn(ctx, "get_node", func(txn storage.Txn) error {
			var txErr error
			n, txErr = txn.GetOrInitNode(id.Flat())
			return txErr
		})
		if !errors.Is(err, storage.ErrConflict) {
			break
		}
	}
	if err != nil {
		return nil, err
	}
	return n, nil
}

// GetNodeBytes is GetNode returning only the raw cell array.
func (w *World) GetNodeBytes(ctx context.Context, id grid.NodeID) ([]byte, error) {
	n, err := w.GetNode(ctx, id)
	if err != nil {
		return nil, err
	}
	return n.Data, nil
}

// GetGuest returns a guest owned by the authenticated player.
func (w *World) GetGuest(ctx context.Context, id int32, password string, gid int32) (*entity.Guest, error) {
	var g *entity.Guest
	err := w.withTxn(ctx, "get_guest", func(txn storage.Txn) error {
		p, err := w.verifyPlayer(txn, id, password)
		if err != nil {
			return err
		}
		g, err = w.ownedGuest(txn, p, gid)
		return err
	})
	if err != nil {
		return nil, err
	}
	return g, nil
}

// Walk moves a guest one step and exhausts waste heat at the node it
// left. Costs 1 energy; the direction must be in the 9-neighborhood.
func (w *World) Walk(ctx context.Context, id int32, password string, gid int32, to grid.Direction) (*entity.Guest, error) {
	if !to.Allowed() {
		return nil, &DirectionNotAllowedError{Direction: to}
	}
	var g *entity.Guest
	err := w.withTxn(ctx, "walk", func(txn storage.Txn) error {
		p, err := w.verifyPlayer(txn, id, password)
		if err != nil {
			return err
		}
		g, err = w.ownedGuest(txn, p, gid)
		if err != nil {
			return err
		}

		// Move first: the guest row is the cheaper rollback.
		source := g.Pos
		if err := g.WalkTo(to); err != nil {
			return err
		}
		if err := txn.UpdateGuest(g); err != nil {
			return err
		}

		// The node left behind exhausts the step's waste heat.
		n, err := txn.GetOrInitNode(source)
		if err != nil {
			return err
		}
		if err := n.ExhaustWasteHeat(); err != nil {
			return err
		}
		return txn.UpdateNode(n)
	})
	if err != nil {
		return nil, err
	}
	return g, nil
}

// Harvest runs the Carnot heat transfer between a guest and the cell at
// index at of the node the guest stands on.
func (w *World) Harvest(ctx context.Context, id int32, password string, gid int32, at int) (*entity.Guest, error) {
	var g *entity.Guest
	err := w.withTxn(ctx, "harvest", func(txn storage.Txn) error {
		p, err := w.verifyPlayer(txn, id, password)
		if err != nil {
			return err
		}
		g, err = w.ownedGuest(txn, p, gid)
		if err != nil {
			return err
		}
		n, err := txn.GetOrInitNode(g.Pos)
		if err != nil {
			return err
		}
		if _, err := g.Harvest(n, at); err != nil {
			return err
		}
		if err := txn.UpdateGuest(g); err != nil {
			return err
		}
		return txn.UpdateNode(n)
	})
	if err != nil {
		return nil, err
	}
	return g, nil
}

// Heat pours guest energy into one cell of the node the guest stands
// on. The amount must fit in a byte and must not overflow the cell.
func (w *World) Heat(ctx context.Context, id int32, password string, gid int32, at int, energy int64) (*entity.Guest, error) {
	var g *entity.Guest
	err := w.withTxn(ctx, "heat", func(txn storage.Txn) error {
		p, err := w.verifyPlayer(txn, id, password)
		if err != nil {
			return err
		}
		g, err = w.ownedGuest(txn, p, gid)
		if err != nil {
			return err
		}
		n, err := txn.GetOrInitNode(g.Pos)
		if err != nil {
			return err
		}
		if err := n.Heat(at, energy); err != nil {
			return err
		}
		if err := g.ConsumeEnergy(energy); err != nil {
			return err
		}
		if err := txn.UpdateNode(n); err != nil {
			return err
		}
		return txn.UpdateGuest(g)
	})
	if err != nil {
		return nil, err
	}
	return g, nil
}

// Arrange buds a new guest from an existing one at the same position.
// The parent pays 2^k (k = the player's current guest count) plus the
// transferred energy; the child starts with the transfer at
// temperature 0. Returns the new guest.
func (w *World) Arrange(ctx context.Context, id int32, password string, gid int32, transferEnergy int64) (*entity.Guest, error) {
	if transferEnergy < 0 {
		return nil, &entity.OutOfLimitError{Desc: "transfer energy", LimitType: "i64"}
	}
	var child *entity.Guest
	err := w.withTxn(ctx, "arrange", func(txn storage.Txn) error {
		p, err := w.verifyPlayer(txn, id, password)
		if err != nil {
			return err
		}
		g, err := w.ownedGuest(txn, p, gid)
		if err != nil {
			return err
		}

		count, err := txn.CountGuestsOfPlayer(p.ID)
		if err != nil {
			return err
		}
		cost, err := entity.ArrangeCost(count)
		if err != nil {
			return err
		}
		if err := g.ConsumeEnergy(cost); err != nil {
			return err
		}
		if err := g.ConsumeEnergy(transferEnergy); err != nil {
			return err
		}
		if err := txn.UpdateGuest(g); err != nil {
			return err
		}

		child, err = txn.InsertGuest(&entity.Guest{
			Energy:      transferEnergy,
			Pos:         g.Pos,
			Temperature: 0,
			MasterID:    g.MasterID,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return child, nil
}

// Detect lists every other guest at the caller's node. Energy is never
// included: it is private to each owner.
func (w *World) Detect(ctx context.Context, id int32, password string, gid int32) ([]entity.DetectedGuest, error) {
	var detected []entity.DetectedGuest
	err := w.withTxn(ctx, "detect", func(txn storage.Txn) error {
		p, err := w.verifyPlayer(txn, id, password)
		if err != nil {
			return err
		}
		g, err := w.ownedGuest(txn, p, gid)
		if err != nil {
			return err
		}
		others, err := txn.ListGuestsAt(g.Pos, g.ID)
		if err != nil {
			return err
		}
		detected = make([]entity.DetectedGuest, 0, len(others))
		for _, other := range others {
			detected = append(detected, other.Detected())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return detected, nil
}

// withTxn runs fn inside one transaction: commit on success, rollback on
// any error or panic.
func (w *World) withTxn(ctx context.Context, op string, fn func(txn storage.Txn) error) error {
	txn, err := w.store.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning %s: %w", op, err)
	}
	defer txn.Rollback()

	if err := fn(txn); err != nil {
		w.log.WithField("op", op).WithError(err).Debug("operation rolled back")
		return err
	}
	return txn.Commit()
}

// verifyPlayer resolves credentials inside the transaction. Any failure
// is the single AuthError category.
func (w *World) verifyPlayer(txn storage.Txn, id int32, password string) (*entity.Player, error) {
	p, err := txn.FindPlayer(id, password)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, &AuthError{PlayerID: id}
	}
	return p, nil
}

// ownedGuest loads a guest and enforces ownership.
func (w *World) ownedGuest(txn storage.Txn, p *entity.Player, gid int32) (*entity.Guest, error) {
	g, err := txn.FindGuest(gid)
	if err != nil {
		return nil, err
	}
	if g == nil || g.MasterID != p.ID {
		return nil, &GuestNotExistError{GID: gid}
	}
	return g, nil
}
