// Package entity defines the persistent records of the Entropy world —
// players, guests, nodes — and the pure state transitions between them.
//
// A Player is the authenticated principal. A Guest is a mobile agent owned
// by a player, carrying energy and a signed 8-bit temperature. A Node is a
// lattice cell with a byte array of cell temperatures.
//
// All transitions here are pure with respect to storage: they mutate the
// in-memory records and report domain errors; persistence and transaction
// boundaries belong to the operation layer.
package entity

import (
	"github.com/entropy-world/entropy/pkg/grid"
)

// Player is the authenticated principal. Password holds the opaque
// credential token; the core only ever compares it for equality.
type Player struct {
	ID       int32  `json:"id"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

// Public strips the credential token for unauthenticated lookups.
func (p *Player) Public() PublicPlayer {
	return PublicPlayer{ID: p.ID, Name: p.Name}
}

// PublicPlayer is the credential-free projection of a Player.
type PublicPlayer struct {
	ID   int32  `json:"id"`
	Name string `json:"name"`
}

// Guest is a player-owned agent on the lattice.
//
// Temperature is semantically a signed 8-bit value, stored widened to 16
// bits for portability. Energy is signed 64-bit and is non-negative at
// every commit point.
type Guest struct {
	ID          int32       `json:"id"`
	Energy      int64       `json:"energy"`
	Pos         grid.FlatID `json:"pos"`
	Temperature int16       `json:"temperature"`
	MasterID    int32       `json:"master_id"`
}

// Detected is the projection of a guest visible to other guests at the
// same node. Energy is private to the owner and never included.
func (g *Guest) Detected() DetectedGuest {
	return DetectedGuest{
		ID:          g.ID,
		Temperature: g.Temperature,
		Pos:         g.Pos,
		MasterID:    g.MasterID,
	}
}

// DetectedGuest is what detect returns for co-located guests.
type DetectedGuest struct {
	ID          int32       `json:"id"`
	Temperature int16       `json:"temperature"`
	Pos         grid.FlatID `json:"pos"`
	MasterID    int32       `json:"master_id"`
}

// Node is a lattice cell record. Data holds at most grid.NodeMaxSize
// bytes, each one a signed 8-bit cell temperature.
type Node struct {
	ID   grid.FlatID   `json:"id"`
	Data grid.NodeData `json:"data"`
}

// NewRandomNode materializes a fresh node with randomized cells, as
// lazy first-touch initialization requires.
func NewRandomNode(id grid.FlatID) *Node {
	return &Node{ID: id, Data: grid.RandomNodeData()}
}
