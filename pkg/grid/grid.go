// Package grid provides the coordinate algebra for the Entropy world.
//
// The world is a lattice of nodes addressed by a signed 16-bit pair
// (NodeID). Translation wraps on each axis, so the lattice is a torus:
// walking right from the right-middle pole lands on the left-middle pole.
// The packed 32-bit projection (FlatID) is the storage primary key and is
// bijective with NodeID.
//
// A node's payload is a variable-length cell array (NodeData), one byte
// per cell, each byte read as a signed 8-bit temperature.
//
// Example:
//
//	id := grid.FromXY(3, -7)
//	flat := id.Flat()          // packed i32 primary key
//	back := flat.NodeID()      // == id
//	next := id.NaviTo(grid.Right)
package grid

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"
)

// NodeMaxSize is the upper bound on a node's cell count.
const NodeMaxSize = 1024

// Direction is a lattice translation vector [dx, dy].
//
//	        ^ UP
//	        |
//	LEFT <-   -> RIGHT
//	        |
//	        v DOWN
type Direction [2]int16

// The nine allowed translations: the 8-neighborhood plus standing still.
var (
	Situ  = Direction{0, 0}
	Up    = Direction{0, 1}
	Down  = Direction{0, -1}
	Left  = Direction{-1, 0}
	Right = Direction{1, 0}

	UpLeft    = Direction{-1, 1}
	UpRight   = Direction{1, 1}
	DownLeft  = Direction{-1, -1}
	DownRight = Direction{1, -1}
)

// IndexedNavi lists the 9-neighborhood in row order, top-left first:
//
//	y
//	^ 0,1,2
//	| 3,4,5
//	| 6,7,8
//	|------> x
var IndexedNavi = [9]Direction{
	{-1, 1}, {0, 1}, {1, 1},
	{-1, 0}, {0, 0}, {1, 0},
	{-1, -1}, {0, -1}, {1, -1},
}

// Allowed reports whether d is one of the nine permitted translations.
func (d Direction) Allowed() bool {
	for _, a := range IndexedNavi {
		if d == a {
			return true
		}
	}
	return false
}

// NodeID is a 2D lattice coordinate. Both axes wrap at the int16 bounds.
type NodeID struct {
	X int16 `json:"x"`
	Y int16 `json:"y"`
}

// Named lattice positions. SITU is the origin and the spawn location.
var (
	SITU   = NodeID{0, 0}
	Origin = NodeID{0, 0}

	PolarUpLeft      = NodeID{-32768, 32767}
	PolarUpMiddle    = NodeID{0, 32767}
	PolarUpRight     = NodeID{32767, 32767}
	PolarLeftMiddle  = NodeID{-32768, 0}
	PolarRightMiddle = NodeID{32767, 0}
	PolarDownLeft    = NodeID{-32768, -32768}
	PolarDownMiddle  = NodeID{0, -32768}
	PolarDownRight   = NodeID{32767, -32768}
)

// FromXY builds a NodeID from its axis coordinates.
func FromXY(x, y int16) NodeID {
	return NodeID{X: x, Y: y}
}

// NaviTo translates the id by d with wrapping addition on each axis.
func (id NodeID) NaviTo(d Direction) NodeID {
	return NodeID{
		X: int16(uint16(id.X) + uint16(d[0])),
		Y: int16(uint16(id.Y) + uint16(d[1])),
	}
}

// Flat packs the id into its 32-bit primary-key form: high 16 bits x,
// low 16 bits y, big-endian within the word.
func (id NodeID) Flat() FlatID {
	return FlatID(int32(uint32(uint16(id.X))<<16 | uint32(uint16(id.Y))))
}

func (id NodeID) String() string {
	return fmt.Sprintf("(%d, %d)", id.X, id.Y)
}

// MarshalJSON renders the id as the pair [x, y].
func (id NodeID) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]int16{id.X, id.Y})
}

// UnmarshalJSON accepts the pair [x, y].
func (id *NodeID) UnmarshalJSON(b []byte) error {
	var pair [2]int16
	if err := json.Unmarshal(b, &pair); err != nil {
		return err
	}
	id.X, id.Y = pair[0], pair[1]
	return nil
}

// FlatID is the packed 32-bit projection of a NodeID, used as the node
// primary key and as the guest position column. On the wire it is the
// pair [x, y], same as NodeID.
type FlatID int32

// NodeID unpacks the flat key back into coordinates.
func (f FlatID) NodeID() NodeID {
	return NodeID{
		X: int16(uint32(f) >> 16),
		Y: int16(uint32(f)),
	}
}

// FlatFromXY packs coordinates directly.
func FlatFromXY(x, y int16) FlatID {
	return FromXY(x, y).Flat()
}

func (f FlatID) String() string {
	return f.NodeID().String()
}

// MarshalJSON renders the packed id as the pair [x, y].
func (f FlatID) MarshalJSON() ([]byte, error) {
	return f.NodeID().MarshalJSON()
}

// UnmarshalJSON accepts the pair [x, y].
func (f *FlatID) UnmarshalJSON(b []byte) error {
	var id NodeID
	if err := id.UnmarshalJSON(b); err != nil {
		return err
	}
	*f = id.Flat()
	return nil
}

// NodeData is a node's cell array: up to NodeMaxSize bytes, each byte a
// signed 8-bit temperature. Storage and the wire carry the raw bytes;
// readers reinterpret them as signed.
type NodeData []byte

// RandomNodeData produces a cell array of length uniform in
// [0, NodeMaxSize) with uniformly random cell temperatures.
func RandomNodeData() NodeData {
	n := rand.IntN(NodeMaxSize)
	data := make(NodeData, n)
	for i := range data {
		data[i] = byte(rand.UintN(256))
	}
	return data
}

// Get returns the cell at index i as a signed temperature.
// The second result is false when i is out of range.
func (d NodeData) Get(i int) (int8, bool) {
	if i < 0 || i >= len(d) {
		return 0, false
	}
	return int8(d[i]), true
}

// Set writes the cell at index i. Returns false when i is out of range.
func (d NodeData) Set(i int, v int8) bool {
	if i < 0 || i >= len(d) {
		return false
	}
	d[i] = byte(v)
	return true
}

// Clone returns an independent copy of the cell array.
func (d NodeData) Clone() NodeData {
	out := make(NodeData, len(d))
	copy(out, d)
	return out
}
