package entity

import (
	"math"
	"math/rand/v2"

	"github.com/entropy-world/entropy/pkg/grid"
)

// CarnotEfficiency maps both temperatures into [0, 255] by subtracting
// math.MinInt8, takes (h, c) = (max, min) and returns 1 - c/h.
//
// Equal inputs short-circuit to 0, which also covers the only case where
// the denominator could be zero (both inputs at math.MinInt8).
func CarnotEfficiency(one, other int8) float32 {
	if one == other {
		return 0
	}
	a := int16(one) - math.MinInt8
	b := int16(other) - math.MinInt8
	h, c := a, b
	if c > h {
		h, c = c, h
	}
	return 1 - float32(c)/float32(h)
}

// Efficiency is the Carnot efficiency between the guest and a cell.
func (g *Guest) Efficiency(cell int8) float32 {
	return CarnotEfficiency(int8(g.Temperature), cell)
}

// VerifyEnergy fails with EnergyNotEnoughError unless the guest holds at
// least require energy.
func (g *Guest) VerifyEnergy(require int64) error {
	if g.Energy >= require {
		return nil
	}
	return &EnergyNotEnoughError{Require: require, Reserve: g.Energy}
}

// ConsumeEnergy verifies and subtracts energy from the guest.
func (g *Guest) ConsumeEnergy(energy int64) error {
	if err := g.VerifyEnergy(energy); err != nil {
		return err
	}
	g.Energy -= energy
	return nil
}

// WalkTo moves the guest one step. Costs 1 energy; the direction must be
// one of the nine allowed translations (validated by the caller).
func (g *Guest) WalkTo(to grid.Direction) error {
	if err := g.ConsumeEnergy(1); err != nil {
		return err
	}
	g.Pos = g.Pos.NodeID().NaviTo(to).Flat()
	return nil
}

// Harvest runs the heat-transfer rule between the guest and the node cell
// at index at, mutating both records. Returns the energy gained.
//
// The transferred quantity is floor(eff * |ΔT| / 2). Temperatures move
// toward each other with saturating arithmetic; the guest's energy grows
// by the transferred quantity.
func (g *Guest) Harvest(n *Node, at int) (uint8, error) {
	cell, ok := n.Data.Get(at)
	if !ok {
		return 0, &CellIndexOutOfRangeError{Node: n.ID.NodeID(), Require: at, Max: len(n.Data)}
	}

	temp := int8(g.Temperature)
	diff := absDiff(temp, cell)
	delta := uint8(float64(g.Efficiency(cell)) * float64(diff) / 2)

	switch {
	case temp > cell:
		temp = satSub(temp, delta)
		cell = satAdd(cell, delta)
	case temp < cell:
		temp = satAdd(temp, delta)
		cell = satSub(cell, delta)
	}

	g.Temperature = int16(temp)
	g.Energy += int64(delta)
	n.Data.Set(at, cell)
	return delta, nil
}

// ExhaustWasteHeat increments one uniformly chosen non-saturated cell.
// Fails with NodeTemperatureTooHighError when every cell is at the
// maximum already.
func (n *Node) ExhaustWasteHeat() error {
	candidates := make([]int, 0, len(n.Data))
	for i := range n.Data {
		if cell, _ := n.Data.Get(i); cell < math.MaxInt8 {
			candidates = append(candidates, i)
		}
	}
	if len(candidates) == 0 {
		return &NodeTemperatureTooHighError{Node: n.ID.NodeID()}
	}
	at := candidates[rand.IntN(len(candidates))]
	cell, _ := n.Data.Get(at)
	n.Data.Set(at, cell+1)
	return nil
}

// Heat pours energy into the cell at index at. The amount must fit in an
// unsigned byte, and the addition is checked in the unsigned view of the
// cell: overflow fails with CellTemperatureTooHighError and leaves the
// node untouched.
func (n *Node) Heat(at int, energy int64) error {
	if energy < 0 || energy > math.MaxUint8 {
		return &OutOfLimitError{Desc: "heat energy", LimitType: "u8"}
	}
	if at < 0 || at >= len(n.Data) {
		return &CellIndexOutOfRangeError{Node: n.ID.NodeID(), Require: at, Max: len(n.Data)}
	}
	sum := uint16(n.Data[at]) + uint16(energy)
	if sum > math.MaxUint8 {
		return &CellTemperatureTooHighError{Node: n.ID.NodeID(), Index: at}
	}
	n.Data[at] = byte(sum)
	return nil
}

// ArrangeCost is the parent's consumption for budding a new guest when
// the owning player already has count guests. The count must fit in the
// 32-bit budget.
func ArrangeCost(count int64) (int64, error) {
	if count < 0 || count >= 32 {
		return 0, &OutOfLimitError{Desc: "owned guest number", LimitType: "u32"}
	}
	return 1 << uint(count), nil
}

func absDiff(a, b int8) uint8 {
	if a > b {
		return uint8(int16(a) - int16(b))
	}
	return uint8(int16(b) - int16(a))
}

func satAdd(v int8, d uint8) int8 {
	r := int16(v) + int16(d)
	if r > math.MaxInt8 {
		return math.MaxInt8
	}
	return int8(r)
}

func satSub(v int8, d uint8) int8 {
	r := int16(v) - int16(d)
	if r < math.MinInt8 {
		return math.MinInt8
	}
	return int8(r)
}
