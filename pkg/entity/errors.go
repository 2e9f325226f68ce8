package entity

import (
	"fmt"

	"github.com/entropy-world/entropy/pkg/grid"
)

// ParseError reports stored bytes that could not be decoded into a record.
type ParseError struct {
	Desc string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("error while parse model <- %s", e.Desc)
}

// OutOfLimitError reports a counter or payload that exceeds the width of
// its storage type.
type OutOfLimitError struct {
	Desc      string
	LimitType string
}

func (e *OutOfLimitError) Error() string {
	return fmt.Sprintf("data out of limit::%s <- %s", e.LimitType, e.Desc)
}

// EnergyNotEnoughError reports a guest whose energy reserve cannot cover
// the requested consumption.
type EnergyNotEnoughError struct {
	Require int64
	Reserve int64
}

func (e *EnergyNotEnoughError) Error() string {
	return fmt.Sprintf("energy not enough <- require:%d reserve:%d", e.Require, e.Reserve)
}

// CellIndexOutOfRangeError reports a cell index beyond a node's data.
type CellIndexOutOfRangeError struct {
	Node    grid.NodeID
	Require int
	Max     int
}

func (e *CellIndexOutOfRangeError) Error() string {
	return fmt.Sprintf("cell index out of range <- node:%v require:%d max:%d", e.Node, e.Require, e.Max)
}

// NodeTemperatureTooHighError reports a node that cannot exhaust waste
// heat because every cell is already saturated.
type NodeTemperatureTooHighError struct {
	Node grid.NodeID
}

func (e *NodeTemperatureTooHighError) Error() string {
	return fmt.Sprintf("cannot exhaust heat <- node:%v temperature too high", e.Node)
}

// CellTemperatureTooHighError reports a heat request that would overflow
// the target cell.
type CellTemperatureTooHighError struct {
	Node  grid.NodeID
	Index int
}

func (e *CellTemperatureTooHighError) Error() string {
	return fmt.Sprintf("cell temperature too high <- node:%v index:%d", e.Node, e.Index)
}
