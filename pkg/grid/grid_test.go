package grid

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlatPackRoundTrip(t *testing.T) {
	cases := []NodeID{
		SITU,
		{1, -1},
		{-32768, 32767},
		{32767, -32768},
		{12345, -12345},
	}
	for _, id := range cases {
		assert.Equal(t, id, id.Flat().NodeID(), "pack/unpack must be bijective for %v", id)
	}

	// Spot-check the bit layout: high half x, low half y.
	assert.Equal(t, FlatID(int32(0x00010002)), FromXY(1, 2).Flat())
	assert.Equal(t, FlatID(int32(-1)), FromXY(-1, -1).Flat())
}

func TestFlatUnpackRoundTrip(t *testing.T) {
	for _, f := range []FlatID{0, 1, -1, 65536, -65536, 2147483647, -2147483648} {
		assert.Equal(t, f, f.NodeID().Flat())
	}
}

func TestNaviToWraps(t *testing.T) {
	assert.Equal(t, PolarLeftMiddle, PolarRightMiddle.NaviTo(Right))
	assert.Equal(t, PolarDownMiddle, PolarUpMiddle.NaviTo(Up))
	assert.Equal(t, SITU, SITU.NaviTo(Situ))

	// Composition: two steps equal one combined step, modulo 2^16.
	p := NodeID{32760, -32760}
	d1, d2 := UpRight, UpRight
	combined := Direction{d1[0] + d2[0], d1[1] + d2[1]}
	assert.Equal(t, p.NaviTo(combined), p.NaviTo(d1).NaviTo(d2))
}

func TestDirectionAllowed(t *testing.T) {
	for _, d := range IndexedNavi {
		assert.True(t, d.Allowed())
	}
	assert.False(t, Direction{2, 0}.Allowed())
	assert.False(t, Direction{0, -2}.Allowed())
	assert.False(t, Direction{-3, 5}.Allowed())
}

func TestFlatIDJSON(t *testing.T) {
	f := FlatFromXY(-5, 7)
	b, err := json.Marshal(f)
	require.NoError(t, err)
	assert.JSONEq(t, "[-5,7]", string(b))

	var back FlatID
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, f, back)
}

func TestRandomNodeData(t *testing.T) {
	for i := 0; i < 32; i++ {
		d := RandomNodeData()
		require.Less(t, len(d), NodeMaxSize)
	}
}

func TestNodeDataAccess(t *testing.T) {
	d := NodeData{0x00, 0x7F, 0x80, 0xFF}

	v, ok := d.Get(1)
	require.True(t, ok)
	assert.Equal(t, int8(127), v)

	v, ok = d.Get(2)
	require.True(t, ok)
	assert.Equal(t, int8(-128), v)

	v, ok = d.Get(3)
	require.True(t, ok)
	assert.Equal(t, int8(-1), v)

	_, ok = d.Get(4)
	assert.False(t, ok)
	_, ok = d.Get(-1)
	assert.False(t, ok)

	require.True(t, d.Set(0, -2))
	v, _ = d.Get(0)
	assert.Equal(t, int8(-2), v)
	assert.False(t, d.Set(4, 0))
}
