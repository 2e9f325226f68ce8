// Package storage - row serialization and key construction helpers.
package storage

import (
	"encoding/binary"
	"encoding/json"

	"github.com/entropy-world/entropy/pkg/entity"
	"github.com/entropy-world/entropy/pkg/grid"
)

// Key prefixes for the Badger key space. Single-byte prefixes keep
// iteration ranges tight.
const (
	prefixSeq         = byte(0x00) // seq:name            -> badger sequence state
	prefixPlayer      = byte(0x01) // player id           -> JSON(Player)
	prefixGuest       = byte(0x02) // guest id            -> JSON(Guest)
	prefixNode        = byte(0x03) // packed node id      -> JSON(Node)
	prefixGuestPos    = byte(0x04) // pos + guest id      -> nil
	prefixGuestMaster = byte(0x05) // master id + guest id -> nil
)

func playerKey(id int32) []byte {
	return i32Key(prefixPlayer, id)
}

func guestKey(id int32) []byte {
	return i32Key(prefixGuest, id)
}

func nodeKey(id grid.FlatID) []byte {
	return i32Key(prefixNode, int32(id))
}

func i32Key(prefix byte, id int32) []byte {
	k := make([]byte, 5)
	k[0] = prefix
	binary.BigEndian.PutUint32(k[1:], uint32(id))
	return k
}

// posIndexKey is prefixGuestPos + pos(4) + gid(4). Fixed-width halves,
// so a 5-byte prefix scan enumerates one node's guests.
func posIndexKey(pos grid.FlatID, gid int32) []byte {
	k := make([]byte, 9)
	k[0] = prefixGuestPos
	binary.BigEndian.PutUint32(k[1:5], uint32(pos))
	binary.BigEndian.PutUint32(k[5:], uint32(gid))
	return k
}

func posIndexPrefix(pos grid.FlatID) []byte {
	k := make([]byte, 5)
	k[0] = prefixGuestPos
	binary.BigEndian.PutUint32(k[1:], uint32(pos))
	return k
}

func masterIndexKey(pid, gid int32) []byte {
	k := make([]byte, 9)
	k[0] = prefixGuestMaster
	binary.BigEndian.PutUint32(k[1:5], uint32(pid))
	binary.BigEndian.PutUint32(k[5:], uint32(gid))
	return k
}

func masterIndexPrefix(pid int32) []byte {
	k := make([]byte, 5)
	k[0] = prefixGuestMaster
	binary.BigEndian.PutUint32(k[1:], uint32(pid))
	return k
}

// gidFromIndexKey recovers the guest id from the tail of an index key.
func gidFromIndexKey(key []byte) int32 {
	return int32(binary.BigEndian.Uint32(key[len(key)-4:]))
}

func seqKey(name string) []byte {
	return append([]byte{prefixSeq}, name...)
}

// Rows serialize as JSON, one document per key.

func serializePlayer(p *entity.Player) ([]byte, error) {
	return json.Marshal(p)
}

func deserializePlayer(data []byte) (*entity.Player, error) {
	var p entity.Player
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, &entity.ParseError{Desc: "player row: " + err.Error()}
	}
	return &p, nil
}

func serializeGuest(g *entity.Guest) ([]byte, error) {
	return json.Marshal(g)
}

func deserializeGuest(data []byte) (*entity.Guest, error) {
	var g entity.Guest
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, &entity.ParseError{Desc: "guest row: " + err.Error()}
	}
	return &g, nil
}

func serializeNode(n *entity.Node) ([]byte, error) {
	return json.Marshal(n)
}

func deserializeNode(data []byte) (*entity.Node, error) {
	var n entity.Node
	if err := json.Unmarshal(data, &n); err != nil {
		return nil, &entity.ParseError{Desc: "node row: " + err.Error()}
	}
	return &n, nil
}
