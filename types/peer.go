package types

import "time"

// Peer 已发现的对端
type Peer struct {
	ID         NodeID    `msgpack:"id"`
	Address    string    `msgpack:"addr"`
	PublicKey  []byte    `msgpack:"pk"`
	BlockCount uint64    `msgpack:"count"`
	LastSeen   time.Time `msgpack:"seen"`
}
