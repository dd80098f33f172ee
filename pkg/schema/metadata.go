package schema

import (
	"encoding/binary"

	"github.com/shardfs/shard/internal/codec"
	"github.com/shardfs/shard/internal/mac"
	"github.com/shardfs/shard/pkg/shardid"
)

// ShardInfoValue is the value stored under MetadataKeyShardInfo: the
// shard's own id (checked against configuration on every open) and its
// 128-bit secret key used to compute cookies and to seed MAC-based
// capability tokens.
type ShardInfoValue struct {
	ShardId   shardid.ShardId
	SecretKey mac.Key
}

func (v ShardInfoValue) Encode() []byte {
	w := codec.NewWriter(1 + mac.KeySize)
	w.PutUint8(uint8(v.ShardId))
	w.PutFixed(v.SecretKey[:])
	return w.Bytes()
}

func DecodeShardInfoValue(raw []byte) (ShardInfoValue, error) {
	var v ShardInfoValue
	r := codec.NewReader(raw)
	id, err := r.GetUint8()
	if err != nil {
		return v, err
	}
	v.ShardId = shardid.ShardId(id)
	key, err := r.GetFixed(mac.KeySize)
	if err != nil {
		return v, err
	}
	copy(v.SecretKey[:], key)
	return v, nil
}

// EncodeCounterValue and DecodeCounterValue store the four plain 64-bit
// counters (next-file-id, next-symlink-id, next-block-id,
// last-applied-log-index) as fixed-width big-endian scalars — big-endian
// here purely by convention shared with the key encoders, since these
// values are never range-scanned.
func EncodeCounterValue(v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return b[:]
}

func DecodeCounterValue(raw []byte) (uint64, error) {
	if len(raw) != 8 {
		return 0, &codec.ErrShortBuffer{Field: "CounterValue", Need: 8, Have: len(raw)}
	}
	return binary.BigEndian.Uint64(raw), nil
}
