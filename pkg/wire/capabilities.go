package wire

import (
	"github.com/shardfs/shard/internal/codec"
	"github.com/shardfs/shard/internal/mac"
	"github.com/shardfs/shard/pkg/shardid"
)

// TransientFileCookie computes the 8-byte cookie proving the bearer
// learned id from this shard: CBC-MAC of the inode id under the shard
// secret.
func TransientFileCookie(shardSecret mac.Key, id shardid.InodeId) [mac.TagSize]byte {
	w := codec.NewWriter(8)
	w.PutUint64(uint64(id))
	return mac.Sum(shardSecret, w.Bytes())
}

// VerifyTransientFileCookie checks a cookie a caller presented against
// the shard secret.
func VerifyTransientFileCookie(shardSecret mac.Key, id shardid.InodeId, cookie [mac.TagSize]byte) bool {
	return TransientFileCookie(shardSecret, id) == cookie
}

// blockCapabilityTag enumerates the four single-byte discriminants that
// make a write certificate, write proof, erase certificate and erase
// proof otherwise-identical MACs unforgeable against each other.
const (
	tagWriteCertificate byte = 'w'
	tagWriteProof       byte = 'W'
	tagEraseCertificate byte = 'e'
	tagEraseProof       byte = 'E'
)

func blockMessage(bs shardid.BlockServiceId, tag byte, blockID shardid.BlockId, extra ...func(*codec.Writer)) []byte {
	w := codec.NewWriter(24)
	w.PutUint64(uint64(bs))
	w.PutUint8(tag)
	w.PutUint64(uint64(blockID))
	for _, f := range extra {
		f(w)
	}
	return w.Bytes()
}

// WriteCertificate authorizes a block service to accept a write of
// blockID with the given crc and size: CBC-MAC of
// (block-service-id, 'w', block-id, crc, block-size) under the block
// service's key.
func WriteCertificate(bsKey mac.Key, bs shardid.BlockServiceId, blockID shardid.BlockId, crc uint32, size uint32) [mac.TagSize]byte {
	msg := blockMessage(bs, tagWriteCertificate, blockID, func(w *codec.Writer) {
		w.PutUint32(crc)
		w.PutUint32(size)
	})
	return mac.Sum(bsKey, msg)
}

// WriteProof is returned by the block service confirming the write:
// CBC-MAC of (block-service-id, 'W', block-id).
func WriteProof(bsKey mac.Key, bs shardid.BlockServiceId, blockID shardid.BlockId) [mac.TagSize]byte {
	return mac.Sum(bsKey, blockMessage(bs, tagWriteProof, blockID))
}

// VerifyWriteProof checks a write proof presented to add-span-certify.
func VerifyWriteProof(bsKey mac.Key, bs shardid.BlockServiceId, blockID shardid.BlockId, proof [mac.TagSize]byte) bool {
	return WriteProof(bsKey, bs, blockID) == proof
}

// EraseCertificate authorizes a block service to erase blockID: CBC-MAC
// of (block-service-id, 'e', block-id).
func EraseCertificate(bsKey mac.Key, bs shardid.BlockServiceId, blockID shardid.BlockId) [mac.TagSize]byte {
	return mac.Sum(bsKey, blockMessage(bs, tagEraseCertificate, blockID))
}

// EraseProof is returned by the block service confirming the erase:
// CBC-MAC of (block-service-id, 'E', block-id).
func EraseProof(bsKey mac.Key, bs shardid.BlockServiceId, blockID shardid.BlockId) [mac.TagSize]byte {
	return mac.Sum(bsKey, blockMessage(bs, tagEraseProof, blockID))
}

// VerifyEraseProof checks an erase proof presented to remove-span-certify.
func VerifyEraseProof(bsKey mac.Key, bs shardid.BlockServiceId, blockID shardid.BlockId, proof [mac.TagSize]byte) bool {
	return EraseProof(bsKey, bs, blockID) == proof
}
