package wire

import (
	"testing"

	"github.com/shardfs/shard/internal/mac"
	"github.com/shardfs/shard/pkg/shardid"
)

func testKey() mac.Key {
	k, _ := mac.NewKey([]byte("0123456789abcdef"))
	return k
}

func TestEffectiveMTUClamps(t *testing.T) {
	if EffectiveMTU(0) != MinMTU {
		t.Fatalf("got %d, want %d", EffectiveMTU(0), MinMTU)
	}
	if EffectiveMTU(65535) != MaxMTU {
		t.Fatalf("got %d, want %d", EffectiveMTU(65535), MaxMTU)
	}
	if EffectiveMTU(4000) != 4000 {
		t.Fatalf("got %d, want 4000", EffectiveMTU(4000))
	}
}

func TestBudgetBoundaryAtEnvelopeSize(t *testing.T) {
	b := NewBudget(MinMTU, MinMTU-HeaderSize)
	if b.TryTake(1) {
		t.Fatal("expected budget exactly at envelope size to reject any further element")
	}
}

func TestBudgetStopsBeforeNegative(t *testing.T) {
	b := NewBudget(MinMTU, 0)
	total := 0
	for b.TryTake(100) {
		total += 100
	}
	if total > MinMTU-HeaderSize {
		t.Fatalf("budget overrun: took %d bytes", total)
	}
}

func TestSignAndVerifyRoundTrip(t *testing.T) {
	key := testKey()
	signed := Sign(key, []byte("hello"))
	body, ok := VerifySigned(key, signed)
	if !ok || string(body) != "hello" {
		t.Fatalf("got body=%q ok=%v", body, ok)
	}
}

func TestVerifySignedRejectsTamperedBody(t *testing.T) {
	key := testKey()
	signed := Sign(key, []byte("hello"))
	signed[0] ^= 0xFF
	if _, ok := VerifySigned(key, signed); ok {
		t.Fatal("expected tampered body to fail verification")
	}
}

func TestTransientFileCookieRoundTrip(t *testing.T) {
	key := testKey()
	id := shardid.NewInodeId(shardid.InodeTypeFile, 1, 5)
	cookie := TransientFileCookie(key, id)
	if !VerifyTransientFileCookie(key, id, cookie) {
		t.Fatal("expected cookie to verify")
	}
	other := shardid.NewInodeId(shardid.InodeTypeFile, 1, 6)
	if VerifyTransientFileCookie(key, other, cookie) {
		t.Fatal("expected cookie to be bound to its inode id")
	}
}

func TestWriteAndEraseCapabilitiesAreDistinct(t *testing.T) {
	key := testKey()
	bs := shardid.BlockServiceId(1)
	blockID := shardid.BlockId(2)
	wc := WriteCertificate(key, bs, blockID, 0xAABBCCDD, 4096)
	ec := EraseCertificate(key, bs, blockID)
	if wc == ec {
		t.Fatal("write and erase certificates must not collide")
	}
	wp := WriteProof(key, bs, blockID)
	if !VerifyWriteProof(key, bs, blockID, wp) {
		t.Fatal("expected write proof to verify")
	}
	ep := EraseProof(key, bs, blockID)
	if !VerifyEraseProof(key, bs, blockID, ep) {
		t.Fatal("expected erase proof to verify")
	}
	if wp == ep {
		t.Fatal("write and erase proofs must not collide")
	}
}
