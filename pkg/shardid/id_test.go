package shardid

import "testing"

func TestInodeIdPacking(t *testing.T) {
	id := NewInodeId(InodeTypeFile, ShardId(0x01), 1)
	if id.Type() != InodeTypeFile {
		t.Fatalf("type = %v, want FILE", id.Type())
	}
	if id.Shard() != 0x01 {
		t.Fatalf("shard = %v, want 1", id.Shard())
	}
	if uint64(id) != 0x0000_0000_0000_0101 {
		t.Fatalf("id = %#x, want 0x101", uint64(id))
	}
}

func TestInodeIdCounterStep(t *testing.T) {
	shard := ShardId(3)
	first := NewInodeId(InodeTypeDirectory, shard, 1)
	second := NextInodeId(first, InodeTypeDirectory, shard)
	if uint64(second)-uint64(first) != 0x100 {
		t.Fatalf("counter step = %#x, want 0x100", uint64(second)-uint64(first))
	}
	if second.Shard() != shard {
		t.Fatalf("shard changed across increment: %v", second.Shard())
	}
}

func TestRootDirInodeId(t *testing.T) {
	if RootDirInodeId.Type() != InodeTypeDirectory {
		t.Fatalf("root inode type = %v, want DIRECTORY", RootDirInodeId.Type())
	}
	if RootDirInodeId.Shard() != 0 {
		t.Fatalf("root inode shard = %v, want 0", RootDirInodeId.Shard())
	}
}

func TestBlockIdAllocation(t *testing.T) {
	shard := ShardId(7)
	base := int64(0x1234_5600)
	id0 := NewBlockId(base, shard, 0)
	id1 := NewBlockId(base, shard, 1)
	if id1-id0 != 0x100 {
		t.Fatalf("block id run step = %#x, want 0x100", uint64(id1-id0))
	}
	if id0.Shard() != shard || id1.Shard() != shard {
		t.Fatalf("block ids lost shard byte")
	}
	if uint64(id0) < uint64(base)&^0xFF {
		t.Fatalf("block id floor violated")
	}
}
