package schema

import (
	"reflect"
	"testing"

	"github.com/shardfs/shard/internal/xxh"
	"github.com/shardfs/shard/pkg/shardid"
)

func TestEdgeKeyRoundTripCurrent(t *testing.T) {
	k := EdgeKey{DirId: shardid.NewInodeId(shardid.InodeTypeDirectory, 1, 5), Current: true, NameHash: 0x1234, Name: "hello.txt"}
	got, err := DecodeEdgeKey(k.Encode())
	if err != nil {
		t.Fatal(err)
	}
	if got != k {
		t.Fatalf("got %+v, want %+v", got, k)
	}
}

func TestEdgeKeyRoundTripSnapshot(t *testing.T) {
	k := EdgeKey{
		DirId:        shardid.NewInodeId(shardid.InodeTypeDirectory, 1, 5),
		Current:      false,
		NameHash:     0x1234,
		Name:         "hello.txt",
		CreationTime: shardid.TernTime(1_700_000_000_000),
	}
	got, err := DecodeEdgeKey(k.Encode())
	if err != nil {
		t.Fatal(err)
	}
	if got != k {
		t.Fatalf("got %+v, want %+v", got, k)
	}
}

func TestEdgeKeyOrderingCurrentBeforeSnapshot(t *testing.T) {
	dir := shardid.NewInodeId(shardid.InodeTypeDirectory, 1, 5)
	current := EdgeKey{DirId: dir, Current: true, NameHash: 1, Name: "a"}.Encode()
	snap := EdgeKey{DirId: dir, Current: false, NameHash: 1, Name: "a", CreationTime: 1}.Encode()
	if !lessBytes(current, snap) {
		t.Fatalf("expected current edges to sort before snapshot edges for the same dir (current bit is 0, snapshot bit is 1)")
	}
}

func TestEdgeKeySnapshotNewestFirst(t *testing.T) {
	dir := shardid.NewInodeId(shardid.InodeTypeDirectory, 1, 5)
	older := EdgeKey{DirId: dir, Current: false, NameHash: 1, Name: "a", CreationTime: 100}.Encode()
	newer := EdgeKey{DirId: dir, Current: false, NameHash: 1, Name: "a", CreationTime: 200}.Encode()
	if !lessBytes(newer, older) {
		t.Fatalf("expected newer snapshot edge (stored as ^t) to sort before older one in ascending byte order")
	}
}

func lessBytes(a, b []byte) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}

func TestDirectoryBodyRoundTrip(t *testing.T) {
	b := DirectoryBody{
		Version:  1,
		OwnerId:  shardid.NewInodeId(shardid.InodeTypeDirectory, 1, 1),
		Mtime:    shardid.TernTime(123),
		HashMode: xxh.HashModeXXH3_63,
		Info:     []DirectoryInfoEntry{{Tag: 1, Payload: []byte("quota")}},
	}
	got, err := DecodeDirectoryBody(b.Encode())
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, b) {
		t.Fatalf("got %+v, want %+v", got, b)
	}
}

func TestFileBodyRoundTrip(t *testing.T) {
	b := FileBody{Version: 1, Mtime: 10, Atime: 20, Size: 4096}
	got, err := DecodeFileBody(b.Encode())
	if err != nil {
		t.Fatal(err)
	}
	if got != b {
		t.Fatalf("got %+v, want %+v", got, b)
	}
}

func TestTransientFileBodyRoundTrip(t *testing.T) {
	b := TransientFileBody{Version: 1, Size: 0, Mtime: 5, Deadline: 3600, LastSpanState: SpanStateDirty, Note: "note"}
	got, err := DecodeTransientFileBody(b.Encode())
	if err != nil {
		t.Fatal(err)
	}
	if got != b {
		t.Fatalf("got %+v, want %+v", got, b)
	}
}

func TestCurrentEdgeBodyRoundTrip(t *testing.T) {
	b := CurrentEdgeBody{
		Target:              shardid.NewInodeId(shardid.InodeTypeFile, 1, 9),
		Locked:              true,
		CreationTime:        42,
		LockOldCreationTime: 41,
		WasMoved:            true,
	}
	got, err := DecodeCurrentEdgeBody(b.Encode())
	if err != nil {
		t.Fatal(err)
	}
	if got != b {
		t.Fatalf("got %+v, want %+v", got, b)
	}
}

func TestSnapshotEdgeBodyRoundTrip(t *testing.T) {
	b := SnapshotEdgeBody{Target: shardid.NewInodeId(shardid.InodeTypeFile, 1, 9), Owned: true}
	got, err := DecodeSnapshotEdgeBody(b.Encode())
	if err != nil {
		t.Fatal(err)
	}
	if got != b {
		t.Fatalf("got %+v, want %+v", got, b)
	}
	deletion := SnapshotEdgeBody{}
	if !deletion.IsDeletion() {
		t.Fatal("zero-target snapshot edge should be a deletion edge")
	}
}

func TestSpanBodyRoundTripInline(t *testing.T) {
	b := SpanBody{Size: 5, Crc: 0xAABBCCDD, Inline: true, InlineBody: []byte("hello")}
	raw, err := b.Encode()
	if err != nil {
		t.Fatal(err)
	}
	got, err := DecodeSpanBody(raw)
	if err != nil {
		t.Fatal(err)
	}
	if got.Size != b.Size || got.Crc != b.Crc || got.Inline != b.Inline || string(got.InlineBody) != string(b.InlineBody) {
		t.Fatalf("got %+v, want %+v", got, b)
	}
}

func TestSpanBodyRoundTripBlocked(t *testing.T) {
	b := SpanBody{
		Size: 1 << 20,
		Crc:  0x1,
		Locations: []SpanLocation{
			{
				Location:     0,
				StorageClass: 1,
				Parity:       Parity{DataBlocks: 10, ParityBlocks: 4},
				Stripes:      3,
				CellSize:     4096,
				Blocks: []BlockLayout{
					{BlockServiceId: 1, BlockId: 2, Crc: 3},
					{BlockServiceId: 4, BlockId: 5, Crc: 6},
				},
				StripeCrcs: []uint32{1, 2, 3},
			},
		},
	}
	raw, err := b.Encode()
	if err != nil {
		t.Fatal(err)
	}
	got, err := DecodeSpanBody(raw)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, b) {
		t.Fatalf("got %+v, want %+v", got, b)
	}
	if got.Locations[0].Parity.Mirrored() {
		t.Fatal("10+4 parity should not report Mirrored")
	}
	if got.Locations[0].Parity.Blocks() != 14 {
		t.Fatalf("Blocks() = %d, want 14", got.Locations[0].Parity.Blocks())
	}
}

func TestInodeKeyRoundTrip(t *testing.T) {
	id := shardid.NewInodeId(shardid.InodeTypeSymlink, 9, 77)
	got, err := DecodeInodeKey(InodeKey(id))
	if err != nil {
		t.Fatal(err)
	}
	if got != id {
		t.Fatalf("got %v, want %v", got, id)
	}
}

func TestSpanKeyRoundTrip(t *testing.T) {
	fileID := shardid.NewInodeId(shardid.InodeTypeFile, 2, 3)
	gotFile, gotOffset, err := DecodeSpanKey(SpanKey(fileID, 4096))
	if err != nil {
		t.Fatal(err)
	}
	if gotFile != fileID || gotOffset != 4096 {
		t.Fatalf("got (%v, %v)", gotFile, gotOffset)
	}
}

func TestBlockServiceToFileKeyRoundTrip(t *testing.T) {
	bs := shardid.BlockServiceId(0xAABB)
	fileID := shardid.NewInodeId(shardid.InodeTypeFile, 2, 3)
	gotBS, gotFile, err := DecodeBlockServiceToFileKey(BlockServiceToFileKey(bs, fileID))
	if err != nil {
		t.Fatal(err)
	}
	if gotBS != bs || gotFile != fileID {
		t.Fatalf("got (%v, %v)", gotBS, gotFile)
	}
}
