package preparepath

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shardfs/shard/internal/crc"
	"github.com/shardfs/shard/pkg/schema"
	"github.com/shardfs/shard/pkg/shardid"
	"github.com/shardfs/shard/pkg/shardstore"
)

func TestCombinedCrcMatchesWholeBufferChecksum(t *testing.T) {
	stripe1 := []byte{0x01, 0x02, 0x03, 0x04}
	stripe2 := []byte{0x05, 0x06, 0x07}
	whole := append(append([]byte{}, stripe1...), stripe2...)

	got := combinedCrc([]uint32{crc.Checksum(stripe1), crc.Checksum(stripe2)}, 4, uint32(len(whole)))
	require.Equal(t, crc.Checksum(whole), got)
}

func TestValidateParityMirrored(t *testing.T) {
	parity := schema.Parity{DataBlocks: 1, ParityBlocks: 2}
	require.NoError(t, validateParity(parity, []uint32{7, 7, 7}))

	err := validateParity(parity, []uint32{7, 7, 8})
	require.Error(t, err)
	var se *shardstore.Error
	require.ErrorAs(t, err, &se)
	require.Equal(t, shardstore.ErrorCodeBadSpanBody, se.Code)
}

func TestValidateParityReedSolomon(t *testing.T) {
	parity := schema.Parity{DataBlocks: 2, ParityBlocks: 1}
	require.NoError(t, validateParity(parity, []uint32{0b1010, 0b0110, 0b1100}))

	err := validateParity(parity, []uint32{0b1010, 0b0110, 0b0000})
	require.Error(t, err)
	var se *shardstore.Error
	require.ErrorAs(t, err, &se)
	require.Equal(t, shardstore.ErrorCodeBadSpanBody, se.Code)
}

func TestValidateParityRejectsWrongBlockCount(t *testing.T) {
	err := validateParity(schema.Parity{DataBlocks: 1, ParityBlocks: 1}, []uint32{1})
	require.Error(t, err)
}

func TestPrepareAddInlineSpanRejectsDirectory(t *testing.T) {
	dir := shardid.NewInodeId(shardid.InodeTypeDirectory, shardid.ShardId(1), 1)
	_, err := PrepareAddInlineSpan(dir, 0, []byte("x"), crc.Checksum([]byte("x")))
	require.Error(t, err)
	var se *shardstore.Error
	require.ErrorAs(t, err, &se)
	require.Equal(t, shardstore.ErrorCodeTypeIsDirectory, se.Code)
}

func TestPrepareAddInlineSpanRejectsCrcMismatch(t *testing.T) {
	file := shardid.NewInodeId(shardid.InodeTypeFile, shardid.ShardId(1), 1)
	_, err := PrepareAddInlineSpan(file, 0, []byte("x"), 0)
	require.Error(t, err)
	var se *shardstore.Error
	require.ErrorAs(t, err, &se)
	require.Equal(t, shardstore.ErrorCodeBadSpanBody, se.Code)
}

func TestPrepareSwapBlocksRejectsDirectory(t *testing.T) {
	dir := shardid.NewInodeId(shardid.InodeTypeDirectory, shardid.ShardId(1), 1)
	file := shardid.NewInodeId(shardid.InodeTypeFile, shardid.ShardId(1), 2)
	_, err := PrepareSwapBlocks(dir, 0, 1, file, 0, 2)
	require.Error(t, err)
	var se *shardstore.Error
	require.ErrorAs(t, err, &se)
	require.Equal(t, shardstore.ErrorCodeTypeIsDirectory, se.Code)
}

func TestPrepareSwapSpansRejectsDirectory(t *testing.T) {
	dir := shardid.NewInodeId(shardid.InodeTypeDirectory, shardid.ShardId(1), 1)
	file := shardid.NewInodeId(shardid.InodeTypeFile, shardid.ShardId(1), 2)
	_, err := PrepareSwapSpans(file, 0, nil, dir, 0, nil)
	require.Error(t, err)
	var se *shardstore.Error
	require.ErrorAs(t, err, &se)
	require.Equal(t, shardstore.ErrorCodeTypeIsDirectory, se.Code)
}

func TestPrepareAddInlineSpanAcceptsMatchingCrc(t *testing.T) {
	file := shardid.NewInodeId(shardid.InodeTypeFile, shardid.ShardId(1), 1)
	body := []byte("hello")
	entry, err := PrepareAddInlineSpan(file, 10, body, crc.Checksum(body))
	require.NoError(t, err)
	require.Equal(t, file, entry.File)
	require.Equal(t, uint64(10), entry.Offset)
	require.Equal(t, uint32(len(body)), entry.Size)
	require.Equal(t, body, entry.Body)
}
