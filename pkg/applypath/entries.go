package applypath

import (
	"fmt"

	"github.com/shardfs/shard/internal/codec"
	"github.com/shardfs/shard/pkg/schema"
	"github.com/shardfs/shard/pkg/shardid"
	"github.com/shardfs/shard/pkg/shardstore"
)

// EntryKind is the tagged-variant discriminant for log-entry bodies, per
// §9's "dynamic dispatch on entry kind: implement as a tagged variant
// with a total match over kinds; any default branch should be fatal."
type EntryKind uint16

const (
	EntryKindConstructFile EntryKind = iota + 1
	EntryKindLinkFile
	EntryKindMakeFileTransient
	EntryKindSameShardHardFileUnlink
	EntryKindScrapTransientFile
	EntryKindRemoveInode
	EntryKindAddInlineSpan
	EntryKindAddSpanAtLocationInitiate
	EntryKindAddSpanCertify
	EntryKindAddSpanLocation
	EntryKindRemoveSpanInitiate
	EntryKindRemoveSpanCertify
	EntryKindCreateDirectoryInode
	EntryKindSetDirectoryInfo
	EntryKindSetDirectoryOwner
	EntryKindRemoveDirectoryOwner
	EntryKindCreateLockedCurrentEdge
	EntryKindLockCurrentEdge
	EntryKindUnlockCurrentEdge
	EntryKindSoftUnlinkFile
	EntryKindSetTime
	EntryKindRemoveOwnedSnapshotFileEdge
	EntryKindRemoveNonOwnedEdge
	EntryKindRemoveZeroBlockServiceFiles
	EntryKindMoveSpan
	EntryKindSwapBlocks
	EntryKindSwapSpans
)

// Entry is a decoded, frozen log-entry body: every non-deterministic
// value the prepare path chose has already been resolved into its
// fields, so applying it is a pure function of (store-state, Entry).
type Entry interface {
	Kind() EntryKind
	encode(w *codec.Writer)
}

func EncodeEntry(logIndex uint64, entryTime shardid.TernTime, e Entry) []byte {
	w := codec.NewWriter(64)
	w.PutUint64(logIndex)
	w.PutInt64(int64(entryTime))
	w.PutUint16(uint16(e.Kind()))
	e.encode(w)
	return w.Bytes()
}

// DecodeEntry parses a raw log-entry body back into (logIndex, entryTime,
// Entry). An unrecognized kind is a fatal, not recoverable, error: the
// log format itself would be corrupt.
func DecodeEntry(raw []byte) (logIndex uint64, entryTime shardid.TernTime, entry Entry, err error) {
	r := codec.NewReader(raw)
	if logIndex, err = r.GetUint64(); err != nil {
		return
	}
	t, err := r.GetInt64()
	if err != nil {
		return
	}
	entryTime = shardid.TernTime(t)
	kindRaw, err := r.GetUint16()
	if err != nil {
		return
	}
	dec, ok := decoders[EntryKind(kindRaw)]
	if !ok {
		// The log format itself is corrupt: no retry or caller-facing
		// error code can recover from a kind byte no build of this
		// binary ever wrote.
		panic(&shardstore.FatalError{Reason: fmt.Sprintf("applypath: unrecognized entry kind %d", kindRaw)})
	}
	entry, err = dec(r)
	return
}

type decodeFunc func(r *codec.Reader) (Entry, error)

var decoders map[EntryKind]decodeFunc

func init() {
	decoders = map[EntryKind]decodeFunc{
		EntryKindConstructFile:              func(r *codec.Reader) (Entry, error) { return decodeConstructFile(r) },
		EntryKindLinkFile:                   func(r *codec.Reader) (Entry, error) { return decodeLinkFile(r) },
		EntryKindMakeFileTransient:          func(r *codec.Reader) (Entry, error) { return decodeMakeFileTransient(r) },
		EntryKindSameShardHardFileUnlink:    func(r *codec.Reader) (Entry, error) { return decodeSameShardHardFileUnlink(r) },
		EntryKindScrapTransientFile:         func(r *codec.Reader) (Entry, error) { return decodeScrapTransientFile(r) },
		EntryKindRemoveInode:                func(r *codec.Reader) (Entry, error) { return decodeRemoveInode(r) },
		EntryKindAddInlineSpan:              func(r *codec.Reader) (Entry, error) { return decodeAddInlineSpan(r) },
		EntryKindAddSpanAtLocationInitiate:  func(r *codec.Reader) (Entry, error) { return decodeAddSpanAtLocationInitiate(r) },
		EntryKindAddSpanCertify:             func(r *codec.Reader) (Entry, error) { return decodeAddSpanCertify(r) },
		EntryKindAddSpanLocation:            func(r *codec.Reader) (Entry, error) { return decodeAddSpanLocation(r) },
		EntryKindRemoveSpanInitiate:         func(r *codec.Reader) (Entry, error) { return decodeRemoveSpanInitiate(r) },
		EntryKindRemoveSpanCertify:          func(r *codec.Reader) (Entry, error) { return decodeRemoveSpanCertify(r) },
		EntryKindCreateDirectoryInode:       func(r *codec.Reader) (Entry, error) { return decodeCreateDirectoryInode(r) },
		EntryKindSetDirectoryInfo:           func(r *codec.Reader) (Entry, error) { return decodeSetDirectoryInfo(r) },
		EntryKindSetDirectoryOwner:          func(r *codec.Reader) (Entry, error) { return decodeSetDirectoryOwner(r) },
		EntryKindRemoveDirectoryOwner:       func(r *codec.Reader) (Entry, error) { return decodeRemoveDirectoryOwner(r) },
		EntryKindCreateLockedCurrentEdge:    func(r *codec.Reader) (Entry, error) { return decodeCreateLockedCurrentEdge(r) },
		EntryKindLockCurrentEdge:            func(r *codec.Reader) (Entry, error) { return decodeLockCurrentEdge(r) },
		EntryKindUnlockCurrentEdge:          func(r *codec.Reader) (Entry, error) { return decodeUnlockCurrentEdge(r) },
		EntryKindSoftUnlinkFile:             func(r *codec.Reader) (Entry, error) { return decodeSoftUnlinkFile(r) },
		EntryKindSetTime:                    func(r *codec.Reader) (Entry, error) { return decodeSetTime(r) },
		EntryKindRemoveOwnedSnapshotFileEdge: func(r *codec.Reader) (Entry, error) { return decodeRemoveOwnedSnapshotFileEdge(r) },
		EntryKindRemoveNonOwnedEdge:          func(r *codec.Reader) (Entry, error) { return decodeRemoveNonOwnedEdge(r) },
		EntryKindRemoveZeroBlockServiceFiles: func(r *codec.Reader) (Entry, error) { return decodeRemoveZeroBlockServiceFiles(r) },
		EntryKindMoveSpan:                    func(r *codec.Reader) (Entry, error) { return decodeMoveSpan(r) },
		EntryKindSwapBlocks:                  func(r *codec.Reader) (Entry, error) { return decodeSwapBlocks(r) },
		EntryKindSwapSpans:                   func(r *codec.Reader) (Entry, error) { return decodeSwapSpans(r) },
	}
}

// --- entry bodies ---

type ConstructFile struct {
	Id       shardid.InodeId
	Deadline shardid.TernTime
	Note     string
}

func (e ConstructFile) Kind() EntryKind { return EntryKindConstructFile }
func (e ConstructFile) encode(w *codec.Writer) {
	w.PutUint64(uint64(e.Id))
	w.PutInt64(int64(e.Deadline))
	_ = w.PutShortString(e.Note)
}
func decodeConstructFile(r *codec.Reader) (ConstructFile, error) {
	var e ConstructFile
	id, err := r.GetUint64()
	if err != nil {
		return e, err
	}
	e.Id = shardid.InodeId(id)
	d, err := r.GetInt64()
	if err != nil {
		return e, err
	}
	e.Deadline = shardid.TernTime(d)
	e.Note, err = r.GetShortString()
	return e, err
}

type LinkFile struct {
	File     shardid.InodeId
	OwnerDir shardid.InodeId
	Name     string
}

func (e LinkFile) Kind() EntryKind { return EntryKindLinkFile }
func (e LinkFile) encode(w *codec.Writer) {
	w.PutUint64(uint64(e.File))
	w.PutUint64(uint64(e.OwnerDir))
	_ = w.PutShortString(e.Name)
}
func decodeLinkFile(r *codec.Reader) (LinkFile, error) {
	var e LinkFile
	file, err := r.GetUint64()
	if err != nil {
		return e, err
	}
	e.File = shardid.InodeId(file)
	dir, err := r.GetUint64()
	if err != nil {
		return e, err
	}
	e.OwnerDir = shardid.InodeId(dir)
	e.Name, err = r.GetShortString()
	return e, err
}

type MakeFileTransient struct {
	Id       shardid.InodeId
	Deadline shardid.TernTime
	Note     string
}

func (e MakeFileTransient) Kind() EntryKind { return EntryKindMakeFileTransient }
func (e MakeFileTransient) encode(w *codec.Writer) {
	w.PutUint64(uint64(e.Id))
	w.PutInt64(int64(e.Deadline))
	_ = w.PutShortString(e.Note)
}
func decodeMakeFileTransient(r *codec.Reader) (MakeFileTransient, error) {
	var e MakeFileTransient
	id, err := r.GetUint64()
	if err != nil {
		return e, err
	}
	e.Id = shardid.InodeId(id)
	d, err := r.GetInt64()
	if err != nil {
		return e, err
	}
	e.Deadline = shardid.TernTime(d)
	e.Note, err = r.GetShortString()
	return e, err
}

type SameShardHardFileUnlink struct {
	Owner        shardid.InodeId
	Target       shardid.InodeId
	Name         string
	CreationTime shardid.TernTime
	Deadline     shardid.TernTime
}

func (e SameShardHardFileUnlink) Kind() EntryKind { return EntryKindSameShardHardFileUnlink }
func (e SameShardHardFileUnlink) encode(w *codec.Writer) {
	w.PutUint64(uint64(e.Owner))
	w.PutUint64(uint64(e.Target))
	_ = w.PutShortString(e.Name)
	w.PutInt64(int64(e.CreationTime))
	w.PutInt64(int64(e.Deadline))
}
func decodeSameShardHardFileUnlink(r *codec.Reader) (SameShardHardFileUnlink, error) {
	var e SameShardHardFileUnlink
	owner, err := r.GetUint64()
	if err != nil {
		return e, err
	}
	e.Owner = shardid.InodeId(owner)
	target, err := r.GetUint64()
	if err != nil {
		return e, err
	}
	e.Target = shardid.InodeId(target)
	if e.Name, err = r.GetShortString(); err != nil {
		return e, err
	}
	ct, err := r.GetInt64()
	if err != nil {
		return e, err
	}
	e.CreationTime = shardid.TernTime(ct)
	d, err := r.GetInt64()
	if err != nil {
		return e, err
	}
	e.Deadline = shardid.TernTime(d)
	return e, nil
}

type ScrapTransientFile struct {
	Id       shardid.InodeId
	Deadline shardid.TernTime
}

func (e ScrapTransientFile) Kind() EntryKind { return EntryKindScrapTransientFile }
func (e ScrapTransientFile) encode(w *codec.Writer) {
	w.PutUint64(uint64(e.Id))
	w.PutInt64(int64(e.Deadline))
}
func decodeScrapTransientFile(r *codec.Reader) (ScrapTransientFile, error) {
	var e ScrapTransientFile
	id, err := r.GetUint64()
	if err != nil {
		return e, err
	}
	e.Id = shardid.InodeId(id)
	d, err := r.GetInt64()
	if err != nil {
		return e, err
	}
	e.Deadline = shardid.TernTime(d)
	return e, nil
}

type RemoveInode struct{ Id shardid.InodeId }

func (e RemoveInode) Kind() EntryKind         { return EntryKindRemoveInode }
func (e RemoveInode) encode(w *codec.Writer)  { w.PutUint64(uint64(e.Id)) }
func decodeRemoveInode(r *codec.Reader) (RemoveInode, error) {
	id, err := r.GetUint64()
	return RemoveInode{Id: shardid.InodeId(id)}, err
}

type AddInlineSpan struct {
	File   shardid.InodeId
	Offset uint64
	Size   uint32
	Body   []byte
	Crc    uint32
}

func (e AddInlineSpan) Kind() EntryKind { return EntryKindAddInlineSpan }
func (e AddInlineSpan) encode(w *codec.Writer) {
	w.PutUint64(uint64(e.File))
	w.PutUint64(e.Offset)
	w.PutUint32(e.Size)
	_ = w.PutListHeader(len(e.Body))
	w.PutFixed(e.Body)
	w.PutUint32(e.Crc)
}
func decodeAddInlineSpan(r *codec.Reader) (AddInlineSpan, error) {
	var e AddInlineSpan
	file, err := r.GetUint64()
	if err != nil {
		return e, err
	}
	e.File = shardid.InodeId(file)
	if e.Offset, err = r.GetUint64(); err != nil {
		return e, err
	}
	if e.Size, err = r.GetUint32(); err != nil {
		return e, err
	}
	n, err := r.GetListHeader()
	if err != nil {
		return e, err
	}
	if e.Body, err = r.GetFixed(n); err != nil {
		return e, err
	}
	e.Crc, err = r.GetUint32()
	return e, err
}

type AddSpanAtLocationInitiate struct {
	File                shardid.InodeId
	Offset              uint64
	Size                uint32
	Parity              schema.Parity
	Stripes             uint32
	CellSize            uint32
	StorageClass        uint8
	Location            uint8
	PickedBlockServices []shardid.BlockServiceId
	PickedBlockIds      []shardid.BlockId
	StripeCrcs          []uint32
	SpanCrc             uint32
}

func (e AddSpanAtLocationInitiate) Kind() EntryKind { return EntryKindAddSpanAtLocationInitiate }
func (e AddSpanAtLocationInitiate) encode(w *codec.Writer) {
	w.PutUint64(uint64(e.File))
	w.PutUint64(e.Offset)
	w.PutUint32(e.Size)
	e.Parity.EncodePublic(w)
	w.PutUint32(e.Stripes)
	w.PutUint32(e.CellSize)
	w.PutUint8(e.StorageClass)
	w.PutUint8(e.Location)
	_ = w.PutListHeader(len(e.PickedBlockServices))
	for _, bs := range e.PickedBlockServices {
		w.PutUint64(uint64(bs))
	}
	_ = w.PutListHeader(len(e.PickedBlockIds))
	for _, id := range e.PickedBlockIds {
		w.PutUint64(uint64(id))
	}
	_ = w.PutListHeader(len(e.StripeCrcs))
	for _, c := range e.StripeCrcs {
		w.PutUint32(c)
	}
	w.PutUint32(e.SpanCrc)
}
func decodeAddSpanAtLocationInitiate(r *codec.Reader) (AddSpanAtLocationInitiate, error) {
	var e AddSpanAtLocationInitiate
	file, err := r.GetUint64()
	if err != nil {
		return e, err
	}
	e.File = shardid.InodeId(file)
	if e.Offset, err = r.GetUint64(); err != nil {
		return e, err
	}
	if e.Size, err = r.GetUint32(); err != nil {
		return e, err
	}
	if e.Parity, err = schema.DecodeParityPublic(r); err != nil {
		return e, err
	}
	if e.Stripes, err = r.GetUint32(); err != nil {
		return e, err
	}
	if e.CellSize, err = r.GetUint32(); err != nil {
		return e, err
	}
	if e.StorageClass, err = r.GetUint8(); err != nil {
		return e, err
	}
	if e.Location, err = r.GetUint8(); err != nil {
		return e, err
	}
	nBS, err := r.GetListHeader()
	if err != nil {
		return e, err
	}
	e.PickedBlockServices = make([]shardid.BlockServiceId, nBS)
	for i := range e.PickedBlockServices {
		v, err := r.GetUint64()
		if err != nil {
			return e, err
		}
		e.PickedBlockServices[i] = shardid.BlockServiceId(v)
	}
	nIds, err := r.GetListHeader()
	if err != nil {
		return e, err
	}
	e.PickedBlockIds = make([]shardid.BlockId, nIds)
	for i := range e.PickedBlockIds {
		v, err := r.GetUint64()
		if err != nil {
			return e, err
		}
		e.PickedBlockIds[i] = shardid.BlockId(v)
	}
	nCrcs, err := r.GetListHeader()
	if err != nil {
		return e, err
	}
	e.StripeCrcs = make([]uint32, nCrcs)
	for i := range e.StripeCrcs {
		if e.StripeCrcs[i], err = r.GetUint32(); err != nil {
			return e, err
		}
	}
	e.SpanCrc, err = r.GetUint32()
	return e, err
}

type AddSpanCertify struct {
	File   shardid.InodeId
	Offset uint64
	Proofs [][8]byte
}

func (e AddSpanCertify) Kind() EntryKind { return EntryKindAddSpanCertify }
func (e AddSpanCertify) encode(w *codec.Writer) {
	w.PutUint64(uint64(e.File))
	w.PutUint64(e.Offset)
	_ = w.PutListHeader(len(e.Proofs))
	for _, p := range e.Proofs {
		w.PutFixed(p[:])
	}
}
func decodeAddSpanCertify(r *codec.Reader) (AddSpanCertify, error) {
	var e AddSpanCertify
	file, err := r.GetUint64()
	if err != nil {
		return e, err
	}
	e.File = shardid.InodeId(file)
	if e.Offset, err = r.GetUint64(); err != nil {
		return e, err
	}
	n, err := r.GetListHeader()
	if err != nil {
		return e, err
	}
	e.Proofs = make([][8]byte, n)
	for i := range e.Proofs {
		b, err := r.GetFixed(8)
		if err != nil {
			return e, err
		}
		copy(e.Proofs[i][:], b)
	}
	return e, nil
}

type AddSpanLocation struct {
	SrcFile   shardid.InodeId
	SrcOffset uint64
	DstFile   shardid.InodeId
	DstOffset uint64
	Location  uint8
	Blocks    []schema.BlockLayout
}

func (e AddSpanLocation) Kind() EntryKind { return EntryKindAddSpanLocation }
func (e AddSpanLocation) encode(w *codec.Writer) {
	w.PutUint64(uint64(e.SrcFile))
	w.PutUint64(e.SrcOffset)
	w.PutUint64(uint64(e.DstFile))
	w.PutUint64(e.DstOffset)
	w.PutUint8(e.Location)
	_ = w.PutListHeader(len(e.Blocks))
	for _, b := range e.Blocks {
		b.EncodePublic(w)
	}
}
func decodeAddSpanLocation(r *codec.Reader) (AddSpanLocation, error) {
	var e AddSpanLocation
	src, err := r.GetUint64()
	if err != nil {
		return e, err
	}
	e.SrcFile = shardid.InodeId(src)
	if e.SrcOffset, err = r.GetUint64(); err != nil {
		return e, err
	}
	dst, err := r.GetUint64()
	if err != nil {
		return e, err
	}
	e.DstFile = shardid.InodeId(dst)
	if e.DstOffset, err = r.GetUint64(); err != nil {
		return e, err
	}
	if e.Location, err = r.GetUint8(); err != nil {
		return e, err
	}
	n, err := r.GetListHeader()
	if err != nil {
		return e, err
	}
	e.Blocks = make([]schema.BlockLayout, n)
	for i := range e.Blocks {
		if e.Blocks[i], err = schema.DecodeBlockLayoutPublic(r); err != nil {
			return e, err
		}
	}
	return e, nil
}

type RemoveSpanInitiate struct{ File shardid.InodeId }

func (e RemoveSpanInitiate) Kind() EntryKind        { return EntryKindRemoveSpanInitiate }
func (e RemoveSpanInitiate) encode(w *codec.Writer) { w.PutUint64(uint64(e.File)) }
func decodeRemoveSpanInitiate(r *codec.Reader) (RemoveSpanInitiate, error) {
	f, err := r.GetUint64()
	return RemoveSpanInitiate{File: shardid.InodeId(f)}, err
}

type RemoveSpanCertify struct {
	File   shardid.InodeId
	Offset uint64
	Proofs [][8]byte
}

func (e RemoveSpanCertify) Kind() EntryKind { return EntryKindRemoveSpanCertify }
func (e RemoveSpanCertify) encode(w *codec.Writer) {
	w.PutUint64(uint64(e.File))
	w.PutUint64(e.Offset)
	_ = w.PutListHeader(len(e.Proofs))
	for _, p := range e.Proofs {
		w.PutFixed(p[:])
	}
}
func decodeRemoveSpanCertify(r *codec.Reader) (RemoveSpanCertify, error) {
	var e AddSpanCertify
	var err error
	file, err := r.GetUint64()
	if err != nil {
		return RemoveSpanCertify{}, err
	}
	e.File = shardid.InodeId(file)
	if e.Offset, err = r.GetUint64(); err != nil {
		return RemoveSpanCertify{}, err
	}
	n, err := r.GetListHeader()
	if err != nil {
		return RemoveSpanCertify{}, err
	}
	e.Proofs = make([][8]byte, n)
	for i := range e.Proofs {
		b, err := r.GetFixed(8)
		if err != nil {
			return RemoveSpanCertify{}, err
		}
		copy(e.Proofs[i][:], b)
	}
	return RemoveSpanCertify(e), nil
}

type CreateDirectoryInode struct {
	Id    shardid.InodeId
	Owner shardid.InodeId
	Info  []schema.DirectoryInfoEntry
	Now   shardid.TernTime
}

func (e CreateDirectoryInode) Kind() EntryKind { return EntryKindCreateDirectoryInode }
func (e CreateDirectoryInode) encode(w *codec.Writer) {
	w.PutUint64(uint64(e.Id))
	w.PutUint64(uint64(e.Owner))
	w.PutInt64(int64(e.Now))
	_ = w.PutListHeader(len(e.Info))
	for _, info := range e.Info {
		w.PutUint8(info.Tag)
		_ = w.PutShortBytes(info.Payload)
	}
}
func decodeCreateDirectoryInode(r *codec.Reader) (CreateDirectoryInode, error) {
	var e CreateDirectoryInode
	id, err := r.GetUint64()
	if err != nil {
		return e, err
	}
	e.Id = shardid.InodeId(id)
	owner, err := r.GetUint64()
	if err != nil {
		return e, err
	}
	e.Owner = shardid.InodeId(owner)
	now, err := r.GetInt64()
	if err != nil {
		return e, err
	}
	e.Now = shardid.TernTime(now)
	n, err := r.GetListHeader()
	if err != nil {
		return e, err
	}
	e.Info = make([]schema.DirectoryInfoEntry, n)
	for i := range e.Info {
		tag, err := r.GetUint8()
		if err != nil {
			return e, err
		}
		payload, err := r.GetShortBytes()
		if err != nil {
			return e, err
		}
		e.Info[i] = schema.DirectoryInfoEntry{Tag: tag, Payload: append([]byte{}, payload...)}
	}
	return e, nil
}

type SetDirectoryInfo struct {
	Dir  shardid.InodeId
	Info []schema.DirectoryInfoEntry
	Now  shardid.TernTime
}

func (e SetDirectoryInfo) Kind() EntryKind { return EntryKindSetDirectoryInfo }
func (e SetDirectoryInfo) encode(w *codec.Writer) {
	w.PutUint64(uint64(e.Dir))
	w.PutInt64(int64(e.Now))
	_ = w.PutListHeader(len(e.Info))
	for _, info := range e.Info {
		w.PutUint8(info.Tag)
		_ = w.PutShortBytes(info.Payload)
	}
}
func decodeSetDirectoryInfo(r *codec.Reader) (SetDirectoryInfo, error) {
	var e SetDirectoryInfo
	dir, err := r.GetUint64()
	if err != nil {
		return e, err
	}
	e.Dir = shardid.InodeId(dir)
	now, err := r.GetInt64()
	if err != nil {
		return e, err
	}
	e.Now = shardid.TernTime(now)
	n, err := r.GetListHeader()
	if err != nil {
		return e, err
	}
	e.Info = make([]schema.DirectoryInfoEntry, n)
	for i := range e.Info {
		tag, err := r.GetUint8()
		if err != nil {
			return e, err
		}
		payload, err := r.GetShortBytes()
		if err != nil {
			return e, err
		}
		e.Info[i] = schema.DirectoryInfoEntry{Tag: tag, Payload: append([]byte{}, payload...)}
	}
	return e, nil
}

type SetDirectoryOwner struct {
	Dir   shardid.InodeId
	Owner shardid.InodeId
	Now   shardid.TernTime
}

func (e SetDirectoryOwner) Kind() EntryKind { return EntryKindSetDirectoryOwner }
func (e SetDirectoryOwner) encode(w *codec.Writer) {
	w.PutUint64(uint64(e.Dir))
	w.PutUint64(uint64(e.Owner))
	w.PutInt64(int64(e.Now))
}
func decodeSetDirectoryOwner(r *codec.Reader) (SetDirectoryOwner, error) {
	var e SetDirectoryOwner
	dir, err := r.GetUint64()
	if err != nil {
		return e, err
	}
	e.Dir = shardid.InodeId(dir)
	owner, err := r.GetUint64()
	if err != nil {
		return e, err
	}
	e.Owner = shardid.InodeId(owner)
	now, err := r.GetInt64()
	if err != nil {
		return e, err
	}
	e.Now = shardid.TernTime(now)
	return e, nil
}

type RemoveDirectoryOwner struct {
	Dir shardid.InodeId
	Now shardid.TernTime
}

func (e RemoveDirectoryOwner) Kind() EntryKind { return EntryKindRemoveDirectoryOwner }
func (e RemoveDirectoryOwner) encode(w *codec.Writer) {
	w.PutUint64(uint64(e.Dir))
	w.PutInt64(int64(e.Now))
}
func decodeRemoveDirectoryOwner(r *codec.Reader) (RemoveDirectoryOwner, error) {
	var e RemoveDirectoryOwner
	dir, err := r.GetUint64()
	if err != nil {
		return e, err
	}
	e.Dir = shardid.InodeId(dir)
	now, err := r.GetInt64()
	if err != nil {
		return e, err
	}
	e.Now = shardid.TernTime(now)
	return e, nil
}

type CreateLockedCurrentEdge struct {
	Dir          shardid.InodeId
	Name         string
	Target       shardid.InodeId
	OldCreation  shardid.TernTime
	Now          shardid.TernTime
}

func (e CreateLockedCurrentEdge) Kind() EntryKind { return EntryKindCreateLockedCurrentEdge }
func (e CreateLockedCurrentEdge) encode(w *codec.Writer) {
	w.PutUint64(uint64(e.Dir))
	_ = w.PutShortString(e.Name)
	w.PutUint64(uint64(e.Target))
	w.PutInt64(int64(e.OldCreation))
	w.PutInt64(int64(e.Now))
}
func decodeCreateLockedCurrentEdge(r *codec.Reader) (CreateLockedCurrentEdge, error) {
	var e CreateLockedCurrentEdge
	dir, err := r.GetUint64()
	if err != nil {
		return e, err
	}
	e.Dir = shardid.InodeId(dir)
	if e.Name, err = r.GetShortString(); err != nil {
		return e, err
	}
	target, err := r.GetUint64()
	if err != nil {
		return e, err
	}
	e.Target = shardid.InodeId(target)
	oc, err := r.GetInt64()
	if err != nil {
		return e, err
	}
	e.OldCreation = shardid.TernTime(oc)
	now, err := r.GetInt64()
	if err != nil {
		return e, err
	}
	e.Now = shardid.TernTime(now)
	return e, nil
}

type LockCurrentEdge struct {
	Dir  shardid.InodeId
	Name string
	Now  shardid.TernTime
}

func (e LockCurrentEdge) Kind() EntryKind { return EntryKindLockCurrentEdge }
func (e LockCurrentEdge) encode(w *codec.Writer) {
	w.PutUint64(uint64(e.Dir))
	_ = w.PutShortString(e.Name)
	w.PutInt64(int64(e.Now))
}
func decodeLockCurrentEdge(r *codec.Reader) (LockCurrentEdge, error) {
	var e LockCurrentEdge
	dir, err := r.GetUint64()
	if err != nil {
		return e, err
	}
	e.Dir = shardid.InodeId(dir)
	if e.Name, err = r.GetShortString(); err != nil {
		return e, err
	}
	now, err := r.GetInt64()
	if err != nil {
		return e, err
	}
	e.Now = shardid.TernTime(now)
	return e, nil
}

type UnlockCurrentEdge struct {
	Dir          shardid.InodeId
	Name         string
	Target       shardid.InodeId
	CreationTime shardid.TernTime
	Now          shardid.TernTime
}

func (e UnlockCurrentEdge) Kind() EntryKind { return EntryKindUnlockCurrentEdge }
func (e UnlockCurrentEdge) encode(w *codec.Writer) {
	w.PutUint64(uint64(e.Dir))
	_ = w.PutShortString(e.Name)
	w.PutUint64(uint64(e.Target))
	w.PutInt64(int64(e.CreationTime))
	w.PutInt64(int64(e.Now))
}
func decodeUnlockCurrentEdge(r *codec.Reader) (UnlockCurrentEdge, error) {
	var e UnlockCurrentEdge
	dir, err := r.GetUint64()
	if err != nil {
		return e, err
	}
	e.Dir = shardid.InodeId(dir)
	if e.Name, err = r.GetShortString(); err != nil {
		return e, err
	}
	target, err := r.GetUint64()
	if err != nil {
		return e, err
	}
	e.Target = shardid.InodeId(target)
	ct, err := r.GetInt64()
	if err != nil {
		return e, err
	}
	e.CreationTime = shardid.TernTime(ct)
	now, err := r.GetInt64()
	if err != nil {
		return e, err
	}
	e.Now = shardid.TernTime(now)
	return e, nil
}

type SoftUnlinkFile struct {
	Dir               shardid.InodeId
	Name              string
	Target            shardid.InodeId
	CreationTime      shardid.TernTime
	TransferOwnership bool
	Now               shardid.TernTime
}

func (e SoftUnlinkFile) Kind() EntryKind { return EntryKindSoftUnlinkFile }
func (e SoftUnlinkFile) encode(w *codec.Writer) {
	w.PutUint64(uint64(e.Dir))
	_ = w.PutShortString(e.Name)
	w.PutUint64(uint64(e.Target))
	w.PutInt64(int64(e.CreationTime))
	flag := uint8(0)
	if e.TransferOwnership {
		flag = 1
	}
	w.PutUint8(flag)
	w.PutInt64(int64(e.Now))
}
func decodeSoftUnlinkFile(r *codec.Reader) (SoftUnlinkFile, error) {
	var e SoftUnlinkFile
	dir, err := r.GetUint64()
	if err != nil {
		return e, err
	}
	e.Dir = shardid.InodeId(dir)
	if e.Name, err = r.GetShortString(); err != nil {
		return e, err
	}
	target, err := r.GetUint64()
	if err != nil {
		return e, err
	}
	e.Target = shardid.InodeId(target)
	ct, err := r.GetInt64()
	if err != nil {
		return e, err
	}
	e.CreationTime = shardid.TernTime(ct)
	flag, err := r.GetUint8()
	if err != nil {
		return e, err
	}
	e.TransferOwnership = flag != 0
	now, err := r.GetInt64()
	if err != nil {
		return e, err
	}
	e.Now = shardid.TernTime(now)
	return e, nil
}

// SetTime uses the high bit of each field as a "set this field" flag,
// per §4.3's housekeeping section.
type SetTime struct {
	Id        shardid.InodeId
	AtimeSet  bool
	Atime     shardid.TernTime
	MtimeSet  bool
	Mtime     shardid.TernTime
}

func (e SetTime) Kind() EntryKind { return EntryKindSetTime }
func (e SetTime) encode(w *codec.Writer) {
	w.PutUint64(uint64(e.Id))
	w.PutInt64(int64(packSetFlag(e.AtimeSet, e.Atime)))
	w.PutInt64(int64(packSetFlag(e.MtimeSet, e.Mtime)))
}
func packSetFlag(set bool, t shardid.TernTime) shardid.TernTime {
	if !set {
		return t
	}
	return t | (-1 << 63)
}
func unpackSetFlag(v int64) (bool, shardid.TernTime) {
	set := v < 0
	return set, shardid.TernTime(v &^ (-1 << 63))
}
func decodeSetTime(r *codec.Reader) (SetTime, error) {
	var e SetTime
	id, err := r.GetUint64()
	if err != nil {
		return e, err
	}
	e.Id = shardid.InodeId(id)
	a, err := r.GetInt64()
	if err != nil {
		return e, err
	}
	e.AtimeSet, e.Atime = unpackSetFlag(a)
	m, err := r.GetInt64()
	if err != nil {
		return e, err
	}
	e.MtimeSet, e.Mtime = unpackSetFlag(m)
	return e, nil
}

type RemoveOwnedSnapshotFileEdge struct {
	Dir          shardid.InodeId
	Name         string
	CreationTime shardid.TernTime
}

func (e RemoveOwnedSnapshotFileEdge) Kind() EntryKind { return EntryKindRemoveOwnedSnapshotFileEdge }
func (e RemoveOwnedSnapshotFileEdge) encode(w *codec.Writer) {
	w.PutUint64(uint64(e.Dir))
	_ = w.PutShortString(e.Name)
	w.PutInt64(int64(e.CreationTime))
}
func decodeRemoveOwnedSnapshotFileEdge(r *codec.Reader) (RemoveOwnedSnapshotFileEdge, error) {
	var e RemoveOwnedSnapshotFileEdge
	dir, err := r.GetUint64()
	if err != nil {
		return e, err
	}
	e.Dir = shardid.InodeId(dir)
	if e.Name, err = r.GetShortString(); err != nil {
		return e, err
	}
	ct, err := r.GetInt64()
	if err != nil {
		return e, err
	}
	e.CreationTime = shardid.TernTime(ct)
	return e, nil
}

type RemoveNonOwnedEdge struct {
	Dir          shardid.InodeId
	Name         string
	CreationTime shardid.TernTime
}

func (e RemoveNonOwnedEdge) Kind() EntryKind { return EntryKindRemoveNonOwnedEdge }
func (e RemoveNonOwnedEdge) encode(w *codec.Writer) {
	w.PutUint64(uint64(e.Dir))
	_ = w.PutShortString(e.Name)
	w.PutInt64(int64(e.CreationTime))
}
func decodeRemoveNonOwnedEdge(r *codec.Reader) (RemoveNonOwnedEdge, error) {
	var e RemoveNonOwnedEdge
	dir, err := r.GetUint64()
	if err != nil {
		return e, err
	}
	e.Dir = shardid.InodeId(dir)
	if e.Name, err = r.GetShortString(); err != nil {
		return e, err
	}
	ct, err := r.GetInt64()
	if err != nil {
		return e, err
	}
	e.CreationTime = shardid.TernTime(ct)
	return e, nil
}

// RemoveZeroBlockServiceFiles sweeps at most 1000 reverse-index entries
// per call starting at (StartBlockService, StartFile).
type RemoveZeroBlockServiceFiles struct {
	StartBlockService shardid.BlockServiceId
	StartFile         shardid.InodeId
}

func (e RemoveZeroBlockServiceFiles) Kind() EntryKind { return EntryKindRemoveZeroBlockServiceFiles }
func (e RemoveZeroBlockServiceFiles) encode(w *codec.Writer) {
	w.PutUint64(uint64(e.StartBlockService))
	w.PutUint64(uint64(e.StartFile))
}
func decodeRemoveZeroBlockServiceFiles(r *codec.Reader) (RemoveZeroBlockServiceFiles, error) {
	var e RemoveZeroBlockServiceFiles
	bs, err := r.GetUint64()
	if err != nil {
		return e, err
	}
	e.StartBlockService = shardid.BlockServiceId(bs)
	f, err := r.GetUint64()
	if err != nil {
		return e, err
	}
	e.StartFile = shardid.InodeId(f)
	return e, nil
}

// MoveSpan relocates a span from one offset of a file to another,
// representative of the "structurally similar rearrangement" family
// described in §4.3 alongside swap-blocks/swap-spans.
type MoveSpan struct {
	File      shardid.InodeId
	SrcOffset uint64
	DstOffset uint64
}

func (e MoveSpan) Kind() EntryKind { return EntryKindMoveSpan }
func (e MoveSpan) encode(w *codec.Writer) {
	w.PutUint64(uint64(e.File))
	w.PutUint64(e.SrcOffset)
	w.PutUint64(e.DstOffset)
}
func decodeMoveSpan(r *codec.Reader) (MoveSpan, error) {
	var e MoveSpan
	f, err := r.GetUint64()
	if err != nil {
		return e, err
	}
	e.File = shardid.InodeId(f)
	if e.SrcOffset, err = r.GetUint64(); err != nil {
		return e, err
	}
	if e.DstOffset, err = r.GetUint64(); err != nil {
		return e, err
	}
	return e, nil
}

// SwapBlocks exchanges one block each between two spans belonging to
// (usually) different files, the other member of the "structurally
// similar rearrangement" family alongside move-span and swap-spans.
type SwapBlocks struct {
	File1    shardid.InodeId
	Offset1  uint64
	BlockId1 shardid.BlockId
	File2    shardid.InodeId
	Offset2  uint64
	BlockId2 shardid.BlockId
}

func (e SwapBlocks) Kind() EntryKind { return EntryKindSwapBlocks }
func (e SwapBlocks) encode(w *codec.Writer) {
	w.PutUint64(uint64(e.File1))
	w.PutUint64(e.Offset1)
	w.PutUint64(uint64(e.BlockId1))
	w.PutUint64(uint64(e.File2))
	w.PutUint64(e.Offset2)
	w.PutUint64(uint64(e.BlockId2))
}
func decodeSwapBlocks(r *codec.Reader) (SwapBlocks, error) {
	var e SwapBlocks
	f1, err := r.GetUint64()
	if err != nil {
		return e, err
	}
	e.File1 = shardid.InodeId(f1)
	if e.Offset1, err = r.GetUint64(); err != nil {
		return e, err
	}
	b1, err := r.GetUint64()
	if err != nil {
		return e, err
	}
	e.BlockId1 = shardid.BlockId(b1)
	f2, err := r.GetUint64()
	if err != nil {
		return e, err
	}
	e.File2 = shardid.InodeId(f2)
	if e.Offset2, err = r.GetUint64(); err != nil {
		return e, err
	}
	b2, err := r.GetUint64()
	if err != nil {
		return e, err
	}
	e.BlockId2 = shardid.BlockId(b2)
	return e, nil
}

// SwapSpans exchanges two whole spans between two files. Blocks1/Blocks2
// carry the block ids the caller expects to find in span1/span2
// respectively at prepare time, letting the handler tell "not yet
// applied" apart from "already applied" without re-deriving intent from
// the swapped state alone.
type SwapSpans struct {
	File1   shardid.InodeId
	Offset1 uint64
	Blocks1 []shardid.BlockId
	File2   shardid.InodeId
	Offset2 uint64
	Blocks2 []shardid.BlockId
}

func (e SwapSpans) Kind() EntryKind { return EntryKindSwapSpans }
func (e SwapSpans) encode(w *codec.Writer) {
	w.PutUint64(uint64(e.File1))
	w.PutUint64(e.Offset1)
	_ = w.PutListHeader(len(e.Blocks1))
	for _, b := range e.Blocks1 {
		w.PutUint64(uint64(b))
	}
	w.PutUint64(uint64(e.File2))
	w.PutUint64(e.Offset2)
	_ = w.PutListHeader(len(e.Blocks2))
	for _, b := range e.Blocks2 {
		w.PutUint64(uint64(b))
	}
}
func decodeSwapSpans(r *codec.Reader) (SwapSpans, error) {
	var e SwapSpans
	f1, err := r.GetUint64()
	if err != nil {
		return e, err
	}
	e.File1 = shardid.InodeId(f1)
	if e.Offset1, err = r.GetUint64(); err != nil {
		return e, err
	}
	n1, err := r.GetListHeader()
	if err != nil {
		return e, err
	}
	e.Blocks1 = make([]shardid.BlockId, n1)
	for i := range e.Blocks1 {
		v, err := r.GetUint64()
		if err != nil {
			return e, err
		}
		e.Blocks1[i] = shardid.BlockId(v)
	}
	f2, err := r.GetUint64()
	if err != nil {
		return e, err
	}
	e.File2 = shardid.InodeId(f2)
	if e.Offset2, err = r.GetUint64(); err != nil {
		return e, err
	}
	n2, err := r.GetListHeader()
	if err != nil {
		return e, err
	}
	e.Blocks2 = make([]shardid.BlockId, n2)
	for i := range e.Blocks2 {
		v, err := r.GetUint64()
		if err != nil {
			return e, err
		}
		e.Blocks2[i] = shardid.BlockId(v)
	}
	return e, nil
}
