package applypath

import (
	"github.com/shardfs/shard/pkg/shardid"
)

// Response is the successful result of applying one entry. Each handler
// returns a concrete type; callers that need to serialize it back to a
// caller switch on the concrete type the same way they switch on Entry.
type Response interface{ isResponse() }

type ConstructFileResponse struct {
	Id     shardid.InodeId
	Cookie [8]byte
}

func (ConstructFileResponse) isResponse() {}

type LinkFileResponse struct{ CreationTime shardid.TernTime }

func (LinkFileResponse) isResponse() {}

type OkResponse struct{}

func (OkResponse) isResponse() {}

type AddSpanAtLocationInitiateResponse struct {
	BlockIds []shardid.BlockId
}

func (AddSpanAtLocationInitiateResponse) isResponse() {}

type RemoveSpanInitiateResponse struct {
	EraseCertificates [][8]byte
}

func (RemoveSpanInitiateResponse) isResponse() {}

type CreateCurrentEdgeResponse struct{ CreationTime shardid.TernTime }

func (CreateCurrentEdgeResponse) isResponse() {}

type RemoveZeroBlockServiceFilesResponse struct {
	NextBlockService shardid.BlockServiceId
	NextFile         shardid.InodeId
	Done             bool
}

func (RemoveZeroBlockServiceFilesResponse) isResponse() {}
