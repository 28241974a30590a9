// Copyright 2023 The CubeFS Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or
// implied. See the License for the specific language governing
// permissions and limitations under the License.

package wire

import "github.com/fleetfs/fleetfs/errorcode"

// RequestTag identifies a GenericRequest variant on the wire, per
// spec.md §6. There is no dynamic dispatch requirement per spec.md
// §9 "Tagged variants, not subclassing" — the state machine and
// router switch on this byte.
type RequestTag uint8

const (
	TagGetattrRequest RequestTag = iota + 1
	TagReadRequest
	TagReadRawRequest
	TagReaddirRequest
	TagLookupRequest
	TagGetXattrRequest
	TagListXattrsRequest
	TagFilesystemChecksumRequest
	TagFilesystemCheckRequest
	TagFilesystemReadyRequest
	TagFilesystemInformationRequest
	TagLatestCommitRequest
	TagRaftGroupLeaderRequest

	TagWriteRequest
	TagTruncateRequest
	TagFsyncRequest
	TagChmodRequest
	TagChownRequest
	TagUtimensRequest
	TagSetXattrRequest
	TagRemoveXattrRequest
	TagMkdirRequest
	TagCreateRequest
	TagUnlinkRequest
	TagRmdirRequest
	TagRenameRequest
	TagHardlinkRequest

	TagCreateInodeRequest
	TagCreateLinkRequest
	TagReplaceLinkRequest
	TagRemoveLinkRequest
	TagDecrementInodeRequest
	TagHardlinkIncrementRequest
	TagHardlinkRollbackRequest
	TagUpdateParentRequest
	TagUpdateMetadataChangedTimeRequest
	TagLockRequest
	TagUnlockRequest

	TagRaftRequest
)

// Request is implemented by every GenericRequest variant.
type Request interface {
	Tag() RequestTag
	Encode(e *Encoder)
}

// IsReadOnly reports whether a request can be served directly by a
// leader without going through the consensus log, per spec.md §4.3.
func IsReadOnly(tag RequestTag) bool {
	switch tag {
	case TagGetattrRequest, TagReadRequest, TagReadRawRequest, TagReaddirRequest,
		TagLookupRequest, TagGetXattrRequest, TagListXattrsRequest,
		TagFilesystemChecksumRequest, TagFilesystemCheckRequest, TagFilesystemReadyRequest,
		TagFilesystemInformationRequest, TagLatestCommitRequest, TagRaftGroupLeaderRequest:
		return true
	}
	return false
}

// --- read-only requests ---

type GetattrRequest struct {
	Ino            uint64
	RequiredCommit *CommitID
}

func (r GetattrRequest) Tag() RequestTag { return TagGetattrRequest }
func (r GetattrRequest) Encode(e *Encoder) {
	e.PutUint64(r.Ino)
	encodeOptCommit(e, r.RequiredCommit)
}
func decodeGetattrRequest(d *Decoder) GetattrRequest {
	return GetattrRequest{Ino: d.Uint64(), RequiredCommit: decodeOptCommit(d)}
}

type ReadRequest struct {
	Ino            uint64
	Offset         uint64
	ReadSize       uint32
	RequiredCommit *CommitID
}

func (r ReadRequest) Tag() RequestTag { return TagReadRequest }
func (r ReadRequest) Encode(e *Encoder) {
	e.PutUint64(r.Ino)
	e.PutUint64(r.Offset)
	e.PutUint32(r.ReadSize)
	encodeOptCommit(e, r.RequiredCommit)
}
func decodeReadRequest(d *Decoder) ReadRequest {
	return ReadRequest{Ino: d.Uint64(), Offset: d.Uint64(), ReadSize: d.Uint32(), RequiredCommit: decodeOptCommit(d)}
}

// ReadRawRequest reads only locally-resident blocks (no forwarding to
// the owning rgroup if misrouted), per spec.md §6.
type ReadRawRequest struct {
	Ino            uint64
	Offset         uint64
	ReadSize       uint32
	RequiredCommit *CommitID
}

func (r ReadRawRequest) Tag() RequestTag { return TagReadRawRequest }
func (r ReadRawRequest) Encode(e *Encoder) {
	e.PutUint64(r.Ino)
	e.PutUint64(r.Offset)
	e.PutUint32(r.ReadSize)
	encodeOptCommit(e, r.RequiredCommit)
}
func decodeReadRawRequest(d *Decoder) ReadRawRequest {
	return ReadRawRequest{Ino: d.Uint64(), Offset: d.Uint64(), ReadSize: d.Uint32(), RequiredCommit: decodeOptCommit(d)}
}

type ReaddirRequest struct {
	Ino            uint64
	RequiredCommit *CommitID
}

func (r ReaddirRequest) Tag() RequestTag { return TagReaddirRequest }
func (r ReaddirRequest) Encode(e *Encoder) {
	e.PutUint64(r.Ino)
	encodeOptCommit(e, r.RequiredCommit)
}
func decodeReaddirRequest(d *Decoder) ReaddirRequest {
	return ReaddirRequest{Ino: d.Uint64(), RequiredCommit: decodeOptCommit(d)}
}

type LookupRequest struct {
	Parent         uint64
	Name           string
	RequiredCommit *CommitID
}

func (r LookupRequest) Tag() RequestTag { return TagLookupRequest }
func (r LookupRequest) Encode(e *Encoder) {
	e.PutUint64(r.Parent)
	e.PutString(r.Name)
	encodeOptCommit(e, r.RequiredCommit)
}
func decodeLookupRequest(d *Decoder) LookupRequest {
	return LookupRequest{Parent: d.Uint64(), Name: d.String(), RequiredCommit: decodeOptCommit(d)}
}

type GetXattrRequest struct {
	Ino            uint64
	Key            string
	RequiredCommit *CommitID
}

func (r GetXattrRequest) Tag() RequestTag { return TagGetXattrRequest }
func (r GetXattrRequest) Encode(e *Encoder) {
	e.PutUint64(r.Ino)
	e.PutString(r.Key)
	encodeOptCommit(e, r.RequiredCommit)
}
func decodeGetXattrRequest(d *Decoder) GetXattrRequest {
	return GetXattrRequest{Ino: d.Uint64(), Key: d.String(), RequiredCommit: decodeOptCommit(d)}
}

type ListXattrsRequest struct {
	Ino            uint64
	RequiredCommit *CommitID
}

func (r ListXattrsRequest) Tag() RequestTag { return TagListXattrsRequest }
func (r ListXattrsRequest) Encode(e *Encoder) {
	e.PutUint64(r.Ino)
	encodeOptCommit(e, r.RequiredCommit)
}
func decodeListXattrsRequest(d *Decoder) ListXattrsRequest {
	return ListXattrsRequest{Ino: d.Uint64(), RequiredCommit: decodeOptCommit(d)}
}

type FilesystemChecksumRequest struct{ Rgroup uint16 }

func (r FilesystemChecksumRequest) Tag() RequestTag   { return TagFilesystemChecksumRequest }
func (r FilesystemChecksumRequest) Encode(e *Encoder) { e.PutUint32(uint32(r.Rgroup)) }
func decodeFilesystemChecksumRequest(d *Decoder) FilesystemChecksumRequest {
	return FilesystemChecksumRequest{Rgroup: uint16(d.Uint32())}
}

type FilesystemCheckRequest struct{ Rgroup uint16 }

func (r FilesystemCheckRequest) Tag() RequestTag   { return TagFilesystemCheckRequest }
func (r FilesystemCheckRequest) Encode(e *Encoder) { e.PutUint32(uint32(r.Rgroup)) }
func decodeFilesystemCheckRequest(d *Decoder) FilesystemCheckRequest {
	return FilesystemCheckRequest{Rgroup: uint16(d.Uint32())}
}

type FilesystemReadyRequest struct{}

func (r FilesystemReadyRequest) Tag() RequestTag     { return TagFilesystemReadyRequest }
func (r FilesystemReadyRequest) Encode(e *Encoder)   {}
func decodeFilesystemReadyRequest(d *Decoder) FilesystemReadyRequest { return FilesystemReadyRequest{} }

type FilesystemInformationRequest struct{}

func (r FilesystemInformationRequest) Tag() RequestTag   { return TagFilesystemInformationRequest }
func (r FilesystemInformationRequest) Encode(e *Encoder) {}
func decodeFilesystemInformationRequest(d *Decoder) FilesystemInformationRequest {
	return FilesystemInformationRequest{}
}

type LatestCommitRequest struct{ Rgroup uint16 }

func (r LatestCommitRequest) Tag() RequestTag   { return TagLatestCommitRequest }
func (r LatestCommitRequest) Encode(e *Encoder) { e.PutUint32(uint32(r.Rgroup)) }
func decodeLatestCommitRequest(d *Decoder) LatestCommitRequest {
	return LatestCommitRequest{Rgroup: uint16(d.Uint32())}
}

type RaftGroupLeaderRequest struct{ Rgroup uint16 }

func (r RaftGroupLeaderRequest) Tag() RequestTag   { return TagRaftGroupLeaderRequest }
func (r RaftGroupLeaderRequest) Encode(e *Encoder) { e.PutUint32(uint32(r.Rgroup)) }
func decodeRaftGroupLeaderRequest(d *Decoder) RaftGroupLeaderRequest {
	return RaftGroupLeaderRequest{Rgroup: uint16(d.Uint32())}
}

// --- mutating user-level requests ---

type WriteRequest struct {
	Ino    uint64
	Offset uint64
	Data   []byte
}

func (r WriteRequest) Tag() RequestTag { return TagWriteRequest }
func (r WriteRequest) Encode(e *Encoder) {
	e.PutUint64(r.Ino)
	e.PutUint64(r.Offset)
	e.PutBytes(r.Data)
}
func decodeWriteRequest(d *Decoder) WriteRequest {
	return WriteRequest{Ino: d.Uint64(), Offset: d.Uint64(), Data: d.Bytes()}
}

type TruncateRequest struct {
	Ino    uint64
	NewLen uint64
}

func (r TruncateRequest) Tag() RequestTag   { return TagTruncateRequest }
func (r TruncateRequest) Encode(e *Encoder) { e.PutUint64(r.Ino); e.PutUint64(r.NewLen) }
func decodeTruncateRequest(d *Decoder) TruncateRequest {
	return TruncateRequest{Ino: d.Uint64(), NewLen: d.Uint64()}
}

type FsyncRequest struct{ Ino uint64 }

func (r FsyncRequest) Tag() RequestTag   { return TagFsyncRequest }
func (r FsyncRequest) Encode(e *Encoder) { e.PutUint64(r.Ino) }
func decodeFsyncRequest(d *Decoder) FsyncRequest {
	return FsyncRequest{Ino: d.Uint64()}
}

type ChmodRequest struct {
	Ino  uint64
	Mode uint32
}

func (r ChmodRequest) Tag() RequestTag   { return TagChmodRequest }
func (r ChmodRequest) Encode(e *Encoder) { e.PutUint64(r.Ino); e.PutUint32(r.Mode) }
func decodeChmodRequest(d *Decoder) ChmodRequest {
	return ChmodRequest{Ino: d.Uint64(), Mode: d.Uint32()}
}

type ChownRequest struct {
	Ino uint64
	Uid *uint32
	Gid *uint32
}

func (r ChownRequest) Tag() RequestTag { return TagChownRequest }
func (r ChownRequest) Encode(e *Encoder) {
	e.PutUint64(r.Ino)
	e.PutOptUint32(r.Uid)
	e.PutOptUint32(r.Gid)
}
func decodeChownRequest(d *Decoder) ChownRequest {
	return ChownRequest{Ino: d.Uint64(), Uid: d.OptUint32(), Gid: d.OptUint32()}
}

type UtimensRequest struct {
	Ino   uint64
	Atime *Timestamp
	Mtime *Timestamp
}

func (r UtimensRequest) Tag() RequestTag { return TagUtimensRequest }
func (r UtimensRequest) Encode(e *Encoder) {
	e.PutUint64(r.Ino)
	encodeOptTimestamp(e, r.Atime)
	encodeOptTimestamp(e, r.Mtime)
}
func decodeUtimensRequest(d *Decoder) UtimensRequest {
	return UtimensRequest{Ino: d.Uint64(), Atime: decodeOptTimestamp(d), Mtime: decodeOptTimestamp(d)}
}

// SetXattrRequest.Uid is the calling process's uid, checked against
// Key's namespace at apply time, per spec.md §3: "access to non-user
// namespaces is permitted only to uid 0."
type SetXattrRequest struct {
	Ino   uint64
	Key   string
	Value []byte
	Uid   uint32
}

func (r SetXattrRequest) Tag() RequestTag { return TagSetXattrRequest }
func (r SetXattrRequest) Encode(e *Encoder) {
	e.PutUint64(r.Ino)
	e.PutString(r.Key)
	e.PutBytes(r.Value)
	e.PutUint32(r.Uid)
}
func decodeSetXattrRequest(d *Decoder) SetXattrRequest {
	return SetXattrRequest{Ino: d.Uint64(), Key: d.String(), Value: d.Bytes(), Uid: d.Uint32()}
}

type RemoveXattrRequest struct {
	Ino uint64
	Key string
	Uid uint32
}

func (r RemoveXattrRequest) Tag() RequestTag { return TagRemoveXattrRequest }
func (r RemoveXattrRequest) Encode(e *Encoder) {
	e.PutUint64(r.Ino)
	e.PutString(r.Key)
	e.PutUint32(r.Uid)
}
func decodeRemoveXattrRequest(d *Decoder) RemoveXattrRequest {
	return RemoveXattrRequest{Ino: d.Uint64(), Key: d.String(), Uid: d.Uint32()}
}

type MkdirRequest struct {
	Parent uint64
	Name   string
	Mode   uint32
	Uid    uint32
	Gid    uint32
}

func (r MkdirRequest) Tag() RequestTag { return TagMkdirRequest }
func (r MkdirRequest) Encode(e *Encoder) {
	e.PutUint64(r.Parent)
	e.PutString(r.Name)
	e.PutUint32(r.Mode)
	e.PutUint32(r.Uid)
	e.PutUint32(r.Gid)
}
func decodeMkdirRequest(d *Decoder) MkdirRequest {
	return MkdirRequest{Parent: d.Uint64(), Name: d.String(), Mode: d.Uint32(), Uid: d.Uint32(), Gid: d.Uint32()}
}

type CreateRequest struct {
	Parent uint64
	Name   string
	Mode   uint32
	Uid    uint32
	Gid    uint32
	Kind   InodeKind
}

func (r CreateRequest) Tag() RequestTag { return TagCreateRequest }
func (r CreateRequest) Encode(e *Encoder) {
	e.PutUint64(r.Parent)
	e.PutString(r.Name)
	e.PutUint32(r.Mode)
	e.PutUint32(r.Uid)
	e.PutUint32(r.Gid)
	e.PutUint8(uint8(r.Kind))
}
func decodeCreateRequest(d *Decoder) CreateRequest {
	return CreateRequest{
		Parent: d.Uint64(), Name: d.String(), Mode: d.Uint32(), Uid: d.Uint32(), Gid: d.Uint32(),
		Kind: InodeKind(d.Uint8()),
	}
}

type UnlinkRequest struct {
	Parent uint64
	Name   string
}

func (r UnlinkRequest) Tag() RequestTag   { return TagUnlinkRequest }
func (r UnlinkRequest) Encode(e *Encoder) { e.PutUint64(r.Parent); e.PutString(r.Name) }
func decodeUnlinkRequest(d *Decoder) UnlinkRequest {
	return UnlinkRequest{Parent: d.Uint64(), Name: d.String()}
}

type RmdirRequest struct {
	Parent uint64
	Name   string
}

func (r RmdirRequest) Tag() RequestTag   { return TagRmdirRequest }
func (r RmdirRequest) Encode(e *Encoder) { e.PutUint64(r.Parent); e.PutString(r.Name) }
func decodeRmdirRequest(d *Decoder) RmdirRequest {
	return RmdirRequest{Parent: d.Uint64(), Name: d.String()}
}

type RenameRequest struct {
	Parent    uint64
	Name      string
	NewParent uint64
	NewName   string
}

func (r RenameRequest) Tag() RequestTag { return TagRenameRequest }
func (r RenameRequest) Encode(e *Encoder) {
	e.PutUint64(r.Parent)
	e.PutString(r.Name)
	e.PutUint64(r.NewParent)
	e.PutString(r.NewName)
}
func decodeRenameRequest(d *Decoder) RenameRequest {
	return RenameRequest{Parent: d.Uint64(), Name: d.String(), NewParent: d.Uint64(), NewName: d.String()}
}

type HardlinkRequest struct {
	Ino       uint64
	NewParent uint64
	NewName   string
}

func (r HardlinkRequest) Tag() RequestTag { return TagHardlinkRequest }
func (r HardlinkRequest) Encode(e *Encoder) {
	e.PutUint64(r.Ino)
	e.PutUint64(r.NewParent)
	e.PutString(r.NewName)
}
func decodeHardlinkRequest(d *Decoder) HardlinkRequest {
	return HardlinkRequest{Ino: d.Uint64(), NewParent: d.Uint64(), NewName: d.String()}
}

// --- internal transaction primitives (spec.md §4.6, §6) ---

type CreateInodeRequest struct {
	Mode uint32
	Uid  uint32
	Gid  uint32
	Kind InodeKind
	Rdev uint32
}

func (r CreateInodeRequest) Tag() RequestTag { return TagCreateInodeRequest }
func (r CreateInodeRequest) Encode(e *Encoder) {
	e.PutUint32(r.Mode)
	e.PutUint32(r.Uid)
	e.PutUint32(r.Gid)
	e.PutUint8(uint8(r.Kind))
	e.PutUint32(r.Rdev)
}
func decodeCreateInodeRequest(d *Decoder) CreateInodeRequest {
	return CreateInodeRequest{Mode: d.Uint32(), Uid: d.Uint32(), Gid: d.Uint32(), Kind: InodeKind(d.Uint8()), Rdev: d.Uint32()}
}

type CreateLinkRequest struct {
	Parent uint64
	Name   string
	Ino    uint64
	Kind   InodeKind
	LockID *uint64
}

func (r CreateLinkRequest) Tag() RequestTag { return TagCreateLinkRequest }
func (r CreateLinkRequest) Encode(e *Encoder) {
	e.PutUint64(r.Parent)
	e.PutString(r.Name)
	e.PutUint64(r.Ino)
	e.PutUint8(uint8(r.Kind))
	e.PutOptUint64(r.LockID)
}
func decodeCreateLinkRequest(d *Decoder) CreateLinkRequest {
	return CreateLinkRequest{Parent: d.Uint64(), Name: d.String(), Ino: d.Uint64(), Kind: InodeKind(d.Uint8()), LockID: d.OptUint64()}
}

type ReplaceLinkRequest struct {
	Parent uint64
	Name   string
	NewIno uint64
	Kind   InodeKind
	LockID *uint64
}

func (r ReplaceLinkRequest) Tag() RequestTag { return TagReplaceLinkRequest }
func (r ReplaceLinkRequest) Encode(e *Encoder) {
	e.PutUint64(r.Parent)
	e.PutString(r.Name)
	e.PutUint64(r.NewIno)
	e.PutUint8(uint8(r.Kind))
	e.PutOptUint64(r.LockID)
}
func decodeReplaceLinkRequest(d *Decoder) ReplaceLinkRequest {
	return ReplaceLinkRequest{Parent: d.Uint64(), Name: d.String(), NewIno: d.Uint64(), Kind: InodeKind(d.Uint8()), LockID: d.OptUint64()}
}

type RemoveLinkRequest struct {
	Parent uint64
	Name   string
	LockID *uint64
}

func (r RemoveLinkRequest) Tag() RequestTag { return TagRemoveLinkRequest }
func (r RemoveLinkRequest) Encode(e *Encoder) {
	e.PutUint64(r.Parent)
	e.PutString(r.Name)
	e.PutOptUint64(r.LockID)
}
func decodeRemoveLinkRequest(d *Decoder) RemoveLinkRequest {
	return RemoveLinkRequest{Parent: d.Uint64(), Name: d.String(), LockID: d.OptUint64()}
}

// DecrementInodeRequest is not idempotent, per spec.md §9; FencingToken
// is the caller-supplied token (minted per call by the coordinator's
// nextToken, not a lock_id) the apply loop
// uses to deduplicate a retried propose, per the corresponding open
// question's recommendation.
type DecrementInodeRequest struct {
	Ino          uint64
	N            uint32
	FencingToken uint64
}

func (r DecrementInodeRequest) Tag() RequestTag { return TagDecrementInodeRequest }
func (r DecrementInodeRequest) Encode(e *Encoder) {
	e.PutUint64(r.Ino)
	e.PutUint32(r.N)
	e.PutUint64(r.FencingToken)
}
func decodeDecrementInodeRequest(d *Decoder) DecrementInodeRequest {
	return DecrementInodeRequest{Ino: d.Uint64(), N: d.Uint32(), FencingToken: d.Uint64()}
}

type HardlinkIncrementRequest struct {
	Ino          uint64
	FencingToken uint64
}

func (r HardlinkIncrementRequest) Tag() RequestTag { return TagHardlinkIncrementRequest }
func (r HardlinkIncrementRequest) Encode(e *Encoder) {
	e.PutUint64(r.Ino)
	e.PutUint64(r.FencingToken)
}
func decodeHardlinkIncrementRequest(d *Decoder) HardlinkIncrementRequest {
	return HardlinkIncrementRequest{Ino: d.Uint64(), FencingToken: d.Uint64()}
}

type HardlinkRollbackRequest struct {
	Ino                  uint64
	PrevLastModifiedTime Timestamp
	FencingToken         uint64
}

func (r HardlinkRollbackRequest) Tag() RequestTag { return TagHardlinkRollbackRequest }
func (r HardlinkRollbackRequest) Encode(e *Encoder) {
	e.PutUint64(r.Ino)
	r.PrevLastModifiedTime.Encode(e)
	e.PutUint64(r.FencingToken)
}
func decodeHardlinkRollbackRequest(d *Decoder) HardlinkRollbackRequest {
	return HardlinkRollbackRequest{Ino: d.Uint64(), PrevLastModifiedTime: DecodeTimestamp(d), FencingToken: d.Uint64()}
}

// UpdateParentRequest fixes a moved directory's ".." pointer, per
// spec.md §4.6.4 step 4.
type UpdateParentRequest struct {
	Ino       uint64
	NewParent uint64
	LockID    *uint64
}

func (r UpdateParentRequest) Tag() RequestTag { return TagUpdateParentRequest }
func (r UpdateParentRequest) Encode(e *Encoder) {
	e.PutUint64(r.Ino)
	e.PutUint64(r.NewParent)
	e.PutOptUint64(r.LockID)
}
func decodeUpdateParentRequest(d *Decoder) UpdateParentRequest {
	return UpdateParentRequest{Ino: d.Uint64(), NewParent: d.Uint64(), LockID: d.OptUint64()}
}

type UpdateMetadataChangedTimeRequest struct {
	Ino    uint64
	Ctime  Timestamp
	LockID *uint64
}

func (r UpdateMetadataChangedTimeRequest) Tag() RequestTag {
	return TagUpdateMetadataChangedTimeRequest
}
func (r UpdateMetadataChangedTimeRequest) Encode(e *Encoder) {
	e.PutUint64(r.Ino)
	r.Ctime.Encode(e)
	e.PutOptUint64(r.LockID)
}
func decodeUpdateMetadataChangedTimeRequest(d *Decoder) UpdateMetadataChangedTimeRequest {
	return UpdateMetadataChangedTimeRequest{Ino: d.Uint64(), Ctime: DecodeTimestamp(d), LockID: d.OptUint64()}
}

type LockRequest struct{ Ino uint64 }

func (r LockRequest) Tag() RequestTag   { return TagLockRequest }
func (r LockRequest) Encode(e *Encoder) { e.PutUint64(r.Ino) }
func decodeLockRequest(d *Decoder) LockRequest {
	return LockRequest{Ino: d.Uint64()}
}

type UnlockRequest struct {
	Ino    uint64
	LockID uint64
}

func (r UnlockRequest) Tag() RequestTag   { return TagUnlockRequest }
func (r UnlockRequest) Encode(e *Encoder) { e.PutUint64(r.Ino); e.PutUint64(r.LockID) }
func decodeUnlockRequest(d *Decoder) UnlockRequest {
	return UnlockRequest{Ino: d.Uint64(), LockID: d.Uint64()}
}

// RaftRequest carries an opaque consensus message for rgroup, per
// spec.md §4.4: "Network transport for inter-replica messages reuses
// the same framed connections as client traffic; messages are opaque
// byte strings the driver forwards."
type RaftRequest struct {
	Rgroup  uint16
	Message []byte
}

func (r RaftRequest) Tag() RequestTag { return TagRaftRequest }
func (r RaftRequest) Encode(e *Encoder) {
	e.PutUint32(uint32(r.Rgroup))
	e.PutBytes(r.Message)
}
func decodeRaftRequest(d *Decoder) RaftRequest {
	return RaftRequest{Rgroup: uint16(d.Uint32()), Message: d.Bytes()}
}

func encodeOptCommit(e *Encoder, c *CommitID) {
	if c == nil {
		e.PutBool(false)
		return
	}
	e.PutBool(true)
	c.Encode(e)
}

func decodeOptCommit(d *Decoder) *CommitID {
	if !d.Bool() {
		return nil
	}
	c := DecodeCommitID(d)
	return &c
}

// EncodeRequest serializes a tagged request body ready for framing.
func EncodeRequest(r Request) []byte {
	e := NewEncoder(64)
	e.PutUint8(uint8(r.Tag()))
	r.Encode(e)
	return e.Bytes()
}

// DecodeRequest parses a tagged request payload. Unknown variants
// report BadRequest rather than panicking, per spec.md §4.1.
func DecodeRequest(payload []byte) (Request, error) {
	if len(payload) == 0 {
		return nil, errorcode.BadRequest
	}
	d := NewDecoder(payload[1:])
	var req Request
	switch RequestTag(payload[0]) {
	case TagGetattrRequest:
		req = decodeGetattrRequest(d)
	case TagReadRequest:
		req = decodeReadRequest(d)
	case TagReadRawRequest:
		req = decodeReadRawRequest(d)
	case TagReaddirRequest:
		req = decodeReaddirRequest(d)
	case TagLookupRequest:
		req = decodeLookupRequest(d)
	case TagGetXattrRequest:
		req = decodeGetXattrRequest(d)
	case TagListXattrsRequest:
		req = decodeListXattrsRequest(d)
	case TagFilesystemChecksumRequest:
		req = decodeFilesystemChecksumRequest(d)
	case TagFilesystemCheckRequest:
		req = decodeFilesystemCheckRequest(d)
	case TagFilesystemReadyRequest:
		req = decodeFilesystemReadyRequest(d)
	case TagFilesystemInformationRequest:
		req = decodeFilesystemInformationRequest(d)
	case TagLatestCommitRequest:
		req = decodeLatestCommitRequest(d)
	case TagRaftGroupLeaderRequest:
		req = decodeRaftGroupLeaderRequest(d)
	case TagWriteRequest:
		req = decodeWriteRequest(d)
	case TagTruncateRequest:
		req = decodeTruncateRequest(d)
	case TagFsyncRequest:
		req = decodeFsyncRequest(d)
	case TagChmodRequest:
		req = decodeChmodRequest(d)
	case TagChownRequest:
		req = decodeChownRequest(d)
	case TagUtimensRequest:
		req = decodeUtimensRequest(d)
	case TagSetXattrRequest:
		req = decodeSetXattrRequest(d)
	case TagRemoveXattrRequest:
		req = decodeRemoveXattrRequest(d)
	case TagMkdirRequest:
		req = decodeMkdirRequest(d)
	case TagCreateRequest:
		req = decodeCreateRequest(d)
	case TagUnlinkRequest:
		req = decodeUnlinkRequest(d)
	case TagRmdirRequest:
		req = decodeRmdirRequest(d)
	case TagRenameRequest:
		req = decodeRenameRequest(d)
	case TagHardlinkRequest:
		req = decodeHardlinkRequest(d)
	case TagCreateInodeRequest:
		req = decodeCreateInodeRequest(d)
	case TagCreateLinkRequest:
		req = decodeCreateLinkRequest(d)
	case TagReplaceLinkRequest:
		req = decodeReplaceLinkRequest(d)
	case TagRemoveLinkRequest:
		req = decodeRemoveLinkRequest(d)
	case TagDecrementInodeRequest:
		req = decodeDecrementInodeRequest(d)
	case TagHardlinkIncrementRequest:
		req = decodeHardlinkIncrementRequest(d)
	case TagHardlinkRollbackRequest:
		req = decodeHardlinkRollbackRequest(d)
	case TagUpdateParentRequest:
		req = decodeUpdateParentRequest(d)
	case TagUpdateMetadataChangedTimeRequest:
		req = decodeUpdateMetadataChangedTimeRequest(d)
	case TagLockRequest:
		req = decodeLockRequest(d)
	case TagUnlockRequest:
		req = decodeUnlockRequest(d)
	case TagRaftRequest:
		req = decodeRaftRequest(d)
	default:
		return nil, errorcode.BadRequest
	}
	if d.Err() != nil {
		return nil, d.Err()
	}
	return req, nil
}
