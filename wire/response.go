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

// ResponseTag identifies a GenericResponse variant, per spec.md §6.
type ResponseTag uint8

const (
	TagEmptyResponse ResponseTag = iota + 1
	TagErrorResponse
	TagReadResponse
	TagFileMetadataResponse
	TagDirectoryListingResponse
	TagWrittenResponse
	TagLatestCommitResponse
	TagXattrsResponse
	TagInodeResponse
	TagHardlinkTransactionResponse
	TagLockResponse
	TagRemoveLinkResponse
	TagChecksumResponse
	TagNodeIdResponse
	TagFilesystemInformationResponse
)

// Response is implemented by every GenericResponse variant.
type Response interface {
	Tag() ResponseTag
	Encode(e *Encoder)
}

// Commit is attached to every response to a mutating request and
// records the commit point it was applied at, a value a caller can
// pass back as required_commit on a later read, per SPEC_FULL.md §4.
// The coordinator does not read it.
type Commit struct {
	Applied *CommitID
}

func (c Commit) Encode(e *Encoder) { encodeOptCommit(e, c.Applied) }
func decodeCommit(d *Decoder) Commit {
	return Commit{Applied: decodeOptCommit(d)}
}

type EmptyResponse struct{ Commit Commit }

func (r EmptyResponse) Tag() ResponseTag   { return TagEmptyResponse }
func (r EmptyResponse) Encode(e *Encoder)  { r.Commit.Encode(e) }
func decodeEmptyResponse(d *Decoder) EmptyResponse {
	return EmptyResponse{Commit: decodeCommit(d)}
}

type ErrorResponse struct{ Code errorcode.ErrorCode }

func (r ErrorResponse) Tag() ResponseTag   { return TagErrorResponse }
func (r ErrorResponse) Encode(e *Encoder)  { e.PutErrorCode(r.Code) }
func decodeErrorResponse(d *Decoder) ErrorResponse {
	return ErrorResponse{Code: d.ErrorCode()}
}

type ReadResponse struct{ Data []byte }

func (r ReadResponse) Tag() ResponseTag   { return TagReadResponse }
func (r ReadResponse) Encode(e *Encoder)  { e.PutBytes(r.Data) }
func decodeReadResponse(d *Decoder) ReadResponse {
	return ReadResponse{Data: d.Bytes()}
}

type FileMetadataResponse struct {
	Attrs  Attrs
	Commit Commit
}

func (r FileMetadataResponse) Tag() ResponseTag { return TagFileMetadataResponse }
func (r FileMetadataResponse) Encode(e *Encoder) {
	r.Attrs.Encode(e)
	r.Commit.Encode(e)
}
func decodeFileMetadataResponse(d *Decoder) FileMetadataResponse {
	return FileMetadataResponse{Attrs: DecodeAttrs(d), Commit: decodeCommit(d)}
}

type DirectoryListingResponse struct{ Entries []DirEntry }

func (r DirectoryListingResponse) Tag() ResponseTag { return TagDirectoryListingResponse }
func (r DirectoryListingResponse) Encode(e *Encoder) {
	e.PutUint32(uint32(len(r.Entries)))
	for _, entry := range r.Entries {
		entry.Encode(e)
	}
}
func decodeDirectoryListingResponse(d *Decoder) DirectoryListingResponse {
	n := d.Uint32()
	entries := make([]DirEntry, 0, n)
	for i := uint32(0); i < n; i++ {
		entries = append(entries, DecodeDirEntry(d))
	}
	return DirectoryListingResponse{Entries: entries}
}

type WrittenResponse struct {
	BytesWritten uint32
	Commit       Commit
}

func (r WrittenResponse) Tag() ResponseTag { return TagWrittenResponse }
func (r WrittenResponse) Encode(e *Encoder) {
	e.PutUint32(r.BytesWritten)
	r.Commit.Encode(e)
}
func decodeWrittenResponse(d *Decoder) WrittenResponse {
	return WrittenResponse{BytesWritten: d.Uint32(), Commit: decodeCommit(d)}
}

type LatestCommitResponse struct{ Commit CommitID }

func (r LatestCommitResponse) Tag() ResponseTag   { return TagLatestCommitResponse }
func (r LatestCommitResponse) Encode(e *Encoder)  { r.Commit.Encode(e) }
func decodeLatestCommitResponse(d *Decoder) LatestCommitResponse {
	return LatestCommitResponse{Commit: DecodeCommitID(d)}
}

// XattrEntry is one key/value pair (ListXattrsResponse returns keys
// only, with empty Value; GetXattrResponse returns exactly one with
// Value set); both ride XattrsResponse so the union stays small.
type XattrEntry struct {
	Key   string
	Value []byte
}

func (x XattrEntry) Encode(e *Encoder) {
	e.PutString(x.Key)
	e.PutBytes(x.Value)
}
func decodeXattrEntry(d *Decoder) XattrEntry {
	return XattrEntry{Key: d.String(), Value: d.Bytes()}
}

type XattrsResponse struct{ Entries []XattrEntry }

func (r XattrsResponse) Tag() ResponseTag { return TagXattrsResponse }
func (r XattrsResponse) Encode(e *Encoder) {
	e.PutUint32(uint32(len(r.Entries)))
	for _, entry := range r.Entries {
		entry.Encode(e)
	}
}
func decodeXattrsResponse(d *Decoder) XattrsResponse {
	n := d.Uint32()
	entries := make([]XattrEntry, 0, n)
	for i := uint32(0); i < n; i++ {
		entries = append(entries, decodeXattrEntry(d))
	}
	return XattrsResponse{Entries: entries}
}

type InodeResponse struct {
	Attrs  Attrs
	Commit Commit
}

func (r InodeResponse) Tag() ResponseTag { return TagInodeResponse }
func (r InodeResponse) Encode(e *Encoder) {
	r.Attrs.Encode(e)
	r.Commit.Encode(e)
}
func decodeInodeResponse(d *Decoder) InodeResponse {
	return InodeResponse{Attrs: DecodeAttrs(d), Commit: decodeCommit(d)}
}

// HardlinkTransactionResponse answers HardlinkIncrementRequest with
// enough state for the coordinator to roll back precisely, per
// spec.md §4.6.3.
type HardlinkTransactionResponse struct {
	Attrs                Attrs
	PrevLastModifiedTime Timestamp
	Commit               Commit
}

func (r HardlinkTransactionResponse) Tag() ResponseTag { return TagHardlinkTransactionResponse }
func (r HardlinkTransactionResponse) Encode(e *Encoder) {
	r.Attrs.Encode(e)
	r.PrevLastModifiedTime.Encode(e)
	r.Commit.Encode(e)
}
func decodeHardlinkTransactionResponse(d *Decoder) HardlinkTransactionResponse {
	return HardlinkTransactionResponse{
		Attrs:                DecodeAttrs(d),
		PrevLastModifiedTime: DecodeTimestamp(d),
		Commit:               decodeCommit(d),
	}
}

type LockResponse struct {
	LockID uint64
	Commit Commit
}

func (r LockResponse) Tag() ResponseTag { return TagLockResponse }
func (r LockResponse) Encode(e *Encoder) {
	e.PutUint64(r.LockID)
	r.Commit.Encode(e)
}
func decodeLockResponse(d *Decoder) LockResponse {
	return LockResponse{LockID: d.Uint64(), Commit: decodeCommit(d)}
}

// RemoveLinkResponse reports which inode the removed link pointed at,
// so the coordinator can verify before decrementing, per spec.md
// §4.6.2. ProcessingComplete distinguishes "applied, link really
// gone" from a followers-only partial apply during failover.
type RemoveLinkResponse struct {
	Ino                uint64
	ProcessingComplete bool
	Commit             Commit
}

func (r RemoveLinkResponse) Tag() ResponseTag { return TagRemoveLinkResponse }
func (r RemoveLinkResponse) Encode(e *Encoder) {
	e.PutUint64(r.Ino)
	e.PutBool(r.ProcessingComplete)
	r.Commit.Encode(e)
}
func decodeRemoveLinkResponse(d *Decoder) RemoveLinkResponse {
	return RemoveLinkResponse{Ino: d.Uint64(), ProcessingComplete: d.Bool(), Commit: decodeCommit(d)}
}

type ChecksumResponse struct{ Checksums []RgroupChecksum }

func (r ChecksumResponse) Tag() ResponseTag { return TagChecksumResponse }
func (r ChecksumResponse) Encode(e *Encoder) {
	e.PutUint32(uint32(len(r.Checksums)))
	for _, c := range r.Checksums {
		c.Encode(e)
	}
}
func decodeChecksumResponse(d *Decoder) ChecksumResponse {
	n := d.Uint32()
	cs := make([]RgroupChecksum, 0, n)
	for i := uint32(0); i < n; i++ {
		cs = append(cs, DecodeRgroupChecksum(d))
	}
	return ChecksumResponse{Checksums: cs}
}

type NodeIdResponse struct{ NodeID uint64 }

func (r NodeIdResponse) Tag() ResponseTag   { return TagNodeIdResponse }
func (r NodeIdResponse) Encode(e *Encoder)  { e.PutUint64(r.NodeID) }
func decodeNodeIdResponse(d *Decoder) NodeIdResponse {
	return NodeIdResponse{NodeID: d.Uint64()}
}

type FilesystemInformationResponse struct {
	BlockSize     uint32
	MaxNameLength uint32
}

func (r FilesystemInformationResponse) Tag() ResponseTag { return TagFilesystemInformationResponse }
func (r FilesystemInformationResponse) Encode(e *Encoder) {
	e.PutUint32(r.BlockSize)
	e.PutUint32(r.MaxNameLength)
}
func decodeFilesystemInformationResponse(d *Decoder) FilesystemInformationResponse {
	return FilesystemInformationResponse{BlockSize: d.Uint32(), MaxNameLength: d.Uint32()}
}

// EncodeResponse serializes a tagged response body ready for framing.
func EncodeResponse(r Response) []byte {
	e := NewEncoder(64)
	e.PutUint8(uint8(r.Tag()))
	r.Encode(e)
	return e.Bytes()
}

// DecodeResponse parses a tagged response payload. A variant unknown
// to the receiver (e.g. an older client talking to a newer server)
// reports BadResponse, per spec.md §7.
func DecodeResponse(payload []byte) (Response, error) {
	if len(payload) == 0 {
		return nil, errorcode.BadResponse
	}
	d := NewDecoder(payload[1:])
	var resp Response
	switch ResponseTag(payload[0]) {
	case TagEmptyResponse:
		resp = decodeEmptyResponse(d)
	case TagErrorResponse:
		resp = decodeErrorResponse(d)
	case TagReadResponse:
		resp = decodeReadResponse(d)
	case TagFileMetadataResponse:
		resp = decodeFileMetadataResponse(d)
	case TagDirectoryListingResponse:
		resp = decodeDirectoryListingResponse(d)
	case TagWrittenResponse:
		resp = decodeWrittenResponse(d)
	case TagLatestCommitResponse:
		resp = decodeLatestCommitResponse(d)
	case TagXattrsResponse:
		resp = decodeXattrsResponse(d)
	case TagInodeResponse:
		resp = decodeInodeResponse(d)
	case TagHardlinkTransactionResponse:
		resp = decodeHardlinkTransactionResponse(d)
	case TagLockResponse:
		resp = decodeLockResponse(d)
	case TagRemoveLinkResponse:
		resp = decodeRemoveLinkResponse(d)
	case TagChecksumResponse:
		resp = decodeChecksumResponse(d)
	case TagNodeIdResponse:
		resp = decodeNodeIdResponse(d)
	case TagFilesystemInformationResponse:
		resp = decodeFilesystemInformationResponse(d)
	default:
		return nil, errorcode.BadResponse
	}
	if d.Err() != nil {
		return nil, errorcode.BadResponse
	}
	return resp, nil
}

// AsError converts an ErrorResponse into a Go error, and passes any
// other response through unchanged (ok=false).
func AsError(r Response) (errorcode.ErrorCode, bool) {
	if er, ok := r.(ErrorResponse); ok {
		return er.Code, true
	}
	return 0, false
}
