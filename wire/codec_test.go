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

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetfs/fleetfs/errorcode"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, []byte("hello rgroup")))
	require.NoError(t, WriteFrame(&buf, []byte{}))

	got, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello rgroup"), got)

	got, err = ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{}, got)
}

func TestReadFrameRejectsOversizedLength(t *testing.T) {
	var buf bytes.Buffer
	e := NewEncoder(4)
	e.PutUint32(MaxFrameSize + 1)
	buf.Write(e.Bytes())

	_, err := ReadFrame(&buf)
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestRequestRoundTrip(t *testing.T) {
	commit := &CommitID{Term: 3, Index: 77}

	cases := []Request{
		GetattrRequest{Ino: 42, RequiredCommit: commit},
		GetattrRequest{Ino: 42, RequiredCommit: nil},
		ReadRequest{Ino: 9, Offset: 100, ReadSize: 4096, RequiredCommit: commit},
		LookupRequest{Parent: 1, Name: "etc", RequiredCommit: nil},
		WriteRequest{Ino: 9, Offset: 0, Data: []byte("payload")},
		MkdirRequest{Parent: 1, Name: "var", Mode: 0755, Uid: 0, Gid: 0},
		CreateRequest{Parent: 1, Name: "f.txt", Mode: 0644, Uid: 1000, Gid: 1000, Kind: KindFile},
		RenameRequest{Parent: 1, Name: "a", NewParent: 2, NewName: "b"},
		HardlinkRequest{Ino: 9, NewParent: 1, NewName: "link"},
		CreateLinkRequest{Parent: 1, Name: "f", Ino: 9, Kind: KindFile, LockID: uint64Ptr(55)},
		DecrementInodeRequest{Ino: 9, N: 1, FencingToken: 55},
		HardlinkRollbackRequest{Ino: 9, PrevLastModifiedTime: Timestamp{Seconds: 10, Nanos: 20}, FencingToken: 55},
		LockRequest{Ino: 9},
		UnlockRequest{Ino: 9, LockID: 55},
		RaftRequest{Rgroup: 3, Message: []byte{1, 2, 3}},
	}

	for _, want := range cases {
		encoded := EncodeRequest(want)
		got, err := DecodeRequest(encoded)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestDecodeRequestRejectsEmptyAndUnknown(t *testing.T) {
	_, err := DecodeRequest(nil)
	assert.Equal(t, errorcode.BadRequest, err)

	_, err = DecodeRequest([]byte{0xFF})
	assert.Equal(t, errorcode.BadRequest, err)
}

func TestDecodeRequestRejectsTruncatedPayload(t *testing.T) {
	full := EncodeRequest(WriteRequest{Ino: 1, Offset: 2, Data: []byte("xyz")})
	_, err := DecodeRequest(full[:len(full)-2])
	assert.Equal(t, errorcode.BadRequest, err)
}

func TestResponseRoundTrip(t *testing.T) {
	commit := Commit{Applied: &CommitID{Term: 1, Index: 2}}
	attrs := Attrs{
		Ino: 9, Kind: KindFile, Mode: 0644, Uid: 1000, Gid: 1000,
		Size: 4096, Blocks: 8, BlockSize: 512,
		Atime: Timestamp{Seconds: 1, Nanos: 0},
		Mtime: Timestamp{Seconds: 2, Nanos: 0},
		Ctime: Timestamp{Seconds: 3, Nanos: 0},
		HardLinks: 1,
	}

	cases := []Response{
		EmptyResponse{Commit: commit},
		ErrorResponse{Code: errorcode.NotEmpty},
		ReadResponse{Data: []byte("contents")},
		FileMetadataResponse{Attrs: attrs, Commit: commit},
		DirectoryListingResponse{Entries: []DirEntry{
			{Name: "a", Ino: 2, Kind: KindFile},
			{Name: "b", Ino: 3, Kind: KindDirectory},
		}},
		WrittenResponse{BytesWritten: 512, Commit: commit},
		LatestCommitResponse{Commit: CommitID{Term: 4, Index: 8}},
		XattrsResponse{Entries: []XattrEntry{{Key: "user.a", Value: []byte("1")}}},
		InodeResponse{Attrs: attrs, Commit: commit},
		HardlinkTransactionResponse{
			Attrs:                attrs,
			PrevLastModifiedTime: Timestamp{Seconds: 5, Nanos: 6},
			Commit:               commit,
		},
		LockResponse{LockID: 99, Commit: commit},
		RemoveLinkResponse{Ino: 9, ProcessingComplete: true, Commit: commit},
		ChecksumResponse{Checksums: []RgroupChecksum{{Rgroup: 0, Checksum: 123}, {Rgroup: 1, Checksum: 456}}},
		NodeIdResponse{NodeID: 7},
		FilesystemInformationResponse{BlockSize: 4096, MaxNameLength: 255},
	}

	for _, want := range cases {
		encoded := EncodeResponse(want)
		got, err := DecodeResponse(encoded)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestDecodeResponseRejectsEmptyAndUnknown(t *testing.T) {
	_, err := DecodeResponse(nil)
	assert.Equal(t, errorcode.BadResponse, err)

	_, err = DecodeResponse([]byte{0xFF})
	assert.Equal(t, errorcode.BadResponse, err)
}

func TestAsError(t *testing.T) {
	code, ok := AsError(ErrorResponse{Code: errorcode.AccessDenied})
	require.True(t, ok)
	assert.Equal(t, errorcode.AccessDenied, code)

	_, ok = AsError(EmptyResponse{})
	assert.False(t, ok)
}

func uint64Ptr(v uint64) *uint64 { return &v }
