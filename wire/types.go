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

import "strings"

// RootIno and RootRgroup are the filesystem's fixed well-known root
// inode and its owning rgroup, per spec.md §3.
const (
	RootIno    uint64 = 1
	RootRgroup uint16 = 0
)

// InodeKind identifies what an inode represents, per spec.md §3.
type InodeKind uint8

const (
	KindFile InodeKind = iota
	KindDirectory
	KindSymlink
)

// Timestamp is a POSIX-style seconds+nanos pair, per spec.md §3.
type Timestamp struct {
	Seconds int64
	Nanos   int32
}

func (t Timestamp) Encode(e *Encoder) {
	e.PutInt64(t.Seconds)
	e.PutInt32(t.Nanos)
}

func DecodeTimestamp(d *Decoder) Timestamp {
	return Timestamp{Seconds: d.Int64(), Nanos: d.Int32()}
}

// CommitID identifies a position in one rgroup's consensus log,
// per spec.md §3 "Commit point" and the GLOSSARY.
type CommitID struct {
	Term  uint64
	Index uint64
}

func (c CommitID) Encode(e *Encoder) {
	e.PutUint64(c.Term)
	e.PutUint64(c.Index)
}

func DecodeCommitID(d *Decoder) CommitID {
	return CommitID{Term: d.Uint64(), Index: d.Uint64()}
}

// Less reports whether c happened strictly before other, used by the
// leader's required_commit gate (rgroup.CaughtUpTo, spec.md §4.3).
func (c CommitID) Less(other CommitID) bool {
	if c.Term != other.Term {
		return c.Term < other.Term
	}
	return c.Index < other.Index
}

// Attrs is the full inode attribute record, per spec.md §3.
type Attrs struct {
	Ino        uint64
	Kind       InodeKind
	Mode       uint16
	Uid        uint32
	Gid        uint32
	Size       uint64
	Blocks     uint64
	BlockSize  uint32
	Atime      Timestamp
	Mtime      Timestamp
	Ctime      Timestamp
	HardLinks  uint32
	Rdev       uint32
}

func (a Attrs) Encode(e *Encoder) {
	e.PutUint64(a.Ino)
	e.PutUint8(uint8(a.Kind))
	e.PutUint32(uint32(a.Mode))
	e.PutUint32(a.Uid)
	e.PutUint32(a.Gid)
	e.PutUint64(a.Size)
	e.PutUint64(a.Blocks)
	e.PutUint32(a.BlockSize)
	a.Atime.Encode(e)
	a.Mtime.Encode(e)
	a.Ctime.Encode(e)
	e.PutUint32(a.HardLinks)
	e.PutUint32(a.Rdev)
}

func DecodeAttrs(d *Decoder) Attrs {
	return Attrs{
		Ino:       d.Uint64(),
		Kind:      InodeKind(d.Uint8()),
		Mode:      uint16(d.Uint32()),
		Uid:       d.Uint32(),
		Gid:       d.Uint32(),
		Size:      d.Uint64(),
		Blocks:    d.Uint64(),
		BlockSize: d.Uint32(),
		Atime:     DecodeTimestamp(d),
		Mtime:     DecodeTimestamp(d),
		Ctime:     DecodeTimestamp(d),
		HardLinks: d.Uint32(),
		Rdev:      d.Uint32(),
	}
}

// AttrsPatch carries the optional per-field updates set_attrs_partial
// accepts (spec.md §4.2): it never touches link count or size.
type AttrsPatch struct {
	Mode  *uint32
	Uid   *uint32
	Gid   *uint32
	Atime *Timestamp
	Mtime *Timestamp
	Ctime *Timestamp
}

func (p AttrsPatch) Encode(e *Encoder) {
	e.PutOptUint32(p.Mode)
	e.PutOptUint32(p.Uid)
	e.PutOptUint32(p.Gid)
	encodeOptTimestamp(e, p.Atime)
	encodeOptTimestamp(e, p.Mtime)
	encodeOptTimestamp(e, p.Ctime)
}

func DecodeAttrsPatch(d *Decoder) AttrsPatch {
	return AttrsPatch{
		Mode:  d.OptUint32(),
		Uid:   d.OptUint32(),
		Gid:   d.OptUint32(),
		Atime: decodeOptTimestamp(d),
		Mtime: decodeOptTimestamp(d),
		Ctime: decodeOptTimestamp(d),
	}
}

func encodeOptTimestamp(e *Encoder, t *Timestamp) {
	if t == nil {
		e.PutBool(false)
		return
	}
	e.PutBool(true)
	t.Encode(e)
}

func decodeOptTimestamp(d *Decoder) *Timestamp {
	if !d.Bool() {
		return nil
	}
	t := DecodeTimestamp(d)
	return &t
}

// DirEntry is one (name -> inode, kind) mapping from a directory
// listing, per spec.md §3.
type DirEntry struct {
	Name string
	Ino  uint64
	Kind InodeKind
}

func (e2 DirEntry) Encode(e *Encoder) {
	e.PutString(e2.Name)
	e.PutUint64(e2.Ino)
	e.PutUint8(uint8(e2.Kind))
}

func DecodeDirEntry(d *Decoder) DirEntry {
	return DirEntry{Name: d.String(), Ino: d.Uint64(), Kind: InodeKind(d.Uint8())}
}

// XattrNamespaceAllowed reports whether uid may access key, per spec.md
// §3: the "user." namespace is open to everyone, every other namespace
// ("system.", "security.", "trusted.", ...) is restricted to uid 0.
func XattrNamespaceAllowed(key string, uid uint32) bool {
	if strings.HasPrefix(key, "user.") {
		return true
	}
	return uid == 0
}

// RgroupChecksum is one element of ChecksumResponse, per spec.md §6.
type RgroupChecksum struct {
	Rgroup   uint16
	Checksum uint64
}

func (c RgroupChecksum) Encode(e *Encoder) {
	e.PutUint32(uint32(c.Rgroup))
	e.PutUint64(c.Checksum)
}

func DecodeRgroupChecksum(d *Decoder) RgroupChecksum {
	return RgroupChecksum{Rgroup: uint16(d.Uint32()), Checksum: d.Uint64()}
}
