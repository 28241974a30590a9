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

package store

import (
	"encoding/binary"

	"github.com/fleetfs/fleetfs/util"
)

// Column families. Splitting attrs/dirents/xattrs/data into their own
// CFs keeps a checksum or compaction pass over one from scanning the
// others, mirroring the teacher's dataCF/lockCF/writeCF split.
const (
	attrCF   = "attr"
	direntCF = "dirent"
	xattrCF  = "xattr"
	dataCF   = "data"
	metaCF   = "meta"
)

var allColumnFamilies = []string{attrCF, direntCF, xattrCF, dataCF, metaCF}

var (
	direntInfix = []byte{'d'}
	xattrInfix  = []byte{'x'}
	parentInfix = []byte{'p'}

	inoCursorKey = []byte("ino_cursor")
)

// parentKey addresses the tracked parent of a directory inode, used
// to resolve the synthetic ".." entry and by fsck, since directory
// entries themselves never store "." or "..".
func parentKey(ino uint64) []byte {
	key := make([]byte, len(parentInfix)+8)
	copy(key, parentInfix)
	encodeUint64(ino, key[len(parentInfix):])
	return key
}

func encodeUint64(v uint64, raw []byte) {
	binary.BigEndian.PutUint64(raw, v)
}

func decodeUint64(raw []byte) uint64 {
	return binary.BigEndian.Uint64(raw)
}

// attrKey is just the big-endian ino: BigEndian keeps numerically
// adjacent inodes adjacent on disk, which helps checksum/fsck scans.
func attrKey(ino uint64) []byte {
	key := make([]byte, 8)
	encodeUint64(ino, key)
	return key
}

// direntKey is parent-ino || 'd' || name, so all entries of one
// directory sort contiguously under direntKeyPrefix(parent).
func direntKey(parent uint64, name string) []byte {
	key := make([]byte, 8+len(direntInfix)+len(name))
	encodeUint64(parent, key)
	copy(key[8:], direntInfix)
	copy(key[8+len(direntInfix):], util.StringsToBytes(name))
	return key
}

func direntKeyPrefix(parent uint64) []byte {
	key := make([]byte, 8+len(direntInfix))
	encodeUint64(parent, key)
	copy(key[8:], direntInfix)
	return key
}

// direntName copies the name out of key rather than aliasing it:
// key comes from a KeyGetter whose backing buffer is only valid up to
// the caller's next Close/ReadNext, but the returned name outlives
// that, landing in a DirEntry the caller keeps well past the scan.
func direntName(parent uint64, key []byte) string {
	prefixLen := 8 + len(direntInfix)
	return string(key[prefixLen:])
}

// xattrKey is ino || 'x' || key, mirroring direntKey's layout.
func xattrKey(ino uint64, name string) []byte {
	key := make([]byte, 8+len(xattrInfix)+len(name))
	encodeUint64(ino, key)
	copy(key[8:], xattrInfix)
	copy(key[8+len(xattrInfix):], util.StringsToBytes(name))
	return key
}

func xattrKeyPrefix(ino uint64) []byte {
	key := make([]byte, 8+len(xattrInfix))
	encodeUint64(ino, key)
	copy(key[8:], xattrInfix)
	return key
}

// xattrName copies for the same reason direntName does: key's backing
// buffer doesn't outlive the scan, the returned name does.
func xattrName(ino uint64, key []byte) string {
	prefixLen := 8 + len(xattrInfix)
	return string(key[prefixLen:])
}

// dataBlockKey addresses one fixed-size block of a file's byte range.
// Sparse files simply never write the blocks they don't have.
func dataBlockKey(ino uint64, block uint64) []byte {
	key := make([]byte, 16)
	encodeUint64(ino, key)
	encodeUint64(block, key[8:])
	return key
}

func dataBlockKeyPrefix(ino uint64) []byte {
	key := make([]byte, 8)
	encodeUint64(ino, key)
	return key
}

func blockOf(key []byte) uint64 {
	return decodeUint64(key[8:])
}
