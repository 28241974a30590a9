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
	"context"
	"fmt"
	"hash/crc64"

	"github.com/cubefs/cubefs/blobstore/util/errors"
	"github.com/cubefs/cubefs/blobstore/util/log"

	"github.com/fleetfs/fleetfs/common/kvstore"
	"github.com/fleetfs/fleetfs/wire"
)

var crcTable = crc64.MakeTable(crc64.ECMA)

// Checksum folds every attr, dirent, xattr and data key/value this
// rgroup owns into one CRC64 (the meta column family is left out),
// used by FilesystemChecksumRequest to compare replicas for drift,
// per spec.md §4.2's supplemented fsck tooling.
func (s *Store) Checksum(ctx context.Context) (uint64, error) {
	crc := crc64.New(crcTable)
	for _, cf := range []string{attrCF, direntCF, xattrCF, dataCF} {
		lr := s.kv.List(ctx, kvstore.CF(cf), nil, nil, nil)
		for {
			kg, vg, err := lr.ReadNext()
			if err != nil {
				lr.Close()
				return 0, errors.Info(err, "checksum scan").Detail(err)
			}
			if kg == nil || vg == nil {
				break
			}
			crc.Write(kg.Key())
			crc.Write(vg.Value())
			kg.Close()
			vg.Close()
		}
		lr.Close()
	}
	return crc.Sum64(), nil
}

// Check runs the non-fatal consistency sweep described in spec.md's
// supplemented fsck feature: every directory has hard_links >= 2,
// every file/symlink has hard_links >= 1, and, for files and
// symlinks, the number of directory entries naming an inode matches
// its hard-link count (skipped for
// inodes currently under an advisory lock, since the invariant is
// permitted to be temporarily violated mid-transaction). It never
// mutates state; discrepancies are reported as Corrupted findings.
func (s *Store) Check(ctx context.Context) []error {
	var findings []error

	refCounts := make(map[uint64]uint32)
	lr := s.kv.List(ctx, kvstore.CF(direntCF), nil, nil, nil)
	for {
		kg, vg, err := lr.ReadNext()
		if err != nil {
			findings = append(findings, errors.Info(err, "check scan dirents").Detail(err))
			break
		}
		if kg == nil || vg == nil {
			break
		}
		refCounts[decodeDirent(vg.Value()).ino]++
		kg.Close()
		vg.Close()
	}
	lr.Close()

	lr = s.kv.List(ctx, kvstore.CF(attrCF), nil, nil, nil)
	for {
		kg, vg, err := lr.ReadNext()
		if err != nil {
			findings = append(findings, errors.Info(err, "check scan attrs").Detail(err))
			break
		}
		if kg == nil || vg == nil {
			break
		}
		attrs := wire.DecodeAttrs(wire.NewDecoder(vg.Value()))
		kg.Close()
		vg.Close()

		if attrs.Kind == wire.KindDirectory && attrs.HardLinks < 2 {
			findings = append(findings, fmt.Errorf("inode %d: directory has hard_links %d < 2", attrs.Ino, attrs.HardLinks))
		}
		if attrs.Kind != wire.KindDirectory && attrs.HardLinks < 1 {
			findings = append(findings, fmt.Errorf("inode %d: unreachable with hard_links 0", attrs.Ino))
		}
		if s.locks.IsLocked(attrs.Ino) {
			continue
		}
		if refs := refCounts[attrs.Ino]; attrs.Kind != wire.KindDirectory && refs != attrs.HardLinks {
			findings = append(findings, fmt.Errorf("inode %d: %d directory entries but hard_links %d", attrs.Ino, refs, attrs.HardLinks))
		}
	}
	lr.Close()

	for _, f := range findings {
		log.Warn("fsck finding: ", f)
	}
	return findings
}
