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

	"github.com/cubefs/cubefs/blobstore/util/errors"

	"github.com/fleetfs/fleetfs/common/kvstore"
)

// SetParent records ino's current parent directory, used by
// UpdateParentRequest to fix a moved directory's ".." pointer and at
// mkdir time to record the initial one.
func (s *Store) SetParent(ctx context.Context, ino, parent uint64) error {
	buf := make([]byte, 8)
	encodeUint64(parent, buf)
	if err := s.kv.SetRaw(ctx, kvstore.CF(metaCF), parentKey(ino), buf, nil); err != nil {
		return errors.Info(err, "set parent").Detail(err)
	}
	return nil
}

// GetParent returns ino's tracked parent, used to resolve the
// synthetic ".." entry and by fsck's directory-tree sweep.
func (s *Store) GetParent(ctx context.Context, ino uint64) (uint64, error) {
	raw, err := s.getRaw(ctx, metaCF, parentKey(ino))
	if err != nil {
		return 0, err
	}
	return decodeUint64(raw), nil
}
