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

package facade

import (
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fleetfs/fleetfs/errorcode"
)

func TestErrnoMapsKnownCodes(t *testing.T) {
	cases := []struct {
		code errorcode.ErrorCode
		want error
	}{
		{errorcode.DoesNotExist, syscall.ENOENT},
		{errorcode.InodeDoesNotExist, syscall.ENOENT},
		{errorcode.FileTooLarge, syscall.EFBIG},
		{errorcode.AccessDenied, syscall.EACCES},
		{errorcode.OperationNotPermitted, syscall.EPERM},
		{errorcode.AlreadyExists, syscall.EEXIST},
		{errorcode.NameTooLong, syscall.ENAMETOOLONG},
		{errorcode.NotEmpty, syscall.ENOTEMPTY},
		{errorcode.MissingXattrKey, syscall.ENODATA},
		{errorcode.InvalidXattrNamespace, syscall.EPERM},
		{errorcode.RaftFailure, syscall.ETIMEDOUT},
		{errorcode.BadRequest, syscall.EIO},
		{errorcode.Uncategorized, syscall.EIO},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, Errno(c.code), "code %s", c.code)
	}
}

func TestErrnoPassesNilThrough(t *testing.T) {
	assert.NoError(t, Errno(nil))
}
