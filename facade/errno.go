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

// Package facade translates POSIX-style calls (getattr, lookup, read,
// write, create, mkdir, unlink, rmdir, rename, link, chmod, chown,
// utimens, truncate, readdir, fsync, getxattr/setxattr/listxattr/
// removexattr, statfs) into coordinator invocations, and maps the
// wire-level error taxonomy to POSIX errnos, per spec.md §4.7.
// Permission checks against mode/uid/gid happen at the leader inside
// the state machine, not here, so they stay linearized with the
// mutations they guard.
package facade

import (
	"syscall"

	"github.com/fleetfs/fleetfs/errorcode"
)

// Errno converts err into the errno a kernel bridge should report. A
// nil err maps to nil so callers can pass a facade call's error
// straight through without an extra nil check.
func Errno(err error) error {
	if err == nil {
		return nil
	}
	switch errorcode.FromError(err) {
	case errorcode.DoesNotExist, errorcode.InodeDoesNotExist:
		return syscall.ENOENT
	case errorcode.FileTooLarge:
		return syscall.EFBIG
	case errorcode.AccessDenied:
		return syscall.EACCES
	case errorcode.OperationNotPermitted:
		return syscall.EPERM
	case errorcode.AlreadyExists:
		return syscall.EEXIST
	case errorcode.NameTooLong:
		return syscall.ENAMETOOLONG
	case errorcode.NotEmpty:
		return syscall.ENOTEMPTY
	case errorcode.MissingXattrKey:
		return syscall.ENODATA
	case errorcode.InvalidXattrNamespace:
		return syscall.EPERM
	case errorcode.BadRequest, errorcode.BadResponse, errorcode.Corrupted:
		return syscall.EIO
	case errorcode.RaftFailure:
		return syscall.ETIMEDOUT
	default:
		return syscall.EIO
	}
}
