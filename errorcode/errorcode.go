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

// Package errorcode defines the wire-level error taxonomy shared by
// every FleetFS component. Unlike the ambient error-wrapping used for
// diagnostics (github.com/cubefs/cubefs/blobstore/util/errors), values
// of ErrorCode cross the wire verbatim and are what the filesystem
// facade maps to POSIX errnos.
package errorcode

// ErrorCode is a single byte on the wire, carried by ErrorResponse.
type ErrorCode uint8

const (
	Uncategorized ErrorCode = iota
	DoesNotExist
	InodeDoesNotExist
	FileTooLarge
	AccessDenied
	OperationNotPermitted
	AlreadyExists
	NameTooLong
	NotEmpty
	MissingXattrKey
	BadResponse
	BadRequest
	Corrupted
	RaftFailure
	InvalidXattrNamespace
)

var names = map[ErrorCode]string{
	Uncategorized:         "uncategorized",
	DoesNotExist:          "does not exist",
	InodeDoesNotExist:     "inode does not exist",
	FileTooLarge:          "file too large",
	AccessDenied:          "access denied",
	OperationNotPermitted: "operation not permitted",
	AlreadyExists:         "already exists",
	NameTooLong:           "name too long",
	NotEmpty:              "not empty",
	MissingXattrKey:       "missing xattr key",
	BadResponse:           "bad response",
	BadRequest:            "bad request",
	Corrupted:             "corrupted",
	RaftFailure:           "raft failure",
	InvalidXattrNamespace: "invalid xattr namespace",
}

func (c ErrorCode) String() string {
	if s, ok := names[c]; ok {
		return s
	}
	return "unknown error code"
}

// Error implements the error interface so an ErrorCode can be returned
// and compared directly from internal APIs (local store, state
// machine) without an extra wrapper allocation.
func (c ErrorCode) Error() string {
	return c.String()
}

// FromError recovers the ErrorCode carried by err, if any. Errors that
// don't originate from this package map to Uncategorized, matching
// the propagation policy in spec.md §7: a coordinator failure whose
// compensation also fails surfaces as Uncategorized.
func FromError(err error) ErrorCode {
	if err == nil {
		return 0
	}
	if code, ok := err.(ErrorCode); ok {
		return code
	}
	type coder interface{ ErrorCode() ErrorCode }
	if c, ok := err.(coder); ok {
		return c.ErrorCode()
	}
	return Uncategorized
}
