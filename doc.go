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
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

/*

# FleetFS: a distributed POSIX metadata layer

FleetFS exposes a POSIX-style filesystem over a kernel userspace-filesystem
bridge. Clients issue POSIX operations against the facade; mutating
operations replicate across a cluster through a consensus log, and
filesystem state is sharded across multiple replication groups ("rgroups")
to scale metadata and data throughput independently of any single node.

This module implements the distributed transactional metadata layer: the
wire protocol, the per-rgroup inode store and state machine, the consensus
driver that replicates each rgroup's log, the router that finds rgroup
leaders, and the client-side transaction coordinator that composes
multi-rgroup POSIX operations (hardlink, rename, unlink, rmdir, mkdir,
create) out of per-rgroup primitives and inode locks.

The kernel bridge that translates inode-numbered syscalls into wire
requests, the consensus library's internal Raft mechanics, and the
physical key/value engine underneath the local store are treated as
trusted collaborators, not reimplemented here.

# Package layout

  - errorcode   the ErrorCode taxonomy shared by every response
  - wire        framed length-prefixed codec and the request/response union
  - store       per-rgroup inode/dirent/xattr/data store on top of rocksdb
  - rgroup      the state machine that applies committed log entries
  - consensus   the driver bridging the state machine to etcd/raft
  - router      rgroup ownership, leader discovery, retry/backoff
  - coordinator client-driven multi-rgroup transactions
  - facade      POSIX call translation into coordinator invocations
  - server      node process wiring: listeners, rgroup hosting, metrics
  - metrics     the node's prometheus registry
  - cmd/fleetfsd the server binary entrypoint

# Replication

Each rgroup is an independent Raft ensemble (via go.etcd.io/etcd/raft/v3)
owning a disjoint shard of the inode space. An inode's owning rgroup is
`hash(inode) mod R`, fixed and known to every node.

# Storage

Each rgroup keeps its inode metadata, directory listings, extended
attributes, and file data in a single rocksdb instance, column-family
scoped by entity kind.

*/
package fleetfs
