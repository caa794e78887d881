// Copyright 2025 Google LLC
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

// Package fsops is the operation interceptor: the fuseutil.FileSystem
// implementation that, for every inbound op, walks the node table for the
// effective effect set, runs pre-effects around the backing call and
// post-effects after it, and updates counters.
package fsops

import (
	"context"
	"os"
	"syscall"

	"github.com/brokenfuse/brokenfuse/cfg"
	"github.com/brokenfuse/brokenfuse/clock"
	"github.com/brokenfuse/brokenfuse/internal/backing"
	"github.com/brokenfuse/brokenfuse/internal/logger"
	"github.com/brokenfuse/brokenfuse/internal/metrics"
	"github.com/brokenfuse/brokenfuse/internal/node"
	"github.com/brokenfuse/brokenfuse/internal/rng"
	"github.com/brokenfuse/brokenfuse/internal/xattr"
	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/fuse/fuseutil"
	"github.com/jacobsa/timeutil"
)

// ServerConfig is the set of dependencies and fixed parameters NewServer
// needs to build a server.
type ServerConfig struct {
	// Clock drives effect evaluation (delays, windowed availability) and is
	// injectable so tests can run against simulated time.
	Clock clock.Clock

	// CacheClock stamps kernel entry/attribute expiration times. Entries
	// expire immediately: a cached attribute would let the kernel skip ops
	// that injected faults are supposed to see.
	CacheClock timeutil.Clock

	RNG     rng.Source
	Backing *backing.Store

	Uid uint32
	Gid uint32

	FilePerm os.FileMode
	DirPerm  os.FileMode

	// ExitOnInvariantViolation follows cfg.DebugConfig.ExitOnInvariantViolation:
	// a fatal node-table desync exits the process with
	// cfg.ExitInvariantViolation instead of merely returning EIO.
	ExitOnInvariantViolation bool
}

// fileSystem implements fuseutil.FileSystem, embedding
// NotImplementedFileSystem so only the ops this filesystem serves need
// overriding.
type fileSystem struct {
	fuseutil.NotImplementedFileSystem

	clock      clock.Clock
	cacheClock timeutil.Clock
	rng        rng.Source
	backing    *backing.Store
	xattrs     *xattr.Handler

	uid, gid                 uint32
	filePerm, dirPerm        os.FileMode
	exitOnInvariantViolation bool

	table *node.Table

	handles *handleTable
}

// NewServer creates a fuse.Server according to the supplied configuration.
func NewServer(cfg *ServerConfig) (fuse.Server, error) {
	cacheClock := cfg.CacheClock
	if cacheClock == nil {
		cacheClock = timeutil.RealClock()
	}
	fs := &fileSystem{
		clock:                    cfg.Clock,
		cacheClock:               cacheClock,
		rng:                      cfg.RNG,
		backing:                  cfg.Backing,
		xattrs:                   xattr.NewHandler(cfg.Clock),
		uid:                      cfg.Uid,
		gid:                      cfg.Gid,
		filePerm:                 cfg.FilePerm,
		dirPerm:                  cfg.DirPerm,
		exitOnInvariantViolation: cfg.ExitOnInvariantViolation,
		table:                    node.NewTable("/"),
		handles:                  newHandleTable(),
	}
	return fuseutil.NewFileSystemServer(fs), nil
}

func (fs *fileSystem) StatFS(ctx context.Context, op *fuseops.StatFSOp) (err error) {
	return
}

func (fs *fileSystem) Destroy() {
	logger.Info("shutting down")
}

// recoverInvariantViolation is deferred by every fileSystem method that
// mutates the node table. A panic out of Table's checkInvariants (node
// table desync or lock-order breach) is fatal: the process exits with
// cfg.ExitInvariantViolation rather than returning an error a caller might
// retry past. It does not unmount the file system before exiting. When ExitOnInvariantViolation is false (test
// builds), it degrades to EIO instead of killing the process.
func (fs *fileSystem) recoverInvariantViolation(err *error) {
	r := recover()
	if r == nil {
		return
	}
	metrics.InvariantViolations.Inc()
	logger.Errorf("invariant violation: %v", r)
	if fs.exitOnInvariantViolation {
		os.Exit(cfg.ExitInvariantViolation)
	}
	*err = syscall.EIO
}
