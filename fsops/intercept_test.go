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

package fsops

import (
	"context"
	"syscall"
	"testing"
	"time"

	"github.com/brokenfuse/brokenfuse/clock"
	"github.com/brokenfuse/brokenfuse/internal/backing"
	"github.com/brokenfuse/brokenfuse/internal/effect"
	"github.com/brokenfuse/brokenfuse/internal/node"
	"github.com/brokenfuse/brokenfuse/internal/rng"
	"github.com/brokenfuse/brokenfuse/internal/xattr"
	"github.com/jacobsa/timeutil"
	"github.com/stretchr/testify/require"
)

func newTestFileSystem(t *testing.T) (*fileSystem, *clock.SimulatedClock) {
	t.Helper()
	sc := clock.NewSimulatedClock(time.Unix(0, 0))
	fs := &fileSystem{
		clock:      sc,
		cacheClock: timeutil.RealClock(),
		rng:        rng.New(1),
		backing:    backing.NewMemBacking(),
		xattrs:     xattr.NewHandler(sc),
		filePerm:   0644,
		dirPerm:    0755,
		table:      node.NewTable("/"),
		handles:    newHandleTable(),
	}
	require.NoError(t, fs.backing.Fs.MkdirAll("/", 0755))
	return fs, sc
}

func mustAttach(t *testing.T, n *node.Node, kind effect.Kind, suffix string, now time.Time, cfg any) *effect.Effect {
	t.Helper()
	e, err := effect.New(kind, suffix, now, cfg)
	require.NoError(t, err)
	n.AttachEffect(e)
	return e
}

// With no effects attached anywhere on the ancestor chain, a
// call through intercept behaves exactly like the bare backing call.
func TestInterceptPassthroughIdentity(t *testing.T) {
	fs, _ := newTestFileSystem(t)
	root := fs.table.Root()
	n := fs.table.Insert(root, "f", false, "/f")

	called := false
	err := fs.intercept(context.Background(), n, effect.OpRead, 0, 4, 0, func() error {
		called = true
		return nil
	})

	require.NoError(t, err)
	require.True(t, called)
	require.Equal(t, uint64(1), n.Stats().Reads)
	require.Equal(t, uint64(4), n.Stats().ReadVolume)
}

// Successful operations accumulate into the node's counters,
// and failures increment the error counter instead of read/write volume.
func TestInterceptCounterAccounting(t *testing.T) {
	fs, _ := newTestFileSystem(t)
	root := fs.table.Root()
	n := fs.table.Insert(root, "f", false, "/f")

	err := fs.intercept(context.Background(), n, effect.OpWrite, 0, 10, 10, func() error { return nil })
	require.NoError(t, err)

	boom := syscall.EIO
	err = fs.intercept(context.Background(), n, effect.OpWrite, 0, 10, 10, func() error { return boom })
	require.Equal(t, boom, err)

	stats := n.Stats()
	require.Equal(t, uint64(1), stats.Writes)
	require.Equal(t, uint64(10), stats.WriteVolume)
	require.Equal(t, uint64(1), stats.Errors)
}

// An effect attached to a directory applies to operations on
// its descendants, not just the node it's attached to directly.
func TestInterceptEffectInheritance(t *testing.T) {
	fs, sc := newTestFileSystem(t)
	root := fs.table.Root()
	dir := fs.table.Insert(root, "d", true, "/d")
	child := fs.table.Insert(dir, "f", false, "/d/f")

	mustAttach(t, dir, effect.KindFlakey, "", sc.Now(), effect.FlakeyConfig{
		Avail: 0, Unavail: 1, Errno: int32(syscall.EIO),
	})

	err := fs.intercept(context.Background(), child, effect.OpRead, 0, 1, 0, func() error { return nil })
	require.Equal(t, syscall.EIO, err)
}

// An effect scoped to writes only (via Filter) does not affect
// reads on the same node.
func TestInterceptScopeFilter(t *testing.T) {
	fs, sc := newTestFileSystem(t)
	root := fs.table.Root()
	n := fs.table.Insert(root, "f", false, "/f")

	mustAttach(t, n, effect.KindFlakey, "", sc.Now(), effect.FlakeyConfig{
		Avail: 0, Unavail: 1, Errno: int32(syscall.EIO), Op: "w",
	})

	err := fs.intercept(context.Background(), n, effect.OpRead, 0, 1, 0, func() error { return nil })
	require.NoError(t, err)

	err = fs.intercept(context.Background(), n, effect.OpWrite, 0, 1, 1, func() error { return nil })
	require.Equal(t, syscall.EIO, err)
}

// Removing an effect that isn't there is a safe, idempotent no-op as far
// as intercept is concerned: there's simply nothing to match.
func TestInterceptIdempotentRemoveLeavesPassthroughIntact(t *testing.T) {
	fs, _ := newTestFileSystem(t)
	root := fs.table.Root()
	n := fs.table.Insert(root, "f", false, "/f")

	require.False(t, n.DetachEffect(effect.KindDelay, ""))

	called := false
	err := fs.intercept(context.Background(), n, effect.OpRead, 0, 1, 0, func() error {
		called = true
		return nil
	})
	require.NoError(t, err)
	require.True(t, called)
}

// A Delay effect sleeps on the injected clock before the backing call runs;
// cancelling the context while the delay is pending yields EINTR instead of
// running the backing call at all.
func TestInterceptDelayCancelledContextYieldsEINTR(t *testing.T) {
	fs, sc := newTestFileSystem(t)
	root := fs.table.Root()
	n := fs.table.Insert(root, "f", false, "/f")

	mustAttach(t, n, effect.KindDelay, "", sc.Now(), effect.DelayConfig{DurationMs: 1000})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := fs.intercept(ctx, n, effect.OpRead, 0, 1, 0, func() error {
		called = true
		return nil
	})
	require.Equal(t, syscall.EINTR, err)
	require.False(t, called)
	require.Equal(t, uint64(1), n.Stats().Errors)
}
