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
	"time"

	"github.com/brokenfuse/brokenfuse/internal/effect"
	"github.com/brokenfuse/brokenfuse/internal/metrics"
	"github.com/brokenfuse/brokenfuse/internal/node"
)

// intercept runs the effect pipeline around a single backing-store call
// attributed to n: gather the effective effect set, run pre-effects
// (accumulating delay, stopping at the first Fail), sleep, invoke
// backingCall unless short-circuited, run post-effects with the outcome,
// then update n's counters. Every FUSE op that touches data goes through
// here exactly once. length is the op's classified byte length; growth is
// how many bytes the op adds to the backing file, zero for overwrites.
func (fs *fileSystem) intercept(ctx context.Context, n *node.Node, op effect.OpKind, offset, length, growth uint64, backingCall func() error) error {
	start := time.Now()
	defer func() {
		metrics.OpLatencySeconds.WithLabelValues(op.String()).Observe(time.Since(start).Seconds())
	}()

	chain := fs.table.AncestorChain(n)
	ordered := fs.table.EffectiveEffects(n)

	ectx := effect.EvalContext{
		Op:     op,
		Offset: offset,
		Length: length,
		Growth: growth,
		Now:    fs.clock.Now(),
		RNG:    fs.rng,
	}

	var totalDelay time.Duration
	var failed bool
	var failErrno syscall.Errno
	var failKind effect.Kind

	// Effects that returned Continue have reserved MaxSize/Quota budget;
	// if the op fails past that point the reservations must be returned.
	var reserved []*effect.Effect
	releaseReservations := func() {
		for _, e := range reserved {
			e.ReleaseReservation(length, growth)
		}
	}

	for _, e := range ordered.Pre {
		if e.Kind == effect.KindMaxSize {
			// MaxSize sums the subtree of the node e is attached to, which
			// may be an ancestor of n.
			owner := n
			for _, a := range chain {
				for _, own := range a.Effects() {
					if own == e {
						owner = a
					}
				}
			}
			ectx.SubtreeSize = func() (uint64, error) { return fs.table.SubtreeSize(owner, fs.backing.SizeOf) }
		}
		action := e.Evaluate(ectx)
		switch action.Kind {
		case effect.ActionDelay:
			totalDelay += action.Delay
		case effect.ActionFail:
			failed = true
			failErrno = action.Errno
			failKind = e.Kind
		}
		if failed {
			break
		}
		if e.Filter.Matches(op) {
			reserved = append(reserved, e)
		}
	}

	if totalDelay > 0 {
		select {
		case <-fs.clock.After(totalDelay):
		case <-ctx.Done():
			releaseReservations()
			n.RecordError()
			return syscall.EINTR
		}
	}

	outcome := &effect.Outcome{}
	var err error
	if failed {
		outcome.Failed = true
		outcome.Errno = failErrno
		err = failErrno
		metrics.EffectTriggers.WithLabelValues(string(failKind), errnoString(failErrno)).Inc()
	} else {
		err = backingCall()
		if err != nil {
			outcome.Failed = true
			outcome.Errno = errnoOf(err)
		}
	}

	ectx.Outcome = outcome
	for _, e := range ordered.Post {
		e.Evaluate(ectx)
	}

	if outcome.Failed {
		releaseReservations()
		n.RecordError()
		return err
	}

	n.RecordSuccess(op, length)
	return nil
}

// adjustSubtreeSums applies a byte delta to every MaxSize sum in force at
// n, keeping live sums in step with unlink, truncate-shrink and rename.
func (fs *fileSystem) adjustSubtreeSums(n *node.Node, delta int64) {
	if delta == 0 {
		return
	}
	ordered := fs.table.EffectiveEffects(n)
	for _, e := range ordered.Pre {
		e.AdjustBytes(delta)
	}
}
