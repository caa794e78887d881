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

// Package effect implements the fault-injection effect registry: Delay,
// Flakey, MaxSize, Heatmap and Quota. Effect kinds are a closed, small
// enumeration, so this package follows a tagged-variant style rather than
// open subtype polymorphism: one Effect struct, a Kind field, and a switch
// on Kind wherever evaluation differs.
package effect

import (
	"sync"
	"syscall"
	"time"

	"github.com/brokenfuse/brokenfuse/internal/rng"
	"golang.org/x/sys/unix"
)

// Kind names one of the closed set of effect kinds.
type Kind string

const (
	KindDelay   Kind = "delay"
	KindFlakey  Kind = "flakey"
	KindMaxSize Kind = "maxsize"
	KindHeatmap Kind = "heatmap"
	KindQuota   Kind = "quota"
)

// Phase says whether an effect runs before the backing call (and may delay
// or fail it) or after (and may only observe the outcome).
type Phase int

const (
	PhasePre Phase = iota
	PhasePost
)

func (k Kind) phase() Phase {
	if k == KindHeatmap {
		return PhasePost
	}
	return PhasePre
}

// OpKind classifies an inbound operation as a read or a write for the
// purposes of effect scope filters.
type OpKind int

const (
	OpRead OpKind = iota
	OpWrite
)

func (k OpKind) String() string {
	if k == OpRead {
		return "read"
	}
	return "write"
}

// Filter restricts an effect to reads, writes, or both (the "op" field in
// the xattr value).
type Filter int

const (
	FilterBoth Filter = iota
	FilterRead
	FilterWrite
)

// ParseFilter converts the xattr "op" field ("r", "w", or absent) to a Filter.
func ParseFilter(op string) (Filter, error) {
	switch op {
	case "":
		return FilterBoth, nil
	case "r":
		return FilterRead, nil
	case "w":
		return FilterWrite, nil
	default:
		return FilterBoth, syscall.EINVAL
	}
}

func (f Filter) String() string {
	switch f {
	case FilterRead:
		return "r"
	case FilterWrite:
		return "w"
	default:
		return ""
	}
}

// Matches reports whether op falls within this filter's scope.
func (f Filter) Matches(op OpKind) bool {
	switch f {
	case FilterRead:
		return op == OpRead
	case FilterWrite:
		return op == OpWrite
	default:
		return true
	}
}

// ActionKind is the verdict a pre-phase evaluation reaches.
type ActionKind int

const (
	ActionContinue ActionKind = iota
	ActionFail
	ActionDelay
)

// Action is the result of evaluating one effect against one operation.
type Action struct {
	Kind  ActionKind
	Errno syscall.Errno
	Delay time.Duration
}

// Continue lets the operation proceed unmodified.
func Continue() Action { return Action{Kind: ActionContinue} }

// Fail short-circuits the operation with the given errno.
func Fail(errno syscall.Errno) Action { return Action{Kind: ActionFail, Errno: errno} }

// SleepThenContinue delays the operation by d before it proceeds.
func SleepThenContinue(d time.Duration) Action { return Action{Kind: ActionDelay, Delay: d} }

// Outcome carries the result of the backing call (or of a short-circuit) to
// post-phase effects, which may observe but never change it.
type Outcome struct {
	Failed bool
	Errno  syscall.Errno
}

// EvalContext carries everything one Evaluate call needs: the operation
// being classified, the injected clock/rng, and (for post-phase effects)
// the outcome of the backing call.
type EvalContext struct {
	Op     OpKind
	Offset uint64

	// Length is the op's classified byte length, counted by Quota, Heatmap
	// and the node counters. Growth is the number of bytes the op adds to
	// the backing file, zero for overwrites and shrinks; MaxSize reserves
	// against Growth, since its sum tracks live backing bytes.
	Length uint64
	Growth uint64

	Now     time.Time
	RNG     rng.Source
	Outcome *Outcome

	// SubtreeSize returns the live byte sum of the subtree rooted at the
	// node this effect is attached to (MaxSize), recomputing from the
	// backing store on first call. Nil for effect kinds that don't need it.
	SubtreeSize func() (uint64, error)
}

// Effect is one fault-injection rule attached to a node. Identity within
// a node is (Kind, Suffix).
type Effect struct {
	Kind       Kind
	Suffix     string
	Filter     Filter
	AttachedAt time.Time

	mu    sync.Mutex // per-effect lock, innermost in the lock order
	state any
}

// Phase reports whether this effect runs before or after the backing call.
func (e *Effect) Phase() Phase { return e.Kind.phase() }

// Name is the xattr suffix this effect is addressed by: "<kind>" or
// "<kind>-<suffix>".
func (e *Effect) Name() string {
	if e.Suffix == "" {
		return string(e.Kind)
	}
	return string(e.Kind) + "-" + e.Suffix
}

// Evaluate runs this effect's evaluator under its own lock. Effect-state
// mutation never spans a suspension point: the lock is held only for the
// in-memory computation, never across the caller's subsequent sleep or
// backing call. MaxSize's lazy subtree-size seed, which does call into the
// backing store, therefore runs before the lock is taken.
func (e *Effect) Evaluate(ectx EvalContext) Action {
	if !e.Filter.Matches(ectx.Op) {
		return Continue()
	}

	if e.Kind == KindMaxSize {
		if err := e.seedMaxSize(ectx); err != nil {
			return Fail(unix.EIO)
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.Kind {
	case KindDelay:
		return evaluateDelay(e.state.(*delayState), ectx)
	case KindFlakey:
		return evaluateFlakey(e.state.(*flakeyState), e.AttachedAt, ectx)
	case KindMaxSize:
		return evaluateMaxSize(e.state.(*maxSizeState), ectx)
	case KindHeatmap:
		return evaluateHeatmap(e.state.(*heatmapState), ectx)
	case KindQuota:
		return evaluateQuota(e.state.(*quotaState), ectx)
	default:
		return Continue()
	}
}

// Config returns the configuration for xattr get round-trips; for Heatmap
// it returns the current bucket counts instead.
func (e *Effect) Config() any {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.Kind {
	case KindDelay:
		return e.state.(*delayState).cfg
	case KindFlakey:
		return e.state.(*flakeyState).cfg
	case KindMaxSize:
		return e.state.(*maxSizeState).cfg
	case KindHeatmap:
		return e.state.(*heatmapState).snapshot()
	case KindQuota:
		return e.state.(*quotaState).cfg
	default:
		return nil
	}
}

// New constructs an Effect of the given kind from a config value decoded
// by the xattr control plane (see internal/xattr) and returns an error for
// an invalid one. now is the attach time, the windowed Flakey variant's t0;
// no other kind uses it.
func New(kind Kind, suffix string, now time.Time, cfg any) (*Effect, error) {
	e := &Effect{Kind: kind, Suffix: suffix, AttachedAt: now}

	switch kind {
	case KindDelay:
		c := cfg.(DelayConfig)
		f, err := ParseFilter(c.Op)
		if err != nil {
			return nil, err
		}
		e.Filter = f
		e.state = &delayState{cfg: c}
	case KindFlakey:
		c := cfg.(FlakeyConfig)
		f, err := ParseFilter(c.Op)
		if err != nil {
			return nil, err
		}
		st, err := newFlakeyState(c)
		if err != nil {
			return nil, err
		}
		e.Filter = f
		e.state = st
	case KindMaxSize:
		c := cfg.(MaxSizeConfig)
		if c.Limit == 0 {
			return nil, syscall.EINVAL
		}
		e.Filter = FilterWrite
		e.state = &maxSizeState{cfg: c}
	case KindHeatmap:
		c := cfg.(HeatmapConfig)
		if c.Align == 0 {
			return nil, syscall.EINVAL
		}
		e.Filter = FilterBoth
		e.state = newHeatmapState(c)
	case KindQuota:
		c := cfg.(QuotaConfig)
		if c.Limit == 0 || c.Align == 0 {
			return nil, syscall.EINVAL
		}
		e.Filter = FilterBoth
		e.state = &quotaState{cfg: c}
	default:
		return nil, syscall.EINVAL
	}

	return e, nil
}

// seedMaxSize computes the subtree byte sum on a MaxSize effect's first
// evaluation and installs it. The walk happens with e.mu released; the
// install is double-checked, so a racing evaluation that seeded first
// wins and the extra walk is discarded.
func (e *Effect) seedMaxSize(ectx EvalContext) error {
	e.mu.Lock()
	seeded := e.state.(*maxSizeState).initialized
	e.mu.Unlock()
	if seeded {
		return nil
	}

	size, err := ectx.SubtreeSize()
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.state.(*maxSizeState)
	if !s.initialized {
		s.current = size
		s.initialized = true
	}
	return nil
}

// ReleaseReservation returns a failed op's volume to effects that reserve
// budget at evaluation time. The interceptor calls it for every reserving
// effect that had already passed when the op failed, including cancelled
// delays; Quota specifically must not consume on failure. Quota reserved
// the rounded length, MaxSize the backing growth.
func (e *Effect) ReleaseReservation(length, growth uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.Kind {
	case KindMaxSize:
		e.state.(*maxSizeState).release(growth)
	case KindQuota:
		e.state.(*quotaState).release(length)
	}
}

// AdjustBytes shifts MaxSize's live subtree sum by delta bytes, clamping
// at zero. Unlink, truncate-shrink and rename use it to keep the sum in
// step with the backing store. No-op for other kinds, and for a sum that
// hasn't been seeded yet (the next evaluation recomputes it from the
// backing store anyway).
func (e *Effect) AdjustBytes(delta int64) {
	if e.Kind != KindMaxSize {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	s := e.state.(*maxSizeState)
	if !s.initialized {
		return
	}
	if delta < 0 && uint64(-delta) > s.current {
		s.current = 0
		return
	}
	s.current = uint64(int64(s.current) + delta)
}

// OnDetach releases any resources the effect's state holds; trivial for
// all current kinds but kept as an explicit lifecycle hook.
func (e *Effect) OnDetach() {}
