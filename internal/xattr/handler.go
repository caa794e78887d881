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

package xattr

import (
	"encoding/json"
	"errors"
	"syscall"

	"github.com/brokenfuse/brokenfuse/clock"
	"github.com/brokenfuse/brokenfuse/internal/effect"
	"github.com/brokenfuse/brokenfuse/internal/node"
)

// ErrNotControlPlane signals the operation interceptor that the requested
// xattr name is not under bf.* and must pass through to the backing
// store.
var ErrNotControlPlane = errors.New("xattr: not a broken-fuse control-plane name")

func validKind(s string) (effect.Kind, bool) {
	switch effect.Kind(s) {
	case effect.KindDelay, effect.KindFlakey, effect.KindMaxSize, effect.KindHeatmap, effect.KindQuota:
		return effect.Kind(s), true
	default:
		return "", false
	}
}

// Handler implements the bf.* control plane against a node table, using an
// injectable Clock so effect attach times are deterministic in tests.
type Handler struct {
	Clock clock.Clock
}

func NewHandler(c clock.Clock) *Handler {
	return &Handler{Clock: c}
}

// Set implements setxattr for a bf.* name.
func (h *Handler) Set(n *node.Node, name string, value []byte) error {
	req := ParseName(name)
	if !req.IsBrokenFuse {
		return ErrNotControlPlane
	}

	switch {
	case req.IsStats:
		// Any value accepted; setting bf.stats resets the counters.
		n.ResetStats()
		return nil
	case req.IsCatchAll, req.IsAllEffects:
		// The catch-all and the effective-set view are read-only on set.
		return syscall.EINVAL
	case req.IsEffectNamed:
		kind, ok := validKind(req.Kind)
		if !ok {
			return syscall.EINVAL
		}
		raw, err := DecodeJSON(value)
		if err != nil {
			return err
		}
		cfg, err := DecodeConfig(kind, raw)
		if err != nil {
			return err
		}
		e, err := effect.New(kind, req.Suffix, h.Clock.Now(), cfg)
		if err != nil {
			return err
		}
		n.AttachEffect(e)
		return nil
	default:
		return syscall.EINVAL
	}
}

// Remove implements removexattr for a bf.* name.
func (h *Handler) Remove(n *node.Node, name string) error {
	req := ParseName(name)
	if !req.IsBrokenFuse {
		return ErrNotControlPlane
	}

	switch {
	case req.IsCatchAll:
		// Clears this node's own effects, never an ancestor's.
		n.ClearEffects()
		return nil
	case req.IsStats, req.IsAllEffects:
		return syscall.EINVAL
	case req.IsEffectNamed:
		kind, ok := validKind(req.Kind)
		if !ok {
			return syscall.ENODATA
		}
		if !n.DetachEffect(kind, req.Suffix) {
			return syscall.ENODATA
		}
		return nil
	default:
		return syscall.ENODATA
	}
}

// Get implements getxattr for a bf.* name. table is needed only for
// bf.effect/all, which walks ancestry.
func (h *Handler) Get(table *node.Table, n *node.Node, name string) ([]byte, error) {
	req := ParseName(name)
	if !req.IsBrokenFuse {
		return nil, ErrNotControlPlane
	}

	switch {
	case req.IsStats:
		return json.Marshal(n.Stats())
	case req.IsCatchAll:
		return marshalEffects(n.Effects())
	case req.IsAllEffects:
		ordered := table.EffectiveEffects(n)
		all := make([]*effect.Effect, 0, len(ordered.Pre)+len(ordered.Post))
		all = append(all, ordered.Pre...)
		all = append(all, ordered.Post...)
		return marshalEffects(all)
	case req.IsEffectNamed:
		kind, ok := validKind(req.Kind)
		if !ok {
			return nil, syscall.ENODATA
		}
		for _, e := range n.Effects() {
			if e.Kind == kind && e.Suffix == req.Suffix {
				return json.Marshal(e.Config())
			}
		}
		return nil, syscall.ENODATA
	default:
		return nil, syscall.ENODATA
	}
}

func marshalEffects(effects []*effect.Effect) ([]byte, error) {
	out := make(map[string]any, len(effects))
	for _, e := range effects {
		out[e.Name()] = e.Config()
	}
	return json.Marshal(out)
}
