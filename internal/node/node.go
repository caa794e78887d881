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

// Package node implements the node table: the mapping from inode id to
// backing path, parent, children, attached effects and cumulative
// counters. Locking is split between one structural lock (Table.mu) for
// insert/remove/rename and one lock per Node for effect-list mutation;
// counters are updated atomically without it.
package node

import (
	"sync"
	"sync/atomic"

	"github.com/brokenfuse/brokenfuse/internal/effect"
	"github.com/jacobsa/fuse/fuseops"
)

// ID is a node's stable inode identifier.
type ID = fuseops.InodeID

// Stats is the bf.stats counter snapshot.
type Stats struct {
	Reads       uint64 `json:"reads"`
	ReadVolume  uint64 `json:"read_volume"`
	Writes      uint64 `json:"writes"`
	WriteVolume uint64 `json:"write_volume"`
	Errors      uint64 `json:"errors"`
}

// Node is one live inode in the mounted tree.
type Node struct {
	id          ID
	name        string
	backingPath string
	isDir       bool

	// mu guards parentID, children and effects: everything that the
	// xattr control plane and the interceptor mutate per-node, as opposed
	// to the tree-structural fields owned by Table.mu.
	mu       sync.Mutex
	parentID ID
	children map[string]ID // nil for non-directories
	effects  []*effect.Effect

	lookupCount uint64 // GUARDED_BY mu

	reads, readVolume, writes, writeVolume, errors uint64 // atomic
}

func newNode(id, parentID ID, name, backingPath string, isDir bool) *Node {
	n := &Node{
		id:          id,
		parentID:    parentID,
		name:        name,
		backingPath: backingPath,
		isDir:       isDir,
	}
	if isDir {
		n.children = make(map[string]ID)
	}
	return n
}

func (n *Node) ID() ID { return n.id }

func (n *Node) Name() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.name
}

func (n *Node) BackingPath() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.backingPath
}

func (n *Node) IsDir() bool { return n.isDir }

func (n *Node) ParentID() ID {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.parentID
}

// ChildID looks up a child by name; only valid for directories.
func (n *Node) ChildID(name string) (ID, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	id, ok := n.children[name]
	return id, ok
}

func (n *Node) setChild(name string, id ID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.children[name] = id
}

func (n *Node) removeChild(name string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.children, name)
}

func (n *Node) setBackingPath(path string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.backingPath = path
}

func (n *Node) setParent(parentID ID, name string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.parentID = parentID
	n.name = name
}

// IncrementLookupCount records one kernel reference to this node.
// External synchronization (Table.mu) is required around calls that may
// race with destruction.
func (n *Node) IncrementLookupCount() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.lookupCount++
}

// DecrementLookupCount reports whether the count reached zero.
func (n *Node) DecrementLookupCount(c uint64) (destroyed bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if c > n.lookupCount {
		panic("lookup count underflow")
	}
	n.lookupCount -= c
	return n.lookupCount == 0
}

// Effects returns a snapshot of this node's own attached effects, ordered
// by attachment time ascending.
func (n *Node) Effects() []*effect.Effect {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]*effect.Effect, len(n.effects))
	copy(out, n.effects)
	return out
}

// AttachEffect installs e, replacing any existing effect with the same
// (Kind, Suffix) identity.
func (n *Node) AttachEffect(e *effect.Effect) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i, existing := range n.effects {
		if existing.Kind == e.Kind && existing.Suffix == e.Suffix {
			n.effects[i] = e
			return
		}
	}
	n.effects = append(n.effects, e)
}

// DetachEffect removes the effect named kind/suffix. Reports whether one
// was found; the caller reports ENODATA otherwise.
func (n *Node) DetachEffect(kind effect.Kind, suffix string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i, existing := range n.effects {
		if existing.Kind == kind && existing.Suffix == suffix {
			existing.OnDetach()
			n.effects = append(n.effects[:i], n.effects[i+1:]...)
			return true
		}
	}
	return false
}

// ClearEffects removes every effect attached directly to this node, never
// those on ancestors. This is what removing the catch-all bf.effect does.
func (n *Node) ClearEffects() {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, e := range n.effects {
		e.OnDetach()
	}
	n.effects = nil
}

// RecordSuccess updates the node's counters for a successful op.
func (n *Node) RecordSuccess(op effect.OpKind, length uint64) {
	if op == effect.OpRead {
		atomic.AddUint64(&n.reads, 1)
		atomic.AddUint64(&n.readVolume, length)
	} else {
		atomic.AddUint64(&n.writes, 1)
		atomic.AddUint64(&n.writeVolume, length)
	}
}

// RecordError updates the node's error counter.
func (n *Node) RecordError() {
	atomic.AddUint64(&n.errors, 1)
}

// Stats returns a snapshot of this node's cumulative counters.
func (n *Node) Stats() Stats {
	return Stats{
		Reads:       atomic.LoadUint64(&n.reads),
		ReadVolume:  atomic.LoadUint64(&n.readVolume),
		Writes:      atomic.LoadUint64(&n.writes),
		WriteVolume: atomic.LoadUint64(&n.writeVolume),
		Errors:      atomic.LoadUint64(&n.errors),
	}
}

// ResetStats zeroes the node's counters (bf.stats set).
func (n *Node) ResetStats() {
	atomic.StoreUint64(&n.reads, 0)
	atomic.StoreUint64(&n.readVolume, 0)
	atomic.StoreUint64(&n.writes, 0)
	atomic.StoreUint64(&n.writeVolume, 0)
	atomic.StoreUint64(&n.errors, 0)
}
