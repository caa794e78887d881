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

package node

import (
	"fmt"

	"github.com/brokenfuse/brokenfuse/internal/effect"
	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/syncutil"
)

// Table maps inode ids to live nodes. Lock ordering: Table.mu guards
// structural changes (insert/remove/rename of the id-to-Node mapping);
// acquiring a Node's own lock is always permitted while holding Table.mu,
// never the reverse. Effect locks are the innermost: no table or node lock
// is acquired while one is held.
type Table struct {
	mu syncutil.InvariantMutex // GUARDED_BY: nodes, nextID

	nodes  map[ID]*Node
	nextID ID
	rootID ID
}

// NewTable creates a table with a single root directory node backed by
// backingRoot (the --backing directory, or the synthetic in-memory root).
func NewTable(backingRoot string) *Table {
	t := &Table{
		nodes:  make(map[ID]*Node),
		nextID: fuseops.RootInodeID + 1,
		rootID: fuseops.RootInodeID,
	}
	root := newNode(fuseops.RootInodeID, fuseops.RootInodeID, "", backingRoot, true)
	root.lookupCount = 1 // the kernel implicitly holds a reference to the root
	t.nodes[fuseops.RootInodeID] = root
	t.mu = syncutil.NewInvariantMutex(t.checkInvariants)
	return t
}

// checkInvariants panics whenever the node table desyncs from its own
// bookkeeping; fsops recovers the panic into a fatal exit.
func (t *Table) checkInvariants() {
	root, ok := t.nodes[t.rootID]
	if !ok {
		panic("node table: root node missing")
	}
	if !root.isDir {
		panic("node table: root node is not a directory")
	}
	for id, n := range t.nodes {
		if n.id != id {
			panic(fmt.Sprintf("node table: id mismatch, key %v vs node.id %v", id, n.id))
		}
		if id >= t.nextID {
			panic(fmt.Sprintf("node table: live id %v not less than nextID %v", id, t.nextID))
		}
	}
}

func (t *Table) Root() *Node {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.nodes[t.rootID]
}

// Get looks up a node by id.
func (t *Table) Get(id ID) (*Node, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, ok := t.nodes[id]
	return n, ok
}

// Insert mints a new node as a child of parent and registers it in the
// table. Nodes are created lazily on first lookup.
func (t *Table) Insert(parent *Node, name string, isDir bool, backingPath string) *Node {
	t.mu.Lock()
	defer t.mu.Unlock()

	id := t.nextID
	t.nextID++

	n := newNode(id, parent.id, name, backingPath, isDir)
	t.nodes[id] = n
	parent.setChild(name, id)
	return n
}

// Remove deletes a node from the table. The caller (ForgetInode) invokes it
// once the node's lookup count has reached zero; open handles on the node
// are not checked.
func (t *Table) Remove(id ID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.nodes, id)
}

// Unlink detaches name from parent's child map without destroying the node
// (it may still have open handles or a positive lookup count).
func (t *Table) Unlink(parent *Node, name string) {
	parent.removeChild(name)
}

// Rename moves n from its current parent to newParent under newName,
// updating its backing path atomically with the name edge. Accounting
// treats the move as detach+attach.
func (t *Table) Rename(n *Node, oldParent *Node, oldName string, newParent *Node, newName, newBackingPath string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	oldParent.removeChild(oldName)
	newParent.setChild(newName, n.id)
	n.setParent(newParent.id, newName)
	n.setBackingPath(newBackingPath)
}

// AncestorChain returns the path from the mount root down to n, inclusive,
// root first. Used to build the effective effect set and to classify
// ancestor distance.
func (t *Table) AncestorChain(n *Node) []*Node {
	t.mu.Lock()
	defer t.mu.Unlock()

	chain := []*Node{n}
	cur := n
	for cur.id != t.rootID {
		parent, ok := t.nodes[cur.ParentID()]
		if !ok {
			break
		}
		chain = append(chain, parent)
		cur = parent
	}
	// Reverse in place: chain is leaf-first, we want root-first.
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain
}

// EffectiveEffects composes the ordered pre/post effect lists in force at
// n, walking ancestors from the root down.
func (t *Table) EffectiveEffects(n *Node) effect.Ordered {
	chain := t.AncestorChain(n)
	levels := make([][]*effect.Effect, len(chain))
	for i, ancestor := range chain {
		levels[i] = ancestor.Effects()
	}
	return effect.Compose(levels)
}

// SubtreeSize computes the live byte sum of the subtree rooted at n via a
// breadth-first walk, calling sizeOf once per file node encountered. This
// backs MaxSize's lazy recompute on first use.
func (t *Table) SubtreeSize(n *Node, sizeOf func(backingPath string) (uint64, error)) (uint64, error) {
	var total uint64

	q := newQueue[*Node]()
	q.push(n)
	for !q.isEmpty() {
		cur := q.pop()
		if !cur.IsDir() {
			size, err := sizeOf(cur.BackingPath())
			if err != nil {
				return 0, err
			}
			total += size
			continue
		}

		cur.mu.Lock()
		childIDs := make([]ID, 0, len(cur.children))
		for _, id := range cur.children {
			childIDs = append(childIDs, id)
		}
		cur.mu.Unlock()

		for _, id := range childIDs {
			if child, ok := t.Get(id); ok {
				q.push(child)
			}
		}
	}
	return total, nil
}
