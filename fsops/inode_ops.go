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
	"os"
	"path"

	"github.com/brokenfuse/brokenfuse/internal/effect"
	"github.com/brokenfuse/brokenfuse/internal/node"
	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseops"
)

func childPath(parentPath, name string) string {
	return path.Join(parentPath, name)
}

// stampEntryExpiration marks a child entry as immediately stale so the
// kernel revalidates on every subsequent op; a cached entry would let ops
// bypass injected faults.
func (fs *fileSystem) stampEntryExpiration(e *fuseops.ChildInodeEntry) {
	now := fs.cacheClock.Now()
	e.AttributesExpiration = now
	e.EntryExpiration = now
}

// lookUpOrCreateChild mints a node for parent/name lazily on first lookup.
func (fs *fileSystem) lookUpOrCreateChild(parent *node.Node, name string) (*node.Node, error) {
	if id, ok := parent.ChildID(name); ok {
		child, ok := fs.table.Get(id)
		if ok {
			return child, nil
		}
	}

	backingPath := childPath(parent.BackingPath(), name)
	fi, err := fs.backing.Stat(backingPath)
	if err != nil {
		return nil, err
	}

	child := fs.table.Insert(parent, name, fi.IsDir(), backingPath)
	return child, nil
}

func (fs *fileSystem) LookUpInode(ctx context.Context, op *fuseops.LookUpInodeOp) (err error) {
	defer fs.recoverInvariantViolation(&err)
	parent, ok := fs.table.Get(op.Parent)
	if !ok {
		return fuse.ENOENT
	}

	child, err := fs.lookUpOrCreateChild(parent, op.Name)
	if err != nil {
		if os.IsNotExist(err) {
			return fuse.ENOENT
		}
		return errnoOf(err)
	}

	op.Entry.Child = child.ID()
	op.Entry.Attributes, err = fs.attributesFor(child)
	if err != nil {
		return errnoOf(err)
	}
	fs.stampEntryExpiration(&op.Entry)
	child.IncrementLookupCount()
	return nil
}

func (fs *fileSystem) GetInodeAttributes(ctx context.Context, op *fuseops.GetInodeAttributesOp) (err error) {
	n, ok := fs.table.Get(op.Inode)
	if !ok {
		return fuse.ENOENT
	}
	op.Attributes, err = fs.attributesFor(n)
	if err != nil {
		return errnoOf(err)
	}
	op.AttributesExpiration = fs.cacheClock.Now()
	return nil
}

func (fs *fileSystem) SetInodeAttributes(ctx context.Context, op *fuseops.SetInodeAttributesOp) (err error) {
	n, ok := fs.table.Get(op.Inode)
	if !ok {
		return fuse.ENOENT
	}

	if op.Size != nil {
		newSize := *op.Size
		oldSize, serr := fs.backing.SizeOf(n.BackingPath())
		if serr != nil {
			return errnoOf(serr)
		}

		// Only growth consumes MaxSize/Quota budget and write volume.
		var growth uint64
		if newSize > oldSize {
			growth = newSize - oldSize
		}
		if err := fs.intercept(ctx, n, effect.OpWrite, 0, growth, growth, func() error {
			return fs.backing.Truncate(n.BackingPath(), int64(newSize))
		}); err != nil {
			return errnoOf(err)
		}
		if newSize < oldSize {
			fs.adjustSubtreeSums(n, int64(newSize)-int64(oldSize))
		}
	}

	op.Attributes, err = fs.attributesFor(n)
	if err != nil {
		return errnoOf(err)
	}
	op.AttributesExpiration = fs.cacheClock.Now()
	return nil
}

func (fs *fileSystem) ForgetInode(ctx context.Context, op *fuseops.ForgetInodeOp) (err error) {
	defer fs.recoverInvariantViolation(&err)
	n, ok := fs.table.Get(op.Inode)
	if !ok {
		return nil
	}
	if n.DecrementLookupCount(op.N) {
		fs.table.Remove(n.ID())
	}
	return nil
}

func (fs *fileSystem) MkDir(ctx context.Context, op *fuseops.MkDirOp) (err error) {
	defer fs.recoverInvariantViolation(&err)
	parent, ok := fs.table.Get(op.Parent)
	if !ok {
		return fuse.ENOENT
	}

	backingPath := childPath(parent.BackingPath(), op.Name)
	if err := fs.backing.Mkdir(backingPath, fs.dirPerm); err != nil {
		if os.IsExist(err) {
			return fuse.EEXIST
		}
		return errnoOf(err)
	}

	child := fs.table.Insert(parent, op.Name, true, backingPath)
	op.Entry.Child = child.ID()
	op.Entry.Attributes, err = fs.attributesFor(child)
	if err != nil {
		return errnoOf(err)
	}
	fs.stampEntryExpiration(&op.Entry)
	child.IncrementLookupCount()
	return nil
}

func (fs *fileSystem) CreateFile(ctx context.Context, op *fuseops.CreateFileOp) (err error) {
	defer fs.recoverInvariantViolation(&err)
	parent, ok := fs.table.Get(op.Parent)
	if !ok {
		return fuse.ENOENT
	}

	backingPath := childPath(parent.BackingPath(), op.Name)
	// Create classifies as a write op. The new node doesn't exist yet, so
	// the effect walk starts from the parent, which is the same effective
	// set the child would inherit.
	err = fs.intercept(ctx, parent, effect.OpWrite, 0, 0, 0, func() error {
		f, openErr := fs.backing.OpenFile(backingPath, os.O_CREATE|os.O_EXCL|os.O_RDWR, op.Mode)
		if openErr != nil {
			return openErr
		}
		return f.Close()
	})
	if err != nil {
		if os.IsExist(err) {
			return fuse.EEXIST
		}
		return errnoOf(err)
	}

	child := fs.table.Insert(parent, op.Name, false, backingPath)
	op.Entry.Child = child.ID()
	op.Entry.Attributes, err = fs.attributesFor(child)
	if err != nil {
		return errnoOf(err)
	}
	fs.stampEntryExpiration(&op.Entry)
	child.IncrementLookupCount()
	op.Handle = fs.handles.newFileHandle(child.ID())
	return nil
}

func (fs *fileSystem) CreateSymlink(ctx context.Context, op *fuseops.CreateSymlinkOp) (err error) {
	defer fs.recoverInvariantViolation(&err)
	parent, ok := fs.table.Get(op.Parent)
	if !ok {
		return fuse.ENOENT
	}

	backingPath := childPath(parent.BackingPath(), op.Name)
	f, err := fs.backing.OpenFile(backingPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, fs.filePerm)
	if err != nil {
		if os.IsExist(err) {
			return fuse.EEXIST
		}
		return errnoOf(err)
	}
	_, werr := f.Write([]byte(op.Target))
	cerr := f.Close()
	if werr != nil {
		return errnoOf(werr)
	}
	if cerr != nil {
		return errnoOf(cerr)
	}

	child := fs.table.Insert(parent, op.Name, false, backingPath)
	op.Entry.Child = child.ID()
	op.Entry.Attributes, err = fs.attributesFor(child)
	if err != nil {
		return errnoOf(err)
	}
	fs.stampEntryExpiration(&op.Entry)
	child.IncrementLookupCount()
	return nil
}

func (fs *fileSystem) RmDir(ctx context.Context, op *fuseops.RmDirOp) (err error) {
	defer fs.recoverInvariantViolation(&err)
	parent, ok := fs.table.Get(op.Parent)
	if !ok {
		return fuse.ENOENT
	}

	id, ok := parent.ChildID(op.Name)
	if !ok {
		return fuse.ENOENT
	}
	child, ok := fs.table.Get(id)
	if !ok {
		return fuse.ENOENT
	}

	if err := fs.backing.Remove(child.BackingPath()); err != nil {
		return errnoOf(err)
	}
	fs.table.Unlink(parent, op.Name)
	return nil
}

func (fs *fileSystem) Unlink(ctx context.Context, op *fuseops.UnlinkOp) (err error) {
	defer fs.recoverInvariantViolation(&err)
	parent, ok := fs.table.Get(op.Parent)
	if !ok {
		return fuse.ENOENT
	}

	id, ok := parent.ChildID(op.Name)
	if !ok {
		return fuse.ENOENT
	}
	child, ok := fs.table.Get(id)
	if !ok {
		return fuse.ENOENT
	}

	size, _ := fs.backing.SizeOf(child.BackingPath())

	if err := fs.intercept(ctx, child, effect.OpWrite, 0, 0, 0, func() error {
		return fs.backing.Remove(child.BackingPath())
	}); err != nil {
		return errnoOf(err)
	}
	// The removed bytes leave every MaxSize subtree the file sat under.
	fs.adjustSubtreeSums(child, -int64(size))
	fs.table.Unlink(parent, op.Name)
	return nil
}

func (fs *fileSystem) Rename(ctx context.Context, op *fuseops.RenameOp) (err error) {
	defer fs.recoverInvariantViolation(&err)
	oldParent, ok := fs.table.Get(op.OldParent)
	if !ok {
		return fuse.ENOENT
	}
	newParent, ok := fs.table.Get(op.NewParent)
	if !ok {
		return fuse.ENOENT
	}

	id, ok := oldParent.ChildID(op.OldName)
	if !ok {
		return fuse.ENOENT
	}
	n, ok := fs.table.Get(id)
	if !ok {
		return fuse.ENOENT
	}

	newBackingPath := childPath(newParent.BackingPath(), op.NewName)

	// Sizes and the old effect chain must be captured while the old paths
	// are still live.
	moved, sizeErr := fs.table.SubtreeSize(n, fs.backing.SizeOf)
	oldOrdered := fs.table.EffectiveEffects(n)

	// Rename classifies as a write op against the node being moved.
	if err := fs.intercept(ctx, n, effect.OpWrite, 0, 0, 0, func() error {
		return fs.backing.Rename(n.BackingPath(), newBackingPath)
	}); err != nil {
		return errnoOf(err)
	}

	// Rename is accounted for as detach+attach: the moved bytes leave the
	// old subtree's MaxSize sums and join the new one's atomically with the
	// name edge. Table.Rename updates the edge and the backing path under
	// its structural lock.
	fs.table.Rename(n, oldParent, op.OldName, newParent, op.NewName, newBackingPath)
	if sizeErr == nil && moved > 0 {
		for _, e := range oldOrdered.Pre {
			e.AdjustBytes(-int64(moved))
		}
		fs.adjustSubtreeSums(n, int64(moved))
	}
	return nil
}
