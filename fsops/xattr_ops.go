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

// Xattr ops on bf.* names never trigger effects and never reach the
// backing store: they are routed straight to the control plane. Every
// other xattr name passes through to the backing store, letting host
// extended attributes coexist with fault-injection state.
package fsops

import (
	"context"
	"errors"
	"syscall"

	"github.com/brokenfuse/brokenfuse/internal/xattr"
	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseops"
)

func (fs *fileSystem) SetXattr(ctx context.Context, op *fuseops.SetXattrOp) (err error) {
	n, ok := fs.table.Get(op.Inode)
	if !ok {
		return fuse.ENOENT
	}

	if err := fs.xattrs.Set(n, op.Name, op.Value); err == nil {
		return nil
	} else if !errors.Is(err, xattr.ErrNotControlPlane) {
		return err
	}

	if err := fs.backing.SetXattr(n.BackingPath(), op.Name, op.Value); err != nil {
		return errnoOf(err)
	}
	return nil
}

func (fs *fileSystem) GetXattr(ctx context.Context, op *fuseops.GetXattrOp) (err error) {
	n, ok := fs.table.Get(op.Inode)
	if !ok {
		return fuse.ENOENT
	}

	value, err := fs.xattrs.Get(fs.table, n, op.Name)
	if err != nil && !errors.Is(err, xattr.ErrNotControlPlane) {
		return err
	}
	if err == nil {
		return copyXattrValue(op.Dst, &op.BytesRead, value)
	}

	value, berr := fs.backing.GetXattr(n.BackingPath(), op.Name)
	if berr != nil {
		return errnoOf(berr)
	}
	return copyXattrValue(op.Dst, &op.BytesRead, value)
}

func (fs *fileSystem) RemoveXattr(ctx context.Context, op *fuseops.RemoveXattrOp) (err error) {
	n, ok := fs.table.Get(op.Inode)
	if !ok {
		return fuse.ENOENT
	}

	if err := fs.xattrs.Remove(n, op.Name); err == nil {
		return nil
	} else if !errors.Is(err, xattr.ErrNotControlPlane) {
		return err
	}

	if err := fs.backing.RemoveXattr(n.BackingPath(), op.Name); err != nil {
		return errnoOf(err)
	}
	return nil
}

func (fs *fileSystem) ListXattr(ctx context.Context, op *fuseops.ListXattrOp) (err error) {
	n, ok := fs.table.Get(op.Inode)
	if !ok {
		return fuse.ENOENT
	}

	names, err := fs.backing.ListXattr(n.BackingPath())
	if err != nil {
		return errnoOf(err)
	}

	var buf []byte
	for _, name := range names {
		buf = append(buf, []byte(name)...)
		buf = append(buf, 0)
	}
	return copyXattrValue(op.Dst, &op.BytesRead, buf)
}

// copyXattrValue implements the standard two-call getxattr/listxattr
// convention: an empty Dst means "tell me the size", a non-empty Dst that's
// too small reports ERANGE.
func copyXattrValue(dst []byte, bytesRead *int, value []byte) error {
	if len(dst) == 0 {
		*bytesRead = len(value)
		return nil
	}
	if len(value) > len(dst) {
		return syscall.ERANGE
	}
	*bytesRead = copy(dst, value)
	return nil
}
