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

	"github.com/brokenfuse/brokenfuse/internal/effect"
	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/fuse/fuseutil"
)

func (fs *fileSystem) OpenDir(ctx context.Context, op *fuseops.OpenDirOp) (err error) {
	defer fs.recoverInvariantViolation(&err)
	n, ok := fs.table.Get(op.Inode)
	if !ok {
		return fuse.ENOENT
	}
	if !n.IsDir() {
		return fuse.ENOTDIR
	}

	infos, err := fs.backing.ReadDir(n.BackingPath())
	if err != nil {
		return errnoOf(err)
	}

	entries := make([]dirent, 0, len(infos))
	for _, fi := range infos {
		child, lookupErr := fs.lookUpOrCreateChild(n, fi.Name())
		if lookupErr != nil {
			continue
		}
		entries = append(entries, dirent{inode: child.ID(), name: fi.Name(), isDir: fi.IsDir()})
	}

	op.Handle = fs.handles.newDirHandle(entries)
	return nil
}

func (fs *fileSystem) ReadDir(ctx context.Context, op *fuseops.ReadDirOp) (err error) {
	n, ok := fs.table.Get(op.Inode)
	if !ok {
		return fuse.ENOENT
	}
	dh, ok := fs.handles.getDirHandle(op.Handle)
	if !ok {
		return fuse.EIO
	}

	// Readdir classifies as a read op, so delays and failures scoped to
	// reads apply to listings too.
	err = fs.intercept(ctx, n, effect.OpRead, 0, 0, 0, func() error {
		if int(op.Offset) > len(dh.entries) {
			return nil
		}

		for i := int(op.Offset); i < len(dh.entries); i++ {
			e := dh.entries[i]
			direntType := fuseutil.DT_File
			if e.isDir {
				direntType = fuseutil.DT_Directory
			}
			written := fuseutil.WriteDirent(op.Dst[op.BytesRead:], fuseutil.Dirent{
				Offset: fuseops.DirOffset(i + 1),
				Inode:  e.inode,
				Name:   e.name,
				Type:   direntType,
			})
			if written == 0 {
				break
			}
			op.BytesRead += written
		}
		return nil
	})
	if err != nil {
		return errnoOf(err)
	}
	return nil
}

func (fs *fileSystem) ReleaseDirHandle(ctx context.Context, op *fuseops.ReleaseDirHandleOp) (err error) {
	fs.handles.releaseDirHandle(op.Handle)
	return nil
}
