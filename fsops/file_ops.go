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
	"io"
	"os"

	"github.com/brokenfuse/brokenfuse/internal/effect"
	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseops"
)

func (fs *fileSystem) OpenFile(ctx context.Context, op *fuseops.OpenFileOp) (err error) {
	n, ok := fs.table.Get(op.Inode)
	if !ok {
		return fuse.ENOENT
	}
	op.Handle = fs.handles.newFileHandle(n.ID())
	return nil
}

func (fs *fileSystem) ReadFile(ctx context.Context, op *fuseops.ReadFileOp) (err error) {
	n, ok := fs.table.Get(op.Inode)
	if !ok {
		return fuse.ENOENT
	}

	length := uint64(len(op.Dst))
	err = fs.intercept(ctx, n, effect.OpRead, uint64(op.Offset), length, 0, func() error {
		f, openErr := fs.backing.Open(n.BackingPath())
		if openErr != nil {
			return openErr
		}
		defer f.Close()

		read, readErr := f.ReadAt(op.Dst, op.Offset)
		op.BytesRead = read
		if readErr == io.EOF {
			return nil
		}
		return readErr
	})
	if err != nil {
		return errnoOf(err)
	}
	return nil
}

func (fs *fileSystem) WriteFile(ctx context.Context, op *fuseops.WriteFileOp) (err error) {
	n, ok := fs.table.Get(op.Inode)
	if !ok {
		return fuse.ENOENT
	}

	length := uint64(len(op.Data))

	// MaxSize budgets live backing bytes, so only the portion of the write
	// past the current end of file counts as growth; an in-place overwrite
	// consumes none.
	oldSize, serr := fs.backing.SizeOf(n.BackingPath())
	if serr != nil {
		return errnoOf(serr)
	}
	var growth uint64
	if end := uint64(op.Offset) + length; end > oldSize {
		growth = end - oldSize
	}

	err = fs.intercept(ctx, n, effect.OpWrite, uint64(op.Offset), length, growth, func() error {
		f, openErr := fs.backing.OpenFile(n.BackingPath(), os.O_WRONLY, fs.filePerm)
		if openErr != nil {
			return openErr
		}
		defer f.Close()
		_, writeErr := f.WriteAt(op.Data, op.Offset)
		return writeErr
	})
	if err != nil {
		return errnoOf(err)
	}
	return nil
}

func (fs *fileSystem) ReadSymlink(ctx context.Context, op *fuseops.ReadSymlinkOp) (err error) {
	n, ok := fs.table.Get(op.Inode)
	if !ok {
		return fuse.ENOENT
	}

	f, err := fs.backing.Open(n.BackingPath())
	if err != nil {
		return errnoOf(err)
	}
	defer f.Close()

	buf, err := io.ReadAll(f)
	if err != nil {
		return errnoOf(err)
	}
	op.Target = string(buf)
	return nil
}

func (fs *fileSystem) SyncFile(ctx context.Context, op *fuseops.SyncFileOp) (err error) {
	n, ok := fs.table.Get(op.Inode)
	if !ok {
		return fuse.ENOENT
	}
	f, err := fs.backing.OpenFile(n.BackingPath(), os.O_WRONLY, fs.filePerm)
	if err != nil {
		return errnoOf(err)
	}
	defer f.Close()
	if err := f.Sync(); err != nil {
		return errnoOf(err)
	}
	return nil
}

func (fs *fileSystem) FlushFile(ctx context.Context, op *fuseops.FlushFileOp) (err error) {
	return nil
}

func (fs *fileSystem) ReleaseFileHandle(ctx context.Context, op *fuseops.ReleaseFileHandleOp) (err error) {
	fs.handles.releaseFileHandle(op.Handle)
	return nil
}
