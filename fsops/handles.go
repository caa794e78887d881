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
	"sync"

	"github.com/jacobsa/fuse/fuseops"
)

// dirent is the subset of a directory entry ReadDir needs to serialize,
// snapshotted at OpenDir time so concurrent mutation cannot desync an
// in-progress readdir.
type dirent struct {
	inode fuseops.InodeID
	name  string
	isDir bool
}

// dirHandle is a fixed snapshot of one directory's entries.
type dirHandle struct {
	entries []dirent
}

// fileHandle identifies the node a file handle was opened against; reads
// and writes go straight through the backing store by path (no retained
// file descriptor), since Broken Fuse has no dirty-buffer or write-back
// machinery to keep alive between calls.
type fileHandle struct {
	inode fuseops.InodeID
}

// handleTable hands out and tracks fuseops.HandleID values for open
// directories and files, guarded by its own lock, distinct from the node
// table's structural lock. A goroutine holding the handle-table lock may
// go on to acquire a node lock, never the reverse.
type handleTable struct {
	mu    sync.Mutex
	next  fuseops.HandleID
	dirs  map[fuseops.HandleID]*dirHandle
	files map[fuseops.HandleID]*fileHandle
}

func newHandleTable() *handleTable {
	return &handleTable{
		dirs:  make(map[fuseops.HandleID]*dirHandle),
		files: make(map[fuseops.HandleID]*fileHandle),
	}
}

func (h *handleTable) newDirHandle(entries []dirent) fuseops.HandleID {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.next
	h.next++
	h.dirs[id] = &dirHandle{entries: entries}
	return id
}

func (h *handleTable) getDirHandle(id fuseops.HandleID) (*dirHandle, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	dh, ok := h.dirs[id]
	return dh, ok
}

func (h *handleTable) releaseDirHandle(id fuseops.HandleID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.dirs, id)
}

func (h *handleTable) newFileHandle(inode fuseops.InodeID) fuseops.HandleID {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.next
	h.next++
	h.files[id] = &fileHandle{inode: inode}
	return id
}

func (h *handleTable) getFileHandle(id fuseops.HandleID) (*fileHandle, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	fh, ok := h.files[id]
	return fh, ok
}

func (h *handleTable) releaseFileHandle(id fuseops.HandleID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.files, id)
}
