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
	"os"

	"github.com/brokenfuse/brokenfuse/internal/node"
	"github.com/jacobsa/fuse/fuseops"
)

// attributesFor builds the fuseops.InodeAttributes the kernel expects for
// n, statting the backing path for size and mtime.
func (fs *fileSystem) attributesFor(n *node.Node) (fuseops.InodeAttributes, error) {
	mode := fs.filePerm
	nlink := uint32(1)
	if n.IsDir() {
		mode = fs.dirPerm | os.ModeDir
		nlink = 2
	}

	attrs := fuseops.InodeAttributes{
		Nlink: nlink,
		Mode:  mode,
		Uid:   fs.uid,
		Gid:   fs.gid,
	}

	fi, err := fs.backing.Stat(n.BackingPath())
	if err != nil {
		return attrs, err
	}

	attrs.Size = uint64(fi.Size())
	attrs.Mtime = fi.ModTime()
	attrs.Atime = fi.ModTime()
	attrs.Ctime = fi.ModTime()
	if fi.IsDir() {
		attrs.Mode = fs.dirPerm | os.ModeDir
	}
	return attrs, nil
}
