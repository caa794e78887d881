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
	"errors"
	"os"
	"strconv"
	"syscall"
)

// errnoOf extracts the syscall.Errno backing-store errors are expected to
// carry (directly or wrapped in an *os.PathError/*os.LinkError by the
// afero/os layers), falling back to EIO for anything else. Backing-store
// errors propagate to the caller verbatim.
func errnoOf(err error) syscall.Errno {
	if err == nil {
		return 0
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno
	}
	var pathErr *os.PathError
	if errors.As(err, &pathErr) {
		if errors.As(pathErr.Err, &errno) {
			return errno
		}
	}
	var linkErr *os.LinkError
	if errors.As(err, &linkErr) {
		if errors.As(linkErr.Err, &errno) {
			return errno
		}
	}
	return syscall.EIO
}

func errnoString(e syscall.Errno) string {
	return strconv.Itoa(int(e))
}
