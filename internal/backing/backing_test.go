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

package backing

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, s *Store, path string, data []byte) {
	t.Helper()
	f, err := s.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	require.NoError(t, err)
	_, err = f.Write(data)
	require.NoError(t, err)
	require.NoError(t, f.Close())
}

func TestMemBackingReadWriteRoundTrip(t *testing.T) {
	s := NewMemBacking()
	writeFile(t, s, "/f", []byte("hello"))

	size, err := s.SizeOf("/f")
	require.NoError(t, err)
	assert.Equal(t, uint64(5), size)
}

func TestMemBackingRenameCarriesXattrs(t *testing.T) {
	s := NewMemBacking()
	writeFile(t, s, "/f", []byte("x"))
	require.NoError(t, s.SetXattr("/f", "user.tag", []byte("v")))

	require.NoError(t, s.Rename("/f", "/g"))

	v, err := s.GetXattr("/g", "user.tag")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), v)

	_, err = s.GetXattr("/f", "user.tag")
	assert.Error(t, err)
}

func TestMemBackingXattrRemoveAndList(t *testing.T) {
	s := NewMemBacking()
	writeFile(t, s, "/f", []byte("x"))
	require.NoError(t, s.SetXattr("/f", "user.a", []byte("1")))
	require.NoError(t, s.SetXattr("/f", "user.b", []byte("2")))

	names, err := s.ListXattr("/f")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"user.a", "user.b"}, names)

	require.NoError(t, s.RemoveXattr("/f", "user.a"))
	err = s.RemoveXattr("/f", "user.a")
	assert.Error(t, err)
}

func TestOsBackingIsRootedAtDir(t *testing.T) {
	dir := t.TempDir()
	s := NewOsBacking(dir)
	writeFile(t, s, "/f", []byte("data"))

	onHost, err := os.ReadFile(dir + "/f")
	require.NoError(t, err)
	assert.Equal(t, []byte("data"), onHost)

	real, ok := s.RealPath("/f")
	require.True(t, ok)
	assert.Equal(t, dir+"/f", real)
}

func TestMemBackingHasNoRealPath(t *testing.T) {
	s := NewMemBacking()
	_, ok := s.RealPath("/anything")
	assert.False(t, ok)
}
