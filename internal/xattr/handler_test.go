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

package xattr

import (
	"syscall"
	"testing"
	"time"

	"github.com/brokenfuse/brokenfuse/clock"
	"github.com/brokenfuse/brokenfuse/internal/effect"
	"github.com/brokenfuse/brokenfuse/internal/node"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHandler() (*Handler, *node.Table) {
	c := clock.NewSimulatedClock(time.Unix(0, 0))
	return NewHandler(c), node.NewTable("/backing")
}

func TestSetUnknownNamespacePassesThrough(t *testing.T) {
	h, tbl := newTestHandler()
	f := tbl.Insert(tbl.Root(), "f", false, "/backing/f")
	err := h.Set(f, "user.whatever", []byte("x"))
	assert.ErrorIs(t, err, ErrNotControlPlane)
}

func TestSetEffectAttachesAndGetRoundTrips(t *testing.T) {
	h, tbl := newTestHandler()
	f := tbl.Insert(tbl.Root(), "f", false, "/backing/f")

	err := h.Set(f, "bf.effect.delay", []byte(`{"duration_ms":100}`))
	require.NoError(t, err)

	out, err := h.Get(tbl, f, "bf.effect.delay")
	require.NoError(t, err)
	assert.JSONEq(t, `{"duration_ms":100}`, string(out))
}

func TestSetUnknownKindIsEINVAL(t *testing.T) {
	h, tbl := newTestHandler()
	f := tbl.Insert(tbl.Root(), "f", false, "/backing/f")
	err := h.Set(f, "bf.effect.nonsense", []byte(`{}`))
	assert.Equal(t, syscall.EINVAL, err)
}

func TestSetMalformedJSONIsEINVAL(t *testing.T) {
	h, tbl := newTestHandler()
	f := tbl.Insert(tbl.Root(), "f", false, "/backing/f")
	err := h.Set(f, "bf.effect.delay", []byte(`not json`))
	assert.Equal(t, syscall.EINVAL, err)
}

func TestSetUnknownFieldIsRejected(t *testing.T) {
	h, tbl := newTestHandler()
	f := tbl.Insert(tbl.Root(), "f", false, "/backing/f")
	err := h.Set(f, "bf.effect.delay", []byte(`{"duration_ms":100,"bogus":1}`))
	assert.Equal(t, syscall.EINVAL, err)
}

func TestSetBareEffectIsRejected(t *testing.T) {
	h, tbl := newTestHandler()
	f := tbl.Insert(tbl.Root(), "f", false, "/backing/f")
	err := h.Set(f, "bf.effect", []byte(`{}`))
	assert.Equal(t, syscall.EINVAL, err)
}

func TestGetBareEffectListsAttachedOnly(t *testing.T) {
	h, tbl := newTestHandler()
	dir := tbl.Insert(tbl.Root(), "dir", true, "/backing/dir")
	f := tbl.Insert(dir, "f", false, "/backing/dir/f")

	require.NoError(t, h.Set(dir, "bf.effect.flakey", []byte(`{"avail":1,"unavail":1}`)))
	require.NoError(t, h.Set(f, "bf.effect.delay", []byte(`{"duration_ms":5}`)))

	out, err := h.Get(tbl, f, "bf.effect")
	require.NoError(t, err)
	assert.JSONEq(t, `{"delay":{"duration_ms":5}}`, string(out))
}

func TestGetAllEffectsIncludesAncestors(t *testing.T) {
	h, tbl := newTestHandler()
	dir := tbl.Insert(tbl.Root(), "dir", true, "/backing/dir")
	f := tbl.Insert(dir, "f", false, "/backing/dir/f")

	require.NoError(t, h.Set(dir, "bf.effect.flakey", []byte(`{"avail":1,"unavail":1}`)))
	require.NoError(t, h.Set(f, "bf.effect.delay", []byte(`{"duration_ms":5}`)))

	out, err := h.Get(tbl, f, "bf.effect/all")
	require.NoError(t, err)
	assert.JSONEq(t, `{"delay":{"duration_ms":5},"flakey":{"avail":1,"unavail":1}}`, string(out))
}

func TestRemoveNonExistentEffectIsENODATA(t *testing.T) {
	h, tbl := newTestHandler()
	f := tbl.Insert(tbl.Root(), "f", false, "/backing/f")
	err := h.Remove(f, "bf.effect.delay")
	assert.Equal(t, syscall.ENODATA, err)
}

func TestRemoveCatchAllClearsAllOwnEffects(t *testing.T) {
	h, tbl := newTestHandler()
	f := tbl.Insert(tbl.Root(), "f", false, "/backing/f")
	require.NoError(t, h.Set(f, "bf.effect.delay", []byte(`{"duration_ms":5}`)))
	require.NoError(t, h.Set(f, "bf.effect.heatmap", []byte(`{"align":4096}`)))

	require.NoError(t, h.Remove(f, "bf.effect"))
	assert.Empty(t, f.Effects())
}

func TestStatsSetResetsAndGetReportsSnapshot(t *testing.T) {
	h, tbl := newTestHandler()
	f := tbl.Insert(tbl.Root(), "f", false, "/backing/f")
	f.RecordSuccess(effect.OpRead, 10)

	out, err := h.Get(tbl, f, "bf.stats")
	require.NoError(t, err)
	assert.JSONEq(t, `{"reads":1,"read_volume":10,"writes":0,"write_volume":0,"errors":0}`, string(out))

	require.NoError(t, h.Set(f, "bf.stats", []byte(`anything`)))
	out, err = h.Get(tbl, f, "bf.stats")
	require.NoError(t, err)
	assert.JSONEq(t, `{"reads":0,"read_volume":0,"writes":0,"write_volume":0,"errors":0}`, string(out))
}

func TestGetUnrecognizedBfNameIsENODATA(t *testing.T) {
	h, tbl := newTestHandler()
	f := tbl.Insert(tbl.Root(), "f", false, "/backing/f")
	_, err := h.Get(tbl, f, "bf.unknown")
	assert.Equal(t, syscall.ENODATA, err)
}
