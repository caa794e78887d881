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

package effect

import "strconv"

// HeatmapConfig is the xattr value shape for bf.effect.heatmap.
type HeatmapConfig struct {
	Align uint64 `mapstructure:"align" json:"align"`
}

// BucketCounts is one bucket's read/write tally, as reported through
// bf.effect.heatmap getfattr.
type BucketCounts struct {
	Reads  uint64 `json:"r,omitempty"`
	Writes uint64 `json:"w,omitempty"`
}

type heatmapState struct {
	cfg     HeatmapConfig
	buckets map[uint64]*BucketCounts
}

func newHeatmapState(c HeatmapConfig) *heatmapState {
	return &heatmapState{cfg: c, buckets: make(map[uint64]*BucketCounts)}
}

func floorAlign(v, align uint64) uint64 {
	if align == 0 {
		return v
	}
	return (v / align) * align
}

func ceilAlign(v, align uint64) uint64 {
	if align == 0 {
		return v
	}
	if rem := v % align; rem != 0 {
		return v + (align - rem)
	}
	return v
}

// evaluateHeatmap records the op's access, rounding the [offset,
// offset+len) range out to align boundaries and crediting every bucket it
// touches. This runs on failed ops too: attempts are recorded, not just
// completions. Zero-length ops touched no bytes and credit nothing.
func evaluateHeatmap(s *heatmapState, ectx EvalContext) Action {
	if ectx.Length == 0 {
		return Continue()
	}

	align := s.cfg.Align
	if align == 0 {
		align = 1
	}

	start := floorAlign(ectx.Offset, align)
	end := ceilAlign(ectx.Offset+ectx.Length, align)

	for b := start; b < end; b += align {
		bc, ok := s.buckets[b]
		if !ok {
			bc = &BucketCounts{}
			s.buckets[b] = bc
		}
		if ectx.Op == OpRead {
			bc.Reads++
		} else {
			bc.Writes++
		}
	}
	return Continue()
}

// snapshot returns the bucket map keyed by decimal bucket offset, the
// shape getfattr reports for bf.effect.heatmap.
func (s *heatmapState) snapshot() map[string]BucketCounts {
	out := make(map[string]BucketCounts, len(s.buckets))
	for offset, bc := range s.buckets {
		out[strconv.FormatUint(offset, 10)] = *bc
	}
	return out
}
