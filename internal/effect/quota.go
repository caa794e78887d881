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

import "golang.org/x/sys/unix"

// QuotaConfig is the xattr value shape for bf.effect.quota.
type QuotaConfig struct {
	Limit uint64 `mapstructure:"limit" json:"limit"`
	Align uint64 `mapstructure:"align" json:"align"`
}

type quotaState struct {
	cfg     QuotaConfig
	current uint64
}

func roundUp(length, align uint64) uint64 {
	if align <= 1 {
		return length
	}
	if rem := length % align; rem != 0 {
		return length + (align - rem)
	}
	return length
}

// evaluateQuota never touches the backing store (unlike MaxSize it has no
// lazy-seed step): the running sum starts at zero when the effect is
// attached. A passing check reserves the rounded volume under the effect's
// lock; the interceptor releases it if the op goes on to fail, so failed
// ops never consume quota.
func evaluateQuota(s *quotaState, ectx EvalContext) Action {
	rounded := roundUp(ectx.Length, s.cfg.Align)
	if s.current+rounded > s.cfg.Limit {
		return Fail(unix.EDQUOT)
	}
	s.current += rounded
	return Continue()
}

func (s *quotaState) release(length uint64) {
	rounded := roundUp(length, s.cfg.Align)
	if rounded > s.current {
		s.current = 0
		return
	}
	s.current -= rounded
}
