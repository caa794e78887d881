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

// MaxSizeConfig is the xattr value shape for bf.effect.maxsize.
type MaxSizeConfig struct {
	Limit uint64 `mapstructure:"limit" json:"limit"`
}

type maxSizeState struct {
	cfg         MaxSizeConfig
	initialized bool
	current     uint64
}

// evaluateMaxSize checks the incrementally maintained subtree sum against
// the limit. A passing check reserves the op's backing growth immediately,
// still under the effect's own lock, so two concurrent writes cannot both
// observe the pre-write size and together overflow the limit. The
// interceptor releases the reservation if the op goes on to fail.
//
// The state has already been seeded by Evaluate, which does the subtree
// walk before taking the lock: the walk issues backing Stat calls and
// acquires table/node locks, neither of which may happen under e.mu.
func evaluateMaxSize(s *maxSizeState, ectx EvalContext) Action {
	if s.current+ectx.Growth > s.cfg.Limit {
		return Fail(unix.ENOSPC)
	}
	s.current += ectx.Growth
	return Continue()
}

func (s *maxSizeState) release(growth uint64) {
	if growth > s.current {
		s.current = 0
		return
	}
	s.current -= growth
}
