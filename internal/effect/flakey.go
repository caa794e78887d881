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

import (
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// defaultFlakeyErrno is EIO, used when "errno" is omitted.
const defaultFlakeyErrno = unix.EIO

// FlakeyConfig is the xattr value shape for bf.effect.flakey. Exactly one
// of {Prob} or {Avail, Unavail} must be set; combining them is an EINVAL
// at attach time.
type FlakeyConfig struct {
	Prob    *float64 `mapstructure:"prob,omitempty" json:"prob,omitempty"`
	Errno   int32    `mapstructure:"errno,omitempty" json:"errno,omitempty"`
	Avail   uint32   `mapstructure:"avail,omitempty" json:"avail,omitempty"`
	Unavail uint32   `mapstructure:"unavail,omitempty" json:"unavail,omitempty"`
	Op      string   `mapstructure:"op,omitempty" json:"op,omitempty"`
}

type flakeyState struct {
	cfg    FlakeyConfig
	errno  syscall.Errno
	window bool // true for the avail/unavail windowed variant
}

func newFlakeyState(c FlakeyConfig) (*flakeyState, error) {
	hasProb := c.Prob != nil
	hasWindow := c.Avail != 0 || c.Unavail != 0

	if hasProb == hasWindow {
		// Neither set, or both set: exactly one variant is required.
		return nil, syscall.EINVAL
	}
	if hasProb && (*c.Prob < 0 || *c.Prob > 1) {
		return nil, syscall.EINVAL
	}

	errno := defaultFlakeyErrno
	if c.Errno != 0 {
		errno = syscall.Errno(c.Errno)
	}

	return &flakeyState{cfg: c, errno: errno, window: hasWindow}, nil
}

// evaluateFlakey implements both the probabilistic and windowed variants of
// Flakey. attachedAt is the effect's attach time, the windowed variant's t0.
func evaluateFlakey(s *flakeyState, attachedAt time.Time, ectx EvalContext) Action {
	if s.window {
		period := time.Duration(s.cfg.Avail+s.cfg.Unavail) * time.Millisecond
		elapsed := ectx.Now.Sub(attachedAt)
		if elapsed < 0 {
			elapsed = 0
		}
		phase := elapsed % period
		availDur := time.Duration(s.cfg.Avail) * time.Millisecond
		if phase >= availDur {
			return Fail(s.errno)
		}
		return Continue()
	}

	if ectx.RNG.Float64() < *s.cfg.Prob {
		return Fail(s.errno)
	}
	return Continue()
}
